package kernel

import (
	"context"
	"fmt"
	"strings"

	"muster/pkg/muster"
)

type commandRegistration struct {
	moduleName string
	spec       muster.CommandSpec
}

// registerModuleCommands validates and registers module-owned command specs.
func (k *Kernel) registerModuleCommands(moduleName string, commands []muster.CommandSpec) error {
	if len(commands) == 0 {
		return nil
	}

	normalized := make([]muster.CommandSpec, 0, len(commands))
	seenInModule := make(map[string]struct{}, len(commands))
	for index, command := range commands {
		if err := command.Validate(); err != nil {
			return fmt.Errorf("register command[%d] for module %s: %w", index, moduleName, err)
		}

		command.Name = normalizeCommandName(command.Name)
		key := commandRegistryKey(command.Name)
		if _, exists := seenInModule[key]; exists {
			return fmt.Errorf(
				"register command %s%s for module %s: duplicate declaration",
				muster.CommandPrefix,
				command.Name,
				moduleName,
			)
		}
		seenInModule[key] = struct{}{}
		normalized = append(normalized, command)
	}

	k.mu.Lock()
	defer k.mu.Unlock()
	for _, command := range normalized {
		key := commandRegistryKey(command.Name)
		existing, exists := k.commands[key]
		if exists {
			return fmt.Errorf(
				"register command %s%s for module %s: already registered by module %s",
				muster.CommandPrefix,
				command.Name,
				moduleName,
				existing.moduleName,
			)
		}
	}
	for _, command := range normalized {
		k.commands[commandRegistryKey(command.Name)] = commandRegistration{
			moduleName: moduleName,
			spec:       command,
		}
	}

	return nil
}

// unregisterModuleCommands removes every command owned by one module.
func (k *Kernel) unregisterModuleCommands(moduleName string) {
	k.mu.Lock()
	defer k.mu.Unlock()

	for key, registration := range k.commands {
		if registration.moduleName == moduleName {
			delete(k.commands, key)
		}
	}
}

// lookupCommand resolves one command spec by normalized name.
func (k *Kernel) lookupCommand(name string) (muster.CommandSpec, bool) {
	key := commandRegistryKey(name)

	k.mu.RLock()
	registration, exists := k.commands[key]
	k.mu.RUnlock()
	if !exists {
		return muster.CommandSpec{}, false
	}

	return registration.spec, true
}

// newDriverPublisher creates the source-event publisher wrapped with command derivation.
func (k *Kernel) newDriverPublisher() muster.EventPublisher {
	return &commandDerivingPublisher{
		base:          k.bus,
		lookupCommand: k.lookupCommand,
		reportAsync:   k.cfg.onAsyncError,
	}
}

// commandDerivingPublisher publishes source events and derives command events.
type commandDerivingPublisher struct {
	base          muster.EventPublisher
	lookupCommand func(name string) (muster.CommandSpec, bool)
	reportAsync   func(context.Context, string, error)
}

// Publish forwards one source event and conditionally derives one command event.
func (p *commandDerivingPublisher) Publish(ctx context.Context, event *muster.Event) error {
	if event == nil {
		return fmt.Errorf("publish command deriving publisher: nil event")
	}
	if p.base == nil {
		return fmt.Errorf("publish command deriving publisher: nil base publisher")
	}

	if err := p.base.Publish(ctx, event); err != nil {
		return fmt.Errorf("publish source event %s: %w", event.Kind, err)
	}

	if event.Kind != muster.EventKindMessageCreated || event.Message == nil {
		return nil
	}

	candidate, matched, parseErr := muster.ParseCommandCandidate(event.Message.Text)
	if !matched {
		return nil
	}
	if parseErr != nil {
		p.reportAsyncError(ctx, "derive command", parseErr)
		return nil
	}

	if _, registered := p.lookupCommand(candidate.Name); !registered {
		return nil
	}

	invocation, bindErr := muster.BindCommand(candidate, event)
	if bindErr != nil {
		p.reportAsyncError(ctx, "derive command", bindErr)
		return nil
	}

	commandEvent := derivedCommandEvent(event, invocation)
	if err := p.base.Publish(ctx, commandEvent); err != nil {
		return fmt.Errorf("publish derived command %s: %w", invocation.Name, err)
	}

	return nil
}

func (p *commandDerivingPublisher) reportAsyncError(ctx context.Context, scope string, err error) {
	if p.reportAsync != nil {
		p.reportAsync(ctx, scope, err)
	}
}

// derivedCommandEvent builds the command event sharing the source envelope.
func derivedCommandEvent(sourceEvent *muster.Event, invocation *muster.CommandInvocation) *muster.Event {
	message := *sourceEvent.Message

	return &muster.Event{
		ID:           sourceEvent.ID + "#command",
		Kind:         muster.EventKindCommandReceived,
		OccurredAt:   sourceEvent.OccurredAt,
		Platform:     sourceEvent.Platform,
		Source:       sourceEvent.Source,
		Conversation: sourceEvent.Conversation,
		Actor:        sourceEvent.Actor,
		Message:      &message,
		Command:      invocation,
		Metadata:     cloneStringMap(sourceEvent.Metadata),
	}
}

func commandRegistryKey(name string) string {
	return normalizeCommandName(name)
}

func normalizeCommandName(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

func cloneStringMap(metadata map[string]string) map[string]string {
	if len(metadata) == 0 {
		return nil
	}

	cloned := make(map[string]string, len(metadata))
	for key, value := range metadata {
		cloned[key] = value
	}

	return cloned
}
