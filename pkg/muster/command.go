package muster

import (
	"fmt"
	"strings"
)

// CommandPrefix is the token that introduces one command invocation.
const CommandPrefix = "/"

// CommandCandidate is a parsed command-looking message before command-spec binding.
type CommandCandidate struct {
	// Name is the normalized command name without prefix and mention suffix.
	Name string
	// Mention is the optional mention suffix from `<name>@<mention>`.
	Mention string
	// RawInput is the original untrimmed message text.
	RawInput string
	// Args stores command tail tokens after the command header token.
	Args []string
}

// CommandInvocation carries one validated command event payload.
type CommandInvocation struct {
	// Name is the normalized command name.
	Name string
	// Mention is the optional mention suffix from `<name>@<mention>`.
	Mention string
	// Args stores command tail tokens after the command header token.
	Args []string
	// SourceEventID identifies the inbound source event that produced this command.
	SourceEventID string
	// SourceEventKind identifies the inbound source event kind.
	SourceEventKind EventKind
	// RawInput stores the original inbound message text.
	RawInput string
}

// Validate checks command invocation contract fields.
func (c *CommandInvocation) Validate() error {
	if c == nil {
		return fmt.Errorf("validate command invocation: nil invocation")
	}
	if normalizeCommandName(c.Name) == "" {
		return fmt.Errorf("validate command invocation: missing name")
	}
	if c.SourceEventID == "" {
		return fmt.Errorf("validate command invocation: missing source_event_id")
	}
	if c.SourceEventKind == "" {
		return fmt.Errorf("validate command invocation: missing source_event_kind")
	}

	return nil
}

// AddressedTo reports whether an invocation targets the given bot handle.
//
// Invocations without a mention suffix address every bot in the conversation.
func (c *CommandInvocation) AddressedTo(selfUsername string) bool {
	if c == nil {
		return false
	}
	if c.Mention == "" {
		return true
	}

	return strings.EqualFold(c.Mention, selfUsername)
}

// CommandSpec declares one module command registration.
type CommandSpec struct {
	// Name is the command name without prefix and mention suffix.
	Name string
	// Description describes command behavior for diagnostics and help text.
	Description string
}

// Validate checks command specification coherence.
func (s CommandSpec) Validate() error {
	if normalizeCommandName(s.Name) == "" {
		return fmt.Errorf("validate command spec: missing name")
	}

	return nil
}

// ParseCommandCandidate parses one input text into a command candidate.
//
// matched is false when text does not look like a command. When matched is
// true, candidate fields are populated as much as possible and err reports
// syntax issues such as a missing command name.
func ParseCommandCandidate(text string) (candidate CommandCandidate, matched bool, err error) {
	candidate.RawInput = text

	fields := strings.Fields(strings.TrimSpace(text))
	if len(fields) == 0 {
		return candidate, false, nil
	}
	header := fields[0]
	if !strings.HasPrefix(header, CommandPrefix) || len(header) == len(CommandPrefix) {
		if header == CommandPrefix {
			return candidate, true, fmt.Errorf("parse command candidate: missing command name")
		}
		return candidate, false, nil
	}

	name, mention := splitCommandHeader(header[len(CommandPrefix):])
	candidate.Name = normalizeCommandName(name)
	candidate.Mention = strings.TrimSpace(mention)
	if candidate.Name == "" {
		return candidate, true, fmt.Errorf("parse command candidate: missing command name")
	}

	if len(fields) > 1 {
		candidate.Args = append([]string(nil), fields[1:]...)
	}

	return candidate, true, nil
}

// BindCommand materializes one invocation payload from a candidate and source event.
func BindCommand(candidate CommandCandidate, event *Event) (*CommandInvocation, error) {
	if event == nil {
		return nil, fmt.Errorf("bind command %s: nil source event", candidate.Name)
	}
	invocation := &CommandInvocation{
		Name:            candidate.Name,
		Mention:         candidate.Mention,
		Args:            append([]string(nil), candidate.Args...),
		SourceEventID:   event.ID,
		SourceEventKind: event.Kind,
		RawInput:        candidate.RawInput,
	}
	if err := invocation.Validate(); err != nil {
		return nil, fmt.Errorf("bind command %s: %w", candidate.Name, err)
	}

	return invocation, nil
}

// splitCommandHeader separates `<name>@<mention>` command header bodies.
func splitCommandHeader(body string) (name string, mention string) {
	name, mention, found := strings.Cut(body, "@")
	if !found {
		return body, ""
	}

	return name, mention
}

func normalizeCommandName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
