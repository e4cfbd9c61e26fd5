package muster

import (
	"context"
	"fmt"
)

// EventHandler processes a single neutral event.
type EventHandler func(ctx context.Context, event *Event) error

// ModuleHandler binds an interest declaration to an event handler.
type ModuleHandler struct {
	Name     string
	Interest InterestSet
	Spec     SubscriptionSpec
	Handler  EventHandler
}

// Validate checks handler completeness.
func (h ModuleHandler) Validate() error {
	if h.Name == "" {
		return fmt.Errorf("%w: handler name is empty", ErrInvalidSubscription)
	}
	if h.Handler == nil {
		return fmt.Errorf("%w: handler %q has nil callback", ErrInvalidSubscription, h.Name)
	}
	return nil
}

// ModuleSpec declares a module's handlers, commands, and dependencies in one place.
type ModuleSpec struct {
	Name             string
	Handlers         []ModuleHandler
	Commands         []CommandSpec
	RequiredServices []string
}

// Validate checks spec completeness including nested handlers and commands.
func (s ModuleSpec) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("%w: module name is empty", ErrInvalidSubscription)
	}
	for _, handler := range s.Handlers {
		if err := handler.Validate(); err != nil {
			return fmt.Errorf("module %q: %w", s.Name, err)
		}
	}
	for _, command := range s.Commands {
		if err := command.Validate(); err != nil {
			return fmt.Errorf("module %q: %w", s.Name, err)
		}
	}
	return nil
}

// Capabilities derives declarative capability metadata from the spec.
func (s ModuleSpec) Capabilities() []Capability {
	capabilities := make([]Capability, 0, len(s.Handlers))
	for _, handler := range s.Handlers {
		capabilities = append(capabilities, Capability{
			Name:             s.Name + "." + handler.Name,
			Interest:         handler.Interest,
			RequiredServices: append([]string(nil), s.RequiredServices...),
		})
	}
	return capabilities
}

// ModuleRuntime provides kernel facilities to modules during registration.
type ModuleRuntime interface {
	// Services exposes the service registry for dependency lookup.
	Services() ServiceRegistry
}

// Module is a lifecycle-aware plugin contract.
//
// Modules must be deterministic and concurrency-safe because handlers can run
// on multiple workers.
type Module interface {
	// Name returns a stable module identifier.
	Name() string
	// Spec returns the module's declarative handler and command metadata.
	Spec() ModuleSpec
	// OnRegister is called once when the module is registered.
	OnRegister(ctx context.Context, runtime ModuleRuntime) error
	// OnStart is called when the kernel begins runtime execution.
	OnStart(ctx context.Context) error
	// OnShutdown is called during orderly shutdown.
	OnShutdown(ctx context.Context) error
}

// Driver adapts external platforms into neutral events.
//
// Drivers own transport/session concerns and must publish only muster.Event.
type Driver interface {
	// Name returns a stable driver identifier.
	Name() string
	// Start starts consuming external updates and publishing neutral events.
	// It should return only after context cancellation or fatal error.
	Start(ctx context.Context, publisher EventPublisher) error
	// Shutdown stops external resources that are not tied to Start context alone.
	Shutdown(ctx context.Context) error
}
