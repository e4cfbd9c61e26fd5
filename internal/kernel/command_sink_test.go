package kernel

import (
	"context"
	"sync"
	"testing"

	"muster/pkg/muster"
)

// capturePublisher records every published event for assertions.
type capturePublisher struct {
	mu     sync.Mutex
	events []*muster.Event
}

func (p *capturePublisher) Publish(_ context.Context, event *muster.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *capturePublisher) published() []*muster.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*muster.Event(nil), p.events...)
}

func newTestCommandPublisher(base muster.EventPublisher, registered ...string) *commandDerivingPublisher {
	known := make(map[string]muster.CommandSpec, len(registered))
	for _, name := range registered {
		known[name] = muster.CommandSpec{Name: name}
	}

	return &commandDerivingPublisher{
		base: base,
		lookupCommand: func(name string) (muster.CommandSpec, bool) {
			spec, exists := known[name]
			return spec, exists
		},
	}
}

// TestCommandDerivationPublishesCommandEvent verifies registered commands derive command events.
func TestCommandDerivationPublishesCommandEvent(t *testing.T) {
	t.Parallel()

	base := &capturePublisher{}
	publisher := newTestCommandPublisher(base, "start")

	source := newTestEvent("e1", muster.EventKindMessageCreated)
	source.Message.Text = "/start@muster_bot"

	if err := publisher.Publish(context.Background(), source); err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	events := base.published()
	if len(events) != 2 {
		t.Fatalf("published = %d events, want 2", len(events))
	}
	if events[0].Kind != muster.EventKindMessageCreated {
		t.Fatalf("events[0].kind = %s, want message.created", events[0].Kind)
	}

	derived := events[1]
	if derived.Kind != muster.EventKindCommandReceived {
		t.Fatalf("events[1].kind = %s, want command.received", derived.Kind)
	}
	if derived.ID != "e1#command" {
		t.Fatalf("derived id = %s, want e1#command", derived.ID)
	}
	if derived.Command == nil || derived.Command.Name != "start" {
		t.Fatalf("derived command = %+v, want start", derived.Command)
	}
	if derived.Command.Mention != "muster_bot" {
		t.Fatalf("derived mention = %s, want muster_bot", derived.Command.Mention)
	}
	if derived.Message == nil || derived.Message.ID != source.Message.ID {
		t.Fatal("derived event should carry the source message payload")
	}
	if derived.Conversation != source.Conversation {
		t.Fatal("derived event should keep the source conversation")
	}
}

// TestCommandDerivationSkipsUnregisteredCommands verifies unknown commands pass through untouched.
func TestCommandDerivationSkipsUnregisteredCommands(t *testing.T) {
	t.Parallel()

	base := &capturePublisher{}
	publisher := newTestCommandPublisher(base, "start")

	source := newTestEvent("e1", muster.EventKindMessageCreated)
	source.Message.Text = "/unknown"

	if err := publisher.Publish(context.Background(), source); err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	if got := len(base.published()); got != 1 {
		t.Fatalf("published = %d events, want 1", got)
	}
}

// TestCommandDerivationIgnoresPlainMessages verifies ordinary text never derives commands.
func TestCommandDerivationIgnoresPlainMessages(t *testing.T) {
	t.Parallel()

	base := &capturePublisher{}
	publisher := newTestCommandPublisher(base, "start")

	source := newTestEvent("e1", muster.EventKindMessageCreated)
	source.Message.Text = "good morning everyone"

	if err := publisher.Publish(context.Background(), source); err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	if got := len(base.published()); got != 1 {
		t.Fatalf("published = %d events, want 1", got)
	}
}

// TestCommandDerivationReportsParseErrors verifies malformed commands are reported, not derived.
func TestCommandDerivationReportsParseErrors(t *testing.T) {
	t.Parallel()

	base := &capturePublisher{}
	publisher := newTestCommandPublisher(base, "start")

	var reported int
	publisher.reportAsync = func(_ context.Context, _ string, _ error) {
		reported++
	}

	source := newTestEvent("e1", muster.EventKindMessageCreated)
	source.Message.Text = "/@muster_bot"

	if err := publisher.Publish(context.Background(), source); err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	if got := len(base.published()); got != 1 {
		t.Fatalf("published = %d events, want 1", got)
	}
	if reported != 1 {
		t.Fatalf("reported = %d parse errors, want 1", reported)
	}
}

// TestCommandDerivationNilEvent verifies nil event rejection.
func TestCommandDerivationNilEvent(t *testing.T) {
	t.Parallel()

	publisher := newTestCommandPublisher(&capturePublisher{})
	if err := publisher.Publish(context.Background(), nil); err == nil {
		t.Fatal("expected nil event publish to fail")
	}
}
