package muster

import (
	"fmt"
	"time"
)

// EventKind identifies a neutral domain event type.
type EventKind string

const (
	// EventKindMessageCreated is emitted when a new message is posted.
	EventKindMessageCreated EventKind = "message.created"
	// EventKindCommandReceived is emitted when a message binds to a registered command.
	EventKindCommandReceived EventKind = "command.received"
	// EventKindMemberJoined is emitted when a member joins a conversation.
	EventKindMemberJoined EventKind = "member.joined"
	// EventKindMemberLeft is emitted when a member leaves a conversation.
	EventKindMemberLeft EventKind = "member.left"
	// EventKindChatMigrated is emitted when a conversation migrates IDs.
	EventKindChatMigrated EventKind = "chat.migrated"
)

// Platform identifies an external chat platform source.
type Platform string

const (
	// PlatformTelegram is Telegram.
	PlatformTelegram Platform = "telegram"
)

// ConversationType identifies conversation scope.
type ConversationType string

const (
	// ConversationTypePrivate is a direct/private conversation.
	ConversationTypePrivate ConversationType = "private"
	// ConversationTypeGroup is a group conversation, including supergroups.
	ConversationTypeGroup ConversationType = "group"
	// ConversationTypeChannel is a channel-style conversation.
	ConversationTypeChannel ConversationType = "channel"
)

// EventSource identifies which configured driver instance produced an event.
type EventSource struct {
	// Platform identifies the upstream platform.
	Platform Platform
	// ID is the configured driver instance identifier.
	ID string
}

// EventSink identifies an outbound sink destination.
type EventSink struct {
	// Platform identifies the destination platform.
	Platform Platform
	// ID is the configured sink instance identifier.
	ID string
}

// Event is the neutral protocol envelope that drivers publish and modules consume.
//
// Message, Command, and StateChange are optional payload branches selected by
// Kind to avoid platform-specific leakage.
type Event struct {
	// ID is a stable identifier for this event instance.
	ID string
	// Kind selects which payload branch is expected.
	Kind EventKind
	// OccurredAt is the source-platform timestamp for the event.
	OccurredAt time.Time
	// Platform identifies the upstream platform that produced the event.
	Platform Platform
	// Source identifies the configured driver instance that produced the event.
	Source EventSource
	// Conversation identifies where the event happened.
	Conversation Conversation
	// Actor identifies who initiated the event when available.
	Actor Actor
	// Message carries message content for message-created events.
	Message *Message
	// Command carries a bound command invocation for command events.
	Command *CommandInvocation
	// StateChange carries membership and migration transitions.
	StateChange *StateChange
	// Metadata stores optional driver-provided key/value context.
	Metadata map[string]string
}

// Conversation identifies the neutral destination where an event occurred.
type Conversation struct {
	// ID is the stable conversation identifier on the source platform.
	ID string
	// Type describes the conversation scope.
	Type ConversationType
	// Title is a best-effort display label for the conversation.
	Title string
}

// IsGroup reports whether the conversation is a group-style chat.
func (c Conversation) IsGroup() bool {
	return c.Type == ConversationTypeGroup
}

// Actor identifies the user/account that initiated an event.
type Actor struct {
	// ID is the stable actor identifier on the source platform.
	ID string
	// Username is the platform handle without a leading "@", when available.
	Username string
	// DisplayName is the human-readable actor name.
	DisplayName string
	// IsBot reports whether the actor is an automated account.
	IsBot bool
}

// Message holds neutral text message content.
type Message struct {
	// ID is the message identifier on the source platform.
	ID string
	// ThreadID is the optional topic-thread identifier containing the message.
	ThreadID string
	// ReplyToID is the parent message identifier when this is a reply.
	ReplyToID string
	// Text is the normalized message text body.
	Text string
}

// StateChangeType identifies conversation state transitions.
type StateChangeType string

const (
	// StateChangeTypeMember indicates join/leave mutations.
	StateChangeTypeMember StateChangeType = "member"
	// StateChangeTypeMigration indicates conversation ID migrations.
	StateChangeTypeMigration StateChangeType = "migration"
)

// StateChange wraps non-message platform state transitions.
type StateChange struct {
	// Type selects which state-change payload branch is set.
	Type StateChangeType
	// Member carries join/leave transitions.
	Member *MemberChange
	// Migration carries conversation identifier migrations.
	Migration *ChatMigration
}

// MemberChange captures join/leave transitions.
type MemberChange struct {
	// Action is the member event kind (joined or left).
	Action EventKind
	// Member identifies the member affected by the transition.
	Member Actor
	// Inviter identifies who invited the member when available.
	Inviter *Actor
	// Reason carries optional platform context for the change.
	Reason string
	// JoinedAt is the join timestamp when provided by the source platform.
	JoinedAt time.Time
}

// ChatMigration captures conversation identifier migration.
type ChatMigration struct {
	// FromConversationID is the previous conversation identifier.
	FromConversationID string
	// ToConversationID is the replacement conversation identifier.
	ToConversationID string
	// Reason carries optional platform context for the migration.
	Reason string
}

// Validate checks event envelope and payload coherence.
func (e *Event) Validate() error {
	if e == nil {
		return fmt.Errorf("%w: nil event", ErrInvalidEvent)
	}
	if e.ID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidEvent)
	}
	if e.Kind == "" {
		return fmt.Errorf("%w: missing kind", ErrInvalidEvent)
	}
	if e.OccurredAt.IsZero() {
		return fmt.Errorf("%w: missing occurred_at", ErrInvalidEvent)
	}
	if e.Conversation.ID == "" {
		return fmt.Errorf("%w: missing conversation id", ErrInvalidEvent)
	}

	return validatePayloadByKind(e)
}

// validatePayloadByKind enforces payload branch requirements for each event kind.
func validatePayloadByKind(e *Event) error {
	switch e.Kind {
	case EventKindMessageCreated:
		if e.Message == nil {
			return fmt.Errorf("%w: message.created requires message payload", ErrInvalidEvent)
		}
	case EventKindCommandReceived:
		if e.Command == nil {
			return fmt.Errorf("%w: command event requires command payload", ErrInvalidEvent)
		}
		if e.Message == nil {
			return fmt.Errorf("%w: command event requires source message payload", ErrInvalidEvent)
		}
	case EventKindMemberJoined, EventKindMemberLeft, EventKindChatMigrated:
		if e.StateChange == nil {
			return fmt.Errorf("%w: state event requires state payload", ErrInvalidEvent)
		}
	default:
		return fmt.Errorf("%w: unsupported kind %q", ErrInvalidEvent, e.Kind)
	}

	return nil
}
