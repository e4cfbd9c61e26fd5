package telegram

import (
	"time"

	"muster/pkg/muster"
)

// UpdateType identifies the Telegram update semantic category.
type UpdateType string

const (
	// UpdateTypeMessage identifies new message updates.
	UpdateTypeMessage UpdateType = "message"
	// UpdateTypeMemberJoin identifies member join updates.
	UpdateTypeMemberJoin UpdateType = "member_join"
	// UpdateTypeMemberLeave identifies member leave updates.
	UpdateTypeMemberLeave UpdateType = "member_leave"
	// UpdateTypeMigration identifies chat migration updates.
	UpdateTypeMigration UpdateType = "migration"
)

// Update is the Telegram adapter's internal DTO before neutral decoding.
type Update struct {
	ID         string
	Type       UpdateType
	OccurredAt time.Time
	Chat       ChatRef
	Actor      ActorRef
	Message    *MessagePayload
	Member     *MemberPayload
	Migration  *MigrationPayload
	Metadata   map[string]string
}

// ChatRef identifies Telegram chat context.
type ChatRef struct {
	ID    string
	Title string
	Type  muster.ConversationType
}

// ActorRef identifies Telegram actor context.
type ActorRef struct {
	ID          string
	Username    string
	DisplayName string
	IsBot       bool
}

// MessagePayload represents a Telegram message projection.
type MessagePayload struct {
	ID        string
	ThreadID  string
	ReplyToID string
	Text      string
}

// MemberPayload captures join/leave transitions.
type MemberPayload struct {
	Member   ActorRef
	Inviter  *ActorRef
	Reason   string
	JoinedAt time.Time
}

// MigrationPayload captures Telegram chat migration metadata.
type MigrationPayload struct {
	FromChatID string
	ToChatID   string
	Reason     string
}
