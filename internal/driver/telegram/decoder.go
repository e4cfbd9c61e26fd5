package telegram

import (
	"context"
	"fmt"
	"time"

	"muster/pkg/muster"
)

// Decoder converts Telegram update DTOs into neutral muster events.
type Decoder interface {
	// Decode maps one adapter update into a validated neutral event envelope.
	Decode(ctx context.Context, update Update) (*muster.Event, error)
}

// DefaultDecoder provides default Telegram-to-muster mappings.
type DefaultDecoder struct{}

// NewDefaultDecoder creates a default decoder.
func NewDefaultDecoder() DefaultDecoder {
	return DefaultDecoder{}
}

// Decode converts a Telegram update into a neutral event.
func (d DefaultDecoder) Decode(_ context.Context, update Update) (*muster.Event, error) {
	event := newBaseEvent(update)

	switch update.Type {
	case UpdateTypeMessage:
		event.Kind = muster.EventKindMessageCreated
		message, err := decodeMessage(update.Message)
		if err != nil {
			return nil, fmt.Errorf("decode message: %w", err)
		}
		event.Message = message
	case UpdateTypeMemberJoin, UpdateTypeMemberLeave:
		event.Kind = mapMembershipKind(update.Type)
		stateChange, err := decodeMember(update.Type, update.Member)
		if err != nil {
			return nil, fmt.Errorf("decode member update: %w", err)
		}
		event.StateChange = stateChange
	case UpdateTypeMigration:
		event.Kind = muster.EventKindChatMigrated
		stateChange, err := decodeMigration(update.Migration)
		if err != nil {
			return nil, fmt.Errorf("decode migration: %w", err)
		}
		event.StateChange = stateChange
	default:
		return nil, fmt.Errorf("decode update %s: unsupported type", update.Type)
	}

	if err := event.Validate(); err != nil {
		return nil, fmt.Errorf("decode update %s: %w", update.Type, err)
	}

	return event, nil
}

// newBaseEvent builds the shared envelope fields used by all update mappings.
func newBaseEvent(update Update) *muster.Event {
	occurredAt := update.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}

	return &muster.Event{
		ID:         update.ID,
		OccurredAt: occurredAt,
		Platform:   muster.PlatformTelegram,
		Conversation: muster.Conversation{
			ID:    update.Chat.ID,
			Type:  update.Chat.Type,
			Title: update.Chat.Title,
		},
		Actor: muster.Actor{
			ID:          update.Actor.ID,
			Username:    update.Actor.Username,
			DisplayName: update.Actor.DisplayName,
			IsBot:       update.Actor.IsBot,
		},
		Metadata: update.Metadata,
	}
}

// decodeMessage maps Telegram message payload into neutral message content.
func decodeMessage(payload *MessagePayload) (*muster.Message, error) {
	if payload == nil {
		return nil, fmt.Errorf("missing message payload")
	}

	return &muster.Message{
		ID:        payload.ID,
		ThreadID:  payload.ThreadID,
		ReplyToID: payload.ReplyToID,
		Text:      payload.Text,
	}, nil
}

// decodeMember maps join/leave transitions into neutral member state changes.
func decodeMember(updateType UpdateType, payload *MemberPayload) (*muster.StateChange, error) {
	if payload == nil {
		return nil, fmt.Errorf("missing member payload")
	}

	var inviter *muster.Actor
	if payload.Inviter != nil {
		inviter = &muster.Actor{
			ID:          payload.Inviter.ID,
			Username:    payload.Inviter.Username,
			DisplayName: payload.Inviter.DisplayName,
			IsBot:       payload.Inviter.IsBot,
		}
	}

	return &muster.StateChange{
		Type: muster.StateChangeTypeMember,
		Member: &muster.MemberChange{
			Action:   mapMembershipKind(updateType),
			Member:   mapActor(payload.Member),
			Inviter:  inviter,
			Reason:   payload.Reason,
			JoinedAt: payload.JoinedAt,
		},
	}, nil
}

// decodeMigration maps Telegram chat migrations into neutral migration state changes.
func decodeMigration(payload *MigrationPayload) (*muster.StateChange, error) {
	if payload == nil {
		return nil, fmt.Errorf("missing migration payload")
	}

	return &muster.StateChange{
		Type: muster.StateChangeTypeMigration,
		Migration: &muster.ChatMigration{
			FromConversationID: payload.FromChatID,
			ToConversationID:   payload.ToChatID,
			Reason:             payload.Reason,
		},
	}, nil
}

// mapMembershipKind derives neutral kind from Telegram membership update type.
func mapMembershipKind(updateType UpdateType) muster.EventKind {
	if updateType == UpdateTypeMemberLeave {
		return muster.EventKindMemberLeft
	}

	return muster.EventKindMemberJoined
}

// mapActor converts adapter actor references to neutral actor values.
func mapActor(actor ActorRef) muster.Actor {
	return muster.Actor{
		ID:          actor.ID,
		Username:    actor.Username,
		DisplayName: actor.DisplayName,
		IsBot:       actor.IsBot,
	}
}
