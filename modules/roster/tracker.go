package roster

import (
	"context"
	"fmt"
	"log/slog"

	"muster/pkg/muster"
)

// handleMemberJoined records newly joined members in the chat roster.
func (m *Module) handleMemberJoined(ctx context.Context, event *muster.Event) error {
	if event == nil || event.StateChange == nil || event.StateChange.Member == nil {
		return nil
	}

	return m.track(ctx, event.Conversation, event.StateChange.Member.Member)
}

// handleChatMigrated carries a roster over when Telegram upgrades a group to
// a supergroup and reassigns its chat ID.
func (m *Module) handleChatMigrated(ctx context.Context, event *muster.Event) error {
	if event == nil || event.StateChange == nil || event.StateChange.Migration == nil {
		return nil
	}
	migration := event.StateChange.Migration
	if migration.FromConversationID == "" || migration.ToConversationID == "" {
		return nil
	}

	moved, err := m.store.Rename(migration.FromConversationID, migration.ToConversationID)
	if err != nil {
		return fmt.Errorf("migrate roster from chat %s to %s: %w",
			migration.FromConversationID, migration.ToConversationID, err)
	}
	if moved {
		m.logger.InfoContext(ctx, "migrated member roster",
			slog.String("from_chat_id", migration.FromConversationID),
			slog.String("to_chat_id", migration.ToConversationID),
		)
	}

	return nil
}

// track stores one member handle for a group chat.
//
// Private chats, bot accounts, and members without a public username are
// ignored because none of them can appear in a tag list.
func (m *Module) track(ctx context.Context, conversation muster.Conversation, member muster.Actor) error {
	if !conversation.IsGroup() {
		return nil
	}
	if member.IsBot || member.Username == "" {
		return nil
	}

	added, err := m.store.Add(conversation.ID, member.Username)
	if err != nil {
		return fmt.Errorf("record member %s in chat %s: %w", member.Username, conversation.ID, err)
	}
	if added {
		m.logger.InfoContext(ctx, "recorded group member",
			slog.String("chat_id", conversation.ID),
			slog.String("username", member.Username),
		)
	}

	return nil
}
