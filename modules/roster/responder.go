package roster

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"muster/pkg/muster"
)

// handleMessage routes group messages between the tracker and the responder.
//
// A message that contains the bot's own handle triggers the tag list reply;
// every other plain message records its author in the roster.
func (m *Module) handleMessage(ctx context.Context, event *muster.Event) error {
	if event == nil || event.Message == nil {
		return nil
	}
	if !event.Conversation.IsGroup() {
		return nil
	}
	text := event.Message.Text
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if _, matched, _ := muster.ParseCommandCandidate(text); matched {
		// Commands are dispatched as their own events.
		return nil
	}

	handle, err := m.selfHandle()
	switch {
	case err == nil:
		if containsMention(text, handle) {
			return m.respond(ctx, event, handle)
		}
	case errors.Is(err, muster.ErrIdentityUnavailable):
		// Keep tracking until authentication completes.
	default:
		m.logger.WarnContext(ctx, "resolve own handle", slog.String("error", err.Error()))
	}

	return m.track(ctx, event.Conversation, event.Actor)
}

// handleCommand replies to /start and /help with the usage greeting.
func (m *Module) handleCommand(ctx context.Context, event *muster.Event) error {
	if event == nil || event.Command == nil {
		return nil
	}
	switch event.Command.Name {
	case startCommandName, helpCommandName:
	default:
		return nil
	}
	if event.Command.Mention != "" {
		handle, err := m.selfHandle()
		if err != nil || !event.Command.AddressedTo(handle) {
			return nil
		}
	}

	target, err := muster.OutboundTargetFromEvent(event)
	if err != nil {
		return err
	}
	if err := m.sendReply(ctx, event, target, greetingText); err != nil {
		return fmt.Errorf("send greeting for /%s: %w", event.Command.Name, err)
	}

	return nil
}

// respond sends the tag list for the conversation the mention came from.
//
// Delivery failures are reported to the chat with a generic notice and never
// bubble up, so one failed send cannot wedge the subscription.
func (m *Module) respond(ctx context.Context, event *muster.Event, selfHandle string) error {
	target, err := muster.OutboundTargetFromEvent(event)
	if err != nil {
		return err
	}

	tags, err := m.tagCandidates(ctx, event.Conversation, selfHandle)
	if err != nil {
		m.logger.ErrorContext(ctx, "collect tag candidates",
			slog.String("chat_id", event.Conversation.ID),
			slog.String("error", err.Error()),
		)
		m.reportFailure(ctx, event, target)

		return nil
	}

	if len(tags) == 0 {
		if err := m.sendReply(ctx, event, target, emptyRosterText); err != nil {
			m.logger.ErrorContext(ctx, "send empty roster notice",
				slog.String("chat_id", event.Conversation.ID),
				slog.String("error", err.Error()),
			)
		}

		return nil
	}

	chunks := chunkLines(tags, m.chunkLimit)
	for index, chunk := range chunks {
		if index > 0 {
			m.sleep(ctx, m.sendDelay)
		}
		if err := m.sendReply(ctx, event, target, chunk); err != nil {
			m.logger.ErrorContext(ctx, "send tag list chunk",
				slog.String("chat_id", event.Conversation.ID),
				slog.Int("chunk", index),
				slog.String("error", err.Error()),
			)
			m.reportFailure(ctx, event, target)

			return nil
		}
	}

	m.logger.InfoContext(ctx, "tagged group members",
		slog.String("chat_id", event.Conversation.ID),
		slog.Int("members", len(tags)),
		slog.Int("chunks", len(chunks)),
	)

	return nil
}

// tagCandidates collects the handles to tag for one conversation.
//
// Stored members come first; the administrator fallback only applies when the
// roster has nothing usable. The bot's own handle is never included.
func (m *Module) tagCandidates(ctx context.Context, conversation muster.Conversation, selfHandle string) ([]string, error) {
	stored, err := m.store.Members(conversation.ID)
	if err != nil {
		return nil, err
	}

	tags := make([]string, 0, len(stored))
	for _, username := range stored {
		if strings.EqualFold(username, selfHandle) {
			continue
		}
		tags = append(tags, "@"+username)
	}
	if len(tags) > 0 {
		return tags, nil
	}

	administrators, err := m.directory.ListAdministrators(ctx, conversation)
	if err != nil {
		return nil, fmt.Errorf("list chat administrators: %w", err)
	}
	for _, administrator := range administrators {
		if administrator.IsBot || administrator.Username == "" {
			continue
		}
		if strings.EqualFold(administrator.Username, selfHandle) {
			continue
		}
		tags = append(tags, "@"+administrator.Username)
	}

	return tags, nil
}

// sendReply sends text to the target, threaded onto the originating message.
func (m *Module) sendReply(ctx context.Context, event *muster.Event, target muster.OutboundTarget, text string) error {
	request := muster.SendMessageRequest{
		Target: target,
		Text:   text,
	}
	if event.Message != nil {
		request.ReplyToMessageID = event.Message.ID
		request.ThreadID = event.Message.ThreadID
	}

	_, err := m.dispatcher.SendMessage(ctx, request)

	return err
}

// reportFailure posts the generic failure notice, logging when even that fails.
func (m *Module) reportFailure(ctx context.Context, event *muster.Event, target muster.OutboundTarget) {
	if err := m.sendReply(ctx, event, target, tagFailureText); err != nil {
		m.logger.ErrorContext(ctx, "send tag failure notice",
			slog.String("chat_id", event.Conversation.ID),
			slog.String("error", err.Error()),
		)
	}
}

// containsMention reports whether text mentions the given handle, matching
// the platform behavior of case-insensitive plain-text mentions.
func containsMention(text string, handle string) bool {
	return strings.Contains(strings.ToLower(text), strings.ToLower(handle))
}
