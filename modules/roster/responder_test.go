package roster

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"muster/pkg/muster"
)

func seedMembers(t *testing.T, module *Module, chatID string, usernames ...string) {
	t.Helper()

	for _, username := range usernames {
		if _, err := module.store.Add(chatID, username); err != nil {
			t.Fatalf("seed member %s failed: %v", username, err)
		}
	}
}

func TestHandleMessageMentionTagsMembers(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{name: "plain mention", text: "@musterbot"},
		{name: "mention inside sentence", text: "hey @musterbot, tag everyone please"},
		{name: "mention with different case", text: "Hey @MusterBot!"},
		{name: "bare handle without at sign", text: "musterbot, who is here?"},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			module, dispatcher, _ := newTestModule(t)
			seedMembers(t, module, "chat-1", "alice", "bob")

			event := newGroupMessageEvent("evt-1", "chat-1", testCase.text, muster.Actor{ID: "42", Username: "carol"})
			if err := module.handleMessage(context.Background(), event); err != nil {
				t.Fatalf("handle message failed: %v", err)
			}

			sent := dispatcher.sent()
			if len(sent) != 1 {
				t.Fatalf("sent = %d messages, want 1", len(sent))
			}
			if sent[0].Text != "@alice\n@bob" {
				t.Fatalf("text = %q, want %q", sent[0].Text, "@alice\n@bob")
			}
			if sent[0].ReplyToMessageID != event.Message.ID {
				t.Fatalf("reply id = %q, want %q", sent[0].ReplyToMessageID, event.Message.ID)
			}
			if sent[0].Target.Conversation.ID != "chat-1" {
				t.Fatalf("target chat = %q, want chat-1", sent[0].Target.Conversation.ID)
			}
		})
	}
}

func TestHandleMessageMentionSkipsOwnHandle(t *testing.T) {
	t.Parallel()

	module, dispatcher, _ := newTestModule(t)
	seedMembers(t, module, "chat-1", "alice", testSelfHandle, "bob")

	event := newGroupMessageEvent("evt-1", "chat-1", "@musterbot", muster.Actor{ID: "42", Username: "carol"})
	if err := module.handleMessage(context.Background(), event); err != nil {
		t.Fatalf("handle message failed: %v", err)
	}

	sent := dispatcher.sent()
	if len(sent) != 1 {
		t.Fatalf("sent = %d messages, want 1", len(sent))
	}
	if strings.Contains(sent[0].Text, testSelfHandle) {
		t.Fatalf("tag list %q contains own handle", sent[0].Text)
	}
}

func TestHandleMessageMentionThreadsReply(t *testing.T) {
	t.Parallel()

	module, dispatcher, _ := newTestModule(t)
	seedMembers(t, module, "chat-1", "alice")

	event := newGroupMessageEvent("evt-1", "chat-1", "@musterbot", muster.Actor{ID: "42", Username: "carol"})
	event.Message.ThreadID = "77"
	if err := module.handleMessage(context.Background(), event); err != nil {
		t.Fatalf("handle message failed: %v", err)
	}

	sent := dispatcher.sent()
	if len(sent) != 1 {
		t.Fatalf("sent = %d messages, want 1", len(sent))
	}
	if sent[0].ThreadID != "77" {
		t.Fatalf("thread id = %q, want 77", sent[0].ThreadID)
	}
}

func TestHandleMessageMentionAdminFallback(t *testing.T) {
	t.Parallel()

	module, dispatcher, directory := newTestModule(t)
	directory.administrators = []muster.Actor{
		{ID: "1", Username: testSelfHandle, IsBot: true},
		{ID: "2", Username: "owner"},
		{ID: "3", DisplayName: "No Handle"},
		{ID: "4", Username: "helperbot", IsBot: true},
		{ID: "5", Username: "moderator"},
	}

	event := newGroupMessageEvent("evt-1", "chat-1", "@musterbot", muster.Actor{ID: "42", Username: "carol"})
	if err := module.handleMessage(context.Background(), event); err != nil {
		t.Fatalf("handle message failed: %v", err)
	}

	sent := dispatcher.sent()
	if len(sent) != 1 {
		t.Fatalf("sent = %d messages, want 1", len(sent))
	}
	if sent[0].Text != "@owner\n@moderator" {
		t.Fatalf("text = %q, want %q", sent[0].Text, "@owner\n@moderator")
	}
}

func TestHandleMessageMentionPrefersStoredMembers(t *testing.T) {
	t.Parallel()

	module, dispatcher, directory := newTestModule(t)
	seedMembers(t, module, "chat-1", "alice")
	directory.administrators = []muster.Actor{{ID: "2", Username: "owner"}}

	event := newGroupMessageEvent("evt-1", "chat-1", "@musterbot", muster.Actor{ID: "42", Username: "carol"})
	if err := module.handleMessage(context.Background(), event); err != nil {
		t.Fatalf("handle message failed: %v", err)
	}

	sent := dispatcher.sent()
	if len(sent) != 1 || sent[0].Text != "@alice" {
		t.Fatalf("sent = %v, want single @alice tag list", sent)
	}
	if directory.calls != 0 {
		t.Fatalf("directory calls = %d, want 0", directory.calls)
	}
}

func TestHandleMessageMentionEmptyRosterNotice(t *testing.T) {
	t.Parallel()

	module, dispatcher, directory := newTestModule(t)
	directory.administrators = []muster.Actor{
		{ID: "4", Username: "helperbot", IsBot: true},
		{ID: "3", DisplayName: "No Handle"},
	}

	event := newGroupMessageEvent("evt-1", "chat-1", "@musterbot", muster.Actor{ID: "42", Username: "carol"})
	if err := module.handleMessage(context.Background(), event); err != nil {
		t.Fatalf("handle message failed: %v", err)
	}

	sent := dispatcher.sent()
	if len(sent) != 1 {
		t.Fatalf("sent = %d messages, want 1", len(sent))
	}
	if sent[0].Text != emptyRosterText {
		t.Fatalf("text = %q, want empty roster notice", sent[0].Text)
	}
}

func TestHandleMessageMentionChunksLongLists(t *testing.T) {
	t.Parallel()

	var delays []time.Duration
	module, dispatcher, _ := newTestModule(t,
		WithChunkLimit(14),
		WithSendDelay(time.Second),
		withSleep(func(_ context.Context, delay time.Duration) {
			delays = append(delays, delay)
		}),
	)
	seedMembers(t, module, "chat-1", "alice", "bob", "carol", "dave")

	event := newGroupMessageEvent("evt-1", "chat-1", "@musterbot", muster.Actor{ID: "42", Username: "eve"})
	if err := module.handleMessage(context.Background(), event); err != nil {
		t.Fatalf("handle message failed: %v", err)
	}

	sent := dispatcher.sent()
	wantChunks := []string{"@alice\n@bob", "@carol\n@dave"}
	if len(sent) != len(wantChunks) {
		t.Fatalf("sent = %d messages, want %d", len(sent), len(wantChunks))
	}
	for index, want := range wantChunks {
		if sent[index].Text != want {
			t.Fatalf("chunk %d = %q, want %q", index, sent[index].Text, want)
		}
		if sent[index].ReplyToMessageID != event.Message.ID {
			t.Fatalf("chunk %d not threaded to source message", index)
		}
	}

	wantDelays := []time.Duration{time.Second}
	if diff := cmp.Diff(wantDelays, delays); diff != "" {
		t.Fatalf("delays mismatch (-want +got):\n%s", diff)
	}
}

func TestHandleMessageMentionSendFailure(t *testing.T) {
	t.Parallel()

	module, dispatcher, _ := newTestModule(t)
	dispatcher.sendErr = errors.New("flood wait")
	dispatcher.failAt = 1
	seedMembers(t, module, "chat-1", "alice")

	event := newGroupMessageEvent("evt-1", "chat-1", "@musterbot", muster.Actor{ID: "42", Username: "carol"})
	if err := module.handleMessage(context.Background(), event); err != nil {
		t.Fatalf("handle message should swallow send errors, got: %v", err)
	}

	sent := dispatcher.sent()
	if len(sent) != 2 {
		t.Fatalf("sent = %d messages, want tag attempt plus failure notice", len(sent))
	}
	if sent[1].Text != tagFailureText {
		t.Fatalf("notice = %q, want failure notice", sent[1].Text)
	}
}

func TestHandleMessageMentionDirectoryFailure(t *testing.T) {
	t.Parallel()

	module, dispatcher, directory := newTestModule(t)
	directory.listErr = errors.New("rpc timeout")

	event := newGroupMessageEvent("evt-1", "chat-1", "@musterbot", muster.Actor{ID: "42", Username: "carol"})
	if err := module.handleMessage(context.Background(), event); err != nil {
		t.Fatalf("handle message should swallow directory errors, got: %v", err)
	}

	sent := dispatcher.sent()
	if len(sent) != 1 {
		t.Fatalf("sent = %d messages, want 1", len(sent))
	}
	if sent[0].Text != tagFailureText {
		t.Fatalf("text = %q, want failure notice", sent[0].Text)
	}
}

func TestHandleMessageIdentityUnavailableStillTracks(t *testing.T) {
	t.Parallel()

	module, dispatcher, _ := newTestModule(t)
	module.identity = stubIdentity{selfErr: muster.ErrIdentityUnavailable}

	event := newGroupMessageEvent("evt-1", "chat-1", "@musterbot", muster.Actor{ID: "42", Username: "carol"})
	if err := module.handleMessage(context.Background(), event); err != nil {
		t.Fatalf("handle message failed: %v", err)
	}

	if sent := dispatcher.sent(); len(sent) != 0 {
		t.Fatalf("unexpected outbound messages: %v", sent)
	}
	members, err := module.store.Members("chat-1")
	if err != nil {
		t.Fatalf("members failed: %v", err)
	}
	if diff := cmp.Diff([]string{"carol"}, members); diff != "" {
		t.Fatalf("members mismatch (-want +got):\n%s", diff)
	}
}

func TestHandleMessageCachesSelfHandle(t *testing.T) {
	t.Parallel()

	module, dispatcher, _ := newTestModule(t)
	seedMembers(t, module, "chat-1", "alice")

	event := newGroupMessageEvent("evt-1", "chat-1", "@musterbot", muster.Actor{ID: "42", Username: "carol"})
	if err := module.handleMessage(context.Background(), event); err != nil {
		t.Fatalf("handle message failed: %v", err)
	}

	// The identity service must not be needed after the first resolution.
	module.identity = stubIdentity{selfErr: errors.New("gone")}
	if err := module.handleMessage(context.Background(), event); err != nil {
		t.Fatalf("second handle message failed: %v", err)
	}

	if sent := dispatcher.sent(); len(sent) != 2 {
		t.Fatalf("sent = %d messages, want 2", len(sent))
	}
}

func TestHandleCommandGreets(t *testing.T) {
	tests := []struct {
		name     string
		event    *muster.Event
		wantSent bool
	}{
		{
			name:     "start in private chat",
			event:    newCommandEvent(startCommandName, "", muster.ConversationTypePrivate),
			wantSent: true,
		},
		{
			name:     "help in group chat",
			event:    newCommandEvent(helpCommandName, "", muster.ConversationTypeGroup),
			wantSent: true,
		},
		{
			name:     "start addressed to this bot",
			event:    newCommandEvent(startCommandName, testSelfHandle, muster.ConversationTypeGroup),
			wantSent: true,
		},
		{
			name:     "start addressed to this bot case-insensitively",
			event:    newCommandEvent(startCommandName, "MusterBot", muster.ConversationTypeGroup),
			wantSent: true,
		},
		{
			name:  "start addressed to another bot",
			event: newCommandEvent(startCommandName, "otherbot", muster.ConversationTypeGroup),
		},
		{
			name:  "unrelated command",
			event: newCommandEvent("settings", "", muster.ConversationTypePrivate),
		},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			module, dispatcher, _ := newTestModule(t)
			if err := module.handleCommand(context.Background(), testCase.event); err != nil {
				t.Fatalf("handle command failed: %v", err)
			}

			sent := dispatcher.sent()
			if !testCase.wantSent {
				if len(sent) != 0 {
					t.Fatalf("unexpected outbound messages: %v", sent)
				}
				return
			}
			if len(sent) != 1 {
				t.Fatalf("sent = %d messages, want 1", len(sent))
			}
			if sent[0].Text != greetingText {
				t.Fatalf("text = %q, want greeting", sent[0].Text)
			}
			if sent[0].ReplyToMessageID != testCase.event.Message.ID {
				t.Fatalf("reply id = %q, want %q", sent[0].ReplyToMessageID, testCase.event.Message.ID)
			}
		})
	}
}

func TestHandleCommandMentionWithoutIdentity(t *testing.T) {
	t.Parallel()

	module, dispatcher, _ := newTestModule(t)
	module.identity = stubIdentity{selfErr: muster.ErrIdentityUnavailable}

	event := newCommandEvent(startCommandName, "somebot", muster.ConversationTypeGroup)
	if err := module.handleCommand(context.Background(), event); err != nil {
		t.Fatalf("handle command failed: %v", err)
	}
	if sent := dispatcher.sent(); len(sent) != 0 {
		t.Fatalf("unexpected outbound messages: %v", sent)
	}
}
