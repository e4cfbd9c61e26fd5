package muster

import (
	"errors"
	"testing"
	"time"
)

func validMessageEvent() *Event {
	return &Event{
		ID:         "evt-1",
		Kind:       EventKindMessageCreated,
		OccurredAt: time.Unix(1700000000, 0),
		Platform:   PlatformTelegram,
		Source:     EventSource{Platform: PlatformTelegram, ID: "tg-main"},
		Conversation: Conversation{
			ID:   "-1001",
			Type: ConversationTypeGroup,
		},
		Actor:   Actor{ID: "42", Username: "alice"},
		Message: &Message{ID: "100", Text: "hello"},
	}
}

func TestEventValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(event *Event)
		wantErr bool
	}{
		{
			name:    "valid message event passes",
			mutate:  func(event *Event) {},
			wantErr: false,
		},
		{
			name: "missing id fails",
			mutate: func(event *Event) {
				event.ID = ""
			},
			wantErr: true,
		},
		{
			name: "missing kind fails",
			mutate: func(event *Event) {
				event.Kind = ""
			},
			wantErr: true,
		},
		{
			name: "missing occurred_at fails",
			mutate: func(event *Event) {
				event.OccurredAt = time.Time{}
			},
			wantErr: true,
		},
		{
			name: "missing conversation id fails",
			mutate: func(event *Event) {
				event.Conversation.ID = ""
			},
			wantErr: true,
		},
		{
			name: "message event without message fails",
			mutate: func(event *Event) {
				event.Message = nil
			},
			wantErr: true,
		},
		{
			name: "command event without command payload fails",
			mutate: func(event *Event) {
				event.Kind = EventKindCommandReceived
			},
			wantErr: true,
		},
		{
			name: "command event with both payloads passes",
			mutate: func(event *Event) {
				event.Kind = EventKindCommandReceived
				event.Command = &CommandInvocation{
					Name:            "start",
					SourceEventID:   "evt-0",
					SourceEventKind: EventKindMessageCreated,
				}
			},
			wantErr: false,
		},
		{
			name: "member event without state change fails",
			mutate: func(event *Event) {
				event.Kind = EventKindMemberJoined
				event.Message = nil
			},
			wantErr: true,
		},
		{
			name: "member event with state change passes",
			mutate: func(event *Event) {
				event.Kind = EventKindMemberJoined
				event.Message = nil
				event.StateChange = &StateChange{
					Type: StateChangeTypeMember,
					Member: &MemberChange{
						Action: EventKindMemberJoined,
						Member: Actor{ID: "43", Username: "bob"},
					},
				}
			},
			wantErr: false,
		},
		{
			name: "unknown kind fails",
			mutate: func(event *Event) {
				event.Kind = "message.exploded"
			},
			wantErr: true,
		},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			event := validMessageEvent()
			testCase.mutate(event)

			err := event.Validate()
			if testCase.wantErr {
				if !errors.Is(err, ErrInvalidEvent) {
					t.Fatalf("err = %v, want ErrInvalidEvent", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("validate: %v", err)
			}
		})
	}
}

func TestEventValidateNil(t *testing.T) {
	t.Parallel()

	var event *Event
	if err := event.Validate(); !errors.Is(err, ErrInvalidEvent) {
		t.Fatalf("err = %v, want ErrInvalidEvent", err)
	}
}

func TestConversationIsGroup(t *testing.T) {
	t.Parallel()

	if !(Conversation{Type: ConversationTypeGroup}).IsGroup() {
		t.Fatal("group conversation should report IsGroup")
	}
	if (Conversation{Type: ConversationTypePrivate}).IsGroup() {
		t.Fatal("private conversation should not report IsGroup")
	}
}
