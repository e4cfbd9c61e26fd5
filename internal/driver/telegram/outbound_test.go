package telegram

import (
	"context"
	"errors"
	"strings"
	"testing"

	"muster/pkg/muster"

	"github.com/gotd/td/tg"
)

func newTestPeerCache(t *testing.T) *PeerCache {
	t.Helper()

	cache := NewPeerCache()
	cache.RememberConversation(
		ChatRef{ID: "100", Type: muster.ConversationTypeGroup},
		&tg.InputPeerChat{ChatID: 100},
	)
	cache.RememberConversation(
		ChatRef{ID: "200", Type: muster.ConversationTypeGroup},
		&tg.InputPeerChannel{ChannelID: 200, AccessHash: 2020},
	)
	cache.RememberConversation(
		ChatRef{ID: "42", Type: muster.ConversationTypePrivate},
		&tg.InputPeerUser{UserID: 42, AccessHash: 4242},
	)

	return cache
}

func TestOutboundDispatcherSendMessage(t *testing.T) {
	t.Parallel()

	validTarget := muster.OutboundTarget{
		Conversation: muster.Conversation{
			ID:   "100",
			Type: muster.ConversationTypeGroup,
		},
	}

	tests := []struct {
		name          string
		request       muster.SendMessageRequest
		rpcErr        error
		wantErr       bool
		wantErrIs     error
		wantErrSubstr string
		wantID        string
	}{
		{
			name: "send succeeds",
			request: muster.SendMessageRequest{
				Target: validTarget,
				Text:   "hello",
			},
			wantID: "901",
		},
		{
			name: "send with reply and thread",
			request: muster.SendMessageRequest{
				Target:           validTarget,
				Text:             "hello",
				ReplyToMessageID: "700",
				ThreadID:         "5",
			},
			wantID: "901",
		},
		{
			name: "missing text is rejected",
			request: muster.SendMessageRequest{
				Target: validTarget,
			},
			wantErr:   true,
			wantErrIs: muster.ErrInvalidOutboundRequest,
		},
		{
			name: "unknown conversation is rejected",
			request: muster.SendMessageRequest{
				Target: muster.OutboundTarget{
					Conversation: muster.Conversation{
						ID:   "999",
						Type: muster.ConversationTypeGroup,
					},
				},
				Text: "hello",
			},
			wantErr:       true,
			wantErrSubstr: "resolve conversation 999",
		},
		{
			name: "foreign platform sink is rejected",
			request: muster.SendMessageRequest{
				Target: muster.OutboundTarget{
					Conversation: validTarget.Conversation,
					Sink: &muster.EventSink{
						Platform: muster.Platform("discord"),
						ID:       "main",
					},
				},
				Text: "hello",
			},
			wantErr:   true,
			wantErrIs: muster.ErrOutboundUnsupported,
		},
		{
			name: "rpc failure is wrapped",
			request: muster.SendMessageRequest{
				Target: validTarget,
				Text:   "hello",
			},
			rpcErr:        errors.New("FLOOD_WAIT"),
			wantErr:       true,
			wantErrSubstr: "send message to 100",
		},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			rpc := &stubOutboundRPC{sendID: 901, sendErr: testCase.rpcErr}
			dispatcher, err := newOutboundDispatcherWithRPC(rpc, newTestPeerCache(t))
			if err != nil {
				t.Fatalf("new dispatcher failed: %v", err)
			}

			sent, err := dispatcher.SendMessage(context.Background(), testCase.request)
			if testCase.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				if testCase.wantErrIs != nil && !errors.Is(err, testCase.wantErrIs) {
					t.Fatalf("error = %v, want errors.Is %v", err, testCase.wantErrIs)
				}
				if testCase.wantErrSubstr != "" && !strings.Contains(err.Error(), testCase.wantErrSubstr) {
					t.Fatalf("error = %v, want substring %q", err, testCase.wantErrSubstr)
				}
				return
			}
			if err != nil {
				t.Fatalf("send failed: %v", err)
			}
			if sent.ID != testCase.wantID {
				t.Fatalf("sent id = %s, want %s", sent.ID, testCase.wantID)
			}
			if rpc.lastRequest.Text != testCase.request.Text {
				t.Fatalf("rpc text = %q, want %q", rpc.lastRequest.Text, testCase.request.Text)
			}
		})
	}
}

func TestOutboundDispatcherSendMessageResolvesMigratedPeer(t *testing.T) {
	t.Parallel()

	// A megagroup remembered as a group must stay reachable through its
	// channel-typed conversation id after migration.
	rpc := &stubOutboundRPC{sendID: 902}
	dispatcher, err := newOutboundDispatcherWithRPC(rpc, newTestPeerCache(t))
	if err != nil {
		t.Fatalf("new dispatcher failed: %v", err)
	}

	sent, err := dispatcher.SendMessage(context.Background(), muster.SendMessageRequest{
		Target: muster.OutboundTarget{
			Conversation: muster.Conversation{
				ID:   "200",
				Type: muster.ConversationTypeChannel,
			},
		},
		Text: "post-migration",
	})
	if err != nil {
		t.Fatalf("send failed: %v", err)
	}
	if sent.ID != "902" {
		t.Fatalf("sent id = %s, want 902", sent.ID)
	}
	if _, ok := rpc.lastPeer.(*tg.InputPeerChannel); !ok {
		t.Fatalf("peer = %T, want *tg.InputPeerChannel", rpc.lastPeer)
	}
}

func TestGotdOutboundRPCReplyIDValidation(t *testing.T) {
	t.Parallel()

	if _, err := parseMessageID("abc"); !errors.Is(err, muster.ErrInvalidOutboundRequest) {
		t.Fatalf("error = %v, want ErrInvalidOutboundRequest", err)
	}
	if _, err := parseMessageID("0"); !errors.Is(err, muster.ErrInvalidOutboundRequest) {
		t.Fatalf("error = %v, want ErrInvalidOutboundRequest", err)
	}
	if id, err := parseMessageID(" 7 "); err != nil || id != 7 {
		t.Fatalf("id = %d err = %v, want 7", id, err)
	}
}

type stubOutboundRPC struct {
	sendID      int
	sendErr     error
	lastPeer    tg.InputPeerClass
	lastRequest muster.SendMessageRequest
}

func (s *stubOutboundRPC) SendText(
	_ context.Context,
	peer tg.InputPeerClass,
	request muster.SendMessageRequest,
) (int, error) {
	s.lastPeer = peer
	s.lastRequest = request
	if s.sendErr != nil {
		return 0, s.sendErr
	}

	return s.sendID, nil
}
