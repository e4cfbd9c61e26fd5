package telegram

import (
	"context"
	"fmt"
	"time"

	"muster/pkg/muster"

	gotdtelegram "github.com/gotd/td/telegram"
	"github.com/gotd/td/tg"
)

const defaultDirectoryAdminLimit = 100

// DirectoryOption mutates chat directory configuration.
type DirectoryOption func(*directoryConfig)

// WithDirectoryTimeout configures a timeout bound for each directory RPC call.
func WithDirectoryTimeout(timeout time.Duration) DirectoryOption {
	return func(cfg *directoryConfig) {
		if timeout > 0 {
			cfg.rpcTimeout = timeout
		}
	}
}

// ChatDirectory answers conversation membership queries via Telegram RPC.
type ChatDirectory struct {
	cfg      directoryConfig
	peers    *PeerCache
	telegram directoryRPC
}

type directoryConfig struct {
	rpcTimeout time.Duration
}

// NewChatDirectory creates a Telegram chat directory using gotd client APIs.
func NewChatDirectory(
	client *gotdtelegram.Client,
	peers *PeerCache,
	options ...DirectoryOption,
) (*ChatDirectory, error) {
	if client == nil {
		return nil, fmt.Errorf("new telegram chat directory: nil client")
	}

	return newChatDirectoryWithRPC(gotdDirectoryRPC{raw: client.API()}, peers, options...)
}

func newChatDirectoryWithRPC(
	rpc directoryRPC,
	peers *PeerCache,
	options ...DirectoryOption,
) (*ChatDirectory, error) {
	if rpc == nil {
		return nil, fmt.Errorf("new telegram chat directory: nil rpc adapter")
	}
	if peers == nil {
		return nil, fmt.Errorf("new telegram chat directory: nil peer cache")
	}

	cfg := directoryConfig{
		rpcTimeout: defaultOutboundTimeout,
	}
	for _, option := range options {
		option(&cfg)
	}

	return &ChatDirectory{
		cfg:      cfg,
		peers:    peers,
		telegram: rpc,
	}, nil
}

// ListAdministrators returns the administrators of a conversation.
//
// Supergroups and channels are queried through the participant filter API.
// Basic groups fall back to the full-chat participant list.
func (d *ChatDirectory) ListAdministrators(
	ctx context.Context,
	conversation muster.Conversation,
) ([]muster.Actor, error) {
	peer, err := d.peers.Resolve(conversation)
	if err != nil {
		return nil, fmt.Errorf("list administrators resolve peer: %w", err)
	}

	rpcCtx, cancel := d.withTimeout(ctx)
	defer cancel()

	switch typed := peer.(type) {
	case *tg.InputPeerChannel:
		return d.listChannelAdministrators(rpcCtx, &tg.InputChannel{
			ChannelID:  typed.ChannelID,
			AccessHash: typed.AccessHash,
		})
	case *tg.InputPeerChat:
		return d.listChatAdministrators(rpcCtx, typed.ChatID)
	default:
		return nil, fmt.Errorf(
			"list administrators for %s/%s: %w: no administrator roster",
			conversation.Type,
			conversation.ID,
			muster.ErrOutboundUnsupported,
		)
	}
}

func (d *ChatDirectory) listChannelAdministrators(
	ctx context.Context,
	channel *tg.InputChannel,
) ([]muster.Actor, error) {
	participants, err := d.telegram.ChannelAdministrators(ctx, channel, defaultDirectoryAdminLimit)
	if err != nil {
		return nil, fmt.Errorf("list channel administrators: %w", err)
	}
	if participants == nil {
		return nil, nil
	}

	envelope := gotdUpdateEnvelope{usersByID: indexGotdUsers(participants.Users)}
	admins := make([]muster.Actor, 0, len(participants.Participants))
	for _, participant := range participants.Participants {
		userID, ok := channelParticipantUserID(participant)
		if !ok {
			continue
		}
		admins = append(admins, mapActor(resolveActorByUserID(userID, envelope)))
	}

	return admins, nil
}

func (d *ChatDirectory) listChatAdministrators(ctx context.Context, chatID int64) ([]muster.Actor, error) {
	full, err := d.telegram.ChatFull(ctx, chatID)
	if err != nil {
		return nil, fmt.Errorf("list chat administrators: %w", err)
	}
	if full == nil {
		return nil, nil
	}

	chatFull, ok := full.FullChat.(*tg.ChatFull)
	if !ok {
		return nil, nil
	}
	participants, ok := chatFull.Participants.(*tg.ChatParticipants)
	if !ok {
		return nil, nil
	}

	envelope := gotdUpdateEnvelope{usersByID: indexGotdUsers(full.Users)}
	admins := make([]muster.Actor, 0, len(participants.Participants))
	for _, participant := range participants.Participants {
		switch typed := participant.(type) {
		case *tg.ChatParticipantCreator:
			admins = append(admins, mapActor(resolveActorByUserID(typed.UserID, envelope)))
		case *tg.ChatParticipantAdmin:
			admins = append(admins, mapActor(resolveActorByUserID(typed.UserID, envelope)))
		}
	}

	return admins, nil
}

func (d *ChatDirectory) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if d.cfg.rpcTimeout <= 0 {
		return ctx, func() {}
	}

	return context.WithTimeout(ctx, d.cfg.rpcTimeout)
}

func channelParticipantUserID(participant tg.ChannelParticipantClass) (int64, bool) {
	switch typed := participant.(type) {
	case *tg.ChannelParticipantCreator:
		return typed.UserID, true
	case *tg.ChannelParticipantAdmin:
		return typed.UserID, true
	default:
		return 0, false
	}
}

type directoryRPC interface {
	ChannelAdministrators(ctx context.Context, channel *tg.InputChannel, limit int) (*tg.ChannelsChannelParticipants, error)
	ChatFull(ctx context.Context, chatID int64) (*tg.MessagesChatFull, error)
}

type gotdDirectoryRPC struct {
	raw *tg.Client
}

func (r gotdDirectoryRPC) ChannelAdministrators(
	ctx context.Context,
	channel *tg.InputChannel,
	limit int,
) (*tg.ChannelsChannelParticipants, error) {
	result, err := r.raw.ChannelsGetParticipants(ctx, &tg.ChannelsGetParticipantsRequest{
		Channel: channel,
		Filter:  &tg.ChannelParticipantsAdmins{},
		Limit:   limit,
	})
	if err != nil {
		return nil, fmt.Errorf("channels get participants: %w", err)
	}

	participants, ok := result.(*tg.ChannelsChannelParticipants)
	if !ok {
		return nil, nil
	}

	return participants, nil
}

func (r gotdDirectoryRPC) ChatFull(ctx context.Context, chatID int64) (*tg.MessagesChatFull, error) {
	full, err := r.raw.MessagesGetFullChat(ctx, chatID)
	if err != nil {
		return nil, fmt.Errorf("messages get full chat: %w", err)
	}

	return full, nil
}
