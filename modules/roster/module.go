// Package roster records group member handles and tags them on request.
//
// The module listens to group traffic, persists every poster's username in a
// JSON-backed store, and replies with a full tag list whenever someone
// mentions the bot's own handle. When the roster for a chat is still empty it
// falls back to tagging the chat administrators.
package roster

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"muster/pkg/muster"
)

const moduleName = "roster"

const (
	startCommandName = "start"
	helpCommandName  = "help"
)

const (
	defaultChunkLimit = 4000
	defaultSendDelay  = time.Second
)

const (
	greetingText    = "Hi! I'm a bot that tags all known group members when mentioned. Send a message in the group to be included in the tag list!"
	emptyRosterText = "No members or admins with usernames found to tag! Users must send a message to be included."
	tagFailureText  = "Sorry, I couldn't tag everyone. Please ensure I'm an admin and try again."
)

// Option customizes module construction.
type Option func(*Module)

// WithStorePath sets the member registry file path.
func WithStorePath(path string) Option {
	return func(module *Module) {
		module.store = NewStore(path)
	}
}

// WithChunkLimit caps the character length of one tag list message.
func WithChunkLimit(limit int) Option {
	return func(module *Module) {
		if limit > 0 {
			module.chunkLimit = limit
		}
	}
}

// WithSendDelay sets the pause between consecutive tag list chunks.
func WithSendDelay(delay time.Duration) Option {
	return func(module *Module) {
		if delay >= 0 {
			module.sendDelay = delay
		}
	}
}

// WithLogger sets the module logger ahead of service resolution.
func WithLogger(logger *slog.Logger) Option {
	return func(module *Module) {
		if logger != nil {
			module.logger = logger
		}
	}
}

// withSleep overrides the inter-chunk pause primitive.
func withSleep(sleep func(ctx context.Context, delay time.Duration)) Option {
	return func(module *Module) {
		if sleep != nil {
			module.sleep = sleep
		}
	}
}

// Module is the member tagging module.
type Module struct {
	logger     *slog.Logger
	store      *Store
	chunkLimit int
	sendDelay  time.Duration
	sleep      func(ctx context.Context, delay time.Duration)

	dispatcher muster.SinkDispatcher
	directory  muster.ChatDirectory
	identity   muster.SelfIdentity

	handle atomic.Pointer[string]
}

// New creates a roster module with the given options.
func New(options ...Option) *Module {
	module := &Module{
		logger:     slog.Default(),
		store:      NewStore(defaultStorePath),
		chunkLimit: defaultChunkLimit,
		sendDelay:  defaultSendDelay,
		sleep:      sleepContext,
	}

	for _, option := range options {
		option(module)
	}

	return module
}

// Name returns the stable module identifier.
func (m *Module) Name() string {
	return moduleName
}

// Spec declares the module's handlers, commands, and service dependencies.
func (m *Module) Spec() muster.ModuleSpec {
	return muster.ModuleSpec{
		Name: moduleName,
		Handlers: []muster.ModuleHandler{
			{
				Name: "respond",
				Interest: muster.InterestSet{
					Kinds:          []muster.EventKind{muster.EventKindMessageCreated},
					RequireMessage: true,
				},
				Spec:    muster.NewDefaultSubscriptionSpec(moduleName + ".respond"),
				Handler: m.handleMessage,
			},
			{
				Name: "track-joins",
				Interest: muster.InterestSet{
					Kinds:              []muster.EventKind{muster.EventKindMemberJoined},
					RequireStateChange: true,
				},
				Spec:    muster.NewDefaultSubscriptionSpec(moduleName + ".track-joins"),
				Handler: m.handleMemberJoined,
			},
			{
				Name: "migrate",
				Interest: muster.InterestSet{
					Kinds:              []muster.EventKind{muster.EventKindChatMigrated},
					RequireStateChange: true,
				},
				Spec:    muster.NewDefaultSubscriptionSpec(moduleName + ".migrate"),
				Handler: m.handleChatMigrated,
			},
			{
				Name: "greet",
				Interest: muster.InterestSet{
					Kinds:          []muster.EventKind{muster.EventKindCommandReceived},
					RequireCommand: true,
					CommandNames:   []string{startCommandName, helpCommandName},
				},
				Spec:    muster.NewDefaultSubscriptionSpec(moduleName + ".greet"),
				Handler: m.handleCommand,
			},
		},
		Commands: []muster.CommandSpec{
			{Name: startCommandName, Description: "Explain how the member tag list works."},
			{Name: helpCommandName, Description: "Explain how the member tag list works."},
		},
		RequiredServices: []string{
			muster.ServiceSinkDispatcher,
			muster.ServiceChatDirectory,
			muster.ServiceSelfIdentity,
		},
	}
}

// OnRegister resolves runtime services before the kernel starts dispatching.
func (m *Module) OnRegister(ctx context.Context, runtime muster.ModuleRuntime) error {
	if runtime == nil {
		return fmt.Errorf("register %s module: nil runtime", moduleName)
	}

	logger, err := muster.ResolveAs[*slog.Logger](runtime.Services(), muster.ServiceLogger)
	switch {
	case err == nil:
		m.logger = logger
	case errors.Is(err, muster.ErrServiceNotFound):
		// Keep the construction-time logger.
	default:
		return fmt.Errorf("register %s module: %w", moduleName, err)
	}

	dispatcher, err := muster.ResolveAs[muster.SinkDispatcher](runtime.Services(), muster.ServiceSinkDispatcher)
	if err != nil {
		return fmt.Errorf("register %s module: %w", moduleName, err)
	}
	m.dispatcher = dispatcher

	directory, err := muster.ResolveAs[muster.ChatDirectory](runtime.Services(), muster.ServiceChatDirectory)
	if err != nil {
		return fmt.Errorf("register %s module: %w", moduleName, err)
	}
	m.directory = directory

	identity, err := muster.ResolveAs[muster.SelfIdentity](runtime.Services(), muster.ServiceSelfIdentity)
	if err != nil {
		return fmt.Errorf("register %s module: %w", moduleName, err)
	}
	m.identity = identity

	return nil
}

// OnStart verifies the member registry is readable before traffic arrives.
func (m *Module) OnStart(ctx context.Context) error {
	registry, err := m.store.Load()
	if err != nil {
		return fmt.Errorf("start %s module: %w", moduleName, err)
	}

	m.logger.InfoContext(ctx, "roster module started",
		slog.String("store_path", m.store.Path()),
		slog.Int("known_chats", len(registry)),
	)

	return nil
}

// OnShutdown completes module teardown.
func (m *Module) OnShutdown(ctx context.Context) error {
	m.logger.InfoContext(ctx, "roster module stopped")

	return nil
}

// selfHandle returns the bot's own username, cached after the first lookup.
func (m *Module) selfHandle() (string, error) {
	if cached := m.handle.Load(); cached != nil {
		return *cached, nil
	}

	if m.identity == nil {
		return "", muster.ErrIdentityUnavailable
	}
	self, err := m.identity.Self()
	if err != nil {
		return "", err
	}
	if self.Username == "" {
		return "", fmt.Errorf("resolve own handle: account has no username")
	}

	handle := self.Username
	m.handle.Store(&handle)

	return handle, nil
}

// sleepContext pauses for the given duration unless the context ends first.
func sleepContext(ctx context.Context, delay time.Duration) {
	if delay <= 0 {
		return
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

var _ muster.Module = (*Module)(nil)
