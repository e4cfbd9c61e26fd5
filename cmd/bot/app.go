package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"muster/internal/driver/telegram"
	"muster/internal/kernel"
	"muster/modules/roster"
	"muster/pkg/muster"
)

const (
	defaultConfigFilePath   = "config/bot.json"
	alternateConfigFilePath = "bin/config/bot.json"
	telegramDriverName      = "tg-main"
)

// envSettings holds secrets and overrides sourced from the environment.
type envSettings struct {
	BotToken   string `envconfig:"TELEGRAM_BOT_TOKEN" required:"true"`
	ConfigFile string `envconfig:"MUSTER_CONFIG_FILE"`
}

type appConfig struct {
	logLevel slog.Level

	moduleHookTimeout   time.Duration
	shutdownTimeout     time.Duration
	handlerTimeout      time.Duration
	subscriptionBuffer  int
	subscriptionWorkers int

	telegramConfig json.RawMessage
	rosterOptions  []roster.Option
}

type fileConfig struct {
	LogLevel string           `json:"log_level"`
	Kernel   fileKernelConfig `json:"kernel"`
	Telegram json.RawMessage  `json:"telegram"`
	Roster   fileRosterConfig `json:"roster"`
}

type fileKernelConfig struct {
	ModuleHookTimeout   string `json:"module_hook_timeout"`
	ShutdownTimeout     string `json:"shutdown_timeout"`
	HandlerTimeout      string `json:"handler_timeout"`
	SubscriptionBuffer  *int   `json:"subscription_buffer"`
	SubscriptionWorkers *int   `json:"subscription_workers"`
}

type fileRosterConfig struct {
	StorePath  string `json:"store_path"`
	ChunkLimit *int   `json:"chunk_limit"`
	SendDelay  string `json:"send_delay"`
}

func run() error {
	// A local .env is a development convenience, not a requirement.
	_ = godotenv.Load()

	var env envSettings
	if err := envconfig.Process("", &env); err != nil {
		return fmt.Errorf("process environment: %w", err)
	}

	cfg, err := loadConfig(env)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.logLevel}))

	runtime, err := telegram.BuildRuntimeFromConfig(telegramDriverName, env.BotToken, logger, cfg.telegramConfig)
	if err != nil {
		return fmt.Errorf("build telegram runtime: %w", err)
	}

	kernelRuntime := buildKernelRuntime(logger, cfg)
	if err := registerRuntimeServices(kernelRuntime, runtime); err != nil {
		return err
	}
	if err := kernelRuntime.RegisterDriver(runtime.Driver); err != nil {
		return fmt.Errorf("register telegram driver: %w", err)
	}

	rosterModule := roster.New(append(cfg.rosterOptions, roster.WithLogger(logger))...)
	if err := kernelRuntime.RegisterModule(context.Background(), rosterModule); err != nil {
		return fmt.Errorf("register roster module: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := kernelRuntime.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("run kernel: %w", err)
	}

	return nil
}

func loadConfig(env envSettings) (appConfig, error) {
	cfg := defaultAppConfig()

	configFile, err := resolveConfigFilePath(env)
	if err != nil {
		return appConfig{}, err
	}
	if err := applyConfigFile(&cfg, configFile); err != nil {
		return appConfig{}, err
	}
	if len(cfg.telegramConfig) == 0 {
		return appConfig{}, fmt.Errorf("config file %s: telegram section is required", configFile)
	}

	return cfg, nil
}

func resolveConfigFilePath(env envSettings) (string, error) {
	if configFile := strings.TrimSpace(env.ConfigFile); configFile != "" {
		return configFile, nil
	}

	candidates := []string{defaultConfigFilePath, alternateConfigFilePath}
	for _, candidate := range candidates {
		info, err := os.Stat(candidate)
		if err == nil {
			if info.IsDir() {
				return "", fmt.Errorf("config file %s is a directory", candidate)
			}
			return candidate, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("stat config file %s: %w", candidate, err)
		}
	}

	return "", fmt.Errorf(
		"config file not found; create %s or %s, or set MUSTER_CONFIG_FILE",
		defaultConfigFilePath,
		alternateConfigFilePath,
	)
}

func defaultAppConfig() appConfig {
	return appConfig{
		logLevel: slog.LevelInfo,
	}
}

func applyConfigFile(cfg *appConfig, path string) error {
	if cfg == nil {
		return fmt.Errorf("apply config file: nil config")
	}
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("config file path is required")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}

	var parsed fileConfig
	if err := json.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	if rawLevel := strings.TrimSpace(parsed.LogLevel); rawLevel != "" {
		level, err := parseLogLevel(rawLevel)
		if err != nil {
			return fmt.Errorf("parse log_level: %w", err)
		}
		cfg.logLevel = level
	}

	if err := applyKernelConfig(cfg, parsed.Kernel); err != nil {
		return err
	}
	if err := applyRosterConfig(cfg, parsed.Roster); err != nil {
		return err
	}

	cfg.telegramConfig = append(json.RawMessage(nil), parsed.Telegram...)

	return nil
}

func applyKernelConfig(cfg *appConfig, parsed fileKernelConfig) error {
	timeout, err := parseOptionalDuration(parsed.ModuleHookTimeout, "kernel.module_hook_timeout")
	if err != nil {
		return err
	}
	cfg.moduleHookTimeout = timeout

	timeout, err = parseOptionalDuration(parsed.ShutdownTimeout, "kernel.shutdown_timeout")
	if err != nil {
		return err
	}
	cfg.shutdownTimeout = timeout

	timeout, err = parseOptionalDuration(parsed.HandlerTimeout, "kernel.handler_timeout")
	if err != nil {
		return err
	}
	cfg.handlerTimeout = timeout

	if parsed.SubscriptionBuffer != nil {
		if *parsed.SubscriptionBuffer <= 0 {
			return fmt.Errorf("parse kernel.subscription_buffer: must be > 0")
		}
		cfg.subscriptionBuffer = *parsed.SubscriptionBuffer
	}
	if parsed.SubscriptionWorkers != nil {
		if *parsed.SubscriptionWorkers <= 0 {
			return fmt.Errorf("parse kernel.subscription_workers: must be > 0")
		}
		cfg.subscriptionWorkers = *parsed.SubscriptionWorkers
	}

	return nil
}

func applyRosterConfig(cfg *appConfig, parsed fileRosterConfig) error {
	options := make([]roster.Option, 0, 3)

	if storePath := strings.TrimSpace(parsed.StorePath); storePath != "" {
		options = append(options, roster.WithStorePath(storePath))
	}
	if parsed.ChunkLimit != nil {
		if *parsed.ChunkLimit <= 0 {
			return fmt.Errorf("parse roster.chunk_limit: must be > 0")
		}
		options = append(options, roster.WithChunkLimit(*parsed.ChunkLimit))
	}
	if rawDelay := strings.TrimSpace(parsed.SendDelay); rawDelay != "" {
		delay, err := time.ParseDuration(rawDelay)
		if err != nil {
			return fmt.Errorf("parse roster.send_delay: %w", err)
		}
		if delay < 0 {
			return fmt.Errorf("parse roster.send_delay: must be >= 0")
		}
		options = append(options, roster.WithSendDelay(delay))
	}

	cfg.rosterOptions = options

	return nil
}

func parseOptionalDuration(raw string, scope string) (time.Duration, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return 0, nil
	}

	parsed, err := time.ParseDuration(trimmed)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", scope, err)
	}
	if parsed <= 0 {
		return 0, fmt.Errorf("parse %s: must be > 0", scope)
	}

	return parsed, nil
}

func parseLogLevel(raw string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unsupported level %q", raw)
	}
}

func buildKernelRuntime(logger *slog.Logger, cfg appConfig) *kernel.Kernel {
	return kernel.New(
		kernel.WithLogger(logger),
		kernel.WithModuleHookTimeout(cfg.moduleHookTimeout),
		kernel.WithShutdownTimeout(cfg.shutdownTimeout),
		kernel.WithDefaultHandlerTimeout(cfg.handlerTimeout),
		kernel.WithDefaultSubscriptionBuffer(cfg.subscriptionBuffer),
		kernel.WithDefaultSubscriptionWorkers(cfg.subscriptionWorkers),
	)
}

func registerRuntimeServices(kernelRuntime *kernel.Kernel, runtime *telegram.Runtime) error {
	if runtime == nil {
		return fmt.Errorf("register runtime services: nil telegram runtime")
	}

	if err := kernelRuntime.RegisterService(muster.ServiceSinkDispatcher, runtime.Sink); err != nil {
		return fmt.Errorf("register sink dispatcher service: %w", err)
	}
	if err := kernelRuntime.RegisterService(muster.ServiceChatDirectory, runtime.Directory); err != nil {
		return fmt.Errorf("register chat directory service: %w", err)
	}
	if err := kernelRuntime.RegisterService(muster.ServiceSelfIdentity, runtime.Identity); err != nil {
		return fmt.Errorf("register self identity service: %w", err)
	}

	return nil
}
