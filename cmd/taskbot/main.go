package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fieldops/taskbot/internal/api"
	"github.com/fieldops/taskbot/internal/dispatch"
	"github.com/fieldops/taskbot/internal/ingest"
	"github.com/fieldops/taskbot/internal/messaging"
	"github.com/fieldops/taskbot/internal/notify"
	"github.com/fieldops/taskbot/internal/store"
	"github.com/fieldops/taskbot/internal/telegram"
	"github.com/fieldops/taskbot/internal/util"
	"github.com/joho/godotenv"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for TaskBot state data
	DefaultStateDir = "/var/lib/taskbot"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "taskbot.db"
)

func main() {
	initializeLogger()

	config := loadEnvironmentConfig()
	flags := parseCommandLineFlags(config)

	st, err := buildStore(flags)
	if err != nil {
		slog.Error("Failed to initialize store", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	client, err := telegram.NewClient(telegram.WithToken(*flags.botToken))
	if err != nil {
		slog.Error("Failed to initialize Telegram client", "error", err)
		os.Exit(1)
	}

	emitter := notify.NewEmitter(st)
	sender := messaging.NewSender(client, st)
	assigner := dispatch.NewAssigner(st, sender, emitter)
	dispatcher := dispatch.NewDispatcher(st, sender, emitter, dispatch.WithSendDelay(*flags.sendDelay))

	guard := ingest.NewGuard()
	if err := seedGuard(guard, st); err != nil {
		slog.Error("Failed to seed dedup guard", "error", err)
		os.Exit(1)
	}

	router := ingest.NewRouter(st, guard, client, sender, assigner, emitter)
	poller := ingest.NewPoller(client, router, ingest.WithPollTimeout(*flags.pollTimeout))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go dispatcher.RunExpiry(ctx, *flags.expiryInterval)

	if *flags.autostart {
		if err := poller.Start(ctx); err != nil {
			// Surfaced once; the operator retries over the admin API.
			slog.Error("Initial polling start failed", "error", err)
		}
	}

	server := api.NewServer(st, dispatcher, poller, guard, api.WithAddr(*flags.apiAddr))

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		slog.Info("Shutdown signal received", "signal", sig.String())
		poller.Stop()
		cancel()
		if err := server.Shutdown(context.Background()); err != nil {
			slog.Error("Admin API shutdown failed", "error", err)
		}
	}()

	slog.Info("Bootstrapping TaskBot", "api_addr", *flags.apiAddr, "autostart", *flags.autostart)
	if err := server.Start(); err != nil {
		slog.Error("TaskBot failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("TaskBot exited successfully")
}

// Config holds environment configuration
type Config struct {
	BotToken       string
	DatabaseURL    string
	StateDir       string
	APIAddr        string
	PollTimeout    time.Duration
	SendDelay      time.Duration
	ExpiryInterval time.Duration
	Autostart      bool
}

// Flags holds command line flag values
type Flags struct {
	botToken       *string
	stateDir       *string
	dbDSN          *string
	apiAddr        *string
	pollTimeout    *time.Duration
	sendDelay      *time.Duration
	expiryInterval *time.Duration
	autostart      *bool
}

// initializeLogger sets up structured logging with debug level
func initializeLogger() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	config := Config{
		BotToken:       os.Getenv("TELEGRAM_BOT_TOKEN"),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		StateDir:       os.Getenv("TASKBOT_STATE_DIR"),
		APIAddr:        os.Getenv("API_ADDR"),
		PollTimeout:    util.ParseDurationEnv("POLL_TIMEOUT", ingest.DefaultPollTimeout),
		SendDelay:      util.ParseDurationEnv("SEND_DELAY", dispatch.DefaultSendDelay),
		ExpiryInterval: util.ParseDurationEnv("EXPIRY_INTERVAL", dispatch.DefaultExpiryInterval),
		Autostart:      util.ParseBoolEnv("POLLER_AUTOSTART", true),
	}

	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
		slog.Debug("No TASKBOT_STATE_DIR set, using default", "default_state_dir", config.StateDir)
	}

	// If no database URL is provided, default to SQLite in the state directory
	if config.DatabaseURL == "" {
		config.DatabaseURL = filepath.Join(config.StateDir, DefaultDBFileName)
		slog.Debug("No database DSN provided, defaulting to SQLite", "sqlite_path", config.DatabaseURL)
	}

	slog.Debug("environment variables loaded",
		"TELEGRAM_BOT_TOKEN_SET", config.BotToken != "",
		"DATABASE_URL_SET", config.DatabaseURL != "",
		"TASKBOT_STATE_DIR", config.StateDir,
		"API_ADDR", config.APIAddr,
		"POLL_TIMEOUT", config.PollTimeout,
		"SEND_DELAY", config.SendDelay,
		"EXPIRY_INTERVAL", config.ExpiryInterval,
		"POLLER_AUTOSTART", config.Autostart)

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		botToken:       flag.String("bot-token", config.BotToken, "Telegram bot token (overrides $TELEGRAM_BOT_TOKEN)"),
		stateDir:       flag.String("state-dir", config.StateDir, "state directory for TaskBot data (overrides $TASKBOT_STATE_DIR)"),
		dbDSN:          flag.String("db-dsn", config.DatabaseURL, "database DSN, SQLite path or Postgres URL (overrides $DATABASE_URL)"),
		apiAddr:        flag.String("api-addr", config.APIAddr, "admin API server address (overrides $API_ADDR)"),
		pollTimeout:    flag.Duration("poll-timeout", config.PollTimeout, "long-poll window for getUpdates (overrides $POLL_TIMEOUT)"),
		sendDelay:      flag.Duration("send-delay", config.SendDelay, "inter-message delay during broadcasts (overrides $SEND_DELAY)"),
		expiryInterval: flag.Duration("expiry-interval", config.ExpiryInterval, "deadline expiry sweep interval (overrides $EXPIRY_INTERVAL)"),
		autostart:      flag.Bool("autostart", config.Autostart, "start the polling loop at boot (overrides $POLLER_AUTOSTART)"),
	}

	flag.Parse()

	slog.Debug("flags parsed",
		"botToken_set", *flags.botToken != "",
		"stateDir", *flags.stateDir,
		"dbDSN_set", *flags.dbDSN != "",
		"apiAddr", *flags.apiAddr,
		"pollTimeout", *flags.pollTimeout,
		"sendDelay", *flags.sendDelay,
		"expiryInterval", *flags.expiryInterval,
		"autostart", *flags.autostart)

	// Follow an overridden state directory when the DSN was left at its default.
	if *flags.dbDSN == config.DatabaseURL && config.DatabaseURL == filepath.Join(config.StateDir, DefaultDBFileName) && *flags.stateDir != config.StateDir {
		*flags.dbDSN = filepath.Join(*flags.stateDir, DefaultDBFileName)
		slog.Debug("Updated dbDSN based on state directory", "new_state_dir", *flags.stateDir)
	}

	return flags
}

// buildStore selects and initializes the storage backend from the DSN.
func buildStore(flags Flags) (store.Store, error) {
	dsn := *flags.dbDSN
	if dsn == "" {
		slog.Debug("No database DSN provided, using in-memory store")
		return store.NewInMemoryStore(), nil
	}
	if store.DetectDSNType(dsn) == "postgres" {
		slog.Debug("Detected PostgreSQL DSN, configuring PostgreSQL store")
		return store.NewPostgresStore(store.WithPostgresDSN(dsn))
	}
	slog.Debug("Detected SQLite DSN, configuring SQLite store", "db_path", dsn)
	return store.NewSQLiteStore(store.WithSQLiteDSN(dsn))
}

// seedGuard marks every stored subscriber's identity as registered.
func seedGuard(guard *ingest.Guard, st store.Store) error {
	subs, err := st.GetSubscribers()
	if err != nil {
		return err
	}
	ids := make([]int64, 0, len(subs))
	for _, sub := range subs {
		ids = append(ids, sub.UserID)
	}
	guard.Seed(ids)
	return nil
}
