package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/pathakanu/impact/internal/bot"
	"github.com/pathakanu/impact/internal/config"
	"github.com/pathakanu/impact/internal/database"
	"github.com/pathakanu/impact/internal/gmail"
	"github.com/pathakanu/impact/internal/goals"
	myopenai "github.com/pathakanu/impact/internal/openai"
	"github.com/pathakanu/impact/internal/store"
	"github.com/pathakanu/impact/internal/twilio"
	"github.com/spf13/cobra"
)

var (
	cfg    *config.Config
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "impact",
	Short: "impact - accountability reminders over email",
	Long: `Impact sends recurring reminder emails for your commitments, reads your
replies and logs an AI summary of each one.

Run without a subcommand to start the daemon.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load()
		if err != nil {
			return err
		}
		logger = newLogger(cfg.Debug)
		slog.SetDefault(logger)
		return nil
	},
	RunE: runServe,
}

func newLogger(debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// openStore connects to the configured database.
func openStore() (*store.Store, error) {
	db, err := database.New(cfg.DatabaseURL, cfg.SQLitePath)
	if err != nil {
		return nil, fmt.Errorf("database init failed: %w", err)
	}
	return store.New(db), nil
}

// newBot wires the reminder engine to Gmail, OpenAI and, when configured,
// Twilio. Missing credentials are reported before anything connects.
func newBot(ctx context.Context, st *store.Store) (*bot.Bot, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration invalid:\n%w", err)
	}

	mailer, err := gmail.New(ctx, gmail.Credentials{
		ClientID:     cfg.GmailClientID,
		ClientSecret: cfg.GmailClientSecret,
		RedirectURI:  cfg.GmailRedirectURI,
		RefreshToken: cfg.GmailRefreshToken,
	})
	if err != nil {
		return nil, err
	}

	g, err := goals.Load(cfg.GoalsFile)
	if err != nil {
		return nil, err
	}

	deps := bot.Deps{
		Store:      st,
		Mailer:     mailer,
		Summarizer: newSummarizer(),
		Goals:      g,
		Logger:     logger,
	}
	if cfg.WhatsAppEnabled() {
		deps.Notifier = twilio.New(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioWhatsAppNumber)
		logger.Info("whatsapp nudges enabled", "to", cfg.NotifyWhatsAppTo)
	}
	return bot.New(cfg, deps), nil
}

func newSummarizer() *myopenai.Client {
	var opts []myopenai.Option
	if cfg.OpenAIModel != "" {
		opts = append(opts, myopenai.WithModel(cfg.OpenAIModel))
	}
	return myopenai.New(cfg.OpenAIAPIKey, opts...)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
