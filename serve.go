package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pathakanu/impact/internal/bot"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the reminder daemon (default)",
	Long: `Run the scheduler: check commitments on CHECK_SCHEDULE, poll the inbox for
replies on POLL_SCHEDULE and serve GET /health on HEALTH_ADDR.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	reminderBot, err := newBot(cmd.Context(), st)
	if err != nil {
		return err
	}

	if err := reminderBot.StartScheduler(); err != nil {
		return err
	}

	server := &http.Server{
		Addr:              cfg.HealthAddr,
		Handler:           reminderBot.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("health server starting", "addr", cfg.HealthAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("health server error", "error", err)
		}
	}()

	waitForShutdown(server, reminderBot)
	return nil
}

func waitForShutdown(server *http.Server, reminderBot *bot.Bot) {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	sig := <-stop
	logger.Info("shutting down", "signal", sig.String())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}
	reminderBot.StopScheduler()
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
