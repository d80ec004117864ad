package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	httphandler "github.com/ericfisherdev/issuetriage/internal/adapter/driving/http"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the triage REST API",
	Long: `Serve the REST API on ISSUETRIAGE_LISTEN_ADDR until interrupted.

Requests act as the login in the X-Issuetriage-User header, or as
ISSUETRIAGE_USER when the header is absent. Setting
ISSUETRIAGE_WEBHOOK_SECRET enables POST /api/v1/webhooks/github.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(cmd.Context(), func(a *app) error {
			return serve(cmd.Context(), a)
		})
	},
}

func serve(ctx context.Context, a *app) error {
	logger := slog.Default()

	h := httphandler.NewHandler(
		a.users,
		a.triage,
		a.workspace,
		a.validator,
		a.cfg.User,
		a.cfg.WebhookSecret,
		logger,
	)

	srv := &http.Server{
		Addr:              a.cfg.ListenAddr,
		Handler:           httphandler.NewServeMux(h, logger),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		// Syncs of large repositories run inside the request.
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server starting", "addr", a.cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	slog.Info("issuetriage started",
		"listen_addr", a.cfg.ListenAddr,
		"default_user", a.cfg.User,
		"predictor", a.cfg.Predictor,
		"webhooks", a.cfg.WebhookSecret != "",
	)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http server shutdown error", "error", err)
	}

	slog.Info("shutdown complete")
	return nil
}
