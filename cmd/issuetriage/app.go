package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	githubadapter "github.com/ericfisherdev/issuetriage/internal/adapter/driven/github"
	"github.com/ericfisherdev/issuetriage/internal/adapter/driven/predictor"
	sqliteadapter "github.com/ericfisherdev/issuetriage/internal/adapter/driven/sqlite"
	"github.com/ericfisherdev/issuetriage/internal/application"
	"github.com/ericfisherdev/issuetriage/internal/config"
	"github.com/ericfisherdev/issuetriage/internal/domain/model"
	"github.com/ericfisherdev/issuetriage/internal/domain/port/driven"
	"github.com/ericfisherdev/issuetriage/internal/telemetry"
)

// app holds the wired adapters and services shared by every command.
type app struct {
	cfg       *config.Config
	db        *sqliteadapter.DB
	users     *sqliteadapter.UserRepo
	stores    application.Stores
	workspace *application.Workspace
	triage    *application.TriageService
	validator driven.TokenValidator
	user      model.User

	shutdownTelemetry func(context.Context) error
}

// newApp loads configuration, opens and migrates the database and wires the
// application services. The caller must call close.
func newApp(ctx context.Context) (*app, error) {
	// 1. Load configuration (fail fast on invalid env vars).
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if userFlag != "" {
		cfg.User = strings.TrimSpace(userFlag)
	}
	slog.Debug("config loaded",
		"listen_addr", cfg.ListenAddr,
		"db_path", cfg.DBPath,
		"user", cfg.User,
		"predictor", cfg.Predictor,
		"credential_encryption", cfg.HasSecretKey(),
	)

	categories, err := config.LoadCategories(cfg.CategoriesFile)
	if err != nil {
		return nil, err
	}

	// 2. Telemetry before any instrumented component is built.
	shutdown, err := telemetry.Init(ctx, "issuetriage", version, telemetry.Options{
		Enabled: cfg.OTelEnabled,
		Stdout:  cfg.OTelStdout,
	})
	if err != nil {
		return nil, err
	}
	metrics, err := telemetry.NewMetrics(telemetry.Meter(""))
	if err != nil {
		_ = shutdown(ctx)
		return nil, err
	}

	// 3. Open database (dual reader/writer with WAL mode) and migrate.
	db, err := sqliteadapter.NewDB(ctx, cfg.DBPath)
	if err != nil {
		_ = shutdown(ctx)
		return nil, err
	}
	if err := sqliteadapter.RunMigrations(db.Writer); err != nil {
		_ = db.Close()
		_ = shutdown(ctx)
		return nil, err
	}
	slog.Debug("database ready", "path", cfg.DBPath)

	// 4. Wire adapters.
	users := sqliteadapter.NewUserRepo(db)
	stores := application.Stores{
		Repos:    sqliteadapter.NewRepoRepo(db),
		Issues:   sqliteadapter.NewIssueRepo(db),
		Tags:     sqliteadapter.NewTagRepo(db),
		Projects: sqliteadapter.NewProjectRepo(db),
	}
	credentials := sqliteadapter.NewCredentialRepo(db, cfg.SecretKey)

	labelPredictor, err := newPredictor(cfg, categories)
	if err != nil {
		_ = db.Close()
		_ = shutdown(ctx)
		return nil, err
	}

	provider := application.NewSourceProvider(credentials, cfg.GitHubToken, func(token string) driven.GitHubClient {
		return githubadapter.NewClient(token)
	})

	user, err := users.GetOrCreate(ctx, cfg.User)
	if err != nil {
		_ = db.Close()
		_ = shutdown(ctx)
		return nil, err
	}

	return &app{
		cfg:               cfg,
		db:                db,
		users:             users,
		stores:            stores,
		workspace:         application.NewWorkspace(provider, stores, labelPredictor, categories, metrics),
		triage:            application.NewTriageService(stores),
		validator:         githubadapter.NewClient(""),
		user:              user,
		shutdownTelemetry: shutdown,
	}, nil
}

// newPredictor builds the configured label predictor. It returns a nil
// interface when prediction is disabled.
func newPredictor(cfg *config.Config, categories []model.Category) (driven.LabelPredictor, error) {
	switch cfg.Predictor {
	case config.PredictorHTTP:
		return predictor.NewHTTPPredictor(cfg.PredictorURL, &http.Client{Timeout: 30 * time.Second}), nil
	case config.PredictorAnthropic:
		p, err := predictor.NewAnthropicPredictor(cfg.AnthropicAPIKey, cfg.AnthropicModel, categories)
		if err != nil {
			return nil, fmt.Errorf("anthropic predictor: %w", err)
		}
		return p, nil
	default:
		return nil, nil
	}
}

func (a *app) close() error {
	flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return errors.Join(a.db.Close(), a.shutdownTelemetry(flushCtx))
}

// withApp runs fn against a freshly wired app and closes it afterwards.
func withApp(ctx context.Context, fn func(*app) error) error {
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := a.close(); closeErr != nil {
			slog.Error("error closing application", "error", closeErr)
		}
	}()
	return fn(a)
}
