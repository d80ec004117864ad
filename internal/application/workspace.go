package application

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/ericfisherdev/issuetriage/internal/domain/model"
	"github.com/ericfisherdev/issuetriage/internal/domain/port/driven"
	"github.com/ericfisherdev/issuetriage/internal/telemetry"
)

// Workspace builds the per-user services that need an upstream client. It
// is the composition point shared by the CLI and the HTTP API.
type Workspace struct {
	provider   *SourceProvider
	stores     Stores
	predictor  driven.LabelPredictor
	categories []model.Category
	metrics    *telemetry.Metrics
}

// NewWorkspace creates a Workspace. predictor may be nil.
func NewWorkspace(
	provider *SourceProvider,
	stores Stores,
	predictor driven.LabelPredictor,
	categories []model.Category,
	metrics *telemetry.Metrics,
) *Workspace {
	return &Workspace{
		provider:   provider,
		stores:     stores,
		predictor:  predictor,
		categories: categories,
		metrics:    metrics,
	}
}

// Provider returns the per-user client provider.
func (w *Workspace) Provider() *SourceProvider {
	return w.provider
}

// Reconciler returns a Reconciler bound to userID's own credential. The
// credential is resolved on the first upstream call, so local checks such as
// duplicate registration or an unknown repository id are reported even when
// the user has no token; ErrNoCredential surfaces only once GitHub is needed.
func (w *Workspace) Reconciler(userID int64) *Reconciler {
	rec := NewReconciler(userID, nil, w.stores, w.predictor, w.categories, w.metrics)
	rec.resolve = func(ctx context.Context) (driven.GitHubClient, error) {
		return w.provider.ForUser(ctx, userID)
	}
	return rec
}

// OwnerRepository is one upstream repository of an owner, marked with
// whether the user already tracks it.
type OwnerRepository struct {
	model.RemoteRepository
	// TrackedID is the local repository id, or zero when untracked.
	TrackedID int64
}

// OwnerRepositories lists owner's upstream repositories using userID's
// credential.
func (w *Workspace) OwnerRepositories(ctx context.Context, userID int64, owner string) ([]OwnerRepository, error) {
	owner = strings.TrimSpace(owner)
	if owner == "" {
		return nil, validationErrorf("owner is required")
	}

	client, err := w.provider.ForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	remote, err := client.ListOwnerRepositories(ctx, owner)
	if err != nil {
		return nil, err
	}

	tracked, err := w.stores.Repos.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	ids := make(map[string]int64, len(tracked))
	for _, repo := range tracked {
		ids[strings.ToLower(repo.FullName())] = repo.ID
	}

	out := make([]OwnerRepository, 0, len(remote))
	for _, repo := range remote {
		out = append(out, OwnerRepository{
			RemoteRepository: repo,
			TrackedID:        ids[strings.ToLower(repo.Owner+"/"+repo.Name)],
		})
	}
	return out, nil
}

// CSVImporter returns an importer for userID. A user without a credential
// still gets an importer; rows naming untracked repositories then fail.
func (w *Workspace) CSVImporter(ctx context.Context, userID int64) (*CSVImporter, error) {
	client, err := w.provider.ForUser(ctx, userID)
	if errors.Is(err, ErrNoCredential) {
		return NewCSVImporter(userID, nil, w.stores, w.metrics), nil
	}
	if err != nil {
		return nil, err
	}
	return NewCSVImporter(userID, client, w.stores, w.metrics), nil
}

// WebhookResult reports how a pushed issue was applied.
type WebhookResult struct {
	// Trackers is the number of users tracking the issue's repository.
	Trackers int
	// Merged is the number of those users whose copy was created or updated.
	Merged int
}

// ReconcileWebhookIssue merges an issue delivered by a webhook into every
// user tracking its repository, honoring each user's label filter. A
// failure for one user does not stop the others; all failures are returned
// joined.
func (w *Workspace) ReconcileWebhookIssue(ctx context.Context, ri model.RemoteIssue) (WebhookResult, error) {
	repos, err := w.stores.Repos.ListByOwnerName(ctx, ri.RepoOwner, ri.RepoName)
	if err != nil {
		return WebhookResult{}, err
	}

	result := WebhookResult{Trackers: len(repos)}
	var errs []error

	for _, repo := range repos {
		// Merging a pushed issue never calls upstream, so no client is needed.
		rec := NewReconciler(repo.UserID, nil, w.stores, w.predictor, w.categories, w.metrics)

		// The registration's spelling of owner/name is the one lookups match.
		pushed := ri
		pushed.RepoOwner, pushed.RepoName = repo.Owner, repo.Name

		issue, err := rec.ReconcileIssue(ctx, pushed)
		if err != nil {
			slog.Warn("webhook issue reconcile failed",
				"repo", repo.FullName(),
				"user_id", repo.UserID,
				"error", err,
			)
			errs = append(errs, err)
			continue
		}
		if issue != nil {
			result.Merged++
		}
	}

	return result, errors.Join(errs...)
}
