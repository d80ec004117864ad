// Package application contains use-case orchestration services.
package application

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ericfisherdev/issuetriage/internal/domain/model"
	"github.com/ericfisherdev/issuetriage/internal/domain/port/driven"
	"github.com/ericfisherdev/issuetriage/internal/telemetry"
)

// Stores bundles the persistence ports used by the application services.
type Stores struct {
	Repos    driven.RepoStore
	Issues   driven.IssueStore
	Tags     driven.TagStore
	Projects driven.ProjectStore
}

// SyncResult reports the outcome of a repository sync.
type SyncResult struct {
	Repository model.Repository
	Created    int
	// Updated holds the issues that already existed and were overwritten.
	Updated []model.Issue
}

// ProjectImportResult reports the outcome of a project-board import.
type ProjectImportResult struct {
	Project model.Project
	Created int
	Updated int
	Linked  int
	// Skipped counts board items whose content is not an issue.
	Skipped int
}

// Reconciler merges upstream issues into the local store for one user and
// attaches label predictions to every issue it touches. Each call runs to
// completion synchronously; a failure part way through keeps the issues
// already written.
type Reconciler struct {
	userID     int64
	source     driven.GitHubClient
	resolve    func(context.Context) (driven.GitHubClient, error)
	stores     Stores
	predictor  driven.LabelPredictor
	categories []model.Category
	metrics    *telemetry.Metrics
}

// NewReconciler creates a Reconciler bound to userID and that user's upstream
// client. predictor may be nil to disable prediction.
func NewReconciler(
	userID int64,
	source driven.GitHubClient,
	stores Stores,
	predictor driven.LabelPredictor,
	categories []model.Category,
	metrics *telemetry.Metrics,
) *Reconciler {
	return &Reconciler{
		userID:     userID,
		source:     source,
		stores:     stores,
		predictor:  predictor,
		categories: categories,
		metrics:    metrics,
	}
}

// client returns the upstream client, resolving it on first use when the
// Reconciler was built without one.
func (r *Reconciler) client(ctx context.Context) (driven.GitHubClient, error) {
	if r.source != nil || r.resolve == nil {
		return r.source, nil
	}
	source, err := r.resolve(ctx)
	if err != nil {
		return nil, err
	}
	r.source = source
	return source, nil
}

// RegisterRepository starts tracking owner/name and runs the initial sync.
// A repository the user already tracks is rejected with
// driven.ErrRepoAlreadyExists before any upstream call.
func (r *Reconciler) RegisterRepository(ctx context.Context, owner, name string, labels []string) (SyncResult, error) {
	owner, name = strings.TrimSpace(owner), strings.TrimSpace(name)
	if owner == "" || name == "" {
		return SyncResult{}, validationErrorf("owner and name are required")
	}

	existing, err := r.stores.Repos.GetByOwnerName(ctx, r.userID, owner, name)
	if err != nil {
		return SyncResult{}, err
	}
	if existing != nil {
		return SyncResult{}, fmt.Errorf("register %s/%s: %w", owner, name, driven.ErrRepoAlreadyExists)
	}

	source, err := r.client(ctx)
	if err != nil {
		return SyncResult{}, err
	}
	remote, err := source.FetchRepository(ctx, owner, name)
	if err != nil {
		return SyncResult{}, err
	}

	repo := model.Repository{
		UserID:      r.userID,
		Owner:       owner,
		Name:        name,
		RemoteID:    remote.ID,
		URL:         remote.URL,
		Description: remote.Description,
	}
	repo, err = r.stores.Repos.Add(ctx, repo)
	if err != nil {
		return SyncResult{}, err
	}

	slog.Info("repository registered", "repo", repo.FullName(), "user_id", r.userID)

	return r.sync(ctx, repo, labels)
}

// SyncRepository re-fetches the issues of a tracked repository. With no
// labels the repository's stored filter is cleared; otherwise labels are
// appended to it.
func (r *Reconciler) SyncRepository(ctx context.Context, repositoryID int64, labels []string) (SyncResult, error) {
	repo, err := r.stores.Repos.GetByID(ctx, r.userID, repositoryID)
	if err != nil {
		return SyncResult{}, err
	}
	if repo == nil {
		return SyncResult{}, fmt.Errorf("sync repository %d: %w", repositoryID, driven.ErrRepoNotFound)
	}

	return r.sync(ctx, *repo, labels)
}

func (r *Reconciler) sync(ctx context.Context, repo model.Repository, labels []string) (SyncResult, error) {
	labels = cleanLabels(labels)

	source, err := r.client(ctx)
	if err != nil {
		return SyncResult{}, err
	}
	remote, err := source.FetchIssues(ctx, repo.Owner, repo.Name, model.SourceFilter{Labels: labels})
	if err != nil {
		return SyncResult{}, err
	}

	if len(labels) == 0 {
		repo.LabelFilter = nil
	} else {
		repo.AppendLabelFilter(labels)
	}
	if err := r.stores.Repos.Update(ctx, repo); err != nil {
		return SyncResult{}, err
	}

	result := SyncResult{Repository: repo}
	origin := model.SyncedOrigin(repo.ID)

	for _, ri := range remote {
		issue, created, err := r.merge(ctx, ri, origin, false)
		if err != nil {
			return result, err
		}
		if created {
			result.Created++
		} else {
			result.Updated = append(result.Updated, issue)
		}

		if _, err := r.applyPrediction(ctx, &issue); err != nil {
			return result, err
		}
	}

	r.metrics.IssuesCreated(ctx, "sync", result.Created)
	r.metrics.IssuesUpdated(ctx, "sync", len(result.Updated))

	slog.Info("repository synced",
		"repo", repo.FullName(),
		"fetched", len(remote),
		"created", result.Created,
		"updated", len(result.Updated),
		"label_filter", repo.LabelFilter,
	)
	return result, nil
}

// ReconcileIssue merges a single upstream issue of a tracked repository, as
// delivered by a webhook. It returns nil, nil when the repository is not
// tracked or the issue does not match the repository's label filter.
func (r *Reconciler) ReconcileIssue(ctx context.Context, ri model.RemoteIssue) (*model.Issue, error) {
	repo, err := r.stores.Repos.GetByOwnerName(ctx, r.userID, ri.RepoOwner, ri.RepoName)
	if err != nil {
		return nil, err
	}
	if repo == nil || !matchesFilter(*repo, ri.Labels) {
		return nil, nil
	}

	issue, created, err := r.merge(ctx, ri, model.SyncedOrigin(repo.ID), false)
	if err != nil {
		return nil, err
	}
	if created {
		r.metrics.IssuesCreated(ctx, "webhook", 1)
	} else {
		r.metrics.IssuesUpdated(ctx, "webhook", 1)
	}

	if _, err := r.applyPrediction(ctx, &issue); err != nil {
		return nil, err
	}
	return &issue, nil
}

// ImportProject fetches a project board and merges every linked issue,
// recording each item's status on the board. Predicted labels are written
// back to the upstream issue on a best-effort basis.
func (r *Reconciler) ImportProject(ctx context.Context, owner string, number int) (ProjectImportResult, error) {
	owner = strings.TrimSpace(owner)
	if owner == "" || number <= 0 {
		return ProjectImportResult{}, validationErrorf("owner and a positive project number are required")
	}

	source, err := r.client(ctx)
	if err != nil {
		return ProjectImportResult{}, err
	}
	remote, err := source.FetchProject(ctx, owner, number)
	if err != nil {
		return ProjectImportResult{}, err
	}

	project, err := r.stores.Projects.Upsert(ctx, model.Project{
		UserID:   r.userID,
		Owner:    owner,
		Number:   number,
		RemoteID: remote.ID,
		Title:    remote.Title,
		URL:      remote.URL,
	})
	if err != nil {
		return ProjectImportResult{}, err
	}

	result := ProjectImportResult{Project: project}
	origin := model.ImportedOrigin(project.ID)
	ensured := make(map[string]bool)

	for _, item := range remote.Items {
		if item.Issue == nil {
			result.Skipped++
			continue
		}
		ri := *item.Issue

		issue, created, err := r.merge(ctx, ri, origin, true)
		if err != nil {
			return result, err
		}
		if created {
			result.Created++
		} else {
			result.Updated++
		}

		if err := r.stores.Projects.LinkIssue(ctx, model.ProjectIssue{
			ProjectID: project.ID,
			IssueID:   issue.ID,
			Status:    item.Status,
		}); err != nil {
			return result, err
		}
		result.Linked++

		pred, err := r.applyPrediction(ctx, &issue)
		if err != nil {
			return result, err
		}

		if ri.RepoOwner == "" || ri.RepoName == "" {
			continue
		}

		repoKey := strings.ToLower(ri.RepoOwner + "/" + ri.RepoName)
		if !ensured[repoKey] {
			ensured[repoKey] = true
			r.ensureLabels(ctx, ri.RepoOwner, ri.RepoName)
		}

		if pred == nil {
			continue
		}
		if issue.AppendLabel(pred.PrimaryLabel) {
			if err := r.stores.Issues.Update(ctx, issue); err != nil {
				return result, err
			}
		}
		r.writeBack(ctx, ri, pred.PrimaryLabel)
	}

	r.metrics.IssuesCreated(ctx, "project", result.Created)
	r.metrics.IssuesUpdated(ctx, "project", result.Updated)

	slog.Info("project imported",
		"owner", owner,
		"number", number,
		"items", len(remote.Items),
		"created", result.Created,
		"updated", result.Updated,
		"skipped", result.Skipped,
	)
	return result, nil
}

// merge creates or overwrites the local issue matching ri. Lookup is by
// remote id, then by URL. When keepOrigin is set, an existing issue keeps
// its provenance; otherwise it is re-homed to origin.
func (r *Reconciler) merge(ctx context.Context, ri model.RemoteIssue, origin model.Origin, keepOrigin bool) (model.Issue, bool, error) {
	existing, err := r.findExisting(ctx, ri)
	if err != nil {
		return model.Issue{}, false, err
	}

	if existing != nil {
		issue := *existing
		applyRemote(&issue, ri)
		if !keepOrigin || issue.Origin.Kind == model.OriginManual {
			issue.Origin = origin
		}
		if err := r.stores.Issues.Update(ctx, issue); err != nil {
			return model.Issue{}, false, err
		}
		return issue, false, nil
	}

	issue := model.Issue{
		UserID:    r.userID,
		Origin:    origin,
		CreatedAt: ri.CreatedAt,
	}
	if issue.CreatedAt.IsZero() {
		issue.CreatedAt = time.Now().UTC()
	}
	applyRemote(&issue, ri)

	issue, err = r.stores.Issues.Create(ctx, issue)
	if err != nil {
		return model.Issue{}, false, err
	}
	return issue, true, nil
}

func (r *Reconciler) findExisting(ctx context.Context, ri model.RemoteIssue) (*model.Issue, error) {
	if ri.ID != 0 {
		issue, err := r.stores.Issues.GetByRemoteID(ctx, r.userID, ri.ID)
		if err != nil || issue != nil {
			return issue, err
		}
	}
	return r.stores.Issues.GetByURL(ctx, r.userID, ri.URL)
}

// applyRemote overwrites the upstream-owned fields of issue.
func applyRemote(issue *model.Issue, ri model.RemoteIssue) {
	if ri.ID != 0 {
		id := ri.ID
		issue.RemoteID = &id
	}
	issue.Title = ri.Title
	issue.URL = ri.URL
	issue.Open = ri.Open
	issue.Body = ri.Body
	issue.Labels = model.JoinLabels(ri.Labels)
	issue.ClosedAt = ri.ClosedAt
}

// applyPrediction runs the predictor on issue and stores the result: the
// prediction set is replaced and the primary tag is applied. Predictor
// failures are logged and yield nil; store failures are returned.
func (r *Reconciler) applyPrediction(ctx context.Context, issue *model.Issue) (*model.Prediction, error) {
	if r.predictor == nil {
		return nil, nil
	}

	pred, err := r.predictor.Predict(ctx, issue.PredictionText())
	if err != nil {
		r.metrics.Prediction(ctx, "error")
		slog.Warn("label prediction failed", "issue_id", issue.ID, "error", err)
		return nil, nil
	}
	if pred == nil || strings.TrimSpace(pred.PrimaryLabel) == "" {
		r.metrics.Prediction(ctx, "empty")
		return nil, nil
	}
	r.metrics.Prediction(ctx, "ok")

	primary, err := r.stores.Tags.GetOrCreate(ctx, strings.TrimSpace(pred.PrimaryLabel))
	if err != nil {
		return nil, err
	}

	predictions := []model.PredictedTag{
		{IssueID: issue.ID, Tag: primary, Rank: model.RankPrimary, Score: pred.PrimaryScore},
	}

	if secondaryName := strings.TrimSpace(pred.SecondaryLabel); secondaryName != "" {
		secondary, err := r.stores.Tags.GetOrCreate(ctx, secondaryName)
		if err != nil {
			return nil, err
		}
		if secondary.ID != primary.ID {
			predictions = append(predictions, model.PredictedTag{
				IssueID: issue.ID, Tag: secondary, Rank: model.RankSecondary, Score: pred.SecondaryScore,
			})
		}
	}

	if err := r.stores.Tags.ReplacePredictedTags(ctx, issue.ID, predictions); err != nil {
		return nil, err
	}
	if err := r.stores.Tags.ApplyTag(ctx, issue.ID, primary.ID); err != nil {
		return nil, err
	}

	issue.PredictedTags = predictions
	pred.PrimaryLabel = primary.Name
	return pred, nil
}

// writeBack applies label to the upstream issue, logging any failure.
func (r *Reconciler) writeBack(ctx context.Context, ri model.RemoteIssue, label string) {
	if ri.Number == 0 {
		return
	}
	if err := r.source.AddLabels(ctx, ri.RepoOwner, ri.RepoName, ri.Number, []string{label}); err != nil {
		failure := &WriteBackFailure{Kind: "add_labels", Owner: ri.RepoOwner, Repo: ri.RepoName, Number: ri.Number, Err: err}
		r.metrics.WriteBackFailure(ctx, failure.Kind)
		slog.Warn("label write-back failed", "error", failure)
	}
}

// ensureLabels creates the category labels on owner/repo, logging any failure.
func (r *Reconciler) ensureLabels(ctx context.Context, owner, repo string) {
	if len(r.categories) == 0 {
		return
	}
	if err := r.source.EnsureLabels(ctx, owner, repo, r.categories); err != nil {
		failure := &WriteBackFailure{Kind: "ensure_labels", Owner: owner, Repo: repo, Err: err}
		r.metrics.WriteBackFailure(ctx, failure.Kind)
		slog.Warn("ensuring default labels failed", "error", failure)
	}
}

// cleanLabels trims labels and drops blanks and duplicates.
func cleanLabels(labels []string) []string {
	var out []string
	seen := make(map[string]bool, len(labels))
	for _, l := range labels {
		l = strings.TrimSpace(l)
		if l == "" || seen[l] {
			continue
		}
		seen[l] = true
		out = append(out, l)
	}
	return out
}

// matchesFilter reports whether an issue with labels is tracked by repo:
// either the repository tracks every issue or the issue carries one of the
// filter labels.
func matchesFilter(repo model.Repository, labels []string) bool {
	if repo.TracksAll() {
		return true
	}
	for _, want := range repo.LabelFilter {
		for _, l := range labels {
			if strings.EqualFold(want, l) {
				return true
			}
		}
	}
	return false
}
