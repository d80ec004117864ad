package httphandler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/ericfisherdev/issuetriage/internal/application"
	"github.com/ericfisherdev/issuetriage/internal/domain/model"
	"github.com/ericfisherdev/issuetriage/internal/domain/port/driven"
)

// writeJSON marshals v to JSON and writes it to the response with the given
// status code. If marshaling fails, a 500 error is written instead.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"internal server error"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// writeError writes a JSON error response with the given status code and message.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// writeServiceError maps an application or store error to its HTTP status.
// Upstream errors keep the upstream status code.
func writeServiceError(w http.ResponseWriter, logger *slog.Logger, msg string, err error) {
	var upstream *driven.UpstreamError

	switch {
	case errors.Is(err, application.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, driven.ErrRepoNotFound),
		errors.Is(err, driven.ErrIssueNotFound),
		errors.Is(err, driven.ErrTagNotFound),
		errors.Is(err, driven.ErrProjectNotFound),
		errors.Is(err, driven.ErrUserNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, driven.ErrRepoAlreadyExists), errors.Is(err, driven.ErrTagExists):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, application.ErrNoCredential):
		writeError(w, http.StatusPreconditionFailed, err.Error())
	case errors.Is(err, driven.ErrEncryptionKeyNotSet):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.As(err, &upstream):
		logger.Warn(msg, "upstream_status", upstream.StatusCode, "error", err)
		writeError(w, upstream.StatusCode, err.Error())
	default:
		logger.Error(msg, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// errorResponse is the standard error response body.
type errorResponse struct {
	Error string `json:"error"`
}

// HealthResponse is the JSON representation of the health check endpoint.
type HealthResponse struct {
	Status string `json:"status"`
	Time   string `json:"time"`
}

// RepoResponse is the JSON representation of a tracked repository.
type RepoResponse struct {
	ID          int64    `json:"id"`
	FullName    string   `json:"full_name"`
	Owner       string   `json:"owner"`
	Name        string   `json:"name"`
	RemoteID    int64    `json:"remote_id"`
	URL         string   `json:"url"`
	Description string   `json:"description"`
	LabelFilter []string `json:"label_filter"`
	AddedAt     string   `json:"added_at"`
}

// TagResponse is the JSON representation of a tag.
type TagResponse struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Code        string `json:"code"`
}

// PredictedTagResponse is one ranked prediction attached to an issue.
type PredictedTagResponse struct {
	Tag   TagResponse `json:"tag"`
	Rank  int         `json:"rank"`
	Score float64     `json:"score"`
}

// OriginResponse is the JSON representation of an issue's provenance.
type OriginResponse struct {
	Kind         string `json:"kind"`
	RepositoryID int64  `json:"repository_id,omitempty"`
	ProjectID    int64  `json:"project_id,omitempty"`
}

// IssueResponse is the JSON representation of an issue.
type IssueResponse struct {
	ID            int64                  `json:"id"`
	RemoteID      *int64                 `json:"remote_id"`
	URL           string                 `json:"url"`
	Title         string                 `json:"title"`
	Body          string                 `json:"body"`
	BodyHTML      string                 `json:"body_html"`
	Open          bool                   `json:"open"`
	Discarded     bool                   `json:"discarded"`
	Observation   string                 `json:"observation"`
	Labels        []string               `json:"labels"`
	Repository    string                 `json:"repository"`
	Origin        OriginResponse         `json:"origin"`
	Tags          []TagResponse          `json:"tags"`
	PredictedTags []PredictedTagResponse `json:"predicted_tags"`
	CreatedAt     string                 `json:"created_at"`
	ClosedAt      *string                `json:"closed_at"`
}

// IssuePageResponse is one page of an issue listing.
type IssuePageResponse struct {
	Issues      []IssueResponse `json:"issues"`
	Total       int             `json:"total"`
	Page        int             `json:"page"`
	PageSize    int             `json:"page_size"`
	HasNext     bool            `json:"has_next"`
	HasPrevious bool            `json:"has_previous"`
}

// SyncResponse reports a repository registration or sync.
type SyncResponse struct {
	Repository RepoResponse    `json:"repository"`
	Created    int             `json:"created"`
	Updated    []IssueResponse `json:"updated"`
}

// ProjectResponse is the JSON representation of an imported project board.
type ProjectResponse struct {
	ID       int64  `json:"id"`
	Owner    string `json:"owner"`
	Number   int    `json:"number"`
	RemoteID string `json:"remote_id"`
	Title    string `json:"title"`
	URL      string `json:"url"`
	AddedAt  string `json:"added_at"`
}

// ProjectImportResponse reports a project-board import.
type ProjectImportResponse struct {
	Project ProjectResponse `json:"project"`
	Created int             `json:"created"`
	Updated int             `json:"updated"`
	Linked  int             `json:"linked"`
	Skipped int             `json:"skipped"`
}

// RepoIssuesResponse lists the issues synced from one repository.
type RepoIssuesResponse struct {
	Repository RepoResponse    `json:"repository"`
	Issues     []IssueResponse `json:"issues"`
}

// ProjectItemResponse is an issue on a project board with its board status.
type ProjectItemResponse struct {
	Status string        `json:"status"`
	Issue  IssueResponse `json:"issue"`
}

// ProjectIssuesResponse lists the issues linked from one project board.
type ProjectIssuesResponse struct {
	Project ProjectResponse       `json:"project"`
	Items   []ProjectItemResponse `json:"items"`
}

// OwnerRepoResponse is one upstream repository of an owner. TrackedID is the
// local repository id when the user already tracks it.
type OwnerRepoResponse struct {
	RemoteID    int64  `json:"remote_id"`
	FullName    string `json:"full_name"`
	Owner       string `json:"owner"`
	Name        string `json:"name"`
	URL         string `json:"url"`
	Description string `json:"description"`
	TrackedID   int64  `json:"tracked_id,omitempty"`
}

// CSVImportResponse reports a CSV import. Errors is nonzero on partial failure.
type CSVImportResponse struct {
	Rows      int      `json:"rows"`
	Created   int      `json:"created"`
	Updated   int      `json:"updated"`
	Errors    int      `json:"errors"`
	RowErrors []string `json:"row_errors"`
}

// TokenResponse confirms a stored credential.
type TokenResponse struct {
	Login string `json:"login"`
}

// WebhookResponse acknowledges a webhook delivery.
type WebhookResponse struct {
	Status   string `json:"status"`
	Trackers int    `json:"trackers,omitempty"`
	Merged   int    `json:"merged,omitempty"`
}

// AddRepoRequest is the JSON body for the register repository endpoint.
type AddRepoRequest struct {
	Owner  string   `json:"owner"`
	Name   string   `json:"name"`
	Labels []string `json:"labels"`
}

// SyncRequest is the optional JSON body for the sync endpoint.
type SyncRequest struct {
	Labels []string `json:"labels"`
}

// CreateIssueRequest is the JSON body for creating a manual issue.
type CreateIssueRequest struct {
	Title       string  `json:"title"`
	Body        string  `json:"body"`
	URL         string  `json:"url"`
	Observation string  `json:"observation"`
	Open        *bool   `json:"open"`
	TagIDs      []int64 `json:"tag_ids"`
}

// ObservationRequest is the JSON body for updating an observation.
type ObservationRequest struct {
	Observation string `json:"observation"`
}

// TagIDsRequest is the JSON body for replacing an issue's tags.
type TagIDsRequest struct {
	TagIDs []int64 `json:"tag_ids"`
}

// TagRequest is the JSON body for creating or updating a tag.
type TagRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Code        string `json:"code"`
}

// ImportProjectRequest is the JSON body for importing a project board.
type ImportProjectRequest struct {
	Owner  string `json:"owner"`
	Number int    `json:"number"`
}

// TokenRequest is the JSON body for storing a GitHub token.
type TokenRequest struct {
	Token string `json:"token"`
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// toRepoResponse converts a domain Repository to its JSON response representation.
func toRepoResponse(repo model.Repository) RepoResponse {
	filter := repo.LabelFilter
	if filter == nil {
		filter = []string{}
	}
	return RepoResponse{
		ID:          repo.ID,
		FullName:    repo.FullName(),
		Owner:       repo.Owner,
		Name:        repo.Name,
		RemoteID:    repo.RemoteID,
		URL:         repo.URL,
		Description: repo.Description,
		LabelFilter: filter,
		AddedAt:     formatTime(repo.AddedAt),
	}
}

func toTagResponse(tag model.Tag) TagResponse {
	return TagResponse{ID: tag.ID, Name: tag.Name, Description: tag.Description, Code: tag.Code}
}

// toIssueResponse converts a domain Issue to its JSON representation,
// rendering the markdown body to sanitized HTML.
func toIssueResponse(issue model.Issue) IssueResponse {
	labels := model.SplitLabels(issue.Labels)
	if labels == nil {
		labels = []string{}
	}

	tags := make([]TagResponse, 0, len(issue.Tags))
	for _, tag := range issue.Tags {
		tags = append(tags, toTagResponse(tag))
	}

	predicted := make([]PredictedTagResponse, 0, len(issue.PredictedTags))
	for _, p := range issue.PredictedTags {
		predicted = append(predicted, PredictedTagResponse{
			Tag:   toTagResponse(p.Tag),
			Rank:  int(p.Rank),
			Score: p.Score,
		})
	}

	resp := IssueResponse{
		ID:          issue.ID,
		RemoteID:    issue.RemoteID,
		URL:         issue.URL,
		Title:       issue.Title,
		Body:        issue.Body,
		BodyHTML:    RenderMarkdown(issue.Body),
		Open:        issue.Open,
		Discarded:   issue.Discarded,
		Observation: issue.Observation,
		Labels:      labels,
		Repository:  issue.RepositoryName,
		Origin: OriginResponse{
			Kind:         string(issue.Origin.Kind),
			RepositoryID: issue.Origin.RepositoryID,
			ProjectID:    issue.Origin.ProjectID,
		},
		Tags:          tags,
		PredictedTags: predicted,
		CreatedAt:     formatTime(issue.CreatedAt),
	}
	if issue.ClosedAt != nil {
		closed := formatTime(*issue.ClosedAt)
		resp.ClosedAt = &closed
	}
	return resp
}

func toIssueResponses(issues []model.Issue) []IssueResponse {
	resp := make([]IssueResponse, 0, len(issues))
	for _, issue := range issues {
		resp = append(resp, toIssueResponse(issue))
	}
	return resp
}

func toProjectResponse(p model.Project) ProjectResponse {
	return ProjectResponse{
		ID:       p.ID,
		Owner:    p.Owner,
		Number:   p.Number,
		RemoteID: p.RemoteID,
		Title:    p.Title,
		URL:      p.URL,
		AddedAt:  formatTime(p.AddedAt),
	}
}

func toSyncResponse(result application.SyncResult) SyncResponse {
	return SyncResponse{
		Repository: toRepoResponse(result.Repository),
		Created:    result.Created,
		Updated:    toIssueResponses(result.Updated),
	}
}
