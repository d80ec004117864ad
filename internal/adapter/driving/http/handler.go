// Package httphandler is the HTTP driving adapter serving the REST API.
package httphandler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ericfisherdev/issuetriage/internal/application"
	"github.com/ericfisherdev/issuetriage/internal/domain/model"
	"github.com/ericfisherdev/issuetriage/internal/domain/port/driven"
)

// UserHeader selects the user a request acts as. Requests without it act as
// the handler's default user.
const UserHeader = "X-Issuetriage-User"

// maxUploadBytes bounds CSV uploads.
const maxUploadBytes = 10 << 20

// Handler is the HTTP driving adapter that serves the REST API.
type Handler struct {
	users         driven.UserStore
	triage        *application.TriageService
	workspace     *application.Workspace
	validator     driven.TokenValidator
	defaultLogin  string
	webhookSecret []byte
	logger        *slog.Logger
}

// NewHandler creates a Handler with all required dependencies. An empty
// webhookSecret disables the webhook endpoint.
func NewHandler(
	users driven.UserStore,
	triage *application.TriageService,
	workspace *application.Workspace,
	validator driven.TokenValidator,
	defaultLogin string,
	webhookSecret string,
	logger *slog.Logger,
) *Handler {
	var secret []byte
	if webhookSecret != "" {
		secret = []byte(webhookSecret)
	}
	return &Handler{
		users:         users,
		triage:        triage,
		workspace:     workspace,
		validator:     validator,
		defaultLogin:  defaultLogin,
		webhookSecret: secret,
		logger:        logger,
	}
}

// NewServeMux creates an http.Handler with all routes registered and wrapped
// with logging and recovery middleware.
func NewServeMux(h *Handler, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/health", h.Health)

	mux.HandleFunc("GET /api/v1/repos", h.ListRepos)
	mux.HandleFunc("POST /api/v1/repos", h.RegisterRepo)
	mux.HandleFunc("GET /api/v1/repos/{id}/issues", h.RepoIssues)
	mux.HandleFunc("POST /api/v1/repos/{id}/sync", h.SyncRepo)
	mux.HandleFunc("GET /api/v1/github/repos", h.OwnerRepos)

	mux.HandleFunc("GET /api/v1/issues", h.ListIssues)
	mux.HandleFunc("POST /api/v1/issues", h.CreateIssue)
	mux.HandleFunc("GET /api/v1/issues/{id}", h.GetIssue)
	mux.HandleFunc("POST /api/v1/issues/{id}/discard", h.ToggleDiscarded)
	mux.HandleFunc("PUT /api/v1/issues/{id}/observation", h.UpdateObservation)
	mux.HandleFunc("PUT /api/v1/issues/{id}/tags", h.ReplaceTags)

	mux.HandleFunc("GET /api/v1/tags", h.ListTags)
	mux.HandleFunc("POST /api/v1/tags", h.CreateTag)
	mux.HandleFunc("PUT /api/v1/tags/{id}", h.UpdateTag)

	mux.HandleFunc("GET /api/v1/projects", h.ListProjects)
	mux.HandleFunc("POST /api/v1/projects", h.ImportProject)
	mux.HandleFunc("GET /api/v1/projects/{id}/issues", h.ProjectIssues)

	mux.HandleFunc("POST /api/v1/import/csv", h.ImportCSV)

	mux.HandleFunc("PUT /api/v1/token", h.SetToken)
	mux.HandleFunc("DELETE /api/v1/token", h.ClearToken)

	mux.HandleFunc("POST /api/v1/webhooks/github", h.GitHubWebhook)

	// Recovery innermost so panics are caught before logging.
	wrapped := recoveryMiddleware(logger, mux)
	wrapped = loggingMiddleware(logger, wrapped)

	return wrapped
}

// currentUser resolves the user a request acts as, creating it on first use.
func (h *Handler) currentUser(w http.ResponseWriter, r *http.Request) (model.User, bool) {
	login := strings.TrimSpace(r.Header.Get(UserHeader))
	if login == "" {
		login = h.defaultLogin
	}

	user, err := h.users.GetOrCreate(r.Context(), login)
	if err != nil {
		h.logger.Error("failed to resolve user", "login", login, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return model.User{}, false
	}
	return user, true
}

// Health returns a simple health check response.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status: "ok",
		Time:   formatTime(time.Now()),
	})
}

// ListRepos returns the user's tracked repositories.
func (h *Handler) ListRepos(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	repos, err := h.triage.ListRepositories(r.Context(), user.ID)
	if err != nil {
		writeServiceError(w, h.logger, "failed to list repos", err)
		return
	}

	resp := make([]RepoResponse, 0, len(repos))
	for _, repo := range repos {
		resp = append(resp, toRepoResponse(repo))
	}
	writeJSON(w, http.StatusOK, resp)
}

// RegisterRepo starts tracking a repository and runs its initial sync.
func (h *Handler) RegisterRepo(w http.ResponseWriter, r *http.Request) {
	var req AddRepoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if !isValidRepoName(req.Owner + "/" + req.Name) {
		writeError(w, http.StatusBadRequest, "invalid repository: owner and name may only contain letters, digits, '-', '.' and '_'")
		return
	}

	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	result, err := h.workspace.Reconciler(user.ID).RegisterRepository(r.Context(), req.Owner, req.Name, req.Labels)
	if err != nil {
		writeServiceError(w, h.logger, "failed to register repo", err)
		return
	}

	writeJSON(w, http.StatusCreated, toSyncResponse(result))
}

// RepoIssues returns every issue synced from a tracked repository.
func (h *Handler) RepoIssues(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	repo, issues, err := h.triage.RepositoryIssues(r.Context(), user.ID, id)
	if err != nil {
		writeServiceError(w, h.logger, "failed to list repo issues", err)
		return
	}

	writeJSON(w, http.StatusOK, RepoIssuesResponse{
		Repository: toRepoResponse(repo),
		Issues:     toIssueResponses(issues),
	})
}

// OwnerRepos lists the upstream repositories of the owner query parameter,
// marking the ones the user already tracks.
func (h *Handler) OwnerRepos(w http.ResponseWriter, r *http.Request) {
	owner := strings.TrimSpace(r.URL.Query().Get("owner"))
	if owner == "" || !isValidRepoName(owner+"/x") {
		writeError(w, http.StatusBadRequest, "invalid owner")
		return
	}

	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	repos, err := h.workspace.OwnerRepositories(r.Context(), user.ID, owner)
	if err != nil {
		writeServiceError(w, h.logger, "failed to list owner repos", err)
		return
	}

	resp := make([]OwnerRepoResponse, 0, len(repos))
	for _, repo := range repos {
		resp = append(resp, OwnerRepoResponse{
			RemoteID:    repo.ID,
			FullName:    repo.Owner + "/" + repo.Name,
			Owner:       repo.Owner,
			Name:        repo.Name,
			URL:         repo.URL,
			Description: repo.Description,
			TrackedID:   repo.TrackedID,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// SyncRepo re-fetches a tracked repository's issues. An empty or absent
// label list clears the repository's label filter.
func (h *Handler) SyncRepo(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	var req SyncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	result, err := h.workspace.Reconciler(user.ID).SyncRepository(r.Context(), id, req.Labels)
	if err != nil {
		writeServiceError(w, h.logger, "failed to sync repo", err)
		return
	}

	writeJSON(w, http.StatusOK, toSyncResponse(result))
}

// ListIssues returns one page of the user's issues. Query parameters:
// title, open, discarded, repository (repeatable or comma-separated ids),
// tag (likewise), created_from, created_to (RFC 3339 or YYYY-MM-DD), page,
// page_size.
func (h *Handler) ListIssues(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	filter, err := parseIssueFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	filter.UserID = user.ID

	page, err := h.triage.ListIssues(r.Context(), filter)
	if err != nil {
		writeServiceError(w, h.logger, "failed to list issues", err)
		return
	}

	writeJSON(w, http.StatusOK, IssuePageResponse{
		Issues:      toIssueResponses(page.Issues),
		Total:       page.Total,
		Page:        page.Page,
		PageSize:    page.PageSize,
		HasNext:     page.HasNext(),
		HasPrevious: page.HasPrevious(),
	})
}

// GetIssue returns one issue with its tags and predictions.
func (h *Handler) GetIssue(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	issue, err := h.triage.GetIssue(r.Context(), user.ID, id)
	if err != nil {
		writeServiceError(w, h.logger, "failed to get issue", err)
		return
	}
	writeJSON(w, http.StatusOK, toIssueResponse(issue))
}

// CreateIssue stores a manual issue.
func (h *Handler) CreateIssue(w http.ResponseWriter, r *http.Request) {
	var req CreateIssueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	open := true
	if req.Open != nil {
		open = *req.Open
	}

	issue, err := h.triage.CreateManualIssue(r.Context(), user.ID, application.ManualIssue{
		Title:       req.Title,
		Body:        req.Body,
		URL:         req.URL,
		Observation: req.Observation,
		Open:        open,
		TagIDs:      req.TagIDs,
	})
	if err != nil {
		writeServiceError(w, h.logger, "failed to create issue", err)
		return
	}
	writeJSON(w, http.StatusCreated, toIssueResponse(issue))
}

// ToggleDiscarded flips an issue's discarded flag.
func (h *Handler) ToggleDiscarded(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	issue, err := h.triage.ToggleDiscarded(r.Context(), user.ID, id)
	if err != nil {
		writeServiceError(w, h.logger, "failed to toggle discarded", err)
		return
	}
	writeJSON(w, http.StatusOK, toIssueResponse(issue))
}

// UpdateObservation replaces an issue's observation text.
func (h *Handler) UpdateObservation(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	var req ObservationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	issue, err := h.triage.UpdateObservation(r.Context(), user.ID, id, req.Observation)
	if err != nil {
		writeServiceError(w, h.logger, "failed to update observation", err)
		return
	}
	writeJSON(w, http.StatusOK, toIssueResponse(issue))
}

// ReplaceTags sets an issue's applied tags.
func (h *Handler) ReplaceTags(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	var req TagIDsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	issue, err := h.triage.ReplaceTags(r.Context(), user.ID, id, req.TagIDs)
	if err != nil {
		writeServiceError(w, h.logger, "failed to replace tags", err)
		return
	}
	writeJSON(w, http.StatusOK, toIssueResponse(issue))
}

// ListTags returns every tag.
func (h *Handler) ListTags(w http.ResponseWriter, r *http.Request) {
	tags, err := h.triage.ListTags(r.Context())
	if err != nil {
		writeServiceError(w, h.logger, "failed to list tags", err)
		return
	}

	resp := make([]TagResponse, 0, len(tags))
	for _, tag := range tags {
		resp = append(resp, toTagResponse(tag))
	}
	writeJSON(w, http.StatusOK, resp)
}

// CreateTag adds a tag.
func (h *Handler) CreateTag(w http.ResponseWriter, r *http.Request) {
	var req TagRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	tag, err := h.triage.CreateTag(r.Context(), model.Tag{Name: req.Name, Description: req.Description, Code: req.Code})
	if err != nil {
		writeServiceError(w, h.logger, "failed to create tag", err)
		return
	}
	writeJSON(w, http.StatusCreated, toTagResponse(tag))
}

// UpdateTag overwrites a tag.
func (h *Handler) UpdateTag(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	var req TagRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	tag, err := h.triage.UpdateTag(r.Context(), model.Tag{ID: id, Name: req.Name, Description: req.Description, Code: req.Code})
	if err != nil {
		writeServiceError(w, h.logger, "failed to update tag", err)
		return
	}
	writeJSON(w, http.StatusOK, toTagResponse(tag))
}

// ListProjects returns the user's imported project boards.
func (h *Handler) ListProjects(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	projects, err := h.triage.ListProjects(r.Context(), user.ID)
	if err != nil {
		writeServiceError(w, h.logger, "failed to list projects", err)
		return
	}

	resp := make([]ProjectResponse, 0, len(projects))
	for _, p := range projects {
		resp = append(resp, toProjectResponse(p))
	}
	writeJSON(w, http.StatusOK, resp)
}

// ImportProject imports a project board and its linked issues.
func (h *Handler) ImportProject(w http.ResponseWriter, r *http.Request) {
	var req ImportProjectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	result, err := h.workspace.Reconciler(user.ID).ImportProject(r.Context(), req.Owner, req.Number)
	if err != nil {
		writeServiceError(w, h.logger, "failed to import project", err)
		return
	}

	writeJSON(w, http.StatusOK, ProjectImportResponse{
		Project: toProjectResponse(result.Project),
		Created: result.Created,
		Updated: result.Updated,
		Linked:  result.Linked,
		Skipped: result.Skipped,
	})
}

// ProjectIssues returns the issues linked from an imported project board
// with their board status.
func (h *Handler) ProjectIssues(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	project, items, err := h.triage.ProjectIssues(r.Context(), user.ID, id)
	if err != nil {
		writeServiceError(w, h.logger, "failed to list project issues", err)
		return
	}

	resp := ProjectIssuesResponse{
		Project: toProjectResponse(project),
		Items:   make([]ProjectItemResponse, 0, len(items)),
	}
	for _, item := range items {
		resp.Items = append(resp.Items, ProjectItemResponse{
			Status: item.Status,
			Issue:  toIssueResponse(item.Issue),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// ImportCSV merges an uploaded CSV into the user's issues. The file is read
// from the multipart field "file" or, for other content types, from the raw
// body. Row failures produce a 200 with a nonzero error count.
func (h *Handler) ImportCSV(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	var src io.Reader = r.Body
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		file, _, err := r.FormFile("file")
		if err != nil {
			writeError(w, http.StatusBadRequest, "missing multipart field \"file\"")
			return
		}
		defer file.Close()
		src = file
	}

	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	importer, err := h.workspace.CSVImporter(r.Context(), user.ID)
	if err != nil {
		writeServiceError(w, h.logger, "failed to build csv importer", err)
		return
	}

	result, err := importer.Import(r.Context(), src)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	rowErrors := make([]string, 0, len(result.RowErrors))
	for _, re := range result.RowErrors {
		rowErrors = append(rowErrors, re.Error())
	}

	writeJSON(w, http.StatusOK, CSVImportResponse{
		Rows:      result.Rows,
		Created:   result.Created,
		Updated:   result.Updated,
		Errors:    result.Errors,
		RowErrors: rowErrors,
	})
}

// SetToken validates and stores the user's GitHub token.
func (h *Handler) SetToken(w http.ResponseWriter, r *http.Request) {
	var req TokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	login, err := h.workspace.Provider().SetToken(r.Context(), user.ID, strings.TrimSpace(req.Token), h.validator)
	if err != nil {
		writeServiceError(w, h.logger, "failed to store token", err)
		return
	}
	writeJSON(w, http.StatusOK, TokenResponse{Login: login})
}

// ClearToken removes the user's stored GitHub token.
func (h *Handler) ClearToken(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	if err := h.workspace.Provider().ClearToken(r.Context(), user.ID); err != nil {
		writeServiceError(w, h.logger, "failed to clear token", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// pathID parses the {id} path value, writing a 400 when it is malformed.
func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid id")
		return 0, false
	}
	return id, true
}

func parseIssueFilter(r *http.Request) (model.IssueFilter, error) {
	q := r.URL.Query()
	var f model.IssueFilter
	var err error

	f.Title = strings.TrimSpace(q.Get("title"))

	if f.Open, err = parseOptionalBool(q.Get("open"), "open"); err != nil {
		return f, err
	}
	if f.Discarded, err = parseOptionalBool(q.Get("discarded"), "discarded"); err != nil {
		return f, err
	}
	if f.RepositoryIDs, err = parseIDList(q["repository"], "repository"); err != nil {
		return f, err
	}
	if f.TagIDs, err = parseIDList(q["tag"], "tag"); err != nil {
		return f, err
	}
	if f.CreatedFrom, err = parseOptionalTime(q.Get("created_from"), "created_from", false); err != nil {
		return f, err
	}
	if f.CreatedTo, err = parseOptionalTime(q.Get("created_to"), "created_to", true); err != nil {
		return f, err
	}
	if f.Page, err = parseOptionalInt(q.Get("page"), "page"); err != nil {
		return f, err
	}
	if f.PageSize, err = parseOptionalInt(q.Get("page_size"), "page_size"); err != nil {
		return f, err
	}
	return f, nil
}

func parseOptionalBool(v, name string) (*bool, error) {
	if v == "" {
		return nil, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %q", name, v)
	}
	return &b, nil
}

func parseOptionalInt(v, name string) (int, error) {
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("invalid %s: %q", name, v)
	}
	return n, nil
}

func parseIDList(values []string, name string) ([]int64, error) {
	var ids []int64
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			id, err := strconv.ParseInt(part, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid %s id: %q", name, part)
			}
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// parseOptionalTime accepts RFC 3339 or a bare date. A bare end date covers
// the whole day.
func parseOptionalTime(v, name string, endOfDay bool) (*time.Time, error) {
	if v == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return &t, nil
	}
	t, err := time.Parse(time.DateOnly, v)
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %q", name, v)
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Second)
	}
	return &t, nil
}

// isValidRepoName validates that name is in owner/repo format where each part
// contains only alphanumeric characters, hyphens, dots, or underscores.
func isValidRepoName(name string) bool {
	parts := strings.SplitN(name, "/", 3)
	if len(parts) != 2 {
		return false
	}

	for _, part := range parts {
		if part == "" {
			return false
		}
		for _, ch := range part {
			if !isValidRepoChar(ch) {
				return false
			}
		}
	}

	return true
}

// isValidRepoChar returns true if the rune is allowed in a repository owner or name.
func isValidRepoChar(ch rune) bool {
	return (ch >= 'a' && ch <= 'z') ||
		(ch >= 'A' && ch <= 'Z') ||
		(ch >= '0' && ch <= '9') ||
		ch == '-' || ch == '.' || ch == '_'
}
