package httphandler

import (
	"net/http"

	gh "github.com/google/go-github/v82/github"

	githubadapter "github.com/ericfisherdev/issuetriage/internal/adapter/driven/github"
	"github.com/ericfisherdev/issuetriage/internal/domain/model"
)

// reconciledActions are the issues-event actions that change fields the
// reconciler stores.
var reconciledActions = map[string]bool{
	"opened":    true,
	"edited":    true,
	"closed":    true,
	"reopened":  true,
	"labeled":   true,
	"unlabeled": true,
}

// GitHubWebhook receives GitHub webhook deliveries. The payload signature is
// verified against the configured secret; issues events are merged into every
// user tracking the repository.
func (h *Handler) GitHubWebhook(w http.ResponseWriter, r *http.Request) {
	if h.webhookSecret == nil {
		writeError(w, http.StatusNotFound, "webhook endpoint is not configured")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	payload, err := gh.ValidatePayload(r, h.webhookSecret)
	if err != nil {
		h.logger.Warn("rejected webhook delivery", "error", err)
		writeError(w, http.StatusUnauthorized, "invalid webhook signature")
		return
	}

	eventType := gh.WebHookType(r)
	event, err := gh.ParseWebHook(eventType, payload)
	if err != nil {
		writeError(w, http.StatusBadRequest, "unparseable webhook payload")
		return
	}

	switch e := event.(type) {
	case *gh.PingEvent:
		writeJSON(w, http.StatusOK, WebhookResponse{Status: "pong"})
	case *gh.IssuesEvent:
		h.handleIssuesEvent(w, r, e)
	default:
		writeJSON(w, http.StatusAccepted, WebhookResponse{Status: "ignored"})
	}
}

func (h *Handler) handleIssuesEvent(w http.ResponseWriter, r *http.Request, e *gh.IssuesEvent) {
	if !reconciledActions[e.GetAction()] || e.GetIssue() == nil || e.GetRepo() == nil {
		writeJSON(w, http.StatusAccepted, WebhookResponse{Status: "ignored"})
		return
	}

	ri := remoteIssueFromEvent(e)
	h.logger.Info("webhook issue event",
		"action", e.GetAction(),
		"repo", ri.RepoOwner+"/"+ri.RepoName,
		"number", ri.Number,
	)

	result, err := h.workspace.ReconcileWebhookIssue(r.Context(), ri)
	if err != nil {
		writeServiceError(w, h.logger, "failed to reconcile webhook issue", err)
		return
	}

	writeJSON(w, http.StatusOK, WebhookResponse{
		Status:   "received",
		Trackers: result.Trackers,
		Merged:   result.Merged,
	})
}

func remoteIssueFromEvent(e *gh.IssuesEvent) model.RemoteIssue {
	repo := e.GetRepo()
	return githubadapter.MapIssue(e.GetIssue(), repo.GetOwner().GetLogin(), repo.GetName())
}
