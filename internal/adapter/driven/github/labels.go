package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	gh "github.com/google/go-github/v82/github"

	"github.com/ericfisherdev/issuetriage/internal/domain/model"
)

// AddLabels applies labels to an upstream issue. GitHub creates any label
// that does not exist yet on the repository.
func (c *Client) AddLabels(ctx context.Context, owner, repo string, number int, labels []string) error {
	if len(labels) == 0 {
		return nil
	}

	_, resp, err := c.gh.Issues.AddLabelsToIssue(ctx, owner, repo, number, labels)
	if err != nil {
		return fmt.Errorf("adding labels to %s/%s#%d: %w", owner, repo, number, upstreamError(resp, err))
	}
	return nil
}

// EnsureLabels creates each category that is missing from the repository.
// It stops at the first failure other than a missing label.
func (c *Client) EnsureLabels(ctx context.Context, owner, repo string, categories []model.Category) error {
	for _, cat := range categories {
		_, resp, err := c.gh.Issues.GetLabel(ctx, owner, repo, cat.Name)
		if err == nil {
			continue
		}
		if !isNotFound(err) {
			return fmt.Errorf("getting label %q on %s/%s: %w", cat.Name, owner, repo, upstreamError(resp, err))
		}

		label := &gh.Label{
			Name:  gh.Ptr(cat.Name),
			Color: gh.Ptr(strings.TrimPrefix(cat.Color, "#")),
		}
		if cat.Description != "" {
			label.Description = gh.Ptr(cat.Description)
		}

		_, resp, err = c.gh.Issues.CreateLabel(ctx, owner, repo, label)
		if err != nil {
			return fmt.Errorf("creating label %q on %s/%s: %w", cat.Name, owner, repo, upstreamError(resp, err))
		}
	}
	return nil
}

func isNotFound(err error) bool {
	var ghErr *gh.ErrorResponse
	return errors.As(err, &ghErr) && ghErr.Response != nil && ghErr.Response.StatusCode == http.StatusNotFound
}
