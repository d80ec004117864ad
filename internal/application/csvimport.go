package application

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ericfisherdev/issuetriage/internal/domain/model"
	"github.com/ericfisherdev/issuetriage/internal/domain/port/driven"
	"github.com/ericfisherdev/issuetriage/internal/telemetry"
)

// CSV column positions. The first row is a header and is skipped.
const (
	colURL = iota
	colTitle
	colState
	colCategory
	colObservation
	colBody
	colDiscarded
)

// RowError records why one CSV row was not imported.
type RowError struct {
	Row int // 1-based line the row starts on; the header is line 1.
	Err error
}

func (e RowError) Error() string {
	return fmt.Sprintf("row %d: %v", e.Row, e.Err)
}

func (e RowError) Unwrap() error {
	return e.Err
}

// ImportResult summarizes a CSV import. A nonzero Errors count is a partial
// failure, not an error.
type ImportResult struct {
	Rows      int
	Created   int
	Updated   int
	Errors    int
	RowErrors []RowError
}

// CSVImporter merges spreadsheet rows into one user's issues.
type CSVImporter struct {
	userID  int64
	source  driven.IssueSource
	stores  Stores
	metrics *telemetry.Metrics
}

// NewCSVImporter creates an importer for userID. source resolves metadata
// of repositories the user does not track yet and may be nil, in which case
// rows pointing at unknown repositories fail.
func NewCSVImporter(userID int64, source driven.IssueSource, stores Stores, metrics *telemetry.Metrics) *CSVImporter {
	return &CSVImporter{userID: userID, source: source, stores: stores, metrics: metrics}
}

// Import reads rows from r. Each row is merged independently: a failing row
// is counted and logged and the import continues. Only a failure to read the
// header or the underlying reader is returned as an error.
func (c *CSVImporter) Import(ctx context.Context, r io.Reader) (ImportResult, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	if _, err := reader.Read(); err != nil {
		if errors.Is(err, io.EOF) {
			return ImportResult{}, nil
		}
		return ImportResult{}, fmt.Errorf("read csv header: %w", err)
	}

	var result ImportResult
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}

		// Rows are numbered by the physical line they start on, so quoted
		// multi-line fields do not shift later row numbers.
		var line int
		var parseErr *csv.ParseError
		switch {
		case err == nil:
			line, _ = reader.FieldPos(0)
		case errors.As(err, &parseErr):
			line = parseErr.StartLine
		default:
			return result, fmt.Errorf("read csv row %d: %w", result.Rows+2, err)
		}
		result.Rows++

		if err == nil {
			var created bool
			created, err = c.importRow(ctx, record)
			if err == nil {
				if created {
					result.Created++
				} else {
					result.Updated++
				}
				continue
			}
		}

		result.Errors++
		result.RowErrors = append(result.RowErrors, RowError{Row: line, Err: err})
		slog.Warn("csv row import failed", "row", line, "error", err)
	}

	c.metrics.IssuesCreated(ctx, "csv", result.Created)
	c.metrics.IssuesUpdated(ctx, "csv", result.Updated)

	slog.Info("csv import finished",
		"rows", result.Rows,
		"created", result.Created,
		"updated", result.Updated,
		"errors", result.Errors,
	)
	return result, nil
}

type csvRow struct {
	url         string
	title       string
	open        bool
	category    string
	observation string
	body        string
	discarded   bool
}

func parseRow(record []string) (csvRow, error) {
	field := func(i int) string {
		if i < len(record) {
			return strings.TrimSpace(record[i])
		}
		return ""
	}

	row := csvRow{
		url:         field(colURL),
		title:       field(colTitle),
		open:        true,
		category:    field(colCategory),
		observation: field(colObservation),
		body:        "",
	}
	if colBody < len(record) {
		row.body = record[colBody]
	}

	if row.title == "" {
		return csvRow{}, validationErrorf("title is required")
	}

	switch strings.ToLower(field(colState)) {
	case "", "open", "true":
		row.open = true
	case "closed", "false":
		row.open = false
	default:
		return csvRow{}, validationErrorf("state %q is neither open nor closed", field(colState))
	}

	if d := field(colDiscarded); d != "" {
		discarded, err := strconv.ParseBool(strings.ToLower(d))
		if err != nil {
			return csvRow{}, validationErrorf("discarded %q is not a boolean", d)
		}
		row.discarded = discarded
	}

	return row, nil
}

func (c *CSVImporter) importRow(ctx context.Context, record []string) (bool, error) {
	row, err := parseRow(record)
	if err != nil {
		return false, err
	}

	existing, err := c.stores.Issues.GetByURL(ctx, c.userID, row.url)
	if err != nil {
		return false, err
	}

	var issue model.Issue
	created := existing == nil

	if existing != nil {
		issue = *existing
		issue.Title = row.title
		issue.Open = row.open
		issue.Observation = row.observation
		issue.Body = row.body
		issue.Discarded = row.discarded
		if err := c.stores.Issues.Update(ctx, issue); err != nil {
			return false, err
		}
	} else {
		origin, err := c.resolveOrigin(ctx, row.url)
		if err != nil {
			return false, err
		}
		issue, err = c.stores.Issues.Create(ctx, model.Issue{
			UserID:      c.userID,
			URL:         row.url,
			Title:       row.title,
			Body:        row.body,
			Open:        row.open,
			Discarded:   row.discarded,
			Observation: row.observation,
			Origin:      origin,
			CreatedAt:   time.Now().UTC(),
		})
		if err != nil {
			return false, err
		}
	}

	if row.category != "" {
		tag, err := c.stores.Tags.GetOrCreate(ctx, row.category)
		if err != nil {
			return created, err
		}
		if err := c.stores.Tags.ApplyTag(ctx, issue.ID, tag.ID); err != nil {
			return created, err
		}
	}
	return created, nil
}

// resolveOrigin finds or registers the repository an issue URL points at.
// Rows without a recognizable repository URL become manual issues.
func (c *CSVImporter) resolveOrigin(ctx context.Context, rawURL string) (model.Origin, error) {
	owner, name, ok := repoFromIssueURL(rawURL)
	if !ok {
		return model.ManualOrigin(), nil
	}

	repo, err := c.stores.Repos.GetByOwnerName(ctx, c.userID, owner, name)
	if err != nil {
		return model.Origin{}, err
	}
	if repo != nil {
		return model.SyncedOrigin(repo.ID), nil
	}

	if c.source == nil {
		return model.Origin{}, fmt.Errorf("repository %s/%s is not tracked: %w", owner, name, ErrNoCredential)
	}
	remote, err := c.source.FetchRepository(ctx, owner, name)
	if err != nil {
		return model.Origin{}, err
	}

	added, err := c.stores.Repos.Add(ctx, model.Repository{
		UserID:      c.userID,
		Owner:       owner,
		Name:        name,
		RemoteID:    remote.ID,
		URL:         remote.URL,
		Description: remote.Description,
	})
	if err != nil {
		return model.Origin{}, err
	}
	slog.Info("repository registered from csv", "repo", added.FullName(), "user_id", c.userID)
	return model.SyncedOrigin(added.ID), nil
}

// repoFromIssueURL extracts owner and name from
// https://github.com/{owner}/{repo}/issues/{number}.
func repoFromIssueURL(rawURL string) (string, string, bool) {
	if rawURL == "" {
		return "", "", false
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return "", "", false
	}

	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}
