package model

import (
	"strings"
	"time"
)

// OriginKind identifies where an issue came from.
type OriginKind string

const (
	OriginManual   OriginKind = "manual"
	OriginImported OriginKind = "imported"
	OriginSynced   OriginKind = "synced"
)

// Origin records the provenance of an issue. Exactly one of RepositoryID or
// ProjectID is set for synced and imported issues; neither for manual ones.
type Origin struct {
	Kind         OriginKind
	RepositoryID int64
	ProjectID    int64
}

// ManualOrigin returns the origin of an issue created by hand.
func ManualOrigin() Origin {
	return Origin{Kind: OriginManual}
}

// SyncedOrigin returns the origin of an issue synced from a repository.
func SyncedOrigin(repositoryID int64) Origin {
	return Origin{Kind: OriginSynced, RepositoryID: repositoryID}
}

// ImportedOrigin returns the origin of an issue that only exists locally
// because a project board links to it.
func ImportedOrigin(projectID int64) Origin {
	return Origin{Kind: OriginImported, ProjectID: projectID}
}

// Valid reports whether the origin's references match its kind.
func (o Origin) Valid() bool {
	switch o.Kind {
	case OriginManual:
		return o.RepositoryID == 0 && o.ProjectID == 0
	case OriginSynced:
		return o.RepositoryID != 0 && o.ProjectID == 0
	case OriginImported:
		return o.ProjectID != 0 && o.RepositoryID == 0
	default:
		return false
	}
}

// Issue is one unit of trackable work owned by a user.
type Issue struct {
	ID          int64
	UserID      int64
	RemoteID    *int64 // nil for manually created issues.
	URL         string
	Title       string
	Body        string
	Open        bool
	Discarded   bool
	Observation string
	Labels      string // Denormalized, comma-joined label string.
	Origin      Origin
	CreatedAt   time.Time
	ClosedAt    *time.Time

	// Populated on reads only.
	Tags           []Tag
	PredictedTags  []PredictedTag
	RepositoryName string
}

// JoinLabels builds the denormalized label string.
func JoinLabels(labels []string) string {
	return strings.Join(labels, ", ")
}

// SplitLabels parses a denormalized label string.
func SplitLabels(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// AppendLabel adds label to the denormalized label string unless it is
// already one of its entries.
func (i *Issue) AppendLabel(label string) bool {
	if label == "" {
		return false
	}
	existing := SplitLabels(i.Labels)
	for _, l := range existing {
		if strings.EqualFold(l, label) {
			return false
		}
	}
	i.Labels = JoinLabels(append(existing, label))
	return true
}

// PredictionText is the text handed to the label predictor.
func (i Issue) PredictionText() string {
	return i.Title + ". " + i.Body
}

// IssueFilter narrows issue listings.
type IssueFilter struct {
	UserID        int64
	Title         string
	Open          *bool
	Discarded     *bool
	RepositoryIDs []int64
	TagIDs        []int64
	CreatedFrom   *time.Time
	CreatedTo     *time.Time
	Page          int
	PageSize      int
}

// DefaultIssuePageSize is used when a filter does not specify one.
const DefaultIssuePageSize = 5

// Normalize fills in default pagination values.
func (f *IssueFilter) Normalize() {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize < 1 {
		f.PageSize = DefaultIssuePageSize
	}
	if f.PageSize > 100 {
		f.PageSize = 100
	}
}

// IssuePage is one page of a filtered issue listing.
type IssuePage struct {
	Issues   []Issue
	Total    int
	Page     int
	PageSize int
}

// HasNext reports whether another page follows.
func (p IssuePage) HasNext() bool {
	return p.Page*p.PageSize < p.Total
}

// HasPrevious reports whether a page precedes this one.
func (p IssuePage) HasPrevious() bool {
	return p.Page > 1
}
