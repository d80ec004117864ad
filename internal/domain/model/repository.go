package model

import "time"

// Repository represents an upstream GitHub repository tracked by one user.
// A repository is unique per (Owner, Name, UserID).
type Repository struct {
	ID          int64
	UserID      int64
	Owner       string
	Name        string
	RemoteID    int64
	URL         string
	Description string
	LabelFilter []string // Labels the repository is tracked by; empty tracks every issue.
	AddedAt     time.Time
}

// FullName returns the "owner/name" form of the repository.
func (r Repository) FullName() string {
	return r.Owner + "/" + r.Name
}

// TracksAll reports whether the repository has no label filter.
func (r Repository) TracksAll() bool {
	return len(r.LabelFilter) == 0
}

// AppendLabelFilter adds labels to the tracked filter set, skipping blanks
// and labels already present.
func (r *Repository) AppendLabelFilter(labels []string) {
	seen := make(map[string]bool, len(r.LabelFilter))
	for _, l := range r.LabelFilter {
		seen[l] = true
	}
	for _, l := range labels {
		if l == "" || seen[l] {
			continue
		}
		seen[l] = true
		r.LabelFilter = append(r.LabelFilter, l)
	}
}
