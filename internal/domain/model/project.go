package model

import "time"

// DefaultProjectStatus is used when a project item has no status value.
const DefaultProjectStatus = "TODO"

// Project is a GitHub project board owned by a user or organization.
// It is unique per (UserID, Owner, Number).
type Project struct {
	ID       int64
	UserID   int64
	Owner    string
	Number   int
	RemoteID string
	Title    string
	URL      string
	AddedAt  time.Time
}

// ProjectIssue links a project to an issue with the item's board status.
type ProjectIssue struct {
	ProjectID int64
	IssueID   int64
	Status    string
}
