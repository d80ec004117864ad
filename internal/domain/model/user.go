package model

import "time"

// User owns repositories, issues and projects, and holds its own GitHub
// credential.
type User struct {
	ID        int64
	Login     string
	CreatedAt time.Time
}
