package model

import "time"

// Credential is a secret a user holds for an external service ("github").
type Credential struct {
	UserID    int64
	Service   string
	Value     string
	UpdatedAt time.Time
}
