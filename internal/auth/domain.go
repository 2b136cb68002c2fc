package auth

import "time"

// User represents an authenticated staff account.
type User struct {
	ID           int64
	Username     string
	FullName     string
	Level        string
	PasswordHash string
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
