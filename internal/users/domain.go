package users

import "time"

// User represents a staff account for management screens.
type User struct {
	ID        int64
	Username  string
	FullName  string
	Level     string
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CreateInput carries the fields needed to register a staff account.
type CreateInput struct {
	Username string
	FullName string
	Level    string
	Password string
}

// UpdateInput carries editable account fields. An empty Password keeps
// the current one.
type UpdateInput struct {
	FullName string
	Level    string
	IsActive bool
	Password string
}
