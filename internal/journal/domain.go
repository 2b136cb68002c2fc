package journal

import "time"

// Entry is one row in the staff activity feed.
type Entry struct {
	ID       int64
	At       time.Time
	ActorID  int64
	Actor    string
	Action   string
	Entity   string
	EntityID string
	Meta     map[string]any
}

// Filters narrow the activity feed.
type Filters struct {
	From     time.Time
	To       time.Time
	Actor    string
	Entity   string
	Action   string
	Page     int
	PageSize int
}

// PagingInfo describes the window returned by Feed.
type PagingInfo struct {
	Page     int
	PageSize int
	HasNext  bool
	PrevPage int
	NextPage int
}
