package types

import "time"

// SessionSummary is one row of the gateway's session listing.
type SessionSummary struct {
	Key       string    `json:"key"`
	Title     string    `json:"title,omitempty"`
	UpdatedAt time.Time `json:"updatedAt,omitempty"`
}

// RecentSession is a locally persisted record of a session the user
// navigated to, kept so the sidebar can show recents across restarts.
type RecentSession struct {
	Key        string    `json:"key"`
	Title      string    `json:"title,omitempty"`
	LastOpened time.Time `json:"last_opened"`
}
