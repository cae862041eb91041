package store

import "time"

// Session is a persisted Tovala API session. Saving it across restarts lets
// the service resume polling without spending another login attempt.
type Session struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	Host      string    `json:"host"`
	UserID    int64     `json:"user_id,omitempty"`
}

// Oven is a discovered oven, remembered so discovery only has to succeed once.
type Oven struct {
	ID           string    `json:"id"`
	Account      string    `json:"account"`
	Name         string    `json:"name,omitempty"`
	DiscoveredAt time.Time `json:"discovered_at"`
	LastSeen     time.Time `json:"last_seen"`
}
