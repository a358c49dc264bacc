package domain

import "time"

// Comment is a single feed entry. Immutable once appended to a room's log.
type Comment struct {
	Sequence   uint64    `json:"sequence"`
	Author     string    `json:"author_id"`
	AuthorName string    `json:"author_name"`
	Body       string    `json:"body"`
	Timestamp  time.Time `json:"timestamp"`
}

// Member describes one room member in snapshots.
type Member struct {
	ConnectionID string `json:"connection_id"`
	Name         string `json:"name"`
}

// RoomInfo is the room summary exposed by the HTTP API.
type RoomInfo struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	HostID      string `json:"host_id"`
	MemberCount int    `json:"member_count"`
	Sequence    uint64 `json:"sequence"`
}
