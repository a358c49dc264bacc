package feed

import (
	"errors"
	"sync"
	"time"

	"github.com/collinglass/blarg/internal/domain"
)

var (
	// ErrNotMember is returned when a connection mutates a room it does not
	// belong to. Can arise from a benign race with a concurrent leave.
	ErrNotMember = errors.New("connection is not a member of the room")

	// ErrNotHost is returned when a non-host connection changes the title.
	ErrNotHost = errors.New("connection is not the room host")

	// ErrRoomGone is returned by Join when the room was torn down between
	// registry lookup and the join itself. Callers retry with a fresh room.
	ErrRoomGone = errors.New("room has been removed")
)

// Deliver enqueues an event for one connection. It is invoked while the room
// lock is held so subscribers observe events in exact sequence order, and it
// must never block.
type Deliver func(connID string, ev *domain.Event)

type member struct {
	id     string
	name   string
	joined uint64 // sequence at join time, used for host succession
}

// Room owns its membership set, comment log, title and sequence counter. All
// mutations are serialized by the room's own mutex; cross-room operations
// never contend.
type Room struct {
	id string

	mu        sync.Mutex
	gone      bool
	title     string
	hostID    string
	members   map[string]*member
	comments  []domain.Comment
	seq       uint64
	retention int // in-memory comment cap, 0 = unbounded
	snapshot  int // recent comments included in ROOM_DATA
}

func newRoom(id string, retention, snapshot int) *Room {
	return &Room{
		id:        id,
		title:     id,
		members:   make(map[string]*member),
		retention: retention,
		snapshot:  snapshot,
	}
}

// ID returns the room identifier.
func (r *Room) ID() string { return r.id }

// Join adds the connection to the membership set and delivers a ROOM_DATA
// snapshot to it. Other members receive USER_JOINED with the same sequence
// number. Joining a room one is already in refreshes the snapshot only.
func (r *Room) Join(connID, name string, deliver Deliver) (uint64, *domain.Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.gone {
		return 0, nil, ErrRoomGone
	}

	_, already := r.members[connID]
	r.seq++

	if !already {
		r.members[connID] = &member{id: connID, name: name, joined: r.seq}
		if r.hostID == "" {
			r.hostID = connID
		}
	}

	deliver(connID, domain.MustEvent(domain.EventRoomData, r.id, "", r.snapshotLocked()))

	var broadcast *domain.Event
	if !already {
		broadcast = domain.MustEvent(domain.EventUserJoined, r.id, connID, domain.UserJoinedPayload{
			RoomID:       r.id,
			ConnectionID: connID,
			Name:         name,
			Sequence:     r.seq,
		})
		for id := range r.members {
			if id != connID {
				deliver(id, broadcast)
			}
		}
	}

	return r.seq, broadcast, nil
}

// Leave removes the connection if present and broadcasts USER_LEFT to the
// remaining members. A leave by a non-member is a no-op: no event, no
// sequence number consumed. The second return reports whether the room is now
// empty and due for teardown.
func (r *Room) Leave(connID string, deliver Deliver) (*domain.Event, bool, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.members[connID]; !ok {
		return nil, len(r.members) == 0, false
	}

	delete(r.members, connID)
	r.seq++

	if connID == r.hostID {
		r.hostID = r.successorLocked()
	}

	broadcast := domain.MustEvent(domain.EventUserLeft, r.id, connID, domain.UserLeftPayload{
		RoomID:       r.id,
		ConnectionID: connID,
		Sequence:     r.seq,
	})
	for id := range r.members {
		deliver(id, broadcast)
	}

	return broadcast, len(r.members) == 0, true
}

// AddComment appends a comment authored by the given member and broadcasts
// COMMENT_ADDED to every member, the author included, so the author observes
// its position in the room order.
func (r *Room) AddComment(connID, body string, deliver Deliver) (domain.Comment, *domain.Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.members[connID]
	if !ok {
		return domain.Comment{}, nil, ErrNotMember
	}

	r.seq++
	c := domain.Comment{
		Sequence:   r.seq,
		Author:     connID,
		AuthorName: m.name,
		Body:       body,
		Timestamp:  time.Now().UTC(),
	}

	r.comments = append(r.comments, c)
	if r.retention > 0 && len(r.comments) > r.retention {
		trimmed := make([]domain.Comment, r.retention)
		copy(trimmed, r.comments[len(r.comments)-r.retention:])
		r.comments = trimmed
	}

	broadcast := domain.MustEvent(domain.EventCommentAdded, r.id, connID, domain.CommentAddedPayload{
		RoomID:   r.id,
		Comment:  c,
		Sequence: r.seq,
	})
	for id := range r.members {
		deliver(id, broadcast)
	}

	return c, broadcast, nil
}

// ChangeTitle updates the room title. Only the host may change it; everyone
// then receives the CHANGE_TITLE broadcast under the same per-room ordering
// discipline as comments.
func (r *Room) ChangeTitle(connID, title string, deliver Deliver) (uint64, *domain.Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.members[connID]; !ok {
		return 0, nil, ErrNotMember
	}
	if connID != r.hostID {
		return 0, nil, ErrNotHost
	}

	r.seq++
	r.title = title

	broadcast := domain.MustEvent(domain.EventChangeTitle, r.id, connID, domain.TitleChangedPayload{
		RoomID:   r.id,
		Title:    title,
		Sequence: r.seq,
	})
	for id := range r.members {
		deliver(id, broadcast)
	}

	return r.seq, broadcast, nil
}

// Info returns a summary for the HTTP API.
func (r *Room) Info() domain.RoomInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	return domain.RoomInfo{
		ID:          r.id,
		Title:       r.title,
		HostID:      r.hostID,
		MemberCount: len(r.members),
		Sequence:    r.seq,
	}
}

// Snapshot returns the full ROOM_DATA view of the room.
func (r *Room) Snapshot() domain.RoomDataPayload {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

// markGoneIfEmpty flags the room as removed iff it has no members. A gone
// room rejects all further joins; the registry drops its only reference.
func (r *Room) markGoneIfEmpty() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.gone {
		return true
	}
	if len(r.members) > 0 {
		return false
	}
	r.gone = true
	return true
}

func (r *Room) snapshotLocked() domain.RoomDataPayload {
	members := make([]domain.Member, 0, len(r.members))
	for _, m := range r.members {
		members = append(members, domain.Member{ConnectionID: m.id, Name: m.name})
	}

	recent := r.comments
	if r.snapshot > 0 && len(recent) > r.snapshot {
		recent = recent[len(recent)-r.snapshot:]
	}
	comments := make([]domain.Comment, len(recent))
	copy(comments, recent)

	return domain.RoomDataPayload{
		RoomID:         r.id,
		Title:          r.title,
		HostID:         r.hostID,
		Members:        members,
		RecentComments: comments,
		Sequence:       r.seq,
	}
}

// successorLocked picks the longest-standing remaining member as the new
// host, or "" when the room is empty.
func (r *Room) successorLocked() string {
	var next *member
	for _, m := range r.members {
		if next == nil || m.joined < next.joined {
			next = m
		}
	}
	if next == nil {
		return ""
	}
	return next.id
}
