package domain

import (
	"encoding/json"
	"fmt"
)

// EventType identifies a feed protocol event. The set is closed: dispatch
// switches over every member and rejects anything else with HANDLE_ERROR.
type EventType string

// Client -> server events.
const (
	EventConnectFeed EventType = "CONNECT_FEED"
	EventJoin        EventType = "JOIN"
	EventLeave       EventType = "LEAVE"
	EventAddComment  EventType = "ADD_COMMENT"
)

// Server -> client events.
const (
	EventRoomData     EventType = "ROOM_DATA"
	EventUserJoined   EventType = "USER_JOINED"
	EventUserLeft     EventType = "USER_LEFT"
	EventCommentAdded EventType = "COMMENT_ADDED"
	EventHandleError  EventType = "HANDLE_ERROR"
)

// EventChangeTitle flows both ways: inbound as a title mutation request,
// outbound as the resulting broadcast.
const EventChangeTitle EventType = "CHANGE_TITLE"

// Error kinds carried by HANDLE_ERROR payloads.
const (
	ErrKindNotMember   = "NOT_MEMBER"
	ErrKindNotInRoom   = "NOT_IN_ROOM"
	ErrKindUnknownRoom = "UNKNOWN_ROOM"
	ErrKindNotHost     = "NOT_HOST"
	ErrKindBadRequest  = "BAD_REQUEST"
)

// Event is the envelope flowing through the whole system. Immutable once
// constructed: a single instance is shared across all recipients of a
// broadcast.
type Event struct {
	Type    EventType       `json:"type"`
	RoomID  string          `json:"room_id,omitempty"`
	Sender  string          `json:"sender_id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewEvent creates an envelope with a marshalled payload.
func NewEvent(t EventType, roomID, sender string, payload interface{}) (*Event, error) {
	var data json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal %s payload: %w", t, err)
		}
		data = b
	}
	return &Event{
		Type:    t,
		RoomID:  roomID,
		Sender:  sender,
		Payload: data,
	}, nil
}

// MustEvent is NewEvent for payload types that cannot fail to marshal.
func MustEvent(t EventType, roomID, sender string, payload interface{}) *Event {
	ev, err := NewEvent(t, roomID, sender, payload)
	if err != nil {
		panic(err)
	}
	return ev
}

// UnmarshalPayload unmarshals the event payload into the given struct.
func (e *Event) UnmarshalPayload(v interface{}) error {
	if len(e.Payload) == 0 {
		return fmt.Errorf("%s event has no payload", e.Type)
	}
	return json.Unmarshal(e.Payload, v)
}

// Client -> server payloads.

type JoinPayload struct {
	RoomID string `json:"room_id"`
}

type AddCommentPayload struct {
	Body string `json:"body"`
}

type ChangeTitlePayload struct {
	Title string `json:"title"`
}

// Server -> client payloads.

type RoomDataPayload struct {
	RoomID         string    `json:"room_id"`
	Title          string    `json:"title"`
	HostID         string    `json:"host_id"`
	Members        []Member  `json:"members"`
	RecentComments []Comment `json:"recent_comments"`
	Sequence       uint64    `json:"sequence"`
}

type UserJoinedPayload struct {
	RoomID       string `json:"room_id"`
	ConnectionID string `json:"connection_id"`
	Name         string `json:"name"`
	Sequence     uint64 `json:"sequence"`
}

type UserLeftPayload struct {
	RoomID       string `json:"room_id"`
	ConnectionID string `json:"connection_id"`
	Sequence     uint64 `json:"sequence"`
}

type CommentAddedPayload struct {
	RoomID   string  `json:"room_id"`
	Comment  Comment `json:"comment"`
	Sequence uint64  `json:"sequence"`
}

type TitleChangedPayload struct {
	RoomID   string `json:"room_id"`
	Title    string `json:"title"`
	Sequence uint64 `json:"sequence"`
}

type ErrorPayload struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// NewErrorEvent builds a HANDLE_ERROR envelope for one connection.
func NewErrorEvent(kind, message string) *Event {
	return MustEvent(EventHandleError, "", "", ErrorPayload{Kind: kind, Message: message})
}
