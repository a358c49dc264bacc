package feed

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/collinglass/blarg/internal/audit"
	"github.com/collinglass/blarg/internal/domain"
	"github.com/collinglass/blarg/pkg/log"
)

// collaboratorTimeout bounds fire-and-forget calls to external collaborators
// so they never hold resources on behalf of a finished room operation.
const collaboratorTimeout = 2 * time.Second

// Config holds the feed core tunables.
type Config struct {
	QueueSize        int  `mapstructure:"queue_size"`
	CommentRetention int  `mapstructure:"comment_retention"`
	SnapshotComments int  `mapstructure:"snapshot_comments"`
	AutoCreateRooms  bool `mapstructure:"auto_create_rooms"`
}

// Dispatcher routes inbound envelopes to rooms and fans resulting events out
// to subscribed connections. It is the protocol state machine: a connection
// is either unjoined or in exactly one room.
type Dispatcher struct {
	cfg      Config
	registry *Registry
	collab   Collaborators

	mu    sync.RWMutex
	conns map[string]*Conn
}

// NewDispatcher creates a dispatcher with an empty room registry.
func NewDispatcher(cfg Config, collab Collaborators) *Dispatcher {
	return &Dispatcher{
		cfg:      cfg,
		registry: NewRegistry(cfg.CommentRetention, cfg.SnapshotComments),
		collab:   collab,
		conns:    make(map[string]*Conn),
	}
}

// Connect establishes a new connection (the CONNECT_FEED boundary event) and
// returns its delivery handle.
func (d *Dispatcher) Connect(ctx context.Context, id, name string) *Conn {
	c := newConn(id, name, d.cfg.QueueSize, func(c *Conn) {
		go d.dropLagging(c)
	})

	d.mu.Lock()
	d.conns[c.ID] = c
	d.mu.Unlock()

	l := log.Ctx(ctx)
	l.Debug().Str(log.FieldConnID, c.ID).Str(log.FieldUserName, name).Msg("connection established")
	return c
}

// Disconnect tears the connection down: implicit LEAVE if it is in a room,
// then queue teardown. Idempotent. Operations already in flight for other
// connections are unaffected.
func (d *Dispatcher) Disconnect(ctx context.Context, c *Conn) {
	d.mu.Lock()
	if _, ok := d.conns[c.ID]; !ok {
		d.mu.Unlock()
		return
	}
	delete(d.conns, c.ID)
	d.mu.Unlock()

	d.leave(ctx, c)
	c.Close()

	l := log.Ctx(ctx)
	l.Debug().Str(log.FieldConnID, c.ID).Msg("connection closed")
}

// Dispatch routes one inbound envelope for the given connection. The switch
// is exhaustive over the event vocabulary; anything else is rejected with
// HANDLE_ERROR to the sender alone. Frames read before a disconnect landed
// are discarded: a dead connection must never mutate room state again.
func (d *Dispatcher) Dispatch(ctx context.Context, c *Conn, ev *domain.Event) {
	if !d.registered(c.ID) {
		return
	}

	switch ev.Type {
	case domain.EventConnectFeed:
		// The connection was established at transport attach; nothing to do.

	case domain.EventJoin:
		var p domain.JoinPayload
		if err := ev.UnmarshalPayload(&p); err != nil || p.RoomID == "" {
			d.sendError(c, domain.ErrKindBadRequest, "JOIN requires a room_id")
			return
		}
		d.join(ctx, c, p.RoomID)

	case domain.EventLeave:
		if c.Room() == "" {
			d.sendError(c, domain.ErrKindNotInRoom, "LEAVE while not in a room")
			return
		}
		d.leave(ctx, c)

	case domain.EventAddComment:
		var p domain.AddCommentPayload
		if err := ev.UnmarshalPayload(&p); err != nil || p.Body == "" {
			d.sendError(c, domain.ErrKindBadRequest, "ADD_COMMENT requires a body")
			return
		}
		d.addComment(ctx, c, p.Body)

	case domain.EventChangeTitle:
		var p domain.ChangeTitlePayload
		if err := ev.UnmarshalPayload(&p); err != nil || p.Title == "" {
			d.sendError(c, domain.ErrKindBadRequest, "CHANGE_TITLE requires a title")
			return
		}
		d.changeTitle(ctx, c, p.Title)

	case domain.EventRoomData, domain.EventUserJoined, domain.EventUserLeft,
		domain.EventCommentAdded, domain.EventHandleError:
		d.sendError(c, domain.ErrKindBadRequest, fmt.Sprintf("%s is server-emitted", ev.Type))

	default:
		d.sendError(c, domain.ErrKindBadRequest, fmt.Sprintf("unknown event type %q", ev.Type))
	}
}

func (d *Dispatcher) join(ctx context.Context, c *Conn, roomID string) {
	if cur := c.Room(); cur != "" && cur != roomID {
		// JOIN while in another room is an implicit LEAVE first.
		d.leave(ctx, c)
	}

	for {
		var (
			room    *Room
			created bool
		)
		if d.cfg.AutoCreateRooms {
			room, created = d.registry.GetOrCreate(roomID)
		} else {
			var ok bool
			room, ok = d.registry.Get(roomID)
			if !ok {
				d.sendError(c, domain.ErrKindUnknownRoom, fmt.Sprintf("room %q does not exist", roomID))
				return
			}
		}

		seq, broadcast, err := room.Join(c.ID, c.Name, d.deliver)
		if errors.Is(err, ErrRoomGone) {
			// Lost the race against teardown; look the room up again.
			continue
		}

		c.setRoom(roomID)

		if !d.registered(c.ID) {
			// Disconnect raced the join and missed this membership; undo it.
			d.leave(ctx, c)
			return
		}

		d.mirror(broadcast)

		l := log.Ctx(ctx)
		l.Info().
			Str(log.FieldConnID, c.ID).
			Str(log.FieldRoomID, roomID).
			Uint64(log.FieldSequence, seq).
			Msg("joined room")

		if created {
			audit.Log(ctx, audit.ActionRoomOpen, c.ID, "room opened")
			info := room.Info()
			if d.collab.Presence != nil {
				d.notify(func(ctx context.Context) error {
					return d.collab.Presence.RoomUp(ctx, roomID)
				}, "presence room up")
			}
			if d.collab.Archiver != nil {
				d.notify(func(ctx context.Context) error {
					return d.collab.Archiver.RoomOpened(ctx, roomID, info.HostID, info.Title)
				}, "archive room open")
			}
		}
		return
	}
}

func (d *Dispatcher) leave(ctx context.Context, c *Conn) {
	roomID := c.Room()
	if roomID == "" {
		return
	}
	c.setRoom("")

	room, ok := d.registry.Get(roomID)
	if !ok {
		return
	}

	broadcast, empty, left := room.Leave(c.ID, d.deliver)
	if left {
		d.mirror(broadcast)
		l := log.Ctx(ctx)
		l.Info().Str(log.FieldConnID, c.ID).Str(log.FieldRoomID, roomID).Msg("left room")
	}

	if empty && d.registry.RemoveIfEmpty(roomID) {
		audit.Log(ctx, audit.ActionRoomClose, c.ID, "room closed")
		if d.collab.Presence != nil {
			d.notify(func(ctx context.Context) error {
				return d.collab.Presence.RoomDown(ctx, roomID)
			}, "presence room down")
		}
		if d.collab.Archiver != nil {
			d.notify(func(ctx context.Context) error {
				return d.collab.Archiver.RoomClosed(ctx, roomID)
			}, "archive room close")
		}
	}
}

func (d *Dispatcher) addComment(ctx context.Context, c *Conn, body string) {
	roomID := c.Room()
	if roomID == "" {
		d.sendError(c, domain.ErrKindNotInRoom, "ADD_COMMENT while not in a room")
		return
	}

	room, ok := d.registry.Get(roomID)
	if !ok {
		d.sendError(c, domain.ErrKindNotMember, fmt.Sprintf("room %q is gone", roomID))
		return
	}

	comment, broadcast, err := room.AddComment(c.ID, body, d.deliver)
	if err != nil {
		d.sendError(c, domain.ErrKindNotMember, err.Error())
		return
	}

	d.mirror(broadcast)
	if d.collab.Archiver != nil {
		d.notify(func(ctx context.Context) error {
			return d.collab.Archiver.CommentAdded(ctx, roomID, comment)
		}, "archive comment")
	}
}

func (d *Dispatcher) changeTitle(ctx context.Context, c *Conn, title string) {
	roomID := c.Room()
	if roomID == "" {
		d.sendError(c, domain.ErrKindNotInRoom, "CHANGE_TITLE while not in a room")
		return
	}

	room, ok := d.registry.Get(roomID)
	if !ok {
		d.sendError(c, domain.ErrKindNotMember, fmt.Sprintf("room %q is gone", roomID))
		return
	}

	_, broadcast, err := room.ChangeTitle(c.ID, title, d.deliver)
	switch {
	case errors.Is(err, ErrNotHost):
		d.sendError(c, domain.ErrKindNotHost, "only the host can change the title")
		return
	case err != nil:
		d.sendError(c, domain.ErrKindNotMember, err.Error())
		return
	}

	audit.Log(ctx, audit.ActionTitleChange, c.ID, "room title changed")
	d.mirror(broadcast)
	if d.collab.Archiver != nil {
		d.notify(func(ctx context.Context) error {
			return d.collab.Archiver.TitleChanged(ctx, roomID, title)
		}, "archive title change")
	}
}

// registered reports whether the connection is still tracked.
func (d *Dispatcher) registered(id string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.conns[id]
	return ok
}

// deliver is the fan-out hook handed to rooms. It runs under the room lock
// and must not block; Conn.Enqueue guarantees that.
func (d *Dispatcher) deliver(connID string, ev *domain.Event) {
	d.mu.RLock()
	c, ok := d.conns[connID]
	d.mu.RUnlock()
	if ok {
		c.Enqueue(ev)
	}
}

func (d *Dispatcher) sendError(c *Conn, kind, message string) {
	c.Enqueue(domain.NewErrorEvent(kind, message))
}

// dropLagging disconnects a connection whose queue overflowed on a critical
// event.
func (d *Dispatcher) dropLagging(c *Conn) {
	l := log.L()
	l.Warn().Str(log.FieldConnID, c.ID).Msg("disconnecting lagging connection")
	d.Disconnect(context.Background(), c)
}

// mirror republishes an accepted broadcast to the external stream.
func (d *Dispatcher) mirror(ev *domain.Event) {
	if ev == nil || d.collab.Mirror == nil {
		return
	}
	d.notify(func(ctx context.Context) error {
		return d.collab.Mirror.Produce(ctx, ev)
	}, "mirror event")
}

// notify runs a collaborator call off the mutation path with a bounded
// timeout.
func (d *Dispatcher) notify(fn func(ctx context.Context) error, what string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), collaboratorTimeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			l := log.L()
			l.Warn().Err(err).Msg(what + " failed")
		}
	}()
}

// Rooms returns summaries of all live rooms.
func (d *Dispatcher) Rooms() []domain.RoomInfo {
	rooms := d.registry.Rooms()
	infos := make([]domain.RoomInfo, 0, len(rooms))
	for _, room := range rooms {
		infos = append(infos, room.Info())
	}
	return infos
}

// RoomSnapshot returns the full live view of one room.
func (d *Dispatcher) RoomSnapshot(roomID string) (domain.RoomDataPayload, bool) {
	room, ok := d.registry.Get(roomID)
	if !ok {
		return domain.RoomDataPayload{}, false
	}
	return room.Snapshot(), true
}

// ConnCount returns the number of live connections.
func (d *Dispatcher) ConnCount() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.conns)
}
