package feed

import (
	"fmt"
	"sync"
	"testing"

	"github.com/collinglass/blarg/internal/domain"
)

// recorder collects delivered events for assertions.
type recorder struct {
	mu     sync.Mutex
	events []delivered
}

type delivered struct {
	connID string
	ev     *domain.Event
}

func (r *recorder) deliver(connID string, ev *domain.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, delivered{connID: connID, ev: ev})
}

func (r *recorder) byType(t domain.EventType) []delivered {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []delivered
	for _, d := range r.events {
		if d.ev.Type == t {
			out = append(out, d)
		}
	}
	return out
}

// sequenceOf extracts the per-room sequence number from any outbound event.
func sequenceOf(t *testing.T, ev *domain.Event) uint64 {
	t.Helper()
	switch ev.Type {
	case domain.EventRoomData:
		var p domain.RoomDataPayload
		if err := ev.UnmarshalPayload(&p); err != nil {
			t.Fatalf("unmarshal %s: %v", ev.Type, err)
		}
		return p.Sequence
	case domain.EventUserJoined:
		var p domain.UserJoinedPayload
		if err := ev.UnmarshalPayload(&p); err != nil {
			t.Fatalf("unmarshal %s: %v", ev.Type, err)
		}
		return p.Sequence
	case domain.EventUserLeft:
		var p domain.UserLeftPayload
		if err := ev.UnmarshalPayload(&p); err != nil {
			t.Fatalf("unmarshal %s: %v", ev.Type, err)
		}
		return p.Sequence
	case domain.EventCommentAdded:
		var p domain.CommentAddedPayload
		if err := ev.UnmarshalPayload(&p); err != nil {
			t.Fatalf("unmarshal %s: %v", ev.Type, err)
		}
		return p.Sequence
	case domain.EventChangeTitle:
		var p domain.TitleChangedPayload
		if err := ev.UnmarshalPayload(&p); err != nil {
			t.Fatalf("unmarshal %s: %v", ev.Type, err)
		}
		return p.Sequence
	}
	t.Fatalf("event %s carries no sequence", ev.Type)
	return 0
}

func TestRoomJoinSnapshot(t *testing.T) {
	rec := &recorder{}
	r := newRoom("r1", 0, 0)

	seq, _, err := r.Join("c1", "alice", rec.deliver)
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if seq != 1 {
		t.Fatalf("first sequence = %d, want 1", seq)
	}

	data := rec.byType(domain.EventRoomData)
	if len(data) != 1 || data[0].connID != "c1" {
		t.Fatalf("expected one ROOM_DATA to c1, got %+v", data)
	}

	var p domain.RoomDataPayload
	if err := data[0].ev.UnmarshalPayload(&p); err != nil {
		t.Fatalf("unmarshal snapshot: %v", err)
	}
	if len(p.Members) != 1 || p.Members[0].ConnectionID != "c1" {
		t.Fatalf("snapshot members = %+v, want [c1]", p.Members)
	}
	if len(p.RecentComments) != 0 {
		t.Fatalf("expected empty comment snapshot, got %d", len(p.RecentComments))
	}
	if p.HostID != "c1" {
		t.Fatalf("host = %q, want c1", p.HostID)
	}
}

func TestRoomSequenceGapFree(t *testing.T) {
	rec := &recorder{}
	r := newRoom("r1", 0, 0)

	r.Join("c1", "alice", rec.deliver)
	r.Join("c2", "bob", rec.deliver)
	r.AddComment("c1", "hello", rec.deliver)
	r.AddComment("c2", "hey", rec.deliver)
	r.Leave("c2", rec.deliver)
	r.AddComment("c1", "alone", rec.deliver)

	// Union of sequences across all emitted events must be 1..N without gaps.
	seen := make(map[uint64]bool)
	var max uint64
	rec.mu.Lock()
	events := append([]delivered(nil), rec.events...)
	rec.mu.Unlock()
	for _, d := range events {
		s := sequenceOf(t, d.ev)
		seen[s] = true
		if s > max {
			max = s
		}
	}

	if max != 6 {
		t.Fatalf("max sequence = %d, want 6", max)
	}
	for s := uint64(1); s <= max; s++ {
		if !seen[s] {
			t.Fatalf("sequence %d never observed in any emitted event", s)
		}
	}
}

func TestRoomLeaveIdempotent(t *testing.T) {
	rec := &recorder{}
	r := newRoom("r1", 0, 0)

	r.Join("c1", "alice", rec.deliver)
	r.Join("c2", "bob", rec.deliver)

	if _, _, ok := r.Leave("c2", rec.deliver); !ok {
		t.Fatalf("first leave should be accepted")
	}
	if _, _, ok := r.Leave("c2", rec.deliver); ok {
		t.Fatalf("second leave should be a no-op")
	}

	left := rec.byType(domain.EventUserLeft)
	if len(left) != 1 {
		t.Fatalf("USER_LEFT emitted %d times, want 1", len(left))
	}

	// The no-op leave must not consume a sequence number.
	_, _, err := r.AddComment("c1", "still here", rec.deliver)
	if err != nil {
		t.Fatalf("comment: %v", err)
	}
	added := rec.byType(domain.EventCommentAdded)
	if got := sequenceOf(t, added[0].ev); got != 4 {
		t.Fatalf("comment sequence = %d, want 4", got)
	}
}

func TestRoomMembershipInterleavings(t *testing.T) {
	// Replaying JOIN(a), JOIN(b), LEAVE(a) in any order that preserves
	// causal order per connection leaves exactly {b}.
	orders := [][]func(r *Room, deliver Deliver){
		{
			func(r *Room, d Deliver) { r.Join("a", "a", d) },
			func(r *Room, d Deliver) { r.Join("b", "b", d) },
			func(r *Room, d Deliver) { r.Leave("a", d) },
		},
		{
			func(r *Room, d Deliver) { r.Join("a", "a", d) },
			func(r *Room, d Deliver) { r.Leave("a", d) },
			func(r *Room, d Deliver) { r.Join("b", "b", d) },
		},
		{
			func(r *Room, d Deliver) { r.Join("b", "b", d) },
			func(r *Room, d Deliver) { r.Join("a", "a", d) },
			func(r *Room, d Deliver) { r.Leave("a", d) },
		},
	}

	for i, order := range orders {
		rec := &recorder{}
		r := newRoom(fmt.Sprintf("r%d", i), 0, 0)
		for _, op := range order {
			op(r, rec.deliver)
		}

		snap := r.Snapshot()
		if len(snap.Members) != 1 || snap.Members[0].ConnectionID != "b" {
			t.Fatalf("order %d: members = %+v, want [b]", i, snap.Members)
		}
	}
}

func TestRoomAddCommentNotMember(t *testing.T) {
	rec := &recorder{}
	r := newRoom("r1", 0, 0)
	r.Join("c1", "alice", rec.deliver)

	_, _, err := r.AddComment("c2", "sneaky", rec.deliver)
	if err != ErrNotMember {
		t.Fatalf("err = %v, want ErrNotMember", err)
	}
	if got := rec.byType(domain.EventCommentAdded); len(got) != 0 {
		t.Fatalf("rejected comment must not broadcast, got %d events", len(got))
	}

	// Rejection must not consume a sequence number.
	_, broadcast, err := r.AddComment("c1", "fine", rec.deliver)
	if err != nil {
		t.Fatalf("comment: %v", err)
	}
	if got := sequenceOf(t, broadcast); got != 2 {
		t.Fatalf("comment sequence = %d, want 2", got)
	}
}

func TestRoomRejoinRefreshesSnapshot(t *testing.T) {
	rec := &recorder{}
	r := newRoom("r1", 0, 0)

	r.Join("c1", "alice", rec.deliver)
	r.Join("c2", "bob", rec.deliver)
	rec.mu.Lock()
	rec.events = nil
	rec.mu.Unlock()

	// Re-joining the same room refreshes ROOM_DATA without USER_JOINED.
	r.Join("c1", "alice", rec.deliver)

	if got := rec.byType(domain.EventUserJoined); len(got) != 0 {
		t.Fatalf("re-join must not broadcast USER_JOINED, got %d", len(got))
	}
	data := rec.byType(domain.EventRoomData)
	if len(data) != 1 || data[0].connID != "c1" {
		t.Fatalf("expected ROOM_DATA refresh to c1, got %+v", data)
	}
	snap := r.Snapshot()
	if len(snap.Members) != 2 {
		t.Fatalf("members = %d, want 2", len(snap.Members))
	}
}

func TestRoomCommentRetention(t *testing.T) {
	rec := &recorder{}
	r := newRoom("r1", 3, 0)
	r.Join("c1", "alice", rec.deliver)

	for i := 0; i < 10; i++ {
		if _, _, err := r.AddComment("c1", fmt.Sprintf("comment %d", i), rec.deliver); err != nil {
			t.Fatalf("comment %d: %v", i, err)
		}
	}

	snap := r.Snapshot()
	if len(snap.RecentComments) != 3 {
		t.Fatalf("retained %d comments, want 3", len(snap.RecentComments))
	}
	// Sequences keep increasing past the trim point.
	if got := snap.RecentComments[2].Sequence; got != 11 {
		t.Fatalf("latest comment sequence = %d, want 11", got)
	}
	if snap.RecentComments[0].Body != "comment 7" {
		t.Fatalf("oldest retained = %q, want comment 7", snap.RecentComments[0].Body)
	}
}

func TestRoomChangeTitleHostOnly(t *testing.T) {
	rec := &recorder{}
	r := newRoom("r1", 0, 0)
	r.Join("c1", "alice", rec.deliver)
	r.Join("c2", "bob", rec.deliver)

	if _, _, err := r.ChangeTitle("c2", "hijacked", rec.deliver); err != ErrNotHost {
		t.Fatalf("err = %v, want ErrNotHost", err)
	}
	if _, _, err := r.ChangeTitle("c3", "outsider", rec.deliver); err != ErrNotMember {
		t.Fatalf("err = %v, want ErrNotMember", err)
	}

	if _, _, err := r.ChangeTitle("c1", "movie night", rec.deliver); err != nil {
		t.Fatalf("host change title: %v", err)
	}
	changed := rec.byType(domain.EventChangeTitle)
	if len(changed) != 2 {
		t.Fatalf("CHANGE_TITLE delivered to %d members, want 2", len(changed))
	}
	if got := r.Info().Title; got != "movie night" {
		t.Fatalf("title = %q, want movie night", got)
	}
}

func TestRoomHostSuccession(t *testing.T) {
	rec := &recorder{}
	r := newRoom("r1", 0, 0)
	r.Join("c1", "alice", rec.deliver)
	r.Join("c2", "bob", rec.deliver)
	r.Join("c3", "carol", rec.deliver)

	r.Leave("c1", rec.deliver)

	// Host passes to the longest-standing remaining member.
	if got := r.Info().HostID; got != "c2" {
		t.Fatalf("host = %q, want c2", got)
	}
	if _, _, err := r.ChangeTitle("c2", "new host here", rec.deliver); err != nil {
		t.Fatalf("successor change title: %v", err)
	}
}

func TestRoomGoneRejectsJoin(t *testing.T) {
	rec := &recorder{}
	r := newRoom("r1", 0, 0)

	if !r.markGoneIfEmpty() {
		t.Fatalf("empty room should be markable gone")
	}
	if _, _, err := r.Join("c1", "alice", rec.deliver); err != ErrRoomGone {
		t.Fatalf("err = %v, want ErrRoomGone", err)
	}
}

func TestRoomMarkGoneNonEmpty(t *testing.T) {
	rec := &recorder{}
	r := newRoom("r1", 0, 0)
	r.Join("c1", "alice", rec.deliver)

	if r.markGoneIfEmpty() {
		t.Fatalf("room with members must not be marked gone")
	}
}
