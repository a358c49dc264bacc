package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/collinglass/blarg/internal/domain"
	"github.com/collinglass/blarg/pkg/database"
)

func testRepo(t *testing.T) *GormRepository {
	t.Helper()
	db, err := database.New(&database.Config{Driver: "sqlite", FilePath: "file::memory:"})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	repo, err := NewGormRepository(db)
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return repo
}

func TestRoomLifecyclePersistence(t *testing.T) {
	ctx := context.Background()
	repo := testRepo(t)

	if err := repo.Open(ctx, "r1", "c1", "r1"); err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := repo.SetTitle(ctx, "r1", "movie night"); err != nil {
		t.Fatalf("set title: %v", err)
	}

	rec, err := repo.Get(ctx, "r1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if rec.Title != "movie night" || rec.HostID != "c1" || rec.ClosedAt != nil {
		t.Fatalf("record = %+v", rec)
	}

	if err := repo.Close(ctx, "r1"); err != nil {
		t.Fatalf("close: %v", err)
	}
	rec, err = repo.Get(ctx, "r1")
	if err != nil {
		t.Fatalf("get after close: %v", err)
	}
	if rec.ClosedAt == nil {
		t.Fatalf("closed_at not stamped")
	}

	// Reopening the same ID starts a fresh lifetime.
	if err := repo.Open(ctx, "r1", "c9", "r1"); err != nil {
		t.Fatalf("reopen: %v", err)
	}
	rec, err = repo.Get(ctx, "r1")
	if err != nil {
		t.Fatalf("get after reopen: %v", err)
	}
	if rec.HostID != "c9" || rec.ClosedAt != nil {
		t.Fatalf("reopened record = %+v", rec)
	}
}

func TestGetUnknownRoom(t *testing.T) {
	repo := testRepo(t)
	if _, err := repo.Get(context.Background(), "nope"); err != ErrRoomNotFound {
		t.Fatalf("err = %v, want ErrRoomNotFound", err)
	}
}

func TestListRoomsPagination(t *testing.T) {
	ctx := context.Background()
	repo := testRepo(t)

	for i := 0; i < 5; i++ {
		if err := repo.Open(ctx, fmt.Sprintf("r%d", i), "c1", "title"); err != nil {
			t.Fatalf("open r%d: %v", i, err)
		}
	}

	records, total, err := repo.List(ctx, 1, 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 5 || len(records) != 2 {
		t.Fatalf("total = %d, page len = %d, want 5/2", total, len(records))
	}

	records, _, err = repo.List(ctx, 3, 2)
	if err != nil {
		t.Fatalf("list page 3: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("last page len = %d, want 1", len(records))
	}
}

func TestCommentHistoryPaging(t *testing.T) {
	ctx := context.Background()
	repo := testRepo(t)

	if err := repo.Open(ctx, "r1", "c1", "r1"); err != nil {
		t.Fatalf("open: %v", err)
	}
	for i := 1; i <= 10; i++ {
		c := domain.Comment{
			Sequence:   uint64(i),
			Author:     "c1",
			AuthorName: "alice",
			Body:       fmt.Sprintf("comment %d", i),
			Timestamp:  time.Now().UTC(),
		}
		if err := repo.Save(ctx, "r1", c); err != nil {
			t.Fatalf("save %d: %v", i, err)
		}
	}

	// First page from the latest.
	page, err := repo.ListBefore(ctx, "r1", 0, 3)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page) != 3 || page[0].Sequence != 10 || page[2].Sequence != 8 {
		t.Fatalf("first page = %+v", page)
	}

	// Next page via the before cursor.
	page, err = repo.ListBefore(ctx, "r1", page[2].Sequence, 3)
	if err != nil {
		t.Fatalf("list before: %v", err)
	}
	if len(page) != 3 || page[0].Sequence != 7 {
		t.Fatalf("second page = %+v", page)
	}

	// Other rooms stay invisible.
	page, err = repo.ListBefore(ctx, "r2", 0, 10)
	if err != nil {
		t.Fatalf("list other room: %v", err)
	}
	if len(page) != 0 {
		t.Fatalf("leaked %d comments across rooms", len(page))
	}
}
