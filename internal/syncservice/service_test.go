package syncservice

import (
	"context"
	"testing"
	"time"

	"github.com/tlindqvist/syncbox/internal/metastore"
	"github.com/tlindqvist/syncbox/internal/testutil"
)

func seedFile(t *testing.T, store *metastore.Store, path string, updatedAt int64) {
	t.Helper()
	err := store.UpsertFile(metastore.FileMeta{
		Path:      path,
		Hash:      "h",
		Size:      1,
		Mtime:     updatedAt,
		CreatedAt: updatedAt,
		UpdatedAt: updatedAt,
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestGetStateFull(t *testing.T) {
	store := testutil.TestStore(t)
	svc := NewService(store)
	ctx := context.Background()

	now := time.Now().UnixMilli()
	seedFile(t, store, "a.txt", now-2000)
	seedFile(t, store, "b.txt", now-1000)

	st, err := svc.GetState(ctx, nil)
	if err != nil {
		t.Fatalf("GetState: %v", err)
	}
	if len(st.Files) != 2 {
		t.Errorf("files = %d, want 2", len(st.Files))
	}
	if st.ServerTime < now {
		t.Errorf("server_time = %d, before call start %d", st.ServerTime, now)
	}
}

func TestGetStateDelta(t *testing.T) {
	store := testutil.TestStore(t)
	svc := NewService(store)
	ctx := context.Background()

	now := time.Now().UnixMilli()
	seedFile(t, store, "old.txt", now-10_000)
	seedFile(t, store, "fresh.txt", now)

	since := now - 5000
	st, err := svc.GetState(ctx, &since)
	if err != nil {
		t.Fatal(err)
	}
	if len(st.Files) != 1 || st.Files[0].Path != "fresh.txt" {
		t.Errorf("delta = %+v, want only fresh.txt", st.Files)
	}
}

func TestGetStateIncludesTombstones(t *testing.T) {
	store := testutil.TestStore(t)
	svc := NewService(store)
	ctx := context.Background()

	seedFile(t, store, "gone.txt", time.Now().UnixMilli())
	if err := store.MarkDeleted("gone.txt"); err != nil {
		t.Fatal(err)
	}

	st, err := svc.GetState(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(st.Files) != 1 || !st.Files[0].IsDeleted {
		t.Errorf("tombstone missing from delta: %+v", st.Files)
	}
}

func TestGetStateEmptyDelta(t *testing.T) {
	store := testutil.TestStore(t)
	svc := NewService(store)

	future := time.Now().UnixMilli() + 60_000
	st, err := svc.GetState(context.Background(), &future)
	if err != nil {
		t.Fatal(err)
	}
	if st.Files == nil {
		t.Error("files should be an empty slice, not nil")
	}
	if len(st.Files) != 0 {
		t.Errorf("files = %+v, want none", st.Files)
	}
}
