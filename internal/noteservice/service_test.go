package noteservice

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/tlindqvist/syncbox/internal/apperr"
	"github.com/tlindqvist/syncbox/internal/testutil"
)

func testService(t *testing.T) *Service {
	t.Helper()
	_, store := testutil.TestRoot(t)
	return NewService(store, testutil.TestStore(t))
}

func strPtr(s string) *string { return &s }

func TestCreateThenGet(t *testing.T) {
	svc := testService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, CreateRequest{
		Title:   "Groceries",
		Tags:    []string{"shopping", "home"},
		Content: "- milk\n- bread\n",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if created.ID == "" {
		t.Fatal("empty note id")
	}

	got, err := svc.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Title != "Groceries" {
		t.Errorf("title = %q", got.Title)
	}
	if got.Content != "- milk\n- bread\n" {
		t.Errorf("content = %q", got.Content)
	}
	if len(got.Tags) != 2 {
		t.Errorf("tags = %v", got.Tags)
	}
	if got.CreatedAt != created.CreatedAt {
		t.Errorf("created_at = %d, want %d", got.CreatedAt, created.CreatedAt)
	}
}

func TestCreateRequiresTitle(t *testing.T) {
	svc := testService(t)
	_, err := svc.Create(context.Background(), CreateRequest{Content: "body"})
	if !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("err = %v, want ErrValidation", err)
	}
}

func TestCreateWritesContentFile(t *testing.T) {
	svc := testService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, CreateRequest{Title: "T", Content: "body"})
	if err != nil {
		t.Fatal(err)
	}
	raw, err := svc.store.Read(created.ID + ".md")
	if err != nil {
		t.Fatalf("content file missing: %v", err)
	}
	if !strings.Contains(string(raw), "body") {
		t.Errorf("content file = %q", raw)
	}
}

func TestUpdatePartial(t *testing.T) {
	svc := testService(t)
	ctx := context.Background()

	created, _ := svc.Create(ctx, CreateRequest{
		Title:   "Old",
		Tags:    []string{"a", "b"},
		Content: "original",
	})

	// Only the title changes; tags and content carry over.
	got, err := svc.Update(ctx, created.ID, UpdateRequest{Title: strPtr("New")})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if got.Title != "New" {
		t.Errorf("title = %q", got.Title)
	}
	if got.Content != "original" {
		t.Errorf("content = %q", got.Content)
	}
	if len(got.Tags) != 2 {
		t.Errorf("tags = %v", got.Tags)
	}
	if got.CreatedAt != created.CreatedAt {
		t.Errorf("created_at changed: %d -> %d", created.CreatedAt, got.CreatedAt)
	}
	if got.UpdatedAt < created.UpdatedAt {
		t.Errorf("updated_at went backwards: %d < %d", got.UpdatedAt, created.UpdatedAt)
	}
}

func TestUpdateReplacesTags(t *testing.T) {
	svc := testService(t)
	ctx := context.Background()

	created, _ := svc.Create(ctx, CreateRequest{Title: "T", Tags: []string{"a", "b"}})
	newTags := []string{"c"}
	got, err := svc.Update(ctx, created.ID, UpdateRequest{Tags: &newTags})
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Tags) != 1 || got.Tags[0] != "c" {
		t.Errorf("tags = %v, want [c]", got.Tags)
	}
}

func TestUpdateUnknown(t *testing.T) {
	svc := testService(t)
	_, err := svc.Update(context.Background(), "nope", UpdateRequest{Title: strPtr("x")})
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestDelete(t *testing.T) {
	svc := testService(t)
	ctx := context.Background()

	created, _ := svc.Create(ctx, CreateRequest{Title: "Doomed"})
	if err := svc.Delete(ctx, created.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	if _, err := svc.Get(ctx, created.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("Get after delete: err = %v, want ErrNotFound", err)
	}
	if svc.store.Exists(created.ID + ".md") {
		t.Error("content file still present")
	}
	// Deleting again: record exists as a tombstone, so no error.
	if err := svc.Delete(ctx, created.ID); err != nil {
		t.Errorf("second Delete: %v", err)
	}
}

func TestDeleteUnknown(t *testing.T) {
	svc := testService(t)
	err := svc.Delete(context.Background(), "nope")
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestListPagination(t *testing.T) {
	svc := testService(t)
	ctx := context.Background()

	for _, title := range []string{"one", "two", "three"} {
		if _, err := svc.Create(ctx, CreateRequest{Title: title}); err != nil {
			t.Fatal(err)
		}
	}

	items, total, err := svc.List(ctx, ListOptions{Limit: 2})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if total != 3 {
		t.Errorf("total = %d, want 3", total)
	}
	if len(items) != 2 {
		t.Errorf("page size = %d, want 2", len(items))
	}

	rest, total, _ := svc.List(ctx, ListOptions{Limit: 2, Offset: 2})
	if total != 3 || len(rest) != 1 {
		t.Errorf("second page: total = %d, items = %d", total, len(rest))
	}

	past, _, _ := svc.List(ctx, ListOptions{Offset: 10})
	if len(past) != 0 {
		t.Errorf("offset past end returned %d items", len(past))
	}
}

func TestListByTag(t *testing.T) {
	svc := testService(t)
	ctx := context.Background()

	_, _ = svc.Create(ctx, CreateRequest{Title: "a", Tags: []string{"work"}})
	_, _ = svc.Create(ctx, CreateRequest{Title: "b", Tags: []string{"home"}})

	items, total, err := svc.List(ctx, ListOptions{Tag: "work"})
	if err != nil {
		t.Fatal(err)
	}
	if total != 1 || len(items) != 1 || items[0].Title != "a" {
		t.Errorf("tag filter: total = %d, items = %+v", total, items)
	}
}

func TestListSearch(t *testing.T) {
	svc := testService(t)
	ctx := context.Background()

	_, _ = svc.Create(ctx, CreateRequest{Title: "Groceries", Content: "buy milk"})
	_, _ = svc.Create(ctx, CreateRequest{Title: "Meeting", Content: "quarterly plan"})

	items, total, err := svc.List(ctx, ListOptions{Search: "milk"})
	if err != nil {
		t.Fatal(err)
	}
	if total != 1 || len(items) != 1 || items[0].Title != "Groceries" {
		t.Errorf("search: total = %d, items = %+v", total, items)
	}
}

func TestListPreview(t *testing.T) {
	svc := testService(t)
	ctx := context.Background()

	long := strings.Repeat("word ", 100)
	_, _ = svc.Create(ctx, CreateRequest{Title: "Long", Content: long})

	items, _, err := svc.List(ctx, ListOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 1 {
		t.Fatalf("items = %d", len(items))
	}
	preview := items[0].Preview
	if !strings.HasSuffix(preview, "...") {
		t.Errorf("long preview not truncated: %q", preview)
	}
	if len([]rune(preview)) > previewLen+3 {
		t.Errorf("preview too long: %d runes", len([]rune(preview)))
	}
}

func TestTags(t *testing.T) {
	svc := testService(t)
	ctx := context.Background()

	_, _ = svc.Create(ctx, CreateRequest{Title: "a", Tags: []string{"go", "db"}})
	_, _ = svc.Create(ctx, CreateRequest{Title: "b", Tags: []string{"go"}})

	tags, err := svc.Tags(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(tags) != 2 {
		t.Fatalf("tags = %+v", tags)
	}
	if tags[0].Name != "go" || tags[0].Count != 2 {
		t.Errorf("top tag = %+v, want go x2", tags[0])
	}
}

func TestScanAndIndex(t *testing.T) {
	svc := testService(t)
	ctx := context.Background()

	// Notes written out-of-band, bypassing Create.
	raw := "---\ntitle: Imported\ntags:\n    - legacy\n---\n\nold content\n"
	_ = svc.store.Write("imported.md", []byte(raw))
	_ = svc.store.Write("ignore.txt", []byte("not a note"))

	n, err := svc.ScanAndIndex(ctx)
	if err != nil {
		t.Fatalf("ScanAndIndex: %v", err)
	}
	if n != 1 {
		t.Errorf("indexed = %d, want 1", n)
	}

	got, err := svc.Get(ctx, "imported")
	if err != nil {
		t.Fatalf("Get imported: %v", err)
	}
	if got.Title != "Imported" || len(got.Tags) != 1 || got.Tags[0] != "legacy" {
		t.Errorf("imported note = %+v", got)
	}

	// Imported notes are searchable.
	items, _, err := svc.List(ctx, ListOptions{Search: "old"})
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 1 {
		t.Errorf("search after scan: %+v", items)
	}
}

func TestScanPreservesCreatedAt(t *testing.T) {
	svc := testService(t)
	ctx := context.Background()

	created, _ := svc.Create(ctx, CreateRequest{Title: "Keep"})
	if _, err := svc.ScanAndIndex(ctx); err != nil {
		t.Fatal(err)
	}
	got, _ := svc.Get(ctx, created.ID)
	if got.CreatedAt != created.CreatedAt {
		t.Errorf("scan changed created_at: %d -> %d", created.CreatedAt, got.CreatedAt)
	}
}
