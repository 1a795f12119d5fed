// Package testutil provides shared test helpers for setting up content
// roots and metadata databases.
package testutil

import (
	"os"
	"testing"

	"github.com/tlindqvist/syncbox/internal/metastore"
	"github.com/tlindqvist/syncbox/internal/storage"
)

// TestStore creates a temporary SQLite metadata store that is
// automatically cleaned up.
func TestStore(t *testing.T) *metastore.Store {
	t.Helper()
	dbFile, err := os.CreateTemp("", "syncbox-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	store, err := metastore.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

// TestRoot creates a temporary content root with a storage.Provider.
func TestRoot(t *testing.T) (string, storage.Provider) {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.NewFS(dir)
	if err != nil {
		t.Fatal(err)
	}
	return dir, store
}
