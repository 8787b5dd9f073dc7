// Package testutil provides shared test helpers for document stores,
// repositories and fixture directories.
package testutil

import (
	"os"
	"testing"
	"time"

	"github.com/taskhive/taskhive/internal/docstore"
	"github.com/taskhive/taskhive/internal/repository"
	"github.com/taskhive/taskhive/internal/storage"
)

// Owner is the owner id used across tests.
const Owner = "demo-user-12345"

// TestStore creates a temporary SQLite document store that is automatically cleaned up.
func TestStore(t *testing.T) *docstore.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "taskhive-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := docstore.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestRepo returns a repository over a fresh store, pinned to UTC.
func TestRepo(t *testing.T, opts ...repository.Option) *repository.Service {
	t.Helper()
	opts = append([]repository.Option{repository.WithLocation(time.UTC)}, opts...)
	return repository.New(TestStore(t), opts...)
}

// FixedClock returns a clock that always reports t.
func FixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

// TestFixtures creates a temporary fixtures directory with a storage.Provider.
func TestFixtures(t *testing.T) (string, *storage.FS) {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.NewFS(dir)
	if err != nil {
		t.Fatal(err)
	}
	return dir, store
}

// Eventually polls fn every tick until it returns true or timeout elapses.
func Eventually(t *testing.T, timeout, tick time.Duration, fn func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(tick)
	}
	t.Error(msg)
}
