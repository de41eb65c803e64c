package bbolt

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/jmcleod/keriauth/storage"
	"go.etcd.io/bbolt"
)

func newTestDB(t *testing.T) *bbolt.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "local.db")
	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		t.Fatalf("could not open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestBBoltStorage(t *testing.T) {
	s := NewRepository(newTestDB(t))
	scope := "local"
	recordType := "WebsiteConfig"
	recordID := "https://example.com"
	env := storage.RawRecord([]byte(`{"origin":"https://example.com"}`))

	t.Run("PutGet", func(t *testing.T) {
		err := s.Put(scope, recordType, recordID, env)
		if err != nil {
			t.Fatalf("Put failed: %v", err)
		}

		got, err := s.Get(scope, recordType, recordID)
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if got.Ver != env.Ver || string(got.Ciphertext) != string(env.Ciphertext) {
			t.Errorf("unexpected envelope %+v", got)
		}
	})

	t.Run("List", func(t *testing.T) {
		s.Put(scope, recordType, "https://other.example", env)
		s.Put(scope, "Preferences", "current", env)
		ids, err := s.List(scope, recordType)
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		if len(ids) != 2 {
			t.Errorf("expected 2 IDs, got %d: %v", len(ids), ids)
		}
	})

	t.Run("Get Errors", func(t *testing.T) {
		_, err := s.Get("nonexistent-scope", recordType, recordID)
		if !errors.Is(err, storage.ErrScopeNotFound) {
			t.Errorf("expected ErrScopeNotFound, got %v", err)
		}

		_, err = s.Get(scope, recordType, "nonexistent-record")
		if !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("List Nonexistent Scope", func(t *testing.T) {
		ids, err := s.List("nonexistent-scope", recordType)
		if err != nil {
			t.Errorf("expected no error for nonexistent scope in List, got %v", err)
		}
		if len(ids) != 0 {
			t.Errorf("expected 0 ids, got %d", len(ids))
		}
	})

	t.Run("Delete", func(t *testing.T) {
		if err := s.Delete(scope, recordType, "https://other.example"); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
		err := s.Delete(scope, recordType, "https://other.example")
		if !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("Clear", func(t *testing.T) {
		s.Put("session", "PasscodeModel", "current", env)
		s.Put("session", "SessionExpiration", "current", env)

		removed, err := s.Clear("session")
		if err != nil {
			t.Fatalf("Clear failed: %v", err)
		}
		if len(removed) != 2 {
			t.Fatalf("expected 2 removed keys, got %v", removed)
		}
		if _, err := s.Get("session", "PasscodeModel", "current"); err == nil {
			t.Error("expected cleared record to be gone")
		}
		if _, err := s.Get(scope, recordType, recordID); err != nil {
			t.Errorf("Clear leaked into another scope: %v", err)
		}

		removed, err = s.Clear("never-written")
		if err != nil || len(removed) != 0 {
			t.Errorf("Clear of missing scope: removed=%v err=%v", removed, err)
		}
	})
}

func TestNewRepositoryFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "file.db")

	repo, err := NewRepositoryFromFile(path, nil)
	if err != nil {
		t.Fatalf("NewRepositoryFromFile failed: %v", err)
	}
	defer repo.Close()

	if repo.db == nil {
		t.Error("repo.db is nil")
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("database file not created: %v", err)
	}

	// Test failure (invalid path)
	_, err = NewRepositoryFromFile("/nonexistent/path/to/db", nil)
	if err == nil {
		t.Error("expected error for invalid path")
	}
}
