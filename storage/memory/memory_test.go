package memory

import (
	"bytes"
	"errors"
	"testing"

	"github.com/jmcleod/keriauth/storage"
)

func TestMemoryRepository(t *testing.T) {
	repo := NewRepository()
	scope := "session"
	recordType := "PendingBwAppRequest"
	recordID := "req-1"
	env := storage.RawRecord([]byte(`{"requestId":"req-1"}`))

	t.Run("PutAndGet", func(t *testing.T) {
		err := repo.Put(scope, recordType, recordID, env)
		if err != nil {
			t.Fatalf("Put failed: %v", err)
		}

		got, err := repo.Get(scope, recordType, recordID)
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}

		if got.Ver != env.Ver || got.Scheme != env.Scheme || !bytes.Equal(got.Ciphertext, env.Ciphertext) {
			t.Errorf("Get returned wrong envelope: %+v", got)
		}

		// Test isolation (cloning)
		got.Ciphertext[0] = 'X'
		got2, _ := repo.Get(scope, recordType, recordID)
		if got2.Ciphertext[0] == 'X' {
			t.Error("Memory repository should return clones of envelopes")
		}
	})

	t.Run("GetNotFound", func(t *testing.T) {
		_, err := repo.Get("nonexistent", recordType, recordID)
		if !errors.Is(err, storage.ErrScopeNotFound) {
			t.Errorf("expected ErrScopeNotFound, got %v", err)
		}

		_, err = repo.Get(scope, recordType, "nonexistent")
		if !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("List", func(t *testing.T) {
		repo.Put(scope, recordType, "req-2", env)
		repo.Put(scope, "SessionExpiration", "current", env)

		ids, err := repo.List(scope, recordType)
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		if len(ids) != 2 || ids[0] != "req-1" || ids[1] != "req-2" {
			t.Errorf("Expected [req-1 req-2], got %v", ids)
		}

		ids, _ = repo.List("nonexistent", recordType)
		if len(ids) != 0 {
			t.Errorf("Expected 0 IDs for nonexistent scope, got %d", len(ids))
		}
	})

	t.Run("Delete", func(t *testing.T) {
		if err := repo.Delete(scope, recordType, "req-2"); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
		if err := repo.Delete(scope, recordType, "req-2"); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("expected ErrNotFound on second delete, got %v", err)
		}
	})

	t.Run("Clear", func(t *testing.T) {
		repo.Put("local", "Preferences", "current", env)

		removed, err := repo.Clear(scope)
		if err != nil {
			t.Fatalf("Clear failed: %v", err)
		}
		if len(removed) != 2 {
			t.Fatalf("expected 2 removed keys, got %v", removed)
		}
		if removed[0] != (storage.Key{RecordType: recordType, RecordID: "req-1"}) {
			t.Errorf("unexpected first removed key: %+v", removed[0])
		}
		if ids, _ := repo.List(scope, recordType); len(ids) != 0 {
			t.Errorf("scope not empty after Clear: %v", ids)
		}
		if _, err := repo.Get("local", "Preferences", "current"); err != nil {
			t.Errorf("Clear leaked into another scope: %v", err)
		}
	})
}
