//go:build !sqlite

package archive

import "testing"

func TestNewStoreMemory(t *testing.T) {
	for _, kind := range []string{"", "memory"} {
		store, err := NewStore(kind, "")
		if err != nil {
			t.Fatalf("new store %q: %v", kind, err)
		}
		if _, ok := store.(*MemoryStore); !ok {
			t.Fatalf("kind %q returned %T, want *MemoryStore", kind, store)
		}
	}
}

func TestNewStoreUnknownKind(t *testing.T) {
	if _, err := NewStore("postgres", ""); err == nil {
		t.Fatal("expected unsupported backend error")
	}
}

func TestNewStoreSQLiteUnavailableWithoutTag(t *testing.T) {
	if _, err := NewStore("sqlite", "test.db"); err == nil {
		t.Fatal("expected sqlite unavailable error")
	}
}

func TestCloseIfSupported(t *testing.T) {
	if err := CloseIfSupported(NewMemoryStore()); err != nil {
		t.Fatalf("close memory store: %v", err)
	}
}
