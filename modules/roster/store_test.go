package roster

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	return NewStore(filepath.Join(t.TempDir(), "members.json"))
}

func TestStoreAddKeepsInsertionOrder(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)

	for _, username := range []string{"alice", "bob", "carol"} {
		added, err := store.Add("chat-1", username)
		if err != nil {
			t.Fatalf("add %s failed: %v", username, err)
		}
		if !added {
			t.Fatalf("add %s reported not added", username)
		}
	}

	members, err := store.Members("chat-1")
	if err != nil {
		t.Fatalf("members failed: %v", err)
	}
	if diff := cmp.Diff([]string{"alice", "bob", "carol"}, members); diff != "" {
		t.Fatalf("members mismatch (-want +got):\n%s", diff)
	}
}

func TestStoreAddSkipsDuplicates(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)

	if _, err := store.Add("chat-1", "alice"); err != nil {
		t.Fatalf("first add failed: %v", err)
	}
	added, err := store.Add("chat-1", "Alice")
	if err != nil {
		t.Fatalf("duplicate add failed: %v", err)
	}
	if added {
		t.Fatal("case-variant duplicate reported as added")
	}

	members, err := store.Members("chat-1")
	if err != nil {
		t.Fatalf("members failed: %v", err)
	}
	if len(members) != 1 {
		t.Fatalf("members = %v, want one entry", members)
	}
}

func TestStoreAddValidatesInput(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)

	if _, err := store.Add("", "alice"); err == nil {
		t.Fatal("expected error for empty chat id")
	}
	if _, err := store.Add("chat-1", ""); err == nil {
		t.Fatal("expected error for empty username")
	}
}

func TestStorePersistsAcrossInstances(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "state", "members.json")

	first := NewStore(path)
	if _, err := first.Add("chat-1", "alice"); err != nil {
		t.Fatalf("add failed: %v", err)
	}

	second := NewStore(path)
	members, err := second.Members("chat-1")
	if err != nil {
		t.Fatalf("members failed: %v", err)
	}
	if diff := cmp.Diff([]string{"alice"}, members); diff != "" {
		t.Fatalf("members mismatch (-want +got):\n%s", diff)
	}
}

func TestStoreLoadMissingFileYieldsEmptyRegistry(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)

	registry, err := store.Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if len(registry) != 0 {
		t.Fatalf("registry = %v, want empty", registry)
	}
}

func TestStoreLoadCorruptFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "members.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("write corrupt file failed: %v", err)
	}

	store := NewStore(path)
	if _, err := store.Load(); !errors.Is(err, ErrCorruptRegistry) {
		t.Fatalf("load error = %v, want ErrCorruptRegistry", err)
	}
	if _, err := store.Add("chat-1", "alice"); !errors.Is(err, ErrCorruptRegistry) {
		t.Fatalf("add error = %v, want ErrCorruptRegistry", err)
	}
}

func TestStoreRename(t *testing.T) {
	tests := []struct {
		name        string
		seed        map[string][]string
		fromChatID  string
		toChatID    string
		wantMoved   bool
		wantTarget  []string
		wantRemoved string
	}{
		{
			name:        "moves roster to new chat id",
			seed:        map[string][]string{"chat-1": {"alice", "bob"}},
			fromChatID:  "chat-1",
			toChatID:    "chat-2",
			wantMoved:   true,
			wantTarget:  []string{"alice", "bob"},
			wantRemoved: "chat-1",
		},
		{
			name: "merges into existing target without duplicates",
			seed: map[string][]string{
				"chat-1": {"alice", "bob"},
				"chat-2": {"bob", "carol"},
			},
			fromChatID:  "chat-1",
			toChatID:    "chat-2",
			wantMoved:   true,
			wantTarget:  []string{"bob", "carol", "alice"},
			wantRemoved: "chat-1",
		},
		{
			name:       "missing source is a no-op",
			seed:       map[string][]string{"chat-2": {"carol"}},
			fromChatID: "chat-1",
			toChatID:   "chat-2",
			wantTarget: []string{"carol"},
		},
		{
			name:       "identical ids are a no-op",
			seed:       map[string][]string{"chat-1": {"alice"}},
			fromChatID: "chat-1",
			toChatID:   "chat-1",
			wantTarget: []string{"alice"},
		},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			store := newTestStore(t)
			for chatID, usernames := range testCase.seed {
				for _, username := range usernames {
					if _, err := store.Add(chatID, username); err != nil {
						t.Fatalf("seed %s/%s failed: %v", chatID, username, err)
					}
				}
			}

			moved, err := store.Rename(testCase.fromChatID, testCase.toChatID)
			if err != nil {
				t.Fatalf("rename failed: %v", err)
			}
			if moved != testCase.wantMoved {
				t.Fatalf("moved = %v, want %v", moved, testCase.wantMoved)
			}

			target, err := store.Members(testCase.toChatID)
			if err != nil {
				t.Fatalf("members failed: %v", err)
			}
			if diff := cmp.Diff(testCase.wantTarget, target); diff != "" {
				t.Fatalf("target roster mismatch (-want +got):\n%s", diff)
			}

			if testCase.wantRemoved != "" {
				removed, err := store.Members(testCase.wantRemoved)
				if err != nil {
					t.Fatalf("members failed: %v", err)
				}
				if len(removed) != 0 {
					t.Fatalf("source roster = %v, want empty", removed)
				}
			}
		})
	}
}
