package credentials

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSaveThenLoadRoundTrips(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "creds.json"))

	creds := Credentials{
		WorkspaceID: "ws_1",
		AgentID:     "agent_1",
		APIKey:      "sk_test_123",
		AgentName:   "relay-bot",
	}
	if err := store.Save(creds); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, ok := store.Load()
	if !ok {
		t.Fatal("expected load to succeed")
	}
	if got.WorkspaceID != creds.WorkspaceID || got.AgentID != creds.AgentID || got.APIKey != creds.APIKey {
		t.Fatalf("unexpected round-tripped credentials: %+v", got)
	}
	if got.UpdatedAt == "" {
		t.Fatal("expected updated_at to be stamped")
	}
}

func TestLoadMissingFileReturnsNotOK(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "missing.json"))
	if _, ok := store.Load(); ok {
		t.Fatal("expected load of missing file to fail")
	}
}

func TestLoadMalformedFileReturnsNotOK(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "creds.json")
	if err := writeRaw(path, "not json"); err != nil {
		t.Fatal(err)
	}
	store := NewStore(path)
	if _, ok := store.Load(); ok {
		t.Fatal("expected load of malformed file to fail")
	}
}

func TestSaveCreatesParentDirectories(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "creds.json")
	store := NewStore(path)
	if err := store.Save(Credentials{WorkspaceID: "ws_1", AgentID: "agent_1", APIKey: "k"}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, ok := store.Load(); !ok {
		t.Fatal("expected load to succeed after save into nested dir")
	}
}

func TestSaveOverwritesExistingFile(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "creds.json"))
	if err := store.Save(Credentials{WorkspaceID: "ws_1", AgentID: "agent_1", APIKey: "k1"}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := store.Save(Credentials{WorkspaceID: "ws_1", AgentID: "agent_1", APIKey: "k2"}); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, ok := store.Load()
	if !ok || got.APIKey != "k2" {
		t.Fatalf("expected overwritten api key k2, got %+v ok=%v", got, ok)
	}
}

func writeRaw(path, content string) error {
	return os.WriteFile(path, []byte(content), 0o600)
}
