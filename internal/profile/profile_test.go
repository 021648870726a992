package profile

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/torusbreakdown/marvin/pkg/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s := Open("test")
	s.dir = filepath.Join(dir, "test")
	return s
}

func TestPreferences_OrderedRecognizedKeysFirst(t *testing.T) {
	prefs := Preferences{
		"zzz_unknown":   "1",
		"units":         "metric",
		"coding_mode":   "on",
		"aaa_unknown":   "2",
		"timezone":      "UTC",
		"home_location": "",
	}
	got := prefs.Ordered()

	wantOrder := []string{"timezone", "units", "home_location", "coding_mode", "aaa_unknown", "zzz_unknown"}
	if len(got) != len(wantOrder) {
		t.Fatalf("Ordered() returned %d pairs, want %d (home_location has empty value but is still a set key)", len(got), len(wantOrder))
	}
	for i, key := range wantOrder {
		if got[i].Key != key {
			t.Errorf("Ordered()[%d].Key = %q, want %q", i, got[i].Key, key)
		}
	}
}

func TestStore_PreferencesRoundTrip(t *testing.T) {
	s := newTestStore(t)
	if err := s.SavePreferences(Preferences{"timezone": "America/New_York"}); err != nil {
		t.Fatalf("SavePreferences: %v", err)
	}
	loaded := s.LoadPreferences()
	if loaded["timezone"] != "America/New_York" {
		t.Errorf("timezone = %q, want America/New_York", loaded["timezone"])
	}
}

func TestStore_LoadPreferences_MissingFileYieldsEmpty(t *testing.T) {
	s := newTestStore(t)
	prefs := s.LoadPreferences()
	if len(prefs) != 0 {
		t.Errorf("expected empty preferences, got %+v", prefs)
	}
}

func TestStore_SavedPlacesRoundTrip(t *testing.T) {
	s := newTestStore(t)
	places := []SavedPlace{{Label: "home", Name: "Home", Lat: 40.7, Lng: -74.0}}
	if err := s.SaveSavedPlaces(places); err != nil {
		t.Fatalf("SaveSavedPlaces: %v", err)
	}
	loaded := s.LoadSavedPlaces()
	if len(loaded) != 1 || loaded[0].Label != "home" {
		t.Errorf("LoadSavedPlaces = %+v", loaded)
	}
}

func TestStore_ChatLogAppendAndCap(t *testing.T) {
	s := newTestStore(t)
	for i := 0; i < maxChatLogSize+10; i++ {
		if err := s.AppendChatLog(ChatLogEntry{Role: models.RoleUser, Content: "x", Timestamp: time.Now()}); err != nil {
			t.Fatalf("AppendChatLog: %v", err)
		}
	}
	entries := s.LoadChatLog()
	if len(entries) != maxChatLogSize {
		t.Errorf("chat log len = %d, want capped at %d", len(entries), maxChatLogSize)
	}
}

func TestStore_RecentChatLog(t *testing.T) {
	s := newTestStore(t)
	for i := 0; i < 5; i++ {
		_ = s.AppendChatLog(ChatLogEntry{Role: models.RoleUser, Content: "x"})
	}
	recent := s.RecentChatLog(2)
	if len(recent) != 2 {
		t.Errorf("RecentChatLog(2) returned %d entries", len(recent))
	}
}

func TestStore_HistoryAppendAndLoad(t *testing.T) {
	s := newTestStore(t)
	_ = s.AppendHistory("first command")
	_ = s.AppendHistory("second command")
	lines := s.LoadHistory(0)
	if len(lines) != 2 || lines[1] != "second command" {
		t.Errorf("LoadHistory = %v", lines)
	}
}

func TestStore_TokensRoundTrip(t *testing.T) {
	s := newTestStore(t)
	if err := s.SaveTokens(map[string]string{"github": "gho_abc"}); err != nil {
		t.Fatalf("SaveTokens: %v", err)
	}
	tokens := s.LoadTokens()
	if tokens["github"] != "gho_abc" {
		t.Errorf("tokens = %+v", tokens)
	}
}

func TestLastProfile_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("HOME", dir)

	if err := WriteLastProfile("work"); err != nil {
		t.Fatalf("WriteLastProfile: %v", err)
	}
	name, err := ReadLastProfile()
	if err != nil {
		t.Fatalf("ReadLastProfile: %v", err)
	}
	if name != "work" {
		t.Errorf("last profile = %q, want work", name)
	}
}

func TestReadLastProfile_UnsetYieldsEmpty(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("HOME", dir)

	name, err := ReadLastProfile()
	if err != nil {
		t.Fatalf("ReadLastProfile: %v", err)
	}
	if name != "" {
		t.Errorf("expected empty name, got %q", name)
	}
}
