// Package profile persists the per-identity bundle the session core reads
// from and writes to: preferences, saved places, a chat-log tail, ntfy
// subscriptions, cached tokens, and input history. Each file loads
// tolerantly — a missing or corrupt file is treated as empty rather than
// an error, since none of these are required for a session to start.
package profile

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/torusbreakdown/marvin/pkg/models"
	"gopkg.in/yaml.v3"
)

const (
	prefsFile      = "prefs.yaml"
	placesFile     = "saved_places.json"
	chatLogFile    = "chat_log.json"
	ntfyFile       = "ntfy_subscriptions.json"
	tokensFile     = "tokens.json"
	historyFile    = "history"
	maxChatLogSize = 500
)

// ProfilesRoot returns the directory holding one subdirectory per profile.
func ProfilesRoot() string {
	home, err := os.UserHomeDir()
	if err != nil || strings.TrimSpace(home) == "" {
		home = "."
	}
	return filepath.Join(home, ".marvin", "profiles")
}

// LastProfileFile is the sibling marker at the profiles root recording
// the most recently active profile name.
func LastProfileFile() string {
	return filepath.Join(ProfilesRoot(), "last_profile")
}

// ProfileDir returns the bundle directory for a named profile.
func ProfileDir(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		name = "default"
	}
	return filepath.Join(ProfilesRoot(), name)
}

// ReadLastProfile loads the last-active profile name, or "" if unset.
func ReadLastProfile() (string, error) {
	data, err := os.ReadFile(LastProfileFile())
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

// WriteLastProfile records name as the active profile.
func WriteLastProfile(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil
	}
	path := LastProfileFile()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(name+"\n"), 0o644)
}

// ListProfiles returns the names of every profile bundle directory.
func ListProfiles() ([]string, error) {
	entries, err := os.ReadDir(ProfilesRoot())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// Preferences holds free-form key/value settings. Only PreferenceKeyOrder
// entries are given a stable position when rendered; anything else is
// appended afterward in sorted order so nothing is silently dropped.
type Preferences map[string]string

// PreferenceKeyOrder is the fixed set of recognized preference keys, in
// the order the system prompt renders them.
var PreferenceKeyOrder = []string{
	"timezone",
	"units",
	"home_location",
	"coding_mode",
	"voice_enabled",
}

// Ordered returns preference pairs: recognized keys first in
// PreferenceKeyOrder, then any remaining keys sorted alphabetically.
func (p Preferences) Ordered() []PreferencePair {
	seen := make(map[string]bool, len(p))
	pairs := make([]PreferencePair, 0, len(p))
	for _, key := range PreferenceKeyOrder {
		if v, ok := p[key]; ok {
			pairs = append(pairs, PreferencePair{Key: key, Value: v})
			seen[key] = true
		}
	}
	var rest []string
	for k := range p {
		if !seen[k] {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	for _, k := range rest {
		pairs = append(pairs, PreferencePair{Key: k, Value: p[k]})
	}
	return pairs
}

// PreferencePair is one rendered preference entry.
type PreferencePair struct {
	Key   string
	Value string
}

// SavedPlace is a named location the user has registered.
type SavedPlace struct {
	Label   string  `json:"label"`
	Name    string  `json:"name"`
	Address string  `json:"address,omitempty"`
	Lat     float64 `json:"lat,omitempty"`
	Lng     float64 `json:"lng,omitempty"`
}

// ChatLogEntry is one compacted record in the chat-log tail, used to give
// the system prompt short-term memory of what was recently discussed.
type ChatLogEntry struct {
	Role      models.Role `json:"role"`
	Content   string      `json:"content"`
	Timestamp time.Time   `json:"timestamp"`
}

// Store reads and writes the bundle of files under one profile directory.
type Store struct {
	Name string
	dir  string
}

// Open returns a Store for the named profile. It does not require the
// directory to exist yet — it is created lazily on first save.
func Open(name string) *Store {
	name = strings.TrimSpace(name)
	if name == "" {
		name = "default"
	}
	return &Store{Name: name, dir: ProfileDir(name)}
}

func (s *Store) path(file string) string { return filepath.Join(s.dir, file) }

func (s *Store) ensureDir() error {
	return os.MkdirAll(s.dir, 0o755)
}

// LoadPreferences reads prefs.yaml. A missing or corrupt file yields an
// empty map rather than an error.
func (s *Store) LoadPreferences() Preferences {
	data, err := os.ReadFile(s.path(prefsFile))
	if err != nil {
		return Preferences{}
	}
	var prefs Preferences
	if err := yaml.Unmarshal(data, &prefs); err != nil || prefs == nil {
		return Preferences{}
	}
	return prefs
}

// SavePreferences writes prefs.yaml with full-file-replace semantics.
func (s *Store) SavePreferences(prefs Preferences) error {
	if err := s.ensureDir(); err != nil {
		return err
	}
	data, err := yaml.Marshal(prefs)
	if err != nil {
		return err
	}
	return os.WriteFile(s.path(prefsFile), data, 0o644)
}

// LoadSavedPlaces reads saved_places.json, tolerant of a missing file.
func (s *Store) LoadSavedPlaces() []SavedPlace {
	var places []SavedPlace
	if !loadJSON(s.path(placesFile), &places) {
		return nil
	}
	return places
}

// SaveSavedPlaces writes saved_places.json with full-file-replace semantics.
func (s *Store) SaveSavedPlaces(places []SavedPlace) error {
	return s.saveJSON(placesFile, places)
}

// LoadChatLog reads chat_log.json, tolerant of a missing or corrupt file.
func (s *Store) LoadChatLog() []ChatLogEntry {
	var entries []ChatLogEntry
	if !loadJSON(s.path(chatLogFile), &entries) {
		return nil
	}
	return entries
}

// AppendChatLog appends one entry, capping the stored tail at
// maxChatLogSize entries so the file doesn't grow without bound. The
// write is a full-file replace — there is no concurrent writer within a
// single process, so no locking is needed.
func (s *Store) AppendChatLog(entry ChatLogEntry) error {
	entries := s.LoadChatLog()
	entries = append(entries, entry)
	if len(entries) > maxChatLogSize {
		entries = entries[len(entries)-maxChatLogSize:]
	}
	return s.saveJSON(chatLogFile, entries)
}

// RecentChatLog returns the last n entries (fewer if the log is shorter).
func (s *Store) RecentChatLog(n int) []ChatLogEntry {
	entries := s.LoadChatLog()
	if n <= 0 || n >= len(entries) {
		return entries
	}
	return entries[len(entries)-n:]
}

// LoadNtfySubscriptions reads ntfy_subscriptions.json, tolerant of a
// missing file.
func (s *Store) LoadNtfySubscriptions() []string {
	var topics []string
	if !loadJSON(s.path(ntfyFile), &topics) {
		return nil
	}
	return topics
}

// SaveNtfySubscriptions writes ntfy_subscriptions.json.
func (s *Store) SaveNtfySubscriptions(topics []string) error {
	return s.saveJSON(ntfyFile, topics)
}

// LoadTokens reads tokens.json (service name -> cached token), tolerant
// of a missing file.
func (s *Store) LoadTokens() map[string]string {
	tokens := map[string]string{}
	if !loadJSON(s.path(tokensFile), &tokens) {
		return map[string]string{}
	}
	return tokens
}

// SaveTokens writes tokens.json.
func (s *Store) SaveTokens(tokens map[string]string) error {
	return s.saveJSON(tokensFile, tokens)
}

// AppendHistory appends one line to the input-history file.
func (s *Store) AppendHistory(line string) error {
	if err := s.ensureDir(); err != nil {
		return err
	}
	f, err := os.OpenFile(s.path(historyFile), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.WriteString(line + "\n")
	return err
}

// LoadHistory returns up to limit most-recent history lines, oldest
// first. limit <= 0 returns the whole file.
func (s *Store) LoadHistory(limit int) []string {
	data, err := os.ReadFile(s.path(historyFile))
	if err != nil {
		return nil
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) == 1 && lines[0] == "" {
		return nil
	}
	if limit > 0 && limit < len(lines) {
		lines = lines[len(lines)-limit:]
	}
	return lines
}

func (s *Store) saveJSON(file string, v any) error {
	if err := s.ensureDir(); err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.path(file), data, 0o644)
}

// loadJSON reads and unmarshals a JSON file into v. It returns false
// (leaving v untouched) when the file is missing or its contents don't
// parse — callers treat that the same as "nothing saved yet."
func loadJSON(path string, v any) bool {
	data, err := os.ReadFile(path)
	if err != nil {
		return false
	}
	return json.Unmarshal(data, v) == nil
}
