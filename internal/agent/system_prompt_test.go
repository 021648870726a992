package agent

import (
	"strings"
	"testing"

	"github.com/torusbreakdown/marvin/internal/profile"
)

func TestBuildSystemPrompt_MinimalArgsStillProducesPersonalityAndProfile(t *testing.T) {
	got := BuildSystemPrompt(SystemPromptArgs{})
	if !strings.Contains(got, personalityLine) {
		t.Error("expected the personality line even with empty args")
	}
	if !strings.Contains(got, "Active profile: default") {
		t.Errorf("expected default profile name, got %q", got)
	}
}

func TestBuildSystemPrompt_OmitsEmptySections(t *testing.T) {
	got := BuildSystemPrompt(SystemPromptArgs{ProfileName: "work"})
	if strings.Contains(got, "Preferences:") {
		t.Error("expected no Preferences section when none are set")
	}
	if strings.Contains(got, "Saved places:") {
		t.Error("expected no Saved places section when none are set")
	}
	if strings.Contains(got, codingModeInstructions) {
		t.Error("expected no coding-mode instructions when CodingMode is false")
	}
}

func TestBuildSystemPrompt_IncludesCodingModeInstructions(t *testing.T) {
	got := BuildSystemPrompt(SystemPromptArgs{CodingMode: true})
	if !strings.Contains(got, codingModeInstructions) {
		t.Error("expected coding-mode instructions when CodingMode is true")
	}
}

func TestBuildSystemPrompt_PreferencesInRecognizedOrder(t *testing.T) {
	got := BuildSystemPrompt(SystemPromptArgs{
		Preferences: profile.Preferences{
			"units":    "metric",
			"timezone": "UTC",
		},
	})
	tzIdx := strings.Index(got, "timezone")
	unitsIdx := strings.Index(got, "units")
	if tzIdx == -1 || unitsIdx == -1 || tzIdx > unitsIdx {
		t.Errorf("expected timezone before units per PreferenceKeyOrder, got %q", got)
	}
}

func TestBuildSystemPrompt_SavedPlaceFormatting(t *testing.T) {
	got := BuildSystemPrompt(SystemPromptArgs{
		SavedPlaces: []profile.SavedPlace{
			{Label: "home", Name: "My House", Address: "1 Main St", Lat: 40.1, Lng: -74.2},
		},
	})
	if !strings.Contains(got, "home: My House (1 Main St)") {
		t.Errorf("expected formatted saved place, got %q", got)
	}
}

func TestBuildSystemPrompt_ChatLogTailTruncatesAndCaps(t *testing.T) {
	long := strings.Repeat("x", chatLogEntryMaxChars+50)
	var entries []profile.ChatLogEntry
	for i := 0; i < chatLogTailSize+5; i++ {
		entries = append(entries, profile.ChatLogEntry{Role: "user", Content: long})
	}
	got := BuildSystemPrompt(SystemPromptArgs{RecentChatLog: entries})

	if strings.Count(got, "- user:") != chatLogTailSize {
		t.Errorf("expected %d folded-in entries, got %d", chatLogTailSize, strings.Count(got, "- user:"))
	}
	if strings.Contains(got, long) {
		t.Error("expected each chat-log entry to be truncated")
	}
}

func TestBuildSystemPrompt_BackgroundJobs(t *testing.T) {
	got := BuildSystemPrompt(SystemPromptArgs{BackgroundJobs: []string{"timer: 5m focus block"}})
	if !strings.Contains(got, "Active background jobs:") || !strings.Contains(got, "timer: 5m focus block") {
		t.Errorf("expected background jobs section, got %q", got)
	}
}
