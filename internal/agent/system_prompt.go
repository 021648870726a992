package agent

import (
	"fmt"
	"strings"

	"github.com/torusbreakdown/marvin/internal/profile"
)

// personalityLine is the fixed opening line of every system prompt.
const personalityLine = "You are Marvin, a terse, capable engineering assistant with direct tool access to the user's machine."

// chatLogTailSize is how many recent chat-log entries are folded into the
// system prompt, per §4.9.
const chatLogTailSize = 20

// chatLogEntryMaxChars truncates each folded-in chat-log entry so a long
// historical message can't dominate the prompt.
const chatLogEntryMaxChars = 200

// codingModeInstructions is appended when the session's coding sub-flag
// is enabled.
const codingModeInstructions = "Coding mode is active: prefer reading files and running targeted shell/git commands over asking the user to paste output; make minimal, reviewable edits; never run a command that pushes, force-pushes, or deletes without explicit confirmation."

// designFirstInstructions is appended when the session was started with
// --design-first: the model must lay out its plan before touching any
// tool that mutates state.
const designFirstInstructions = "Design-first mode is active: before calling any tool that writes a file, runs a shell command, or applies a patch, respond with a short plan of the intended changes and wait for the next turn before acting on it."

// SystemPromptArgs bundles everything the builder needs to assemble a
// prompt. All fields are optional; a zero-value Args still produces a
// valid (if minimal) prompt.
type SystemPromptArgs struct {
	ProfileName    string
	Preferences    profile.Preferences
	SavedPlaces    []profile.SavedPlace
	CodingMode     bool
	DesignFirst    bool
	RecentChatLog  []profile.ChatLogEntry
	BackgroundJobs []string
}

// BuildSystemPrompt assembles the system prompt in the fixed order
// specified by §4.9: personality line, active profile name, preferences,
// saved places, coding-mode instructions, a truncated chat-log tail, and
// active background jobs. Empty sections are omitted rather than
// rendered blank.
func BuildSystemPrompt(args SystemPromptArgs) string {
	var sections []string

	sections = append(sections, personalityLine)

	profileName := strings.TrimSpace(args.ProfileName)
	if profileName == "" {
		profileName = "default"
	}
	sections = append(sections, fmt.Sprintf("Active profile: %s", profileName))

	if prefsSection := formatPreferences(args.Preferences); prefsSection != "" {
		sections = append(sections, prefsSection)
	}

	if placesSection := formatSavedPlaces(args.SavedPlaces); placesSection != "" {
		sections = append(sections, placesSection)
	}

	if args.CodingMode {
		sections = append(sections, codingModeInstructions)
	}

	if args.DesignFirst {
		sections = append(sections, designFirstInstructions)
	}

	if chatSection := formatChatLogTail(args.RecentChatLog); chatSection != "" {
		sections = append(sections, chatSection)
	}

	if jobsSection := formatBackgroundJobs(args.BackgroundJobs); jobsSection != "" {
		sections = append(sections, jobsSection)
	}

	return strings.Join(sections, "\n\n")
}

func formatPreferences(prefs profile.Preferences) string {
	pairs := prefs.Ordered()
	if len(pairs) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Preferences:")
	for _, p := range pairs {
		fmt.Fprintf(&b, "\n- %s: %s", p.Key, p.Value)
	}
	return b.String()
}

func formatSavedPlaces(places []profile.SavedPlace) string {
	if len(places) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Saved places:")
	for _, p := range places {
		fmt.Fprintf(&b, "\n- %s: %s", p.Label, p.Name)
		if p.Address != "" {
			fmt.Fprintf(&b, " (%s)", p.Address)
		}
		if p.Lat != 0 || p.Lng != 0 {
			fmt.Fprintf(&b, " [%g, %g]", p.Lat, p.Lng)
		}
	}
	return b.String()
}

func formatChatLogTail(entries []profile.ChatLogEntry) string {
	if len(entries) == 0 {
		return ""
	}
	if len(entries) > chatLogTailSize {
		entries = entries[len(entries)-chatLogTailSize:]
	}
	var b strings.Builder
	b.WriteString("Recent conversation:")
	for _, e := range entries {
		content := e.Content
		if len(content) > chatLogEntryMaxChars {
			content = content[:chatLogEntryMaxChars]
		}
		fmt.Fprintf(&b, "\n- %s: %s", e.Role, content)
	}
	return b.String()
}

func formatBackgroundJobs(jobs []string) string {
	if len(jobs) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Active background jobs:")
	for _, j := range jobs {
		fmt.Fprintf(&b, "\n- %s", j)
	}
	return b.String()
}
