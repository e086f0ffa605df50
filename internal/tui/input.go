package tui

import (
	"strings"
	"unicode/utf8"

	tea "github.com/charmbracelet/bubbletea"
)

// maxInputLen is the maximum number of runes allowed in form inputs.
const maxInputLen = 2000

// editRune processes a keystroke for inline text editing.
// Handles backspace (rune-aware) and single printable characters.
// Returns the text unchanged for non-printable keys (enter, esc, etc.).
// Input is clamped to maxInputLen runes.
func editRune(text string, key string) string {
	switch key {
	case "backspace":
		if len(text) > 0 {
			runes := []rune(text)
			return string(runes[:len(runes)-1])
		}
		return text
	}
	if utf8.RuneCountInString(key) == 1 {
		if utf8.RuneCountInString(text) >= maxInputLen {
			return text
		}
		return text + key
	}
	return text
}

// editKey applies a key message to text. Unlike editRune it understands
// pasted text, which arrives as a single message with many runes.
func editKey(text string, msg tea.KeyMsg) string {
	switch msg.Type {
	case tea.KeyRunes:
		room := maxInputLen - utf8.RuneCountInString(text)
		if room <= 0 {
			return text
		}
		runes := msg.Runes
		if len(runes) > room {
			runes = runes[:room]
		}
		return text + string(runes)
	case tea.KeySpace:
		return editRune(text, " ")
	case tea.KeyBackspace:
		return editRune(text, "backspace")
	}
	return text
}

// truncateToHeight limits output to maxLines newline-delimited lines.
// Returns the original string if it fits or maxLines is <= 0.
func truncateToHeight(s string, maxLines int) string {
	if maxLines <= 0 {
		return s
	}
	n := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			n++
			if n >= maxLines {
				return s[:i+1]
			}
		}
	}
	return s
}

// renderField renders one labelled form input. Masked fields show one
// bullet per rune.
func renderField(label, value, placeholder string, focused, masked bool) string {
	cursor := " "
	labelStyle := metaStyle
	if focused {
		cursor = inputPromptStyle.Render(">")
		labelStyle = selectedStyle
	}

	shown := value
	if masked {
		shown = strings.Repeat("•", utf8.RuneCountInString(value))
	}
	switch {
	case shown == "" && !focused:
		shown = inputPlaceholderStyle.Render(placeholder)
	case focused:
		shown = normalStyle.Render(shown) + accentStyle.Render("█")
	default:
		shown = dimStyle.Render(shown)
	}
	return cursor + " " + labelStyle.Render(label+":") + " " + shown
}
