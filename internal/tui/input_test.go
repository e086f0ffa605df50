package tui

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
)

func TestEditRune(t *testing.T) {
	tests := []struct {
		name  string
		start string
		key   string
		want  string
	}{
		{"append to empty", "", "a", "a"},
		{"append letter", "hel", "l", "hell"},
		{"append space", "hello", " ", "hello "},
		{"backspace", "hello", "backspace", "hell"},
		{"backspace on empty", "", "backspace", ""},
		{"backspace multibyte", "hellé", "backspace", "hell"},
		{"backspace emoji", "hello\U0001f600", "backspace", "hello"},
		{"named key ignored", "hello", "enter", "hello"},
		{"ctrl combo ignored", "hello", "ctrl+s", "hello"},
		{"shift+enter ignored", "hello", "shift+enter", "hello"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := editRune(tc.start, tc.key)
			if got != tc.want {
				t.Errorf("editRune(%q, %q) = %q, want %q", tc.start, tc.key, got, tc.want)
			}
		})
	}
}

func TestEditRuneMaxInputLen(t *testing.T) {
	atLimit := strings.Repeat("a", maxInputLen)
	if got := editRune(atLimit, "b"); got != atLimit {
		t.Errorf("editRune at limit grew to %d runes", len([]rune(got)))
	}
	if got := editRune(atLimit, "backspace"); len(got) != maxInputLen-1 {
		t.Errorf("backspace at limit: len = %d, want %d", len(got), maxInputLen-1)
	}
}

func TestEditKey(t *testing.T) {
	tests := []struct {
		name  string
		start string
		msg   tea.KeyMsg
		want  string
	}{
		{"rune", "ab", tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("c")}, "abc"},
		{"paste", "hi ", tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("there friend"), Paste: true}, "hi there friend"},
		{"space", "hi", tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}}, "hi "},
		{"backspace", "héllo", tea.KeyMsg{Type: tea.KeyBackspace}, "héll"},
		{"enter ignored", "hi", tea.KeyMsg{Type: tea.KeyEnter}, "hi"},
		{"tab ignored", "hi", tea.KeyMsg{Type: tea.KeyTab}, "hi"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := editKey(tc.start, tc.msg); got != tc.want {
				t.Errorf("editKey(%q, %v) = %q, want %q", tc.start, tc.msg, got, tc.want)
			}
		})
	}
}

func TestEditKeyPasteClamped(t *testing.T) {
	start := strings.Repeat("a", maxInputLen-3)
	got := editKey(start, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("abcdef"), Paste: true})
	if got != start+"abc" {
		t.Errorf("paste not clamped: len = %d runes", len([]rune(got)))
	}
}

func TestTruncStr(t *testing.T) {
	tests := []struct {
		name   string
		s      string
		maxLen int
		want   string
	}{
		{"under limit", "hello", 10, "hello"},
		{"at limit", "hello", 5, "hello"},
		{"over limit", "hello world", 5, "hell…"},
		{"empty string", "", 5, ""},
		{"zero width", "hello", 0, ""},
		{"CJK chars", "你好世界", 3, "你好…"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := truncStr(tt.s, tt.maxLen)
			if got != tt.want {
				t.Errorf("truncStr(%q, %d) = %q, want %q", tt.s, tt.maxLen, got, tt.want)
			}
		})
	}
}

func TestOneLine(t *testing.T) {
	got := oneLine("first line\n\n  second\tline  ")
	if got != "first line second line" {
		t.Errorf("oneLine = %q", got)
	}
}

func TestWrapText(t *testing.T) {
	got := wrapText("abcdefgh\nxy", 3)
	want := "abc\ndef\ngh\nxy"
	if got != want {
		t.Errorf("wrapText = %q, want %q", got, want)
	}
	if got := wrapText("abc", 0); got != "abc" {
		t.Errorf("wrapText width 0 = %q, want unchanged", got)
	}
}

func TestTruncateToHeight(t *testing.T) {
	input := "line1\nline2\nline3\nline4\nline5\n"
	result := truncateToHeight(input, 3)
	if strings.Count(result, "\n") > 3 {
		t.Errorf("truncateToHeight(5 lines, 3) = %q", result)
	}
	if strings.Contains(result, "line4") {
		t.Errorf("truncateToHeight result should not contain line4: %q", result)
	}
	if got := truncateToHeight(input, 0); got != input {
		t.Errorf("truncateToHeight with maxLines=0 should return input unchanged, got %q", got)
	}
	if got := truncateToHeight(input, 10); got != input {
		t.Errorf("truncateToHeight within limit changed input: %q", got)
	}
}

func TestRenderFieldMasksPassword(t *testing.T) {
	got := renderField("password", "secret", "", false, true)
	if strings.Contains(got, "secret") {
		t.Errorf("masked field leaked value: %q", got)
	}
	if !strings.Contains(got, "••••••") {
		t.Errorf("masked field = %q, want six bullets", got)
	}
}

func TestRenderFieldPlaceholder(t *testing.T) {
	got := renderField("email", "", "you@example.com", false, false)
	if !strings.Contains(got, "you@example.com") {
		t.Errorf("placeholder missing: %q", got)
	}
	got = renderField("email", "", "you@example.com", true, false)
	if strings.Contains(got, "you@example.com") {
		t.Errorf("placeholder shown on focused field: %q", got)
	}
}
