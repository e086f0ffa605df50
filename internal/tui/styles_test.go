package tui

import (
	"strings"
	"testing"

	"github.com/charmbracelet/lipgloss"
)

func TestCategoryStyleKnownCategory(t *testing.T) {
	for _, c := range []string{"general", "announcement", "question"} {
		t.Run(c, func(t *testing.T) {
			rendered := CategoryStyle(c).Render(c)
			if !strings.Contains(rendered, c) {
				t.Errorf("CategoryStyle(%q).Render(%q) = %q", c, c, rendered)
			}
		})
	}
}

func TestCategoryStyleUnknownFallback(t *testing.T) {
	rendered := CategoryStyle("nonexistent").Render("nonexistent")
	if !strings.Contains(rendered, "nonexistent") {
		t.Errorf("CategoryStyle fallback did not render text: %q", rendered)
	}
}

func TestCategoryBadge(t *testing.T) {
	if got := CategoryBadge(""); got != "" {
		t.Errorf("CategoryBadge(\"\") = %q, want empty", got)
	}
	if got := CategoryBadge("question"); !strings.Contains(got, "[question]") {
		t.Errorf("CategoryBadge(question) = %q", got)
	}
}

func TestValidCategoryOrDefault(t *testing.T) {
	tests := map[string]string{
		"":             "general",
		"announcement": "announcement",
		"bogus":        "general",
	}
	for in, want := range tests {
		if got := validCategoryOrDefault(in); got != want {
			t.Errorf("validCategoryOrDefault(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestHelpEntryFormat(t *testing.T) {
	entry := helpEntry("q", "quit")
	if !strings.Contains(entry, "q") || !strings.Contains(entry, "quit") {
		t.Errorf("helpEntry = %q", entry)
	}
}

func TestHelpBar(t *testing.T) {
	bar := helpBar("j/k", "nav", "q", "quit")
	for _, want := range []string{"j/k", "nav", "q", "quit"} {
		if !strings.Contains(bar, want) {
			t.Errorf("helpBar missing %q: %q", want, bar)
		}
	}
}

func TestShimmerLogoSpellsName(t *testing.T) {
	for _, frame := range []int{0, 17, 400} {
		logo := renderShimmerLogo(frame)
		if w := lipgloss.Width(logo); w != len("S  P  H  E  R  E") {
			t.Errorf("frame %d: width = %d", frame, w)
		}
	}
}
