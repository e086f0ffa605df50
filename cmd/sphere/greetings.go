package main

import (
	"fmt"
	"io"
	"math/rand/v2"

	"github.com/charmbracelet/lipgloss"
)

var greetings = [...]string{
	"The feed moved on without you. It does that.",
	"Someone posted a question. Nobody has answered it yet.",
	"Your followers refreshed twice looking for you.",
	"Three new posts since you last looked. Probably more.",
	"The comment box is empty. It does not have to be.",
	"A like costs nothing. A good post costs a little more.",
}

func printHelp(w io.Writer) {
	title := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#60a5fa")).
		Bold(true).
		Render("S P H E R E")

	quote := lipgloss.NewStyle().
		Foreground(lipgloss.Color("245")).
		Italic(true).
		Render(greetings[rand.IntN(len(greetings))])

	cmdStyle := lipgloss.NewStyle().Bold(true)
	descStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	commands := []struct{ cmd, desc string }{
		{"sphere", "Open the feed (interactive TUI)"},
		{"sphere login", "Log in and store your session"},
		{"sphere register", "Create an account"},
		{"sphere logout", "End your session"},
		{"sphere whoami", "Show the logged-in profile"},
		{"sphere passwd", "Change your password"},
		{"sphere post <text>", "Publish a post (--category, --image)"},
		{"sphere like <id>", "Like a post"},
		{"sphere unlike <id>", "Remove your like"},
		{"sphere comment <id> <text>", "Comment on a post"},
		{"sphere --version", "Show version"},
		{"sphere help", "You are here"},
	}

	fmt.Fprintf(w, "\n  %s\n\n  %s\n\n  Commands:\n", title, quote)
	for _, c := range commands {
		fmt.Fprintf(w, "    %s  %s\n", cmdStyle.Render(fmt.Sprintf("%-28s", c.cmd)), descStyle.Render(c.desc))
	}
	env := descStyle.Render("SPHERE_API_URL  SPHERE_HOME  SPHERE_HTTP_TIMEOUT  LOG_LEVEL")
	fmt.Fprintf(w, "\n  Environment: %s\n\n", env)
}
