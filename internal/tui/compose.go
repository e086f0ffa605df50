package tui

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/naveenspark/sphere/pkg/client"
	"github.com/naveenspark/sphere/pkg/domain"
)

type composeField int

const (
	fieldContent composeField = iota
	fieldCategory
	fieldImage
	numFields
)

type composeModel struct {
	client    *client.Client
	fields    [numFields]string
	focus     composeField
	statusMsg string
	submitted bool
}

type postCreatedMsg struct {
	post *domain.Post
	err  error
}

func newComposeModel(c *client.Client) composeModel {
	m := composeModel{client: c}
	m.fields[fieldCategory] = domain.DefaultCategory
	return m
}

func (m composeModel) Update(msg tea.Msg) (composeModel, tea.Cmd) {
	switch msg := msg.(type) {
	case postCreatedMsg:
		m.submitted = false
		if msg.err != nil {
			m.statusMsg = "could not publish: " + errorText(msg.err)
			return m, nil
		}
		m.statusMsg = ""
		m.fields = [numFields]string{}
		m.fields[fieldCategory] = domain.DefaultCategory
		m.focus = fieldContent
		return m, nil

	case tea.KeyMsg:
		return m.updateKeys(msg)
	}
	return m, nil
}

func (m composeModel) updateKeys(msg tea.KeyMsg) (composeModel, tea.Cmd) {
	m.statusMsg = ""

	switch msg.String() {
	case "ctrl+s":
		return m.submit()
	case "tab", "down":
		m.focus = (m.focus + 1) % numFields
	case "shift+tab", "up":
		m.focus = (m.focus - 1 + numFields) % numFields
	case "enter":
		if m.focus == fieldContent {
			m.fields[fieldContent] += "\n"
		} else {
			m.focus = (m.focus + 1) % numFields
		}
	default:
		key := msg.String()
		if m.focus == fieldCategory {
			// Cycle through categories with h/l
			if key == "h" || key == "l" || key == "left" || key == "right" {
				m.fields[fieldCategory] = cycleCategory(m.fields[fieldCategory], key == "l" || key == "right")
			}
			return m, nil
		}
		f := &m.fields[m.focus]
		*f = editKey(*f, msg)
	}
	return m, nil
}

func cycleCategory(current string, forward bool) string {
	cats := domain.Categories
	idx := 0
	for i, c := range cats {
		if c == current {
			idx = i
			break
		}
	}
	if forward {
		idx = (idx + 1) % len(cats)
	} else {
		idx = (idx - 1 + len(cats)) % len(cats)
	}
	return cats[idx]
}

func (m composeModel) submit() (composeModel, tea.Cmd) {
	content := strings.TrimSpace(m.fields[fieldContent])
	if content == "" {
		m.statusMsg = "content is required"
		return m, nil
	}
	if m.submitted {
		return m, nil
	}

	m.submitted = true
	req := client.CreatePostRequest{
		Content:  content,
		Category: validCategoryOrDefault(m.fields[fieldCategory]),
	}
	imagePath := strings.TrimSpace(m.fields[fieldImage])
	c := m.client

	return m, func() tea.Msg {
		if imagePath != "" {
			f, err := os.Open(imagePath)
			if err != nil {
				return postCreatedMsg{err: fmt.Errorf("open image: %w", err)}
			}
			defer f.Close() //nolint:errcheck
			req.Image = f
			req.ImageName = filepath.Base(imagePath)
		}
		post, err := c.CreatePost(context.Background(), req)
		return postCreatedMsg{post: post, err: err}
	}
}

func (m composeModel) View() string {
	var b strings.Builder
	b.WriteString("  " + sectionHeaderStyle.Render("New post") + "\n\n")

	content := m.fields[fieldContent]
	lines := strings.Split(content, "\n")
	for i, line := range lines {
		label := "content"
		if i > 0 {
			label = "       "
		}
		focused := m.focus == fieldContent && i == len(lines)-1
		b.WriteString(renderField(label, line, "what's on your mind?", focused, false) + "\n")
	}

	cursor := " "
	style := metaStyle
	if m.focus == fieldCategory {
		cursor = inputPromptStyle.Render(">")
		style = selectedStyle
	}
	cat := m.fields[fieldCategory]
	fmt.Fprintf(&b, "%s %s %s  %s\n", cursor, style.Render("category:"), CategoryStyle(cat).Render(cat), dimStyle.Render("(h/l to cycle)"))

	b.WriteString(renderField("image", m.fields[fieldImage], "optional path to an image file", m.focus == fieldImage, false) + "\n")

	b.WriteString("\n")
	if m.submitted {
		b.WriteString(dimStyle.Render("  publishing..."))
	} else if m.statusMsg != "" {
		b.WriteString(errorStyle.Render("  " + m.statusMsg))
	}
	return b.String()
}
