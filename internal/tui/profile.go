package tui

import (
	"context"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/naveenspark/sphere/pkg/client"
	"github.com/naveenspark/sphere/pkg/domain"
)

type profileLoadedMsg struct {
	profile *domain.Profile
	err     error
}

type followResultMsg struct {
	userID int64
	follow bool
	err    error
}

// profileModel is the overlay shown for a post's author. The API does not
// say whether the viewer already follows the user, so following only
// reflects actions taken in this overlay.
type profileModel struct {
	client    *client.Client
	selfID    int64
	profile   *domain.Profile
	following bool
	closed    bool
	err       string
	width     int
}

func newProfileModel(c *client.Client, selfID int64) profileModel {
	return profileModel{client: c, selfID: selfID}
}

func (m profileModel) load(userID int64) tea.Cmd {
	c := m.client
	return func() tea.Msg {
		p, err := c.GetProfile(context.Background(), userID)
		return profileLoadedMsg{profile: p, err: err}
	}
}

func (m profileModel) Update(msg tea.Msg) (profileModel, tea.Cmd) {
	switch msg := msg.(type) {
	case profileLoadedMsg:
		if msg.err != nil {
			m.err = errorText(msg.err)
		} else {
			m.profile = msg.profile
		}
		return m, nil

	case followResultMsg:
		if m.profile == nil || msg.userID != m.profile.User.ID {
			return m, nil
		}
		if msg.err != nil {
			m.err = errorText(msg.err)
			return m, nil
		}
		m.err = ""
		if msg.follow != m.following {
			m.following = msg.follow
			if msg.follow {
				m.profile.FollowersCount++
			} else if m.profile.FollowersCount > 0 {
				m.profile.FollowersCount--
			}
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "esc", "q":
			m.closed = true
		case "f":
			if m.profile != nil && m.profile.User.ID != m.selfID {
				id, follow := m.profile.User.ID, !m.following
				c := m.client
				return m, func() tea.Msg {
					var err error
					if follow {
						err = c.Follow(context.Background(), id)
					} else {
						err = c.Unfollow(context.Background(), id)
					}
					return followResultMsg{userID: id, follow: follow, err: err}
				}
			}
		}
	}
	return m, nil
}

func (m profileModel) View() string {
	if m.profile == nil {
		if m.err != "" {
			return "\n " + errorStyle.Render("profile error: "+m.err)
		}
		return "\n " + dimStyle.Render("loading...")
	}

	p := m.profile
	cardWidth := min(50, m.width-4)
	if cardWidth < 30 {
		cardWidth = 30
	}
	border := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("#2a3040")).
		Padding(1, 2).
		Width(cardWidth)

	var sb strings.Builder
	sb.WriteString(selectedStyle.Render("@"+p.User.Username) + "\n")
	if p.Bio != "" {
		sb.WriteString(normalStyle.Render(p.Bio) + "\n")
	}
	var where []string
	if p.Location != "" {
		where = append(where, p.Location)
	}
	if p.Website != "" {
		where = append(where, p.Website)
	}
	if len(where) > 0 {
		sb.WriteString(metaStyle.Render(strings.Join(where, " · ")) + "\n")
	}

	sb.WriteString(metaStyle.Render("---") + "\n")
	stats := fmt.Sprintf("%d posts  %d followers  %d following",
		p.PostsCount, p.FollowersCount, p.FollowingCount)
	sb.WriteString(metaStyle.Render(stats) + "\n")
	sb.WriteString(metaStyle.Render("---") + "\n")

	if m.err != "" {
		sb.WriteString(errorStyle.Render(m.err) + "\n")
	}

	sb.WriteString("\n")
	switch {
	case p.User.ID == m.selfID:
		sb.WriteString(dimStyle.Render("this is you"))
	case m.following:
		sb.WriteString(accentStyle.Render("following") + "  " + helpEntry("f", "unfollow"))
	default:
		sb.WriteString(helpEntry("f", "follow"))
	}
	sb.WriteString("  " + helpEntry("esc", "close"))

	return "\n" + border.Render(sb.String())
}
