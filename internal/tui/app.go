package tui

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/naveenspark/sphere/pkg/client"
	"github.com/naveenspark/sphere/pkg/session"
)

type view int

const (
	viewLoading view = iota
	viewLogin
	viewFeed
	viewDetail
	viewCompose
)

// guardMsg carries the route guard's decision once the session is ready.
type guardMsg struct {
	decision session.Decision
	err      error
}

// sessionChangedMsg is a snapshot published by the session manager.
type sessionChangedMsg struct {
	session session.Session
}

type logoutDoneMsg struct {
	err error
}

// App is the root Bubbletea model.
type App struct {
	client      *client.Client
	sess        *session.Manager
	updates     <-chan session.Session
	unsubscribe func()
	version     string
	imageBase   string
	view        view
	login       loginModel
	feed        feedModel
	detail      detailModel
	compose     composeModel
	profile     profileModel
	profileOpen bool
	statusMsg   string
	update      string
	width       int
	height      int
	frame       int
}

// NewApp creates a new TUI application. c must send its requests through
// the session's authenticated transport; imageBase resolves relative image
// URLs.
func NewApp(c *client.Client, sess *session.Manager, version, imageBase string) App {
	a := App{
		client:    c,
		sess:      sess,
		version:   version,
		imageBase: imageBase,
		view:      viewLoading,
		login:     newLoginModel(c, sess, ""),
		feed:      newFeedModel(c, imageBase),
		compose:   newComposeModel(c),
	}
	if sess != nil {
		a.updates, a.unsubscribe = sess.Subscribe()
	}
	return a
}

func (a App) Init() tea.Cmd {
	return tea.Batch(shimmerTickCmd(), a.guard(), a.listen(), checkVersion(a.version))
}

func (a App) guard() tea.Cmd {
	sess := a.sess
	if sess == nil {
		return nil
	}
	return func() tea.Msg {
		d, err := session.Guard(context.Background(), sess)
		return guardMsg{decision: d, err: err}
	}
}

// listen waits for the next session snapshot. Closing the channel ends it.
func (a App) listen() tea.Cmd {
	ch := a.updates
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		s, ok := <-ch
		if !ok {
			return nil
		}
		return sessionChangedMsg{session: s}
	}
}

func (a App) selfID() int64 {
	if a.sess == nil {
		return 0
	}
	id, _ := strconv.ParseInt(a.sess.UserID(), 10, 64) //nolint:errcheck // zero when unknown
	return id
}

func (a App) toFeed() (App, tea.Cmd) {
	a.view = viewFeed
	a.feed.loading = true
	return a, a.feed.load()
}

func (a App) toLogin(notice string) App {
	a.view = viewLogin
	a.profileOpen = false
	a.login = newLoginModel(a.client, a.sess, notice)
	a.feed = newFeedModel(a.client, a.imageBase)
	a.compose = newComposeModel(a.client)
	return a
}

func (a App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		// Chrome: header(2) + status(1) + help(1) = 4 lines
		bodyMsg := tea.WindowSizeMsg{Width: msg.Width, Height: msg.Height - 4}
		a.feed, _ = a.feed.Update(bodyMsg)
		a.detail, _ = a.detail.Update(bodyMsg)
		a.profile, _ = a.profile.Update(bodyMsg)
		return a, nil

	case shimmerTickMsg:
		a.frame++
		return a, shimmerTickCmd()

	case versionCheckMsg:
		if msg.hasUpdate {
			a.update = msg.latestVersion
		}
		return a, nil

	case guardMsg:
		if msg.decision == session.Allow {
			return a.toFeed()
		}
		notice := ""
		if msg.err != nil {
			notice = "could not read saved session"
		}
		return a.toLogin(notice), nil

	case sessionChangedMsg:
		next := a.listen()
		if msg.session.State == session.StateUnauthenticated && a.view != viewLogin && a.view != viewLoading {
			return a.toLogin("session ended, log in again"), next
		}
		return a, next

	case loginResultMsg:
		if msg.err == nil && a.view == viewLogin {
			a.statusMsg = ""
			return a.toFeed()
		}
		a.login, _ = a.login.Update(msg)
		return a, nil

	case logoutRequestMsg:
		sess := a.sess
		return a, func() tea.Msg {
			return logoutDoneMsg{err: sess.Logout(context.Background())}
		}

	case logoutDoneMsg:
		if msg.err != nil {
			a.statusMsg = "logout: " + msg.err.Error()
		}
		return a.toLogin("logged out"), nil

	case openDetailMsg:
		a.view = viewDetail
		a.detail = newDetailModel(a.client, a.imageBase, msg.post, msg.liked)
		a.detail, _ = a.detail.Update(tea.WindowSizeMsg{Width: a.width, Height: a.height - 4})
		return a, a.detail.load()

	case postUpdatedMsg:
		a.feed, _ = a.feed.Update(msg)
		a.view = viewFeed
		return a, nil

	case startComposeMsg:
		a.view = viewCompose
		return a, nil

	case postCreatedMsg:
		a.compose, _ = a.compose.Update(msg)
		if msg.err == nil {
			a.statusMsg = "posted"
			return a.toFeed()
		}
		return a, nil

	case showProfileMsg:
		a.profileOpen = true
		a.profile = newProfileModel(a.client, a.selfID())
		a.profile, _ = a.profile.Update(tea.WindowSizeMsg{Width: a.width, Height: a.height - 4})
		return a, a.profile.load(msg.userID)

	case profileLoadedMsg, followResultMsg:
		a.profile, _ = a.profile.Update(msg)
		return a, nil

	case postsLoadedMsg:
		a.feed, _ = a.feed.Update(msg)
		return a, nil

	case likeResultMsg:
		a.feed, _ = a.feed.Update(msg)
		a.detail, _ = a.detail.Update(msg)
		return a, nil

	case commentsLoadedMsg, commentCreatedMsg:
		a.detail, _ = a.detail.Update(msg)
		return a, nil

	case copyResultMsg:
		if msg.err != nil {
			a.statusMsg = "copy failed: " + msg.err.Error()
		} else {
			a.statusMsg = "copied to clipboard"
		}
		return a, nil

	case openResultMsg:
		if msg.err != nil {
			a.statusMsg = "open failed: " + msg.err.Error()
		}
		return a, nil

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return a, a.quit()
		}

		// Profile overlay captures all keys when open
		if a.profileOpen {
			var cmd tea.Cmd
			a.profile, cmd = a.profile.Update(msg)
			if a.profile.closed {
				a.profileOpen = false
			}
			return a, cmd
		}

		a.statusMsg = ""
		if !a.isEditing() && msg.String() == "q" {
			return a, a.quit()
		}
		if a.view == viewCompose && msg.String() == "esc" {
			a.view = viewFeed
			return a, nil
		}

		var cmd tea.Cmd
		switch a.view {
		case viewLogin:
			a.login, cmd = a.login.Update(msg)
		case viewFeed:
			a.feed, cmd = a.feed.Update(msg)
		case viewDetail:
			a.detail, cmd = a.detail.Update(msg)
		case viewCompose:
			a.compose, cmd = a.compose.Update(msg)
		}
		return a, cmd
	}
	return a, nil
}

// quit stops the session subscription and ends the program.
func (a App) quit() tea.Cmd {
	if a.unsubscribe != nil {
		a.unsubscribe()
	}
	return tea.Quit
}

func (a App) isEditing() bool {
	switch a.view {
	case viewLogin, viewCompose:
		return true
	case viewDetail:
		return a.detail.inputFocused
	}
	return false
}

func (a App) View() string {
	logo := renderShimmerLogo(a.frame)
	logoPad := max((a.width-lipgloss.Width(logo))/2, 0)
	header := strings.Repeat(" ", logoPad) + logo

	var sub []string
	if a.sess != nil && a.view != viewLogin && a.view != viewLoading {
		if id := a.sess.UserID(); id != "" {
			sub = append(sub, "user #"+id)
		}
	}
	if a.update != "" {
		sub = append(sub, updateStyle.Render(a.update+" available"))
	}
	subLine := metaStyle.Render(strings.Join(sub, " · "))
	subPad := max((a.width-lipgloss.Width(subLine))/2, 0)
	header += "\n" + strings.Repeat(" ", subPad) + subLine

	var body, help string
	switch a.view {
	case viewLoading:
		body = dimStyle.Render("  Loading...")
		help = helpBar("q", "quit")
	case viewLogin:
		body = a.login.View()
		help = helpBar("tab", "next", "enter", "log in", "ctrl+c", "quit")
	case viewFeed:
		body = a.feed.View()
		help = helpBar("j/k", "nav", "enter", "open", "l", "like", "c", "copy", "o", "image", "p", "author", "n", "new", "r", "reload", "x", "logout", "q", "quit")
	case viewDetail:
		body = a.detail.View()
		if a.detail.inputFocused {
			help = helpBar("enter", "send", "esc", "cancel")
		} else {
			help = helpBar("enter", "comment", "l", "like", "c", "copy", "o", "image", "p", "author", "esc", "back", "q", "quit")
		}
	case viewCompose:
		body = a.compose.View()
		help = helpBar("tab", "next", "h/l", "category", "ctrl+s", "publish", "esc", "cancel")
	}

	if a.profileOpen {
		body = a.profile.View()
		help = helpBar("f", "follow", "esc", "close")
	}

	status := ""
	if a.statusMsg != "" {
		status = " " + statusStyle.Render(a.statusMsg)
	}

	// Chrome budget: header(2) + status(1) + help(1) = 4 lines + body
	chrome := 4
	body = strings.TrimRight(truncateToHeight(body, a.height-chrome), "\n")

	return fmt.Sprintf("%s\n%s\n%s\n%s", header, body, status, help)
}
