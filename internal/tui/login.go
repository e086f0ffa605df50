package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/naveenspark/sphere/pkg/client"
	"github.com/naveenspark/sphere/pkg/domain"
	"github.com/naveenspark/sphere/pkg/session"
)

type loginField int

const (
	loginEmail loginField = iota
	loginUsername
	loginPassword
	numLoginFields
)

type loginResultMsg struct {
	err error
}

type loginModel struct {
	client    *client.Client
	sess      *session.Manager
	fields    [numLoginFields]string
	focus     loginField
	notice    string
	statusMsg string
	submitted bool
}

func newLoginModel(c *client.Client, sess *session.Manager, notice string) loginModel {
	return loginModel{client: c, sess: sess, notice: notice}
}

func (m loginModel) Update(msg tea.Msg) (loginModel, tea.Cmd) {
	switch msg := msg.(type) {
	case loginResultMsg:
		m.submitted = false
		if msg.err != nil {
			m.statusMsg = loginErrorText(msg.err)
			m.fields[loginPassword] = ""
			m.focus = loginPassword
		}
		return m, nil

	case tea.KeyMsg:
		return m.updateKeys(msg)
	}
	return m, nil
}

func (m loginModel) updateKeys(msg tea.KeyMsg) (loginModel, tea.Cmd) {
	switch msg.String() {
	case "tab", "down":
		m.focus = (m.focus + 1) % numLoginFields
	case "shift+tab", "up":
		m.focus = (m.focus - 1 + numLoginFields) % numLoginFields
	case "enter":
		if m.focus < loginPassword {
			m.focus++
			return m, nil
		}
		return m.submit()
	default:
		m.statusMsg = ""
		f := &m.fields[m.focus]
		*f = editKey(*f, msg)
	}
	return m, nil
}

func (m loginModel) submit() (loginModel, tea.Cmd) {
	creds := domain.Credentials{
		Email:    strings.TrimSpace(m.fields[loginEmail]),
		Username: strings.TrimSpace(m.fields[loginUsername]),
		Password: m.fields[loginPassword],
	}
	if creds.Username == "" || creds.Password == "" {
		m.statusMsg = "username and password are required"
		return m, nil
	}
	if m.submitted {
		return m, nil
	}
	m.submitted = true
	m.notice = ""

	c, sess := m.client, m.sess
	return m, func() tea.Msg {
		pair, err := c.Login(context.Background(), creds)
		if err != nil {
			return loginResultMsg{err: err}
		}
		if err := sess.Login(pair.Access, pair.Refresh); err != nil {
			return loginResultMsg{err: fmt.Errorf("store session: %w", err)}
		}
		return loginResultMsg{}
	}
}

func loginErrorText(err error) string {
	if errors.Is(err, client.ErrAuthInvalid) {
		return "invalid credentials"
	}
	return errorText(err)
}

func (m loginModel) View() string {
	var b strings.Builder
	b.WriteString("  " + sectionHeaderStyle.Render("Log in") + "\n\n")
	if m.notice != "" {
		b.WriteString("  " + updateStyle.Render(m.notice) + "\n\n")
	}
	b.WriteString(renderField("email", m.fields[loginEmail], "you@example.com", m.focus == loginEmail, false) + "\n")
	b.WriteString(renderField("username", m.fields[loginUsername], "username", m.focus == loginUsername, false) + "\n")
	b.WriteString(renderField("password", m.fields[loginPassword], "password", m.focus == loginPassword, true) + "\n")
	b.WriteString("\n")
	switch {
	case m.submitted:
		b.WriteString(dimStyle.Render("  logging in..."))
	case m.statusMsg != "":
		b.WriteString(errorStyle.Render("  " + m.statusMsg))
	default:
		b.WriteString(dimStyle.Render("  no account? run: sphere register"))
	}
	return b.String()
}
