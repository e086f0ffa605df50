package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/atotto/clipboard"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/naveenspark/sphere/internal/browser"
	"github.com/naveenspark/sphere/pkg/client"
	"github.com/naveenspark/sphere/pkg/domain"
)

// feedOrdering lists newest posts first.
const feedOrdering = "-created_at"

type postsLoadedMsg struct {
	posts []domain.Post
	err   error
}

type likeResultMsg struct {
	postID int64
	liked  bool
	err    error
}

type copyResultMsg struct {
	err error
}

type openResultMsg struct {
	err error
}

type openDetailMsg struct {
	post  domain.Post
	liked bool
}

type showProfileMsg struct {
	userID int64
}

type startComposeMsg struct{}

type logoutRequestMsg struct{}

type feedModel struct {
	client    *client.Client
	imageBase string
	posts     []domain.Post
	liked     map[int64]bool
	cursor    int
	offset    int
	loading   bool
	err       error
	statusMsg string
	width     int
	height    int
}

func newFeedModel(c *client.Client, imageBase string) feedModel {
	return feedModel{
		client:    c,
		imageBase: imageBase,
		liked:     make(map[int64]bool),
		loading:   true,
	}
}

func (m feedModel) load() tea.Cmd {
	c := m.client
	return func() tea.Msg {
		posts, err := c.ListPosts(context.Background(), feedOrdering)
		return postsLoadedMsg{posts: posts, err: err}
	}
}

func (m feedModel) Update(msg tea.Msg) (feedModel, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.clampScroll()
		return m, nil

	case postsLoadedMsg:
		m.loading = false
		m.err = msg.err
		if msg.err == nil {
			m.posts = msg.posts
			if m.cursor >= len(m.posts) {
				m.cursor = max(len(m.posts)-1, 0)
			}
			m.clampScroll()
		}
		return m, nil

	case likeResultMsg:
		if msg.err != nil {
			// Undo the optimistic toggle.
			m.applyLike(msg.postID, !msg.liked)
			m.statusMsg = "like failed: " + errorText(msg.err)
		}
		return m, nil

	case postUpdatedMsg:
		m.replace(msg.post, msg.liked)
		return m, nil

	case tea.KeyMsg:
		return m.updateKeys(msg)
	}
	return m, nil
}

func (m feedModel) updateKeys(msg tea.KeyMsg) (feedModel, tea.Cmd) {
	m.statusMsg = ""
	switch msg.String() {
	case "j", "down":
		if m.cursor < len(m.posts)-1 {
			m.cursor++
			m.clampScroll()
		}
	case "k", "up":
		if m.cursor > 0 {
			m.cursor--
			m.clampScroll()
		}
	case "g", "home":
		m.cursor = 0
		m.clampScroll()
	case "G", "end":
		m.cursor = max(len(m.posts)-1, 0)
		m.clampScroll()
	case "r":
		m.loading = true
		return m, m.load()
	case "n":
		return m, func() tea.Msg { return startComposeMsg{} }
	case "x":
		return m, func() tea.Msg { return logoutRequestMsg{} }
	}

	post, ok := m.selected()
	if !ok {
		return m, nil
	}
	switch msg.String() {
	case "enter":
		liked := m.liked[post.ID]
		return m, func() tea.Msg { return openDetailMsg{post: post, liked: liked} }
	case "l":
		liked := !m.liked[post.ID]
		m.applyLike(post.ID, liked)
		return m, setLikeCmd(m.client, post.ID, liked)
	case "c":
		return m, copyCmd(post.Content)
	case "o":
		if post.ImageURL == "" {
			m.statusMsg = "no image on this post"
			return m, nil
		}
		return m, openImageCmd(m.imageBase, post.ImageURL)
	case "p":
		id := post.AuthorID
		return m, func() tea.Msg { return showProfileMsg{userID: id} }
	}
	return m, nil
}

func (m feedModel) selected() (domain.Post, bool) {
	if m.cursor < 0 || m.cursor >= len(m.posts) {
		return domain.Post{}, false
	}
	return m.posts[m.cursor], true
}

// applyLike sets the local liked flag and adjusts the visible count.
func (m *feedModel) applyLike(postID int64, liked bool) {
	if m.liked[postID] == liked {
		return
	}
	if liked {
		m.liked[postID] = true
	} else {
		delete(m.liked, postID)
	}
	for i := range m.posts {
		if m.posts[i].ID != postID {
			continue
		}
		if liked {
			m.posts[i].LikeCount++
		} else if m.posts[i].LikeCount > 0 {
			m.posts[i].LikeCount--
		}
	}
}

func (m *feedModel) replace(p domain.Post, liked bool) {
	for i := range m.posts {
		if m.posts[i].ID == p.ID {
			m.posts[i] = p
		}
	}
	if liked {
		m.liked[p.ID] = true
	} else {
		delete(m.liked, p.ID)
	}
}

// rows is how many posts fit; each post takes two lines.
func (m feedModel) rows() int {
	if m.height <= 0 {
		return 10
	}
	return max(m.height/2, 1)
}

func (m *feedModel) clampScroll() {
	rows := m.rows()
	if m.cursor < m.offset {
		m.offset = m.cursor
	}
	if m.cursor >= m.offset+rows {
		m.offset = m.cursor - rows + 1
	}
	if m.offset < 0 {
		m.offset = 0
	}
}

func (m feedModel) View() string {
	if m.loading && len(m.posts) == 0 {
		return dimStyle.Render("  loading feed...")
	}
	if m.err != nil && len(m.posts) == 0 {
		return errorStyle.Render("  could not load feed: "+errorText(m.err)) + "\n" + dimStyle.Render("  press r to retry")
	}
	if len(m.posts) == 0 {
		return dimStyle.Render("  no posts yet. press n to write the first one.")
	}

	width := m.width
	if width <= 0 {
		width = 80
	}

	var b strings.Builder
	end := min(m.offset+m.rows(), len(m.posts))
	for i := m.offset; i < end; i++ {
		p := m.posts[i]
		cursor := "  "
		content := normalStyle
		if i == m.cursor {
			cursor = accentStyle.Render("> ")
			content = selectedStyle
		}
		fmt.Fprintf(&b, "%s%s\n", cursor, content.Render(truncStr(oneLine(p.Content), width-4)))

		meta := []string{}
		if p.Author != "" {
			meta = append(meta, "@"+p.Author)
		}
		if badge := CategoryBadge(p.Category); badge != "" {
			meta = append(meta, badge)
		}
		meta = append(meta, fmt.Sprintf("%s %d", likeMarker(m.liked[p.ID]), p.LikeCount))
		meta = append(meta, fmt.Sprintf("%d comments", p.CommentCount))
		if p.ImageURL != "" {
			meta = append(meta, "img")
		}
		if ts := formatTime(p.CreatedAt); ts != "" {
			meta = append(meta, ts)
		}
		fmt.Fprintf(&b, "    %s\n", metaStyle.Render(strings.Join(meta, " · ")))
	}
	if m.statusMsg != "" {
		b.WriteString(statusStyle.Render("  " + m.statusMsg))
	}
	return b.String()
}

func setLikeCmd(c *client.Client, postID int64, liked bool) tea.Cmd {
	return func() tea.Msg {
		err := c.SetLike(context.Background(), postID, liked)
		return likeResultMsg{postID: postID, liked: liked, err: err}
	}
}

func copyCmd(text string) tea.Cmd {
	return func() tea.Msg {
		return copyResultMsg{err: clipboard.WriteAll(text)}
	}
}

func openImageCmd(base, ref string) tea.Cmd {
	return func() tea.Msg {
		u, err := browser.Resolve(base, ref)
		if err != nil {
			return openResultMsg{err: err}
		}
		return openResultMsg{err: browser.Open(u)}
	}
}

// errorText turns API failures into short messages for the status line.
func errorText(err error) string {
	var httpErr *client.HTTPError
	switch {
	case errors.Is(err, client.ErrTransport):
		return "cannot reach the server"
	case errors.Is(err, client.ErrAuthInvalid):
		return "session expired"
	case errors.Is(err, client.ErrForbidden):
		return "not allowed"
	case errors.As(err, &httpErr):
		return httpErr.Message
	default:
		return err.Error()
	}
}
