package tui

import (
	"context"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/naveenspark/sphere/pkg/client"
	"github.com/naveenspark/sphere/pkg/domain"
)

type commentsLoadedMsg struct {
	postID   int64
	comments []domain.Comment
	err      error
}

type commentCreatedMsg struct {
	postID  int64
	comment *domain.Comment
	err     error
}

// postUpdatedMsg hands the detail view's copy of a post back to the feed.
type postUpdatedMsg struct {
	post  domain.Post
	liked bool
}

type detailModel struct {
	client       *client.Client
	imageBase    string
	post         domain.Post
	liked        bool
	comments     []domain.Comment
	loading      bool
	err          error
	input        string
	inputFocused bool
	sending      bool
	statusMsg    string
	closed       bool
	width        int
	height       int
}

func newDetailModel(c *client.Client, imageBase string, p domain.Post, liked bool) detailModel {
	return detailModel{
		client:    c,
		imageBase: imageBase,
		post:      p,
		liked:     liked,
		loading:   true,
	}
}

func (m detailModel) load() tea.Cmd {
	c, id := m.client, m.post.ID
	return func() tea.Msg {
		comments, err := c.ListComments(context.Background(), id)
		return commentsLoadedMsg{postID: id, comments: comments, err: err}
	}
}

func (m detailModel) Update(msg tea.Msg) (detailModel, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case commentsLoadedMsg:
		if msg.postID != m.post.ID {
			return m, nil
		}
		m.loading = false
		m.err = msg.err
		if msg.err == nil {
			m.comments = msg.comments
		}
		return m, nil

	case commentCreatedMsg:
		if msg.postID != m.post.ID {
			return m, nil
		}
		m.sending = false
		if msg.err != nil {
			m.statusMsg = "comment failed: " + errorText(msg.err)
			return m, nil
		}
		m.comments = append(m.comments, *msg.comment)
		m.post.CommentCount++
		m.input = ""
		m.inputFocused = false
		m.statusMsg = "comment posted"
		return m, nil

	case likeResultMsg:
		if msg.postID == m.post.ID && msg.err != nil {
			m.setLiked(!msg.liked)
			m.statusMsg = "like failed: " + errorText(msg.err)
		}
		return m, nil

	case tea.KeyMsg:
		if m.inputFocused {
			return m.updateInput(msg)
		}
		return m.updateKeys(msg)
	}
	return m, nil
}

func (m detailModel) updateInput(msg tea.KeyMsg) (detailModel, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.inputFocused = false
	case "enter":
		text := strings.TrimSpace(m.input)
		if text == "" || m.sending {
			return m, nil
		}
		m.sending = true
		c, id := m.client, m.post.ID
		return m, func() tea.Msg {
			comment, err := c.CreateComment(context.Background(), id, text)
			return commentCreatedMsg{postID: id, comment: comment, err: err}
		}
	default:
		m.input = editKey(m.input, msg)
	}
	return m, nil
}

func (m detailModel) updateKeys(msg tea.KeyMsg) (detailModel, tea.Cmd) {
	m.statusMsg = ""
	switch msg.String() {
	case "esc", "backspace":
		m.closed = true
		p, liked := m.post, m.liked
		return m, func() tea.Msg { return postUpdatedMsg{post: p, liked: liked} }
	case "enter", "i":
		m.inputFocused = true
	case "l":
		m.setLiked(!m.liked)
		return m, setLikeCmd(m.client, m.post.ID, m.liked)
	case "c":
		return m, copyCmd(m.post.Content)
	case "o":
		if m.post.ImageURL == "" {
			m.statusMsg = "no image on this post"
			return m, nil
		}
		return m, openImageCmd(m.imageBase, m.post.ImageURL)
	case "p":
		id := m.post.AuthorID
		return m, func() tea.Msg { return showProfileMsg{userID: id} }
	case "r":
		m.loading = true
		return m, m.load()
	}
	return m, nil
}

func (m *detailModel) setLiked(liked bool) {
	if m.liked == liked {
		return
	}
	m.liked = liked
	if liked {
		m.post.LikeCount++
	} else if m.post.LikeCount > 0 {
		m.post.LikeCount--
	}
}

func (m detailModel) View() string {
	width := m.width
	if width <= 0 {
		width = 80
	}
	p := m.post

	var b strings.Builder
	header := []string{}
	if p.Author != "" {
		header = append(header, selectedStyle.Render("@"+p.Author))
	}
	if badge := CategoryBadge(p.Category); badge != "" {
		header = append(header, badge)
	}
	if ts := formatTime(p.CreatedAt); ts != "" {
		header = append(header, metaStyle.Render(ts))
	}
	fmt.Fprintf(&b, "  %s\n\n", strings.Join(header, "  "))

	for _, line := range strings.Split(wrapText(p.Content, width-4), "\n") {
		fmt.Fprintf(&b, "  %s\n", normalStyle.Render(line))
	}
	if p.ImageURL != "" {
		fmt.Fprintf(&b, "\n  %s\n", dimStyle.Render("image: "+p.ImageURL+"  (o to open)"))
	}
	fmt.Fprintf(&b, "\n  %s %d   %s\n", likeMarker(m.liked), p.LikeCount, metaStyle.Render(fmt.Sprintf("%d comments", p.CommentCount)))

	fmt.Fprintf(&b, "\n  %s\n", sectionHeaderStyle.Render("Comments"))
	switch {
	case m.loading:
		b.WriteString(dimStyle.Render("  loading comments...") + "\n")
	case m.err != nil:
		b.WriteString(errorStyle.Render("  could not load comments: "+errorText(m.err)) + "\n")
	case len(m.comments) == 0:
		b.WriteString(dimStyle.Render("  no comments yet") + "\n")
	default:
		for _, c := range m.comments {
			author := c.Author
			if author == "" {
				author = "anonymous"
			}
			fmt.Fprintf(&b, "  %s %s\n", accentStyle.Render(author), commentTimeStyle.Render(formatTime(c.CreatedAt)))
			for _, line := range strings.Split(wrapText(c.Content, width-6), "\n") {
				fmt.Fprintf(&b, "    %s\n", commentTextStyle.Render(line))
			}
		}
	}

	b.WriteString("\n")
	b.WriteString(renderField("comment", m.input, "press enter to write a comment", m.inputFocused, false))
	b.WriteString("\n")
	switch {
	case m.sending:
		b.WriteString(dimStyle.Render("  sending..."))
	case m.statusMsg != "":
		b.WriteString(statusStyle.Render("  " + m.statusMsg))
	}
	return b.String()
}
