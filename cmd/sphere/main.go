package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/x/term"
	"github.com/jonboulle/clockwork"

	"github.com/naveenspark/sphere/internal/config"
	"github.com/naveenspark/sphere/internal/correlation"
	"github.com/naveenspark/sphere/internal/credstore"
	"github.com/naveenspark/sphere/internal/logging"
	"github.com/naveenspark/sphere/internal/tui"
	"github.com/naveenspark/sphere/pkg/client"
	"github.com/naveenspark/sphere/pkg/domain"
	"github.com/naveenspark/sphere/pkg/session"
	"github.com/naveenspark/sphere/pkg/transport"
)

// version is set at build time via -ldflags "-X main.version=..."
var version = "dev"

func main() {
	if err := run(os.Args[1:], os.Stdin, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, in io.Reader, out io.Writer) error {
	cmd := "feed"
	if len(args) > 0 {
		cmd, args = args[0], args[1:]
	}

	switch cmd {
	case "--version", "version", "-v":
		fmt.Fprintln(out, "sphere "+version)
		return nil
	case "help", "--help", "-h":
		printHelp(out)
		return nil
	}

	if !commands[cmd] {
		return fmt.Errorf("unknown command %q (see: sphere help)", cmd)
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// The interactive UI owns the terminal, so its logs go to a file.
	var logOut io.Writer = os.Stderr
	if cmd == "feed" {
		f, err := openLogFile(cfg.LogPath())
		if err != nil {
			return err
		}
		defer f.Close() //nolint:errcheck
		logOut = f
	}

	c := newCLI(cfg, logging.New(logOut, cfg.LogLevel, cfg.LogFormat), in, out)
	defer c.sess.Close()

	ctx := correlation.WithID(context.Background(), correlation.NewID())

	switch cmd {
	case "feed":
		return c.runFeed()
	case "login":
		return c.runLogin(ctx)
	case "register":
		return c.runRegister(ctx)
	case "logout":
		return c.runLogout(ctx)
	case "whoami":
		return c.runWhoami(ctx)
	case "passwd":
		return c.runPasswd(ctx)
	case "post":
		return c.runPost(ctx, args)
	case "like":
		return c.runLike(ctx, args, true)
	case "unlike":
		return c.runLike(ctx, args, false)
	case "comment":
		return c.runComment(ctx, args)
	}
	return nil
}

// commands are the subcommands that need a session.
var commands = map[string]bool{
	"feed": true, "login": true, "register": true, "logout": true, "whoami": true,
	"passwd": true, "post": true, "like": true, "unlike": true, "comment": true,
}

func openLogFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return f, nil
}

// cli holds the wired session and API clients for one invocation.
type cli struct {
	cfg    *config.Config
	logger *slog.Logger
	sess   *session.Manager
	api    *client.Client
	in     *bufio.Reader
	stdin  io.Reader
	out    io.Writer
}

func newCLI(cfg *config.Config, logger *slog.Logger, in io.Reader, out io.Writer) *cli {
	store := credstore.NewFileStore(cfg.CredentialsPath(), clockwork.NewRealClock())

	// The session talks to the refresh and logout endpoints through a plain
	// client: those calls must never go through the retrying transport.
	raw := client.New(cfg.APIURL, client.WithHTTPClient(&http.Client{Timeout: cfg.HTTPTimeout}))

	opts := []session.Option{session.WithLogger(logger)}
	if cfg.CoalesceRefresh {
		opts = append(opts, session.WithRefreshCoalescing())
	}
	sess := session.New(store, raw, opts...)
	// A store error is logged by the session and leaves it unauthenticated.
	_ = sess.Initialize(context.Background()) //nolint:errcheck

	pipeline := transport.New(http.DefaultTransport, sess, logger)
	pipeline.RefreshTimeout = cfg.HTTPTimeout
	api := client.New(cfg.APIURL, client.WithHTTPClient(&http.Client{
		Timeout:   cfg.HTTPTimeout,
		Transport: pipeline,
	}))

	return &cli{
		cfg:    cfg,
		logger: logger,
		sess:   sess,
		api:    api,
		in:     bufio.NewReader(in),
		stdin:  in,
		out:    out,
	}
}

func (c *cli) runFeed() error {
	app := tui.NewApp(c.api, c.sess, version, c.cfg.APIURL)
	p := tea.NewProgram(app, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("tui error: %w", err)
	}
	return nil
}

func (c *cli) runLogin(ctx context.Context) error {
	creds := domain.Credentials{}
	var err error
	if creds.Email, err = c.prompt("email (optional): "); err != nil {
		return err
	}
	if creds.Username, err = c.prompt("username: "); err != nil {
		return err
	}
	if creds.Password, err = c.promptSecret("password: "); err != nil {
		return err
	}

	pair, err := c.api.Login(ctx, creds)
	if err != nil {
		if errors.Is(err, client.ErrAuthInvalid) {
			return errors.New("invalid credentials")
		}
		return describe(err)
	}
	if err := c.sess.Login(pair.Access, pair.Refresh); err != nil {
		return fmt.Errorf("store session: %w", err)
	}

	if uid := c.sess.UserID(); uid != "" {
		fmt.Fprintf(c.out, "Logged in as %s (user %s).\n", creds.Username, uid)
	} else {
		fmt.Fprintf(c.out, "Logged in as %s.\n", creds.Username)
	}
	return nil
}

func (c *cli) runRegister(ctx context.Context) error {
	reg := domain.Registration{}
	var err error
	if reg.Email, err = c.prompt("email: "); err != nil {
		return err
	}
	if reg.Username, err = c.prompt("username: "); err != nil {
		return err
	}
	if reg.Password, err = c.promptSecret("password: "); err != nil {
		return err
	}

	if err := c.api.Register(ctx, reg); err != nil {
		return describe(err)
	}
	fmt.Fprintln(c.out, "Account created. Log in with: sphere login")
	return nil
}

func (c *cli) runLogout(ctx context.Context) error {
	// A stale or half-written credentials file restores as signed out but is
	// still removed here.
	wasAuthenticated := c.sess.Snapshot().Authenticated()
	if err := c.sess.Logout(ctx); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	if wasAuthenticated {
		fmt.Fprintln(c.out, "Logged out.")
	} else {
		fmt.Fprintln(c.out, "Already logged out.")
	}
	return nil
}

func (c *cli) runWhoami(ctx context.Context) error {
	if err := c.requireLogin(); err != nil {
		return err
	}

	uid := c.sess.UserID()
	if uid == "" {
		fmt.Fprintln(c.out, "Logged in (the access token does not name a user).")
		return nil
	}
	if exp, err := session.TokenExpiry(c.sess.AccessToken()); err == nil && !exp.IsZero() {
		c.logger.Debug("access token expiry", "expires_at", exp.Format(time.RFC3339))
	}

	id, err := strconv.ParseInt(uid, 10, 64)
	if err != nil {
		fmt.Fprintf(c.out, "Logged in as user %s.\n", uid)
		return nil
	}
	profile, err := c.api.GetProfile(ctx, id)
	if err != nil {
		return describe(err)
	}
	fmt.Fprintf(c.out, "@%s (user %d)\n", profile.User.Username, profile.User.ID)
	fmt.Fprintf(c.out, "%d posts  %d followers  %d following\n",
		profile.PostsCount, profile.FollowersCount, profile.FollowingCount)
	return nil
}

func (c *cli) runPasswd(ctx context.Context) error {
	if err := c.requireLogin(); err != nil {
		return err
	}
	oldPassword, err := c.promptSecret("current password: ")
	if err != nil {
		return err
	}
	newPassword, err := c.promptSecret("new password: ")
	if err != nil {
		return err
	}
	if newPassword == "" {
		return errors.New("new password must not be empty")
	}

	if err := c.api.ChangePassword(ctx, oldPassword, newPassword); err != nil {
		return describe(err)
	}
	// Tokens issued for the old password are no longer trusted.
	if err := c.sess.Logout(ctx); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	fmt.Fprintln(c.out, "Password changed. Log in again with: sphere login")
	return nil
}

func (c *cli) runPost(ctx context.Context, args []string) error {
	req, imagePath, err := parsePostArgs(args)
	if err != nil {
		return err
	}
	if err := c.requireLogin(); err != nil {
		return err
	}

	if imagePath != "" {
		f, err := os.Open(imagePath)
		if err != nil {
			return fmt.Errorf("open image: %w", err)
		}
		defer f.Close() //nolint:errcheck
		req.Image = f
		req.ImageName = filepath.Base(imagePath)
	}

	post, err := c.api.CreatePost(ctx, req)
	if err != nil {
		return describe(err)
	}
	fmt.Fprintf(c.out, "Posted #%d.\n", post.ID)
	return nil
}

// parsePostArgs reads `post [--category c] [--image path] <text...>`.
func parsePostArgs(args []string) (client.CreatePostRequest, string, error) {
	fs := flag.NewFlagSet("post", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	category := fs.String("category", domain.DefaultCategory, "post category")
	image := fs.String("image", "", "path to an image to attach")
	if err := fs.Parse(args); err != nil {
		return client.CreatePostRequest{}, "", fmt.Errorf("post: %w", err)
	}

	content := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if content == "" {
		return client.CreatePostRequest{}, "", errors.New("usage: sphere post [--category c] [--image path] <text>")
	}
	if !domain.ValidCategory(*category) {
		return client.CreatePostRequest{}, "", fmt.Errorf("unknown category %q (one of: %s)", *category, strings.Join(domain.Categories, ", "))
	}
	return client.CreatePostRequest{Content: content, Category: *category}, *image, nil
}

func (c *cli) runLike(ctx context.Context, args []string, liked bool) error {
	verb := "like"
	if !liked {
		verb = "unlike"
	}
	if len(args) != 1 {
		return fmt.Errorf("usage: sphere %s <post-id>", verb)
	}
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	if err := c.requireLogin(); err != nil {
		return err
	}

	if err := c.api.SetLike(ctx, id, liked); err != nil {
		return describe(err)
	}
	if liked {
		fmt.Fprintf(c.out, "Liked #%d.\n", id)
	} else {
		fmt.Fprintf(c.out, "Unliked #%d.\n", id)
	}
	return nil
}

func (c *cli) runComment(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return errors.New("usage: sphere comment <post-id> <text>")
	}
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	text := strings.TrimSpace(strings.Join(args[1:], " "))
	if text == "" {
		return errors.New("comment text must not be empty")
	}
	if err := c.requireLogin(); err != nil {
		return err
	}

	comment, err := c.api.CreateComment(ctx, id, text)
	if err != nil {
		return describe(err)
	}
	fmt.Fprintf(c.out, "Commented on #%d (comment %d).\n", id, comment.ID)
	return nil
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}

var errNotLoggedIn = errors.New("not logged in (run: sphere login)")

func (c *cli) requireLogin() error {
	if !c.sess.Snapshot().Authenticated() {
		return errNotLoggedIn
	}
	return nil
}

// describe turns API errors into messages for the terminal. A session that
// could not be refreshed has already been cleared by the time it gets here.
func describe(err error) error {
	switch {
	case errors.Is(err, client.ErrAuthInvalid):
		return errors.New("session expired, log in again with: sphere login")
	case errors.Is(err, client.ErrTransport):
		return fmt.Errorf("cannot reach the server: %w", err)
	case errors.Is(err, client.ErrForbidden):
		return errors.New("not allowed")
	}
	if fields := client.FieldErrors(err); len(fields) > 0 {
		names := make([]string, 0, len(fields))
		for name := range fields {
			names = append(names, name)
		}
		sort.Strings(names)
		lines := make([]string, 0, len(names))
		for _, name := range names {
			lines = append(lines, fmt.Sprintf("  %s: %s", name, strings.Join(fields[name], " ")))
		}
		return fmt.Errorf("request rejected:\n%s", strings.Join(lines, "\n"))
	}
	return err
}

func (c *cli) prompt(label string) (string, error) {
	fmt.Fprint(c.out, label)
	line, err := c.in.ReadString('\n')
	if err != nil && (!errors.Is(err, io.EOF) || line == "") {
		if errors.Is(err, io.EOF) {
			return "", errors.New("input closed")
		}
		return "", fmt.Errorf("read input: %w", err)
	}
	return strings.TrimSpace(line), nil
}

// promptSecret reads without echo when stdin is a terminal.
func (c *cli) promptSecret(label string) (string, error) {
	f, ok := c.stdin.(*os.File)
	if !ok || !term.IsTerminal(f.Fd()) {
		return c.prompt(label)
	}
	fmt.Fprint(c.out, label)
	b, err := term.ReadPassword(f.Fd())
	fmt.Fprintln(c.out)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return string(b), nil
}
