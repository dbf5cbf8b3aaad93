// Package shell implements the interactive board session: a line-oriented
// command set that drives the auth form and the discussion view.
package shell

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/threadboard/internal/session"
	"github.com/threadboard/internal/views"
)

// ErrExit is returned by Execute when the user asks to leave.
var ErrExit = errors.New("exit requested")

// PasswordReader reads a password without echoing it.
type PasswordReader interface {
	ReadPassword(prompt string) ([]byte, error)
}

// Shell holds the views of one interactive session.
type Shell struct {
	out        io.Writer
	api        views.API
	session    *session.Session
	theme      views.Theme
	passwords  PasswordReader
	auth       *views.AuthView
	discussion *views.DiscussionView
}

// New creates a shell. passwords may be nil, in which case login and
// register need the password inline.
func New(api views.API, sess *session.Session, out io.Writer, theme views.Theme, passwords PasswordReader) *Shell {
	s := &Shell{out: out, api: api, session: sess, theme: theme, passwords: passwords}
	s.auth = views.NewAuthView(api, sess)
	s.discussion = views.NewDiscussionView(api, sess, views.WithOnChange(s.redraw))
	return s
}

// Prompt reflects who is signed in.
func (s *Shell) Prompt() string {
	if ident, ok := s.session.Identity(); ok && ident.Username != "" {
		return fmt.Sprintf("threadboard (%s)> ", ident.Username)
	}
	if s.session.HasCredential() {
		return "threadboard (signed in)> "
	}
	return "threadboard> "
}

// Discussion exposes the discussion view.
func (s *Shell) Discussion() *views.DiscussionView { return s.discussion }

// Auth exposes the auth form.
func (s *Shell) Auth() *views.AuthView { return s.auth }

func (s *Shell) redraw() {
	s.discussion.Render(s.out, s.theme)
}

// ParseArgs splits a line on spaces, keeping double-quoted runs together.
func ParseArgs(input string) []string {
	var args []string
	var current strings.Builder
	inQuotes := false
	quoted := false

	for _, char := range input {
		switch char {
		case '"':
			inQuotes = !inQuotes
			quoted = true
		case ' ', '\t':
			if inQuotes {
				current.WriteRune(char)
				continue
			}
			if current.Len() > 0 || quoted {
				args = append(args, current.String())
				current.Reset()
				quoted = false
			}
		default:
			current.WriteRune(char)
		}
	}
	if current.Len() > 0 || quoted {
		args = append(args, current.String())
	}
	return args
}

type handler func(s *Shell, ctx context.Context, args []string) error

type command struct {
	usage string
	run   handler
}

var commands map[string]command

func init() {
	commands = map[string]command{
		"help":     {"help", (*Shell).handleHelp},
		"mode":     {"mode login|register", (*Shell).handleMode},
		"login":    {"login <username> [password]", (*Shell).handleLogin},
		"register": {"register <username> [password]", (*Shell).handleRegister},
		"logout":   {"logout", (*Shell).handleLogout},
		"whoami":   {"whoami", (*Shell).handleWhoami},
		"list":     {"list", (*Shell).handleList},
		"show":     {"show", (*Shell).handleShow},
		"post":     {"post <text>", (*Shell).handlePost},
		"comment":  {"comment <post-id> <text>", (*Shell).handleComment},
		"reply":    {"reply <post-id> <comment-id> <text>", (*Shell).handleReply},
		"exit":     {"exit", nil},
		"quit":     {"quit", nil},
	}
}

// Execute runs one input line. Failures the views already display are
// rendered and not returned; usage problems are.
func (s *Shell) Execute(ctx context.Context, line string) error {
	args := ParseArgs(strings.TrimSpace(line))
	if len(args) == 0 {
		return nil
	}
	name := strings.ToLower(args[0])
	cmd, ok := commands[name]
	if !ok {
		return fmt.Errorf("unknown command: %s (try help)", args[0])
	}
	if cmd.run == nil {
		return ErrExit
	}
	log.Debug().Str("command", name).Int("args", len(args)-1).Msg("Shell command")
	return cmd.run(s, ctx, args[1:])
}

func (s *Shell) handleHelp(ctx context.Context, args []string) error {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	fmt.Fprintln(s.out, "Available commands:")
	for _, name := range names {
		fmt.Fprintf(s.out, "  %s\n", commands[name].usage)
	}
	fmt.Fprintln(s.out, "Quote text with spaces, e.g. reply p1 c1 \"sounds good\".")
	return nil
}

func (s *Shell) handleMode(ctx context.Context, args []string) error {
	if len(args) == 0 {
		s.auth.Toggle()
	} else {
		mode, err := views.ParseAuthMode(args[0])
		if err != nil {
			return err
		}
		s.auth.SetMode(mode)
	}
	s.auth.Render(s.out, s.theme)
	return nil
}

func (s *Shell) handleLogin(ctx context.Context, args []string) error {
	return s.submitAuth(ctx, views.LoginMode, args)
}

func (s *Shell) handleRegister(ctx context.Context, args []string) error {
	return s.submitAuth(ctx, views.RegisterMode, args)
}

func (s *Shell) submitAuth(ctx context.Context, mode views.AuthMode, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: %s <username> [password]", mode)
	}
	username := args[0]
	var password string
	switch {
	case len(args) > 1:
		password = args[1]
	case s.passwords != nil:
		pw, err := s.passwords.ReadPassword("Password: ")
		if err != nil {
			return fmt.Errorf("failed to read password: %w", err)
		}
		password = string(pw)
	default:
		return fmt.Errorf("usage: %s <username> <password>", mode)
	}

	if s.auth.Authenticated() {
		s.auth = views.NewAuthView(s.api, s.session)
	}
	s.auth.SetMode(mode)
	if err := s.auth.Submit(ctx, username, password); err != nil {
		log.Debug().Err(err).Str("mode", mode.String()).Msg("Auth submit failed")
	}
	s.auth.Render(s.out, s.theme)
	if s.auth.Authenticated() {
		return s.handleList(ctx, nil)
	}
	return nil
}

func (s *Shell) handleLogout(ctx context.Context, args []string) error {
	if err := s.session.Clear(); err != nil {
		return fmt.Errorf("failed to clear credential: %w", err)
	}
	s.auth = views.NewAuthView(s.api, s.session)
	fmt.Fprintln(s.out, "Logged out.")
	return nil
}

func (s *Shell) handleWhoami(ctx context.Context, args []string) error {
	fmt.Fprintln(s.out, Whoami(s.session))
	return nil
}

// Whoami describes the advisory identity carried by the credential.
func Whoami(sess *session.Session) string {
	if !sess.HasCredential() {
		return "Not logged in."
	}
	ident, ok := sess.Identity()
	if !ok {
		return "Logged in (identity unavailable)."
	}
	if ident.ID == "" {
		return fmt.Sprintf("Logged in as %s.", ident.Username)
	}
	return fmt.Sprintf("Logged in as %s (id %s).", ident.Username, ident.ID)
}

func (s *Shell) handleList(ctx context.Context, args []string) error {
	if err := s.discussion.Load(ctx); err != nil && !errors.Is(err, views.ErrStaleLoad) {
		log.Debug().Err(err).Msg("Load failed")
	}
	s.redraw()
	return nil
}

func (s *Shell) handleShow(ctx context.Context, args []string) error {
	s.redraw()
	return nil
}

func (s *Shell) handlePost(ctx context.Context, args []string) error {
	if err := s.discussion.CreatePost(ctx, strings.Join(args, " ")); err != nil {
		log.Debug().Err(err).Msg("Create post failed")
	}
	s.redraw()
	return nil
}

func (s *Shell) handleComment(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return errors.New("usage: comment <post-id> <text>")
	}
	card, err := s.discussion.Card(args[0])
	if err != nil {
		return err
	}
	if err := card.SubmitComment(ctx, strings.Join(args[1:], " ")); err != nil {
		log.Debug().Err(err).Msg("Comment failed")
	}
	s.redraw()
	return nil
}

func (s *Shell) handleReply(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return errors.New("usage: reply <post-id> <comment-id> <text>")
	}
	block, err := s.discussion.Block(args[0], args[1])
	if err != nil {
		return err
	}
	if err := block.Reply(ctx, strings.Join(args[2:], " ")); err != nil {
		log.Debug().Err(err).Msg("Reply failed")
	}
	s.redraw()
	return nil
}
