package views

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/threadboard/internal/boardapi"
	"github.com/threadboard/internal/session"
)

// AuthMode is the state of the auth form.
type AuthMode int

const (
	LoginMode AuthMode = iota
	RegisterMode
)

func (m AuthMode) String() string {
	if m == RegisterMode {
		return "register"
	}
	return "login"
}

// ParseAuthMode accepts "login" or "register".
func ParseAuthMode(s string) (AuthMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "login":
		return LoginMode, nil
	case "register":
		return RegisterMode, nil
	default:
		return LoginMode, fmt.Errorf("unknown auth mode %q (must be login or register)", s)
	}
}

// AuthView is the login/register form. A successful login stores the
// credential and is terminal; a successful registration switches back to
// LoginMode without authenticating.
type AuthView struct {
	api     API
	session *session.Session

	mode          AuthMode
	message       string
	authenticated bool
	username      string
}

// NewAuthView starts in LoginMode.
func NewAuthView(api API, sess *session.Session) *AuthView {
	return &AuthView{api: api, session: sess, mode: LoginMode}
}

func (v *AuthView) Mode() AuthMode { return v.mode }

// Message is the last confirmation or error shown under the form.
func (v *AuthView) Message() string { return v.message }

// Authenticated reports whether a login succeeded in this view.
func (v *AuthView) Authenticated() bool { return v.authenticated }

// Username is the name reported by the server on the last successful login.
func (v *AuthView) Username() string { return v.username }

// SetMode switches the form without any network call.
func (v *AuthView) SetMode(mode AuthMode) {
	if v.mode != mode {
		v.message = ""
	}
	v.mode = mode
}

// Toggle flips between login and register.
func (v *AuthView) Toggle() {
	if v.mode == LoginMode {
		v.SetMode(RegisterMode)
	} else {
		v.SetMode(LoginMode)
	}
}

// Submit sends the form in the current mode.
func (v *AuthView) Submit(ctx context.Context, username, password string) error {
	v.message = ""
	if strings.TrimSpace(username) == "" || password == "" {
		v.message = "Username and password are required."
		return ErrMissingFields
	}

	switch v.mode {
	case RegisterMode:
		if _, err := v.api.Register(ctx, username, password); err != nil {
			v.message = boardapi.ServerMessage(err, "Error")
			return fmt.Errorf("register failed: %w", err)
		}
		log.Debug().Str("username", username).Msg("Registered account")
		v.mode = LoginMode
		v.message = "Registered! You can now login."
		return nil

	default:
		resp, err := v.api.Login(ctx, username, password)
		if err != nil {
			v.message = boardapi.ServerMessage(err, "Error")
			return fmt.Errorf("login failed: %w", err)
		}
		if err := v.session.SetCredential(resp.Token); err != nil {
			v.message = err.Error()
			return err
		}
		v.username = username
		if resp.User != nil && resp.User.Username != "" {
			v.username = resp.User.Username
		}
		v.authenticated = true
		v.message = "Logged in as " + v.username
		log.Debug().Str("username", v.username).Msg("Logged in")
		return nil
	}
}

// Render draws the form state.
func (v *AuthView) Render(w io.Writer, theme Theme) {
	title := "Login"
	switch {
	case v.authenticated:
		title = "Logged in"
	case v.mode == RegisterMode:
		title = "Register"
	}
	fmt.Fprintln(w, theme.heading(title))
	if !v.authenticated {
		if v.mode == LoginMode {
			fmt.Fprintln(w, "Don't have an account? Switch with: mode register")
		} else {
			fmt.Fprintln(w, "Already registered? Switch with: mode login")
		}
	}
	if v.message != "" {
		fmt.Fprintln(w, theme.notice(v.message))
	}
}
