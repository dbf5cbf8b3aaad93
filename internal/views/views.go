// Package views holds the stateful view models of the terminal client: the
// auth form, the discussion list, post cards and recursive comment blocks.
//
// View models are driven from a single goroutine, like UI callbacks. The one
// exception is DiscussionView.Load, which may race with itself and resolves
// the race with a generation counter.
package views

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/threadboard/internal/session"
	"github.com/threadboard/internal/threadmodel"
	"github.com/threadboard/pkg/models"
)

var (
	// ErrNoCredential is returned when an action needs a credential and none is set.
	ErrNoCredential = errors.New("login required")
	// ErrEmptyText is returned for blank submissions; nothing is sent.
	ErrEmptyText = errors.New("text is empty")
	// ErrMissingFields is returned when the auth form is incomplete.
	ErrMissingFields = errors.New("username and password are required")
	// ErrStaleLoad is returned by a load whose response was superseded by a newer load.
	ErrStaleLoad = errors.New("superseded by a newer load")
	// ErrPendingParent is returned when replying to a reply that is not saved yet.
	ErrPendingParent = errors.New("parent comment is not saved yet")
	// ErrUnknownTarget is returned when a post or comment id is not on screen.
	ErrUnknownTarget = errors.New("no such post or comment")
)

// API is the part of the board client the views use.
type API interface {
	Login(ctx context.Context, username, password string) (*models.AuthResponse, error)
	Register(ctx context.Context, username, password string) (*models.AuthResponse, error)
	ListPosts(ctx context.Context) ([]threadmodel.Post, error)
	CreatePost(ctx context.Context, text string) (*threadmodel.Post, error)
	CreateComment(ctx context.Context, postID string, parentID *string, text string) (*threadmodel.CommentItem, error)
}

// Option customises a DiscussionView.
type Option func(*env)

// WithClock overrides the time source used for optimistic comments.
func WithClock(now func() time.Time) Option {
	return func(e *env) { e.now = now }
}

// WithIDGenerator overrides how optimistic comment ids are generated.
func WithIDGenerator(newID func() string) Option {
	return func(e *env) { e.newID = newID }
}

// WithOnChange registers a hook fired whenever displayed state changes outside
// a direct return path, e.g. right after an optimistic insert.
func WithOnChange(fn func()) Option {
	return func(e *env) { e.onChange = fn }
}

// env carries what cards and blocks need from their discussion.
type env struct {
	api      API
	session  *session.Session
	reload   func(ctx context.Context) error
	now      func() time.Time
	newID    func() string
	onChange func()
}

func newEnv(api API, sess *session.Session, opts []Option) *env {
	e := &env{
		api:     api,
		session: sess,
		now:     time.Now,
		newID:   func() string { return "temp_" + uuid.NewString() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *env) changed() {
	if e.onChange != nil {
		e.onChange()
	}
}

func (e *env) hasCredential() bool {
	return e.session != nil && e.session.HasCredential()
}
