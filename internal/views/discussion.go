package views

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/threadboard/internal/boardapi"
	"github.com/threadboard/internal/session"
	"github.com/threadboard/internal/threadmodel"
)

// DiscussionView lists every post as a PostCard and hosts the new-post
// composer. Each Load takes a generation number; only the response to the
// most recently issued load is applied.
type DiscussionView struct {
	env *env

	mu         sync.Mutex
	generation uint64
	loading    bool
	posts      []threadmodel.Post
	cards      []*PostCard
	message    string
	draft      string
}

// NewDiscussionView creates an empty view; call Load to populate it.
func NewDiscussionView(api API, sess *session.Session, opts ...Option) *DiscussionView {
	v := &DiscussionView{}
	v.env = newEnv(api, sess, opts)
	v.env.reload = v.Load
	return v
}

// Session is the credential context the view acts with.
func (v *DiscussionView) Session() *session.Session { return v.env.session }

// Load fetches all posts and rebuilds the cards. A call whose response
// arrives after a newer Load was issued leaves the state untouched and
// returns ErrStaleLoad.
func (v *DiscussionView) Load(ctx context.Context) error {
	v.mu.Lock()
	v.generation++
	gen := v.generation
	v.loading = true
	v.mu.Unlock()

	posts, err := v.env.api.ListPosts(ctx)

	v.mu.Lock()
	defer v.mu.Unlock()
	if gen != v.generation {
		log.Debug().Uint64("generation", gen).Uint64("latest", v.generation).Msg("Discarding stale posts response")
		return ErrStaleLoad
	}
	v.loading = false
	if err != nil {
		v.message = "Failed to load posts"
		log.Error().Err(err).Msg("Failed to load posts")
		return fmt.Errorf("failed to load posts: %w", err)
	}

	v.posts = posts
	v.reseedCards(posts)
	v.message = ""
	log.Debug().Int("posts", len(posts)).Uint64("generation", gen).Msg("Posts loaded")
	return nil
}

// reseedCards keeps cards of posts that are still present so their composer
// state survives reloads.
func (v *DiscussionView) reseedCards(posts []threadmodel.Post) {
	byID := make(map[string]*PostCard, len(v.cards))
	for _, c := range v.cards {
		byID[c.post.ID] = c
	}
	cards := make([]*PostCard, 0, len(posts))
	for _, p := range posts {
		if existing, ok := byID[p.ID]; ok {
			delete(byID, p.ID)
			existing.Reseed(p)
			cards = append(cards, existing)
			continue
		}
		cards = append(cards, newPostCard(v.env, p))
	}
	v.cards = cards
}

func (v *DiscussionView) Loading() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.loading
}

func (v *DiscussionView) Message() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.message
}

func (v *DiscussionView) Draft() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.draft
}

// SetDraft replaces the new-post composer text.
func (v *DiscussionView) SetDraft(text string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.draft = text
}

// Posts returns the posts from the last applied load.
func (v *DiscussionView) Posts() []threadmodel.Post {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]threadmodel.Post, len(v.posts))
	copy(out, v.posts)
	return out
}

// Cards returns one card per post, in server order.
func (v *DiscussionView) Cards() []*PostCard {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]*PostCard, len(v.cards))
	copy(out, v.cards)
	return out
}

// Card looks a post card up by post id.
func (v *DiscussionView) Card(postID string) (*PostCard, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for _, c := range v.cards {
		if c.post.ID == postID {
			return c, nil
		}
	}
	return nil, fmt.Errorf("post %q: %w", postID, ErrUnknownTarget)
}

// Block looks a comment block up by post and comment id.
func (v *DiscussionView) Block(postID, commentID string) (*CommentBlock, error) {
	card, err := v.Card(postID)
	if err != nil {
		return nil, err
	}
	if b := card.Block(commentID); b != nil {
		return b, nil
	}
	return nil, fmt.Errorf("comment %q on post %q: %w", commentID, postID, ErrUnknownTarget)
}

// CreatePost submits a new post and reloads on success.
func (v *DiscussionView) CreatePost(ctx context.Context, text string) error {
	v.mu.Lock()
	v.draft = text
	v.message = ""
	v.mu.Unlock()

	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		v.setMessage("Enter text")
		return ErrEmptyText
	}
	if !v.env.hasCredential() {
		v.setMessage("Login required to post.")
		return ErrNoCredential
	}

	if _, err := v.env.api.CreatePost(ctx, trimmed); err != nil {
		v.setMessage("Create failed: " + boardapi.ErrorMessage(err, "unknown error"))
		return fmt.Errorf("create post failed: %w", err)
	}

	v.SetDraft("")
	if err := v.Load(ctx); err != nil && !errors.Is(err, ErrStaleLoad) {
		return err
	}
	return nil
}

func (v *DiscussionView) setMessage(msg string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.message = msg
}

// Render draws the header, the composer, status lines and every card.
func (v *DiscussionView) Render(w io.Writer, theme Theme) {
	v.mu.Lock()
	defer v.mu.Unlock()

	fmt.Fprintln(w, separator("="))
	title := "DISCUSSIONS"
	if ident, ok := identityOf(v.env.session); ok && ident.Username != "" {
		title += " (signed in as " + ident.Username + ")"
	}
	fmt.Fprintln(w, theme.heading(title))
	fmt.Fprintln(w, separator("="))

	if v.draft != "" {
		fmt.Fprintf(w, "> new post: %s\n", v.draft)
	}
	if v.loading {
		fmt.Fprintln(w, theme.muted("Loading..."))
	}
	if v.message != "" {
		fmt.Fprintln(w, theme.notice(v.message))
	}
	if len(v.cards) == 0 && !v.loading {
		fmt.Fprintln(w, theme.muted("No posts yet."))
	}
	for _, c := range v.cards {
		c.Render(w, theme)
	}
}

func identityOf(sess *session.Session) (threadmodel.Identity, bool) {
	if sess == nil {
		return threadmodel.Identity{}, false
	}
	return sess.Identity()
}
