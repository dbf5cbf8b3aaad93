package views

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/threadboard/internal/boardapi"
	"github.com/threadboard/internal/threadmodel"
)

// PostCard shows one post, its comment forest and a top-level composer.
// Top-level comments are not inserted optimistically; a successful submit
// reloads the discussion instead.
type PostCard struct {
	env    *env
	post   threadmodel.Post
	forest []*threadmodel.CommentNode
	blocks []*CommentBlock

	composerOpen bool
	draft        string
	sending      bool
	errMsg       string
}

func newPostCard(e *env, post threadmodel.Post) *PostCard {
	c := &PostCard{env: e}
	c.Reseed(post)
	return c
}

// Reseed swaps in fresh post data and rebuilds the forest.
func (c *PostCard) Reseed(post threadmodel.Post) {
	c.post = post
	c.forest = threadmodel.BuildForest(threadmodel.Normalize(post))
	c.blocks = reseedBlocks(c.env, c, c.blocks, c.forest, 0)
}

func (c *PostCard) ID() string                         { return c.post.ID }
func (c *PostCard) Post() threadmodel.Post             { return c.post }
func (c *PostCard) Forest() []*threadmodel.CommentNode { return c.forest }
func (c *PostCard) Body() string                       { return c.post.Body() }
func (c *PostCard) ComposerOpen() bool                 { return c.composerOpen }
func (c *PostCard) Draft() string                      { return c.draft }
func (c *PostCard) Sending() bool                      { return c.sending }
func (c *PostCard) Error() string                      { return c.errMsg }

// Meta is the "by <author> · <time>" line.
func (c *PostCard) Meta() string {
	return fmt.Sprintf("by %s · %s", c.post.AuthorLabel(), FormatTime(c.post.CreatedAt))
}

// Blocks returns the root comment blocks.
func (c *PostCard) Blocks() []*CommentBlock {
	out := make([]*CommentBlock, len(c.blocks))
	copy(out, c.blocks)
	return out
}

// Block finds a comment block anywhere in the card, optimistic ones included.
func (c *PostCard) Block(commentID string) *CommentBlock {
	for _, b := range c.blocks {
		if found := b.find(commentID); found != nil {
			return found
		}
	}
	return nil
}

// CommentCount counts every displayed comment block.
func (c *PostCard) CommentCount() int {
	n := 0
	for _, b := range c.blocks {
		n += b.count()
	}
	return n
}

// ToggleComposer opens or closes the top-level composer and clears the error.
func (c *PostCard) ToggleComposer() {
	c.composerOpen = !c.composerOpen
	c.errMsg = ""
}

// SetDraft replaces the top-level composer text and opens the composer.
func (c *PostCard) SetDraft(text string) {
	c.composerOpen = true
	c.draft = text
}

// SubmitComment types text into the top-level composer and submits it.
func (c *PostCard) SubmitComment(ctx context.Context, text string) error {
	c.SetDraft(text)
	return c.submit(ctx)
}

func (c *PostCard) submit(ctx context.Context) error {
	c.errMsg = ""
	if !c.env.hasCredential() {
		c.errMsg = "Login required to comment."
		return ErrNoCredential
	}
	trimmed := strings.TrimSpace(c.draft)
	if trimmed == "" {
		c.errMsg = "Comment cannot be empty."
		return ErrEmptyText
	}

	c.sending = true
	_, err := c.env.api.CreateComment(ctx, c.post.ID, nil, trimmed)
	c.sending = false
	if err != nil {
		c.errMsg = boardapi.ErrorMessage(err, "Failed to post comment")
		log.Warn().Err(err).Str("post_id", c.post.ID).Msg("Top-level comment failed")
		return fmt.Errorf("comment failed: %w", err)
	}

	c.draft = ""
	c.composerOpen = false
	if c.env.reload == nil {
		return nil
	}
	if err := c.env.reload(ctx); err != nil && !errors.Is(err, ErrStaleLoad) {
		return fmt.Errorf("comment saved but reload failed: %w", err)
	}
	return nil
}

// Render draws the post followed by its comment tree.
func (c *PostCard) Render(w io.Writer, theme Theme) {
	fmt.Fprintln(w, theme.muted(separator("-")))
	fmt.Fprintf(w, "%s %s\n", theme.heading("POST"), theme.muted("["+c.post.ID+"]"))
	writeIndented(w, "", c.Body())
	fmt.Fprintln(w, theme.muted(c.Meta()))

	if c.composerOpen {
		fmt.Fprintf(w, "> comment: %s\n", c.draft)
	}
	if c.errMsg != "" {
		fmt.Fprintln(w, theme.errorText("! "+c.errMsg))
	}

	if len(c.blocks) == 0 {
		fmt.Fprintln(w, theme.muted("  (no comments)"))
		return
	}
	fmt.Fprintf(w, "Comments (%d):\n", c.CommentCount())
	for _, b := range c.blocks {
		b.Render(w, theme)
	}
}
