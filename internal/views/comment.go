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

// CommentBlock renders one comment and its replies. Its children are local
// state: seeded from the node, extended optimistically by Reply and replaced
// by Reseed whenever canonical data arrives.
type CommentBlock struct {
	env   *env
	card  *PostCard
	node  *threadmodel.CommentNode
	depth int

	children []*CommentBlock
	replying bool
	draft    string
	sending  bool
	errMsg   string
}

func newCommentBlock(e *env, card *PostCard, node *threadmodel.CommentNode, depth int) *CommentBlock {
	b := &CommentBlock{env: e, card: card, depth: depth}
	b.Reseed(node)
	return b
}

// reseedBlocks builds blocks for nodes, reusing blocks from prev with the same
// id so their composer state survives a reload. Optimistic blocks are never
// reused.
func reseedBlocks(e *env, card *PostCard, prev []*CommentBlock, nodes []*threadmodel.CommentNode, depth int) []*CommentBlock {
	byID := make(map[string]*CommentBlock, len(prev))
	for _, b := range prev {
		if !b.node.Pending {
			byID[b.node.ID] = b
		}
	}
	blocks := make([]*CommentBlock, 0, len(nodes))
	for _, n := range nodes {
		if existing, ok := byID[n.ID]; ok {
			delete(byID, n.ID)
			existing.card = card
			existing.depth = depth
			existing.Reseed(n)
			blocks = append(blocks, existing)
			continue
		}
		blocks = append(blocks, newCommentBlock(e, card, n, depth))
	}
	return blocks
}

// Reseed replaces the node and the local children with canonical data.
func (b *CommentBlock) Reseed(node *threadmodel.CommentNode) {
	b.node = node
	b.children = reseedBlocks(b.env, b.card, b.children, node.Children, b.depth+1)
}

func (b *CommentBlock) ID() string                     { return b.node.ID }
func (b *CommentBlock) Node() *threadmodel.CommentNode { return b.node }
func (b *CommentBlock) Depth() int                     { return b.depth }
func (b *CommentBlock) Replying() bool                 { return b.replying }
func (b *CommentBlock) Draft() string                  { return b.draft }
func (b *CommentBlock) Sending() bool                  { return b.sending }
func (b *CommentBlock) Error() string                  { return b.errMsg }
func (b *CommentBlock) Pending() bool                  { return b.node.Pending }

// Children returns the locally displayed replies, optimistic ones included.
func (b *CommentBlock) Children() []*CommentBlock {
	out := make([]*CommentBlock, len(b.children))
	copy(out, b.children)
	return out
}

// Text is the comment text, or the legacy rendering of the matching numeric
// node when the comment itself has none.
func (b *CommentBlock) Text() string {
	if b.node.Text != "" {
		return b.node.Text
	}
	if b.card != nil && b.card.post.IsNumeric() {
		for _, n := range b.card.post.Nodes {
			if n.ID == b.node.ID {
				return n.LegacyText()
			}
		}
	}
	return ""
}

// ToggleComposer opens or closes the reply composer and clears the error.
func (b *CommentBlock) ToggleComposer() {
	b.replying = !b.replying
	b.errMsg = ""
}

// SetDraft replaces the composer text and opens the composer.
func (b *CommentBlock) SetDraft(text string) {
	b.replying = true
	b.draft = text
}

// Reply types text into the composer and submits it.
func (b *CommentBlock) Reply(ctx context.Context, text string) error {
	b.SetDraft(text)
	return b.SubmitReply(ctx)
}

// SubmitReply posts the composer text as a reply to this comment.
//
// The reply is shown immediately as a pending child. On success the discussion
// reloads and canonical data replaces it. On failure the pending child is
// removed by id, the error is shown, and the text goes back into the reopened
// composer.
func (b *CommentBlock) SubmitReply(ctx context.Context) error {
	b.errMsg = ""
	if !b.env.hasCredential() {
		b.errMsg = "You must be logged in to reply."
		return ErrNoCredential
	}
	if b.node.Pending {
		b.errMsg = "Wait for the reply to be saved."
		return ErrPendingParent
	}
	trimmed := strings.TrimSpace(b.draft)
	if trimmed == "" {
		b.errMsg = "Reply cannot be empty."
		return ErrEmptyText
	}

	ident, _ := b.env.session.Identity()
	authorID, authorName := ident.ID, ident.Username
	if authorID == "" {
		authorID = "you"
	}
	if authorName == "" {
		authorName = "You"
	}

	parentID := b.node.ID
	temp := &threadmodel.CommentNode{
		CommentItem: threadmodel.CommentItem{
			ID:         b.env.newID(),
			ParentID:   threadmodel.StringPtr(parentID),
			Text:       trimmed,
			AuthorID:   authorID,
			AuthorName: authorName,
			CreatedAt:  b.env.now(),
		},
		Pending:  true,
		Children: []*threadmodel.CommentNode{},
	}
	b.children = append(b.children, newCommentBlock(b.env, b.card, temp, b.depth+1))
	b.draft = ""
	b.replying = false
	b.sending = true
	b.env.changed()

	_, err := b.env.api.CreateComment(ctx, b.card.post.ID, threadmodel.StringPtr(parentID), trimmed)
	b.sending = false
	if err != nil {
		b.errMsg = boardapi.ErrorMessage(err, "Failed to post reply")
		b.removeChild(temp.ID)
		b.draft = trimmed
		b.replying = true
		log.Warn().Err(err).Str("post_id", b.card.post.ID).Str("parent_id", parentID).Msg("Reply failed, rolled back")
		b.env.changed()
		return fmt.Errorf("reply failed: %w", err)
	}

	temp.Pending = false
	if b.env.reload == nil {
		return nil
	}
	if err := b.env.reload(ctx); err != nil && !errors.Is(err, ErrStaleLoad) {
		return fmt.Errorf("reply saved but reload failed: %w", err)
	}
	return nil
}

func (b *CommentBlock) removeChild(id string) {
	kept := b.children[:0]
	for _, c := range b.children {
		if c.node.ID != id {
			kept = append(kept, c)
		}
	}
	b.children = kept
}

func (b *CommentBlock) find(id string) *CommentBlock {
	if b.node.ID == id {
		return b
	}
	for _, c := range b.children {
		if found := c.find(id); found != nil {
			return found
		}
	}
	return nil
}

func (b *CommentBlock) count() int {
	n := 1
	for _, c := range b.children {
		n += c.count()
	}
	return n
}

// Render draws the comment and its local children, indented by depth.
func (b *CommentBlock) Render(w io.Writer, theme Theme) {
	indent := strings.Repeat("  ", b.depth+1)
	header := fmt.Sprintf("%s- %s · %s %s", indent, theme.strong(b.node.AuthorLabel()), theme.muted(FormatTime(b.node.CreatedAt)), theme.muted("["+b.node.ID+"]"))
	if b.node.Pending {
		header += " " + theme.notice("(sending…)")
	}
	fmt.Fprintln(w, header)
	writeIndented(w, indent+"  ", b.Text())

	if b.replying {
		fmt.Fprintf(w, "%s  > reply: %s\n", indent, b.draft)
	}
	if b.errMsg != "" {
		fmt.Fprintf(w, "%s  %s\n", indent, theme.errorText("! "+b.errMsg))
	}
	for _, c := range b.children {
		c.Render(w, theme)
	}
}
