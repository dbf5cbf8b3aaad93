package views

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"

	"github.com/threadboard/internal/threadmodel"
)

const (
	colorReset  = "\033[0m"
	colorBold   = "\033[1m"
	colorRed    = "\033[31m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorGray   = "\033[90m"

	lineWidth = 80
)

// Theme controls ANSI styling of rendered views.
type Theme struct {
	Color bool
}

// NewTheme enables colour only when out is a terminal and colour is not
// disabled explicitly or through NO_COLOR.
func NewTheme(color bool, out io.Writer) Theme {
	if os.Getenv("NO_COLOR") != "" || !isTerminal(out) {
		color = false
	}
	return Theme{Color: color}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(interface{ Fd() uintptr })
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func (t Theme) paint(code, s string) string {
	if !t.Color || s == "" {
		return s
	}
	return code + s + colorReset
}

func (t Theme) heading(s string) string   { return t.paint(colorBold+colorCyan, s) }
func (t Theme) notice(s string) string    { return t.paint(colorYellow, s) }
func (t Theme) errorText(s string) string { return t.paint(colorRed, s) }
func (t Theme) muted(s string) string     { return t.paint(colorGray, s) }
func (t Theme) strong(s string) string    { return t.paint(colorBold, s) }

func separator(ch string) string {
	return strings.Repeat(ch, lineWidth)
}

// FormatTime renders a timestamp in local time.
func FormatTime(ts time.Time) string {
	if ts.IsZero() {
		return "unknown time"
	}
	return ts.Local().Format("2006-01-02 15:04:05")
}

func writeIndented(w io.Writer, prefix, text string) {
	for _, line := range strings.Split(text, "\n") {
		fmt.Fprintf(w, "%s%s\n", prefix, line)
	}
}

// PostThread is the JSON shape of one post with its built comment forest.
type PostThread struct {
	ID         string                     `json:"id"`
	AuthorID   string                     `json:"authorId"`
	AuthorName string                     `json:"authorName,omitempty"`
	Body       string                     `json:"body"`
	Numeric    bool                       `json:"numeric,omitempty"`
	CreatedAt  time.Time                  `json:"createdAt"`
	Comments   []*threadmodel.CommentNode `json:"comments"`
}

// Threads builds the JSON shape for every post.
func Threads(posts []threadmodel.Post) []PostThread {
	out := make([]PostThread, 0, len(posts))
	for _, p := range posts {
		out = append(out, PostThread{
			ID:         p.ID,
			AuthorID:   p.AuthorID,
			AuthorName: p.AuthorName,
			Body:       p.Body(),
			Numeric:    p.IsNumeric(),
			CreatedAt:  p.CreatedAt,
			Comments:   threadmodel.BuildForest(threadmodel.Normalize(p)),
		})
	}
	return out
}

// WriteJSON writes posts and their comment forests as indented JSON.
func WriteJSON(w io.Writer, posts []threadmodel.Post) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(Threads(posts)); err != nil {
		return fmt.Errorf("failed to encode posts: %w", err)
	}
	return nil
}
