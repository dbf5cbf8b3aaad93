package threadmodel

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// Identity is the display identity decoded from a credential.
// It is advisory only and must never be used for authorization.
type Identity struct {
	ID       string `json:"id,omitempty"`
	Username string `json:"username,omitempty"`
}

// Post is a discussion-board post. A post is either textual (Text set) or a
// legacy numeric post (StartNumber and/or Nodes set).
type Post struct {
	ID          string        `json:"id"`
	AuthorID    string        `json:"authorId"`
	AuthorName  string        `json:"authorName,omitempty"`
	Text        string        `json:"text,omitempty"`
	CreatedAt   time.Time     `json:"createdAt"`
	Comments    []CommentItem `json:"comments,omitempty"` // nil means absent
	StartNumber *float64      `json:"startNumber,omitempty"`
	Nodes       []NodeItem    `json:"nodes,omitempty"` // nil means absent
}

// CommentItem is one flat comment as delivered by the API.
// A nil ParentID marks a root comment under a post.
type CommentItem struct {
	ID         string    `json:"id"`
	ParentID   *string   `json:"parentId"`
	Text       string    `json:"text"`
	AuthorID   string    `json:"authorId"`
	AuthorName string    `json:"authorName,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

// NodeItem is a legacy numeric operation chained from its parent node.
type NodeItem struct {
	ID           string    `json:"id"`
	ParentID     *string   `json:"parentId"`
	Op           string    `json:"op,omitempty"` // add, sub, mul, div or empty for the start value
	RightOperand *float64  `json:"rightOperand"`
	Result       float64   `json:"result"`
	AuthorID     string    `json:"authorId"`
	AuthorName   string    `json:"authorName,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

// CommentNode is a CommentItem plus its ordered replies.
type CommentNode struct {
	CommentItem
	// Pending marks an optimistic node that has not been persisted yet.
	Pending  bool           `json:"pending,omitempty"`
	Children []*CommentNode `json:"children"`
}

// IsNumeric reports whether the post uses the legacy numeric model.
func (p Post) IsNumeric() bool {
	return p.Nodes != nil || p.StartNumber != nil
}

// Body returns the text to display for the post, falling back to the legacy
// start value for numeric posts.
func (p Post) Body() string {
	if p.Text != "" {
		return p.Text
	}
	if p.StartNumber != nil {
		return "Start: " + FormatNumber(*p.StartNumber)
	}
	if len(p.Nodes) > 0 {
		return "Start: " + FormatNumber(p.Nodes[0].Result)
	}
	return ""
}

// AuthorLabel prefers the display name and falls back to the author id.
func (p Post) AuthorLabel() string {
	return firstNonEmpty(p.AuthorName, p.AuthorID)
}

// AuthorLabel prefers the display name and falls back to the author id.
func (c CommentItem) AuthorLabel() string {
	return firstNonEmpty(c.AuthorName, c.AuthorID)
}

// LegacyText renders a numeric node the way the board has always shown it.
func (n NodeItem) LegacyText() string {
	if n.Op == "" {
		return "Start: " + FormatNumber(n.Result)
	}
	right := "null"
	if n.RightOperand != nil {
		right = FormatNumber(*n.RightOperand)
	}
	return n.Op + " " + right + " → " + FormatNumber(n.Result)
}

// FormatNumber prints a float in its shortest decimal form (5, 2.5, -3).
func FormatNumber(f float64) string {
	if f >= 1e21 || f <= -1e21 {
		return strconv.FormatFloat(f, 'g', -1, 64)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// The backend emits Mongo-style "_id" keys and occasionally numeric ids; the
// wire types below accept both spellings and both representations.

type wirePost struct {
	ID          json.RawMessage `json:"id"`
	MongoID     json.RawMessage `json:"_id"`
	AuthorID    json.RawMessage `json:"authorId"`
	AuthorName  string          `json:"authorName"`
	Text        string          `json:"text"`
	CreatedAt   string          `json:"createdAt"`
	Comments    []CommentItem   `json:"comments"`
	StartNumber *float64        `json:"startNumber"`
	Nodes       []NodeItem      `json:"nodes"`
}

// UnmarshalJSON implements json.Unmarshaler.
func (p *Post) UnmarshalJSON(data []byte) error {
	var w wirePost
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	id, _ := decodeID(w.ID)
	if id == "" {
		id, _ = decodeID(w.MongoID)
	}
	authorID, _ := decodeID(w.AuthorID)
	*p = Post{
		ID:          id,
		AuthorID:    authorID,
		AuthorName:  w.AuthorName,
		Text:        w.Text,
		CreatedAt:   parseTimeOrZero(w.CreatedAt),
		Comments:    w.Comments,
		StartNumber: w.StartNumber,
		Nodes:       w.Nodes,
	}
	return nil
}

type wireComment struct {
	ID         json.RawMessage `json:"id"`
	MongoID    json.RawMessage `json:"_id"`
	ParentID   json.RawMessage `json:"parentId"`
	Text       string          `json:"text"`
	AuthorID   json.RawMessage `json:"authorId"`
	AuthorName string          `json:"authorName"`
	CreatedAt  string          `json:"createdAt"`
}

// UnmarshalJSON implements json.Unmarshaler.
func (c *CommentItem) UnmarshalJSON(data []byte) error {
	var w wireComment
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	id, _ := decodeID(w.ID)
	if id == "" {
		id, _ = decodeID(w.MongoID)
	}
	authorID, _ := decodeID(w.AuthorID)
	*c = CommentItem{
		ID:         id,
		ParentID:   decodeParentID(w.ParentID),
		Text:       w.Text,
		AuthorID:   authorID,
		AuthorName: w.AuthorName,
		CreatedAt:  parseTimeOrZero(w.CreatedAt),
	}
	return nil
}

type wireNode struct {
	ID           json.RawMessage `json:"id"`
	MongoID      json.RawMessage `json:"_id"`
	ParentID     json.RawMessage `json:"parentId"`
	Op           *string         `json:"op"`
	RightOperand *float64        `json:"rightOperand"`
	Result       float64         `json:"result"`
	AuthorID     json.RawMessage `json:"authorId"`
	AuthorName   string          `json:"authorName"`
	CreatedAt    string          `json:"createdAt"`
}

// UnmarshalJSON implements json.Unmarshaler.
func (n *NodeItem) UnmarshalJSON(data []byte) error {
	var w wireNode
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	id, _ := decodeID(w.ID)
	if id == "" {
		id, _ = decodeID(w.MongoID)
	}
	authorID, _ := decodeID(w.AuthorID)
	op := ""
	if w.Op != nil {
		op = *w.Op
	}
	*n = NodeItem{
		ID:           id,
		ParentID:     decodeParentID(w.ParentID),
		Op:           op,
		RightOperand: w.RightOperand,
		Result:       w.Result,
		AuthorID:     authorID,
		AuthorName:   w.AuthorName,
		CreatedAt:    parseTimeOrZero(w.CreatedAt),
	}
	return nil
}

// decodeID accepts a JSON string or number. Absent, null and empty values
// report false.
func decodeID(raw json.RawMessage) (string, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, s != ""
	}
	var num json.Number
	if err := json.Unmarshal(raw, &num); err == nil {
		return num.String(), true
	}
	return "", false
}

func decodeParentID(raw json.RawMessage) *string {
	id, ok := decodeID(raw)
	if !ok {
		return nil
	}
	return &id
}

func parseTimeOrZero(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	layouts := []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05.000Z07:00", "2006-01-02 15:04:05"}
	for _, l := range layouts {
		if t, err := time.Parse(l, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// StringPtr returns a pointer to s; handy for ParentID literals.
func StringPtr(s string) *string { return &s }
