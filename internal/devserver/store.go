package devserver

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var (
	errUsernameTaken = errors.New("username already taken")
	errBadLogin      = errors.New("invalid credentials")
	errNoPost        = errors.New("post not found")
	errNoParent      = errors.New("parent comment not found")
	errLegacyPost    = errors.New("legacy posts are read-only")
)

type userRecord struct {
	ID           string
	Username     string
	PasswordHash []byte
	CreatedAt    time.Time
}

type commentRecord struct {
	ID         string    `json:"_id"`
	ParentID   *string   `json:"parentId"`
	Text       string    `json:"text"`
	AuthorID   string    `json:"authorId"`
	AuthorName string    `json:"authorName"`
	CreatedAt  time.Time `json:"createdAt"`
}

type nodeRecord struct {
	ID           string    `json:"_id"`
	ParentID     *string   `json:"parentId"`
	Op           *string   `json:"op"`
	RightOperand *float64  `json:"rightOperand"`
	Result       float64   `json:"result"`
	AuthorID     string    `json:"authorId"`
	AuthorName   string    `json:"authorName"`
	CreatedAt    time.Time `json:"createdAt"`
}

// postRecord is the wire shape served by GET /posts. Legacy posts carry
// startNumber and nodes, and their comments are null.
type postRecord struct {
	ID          string          `json:"_id"`
	AuthorID    string          `json:"authorId"`
	AuthorName  string          `json:"authorName"`
	Text        string          `json:"text,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
	Comments    []commentRecord `json:"comments"`
	StartNumber *float64        `json:"startNumber,omitempty"`
	Nodes       []nodeRecord    `json:"nodes,omitempty"`
}

// LegacyOp is one step of a seeded numeric chain.
type LegacyOp struct {
	Op    string // add, sub, mul or div
	Right float64
}

// store keeps users and posts in memory, newest post first.
type store struct {
	mu    sync.RWMutex
	users map[string]*userRecord
	posts []*postRecord
	now   func() time.Time
}

func newStore(now func() time.Time) *store {
	return &store{users: make(map[string]*userRecord), now: now}
}

func (s *store) register(username, password string) (*userRecord, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	key := strings.ToLower(username)
	if _, exists := s.users[key]; exists {
		return nil, errUsernameTaken
	}
	u := &userRecord{ID: uuid.NewString(), Username: username, PasswordHash: hash, CreatedAt: s.now()}
	s.users[key] = u
	return u, nil
}

func (s *store) authenticate(username, password string) (*userRecord, error) {
	s.mu.RLock()
	u, ok := s.users[strings.ToLower(username)]
	s.mu.RUnlock()
	if !ok {
		return nil, errBadLogin
	}
	if err := bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(password)); err != nil {
		return nil, errBadLogin
	}
	return u, nil
}

func (s *store) listPosts() []postRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]postRecord, 0, len(s.posts))
	for _, p := range s.posts {
		cp := *p
		if p.Comments != nil {
			cp.Comments = append([]commentRecord{}, p.Comments...)
		}
		out = append(out, cp)
	}
	return out
}

func (s *store) createPost(authorID, authorName, text string) postRecord {
	p := &postRecord{
		ID:         uuid.NewString(),
		AuthorID:   authorID,
		AuthorName: authorName,
		Text:       text,
		CreatedAt:  s.now(),
		Comments:   []commentRecord{},
	}
	s.mu.Lock()
	s.posts = append([]*postRecord{p}, s.posts...)
	s.mu.Unlock()
	return *p
}

func (s *store) createComment(postID string, parentID *string, authorID, authorName, text string) (commentRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var post *postRecord
	for _, p := range s.posts {
		if p.ID == postID {
			post = p
			break
		}
	}
	if post == nil {
		return commentRecord{}, errNoPost
	}
	if post.Comments == nil {
		return commentRecord{}, errLegacyPost
	}
	if parentID != nil {
		found := false
		for _, c := range post.Comments {
			if c.ID == *parentID {
				found = true
				break
			}
		}
		if !found {
			return commentRecord{}, errNoParent
		}
	}

	c := commentRecord{
		ID:         uuid.NewString(),
		ParentID:   parentID,
		Text:       text,
		AuthorID:   authorID,
		AuthorName: authorName,
		CreatedAt:  s.now(),
	}
	post.Comments = append(post.Comments, c)
	return c, nil
}

func (s *store) seedLegacy(authorName string, start float64, ops []LegacyOp) string {
	now := s.now()
	authorID := "legacy-" + strings.ToLower(authorName)

	nodes := []nodeRecord{{
		ID:         uuid.NewString(),
		Result:     start,
		AuthorID:   authorID,
		AuthorName: authorName,
		CreatedAt:  now,
	}}
	result := start
	for _, op := range ops {
		result = apply(op.Op, result, op.Right)
		parent := nodes[len(nodes)-1].ID
		name := op.Op
		right := op.Right
		nodes = append(nodes, nodeRecord{
			ID:           uuid.NewString(),
			ParentID:     &parent,
			Op:           &name,
			RightOperand: &right,
			Result:       result,
			AuthorID:     authorID,
			AuthorName:   authorName,
			CreatedAt:    now,
		})
	}

	startNumber := start
	p := &postRecord{
		ID:          uuid.NewString(),
		AuthorID:    authorID,
		AuthorName:  authorName,
		CreatedAt:   now,
		StartNumber: &startNumber,
		Nodes:       nodes,
	}
	s.mu.Lock()
	s.posts = append([]*postRecord{p}, s.posts...)
	s.mu.Unlock()
	return p.ID
}

func apply(op string, left, right float64) float64 {
	switch op {
	case "add":
		return left + right
	case "sub":
		return left - right
	case "mul":
		return left * right
	case "div":
		if right == 0 {
			return left
		}
		return left / right
	default:
		return left
	}
}
