package views

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/threadboard/internal/session"
	"github.com/threadboard/internal/threadmodel"
	"github.com/threadboard/pkg/models"
)

type commentCall struct {
	PostID   string
	ParentID *string
	Text     string
}

// fakeAPI is an in-memory API. CreateComment appends to the stored post so a
// following ListPosts returns canonical data.
type fakeAPI struct {
	mu sync.Mutex

	posts       []threadmodel.Post
	listCalls   int
	listFn      func(ctx context.Context, call int) ([]threadmodel.Post, error)
	listErr     error
	postErr     error
	commentErr  error
	loginResp   *models.AuthResponse
	loginErr    error
	registerErr error

	authCalls    []string
	createdPosts []string
	comments     []commentCall
}

func (f *fakeAPI) Login(ctx context.Context, username, password string) (*models.AuthResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.authCalls = append(f.authCalls, "login:"+username)
	if f.loginErr != nil {
		return nil, f.loginErr
	}
	return f.loginResp, nil
}

func (f *fakeAPI) Register(ctx context.Context, username, password string) (*models.AuthResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.authCalls = append(f.authCalls, "register:"+username)
	if f.registerErr != nil {
		return nil, f.registerErr
	}
	return &models.AuthResponse{Token: "register-token"}, nil
}

func (f *fakeAPI) ListPosts(ctx context.Context) ([]threadmodel.Post, error) {
	f.mu.Lock()
	f.listCalls++
	call := f.listCalls
	fn := f.listFn
	f.mu.Unlock()
	if fn != nil {
		return fn(ctx, call)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	return clonePosts(f.posts), nil
}

func (f *fakeAPI) CreatePost(ctx context.Context, text string) (*threadmodel.Post, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.postErr != nil {
		return nil, f.postErr
	}
	f.createdPosts = append(f.createdPosts, text)
	p := threadmodel.Post{ID: fmt.Sprintf("p%d", len(f.posts)+1), AuthorID: "u1", Text: text, Comments: []threadmodel.CommentItem{}}
	f.posts = append(f.posts, p)
	return &p, nil
}

func (f *fakeAPI) CreateComment(ctx context.Context, postID string, parentID *string, text string) (*threadmodel.CommentItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.comments = append(f.comments, commentCall{PostID: postID, ParentID: parentID, Text: text})
	if f.commentErr != nil {
		return nil, f.commentErr
	}
	for i := range f.posts {
		if f.posts[i].ID != postID {
			continue
		}
		c := threadmodel.CommentItem{
			ID:         fmt.Sprintf("srv%d", len(f.comments)),
			ParentID:   parentID,
			Text:       text,
			AuthorID:   "u1",
			AuthorName: "ann",
			CreatedAt:  time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		}
		f.posts[i].Comments = append(f.posts[i].Comments, c)
		return &c, nil
	}
	return nil, fmt.Errorf("post %s not found", postID)
}

func (f *fakeAPI) listCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listCalls
}

func clonePosts(posts []threadmodel.Post) []threadmodel.Post {
	out := make([]threadmodel.Post, len(posts))
	for i, p := range posts {
		out[i] = p
		if p.Comments != nil {
			out[i].Comments = append([]threadmodel.CommentItem{}, p.Comments...)
		}
	}
	return out
}

func newSession(t *testing.T, token string) *session.Session {
	t.Helper()
	sess, err := session.New(session.NewMemoryStore(token))
	require.NoError(t, err)
	return sess
}

func signedToken(t *testing.T, id, username string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"id": id, "username": username})
	signed, err := token.SignedString([]byte("views-test"))
	require.NoError(t, err)
	return signed
}

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("temp_%d", n)
	}
}

// samplePosts is one textual post with a small thread and one empty post.
func samplePosts() []threadmodel.Post {
	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	return []threadmodel.Post{
		{
			ID: "p1", AuthorID: "u1", AuthorName: "ann", Text: "hello world", CreatedAt: at,
			Comments: []threadmodel.CommentItem{
				{ID: "c1", Text: "root", AuthorID: "u2", AuthorName: "bob", CreatedAt: at},
				{ID: "c2", ParentID: threadmodel.StringPtr("c1"), Text: "child", AuthorID: "u1", AuthorName: "ann", CreatedAt: at},
			},
		},
		{ID: "p2", AuthorID: "u2", Text: "quiet", CreatedAt: at, Comments: []threadmodel.CommentItem{}},
	}
}
