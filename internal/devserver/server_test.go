package devserver

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/threadboard/internal/boardapi"
	"github.com/threadboard/internal/session"
	"github.com/threadboard/internal/threadmodel"
)

func newTestServer(t *testing.T) (*Server, *boardapi.Client) {
	t.Helper()
	srv, err := New(Options{Secret: "test-secret", Quiet: true})
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	sess, err := session.New(session.NewMemoryStore(""))
	require.NoError(t, err)
	return srv, boardapi.NewClient(ts.URL+"/api", sess)
}

func loginAs(t *testing.T, client *boardapi.Client, username string) {
	t.Helper()
	ctx := context.Background()
	_, err := client.Register(ctx, username, "pw-"+username)
	require.NoError(t, err)
	resp, err := client.Login(ctx, username, "pw-"+username)
	require.NoError(t, err)
	require.NoError(t, client.Session().SetCredential(resp.Token))
}

func TestNew_RequiresSecret(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)
}

func TestAuth_RegisterAndLogin(t *testing.T) {
	_, client := newTestServer(t)
	ctx := context.Background()

	reg, err := client.Register(ctx, "ann", "secret")
	require.NoError(t, err)
	assert.NotEmpty(t, reg.Token)
	assert.Nil(t, reg.User)

	resp, err := client.Login(ctx, "ann", "secret")
	require.NoError(t, err)
	require.NotNil(t, resp.User)
	assert.Equal(t, "ann", resp.User.Username)

	ident, ok := session.DecodeIdentity(resp.Token)
	require.True(t, ok)
	assert.Equal(t, "ann", ident.Username)
	assert.Equal(t, resp.User.ID, ident.ID)
}

func TestAuth_Failures(t *testing.T) {
	_, client := newTestServer(t)
	ctx := context.Background()

	_, err := client.Register(ctx, "ann", "secret")
	require.NoError(t, err)

	_, err = client.Register(ctx, "ANN", "other")
	var apiErr *boardapi.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusConflict, apiErr.StatusCode)
	assert.Equal(t, "Username already taken", apiErr.ServerMessage)

	_, err = client.Login(ctx, "ann", "wrong")
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.Equal(t, "Invalid credentials", apiErr.ServerMessage)

	_, err = client.Register(ctx, "  ", "pw")
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
}

func TestPosts_RequireBearerToken(t *testing.T) {
	_, client := newTestServer(t)
	ctx := context.Background()

	_, err := client.CreatePost(ctx, "hello")
	assert.Equal(t, "Authorization header required", boardapi.ServerMessage(err, ""))

	require.NoError(t, client.Session().SetCredential("not-a-jwt"))
	_, err = client.CreatePost(ctx, "hello")
	assert.Equal(t, "Invalid or expired token", boardapi.ServerMessage(err, ""))
}

func TestPosts_ForeignSignatureRejected(t *testing.T) {
	other, err := New(Options{Secret: "other-secret", Quiet: true})
	require.NoError(t, err)
	forged, err := other.tokens.issue(&userRecord{ID: "x", Username: "mallory"})
	require.NoError(t, err)

	_, client := newTestServer(t)
	require.NoError(t, client.Session().SetCredential(forged))
	_, err = client.CreatePost(context.Background(), "hello")
	assert.Equal(t, "Invalid or expired token", boardapi.ServerMessage(err, ""))
}

func TestExpiredTokenRejected(t *testing.T) {
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	srv, err := New(Options{Secret: "s", Quiet: true, TokenTTL: time.Minute, Now: clock})
	require.NoError(t, err)

	token, err := srv.tokens.issue(&userRecord{ID: "u1", Username: "ann"})
	require.NoError(t, err)
	_, err = srv.tokens.validate(token)
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	_, err = srv.tokens.validate(token)
	assert.Error(t, err)
}

func TestPostsAndComments(t *testing.T) {
	_, client := newTestServer(t)
	ctx := context.Background()
	loginAs(t, client, "ann")

	first, err := client.CreatePost(ctx, "first")
	require.NoError(t, err)
	second, err := client.CreatePost(ctx, "  second  ")
	require.NoError(t, err)
	assert.Equal(t, "second", second.Text)
	assert.Equal(t, "ann", second.AuthorName)

	root, err := client.CreateComment(ctx, first.ID, nil, "root")
	require.NoError(t, err)
	assert.Nil(t, root.ParentID)
	reply, err := client.CreateComment(ctx, first.ID, &root.ID, "reply")
	require.NoError(t, err)
	require.NotNil(t, reply.ParentID)
	assert.Equal(t, root.ID, *reply.ParentID)

	posts, err := client.ListPosts(ctx)
	require.NoError(t, err)
	require.Len(t, posts, 2)
	assert.Equal(t, second.ID, posts[0].ID, "newest first")
	assert.NotNil(t, posts[0].Comments)
	assert.Empty(t, posts[0].Comments)

	forest := threadmodel.BuildForest(threadmodel.Normalize(posts[1]))
	require.Len(t, forest, 1)
	assert.Equal(t, "root", forest[0].Text)
	require.Len(t, forest[0].Children, 1)
	assert.Equal(t, "reply", forest[0].Children[0].Text)
}

func TestComments_Validation(t *testing.T) {
	_, client := newTestServer(t)
	ctx := context.Background()
	loginAs(t, client, "ann")

	post, err := client.CreatePost(ctx, "p")
	require.NoError(t, err)

	_, err = client.CreateComment(ctx, "missing", nil, "x")
	assert.Equal(t, "Post not found", boardapi.ServerMessage(err, ""))

	_, err = client.CreateComment(ctx, post.ID, threadmodel.StringPtr("nope"), "x")
	assert.Equal(t, "Parent comment not found", boardapi.ServerMessage(err, ""))

	_, err = client.CreateComment(ctx, post.ID, nil, "   ")
	assert.Equal(t, "Text is required", boardapi.ServerMessage(err, ""))
}

func TestSeedLegacyPost(t *testing.T) {
	srv, client := newTestServer(t)
	ctx := context.Background()

	id := srv.SeedLegacyPost("old", 5, LegacyOp{Op: "add", Right: 3}, LegacyOp{Op: "mul", Right: 2})

	posts, err := client.ListPosts(ctx)
	require.NoError(t, err)
	require.Len(t, posts, 1)
	p := posts[0]
	assert.Equal(t, id, p.ID)
	assert.True(t, p.IsNumeric())
	assert.Nil(t, p.Comments)
	assert.Equal(t, "Start: 5", p.Body())

	forest := threadmodel.BuildForest(threadmodel.Normalize(p))
	require.Len(t, forest, 1)
	assert.Equal(t, "Start: 5", forest[0].Text)
	require.Len(t, forest[0].Children, 1)
	assert.Equal(t, "add 3 → 8", forest[0].Children[0].Text)
	require.Len(t, forest[0].Children[0].Children, 1)
	assert.Equal(t, "mul 2 → 16", forest[0].Children[0].Children[0].Text)

	loginAs(t, client, "ann")
	_, err = client.CreateComment(ctx, id, nil, "hi")
	assert.Equal(t, "Legacy posts are read-only", boardapi.ServerMessage(err, ""))
}

func TestFailComments(t *testing.T) {
	srv, client := newTestServer(t)
	ctx := context.Background()
	loginAs(t, client, "ann")
	post, err := client.CreatePost(ctx, "p")
	require.NoError(t, err)

	srv.FailComments(http.StatusServiceUnavailable, "try later")
	_, err = client.CreateComment(ctx, post.ID, nil, "x")
	var apiErr *boardapi.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusServiceUnavailable, apiErr.StatusCode)
	assert.Equal(t, "try later", apiErr.ServerMessage)

	srv.FailComments(0, "")
	_, err = client.CreateComment(ctx, post.ID, nil, "x")
	assert.NoError(t, err)
}

func TestUnknownRouteUsesErrorEnvelope(t *testing.T) {
	_, client := newTestServer(t)
	err := client.Request(context.Background(), http.MethodGet, "/nowhere", nil, nil)
	var apiErr *boardapi.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Equal(t, "Not Found", apiErr.ServerMessage)
}
