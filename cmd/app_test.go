package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/threadboard/internal/devserver"
)

type harness struct {
	t           *testing.T
	srv         *devserver.Server
	apiURL      string
	sessionFile string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())
	t.Setenv("NO_COLOR", "1")

	srv, err := devserver.New(devserver.Options{Secret: "cmd-test", Quiet: true})
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	return &harness{
		t:           t,
		srv:         srv,
		apiURL:      ts.URL + "/api",
		sessionFile: filepath.Join(t.TempDir(), "credentials.json"),
	}
}

// run executes the CLI with the harness's API and session file.
func (h *harness) run(args ...string) (string, error) {
	h.t.Helper()
	var out bytes.Buffer
	app := NewApp("test")
	app.Writer = &out
	app.ErrWriter = &out
	full := append([]string{"threadboard", "--api-url", h.apiURL, "--session-file", h.sessionFile}, args...)
	err := app.RunContext(context.Background(), full)
	return out.String(), err
}

func (h *harness) login(username string) {
	h.t.Helper()
	_, err := h.run("register", "-u", username, "-p", "pw")
	require.NoError(h.t, err)
	_, err = h.run("login", "-u", username, "-p", "pw")
	require.NoError(h.t, err)
}

func TestAuthCommands(t *testing.T) {
	h := newHarness(t)

	out, err := h.run("register", "-u", "ann", "-p", "pw")
	require.NoError(t, err)
	assert.Contains(t, out, "Registered! You can now login.")
	_, statErr := os.Stat(h.sessionFile)
	assert.True(t, os.IsNotExist(statErr), "register stores nothing")

	_, err = h.run("login", "-u", "ann", "-p", "wrong")
	require.Error(t, err)
	assert.Equal(t, "Invalid credentials", err.Error())

	out, err = h.run("login", "-u", "ann", "-p", "pw")
	require.NoError(t, err)
	assert.Contains(t, out, "Logged in as ann")

	out, err = h.run("whoami")
	require.NoError(t, err)
	assert.Contains(t, out, "Logged in as ann (id ")

	out, err = h.run("logout")
	require.NoError(t, err)
	assert.Contains(t, out, "Logged out.")

	out, err = h.run("whoami")
	require.NoError(t, err)
	assert.Contains(t, out, "Not logged in.")
}

func TestPostsCommands(t *testing.T) {
	h := newHarness(t)

	_, err := h.run("posts", "create", "anonymous")
	require.Error(t, err)
	assert.Equal(t, "Login required to post.", err.Error())

	h.login("ann")
	out, err := h.run("posts", "create", "hello", "world")
	require.NoError(t, err)
	assert.Contains(t, out, "Post created.")
	assert.Contains(t, out, "hello world")

	out, err = h.run("posts", "list", "--output", "json")
	require.NoError(t, err)
	var threads []map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &threads))
	require.Len(t, threads, 1)
	assert.Equal(t, "hello world", threads[0]["body"])
	assert.Equal(t, "ann", threads[0]["authorName"])

	out, err = h.run("posts", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "DISCUSSIONS (signed in as ann)")

	_, err = h.run("posts", "list", "--output", "xml")
	assert.Error(t, err)
}

func TestCommentCommand(t *testing.T) {
	h := newHarness(t)
	h.login("ann")

	_, err := h.run("posts", "create", "topic")
	require.NoError(t, err)
	out, err := h.run("posts", "list", "--output", "json")
	require.NoError(t, err)
	var threads []map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &threads))
	postID := threads[0]["id"].(string)

	out, err = h.run("comment", "--post", postID, "first", "comment")
	require.NoError(t, err)
	assert.Contains(t, out, "Comment posted.")

	out, err = h.run("posts", "list", "--output", "json")
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &threads))
	root := threads[0]["comments"].([]interface{})[0].(map[string]interface{})
	rootID := root["id"].(string)

	out, err = h.run("comment", "--post", postID, "--parent", rootID, "agreed")
	require.NoError(t, err)
	assert.Contains(t, out, "(sending…)")
	assert.Contains(t, out, "Reply posted.")

	h.srv.FailComments(http.StatusServiceUnavailable, "Comments are offline")
	_, err = h.run("comment", "--post", postID, "--parent", rootID, "lost")
	require.Error(t, err)
	assert.Equal(t, "reply rolled back: Comments are offline", err.Error())

	_, err = h.run("comment", "--post", "missing", "x")
	assert.Error(t, err)
	_, err = h.run("comment", "x")
	assert.Error(t, err, "--post is required")
}

func TestConfigCommands(t *testing.T) {
	h := newHarness(t)
	path := filepath.Join(t.TempDir(), "threadboard.toml")

	out, err := h.run("config", "init", "-o", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Created configuration file")

	out, err = h.run("--config", path, "config", "validate")
	require.NoError(t, err)
	assert.Contains(t, out, "Configuration is valid")
	assert.Contains(t, out, h.apiURL, "command-line url wins over the file")

	_, err = h.run("--log-level", "chatty", "config", "validate")
	assert.Error(t, err)
}
