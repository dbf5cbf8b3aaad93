// Package boardapi is the HTTP client for the discussion-board REST API.
package boardapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/threadboard/internal/retry"
	"github.com/threadboard/internal/session"
	"github.com/threadboard/internal/threadmodel"
	"github.com/threadboard/pkg/models"
)

// DefaultBaseURL is where the board API listens in a default local setup.
const DefaultBaseURL = "http://localhost:4000/api"

// ErrUnsupportedMethod is returned for methods other than GET, POST, PUT and DELETE.
var ErrUnsupportedMethod = errors.New("unsupported HTTP method")

// APIError is a non-2xx response from the API.
type APIError struct {
	StatusCode int
	// Message is the server-provided error when present, else a generic text.
	Message string
	// ServerMessage is the raw {"error": ...} value; empty when absent.
	ServerMessage string
}

func (e *APIError) Error() string {
	return e.Message
}

// Client issues requests against a fixed base URL. The Authorization header is
// derived from the session on every request, so credential changes apply
// immediately without touching client state.
type Client struct {
	baseURL    string
	session    *session.Session
	httpClient *http.Client
	userAgent  string
	retry      retry.Config
	limiter    *rate.Limiter
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout bounds each HTTP exchange; zero means no limit.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// WithRetry retries GET requests that fail transiently. Writes are never
// retried since the API offers no idempotency keys.
func WithRetry(cfg retry.Config) Option {
	return func(c *Client) { c.retry = cfg }
}

// WithRateLimit paces every outgoing request, retries included.
func WithRateLimit(l *rate.Limiter) Option {
	return func(c *Client) { c.limiter = l }
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

// NewClient constructs a client. By default no request timeout is imposed
// and nothing is retried; callers cancel through the context.
func NewClient(baseURL string, sess *session.Session, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		session:    sess,
		httpClient: &http.Client{},
		userAgent:  "threadboard",
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Session returns the credential context the client reads from.
func (c *Client) Session() *session.Session { return c.session }

// BaseURL returns the configured base address.
func (c *Client) BaseURL() string { return c.baseURL }

// Request sends body as JSON to base+path and decodes a successful response
// into out (when out is non-nil). An empty method means GET.
func (c *Client) Request(ctx context.Context, method, path string, body, out interface{}) error {
	method = strings.ToUpper(method)
	if method == "" {
		method = http.MethodGet
	}
	switch method {
	case http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete:
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedMethod, method)
	}

	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
	}

	send := func() error { return c.send(ctx, method, path, payload, out) }
	if method != http.MethodGet || c.retry.MaxRetries <= 0 {
		return send()
	}
	result := retry.Do(ctx, c.retry, send, IsRetryable)
	if result.Success {
		return nil
	}
	return result.LastError
}

func (c *Client) send(ctx context.Context, method, path string, payload []byte, out interface{}) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limit: %w", err)
		}
	}
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	if c.session != nil {
		if auth := c.session.AuthorizationHeader(); auth != "" {
			req.Header.Set("Authorization", auth)
		}
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Debug().Err(err).Str("method", method).Str("path", path).Msg("Board API request failed")
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	log.Debug().
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("duration", time.Since(start)).
		Msg("Board API request")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return newAPIError(resp.StatusCode, respBody)
	}

	if out == nil || len(bytes.TrimSpace(respBody)) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

// IsRetryable reports whether err is worth another attempt: network failures
// and 429/502/503/504 responses. Cancellation never is.
func IsRetryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case http.StatusTooManyRequests, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return true
		}
		return false
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

func newAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{
		StatusCode: status,
		Message:    fmt.Sprintf("request failed: %d %s", status, http.StatusText(status)),
	}
	var envelope models.ErrorResponse
	if err := json.Unmarshal(body, &envelope); err == nil && strings.TrimSpace(envelope.Error) != "" {
		apiErr.ServerMessage = envelope.Error
		apiErr.Message = envelope.Error
	}
	return apiErr
}

// Login exchanges username and password for a credential.
func (c *Client) Login(ctx context.Context, username, password string) (*models.AuthResponse, error) {
	var resp models.AuthResponse
	if err := c.Request(ctx, http.MethodPost, "/auth/login", models.AuthRequest{Username: username, Password: password}, &resp); err != nil {
		return nil, err
	}
	if resp.Token == "" {
		return nil, fmt.Errorf("login response did not include a token")
	}
	return &resp, nil
}

// Register creates an account. The returned token is not stored by the client.
func (c *Client) Register(ctx context.Context, username, password string) (*models.AuthResponse, error) {
	var resp models.AuthResponse
	if err := c.Request(ctx, http.MethodPost, "/auth/register", models.AuthRequest{Username: username, Password: password}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListPosts fetches every post with its comments.
func (c *Client) ListPosts(ctx context.Context) ([]threadmodel.Post, error) {
	var posts []threadmodel.Post
	if err := c.Request(ctx, http.MethodGet, "/posts", nil, &posts); err != nil {
		return nil, err
	}
	return posts, nil
}

// CreatePost publishes a new top-level post.
func (c *Client) CreatePost(ctx context.Context, text string) (*threadmodel.Post, error) {
	var post threadmodel.Post
	if err := c.Request(ctx, http.MethodPost, "/posts", models.CreatePostRequest{Text: text}, &post); err != nil {
		return nil, err
	}
	return &post, nil
}

// CreateComment adds a comment to a post; a nil parentID makes it a root comment.
func (c *Client) CreateComment(ctx context.Context, postID string, parentID *string, text string) (*threadmodel.CommentItem, error) {
	var comment threadmodel.CommentItem
	path := "/posts/" + url.PathEscape(postID) + "/comments"
	if err := c.Request(ctx, http.MethodPost, path, models.CreateCommentRequest{ParentID: parentID, Text: text}, &comment); err != nil {
		return nil, err
	}
	return &comment, nil
}

// ServerMessage returns the server-supplied error text, or fallback.
func ServerMessage(err error, fallback string) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.ServerMessage != "" {
		return apiErr.ServerMessage
	}
	return fallback
}

// ErrorMessage returns the server-supplied error text, else the error's own
// text, else fallback.
func ErrorMessage(err error, fallback string) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.ServerMessage != "" {
		return apiErr.ServerMessage
	}
	if err != nil && err.Error() != "" {
		return err.Error()
	}
	return fallback
}
