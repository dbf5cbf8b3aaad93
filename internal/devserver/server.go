// Package devserver is an in-memory implementation of the board API for local
// development and end-to-end tests. Nothing it stores survives a restart.
package devserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog/log"

	"github.com/threadboard/pkg/models"
)

// Options configures a Server.
type Options struct {
	Secret   string        // HS256 signing key; required
	TokenTTL time.Duration // default 24h
	Now      func() time.Time
	// Quiet disables request logging.
	Quiet bool
}

// Server represents the development API server
type Server struct {
	echo   *echo.Echo
	store  *store
	tokens *tokenService

	mu            sync.Mutex
	commentStatus int
	commentError  string
}

// New creates a server with routes mounted under /api.
func New(opts Options) (*Server, error) {
	if strings.TrimSpace(opts.Secret) == "" {
		return nil, errors.New("devserver secret is required")
	}
	if opts.TokenTTL <= 0 {
		opts.TokenTTL = 24 * time.Hour
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = errorHandler

	// Middleware
	if !opts.Quiet {
		e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
			LogMethod:  true,
			LogURI:     true,
			LogStatus:  true,
			LogLatency: true,
			LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
				log.Info().
					Str("method", v.Method).
					Str("uri", v.URI).
					Int("status", v.Status).
					Dur("latency", v.Latency).
					Msg("request")
				return nil
			},
		}))
	}
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	s := &Server{
		echo:   e,
		store:  newStore(opts.Now),
		tokens: &tokenService{secretKey: []byte(opts.Secret), ttl: opts.TokenTTL, now: opts.Now},
	}
	s.setupRoutes()
	return s, nil
}

// setupRoutes configures all API endpoints
func (s *Server) setupRoutes() {
	s.echo.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "healthy"})
	})

	api := s.echo.Group("/api")
	api.POST("/auth/register", s.register)
	api.POST("/auth/login", s.login)
	api.GET("/posts", s.listPosts)
	api.POST("/posts", s.createPost, s.tokens.requireAuth)
	api.POST("/posts/:id/comments", s.createComment, s.tokens.requireAuth)
}

// Handler exposes the router, e.g. for httptest.NewServer.
func (s *Server) Handler() http.Handler { return s.echo }

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	log.Info().Msg("Shutting down devserver")
	return s.echo.Shutdown(shutdownCtx)
}

// SeedLegacyPost inserts a numeric post whose nodes form a chain starting at
// start. It returns the post id.
func (s *Server) SeedLegacyPost(authorName string, start float64, ops ...LegacyOp) string {
	return s.store.seedLegacy(authorName, start, ops)
}

// FailComments makes comment creation fail with status and message until
// called again with status 0.
func (s *Server) FailComments(status int, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commentStatus = status
	s.commentError = message
}

func (s *Server) injectedCommentFailure() (int, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commentStatus, s.commentError
}

// errorHandler writes every error in the {"error": "..."} envelope.
func errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	code := http.StatusInternalServerError
	msg := "Internal server error"
	var he *echo.HTTPError
	if errors.As(err, &he) {
		code = he.Code
		msg = fmt.Sprint(he.Message)
	} else {
		log.Error().Err(err).Str("uri", c.Request().RequestURI).Msg("Unhandled devserver error")
	}
	if c.Request().Method == http.MethodHead {
		err = c.NoContent(code)
	} else {
		err = c.JSON(code, models.ErrorResponse{Error: msg})
	}
	if err != nil {
		log.Error().Err(err).Msg("Failed to write error response")
	}
}

func (s *Server) register(c echo.Context) error {
	var req models.AuthRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "Username and password required")
	}

	u, err := s.store.register(req.Username, req.Password)
	if errors.Is(err, errUsernameTaken) {
		return echo.NewHTTPError(http.StatusConflict, "Username already taken")
	}
	if err != nil {
		return err
	}
	token, err := s.tokens.issue(u)
	if err != nil {
		return err
	}
	log.Debug().Str("username", u.Username).Msg("Registered user")
	return c.JSON(http.StatusCreated, models.AuthResponse{Token: token})
}

func (s *Server) login(c echo.Context) error {
	var req models.AuthRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}

	u, err := s.store.authenticate(strings.TrimSpace(req.Username), req.Password)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "Invalid credentials")
	}
	token, err := s.tokens.issue(u)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, models.AuthResponse{
		Token: token,
		User:  &models.UserInfo{ID: u.ID, Username: u.Username},
	})
}

func (s *Server) listPosts(c echo.Context) error {
	return c.JSON(http.StatusOK, s.store.listPosts())
}

func (s *Server) createPost(c echo.Context) error {
	var req models.CreatePostRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "Text is required")
	}
	claims := claimsFrom(c)
	post := s.store.createPost(claims.ID, claims.Username, text)
	return c.JSON(http.StatusCreated, post)
}

func (s *Server) createComment(c echo.Context) error {
	if status, msg := s.injectedCommentFailure(); status != 0 {
		return echo.NewHTTPError(status, msg)
	}

	var req models.CreateCommentRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "Text is required")
	}

	claims := claimsFrom(c)
	comment, err := s.store.createComment(c.Param("id"), req.ParentID, claims.ID, claims.Username, text)
	switch {
	case errors.Is(err, errNoPost):
		return echo.NewHTTPError(http.StatusNotFound, "Post not found")
	case errors.Is(err, errNoParent):
		return echo.NewHTTPError(http.StatusBadRequest, "Parent comment not found")
	case errors.Is(err, errLegacyPost):
		return echo.NewHTTPError(http.StatusConflict, "Legacy posts are read-only")
	case err != nil:
		return err
	}
	return c.JSON(http.StatusCreated, comment)
}
