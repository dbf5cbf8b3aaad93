package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/urfave/cli/v2"
	"golang.org/x/time/rate"

	"github.com/threadboard/internal/boardapi"
	"github.com/threadboard/internal/config"
	"github.com/threadboard/internal/logging"
	"github.com/threadboard/internal/retry"
	"github.com/threadboard/internal/session"
	"github.com/threadboard/internal/views"
)

// NewApp builds the threadboard command tree.
func NewApp(version string) *cli.App {
	return &cli.App{
		Name:    "threadboard",
		Usage:   "Terminal client for threaded discussion boards",
		Version: version,
		Flags:   GlobalFlags(),
		Commands: []*cli.Command{
			LoginCommand(),
			RegisterCommand(),
			LogoutCommand(),
			WhoamiCommand(),
			PostsCommand(),
			CommentCommand(),
			ShellCommand(),
			DevServerCommand(),
			ConfigCommand(),
		},
	}
}

// GlobalFlags are accepted before any command.
func GlobalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "Load configuration from `FILE` (default: ./threadboard.toml or ~/.threadboard/config.toml)",
			EnvVars: []string{"THREADBOARD_CONFIG"},
		},
		&cli.StringFlag{
			Name:  "api-url",
			Usage: "Board API base URL (overrides config)",
		},
		&cli.StringFlag{
			Name:  "session-file",
			Usage: "Credential file (overrides config)",
		},
		&cli.StringFlag{
			Name:  "log-level",
			Usage: "Log level: trace, debug, info, warn, error",
		},
		&cli.BoolFlag{
			Name:    "verbose",
			Aliases: []string{"v"},
			Usage:   "Enable debug logging",
		},
		&cli.BoolFlag{
			Name:  "no-color",
			Usage: "Disable coloured output",
		},
	}
}

// runtime is what every board command needs.
type runtime struct {
	cfg     *config.Config
	session *session.Session
	client  *boardapi.Client
	theme   views.Theme
	out     io.Writer
	closer  io.Closer
}

func (r *runtime) Close() error {
	if r.closer == nil {
		return nil
	}
	return r.closer.Close()
}

// loadConfig applies command-line overrides on top of the file and env config.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.LoadConfig(c.String("config"))
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if c.IsSet("api-url") {
		cfg.API.URL = c.String("api-url")
	}
	if c.IsSet("session-file") {
		cfg.Session.Path = c.String("session-file")
	}
	if c.IsSet("log-level") {
		cfg.Log.Level = c.String("log-level")
	}
	if c.Bool("verbose") {
		cfg.Log.Level = "debug"
	}
	if c.Bool("no-color") {
		cfg.UI.Color = false
	}
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func setupLogging(cfg *config.Config) (io.Closer, error) {
	return logging.Setup(logging.Options{
		Level:   cfg.Log.Level,
		Format:  cfg.Log.Format,
		File:    cfg.Log.File,
		NoColor: !cfg.UI.Color,
	})
}

func newRuntime(c *cli.Context) (*runtime, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, err
	}
	closer, err := setupLogging(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to set up logging: %w", err)
	}

	path := cfg.Session.Path
	if path == "" {
		if path, err = session.DefaultPath(); err != nil {
			closer.Close()
			return nil, err
		}
	}
	sess, err := session.New(session.NewFileStore(path))
	if err != nil {
		closer.Close()
		return nil, err
	}

	userAgent := "threadboard"
	if v := strings.TrimSpace(c.App.Version); v != "" {
		userAgent += "/" + v
	}
	retryCfg := retry.DefaultConfig()
	retryCfg.MaxRetries = cfg.API.Retries
	opts := []boardapi.Option{
		boardapi.WithUserAgent(userAgent),
		boardapi.WithTimeout(cfg.API.Timeout),
		boardapi.WithRetry(retryCfg),
	}
	if cfg.API.RateLimit > 0 {
		opts = append(opts, boardapi.WithRateLimit(rate.NewLimiter(rate.Limit(cfg.API.RateLimit), cfg.API.Burst)))
	}
	client := boardapi.NewClient(cfg.API.URL, sess, opts...)
	return &runtime{
		cfg:     cfg,
		session: sess,
		client:  client,
		theme:   views.NewTheme(cfg.UI.Color, c.App.Writer),
		out:     c.App.Writer,
		closer:  closer,
	}, nil
}

// withRuntime wraps an action so it receives a ready runtime.
func withRuntime(action func(c *cli.Context, rt *runtime) error) cli.ActionFunc {
	return func(c *cli.Context) error {
		rt, err := newRuntime(c)
		if err != nil {
			return err
		}
		defer rt.Close()
		return action(c, rt)
	}
}
