package cmd

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/threadboard/internal/devserver"
)

// DevServerCommand returns the devserver command
func DevServerCommand() *cli.Command {
	return &cli.Command{
		Name:  "devserver",
		Usage: "Run an in-memory board API for local development",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "port",
				Usage: "Listen port (overrides config)",
			},
			&cli.StringFlag{
				Name:    "secret",
				Usage:   "Token signing secret (overrides config)",
				EnvVars: []string{"THREADBOARD_DEVSERVER_SECRET"},
			},
			&cli.BoolFlag{
				Name:  "seed",
				Usage: "Add a legacy numeric post on start",
			},
		},
		Action: runDevServer,
	}
}

func runDevServer(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if cfg.Log.Level == "warn" && !c.IsSet("log-level") {
		cfg.Log.Level = "info"
	}
	closer, err := setupLogging(cfg)
	if err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}
	defer closer.Close()

	port := cfg.DevServer.Port
	if c.IsSet("port") {
		port = c.Int("port")
	}
	secret := cfg.DevServer.Secret
	if c.IsSet("secret") {
		secret = c.String("secret")
	}

	srv, err := devserver.New(devserver.Options{Secret: secret})
	if err != nil {
		return err
	}
	if c.Bool("seed") {
		id := srv.SeedLegacyPost("legacy", 5, devserver.LegacyOp{Op: "add", Right: 3}, devserver.LegacyOp{Op: "mul", Right: 2})
		log.Info().Str("post_id", id).Msg("Seeded legacy post")
	}

	addr := fmt.Sprintf(":%d", port)
	log.Info().Str("addr", addr).Msg("Devserver listening; API at /api")
	return srv.Run(c.Context, addr)
}
