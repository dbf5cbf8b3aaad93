package cmd

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/threadboard/internal/config"
)

// ConfigCommand returns the config command
func ConfigCommand() *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "Manage configuration",
		Subcommands: []*cli.Command{
			{
				Name:  "init",
				Usage: "Initialize a new configuration file",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Output file path",
						Value:   "threadboard.toml",
					},
				},
				Action: runConfigInit,
			},
			{
				Name:   "validate",
				Usage:  "Validate the configuration file",
				Action: runConfigValidate,
			},
		},
	}
}

func runConfigInit(c *cli.Context) error {
	outputPath := c.String("output")

	if err := config.InitConfig(outputPath); err != nil {
		return fmt.Errorf("failed to initialize config: %w", err)
	}

	fmt.Fprintf(c.App.Writer, "Created configuration file at %s\n", outputPath)
	return nil
}

func runConfigValidate(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	fmt.Fprintln(c.App.Writer, "Configuration is valid")
	fmt.Fprintf(c.App.Writer, "  api url:   %s\n", cfg.API.URL)
	fmt.Fprintf(c.App.Writer, "  log level: %s\n", cfg.Log.Level)
	if cfg.API.Timeout > 0 || cfg.API.Retries > 0 || cfg.API.RateLimit > 0 {
		fmt.Fprintf(c.App.Writer, "  client:    timeout=%s retries=%d rate=%g/s\n", cfg.API.Timeout, cfg.API.Retries, cfg.API.RateLimit)
	}
	return nil
}
