package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/chzyer/readline"
	"github.com/urfave/cli/v2"

	"github.com/threadboard/internal/shell"
	"github.com/threadboard/internal/views"
)

func credentialFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "username",
			Aliases: []string{"u"},
			Usage:   "Account name (prompted when omitted)",
			EnvVars: []string{"THREADBOARD_USERNAME"},
		},
		&cli.StringFlag{
			Name:    "password",
			Aliases: []string{"p"},
			Usage:   "Password (prompted without echo when omitted)",
			EnvVars: []string{"THREADBOARD_PASSWORD"},
		},
	}
}

// LoginCommand returns the login command
func LoginCommand() *cli.Command {
	return &cli.Command{
		Name:   "login",
		Usage:  "Log in and store the credential",
		Flags:  credentialFlags(),
		Action: withRuntime(func(c *cli.Context, rt *runtime) error { return runAuth(c, rt, views.LoginMode) }),
	}
}

// RegisterCommand returns the register command
func RegisterCommand() *cli.Command {
	return &cli.Command{
		Name:   "register",
		Usage:  "Create an account (does not log in)",
		Flags:  credentialFlags(),
		Action: withRuntime(func(c *cli.Context, rt *runtime) error { return runAuth(c, rt, views.RegisterMode) }),
	}
}

// LogoutCommand returns the logout command
func LogoutCommand() *cli.Command {
	return &cli.Command{
		Name:  "logout",
		Usage: "Forget the stored credential",
		Action: withRuntime(func(c *cli.Context, rt *runtime) error {
			if err := rt.session.Clear(); err != nil {
				return fmt.Errorf("failed to clear credential: %w", err)
			}
			fmt.Fprintln(rt.out, "Logged out.")
			return nil
		}),
	}
}

// WhoamiCommand returns the whoami command
func WhoamiCommand() *cli.Command {
	return &cli.Command{
		Name:  "whoami",
		Usage: "Show the identity carried by the stored credential",
		Action: withRuntime(func(c *cli.Context, rt *runtime) error {
			fmt.Fprintln(rt.out, shell.Whoami(rt.session))
			return nil
		}),
	}
}

func runAuth(c *cli.Context, rt *runtime, mode views.AuthMode) error {
	username, password, err := readCredentials(c)
	if err != nil {
		return err
	}

	form := views.NewAuthView(rt.client, rt.session)
	form.SetMode(mode)
	if err := form.Submit(c.Context, username, password); err != nil {
		if msg := form.Message(); msg != "" && msg != "Error" {
			return errors.New(msg)
		}
		return err
	}
	fmt.Fprintln(rt.out, form.Message())
	return nil
}

// readCredentials takes flags first and prompts for whatever is missing.
func readCredentials(c *cli.Context) (string, string, error) {
	username := strings.TrimSpace(c.String("username"))
	password := c.String("password")
	if username != "" && password != "" {
		return username, password, nil
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "Username: ",
		InterruptPrompt: "^C",
		Stdout:          c.App.Writer,
	})
	if err != nil {
		return "", "", fmt.Errorf("failed to initialize prompt: %w", err)
	}
	defer rl.Close()

	if username == "" {
		line, err := rl.Readline()
		if err != nil {
			return "", "", promptError(err)
		}
		username = strings.TrimSpace(line)
	}
	if password == "" {
		pw, err := rl.ReadPassword("Password: ")
		if err != nil {
			return "", "", promptError(err)
		}
		password = string(pw)
	}
	return username, password, nil
}

func promptError(err error) error {
	if errors.Is(err, readline.ErrInterrupt) {
		return errors.New("cancelled")
	}
	return fmt.Errorf("failed to read input: %w", err)
}
