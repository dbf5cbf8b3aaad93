package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/chzyer/readline"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/threadboard/internal/shell"
)

// ShellCommand returns the interactive shell command
func ShellCommand() *cli.Command {
	return &cli.Command{
		Name:   "shell",
		Usage:  "Start an interactive board session",
		Action: withRuntime(runShell),
	}
}

func runShell(c *cli.Context, rt *runtime) error {
	historyFile := ""
	if home, err := os.UserHomeDir(); err == nil {
		dir := filepath.Join(home, ".threadboard")
		if err := os.MkdirAll(dir, 0700); err == nil {
			historyFile = filepath.Join(dir, "history")
		}
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "threadboard> ",
		HistoryFile:     historyFile,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		Stdout:          rt.out,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize readline: %w", err)
	}
	defer rl.Close()

	sh := shell.New(rt.client, rt.session, rl.Stdout(), rt.theme, rl)
	fmt.Fprintln(rl.Stdout(), "Type 'help' for commands, 'exit' to leave.")
	fmt.Fprintln(rl.Stdout(), shell.Whoami(rt.session))

	for {
		rl.SetPrompt(sh.Prompt())
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			fmt.Fprintln(rl.Stdout(), "Use 'exit' or 'quit' to exit the program.")
			continue
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		// Ctrl-C during a request cancels just that request.
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		err = sh.Execute(ctx, line)
		stop()
		if errors.Is(err, shell.ErrExit) {
			fmt.Fprintln(rl.Stdout(), "Exiting...")
			return nil
		}
		if err != nil {
			log.Debug().Err(err).Msg("Shell command failed")
			fmt.Fprintf(rl.Stdout(), "Error: %s\n", err)
		}
	}
}
