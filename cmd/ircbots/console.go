package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/dotsetgreg/ircbots/pkg/bot"
	"github.com/dotsetgreg/ircbots/pkg/config"
	"github.com/dotsetgreg/ircbots/pkg/logger"
)

// responder is the part of bot.Session the console talks to.
type responder interface {
	Nick() string
	Respond(ctx context.Context, speaker, text string) (string, error)
}

func newConsoleCommand(opts *globalOptions) *cobra.Command {
	var speaker string

	cmd := &cobra.Command{
		Use:   "console <config.yml>",
		Short: "Chat with a bot locally, without IRC",
		Long: strings.TrimSpace(`Start an interactive session against the bot's prompt, history and model.
Nothing is sent to IRC. Type "exit" or press Ctrl-D to leave.`),
		Example: strings.Join([]string{
			"  ircbots console bots/r2d2.yml",
			"  ircbots console --as luke bots/r2d2.yml",
		}, "\n"),
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(args[0])
			if err != nil {
				return err
			}
			completer, err := opts.registry().Get(cfg.LLMNode)
			if err != nil {
				return fmt.Errorf("%w: %v", config.ErrInvalidConfig, err)
			}
			s, err := bot.New(cfg, completer)
			if err != nil {
				return err
			}
			logger.InfoCF("console", "Console session started", map[string]interface{}{
				"nick":  cfg.Nick,
				"model": cfg.Model,
			})
			interactiveMode(cmd.Context(), s, speaker, cmd.OutOrStdout())
			return nil
		},
	}
	cmd.Flags().StringVar(&speaker, "as", "console", "Nick to speak as")
	return cmd
}

func interactiveMode(ctx context.Context, r responder, speaker string, out io.Writer) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          fmt.Sprintf("%s> ", speaker),
		HistoryFile:     filepath.Join(os.TempDir(), ".ircbots_history"),
		HistoryLimit:    100,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		fmt.Fprintf(out, "Error initializing readline: %v\n", err)
		fmt.Fprintln(out, "Falling back to simple input mode...")
		simpleInteractiveMode(ctx, r, speaker, os.Stdin, out)
		return
	}
	defer rl.Close()

	for {
		line, err := rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) || errors.Is(err, io.EOF) {
				fmt.Fprintln(out, "\nGoodbye!")
				return
			}
			fmt.Fprintf(out, "Error reading input: %v\n", err)
			continue
		}
		if !converse(ctx, r, speaker, line, out) {
			return
		}
	}
}

func simpleInteractiveMode(ctx context.Context, r responder, speaker string, in io.Reader, out io.Writer) {
	reader := bufio.NewReader(in)
	for {
		fmt.Fprintf(out, "%s> ", speaker)
		line, err := reader.ReadString('\n')
		if line != "" && !converse(ctx, r, speaker, line, out) {
			return
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				fmt.Fprintf(out, "Error reading input: %v\n", err)
			}
			fmt.Fprintln(out, "\nGoodbye!")
			return
		}
	}
}

// converse handles one typed line. It returns false when the user asked to
// leave or ctx is done.
func converse(ctx context.Context, r responder, speaker, line string, out io.Writer) bool {
	if ctx.Err() != nil {
		return false
	}
	input := strings.TrimSpace(line)
	switch input {
	case "":
		return true
	case "exit", "quit":
		fmt.Fprintln(out, "Goodbye!")
		return false
	}

	reply, err := r.Respond(ctx, speaker, input)
	if err != nil {
		logger.WarnCF("console", "Completion failed", map[string]interface{}{"error": err.Error()})
	}
	fmt.Fprintf(out, "\n<%s> %s\n\n", r.Nick(), reply)
	return ctx.Err() == nil
}
