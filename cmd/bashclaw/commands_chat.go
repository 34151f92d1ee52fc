package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/djun/bashclaw/internal/bootstrap"
)

// buildChatCmd is the local CLI channel: a REPL that calls Runtime.Run
// directly, one sender id per process invocation.
func buildChatCmd() *cobra.Command {
	var (
		configPath string
		agentID    string
		sender     string
	)

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start a local REPL against one agent",
		Example: `  bashclaw chat
  bashclaw chat --agent coder --config bashclaw.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := bootstrap.Load(configPath)
			if err != nil {
				return fmt.Errorf("bashclaw chat: %w", err)
			}
			return runChatREPL(cmd.Context(), app, agentID, sender, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to the bashclaw JSON config file")
	cmd.Flags().StringVar(&agentID, "agent", "main", "Agent id to converse with")
	cmd.Flags().StringVar(&sender, "sender", "local", "Sender bucket for session scoping")

	return cmd
}

func runChatREPL(ctx context.Context, app *bootstrap.App, agentID, sender string, in io.Reader, out io.Writer) error {
	fmt.Fprintf(out, "bashclaw chat — agent %q, type \"exit\" to quit\n", agentID)
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			return nil
		}
		reply, err := app.Runtime.Run(ctx, agentID, line, "cli", sender)
		if err != nil {
			fmt.Fprintf(out, "error: %v\n", err)
			continue
		}
		fmt.Fprintln(out, reply)
	}
}
