// Package main is bashclaw's entry point: the integration glue that wires
// the agent runtime (internal/agent, internal/bootstrap) to its four
// channels — the embedded HTTP/WS API, the channel pollers, the local CLI
// REPL, and the MCP stdio bridge — without reimplementing any of their
// platform-specific plumbing. One root cobra.Command is built by
// buildRootCmd, structured JSON logging is installed as the process
// default before anything else runs, and subcommands are split one file
// per concern.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevelFromEnv(),
	})))

	root := buildRootCmd()
	if err := root.Execute(); err != nil {
		slog.Error("bashclaw: command failed", "error", err)
		os.Exit(1)
	}
}

// buildRootCmd assembles the command tree; split out from main so tests can
// exercise it without calling os.Exit.
func buildRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "bashclaw",
		Short:        "bashclaw - multi-channel AI assistant gateway",
		Long:         "bashclaw routes messages from chat platforms, an HTTP/WS API, a local CLI, and an MCP stdio bridge into a shared agent tool-loop runtime.",
		Version:      fmt.Sprintf("%s (%s)", version, commit),
		SilenceUsage: true,
	}
	root.AddCommand(
		buildServeCmd(),
		buildChatCmd(),
		buildMCPCmd(),
		buildConfigCmd(),
	)
	return root
}

// logLevelFromEnv maps LOG_LEVEL to a slog.Level; unrecognized
// or empty values default to info, and "silent" maps to a level above any
// record slog emits.
func logLevelFromEnv() slog.Level {
	switch os.Getenv("LOG_LEVEL") {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error", "fatal":
		return slog.LevelError
	case "silent":
		return slog.Level(100)
	default:
		return slog.LevelInfo
	}
}
