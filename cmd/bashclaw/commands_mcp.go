package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/djun/bashclaw/internal/bootstrap"
)

// buildMCPCmd runs the MCP bridge over this process's own
// stdin/stdout, the shape an MCP host (editor, another agent) expects to
// launch bashclaw as a subprocess.
func buildMCPCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Run the MCP stdio bridge, exposing the curated tool subset",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := bootstrap.Load(configPath)
			if err != nil {
				return fmt.Errorf("bashclaw mcp: %w", err)
			}
			return app.NewMCPServer().Serve(cmd.Context(), os.Stdin, os.Stdout)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to the bashclaw JSON config file")
	return cmd
}
