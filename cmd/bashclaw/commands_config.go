package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/djun/bashclaw/internal/config"
)

// buildConfigCmd is the thin validate/pretty-print wrap.
func buildConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Validate and print the bashclaw JSON config file",
	}
	cmd.AddCommand(buildConfigValidateCmd(), buildConfigPrintCmd())
	return cmd
}

func buildConfigValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <path>",
		Short: "Parse the config file and report whether it is well-formed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := config.Load(args[0]); err != nil {
				return fmt.Errorf("invalid config: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "ok")
			return nil
		},
	}
}

func buildConfigPrintCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "print <path>",
		Short: "Parse the config file and print its resolved shape as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			file, err := config.Load(args[0])
			if err != nil {
				return fmt.Errorf("invalid config: %w", err)
			}
			encoded, err := json.MarshalIndent(file, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(encoded))
			return nil
		},
	}
}
