// Package main provides the entry point for the bebop CLI.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command for bebop.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bebop",
		Short: "Terminal client for the Gemini protocol",
		Long: `bebop is a terminal client for the Gemini protocol.

Server certificates are trusted on first use and pinned in a local
database; a changed certificate is refused until you decide what to do
with it. Gopher, Finger and local files are supported as well.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags that apply to all commands
	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")
	cmd.PersistentFlags().StringP("config", "c", "",
		"Configuration file path (default: .bebop.yaml in current directory, XDG config or home directory)")
	cmd.PersistentFlags().Bool("ephemeral", false,
		"Keep certificate pins and identities in memory only")

	// Add subcommands
	cmd.AddCommand(NewFetchCmd())
	cmd.AddCommand(NewBrowseCmd())
	cmd.AddCommand(NewTrustCmd())
	cmd.AddCommand(NewIdentityCmd())
	cmd.AddCommand(NewInitCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		if hint := errorHint(err); hint != "" {
			fmt.Fprintln(os.Stderr, hint)
		}
		os.Exit(1)
	}
}
