package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

var configPath string

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "agentloop",
		Short:         "A minimal coding agent that reads files, writes files and runs shell commands",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to the config file (default ~/.config/agentloop/config.yaml)")

	rootCmd.AddCommand(
		getServeCommand(),
		getChatCommand(),
		getMCPCommand(),
		getAuditCommand(),
	)
	return rootCmd
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
