package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/sammcj/agentloop/audit"
	"github.com/spf13/cobra"
)

var (
	auditRunID string
	auditLimit int
)

func getAuditCommand() *cobra.Command {
	auditCmd := &cobra.Command{
		Use:   "audit",
		Short: "Show recorded tool executions",
		Long: `Lists tool executions from the audit store. Recording is enabled with audit.enable in the config.

Example:
  agentloop audit --limit 50
  agentloop audit --run 1b4e28ba-2fa1-11d2-883f-0016d3cca427`,
		RunE: runAudit,
	}
	auditCmd.Flags().StringVar(&auditRunID, "run", "", "Show every execution of one run, in order")
	auditCmd.Flags().IntVar(&auditLimit, "limit", 20, "Number of recent executions to show")
	return auditCmd
}

func runAudit(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	if _, err := os.Stat(cfg.Audit.Path); err != nil {
		return fmt.Errorf("no audit store at %s (enable audit in the config): %w", cfg.Audit.Path, err)
	}

	store, err := audit.Open(cfg.Audit.Path)
	if err != nil {
		return err
	}
	defer store.Close()

	var entries []audit.Entry
	if auditRunID != "" {
		entries, err = store.ListRun(cmd.Context(), auditRunID)
	} else {
		entries, err = store.Recent(cmd.Context(), auditLimit)
	}
	if err != nil {
		return err
	}

	if len(entries) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No tool executions recorded.")
		return nil
	}

	failed := color.New(color.FgRed).SprintFunc()
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tRUN\tITER\tTOOL\tSTATUS\tDURATION")
	for _, e := range entries {
		status := "ok"
		if !e.OK {
			status = failed(e.ErrorKind)
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\t%s\n",
			e.CreatedAt.Local().Format("2006-01-02 15:04:05"),
			shortID(e.RunID), e.Iteration, e.Tool, status, e.Duration)
	}
	return w.Flush()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
