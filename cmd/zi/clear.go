package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/zyetaone/z-interact-sub000/internal/ledger"
)

func newClearCmd() *cobra.Command {
	var (
		configPath string
		tableID    string
		yes        bool
	)

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete ledger rows (the administrative clear)",
		Long:  "Permanently removes image records, optionally limited to one table. This is the only way rows leave the ledger.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runClear(cmd, configPath, tableID, yes)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "z-interact.yaml", "path to config file")
	cmd.Flags().StringVarP(&tableID, "table", "t", "", "only clear this table")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip the confirmation prompt")
	return cmd
}

func runClear(cmd *cobra.Command, configPath, tableID string, yes bool) error {
	out := cmd.OutOrStdout()

	_, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}
	store := ledger.New(gormDB)

	if !yes {
		// The guard and the prompt must agree on the input stream: an
		// injected reader counts as interactive, the real stdin only when
		// it is a terminal.
		if f, ok := cmd.InOrStdin().(*os.File); ok && !term.IsTerminal(int(f.Fd())) {
			return fmt.Errorf("clear: refusing to delete without --yes on a non-interactive stdin")
		}
		scope := "ALL tables"
		if tableID != "" {
			scope = fmt.Sprintf("table %q", tableID)
		}
		fmt.Fprintf(out, "This permanently deletes image records for %s. Continue? [y/N] ", scope)
		line, _ := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
		if answer := strings.ToLower(strings.TrimSpace(line)); answer != "y" && answer != "yes" {
			fmt.Fprintln(out, "Aborted.")
			return nil
		}
	}

	deleted, err := store.DeleteAll(tableID)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Deleted %d record(s)\n", deleted)
	return nil
}
