package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zyetaone/z-interact-sub000/internal/ledger"
	"github.com/zyetaone/z-interact-sub000/internal/models"
)

func newStatusCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show per-table lock status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "z-interact.yaml", "path to config file")
	return cmd
}

func runStatus(cmd *cobra.Command, configPath string) error {
	out := cmd.OutOrStdout()

	cfg, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}
	store := ledger.New(gormDB)

	images, err := store.SelectAll("")
	if err != nil {
		return err
	}

	// Latest row per table wins the displayed state.
	latest := make(map[string]models.Image)
	for _, img := range images {
		t := img.Table()
		if t == "" {
			continue
		}
		if cur, ok := latest[t]; !ok || img.UpdatedAt > cur.UpdatedAt {
			latest[t] = img
		}
	}

	locked := 0
	fmt.Fprintf(out, "Event: %s\n\n", cfg.Event.Name)
	for _, t := range cfg.Event.Tables {
		state := "-"
		if img, ok := latest[t.ID]; ok {
			state = img.Status
			if img.Status == models.StatusLocked {
				locked++
			}
		}
		fmt.Fprintf(out, "  table %-8s %-12s %s\n", t.ID, state, t.Persona)
	}
	fmt.Fprintf(out, "\n%d/%d tables locked\n", locked, len(cfg.Event.Tables))
	return nil
}
