package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/thraizz/battlescene/internal/battle"
	"github.com/thraizz/battlescene/internal/layout"
)

func resolveCmd() *cobra.Command {
	var local string
	cmd := &cobra.Command{
		Use:   "resolve <snapshot.json>",
		Short: "Print the coordinates every entity of a snapshot resolves to",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResolve(cmd, args[0], local)
		},
	}
	cmd.Flags().StringVar(&local, "local", "", "local player id (defaults to the snapshot's, then the config's)")
	return cmd
}

func runResolve(cmd *cobra.Command, path, local string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read snapshot: %w", err)
	}
	snap, err := battle.DecodeSnapshot(data)
	if err != nil {
		return err
	}

	if local == "" {
		local = snap.LocalPlayerID
	}
	if local == "" {
		local = cfg.Server.LocalPlayerID
	}

	placements := layout.NewResolver(cfg.Layout).ResolveAll(snap.Entities, local)

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tOWNER\tLOCATION\tX\tY\tVISIBLE\tBADGE\tNOTE")
	fallbacks := 0
	for _, e := range snap.Entities {
		p := placements[e.ID]
		note := ""
		if p.Fallback {
			fallbacks++
			note = "fallback: " + p.Reason
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%.1f\t%.1f\t%t\t%d\t%s\n",
			e.ID, e.OwnerID, e.Location, p.Position.X, p.Position.Y, p.Visible, p.Badge, note)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%d entities, %d fallback\n", len(snap.Entities), fallbacks)
	return nil
}
