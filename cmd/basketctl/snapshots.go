package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/dvloznov/basket-export/internal/contract"
	"github.com/dvloznov/basket-export/internal/domain"
	"github.com/dvloznov/basket-export/internal/ledger"
	"github.com/dvloznov/basket-export/internal/ledger/sqlite"
)

func snapshotsCmd(g *globalFlags) *cobra.Command {
	var (
		version string
		jsonOut bool
	)

	cmd := &cobra.Command{
		Use:   "snapshots",
		Short: "Inspect the export snapshot ledger",
	}
	cmd.PersistentFlags().StringVar(&version, "contract-version", contract.V1, "Contract version to inspect")
	cmd.PersistentFlags().BoolVarP(&jsonOut, "json", "j", false, "Output as JSON")

	openLedger := func() (ledger.Store, error) {
		cfg, err := g.loadConfig()
		if err != nil {
			return nil, err
		}
		if cfg.Output.LedgerPath == "" {
			return nil, errors.New("no ledger configured, set --ledger or BX_LEDGER_PATH")
		}
		return sqlite.Open(cfg.Output.LedgerPath)
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List snapshots in creation order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openLedger()
			if err != nil {
				return err
			}
			defer store.Close()

			snaps, err := store.List(cmd.Context(), version)
			if err != nil {
				return err
			}
			if jsonOut {
				if snaps == nil {
					snaps = []domain.ExportSnapshot{}
				}
				return writeJSON(cmd, snaps)
			}
			if len(snaps) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "No snapshots for %s\n", version)
				return nil
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tCREATED\tMODE\tSCOPE\tROWS\tCHECKSUM\tLOCATION")
			for _, s := range snaps {
				scope := s.Scope
				if scope == "" {
					scope = "all"
				}
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%d\t%.12s\t%s\n",
					s.SnapshotID, s.CreatedAt.Format(time.RFC3339Nano), s.Mode, scope, s.RowCount, s.ContentChecksum, s.Location)
			}
			return tw.Flush()
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "latest",
		Short: "Show the latest snapshot, the watermark of the next delta",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openLedger()
			if err != nil {
				return err
			}
			defer store.Close()

			snap, err := store.Latest(cmd.Context(), version)
			if errors.Is(err, ledger.ErrNoSnapshot) {
				fmt.Fprintf(cmd.OutOrStdout(), "No snapshots for %s\n", version)
				return nil
			}
			if err != nil {
				return err
			}
			if jsonOut {
				return writeJSON(cmd, snap)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Snapshot %d created %s (%s, %d rows)\n",
				snap.SnapshotID, snap.CreatedAt.Format(time.RFC3339Nano), snap.Mode, snap.RowCount)
			return nil
		},
	})

	return cmd
}

func writeJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
