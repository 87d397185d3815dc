package main

import (
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/ayusman/facewatch/internal/store"
)

var snapshotLimit int

var snapshotsCmd = &cobra.Command{
	Use:   "snapshots",
	Short: "Browse archived snapshots",
}

var snapshotsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List archived snapshots in capture order",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		snaps, err := st.Snapshots().List(snapshotLimit)
		if err != nil {
			return fmt.Errorf("failed to list snapshots: %w", err)
		}

		if len(snaps) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No snapshots found in database.")
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "ID\tINDEX\tSIZE\tFORMAT\tCAPTURED")
		fmt.Fprintln(w, "--\t-----\t----\t------\t--------")
		for _, s := range snaps {
			fmt.Fprintf(w, "%s\t%d\t%dx%d\t%s\t%s\n",
				s.ID, s.Index, s.Width, s.Height, s.Format, s.CapturedAt.Local().Format("2006-01-02 15:04:05"))
		}
		return w.Flush()
	},
}

var snapshotsExportCmd = &cobra.Command{
	Use:   "export <id> <file>",
	Short: "Write an archived snapshot's image to a file",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		snap, err := st.Snapshots().Get(args[0])
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("snapshot %s not found", args[0])
		}
		if err != nil {
			return err
		}

		if err := os.WriteFile(args[1], snap.Image, 0644); err != nil {
			return err
		}
		logger.Info("exported snapshot", "id", snap.ID, "file", args[1], "bytes", len(snap.Image))
		return nil
	},
}

var snapshotsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete an archived snapshot",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.Snapshots().Delete(args[0]); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("snapshot %s not found", args[0])
			}
			return err
		}
		return nil
	},
}

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List recorded detection sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		records, err := st.Sessions().List()
		if err != nil {
			return fmt.Errorf("failed to list sessions: %w", err)
		}

		if len(records) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No sessions recorded.")
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "ID\tSTARTED\tDURATION\tTICKS\tDISPATCHED\tDROPPED\tACCEPTED\tERRORS")
		for _, r := range records {
			duration := "running"
			if r.EndedAt != nil {
				duration = r.EndedAt.Sub(r.StartedAt).Round(time.Second).String()
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\t%d\t%d\n",
				r.ID, r.StartedAt.Local().Format("2006-01-02 15:04:05"), duration,
				r.Stats.Ticks, r.Stats.Dispatched, r.Stats.Dropped, r.Stats.Accepted, r.Stats.Errors)
		}
		return w.Flush()
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init-config",
	Short: "Write the effective configuration to the config file",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Save(configPath); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", configPath)
		return nil
	},
}

func init() {
	snapshotsListCmd.Flags().IntVar(&snapshotLimit, "limit", 0, "only list the most recent N snapshots")
	snapshotsCmd.AddCommand(snapshotsListCmd, snapshotsExportCmd, snapshotsDeleteCmd)
	rootCmd.AddCommand(snapshotsCmd, sessionsCmd, configInitCmd)
}
