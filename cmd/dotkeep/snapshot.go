package main

import (
	"errors"
	"fmt"

	"dotkeep/internal/app"
	"dotkeep/internal/config"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Create, list and restore point-in-time captures",
}

var snapshotCreateCmd = &cobra.Command{
	Use:   "create [MESSAGE]",
	Short: "Capture the tracked files into a new snapshot",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		force, _ := cmd.Flags().GetBool("force")
		message := ""
		if len(args) > 0 {
			message = args[0]
		}

		a, err := newApp("snapshot.create")
		if err != nil {
			return err
		}
		defer a.Close()

		info, skipped, err := a.CreateSnapshot(cmd.Context(), message, force)
		if errors.Is(err, app.ErrNoChanges) {
			fmt.Println("No changes since the last capture; nothing to do.")
			return nil
		}
		if err != nil {
			return err
		}

		for _, s := range skipped {
			fmt.Printf("skipped %s: %s\n", s.Path, s.Reason)
		}
		fmt.Printf("Snapshot %s: %d file(s), %s.\n",
			info.ID, info.FileCount, humanize.Bytes(uint64(info.TotalBytes)))
		return nil
	},
}

var snapshotListCmd = &cobra.Command{
	Use:   "list",
	Short: "List snapshots, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("snapshot.list")
		if err != nil {
			return err
		}
		defer a.Close()

		infos, err := a.Snapshots()
		if err != nil {
			return err
		}
		if len(infos) == 0 {
			fmt.Println("No snapshots yet.")
			return nil
		}
		for _, s := range infos {
			line := fmt.Sprintf("%s  %-14s  %3d file(s)  %8s",
				s.ID, humanize.Time(s.CreatedAt), s.FileCount, humanize.Bytes(uint64(s.TotalBytes)))
			if s.Message != "" {
				line += "  " + s.Message
			}
			fmt.Println(line)
		}
		return nil
	},
}

var snapshotRollbackCmd = &cobra.Command{
	Use:   "rollback ID",
	Short: "Make a snapshot's capture the active one",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("snapshot.rollback")
		if err != nil {
			return err
		}
		defer a.Close()

		m, err := a.Rollback(args[0])
		if err != nil {
			return err
		}
		fmt.Printf("Rolled back to %s: %d file(s) captured.\n", args[0], len(m.Entries))
		fmt.Println("Run 'dotkeep apply' to materialize them.")
		return nil
	},
}

var snapshotDeleteCmd = &cobra.Command{
	Use:   "delete ID",
	Short: "Delete one snapshot",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("snapshot.delete")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.DeleteSnapshot(args[0]); err != nil {
			return err
		}
		fmt.Printf("Deleted snapshot %s.\n", args[0])
		return nil
	},
}

var snapshotPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete snapshots outside the retention criteria",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("snapshot.prune")
		if err != nil {
			return err
		}
		defer a.Close()

		ret, err := a.Retention()
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("keep-count") {
			ret.KeepCount, _ = cmd.Flags().GetInt("keep-count")
		}
		if cmd.Flags().Changed("keep-age") {
			s, _ := cmd.Flags().GetString("keep-age")
			ret.KeepAge, err = config.ParseKeepAge(s)
			if err != nil {
				return err
			}
		}
		if cmd.Flags().Changed("keep-size") {
			s, _ := cmd.Flags().GetString("keep-size")
			n, err := humanize.ParseBytes(s)
			if err != nil {
				return fmt.Errorf("invalid keep-size %q: %w", s, err)
			}
			ret.KeepSize = int64(n)
		}
		if !ret.Configured() {
			return fmt.Errorf("no retention configured; set [snapshots] in the config or pass --keep-count, --keep-age or --keep-size")
		}

		result, err := a.PruneSnapshots(ret)
		if err != nil {
			return err
		}
		for _, id := range result.Removed {
			fmt.Printf("removed %s\n", id)
		}
		fmt.Printf("Kept %d snapshot(s), freed %s.\n", result.Kept, humanize.Bytes(uint64(result.BytesFreed)))
		return nil
	},
}

func init() {
	snapshotCreateCmd.Flags().Bool("force", false, "Capture even when nothing changed since the last snapshot")
	snapshotPruneCmd.Flags().Int("keep-count", 0, "Keep the newest N snapshots")
	snapshotPruneCmd.Flags().String("keep-age", "", "Keep snapshots younger than this (e.g. 30d)")
	snapshotPruneCmd.Flags().String("keep-size", "", "Keep the newest snapshots up to this total size (e.g. 1 GB)")

	snapshotCmd.AddCommand(snapshotCreateCmd)
	snapshotCmd.AddCommand(snapshotListCmd)
	snapshotCmd.AddCommand(snapshotRollbackCmd)
	snapshotCmd.AddCommand(snapshotDeleteCmd)
	snapshotCmd.AddCommand(snapshotPruneCmd)

	rootCmd.AddCommand(snapshotCmd)
}
