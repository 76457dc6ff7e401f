package main

import (
	"fmt"

	"dotkeep/internal/dot"

	"github.com/spf13/cobra"
)

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Materialize the captured files onto the filesystem",
	RunE: func(cmd *cobra.Command, args []string) error {
		force, _ := cmd.Flags().GetBool("force")
		only, _ := cmd.Flags().GetStringArray("only")
		outside, _ := cmd.Flags().GetBool("allow-outside-home")

		a, err := newApp("apply")
		if err != nil {
			return err
		}
		defer a.Close()

		opts := dot.ApplyOptions{
			Backup:           a.Config().General.Backup,
			AllowOutsideHome: outside,
			Only:             only,
		}
		report, err := a.Apply(cmd.Context(), force, opts)
		if err != nil {
			return err
		}

		printReport(report)
		if n := report.Failed(); n > 0 {
			return fmt.Errorf("%d file(s) failed", n)
		}
		return nil
	},
}

func printReport(r *dot.ApplyReport) {
	for _, res := range r.Results {
		switch res.Action {
		case dot.ActionApplied:
			if res.BackupPath != "" {
				fmt.Printf("applied %s (backup %s)\n", res.Path, res.BackupPath)
			} else {
				fmt.Printf("applied %s\n", res.Path)
			}
		case dot.ActionFailed:
			fmt.Printf("failed  %s: %v\n", res.Path, res.Err)
		}
	}
	for _, h := range r.PostHooks {
		if h.Err != nil {
			fmt.Printf("post-apply hook failed: %s: %v\n", h.Command, h.Err)
		}
	}
	fmt.Printf("Applied %d, skipped %d, failed %d.\n", r.Applied(), r.Skipped(), r.Failed())
}

func init() {
	applyCmd.Flags().Bool("force", false, "Overwrite destinations that were modified since the last capture")
	applyCmd.Flags().StringArray("only", nil, "Restrict the run to this path (repeatable)")
	applyCmd.Flags().Bool("allow-outside-home", false, "Permit entries whose destination lies outside the home directory")

	rootCmd.AddCommand(applyCmd)
}
