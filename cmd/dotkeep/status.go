package main

import (
	"fmt"

	"dotkeep/internal/dot"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show paths that drifted since the last capture",
	RunE: func(cmd *cobra.Command, args []string) error {
		detailed, _ := cmd.Flags().GetBool("detailed")

		a, err := newApp("status")
		if err != nil {
			return err
		}
		defer a.Close()

		entries, err := a.Status()
		if err != nil {
			return err
		}

		s := dot.Summarize(entries)
		fmt.Printf("Profile %s: %s\n", a.Profile(), summaryLine(s))
		if !s.Changed() {
			return nil
		}
		fmt.Println()
		for _, e := range entries {
			if e.Status == dot.StatusIdentical {
				continue
			}
			printEntry(e, detailed)
		}
		return nil
	},
}

var diffCmd = &cobra.Command{
	Use:   "diff",
	Short: "List every tracked path with its classification",
	RunE: func(cmd *cobra.Command, args []string) error {
		detailed, _ := cmd.Flags().GetBool("detailed")

		a, err := newApp("diff")
		if err != nil {
			return err
		}
		defer a.Close()

		entries, err := a.Status()
		if err != nil {
			return err
		}

		for _, e := range entries {
			printEntry(e, detailed)
		}
		fmt.Printf("\n%s\n", summaryLine(dot.Summarize(entries)))
		return nil
	},
}

// statusMark is the one-column glyph for a classification.
func statusMark(s dot.Status) string {
	switch s {
	case dot.StatusModified:
		return "M"
	case dot.StatusNew:
		return "+"
	case dot.StatusMissing:
		return "-"
	case dot.StatusDecryptFailed:
		return "E"
	default:
		return " "
	}
}

func printEntry(e dot.DiffEntry, detailed bool) {
	fmt.Printf("%s %s\n", statusMark(e.Status), e.Path)
	if !detailed {
		return
	}
	fmt.Printf("    repo %s  live %s\n", orDash(e.RepoDigest.Short()), orDash(e.LiveDigest.Short()))
	if e.Detail != "" {
		fmt.Printf("    %s\n", e.Detail)
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func summaryLine(s dot.DiffSummary) string {
	return fmt.Sprintf("%d identical, %d modified, %d new, %d missing, %d decrypt-failed",
		s.Identical, s.Modified, s.New, s.Missing, s.DecryptFailed)
}

func init() {
	statusCmd.Flags().Bool("detailed", false, "Show the compared digests for each path")
	diffCmd.Flags().Bool("detailed", false, "Show the compared digests for each path")

	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(diffCmd)
}
