package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent operations from the journal",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		a, err := newApp("history")
		if err != nil {
			return err
		}
		defer a.Close()

		runs, err := a.History(limit)
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			fmt.Println("No operations recorded yet.")
			return nil
		}

		now := time.Now()
		for _, r := range runs {
			fmt.Printf("%s  %-7s  %-16s  %-9s  %s\n",
				r.StartedAt.Local().Format("2006-01-02 15:04:05"),
				r.Status,
				r.Operation,
				r.Duration(now).Round(time.Millisecond),
				r.Detail)
		}
		return nil
	},
}

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check the repository for problems",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("doctor")
		if err != nil {
			return err
		}
		defer a.Close()

		failed := 0
		for _, c := range a.Doctor() {
			mark := "ok  "
			if !c.OK {
				mark = "FAIL"
				failed++
			}
			fmt.Printf("%s  %-10s  %s\n", mark, c.Name, c.Detail)
		}
		if failed > 0 {
			return fmt.Errorf("%d check(s) failed", failed)
		}
		return nil
	},
}

func init() {
	historyCmd.Flags().IntP("limit", "n", 20, "Maximum number of runs to show")

	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(doctorCmd)
}
