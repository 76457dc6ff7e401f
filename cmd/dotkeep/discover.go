package main

import (
	"fmt"

	"dotkeep/internal/app"

	"github.com/spf13/cobra"
)

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Scan the home directory for dotfiles matching the configured patterns",
	RunE: func(cmd *cobra.Command, args []string) error {
		write, _ := cmd.Flags().GetBool("write")

		a, err := newApp("discover")
		if err != nil {
			return err
		}
		defer a.Close()

		found, err := a.Discover()
		if err != nil {
			return err
		}
		if len(found) == 0 {
			fmt.Println("Nothing found; check the [scan] section of the config.")
			return nil
		}

		newCount := 0
		paths := make([]string, 0, len(found))
		for _, d := range found {
			marker := " "
			if !d.InManifest {
				marker = "+"
				newCount++
			}
			fmt.Printf("%s %s (%s)\n", marker, d.Path, d.Mode)
			paths = append(paths, d.Path)
		}
		fmt.Printf("\n%d path(s) found, %d not yet captured.\n", len(found), newCount)

		if !write {
			if newCount > 0 {
				fmt.Println("Re-run with --write to pin them in the config, or run 'dotkeep snapshot create'.")
			}
			return nil
		}

		defaults, err := app.GetDefaults()
		if err != nil {
			return err
		}
		added, err := a.TrackPaths(defaults["config_path"], paths)
		if err != nil {
			return err
		}
		fmt.Printf("Pinned %d new path(s) in %s.\n", added, defaults["config_path"])
		return nil
	},
}

func init() {
	discoverCmd.Flags().Bool("write", false, "Pin every discovered path in the config's tracked list")

	rootCmd.AddCommand(discoverCmd)
}
