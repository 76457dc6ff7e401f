package main

import (
	"fmt"
	"os"

	"dotkeep/internal/app"
	"dotkeep/internal/config"
	"dotkeep/internal/dot"
	"dotkeep/internal/profile"

	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newApp reads the config and creates an App. The caller must defer a.Close().
// operation identifies the CLI command being run (e.g. "apply", "snapshot.create").
func newApp(operation string) (*app.App, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.Load(defaults["config_path"])
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	a, err := app.New(cfg, operation)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}

	return a, nil
}

var rootCmd = &cobra.Command{
	Use:          "dotkeep",
	Short:        "Content-addressed dotfiles manager",
	SilenceUsage: true,
}

// init command
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize the dotkeep repository",
	RunE: func(cmd *cobra.Command, args []string) error {
		force, _ := cmd.Flags().GetBool("force")

		defaults, err := app.GetDefaults()
		if err != nil {
			return err
		}

		cfg := config.Default()
		if force {
			err = config.Save(defaults["config_path"], cfg)
		} else {
			err = config.Init(defaults["config_path"], cfg)
		}
		if err != nil {
			return err
		}

		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("cannot determine home directory: %w", err)
		}
		repoDir := dot.ExpandHome(home, cfg.General.RepoDir)
		profiles := profile.NewManager(repoDir, dot.NewNopLogger())
		if err := profiles.Switch(profile.DefaultName); err != nil {
			return err
		}

		fmt.Printf("Initialized dotkeep repository at %s\n", repoDir)
		fmt.Printf("Config written to %s\n", defaults["config_path"])
		fmt.Println("Next: review the [scan] section, then run 'dotkeep discover'.")
		return nil
	},
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return err
		}

		cfg, err := config.Load(defaults["config_path"])
		if err != nil {
			return err
		}

		fmt.Printf("# %s\n", defaults["config_path"])
		m := &config.Manager{}
		return m.Write(os.Stdout, cfg)
	},
}

func init() {
	initCmd.Flags().Bool("force", false, "Overwrite an existing config file")
	configCmd.AddCommand(configShowCmd)

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(configCmd)
}
