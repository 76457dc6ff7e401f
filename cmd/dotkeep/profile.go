package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Manage named profiles",
}

var profileListCmd = &cobra.Command{
	Use:   "list",
	Short: "List profiles, the active one marked with *",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("profile.list")
		if err != nil {
			return err
		}
		defer a.Close()

		names, err := a.ListProfiles()
		if err != nil {
			return err
		}
		for _, name := range names {
			marker := " "
			if name == a.Profile() {
				marker = "*"
			}
			fmt.Printf("%s %s\n", marker, name)
		}
		return nil
	},
}

var profileCreateCmd = &cobra.Command{
	Use:   "create NAME",
	Short: "Create a new empty profile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("profile.create")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.CreateProfile(args[0]); err != nil {
			return err
		}
		fmt.Printf("Created profile %s; switch to it with 'dotkeep profile switch %s'.\n", args[0], args[0])
		return nil
	},
}

var profileSwitchCmd = &cobra.Command{
	Use:   "switch NAME",
	Short: "Make a profile the active one",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("profile.switch")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.SwitchProfile(args[0]); err != nil {
			return err
		}
		fmt.Printf("Switched to profile %s.\n", args[0])
		return nil
	},
}

var profileRemoveCmd = &cobra.Command{
	Use:   "remove NAME",
	Short: "Delete a profile and everything it tracks",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("profile.remove")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.RemoveProfile(args[0]); err != nil {
			return err
		}
		fmt.Printf("Removed profile %s.\n", args[0])
		return nil
	},
}

func init() {
	profileCmd.AddCommand(profileListCmd)
	profileCmd.AddCommand(profileCreateCmd)
	profileCmd.AddCommand(profileSwitchCmd)
	profileCmd.AddCommand(profileRemoveCmd)

	rootCmd.AddCommand(profileCmd)
}
