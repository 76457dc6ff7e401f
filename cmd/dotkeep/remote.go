package main

import (
	"fmt"

	"dotkeep/internal/dot"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var remoteCmd = &cobra.Command{
	Use:   "remote",
	Short: "Sync bundles with off-machine storage",
}

var remoteShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the configured remote",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("remote.show")
		if err != nil {
			return err
		}
		defer a.Close()

		rc := a.Config().Remote
		if rc.Kind == "" {
			fmt.Println("No remote configured; set [remote] in the config.")
			return nil
		}
		fmt.Printf("kind: %s\n", rc.Kind)
		switch rc.Kind {
		case "localfs":
			fmt.Printf("dir: %s\n", rc.Dir)
		case "s3":
			fmt.Printf("bucket: %s\n", rc.Bucket)
			if rc.Prefix != "" {
				fmt.Printf("prefix: %s\n", rc.Prefix)
			}
			if rc.Region != "" {
				fmt.Printf("region: %s\n", rc.Region)
			}
			if rc.Endpoint != "" {
				fmt.Printf("endpoint: %s\n", rc.Endpoint)
			}
		case "webdav":
			fmt.Printf("url: %s\n", rc.URL)
			if rc.Username != "" {
				fmt.Printf("username: %s\n", rc.Username)
			}
		}
		return nil
	},
}

var remotePushCmd = &cobra.Command{
	Use:   "push",
	Short: "Bundle the active profile and upload it",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("remote.push")
		if err != nil {
			return err
		}
		defer a.Close()

		name, size, err := a.PushRemote(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("Pushed %s (%s).\n", name, humanize.Bytes(uint64(size)))
		return nil
	},
}

var remotePullCmd = &cobra.Command{
	Use:   "pull",
	Short: "Download the latest bundle into the active profile",
	RunE: func(cmd *cobra.Command, args []string) error {
		applyAfter, _ := cmd.Flags().GetBool("apply")
		force, _ := cmd.Flags().GetBool("force")
		outside, _ := cmd.Flags().GetBool("allow-outside-home")

		a, err := newApp("remote.pull")
		if err != nil {
			return err
		}
		defer a.Close()

		name, meta, err := a.PullRemote(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("Pulled %s: %d file(s), %s.\n",
			name, meta.FileCount, humanize.Bytes(uint64(meta.TotalBytes)))

		if !applyAfter {
			fmt.Println("Run 'dotkeep apply' to materialize the pulled files.")
			return nil
		}

		opts := dot.ApplyOptions{
			Backup:           a.Config().General.Backup,
			AllowOutsideHome: outside,
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

func init() {
	remotePullCmd.Flags().Bool("apply", false, "Apply the pulled files immediately")
	remotePullCmd.Flags().Bool("force", false, "With --apply, overwrite locally modified destinations")
	remotePullCmd.Flags().Bool("allow-outside-home", false, "With --apply, permit entries outside the home directory")

	remoteCmd.AddCommand(remoteShowCmd)
	remoteCmd.AddCommand(remotePushCmd)
	remoteCmd.AddCommand(remotePullCmd)

	rootCmd.AddCommand(remoteCmd)
}
