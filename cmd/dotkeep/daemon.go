package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Watch tracked files and snapshot on change",
}

var daemonStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Run the watcher in the foreground",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("daemon.start")
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		fmt.Printf("Watching profile %s (pid %d); Ctrl-C to stop.\n", a.Profile(), os.Getpid())
		return a.RunDaemon(ctx)
	},
}

var daemonStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Signal a running daemon to stop",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("daemon.stop")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.StopDaemon(); err != nil {
			return err
		}
		fmt.Println("Daemon signalled to stop.")
		return nil
	},
}

var daemonStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Report whether the daemon is running",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("daemon.status")
		if err != nil {
			return err
		}
		defer a.Close()

		pid, running := a.DaemonStatus()
		if running {
			fmt.Printf("Daemon running (pid %d).\n", pid)
		} else {
			fmt.Println("Daemon not running.")
		}
		return nil
	},
}

func init() {
	daemonCmd.AddCommand(daemonStartCmd)
	daemonCmd.AddCommand(daemonStopCmd)
	daemonCmd.AddCommand(daemonStatusCmd)

	rootCmd.AddCommand(daemonCmd)
}
