package daemon

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"
)

// ErrAlreadyRunning is returned when starting a daemon while another
// instance holds the PID file.
var ErrAlreadyRunning = errors.New("daemon already running")

func writePIDFile(path string) error {
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0644)
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("parsing pid file: %w", err)
	}
	return pid, nil
}

func removePIDFile(path string) error {
	return os.Remove(path)
}

// Running reports the PID recorded at pidPath and whether that process is
// alive. A missing, unreadable, or stale PID file counts as not running.
func Running(pidPath string) (int, bool) {
	pid, err := readPIDFile(pidPath)
	if err != nil {
		return 0, false
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return 0, false
	}
	// Signal 0 probes for existence without touching the process.
	return pid, process.Signal(syscall.Signal(0)) == nil
}

// Stop signals the running daemon to exit.
func Stop(pidPath string) error {
	pid, running := Running(pidPath)
	if !running {
		return fmt.Errorf("daemon is not running")
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	if err := process.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("stopping daemon (pid %d): %w", pid, err)
	}
	return nil
}
