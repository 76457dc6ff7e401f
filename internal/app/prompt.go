package app

import (
	"fmt"
	"os"

	"golang.org/x/term"
)

// AskPassphrase supplies the passphrase for unlocking the identity file.
// The DOTKEEP_PASSPHRASE environment variable wins when set, so scripts and
// the daemon can run unattended; interactive runs prompt on the terminal
// with echo disabled.
func AskPassphrase() (string, error) {
	if p := os.Getenv("DOTKEEP_PASSPHRASE"); p != "" {
		return p, nil
	}
	return readPassphrase("passphrase: ")
}

// AskNewPassphrase prompts twice for a fresh passphrase and requires both
// entries to match. Used when generating a new identity.
func AskNewPassphrase() (string, error) {
	if p := os.Getenv("DOTKEEP_PASSPHRASE"); p != "" {
		return p, nil
	}
	first, err := readPassphrase("new passphrase: ")
	if err != nil {
		return "", err
	}
	second, err := readPassphrase("repeat passphrase: ")
	if err != nil {
		return "", err
	}
	if first != second {
		return "", fmt.Errorf("passphrases do not match")
	}
	return first, nil
}

// readPassphrase prompts on stderr and reads from the terminal without
// echoing. Non-interactive runs fail instead of blocking on a read that can
// never be answered.
func readPassphrase(prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", fmt.Errorf("stdin is not a terminal, set DOTKEEP_PASSPHRASE to run unattended")
	}
	fmt.Fprint(os.Stderr, prompt)
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading passphrase: %w", err)
	}
	return string(b), nil
}
