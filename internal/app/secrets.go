package app

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"dotkeep/internal/dot"
)

const encryptedSuffix = ".age"

// SecretsConfigured reports whether an identity has been generated.
func (a *App) SecretsConfigured() bool {
	return a.secrets.IsConfigured()
}

// SetupSecrets generates a fresh identity protected by the given
// passphrase. Refuses to replace an existing identity.
func (a *App) SetupSecrets(passphrase string) error {
	if err := a.persist(); err != nil {
		return err
	}

	if err := a.secrets.Setup(passphrase); err != nil {
		return a.fail(err)
	}
	a.note("identity generated")
	return nil
}

// EncryptFile encrypts the file at path and writes the ciphertext beside it
// with an .age suffix. The plaintext file is left in place; removing it is
// the user's call.
func (a *App) EncryptFile(path string) (string, error) {
	if err := a.persist(); err != nil {
		return "", err
	}

	abs := dot.ExpandHome(a.home, path)
	plain, err := os.ReadFile(abs)
	if err != nil {
		return "", a.fail(fmt.Errorf("reading %s: %w", path, err))
	}

	cipher, err := a.secrets.Encrypt(plain)
	if err != nil {
		return "", a.fail(fmt.Errorf("encrypting %s: %w", path, err))
	}

	out := abs + encryptedSuffix
	if err := dot.WriteFileAtomic(out, cipher, 0600); err != nil {
		return "", a.fail(fmt.Errorf("writing %s: %w", out, err))
	}
	a.logger.Info("encrypted", "path", path, "out", out)
	a.note("encrypted %s", path)
	return out, nil
}

// DecryptFile decrypts the .age file at path and writes the plaintext
// beside it, mode 0600. The ciphertext file is left in place.
func (a *App) DecryptFile(path string) (string, error) {
	if err := a.persist(); err != nil {
		return "", err
	}

	if !strings.HasSuffix(path, encryptedSuffix) {
		return "", a.fail(fmt.Errorf("not an encrypted file (expected %s suffix): %s", encryptedSuffix, path))
	}

	abs := dot.ExpandHome(a.home, path)
	cipher, err := os.ReadFile(abs)
	if err != nil {
		return "", a.fail(fmt.Errorf("reading %s: %w", path, err))
	}

	plain, err := a.secrets.Decrypt(cipher)
	if err != nil {
		return "", a.fail(fmt.Errorf("decrypting %s: %w", path, err))
	}

	out := strings.TrimSuffix(abs, encryptedSuffix)
	if err := dot.WriteFileAtomic(out, plain, 0600); err != nil {
		return "", a.fail(fmt.Errorf("writing %s: %w", out, err))
	}
	a.logger.Info("decrypted", "path", path, "out", out)
	a.note("decrypted %s", path)
	return out, nil
}

// EditFile decrypts the .age file at path into a private temp file, opens
// $EDITOR on it, and re-encrypts the result. The temp file is removed on
// every path out of this function, including editor failure.
func (a *App) EditFile(ctx context.Context, path string) error {
	if err := a.persist(); err != nil {
		return err
	}

	if !strings.HasSuffix(path, encryptedSuffix) {
		return a.fail(fmt.Errorf("not an encrypted file (expected %s suffix): %s", encryptedSuffix, path))
	}

	abs := dot.ExpandHome(a.home, path)
	cipher, err := os.ReadFile(abs)
	if err != nil {
		return a.fail(fmt.Errorf("reading %s: %w", path, err))
	}
	plain, err := a.secrets.Decrypt(cipher)
	if err != nil {
		return a.fail(fmt.Errorf("decrypting %s: %w", path, err))
	}

	// Keep the original extension so editors pick the right syntax mode.
	ext := filepath.Ext(strings.TrimSuffix(filepath.Base(abs), encryptedSuffix))
	tmp, err := os.CreateTemp("", "dotkeep-edit-*"+ext)
	if err != nil {
		return a.fail(fmt.Errorf("creating temp file: %w", err))
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(plain); err != nil {
		tmp.Close()
		return a.fail(fmt.Errorf("writing temp file: %w", err))
	}
	if err := tmp.Close(); err != nil {
		return a.fail(fmt.Errorf("closing temp file: %w", err))
	}

	editor := os.Getenv("EDITOR")
	if editor == "" {
		editor = "vi"
	}
	cmd := exec.CommandContext(ctx, "sh", "-c", fmt.Sprintf("%s %q", editor, tmpPath))
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return a.fail(fmt.Errorf("running editor %s: %w", editor, err))
	}

	edited, err := os.ReadFile(tmpPath)
	if err != nil {
		return a.fail(fmt.Errorf("reading edited file: %w", err))
	}
	if bytes.Equal(edited, plain) {
		a.logger.Info("edit left content unchanged", "path", path)
		a.note("unchanged %s", path)
		return nil
	}

	newCipher, err := a.secrets.Encrypt(edited)
	if err != nil {
		return a.fail(fmt.Errorf("re-encrypting %s: %w", path, err))
	}
	if err := dot.WriteFileAtomic(abs, newCipher, 0600); err != nil {
		return a.fail(fmt.Errorf("writing %s: %w", path, err))
	}
	a.logger.Info("re-encrypted after edit", "path", path)
	a.note("edited %s", path)
	return nil
}
