// Package secrets implements encryption of tracked entries, built on
// filippo.io/age with X25519 keys. The recipient (public key) is stored in
// plaintext; the identity (private key) is encrypted with the user's
// passphrase using age's scrypt-based passphrase encryption.
package secrets

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"filippo.io/age"

	"dotkeep/internal/config"
	"dotkeep/internal/dot"
)

// ErrNoIdentity indicates the key files have not been generated yet.
var ErrNoIdentity = errors.New("secrets not initialized (run 'dotkeep secrets init' first)")

// ErrBadPassphrase indicates the identity file could not be unlocked with
// the supplied passphrase.
var ErrBadPassphrase = errors.New("wrong passphrase for identity file")

// PassphraseFunc supplies the passphrase when the identity is first needed.
// Encryption never triggers it; only decryption does.
type PassphraseFunc func() (string, error)

// Provider is the full surface the CLI manages: setup and status on top of
// the encrypt/decrypt pair the engine consumes.
type Provider interface {
	dot.SecretsProvider
	Setup(passphrase string) error
	IsConfigured() bool
}

// AgeProvider implements Provider using age X25519 encryption. Decryption
// unlocks the identity lazily and caches it for the life of the process, so
// the passphrase is asked for at most once per run.
type AgeProvider struct {
	recipientFile string
	keyFile       string
	passphrase    PassphraseFunc

	mu       sync.Mutex
	identity age.Identity
}

var _ Provider = (*AgeProvider)(nil)

// NewAgeProvider creates an AgeProvider from configuration. Key paths are
// expanded against home.
func NewAgeProvider(cfg config.SecretsConfig, home string, passphrase PassphraseFunc) *AgeProvider {
	return &AgeProvider{
		recipientFile: dot.ExpandHome(home, cfg.RecipientFile),
		keyFile:       dot.ExpandHome(home, cfg.KeyFile),
		passphrase:    passphrase,
	}
}

// Setup generates a new X25519 identity, stores the recipient in plaintext,
// and encrypts the identity with the passphrase.
func (p *AgeProvider) Setup(passphrase string) error {
	identity, err := age.GenerateX25519Identity()
	if err != nil {
		return fmt.Errorf("generating identity: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(p.recipientFile), 0700); err != nil {
		return fmt.Errorf("creating recipient directory: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(p.keyFile), 0700); err != nil {
		return fmt.Errorf("creating key directory: %w", err)
	}

	if err := os.WriteFile(p.recipientFile, []byte(identity.Recipient().String()+"\n"), 0644); err != nil {
		return fmt.Errorf("writing recipient file: %w", err)
	}

	keyFile, err := os.OpenFile(p.keyFile, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("creating identity file: %w", err)
	}
	defer keyFile.Close()

	recipient, err := age.NewScryptRecipient(passphrase)
	if err != nil {
		return fmt.Errorf("creating scrypt recipient: %w", err)
	}

	w, err := age.Encrypt(keyFile, recipient)
	if err != nil {
		return fmt.Errorf("creating encrypted writer: %w", err)
	}
	if _, err := io.WriteString(w, identity.String()+"\n"); err != nil {
		return fmt.Errorf("writing encrypted identity: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finalizing encrypted identity: %w", err)
	}

	// A fresh identity invalidates any cached unlock.
	p.mu.Lock()
	p.identity = nil
	p.mu.Unlock()

	return nil
}

// IsConfigured returns true if both key files exist.
func (p *AgeProvider) IsConfigured() bool {
	if _, err := os.Stat(p.recipientFile); err != nil {
		return false
	}
	if _, err := os.Stat(p.keyFile); err != nil {
		return false
	}
	return true
}

// Encrypt encrypts plain for the stored recipient. Only the public key is
// needed, so encryption never prompts for the passphrase.
func (p *AgeProvider) Encrypt(plain []byte) ([]byte, error) {
	recipient, err := p.loadRecipient()
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	w, err := age.Encrypt(&buf, recipient)
	if err != nil {
		return nil, fmt.Errorf("creating encrypted writer: %w", err)
	}
	if _, err := w.Write(plain); err != nil {
		return nil, fmt.Errorf("encrypting data: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("finalizing encryption: %w", err)
	}
	return buf.Bytes(), nil
}

// Decrypt decrypts cipher with the identity, unlocking it on first use.
// Plaintext exists only in the returned buffer.
func (p *AgeProvider) Decrypt(cipher []byte) ([]byte, error) {
	identity, err := p.unlock()
	if err != nil {
		return nil, err
	}

	r, err := age.Decrypt(bytes.NewReader(cipher), identity)
	if err != nil {
		return nil, fmt.Errorf("decrypting data: %w", err)
	}
	plain, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading decrypted data: %w", err)
	}
	return plain, nil
}

// loadRecipient reads the recipient file and parses it.
func (p *AgeProvider) loadRecipient() (age.Recipient, error) {
	data, err := os.ReadFile(p.recipientFile)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNoIdentity
		}
		return nil, fmt.Errorf("reading recipient file: %w", err)
	}

	recipients, err := age.ParseRecipients(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parsing recipient file: %w", err)
	}
	if len(recipients) == 0 {
		return nil, fmt.Errorf("no recipients found in %s", p.recipientFile)
	}
	return recipients[0], nil
}

// unlock decrypts the identity file with the passphrase and caches the
// result. Concurrent callers share one unlock.
func (p *AgeProvider) unlock() (age.Identity, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.identity != nil {
		return p.identity, nil
	}

	keyData, err := os.ReadFile(p.keyFile)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNoIdentity
		}
		return nil, fmt.Errorf("reading identity file: %w", err)
	}

	if p.passphrase == nil {
		return nil, fmt.Errorf("identity file is locked and no passphrase source is available")
	}
	passphrase, err := p.passphrase()
	if err != nil {
		return nil, fmt.Errorf("obtaining passphrase: %w", err)
	}

	scrypt, err := age.NewScryptIdentity(passphrase)
	if err != nil {
		return nil, fmt.Errorf("creating scrypt identity: %w", err)
	}
	r, err := age.Decrypt(bytes.NewReader(keyData), scrypt)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadPassphrase, err)
	}
	decrypted, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadPassphrase, err)
	}

	identities, err := age.ParseIdentities(bytes.NewReader(decrypted))
	if err != nil {
		return nil, fmt.Errorf("parsing identity file: %w", err)
	}
	if len(identities) == 0 {
		return nil, fmt.Errorf("no identities found in %s", p.keyFile)
	}

	p.identity = identities[0]
	return p.identity, nil
}
