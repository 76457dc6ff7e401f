package secrets

import (
	"bytes"
	"errors"
	"path/filepath"
	"testing"

	"dotkeep/internal/config"
)

func newTestAgeProvider(t *testing.T, passphrase string) *AgeProvider {
	t.Helper()
	dir := t.TempDir()
	cfg := config.SecretsConfig{
		KeyFile:       filepath.Join(dir, "identity.txt"),
		RecipientFile: filepath.Join(dir, "recipient.txt"),
	}
	return NewAgeProvider(cfg, dir, func() (string, error) { return passphrase, nil })
}

func TestAgeProvider_IsConfigured_BeforeSetup(t *testing.T) {
	t.Parallel()
	p := newTestAgeProvider(t, "pw")
	if p.IsConfigured() {
		t.Error("IsConfigured() = true before Setup, want false")
	}
}

func TestAgeProvider_Setup_IsConfigured(t *testing.T) {
	t.Parallel()
	p := newTestAgeProvider(t, "pw")

	if err := p.Setup("pw"); err != nil {
		t.Fatalf("Setup() error = %v", err)
	}

	if !p.IsConfigured() {
		t.Error("IsConfigured() = false after Setup, want true")
	}
}

func TestAgeProvider_EncryptDecryptRoundTrip(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input []byte
	}{
		{name: "simple text", input: []byte("export TOKEN=hunter2\n")},
		{name: "empty", input: []byte{}},
		{name: "binary data", input: []byte{0x00, 0xff, 0x01, 0xfe}},
		{name: "large data", input: bytes.Repeat([]byte("abcdef"), 10000)},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			p := newTestAgeProvider(t, "pw")
			if err := p.Setup("pw"); err != nil {
				t.Fatalf("Setup() error = %v", err)
			}

			cipher, err := p.Encrypt(tt.input)
			if err != nil {
				t.Fatalf("Encrypt() error = %v", err)
			}
			if len(tt.input) > 0 && bytes.Equal(cipher, tt.input) {
				t.Error("ciphertext is identical to plaintext")
			}

			plain, err := p.Decrypt(cipher)
			if err != nil {
				t.Fatalf("Decrypt() error = %v", err)
			}
			if !bytes.Equal(plain, tt.input) {
				t.Errorf("round-trip failed: got %d bytes, want %d bytes", len(plain), len(tt.input))
			}
		})
	}
}

func TestAgeProvider_DecryptWrongPassphrase(t *testing.T) {
	t.Parallel()

	p := newTestAgeProvider(t, "correct")
	if err := p.Setup("correct"); err != nil {
		t.Fatalf("Setup() error = %v", err)
	}
	cipher, err := p.Encrypt([]byte("secret"))
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}

	// Same key files, wrong passphrase.
	wrong := NewAgeProvider(config.SecretsConfig{
		KeyFile:       p.keyFile,
		RecipientFile: p.recipientFile,
	}, "", func() (string, error) { return "wrong", nil })

	_, err = wrong.Decrypt(cipher)
	if !errors.Is(err, ErrBadPassphrase) {
		t.Errorf("Decrypt() error = %v, want ErrBadPassphrase", err)
	}
}

func TestAgeProvider_EncryptBeforeSetup(t *testing.T) {
	t.Parallel()

	p := newTestAgeProvider(t, "pw")
	_, err := p.Encrypt([]byte("data"))
	if !errors.Is(err, ErrNoIdentity) {
		t.Errorf("Encrypt() error = %v, want ErrNoIdentity", err)
	}
}

func TestAgeProvider_DecryptBeforeSetup(t *testing.T) {
	t.Parallel()

	p := newTestAgeProvider(t, "pw")
	_, err := p.Decrypt([]byte("not age data"))
	if !errors.Is(err, ErrNoIdentity) {
		t.Errorf("Decrypt() error = %v, want ErrNoIdentity", err)
	}
}

func TestAgeProvider_PassphraseAskedOnce(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	cfg := config.SecretsConfig{
		KeyFile:       filepath.Join(dir, "identity.txt"),
		RecipientFile: filepath.Join(dir, "recipient.txt"),
	}
	calls := 0
	p := NewAgeProvider(cfg, dir, func() (string, error) {
		calls++
		return "pw", nil
	})
	if err := p.Setup("pw"); err != nil {
		t.Fatalf("Setup() error = %v", err)
	}

	cipher, err := p.Encrypt([]byte("one"))
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}
	for i := 0; i < 3; i++ {
		if _, err := p.Decrypt(cipher); err != nil {
			t.Fatalf("Decrypt() #%d error = %v", i, err)
		}
	}

	if calls != 1 {
		t.Errorf("passphrase func called %d times, want 1", calls)
	}
}
