package secrets

import (
	"bytes"
	"fmt"
)

// testHeader is prepended to data by TestProvider to make encrypted output
// clearly different from plaintext while remaining deterministic and
// reversible.
var testHeader = []byte("DKENC\x00\x00\x00")

// TestProvider is a simple, deterministic provider for testing. It prepends
// a fixed 8-byte header during encryption and strips it during decryption,
// so ciphertext digests differ from plaintext digests without any crypto.
type TestProvider struct {
	setupCalled bool
}

var _ Provider = (*TestProvider)(nil)

// NewTestProvider creates a new TestProvider.
func NewTestProvider() *TestProvider {
	return &TestProvider{}
}

func (p *TestProvider) Setup(passphrase string) error {
	p.setupCalled = true
	return nil
}

func (p *TestProvider) IsConfigured() bool {
	return true
}

func (p *TestProvider) Encrypt(plain []byte) ([]byte, error) {
	out := make([]byte, 0, len(testHeader)+len(plain))
	out = append(out, testHeader...)
	return append(out, plain...), nil
}

func (p *TestProvider) Decrypt(cipher []byte) ([]byte, error) {
	if len(cipher) < len(testHeader) || !bytes.Equal(cipher[:len(testHeader)], testHeader) {
		return nil, fmt.Errorf("invalid test encryption header")
	}
	return append([]byte(nil), cipher[len(testHeader):]...), nil
}
