package secrets

import (
	"fmt"

	"dotkeep/internal/config"
)

// NewProviderFromConfig creates a Provider based on the configuration type.
func NewProviderFromConfig(cfg config.SecretsConfig, home string, passphrase PassphraseFunc) (Provider, error) {
	switch cfg.Type {
	case "age", "":
		return NewAgeProvider(cfg, home, passphrase), nil
	case "test":
		return NewTestProvider(), nil
	default:
		return nil, fmt.Errorf("unknown secrets type: %q", cfg.Type)
	}
}
