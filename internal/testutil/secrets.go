package testutil

import (
	"dotkeep/internal/dot"
	"dotkeep/internal/secrets"
)

// NewTestSecrets creates a reversible, deterministic secrets provider for
// testing.
func NewTestSecrets() dot.SecretsProvider {
	return secrets.NewTestProvider()
}
