package secrets

import (
	"context"
	"fmt"
	"os"

	vault "github.com/hashicorp/vault/api"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var logger zerolog.Logger

func init() {
	logger = log.With().Str("component", "secrets").Logger()
}

// VaultStore reads pipeline secrets from a single KV v2 path in HashiCorp
// Vault. The secret data map holds one entry per pipeline secret key.
type VaultStore struct {
	client *vault.Client
	path   string
}

// NewVaultStore connects to Vault using AppRole credentials from the
// environment and verifies the client can authenticate.
func NewVaultStore(path string) (*VaultStore, error) {
	vaultAddr := os.Getenv("VAULT_ADDR")
	if vaultAddr == "" {
		vaultAddr = "http://127.0.0.1:8200"
		logger.Debug().Str("vault_addr", vaultAddr).Msg("Using default Vault address")
	}

	config := vault.DefaultConfig()
	config.Address = vaultAddr

	client, err := vault.NewClient(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}

	roleID := os.Getenv("VAULT_ROLE_ID")
	secretID := os.Getenv("VAULT_SECRET_ID")
	if roleID == "" || secretID == "" {
		return nil, fmt.Errorf("VAULT_ROLE_ID and VAULT_SECRET_ID must be set")
	}

	loginSecret, err := client.Logical().Write("auth/approle/login", map[string]interface{}{
		"role_id":   roleID,
		"secret_id": secretID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to login to vault: %w", err)
	}
	client.SetToken(loginSecret.Auth.ClientToken)

	logger.Info().
		Str("vault_addr", vaultAddr).
		Str("path", path).
		Msg("Vault secret store initialized")

	return &VaultStore{client: client, path: path}, nil
}

func (s *VaultStore) Lookup(ctx context.Context, key string) (string, bool, error) {
	fullPath := fmt.Sprintf("kv/data/%s", s.path)

	secret, err := s.client.Logical().ReadWithContext(ctx, fullPath)
	if err != nil {
		return "", false, fmt.Errorf("failed to read secret: %w", err)
	}
	if secret == nil || secret.Data == nil {
		logger.Warn().Str("path", s.path).Msg("Secret path not found in Vault")
		return "", false, nil
	}

	// KV v2 nests the payload under "data".
	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return "", false, fmt.Errorf("invalid secret data format at %s", fullPath)
	}

	raw, ok := data[key]
	if !ok {
		return "", false, nil
	}
	value, ok := raw.(string)
	if !ok {
		return "", false, fmt.Errorf("secret %s at %s is not a string", key, fullPath)
	}
	return value, true, nil
}
