// Package vault loads the venue API credential from HashiCorp Vault.
// The coordinator is single-account, so the client reads one KV-v2
// secret at startup; environment variables remain the fallback when
// Vault is disabled.
package vault

import (
	"context"
	"fmt"

	"github.com/hashicorp/vault/api"

	"bybit-trading-bot/config"
)

// Credential is the venue API key pair stored in Vault
type Credential struct {
	APIKey    string `json:"api_key"`
	SecretKey string `json:"secret_key"`
	IsTestnet bool   `json:"is_testnet"`
}

// Client wraps the HashiCorp Vault client
type Client struct {
	client *api.Client
	config config.VaultConfig
}

// NewClient creates a new Vault client
func NewClient(cfg config.VaultConfig) (*Client, error) {
	vaultConfig := api.DefaultConfig()
	vaultConfig.Address = cfg.Address

	if cfg.TLSEnabled && cfg.CACert != "" {
		tlsConfig := &api.TLSConfig{CACert: cfg.CACert}
		if err := vaultConfig.ConfigureTLS(tlsConfig); err != nil {
			return nil, fmt.Errorf("failed to configure TLS: %w", err)
		}
	}

	client, err := api.NewClient(vaultConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}
	client.SetToken(cfg.Token)

	return &Client{client: client, config: cfg}, nil
}

// LoadCredential reads the venue credential from the configured KV-v2
// secret path.
func (c *Client) LoadCredential(ctx context.Context) (*Credential, error) {
	path := fmt.Sprintf("%s/data/%s", c.config.MountPath, c.config.SecretPath)

	secret, err := c.client.Logical().ReadWithContext(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read credential from vault: %w", err)
	}
	if secret == nil || secret.Data == nil {
		return nil, fmt.Errorf("no credential found at %s", path)
	}

	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("unexpected secret format at %s", path)
	}

	cred := &Credential{}
	if v, ok := data["api_key"].(string); ok {
		cred.APIKey = v
	}
	if v, ok := data["secret_key"].(string); ok {
		cred.SecretKey = v
	}
	if v, ok := data["is_testnet"].(bool); ok {
		cred.IsTestnet = v
	}

	if cred.APIKey == "" || cred.SecretKey == "" {
		return nil, fmt.Errorf("credential at %s is incomplete", path)
	}
	return cred, nil
}
