package configstore

import (
	"context"
	"strings"

	"github.com/hashicorp/vault/api"

	"github.com/ajitpratap0/tenantsync/pkg/config"
	"github.com/ajitpratap0/tenantsync/pkg/errors"
)

var _ Service = (*VaultStore)(nil)

// VaultStore reads config nodes from a Vault KV version 2 mount. A node path
// maps onto the secret at {mount}/data{path}.
type VaultStore struct {
	client *api.Client
	mount  string
}

// NewVaultStore creates a client for cfg. Standard VAULT_* environment
// variables apply for anything cfg leaves empty.
func NewVaultStore(cfg config.VaultConfig) (*VaultStore, error) {
	apiCfg := api.DefaultConfig()
	if apiCfg.Error != nil {
		return nil, errors.Wrap(apiCfg.Error, errors.ErrorTypeConfig, "invalid vault environment")
	}
	if cfg.Address != "" {
		apiCfg.Address = cfg.Address
	}
	if cfg.Timeout > 0 {
		apiCfg.Timeout = cfg.Timeout
	}

	client, err := api.NewClient(apiCfg)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to create vault client")
	}
	if cfg.Token != "" {
		client.SetToken(cfg.Token)
	}
	if cfg.Namespace != "" {
		client.SetNamespace(cfg.Namespace)
	}

	return NewVaultStoreFromClient(client, cfg.Mount), nil
}

// NewVaultStoreFromClient wraps an existing client.
func NewVaultStoreFromClient(client *api.Client, mount string) *VaultStore {
	return &VaultStore{
		client: client,
		mount:  strings.Trim(mount, "/"),
	}
}

// GetConfig reads the latest version of the node at path.
func (s *VaultStore) GetConfig(ctx context.Context, path string) (map[string]interface{}, error) {
	path = cleanPath(path)

	secret, err := s.client.Logical().ReadWithContext(ctx, s.mount+"/data"+path)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeCollaborator, "failed to read config from vault").
			WithDetail("path", path)
	}
	if secret == nil || secret.Data == nil {
		return nil, notFound(path)
	}

	// Deleted versions come back with data set to null.
	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok || data == nil {
		return nil, notFound(path)
	}
	return copyNode(data), nil
}
