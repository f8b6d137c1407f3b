// Package configstore reads connector configuration nodes, such as per-org
// credentials, from the configuration/secret collaborator.
package configstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/ajitpratap0/tenantsync/pkg/errors"
)

// ErrNotFound is returned when no config node exists at a path.
var ErrNotFound = errors.New(errors.ErrorTypeNotFound, "config not found")

// Service resolves a config node by path.
type Service interface {
	GetConfig(ctx context.Context, path string) (map[string]interface{}, error)
}

// ConnectorConfigPath returns the node holding a connector's config for an org.
func ConnectorConfigPath(configName, orgID string) string {
	return fmt.Sprintf("/services/connectors/%s/config/%s", configName, orgID)
}

// cleanPath normalizes a node path to a single leading slash.
func cleanPath(path string) string {
	return "/" + strings.Trim(strings.TrimSpace(path), "/")
}

func notFound(path string) error {
	return errors.Wrap(ErrNotFound, errors.ErrorTypeNotFound, "no config node").WithDetail("path", path)
}

// copyNode returns a shallow copy so callers cannot mutate cached nodes.
func copyNode(node map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(node))
	for k, v := range node {
		out[k] = v
	}
	return out
}
