package configstore

import (
	"context"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/ajitpratap0/tenantsync/pkg/errors"
)

var _ Service = (*FileStore)(nil)

// FileStore serves config nodes from a YAML document keyed by node path:
//
//	/services/connectors/onedrive/config/org-1:
//	  tenantId: t
//	  clientId: c
//	  clientSecret: s
type FileStore struct {
	path string

	mu    sync.RWMutex
	nodes map[string]map[string]interface{}
}

// NewFileStore loads the document at path.
func NewFileStore(path string) (*FileStore, error) {
	s := &FileStore{path: path}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Reload re-reads the document, replacing every node at once.
func (s *FileStore) Reload() error {
	data, err := os.ReadFile(s.path) //nolint:gosec // path comes from service config
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeConfig, "failed to read config store file").
			WithDetail("path", s.path)
	}

	var raw map[string]map[string]interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return errors.Wrap(err, errors.ErrorTypeConfig, "failed to parse config store file").
			WithDetail("path", s.path)
	}

	nodes := make(map[string]map[string]interface{}, len(raw))
	for p, node := range raw {
		nodes[cleanPath(p)] = node
	}

	s.mu.Lock()
	s.nodes = nodes
	s.mu.Unlock()
	return nil
}

// GetConfig returns the node at path.
func (s *FileStore) GetConfig(_ context.Context, path string) (map[string]interface{}, error) {
	path = cleanPath(path)

	s.mu.RLock()
	node, ok := s.nodes[path]
	s.mu.RUnlock()
	if !ok || node == nil {
		return nil, notFound(path)
	}
	return copyNode(node), nil
}
