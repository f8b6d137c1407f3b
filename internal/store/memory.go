package store

import (
	"context"
	"sort"
	"strings"
	"sync"
)

var _ Store = (*MemoryStore)(nil)

// MemoryStore keeps tenants in process. It backs the memory driver and tests.
type MemoryStore struct {
	mu    sync.RWMutex
	orgs  map[string]Organization
	users map[string][]User
	apps  map[string][]App

	// Injected failures, returned by the matching method when set.
	OrgsErr   error
	UsersErr  map[string]error
	AppsErr   map[string]error
	EnableErr error
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		orgs:     make(map[string]Organization),
		users:    make(map[string][]User),
		apps:     make(map[string][]App),
		UsersErr: make(map[string]error),
		AppsErr:  make(map[string]error),
	}
}

// AddOrg stores org, replacing one with the same ID.
func (s *MemoryStore) AddOrg(org Organization) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orgs[org.ID] = org
}

// AddUser appends a user to its org.
func (s *MemoryStore) AddUser(user User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[user.OrgID] = append(s.users[user.OrgID], user)
}

// EnableApp adds an enabled app to its org, replacing one with the same
// name.
func (s *MemoryStore) EnableApp(app App) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enableLocked(app)
}

func (s *MemoryStore) enableLocked(app App) {
	apps := s.apps[app.OrgID]
	for i := range apps {
		if strings.EqualFold(apps[i].Name, app.Name) {
			apps[i] = app
			return
		}
	}
	s.apps[app.OrgID] = append(apps, app)
}

// GetAllOrgs implements Store. Orgs are returned sorted by ID.
func (s *MemoryStore) GetAllOrgs(_ context.Context, active bool) ([]Organization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.OrgsErr != nil {
		return nil, s.OrgsErr
	}
	var out []Organization
	for _, org := range s.orgs {
		if org.Active == active {
			out = append(out, org)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// GetOrg implements Store.
func (s *MemoryStore) GetOrg(_ context.Context, orgID string) (Organization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.OrgsErr != nil {
		return Organization{}, s.OrgsErr
	}
	org, ok := s.orgs[orgID]
	if !ok {
		return Organization{}, orgNotFound(orgID)
	}
	return org, nil
}

// GetUsers implements Store.
func (s *MemoryStore) GetUsers(_ context.Context, orgID string, active bool) ([]User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.UsersErr[orgID]; err != nil {
		return nil, err
	}
	var out []User
	for _, u := range s.users[orgID] {
		if u.Active == active {
			out = append(out, u)
		}
	}
	return out, nil
}

// GetOrgApps implements Store.
func (s *MemoryStore) GetOrgApps(_ context.Context, orgID string) ([]App, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.AppsErr[orgID]; err != nil {
		return nil, err
	}
	return append([]App(nil), s.apps[orgID]...), nil
}

// EnableApps implements Store.
func (s *MemoryStore) EnableApps(_ context.Context, orgID string, apps []App) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.EnableErr != nil {
		return s.EnableErr
	}
	for _, app := range apps {
		app.OrgID = orgID
		s.enableLocked(app)
	}
	return nil
}

// Close implements Store.
func (s *MemoryStore) Close(context.Context) error {
	return nil
}
