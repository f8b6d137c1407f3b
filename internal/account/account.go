// Package account performs the per-account setup an organization needs
// before any of its connectors or sync services can run. Enterprise and
// business orgs sync through an admin identity covering every user;
// individual orgs sync each user with their own grant.
package account

import (
	"context"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/ajitpratap0/tenantsync/internal/store"
	"github.com/ajitpratap0/tenantsync/pkg/errors"
)

// ErrUnknownAccountType is returned for a classification with no initializer.
var ErrUnknownAccountType = errors.New(errors.ErrorTypeValidation, "unknown account type")

// Mode is how an org's long-lived sync services reach user data.
type Mode string

const (
	// ModeAdmin syncs all users through the org's admin identity.
	ModeAdmin Mode = "admin"
	// ModeUser syncs each user through their own grant.
	ModeUser Mode = "user"
)

// Initializer is the classification-specific account setup collaborator.
type Initializer interface {
	InitializeEnterprise(ctx context.Context, orgID string) error
	InitializeIndividual(ctx context.Context, orgID string) error
}

// Initialize routes orgID to the initializer for its classification. An
// empty classification is treated as individual.
func Initialize(ctx context.Context, init Initializer, orgID string, accountType store.AccountType) error {
	switch store.AccountType(strings.ToLower(strings.TrimSpace(string(accountType)))) {
	case store.AccountTypeEnterprise, store.AccountTypeBusiness:
		return init.InitializeEnterprise(ctx, orgID)
	case store.AccountTypeIndividual, "":
		return init.InitializeIndividual(ctx, orgID)
	default:
		return errors.Wrap(ErrUnknownAccountType, errors.ErrorTypeValidation, "cannot initialize account").
			WithDetail("org_id", orgID).
			WithDetail("account_type", string(accountType))
	}
}

// Registry is the default Initializer. It records the sync mode chosen for
// each org so sync services can look it up.
type Registry struct {
	logger *zap.Logger

	mu    sync.RWMutex
	modes map[string]Mode
}

var _ Initializer = (*Registry)(nil)

// NewRegistry creates an empty registry.
func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		logger: logger.With(zap.String("component", "account_registry")),
		modes:  make(map[string]Mode),
	}
}

// InitializeEnterprise sets orgID up for admin-identity sync.
func (r *Registry) InitializeEnterprise(ctx context.Context, orgID string) error {
	return r.set(orgID, ModeAdmin)
}

// InitializeIndividual sets orgID up for per-user sync.
func (r *Registry) InitializeIndividual(ctx context.Context, orgID string) error {
	return r.set(orgID, ModeUser)
}

func (r *Registry) set(orgID string, mode Mode) error {
	if strings.TrimSpace(orgID) == "" {
		return errors.New(errors.ErrorTypeValidation, "orgId is required for account initialization")
	}

	r.mu.Lock()
	previous, existed := r.modes[orgID]
	r.modes[orgID] = mode
	r.mu.Unlock()

	if existed && previous != mode {
		r.logger.Warn("account mode changed",
			zap.String("org_id", orgID),
			zap.String("from", string(previous)),
			zap.String("to", string(mode)))
	} else {
		r.logger.Debug("account initialized", zap.String("org_id", orgID), zap.String("mode", string(mode)))
	}
	return nil
}

// Mode returns the sync mode recorded for orgID.
func (r *Registry) Mode(orgID string) (Mode, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	mode, ok := r.modes[orgID]
	return mode, ok
}
