// Package store is the persistence collaborator: the organizations, users
// and enabled apps the resumer enumerates, and the app enablement written
// when an org turns an integration on.
package store

import (
	"context"

	"github.com/ajitpratap0/tenantsync/pkg/errors"
)

// ErrOrgNotFound is returned by GetOrg for an unknown organization.
var ErrOrgNotFound = errors.New(errors.ErrorTypeNotFound, "organization not found")

// AccountType classifies an organization.
type AccountType string

const (
	AccountTypeIndividual AccountType = "individual"
	AccountTypeBusiness   AccountType = "business"
	AccountTypeEnterprise AccountType = "enterprise"
)

// Organization is a tenant. Created by onboarding; read-only here.
type Organization struct {
	ID          string      `json:"id" bson:"_id" db:"id"`
	Name        string      `json:"name" bson:"name" db:"name"`
	AccountType AccountType `json:"accountType" bson:"accountType" db:"account_type"`
	Active      bool        `json:"isActive" bson:"isActive" db:"active"`
}

// User is a member of an organization.
type User struct {
	ID     string `json:"id" bson:"_id" db:"id"`
	OrgID  string `json:"orgId" bson:"orgId" db:"org_id"`
	Email  string `json:"email" bson:"email" db:"email"`
	Active bool   `json:"isActive" bson:"isActive" db:"active"`
}

// App is a source integration enabled for an organization.
type App struct {
	OrgID string `json:"orgId" bson:"orgId" db:"org_id"`
	Name  string `json:"name" bson:"name" db:"name"`
	// Type is the app family, e.g. "storage", "mail" or "calendar".
	Type string `json:"type" bson:"type" db:"type"`
}

// Store is the persistence contract consumed by tenantsync.
type Store interface {
	// GetAllOrgs lists organizations whose active flag equals active.
	GetAllOrgs(ctx context.Context, active bool) ([]Organization, error)
	// GetOrg returns one organization or ErrOrgNotFound.
	GetOrg(ctx context.Context, orgID string) (Organization, error)
	// GetUsers lists users of orgID whose active flag equals active.
	GetUsers(ctx context.Context, orgID string, active bool) ([]User, error)
	// GetOrgApps lists the apps enabled for orgID.
	GetOrgApps(ctx context.Context, orgID string) ([]App, error)
	// EnableApps upserts apps as enabled for orgID. Enabling an app that
	// is already enabled is a no-op apart from refreshing its type.
	EnableApps(ctx context.Context, orgID string, apps []App) error
	// Close releases connections.
	Close(ctx context.Context) error
}

func orgNotFound(orgID string) error {
	return errors.Wrap(ErrOrgNotFound, errors.ErrorTypeNotFound, "no such organization").WithDetail("org_id", orgID)
}
