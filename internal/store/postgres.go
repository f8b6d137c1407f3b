package store

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ajitpratap0/tenantsync/pkg/errors"
)

var _ Store = (*PostgresStore)(nil)

const (
	selectOrgs = `SELECT id, name, account_type, active
FROM organizations
WHERE active = $1
ORDER BY id`

	selectOrg = `SELECT id, name, account_type, active
FROM organizations
WHERE id = $1`

	selectUsers = `SELECT id, org_id, email, active
FROM users
WHERE org_id = $1 AND active = $2
ORDER BY id`

	selectOrgApps = `SELECT org_id, name, type
FROM org_apps
WHERE org_id = $1 AND enabled
ORDER BY name`

	upsertOrgApp = `INSERT INTO org_apps (org_id, name, type, enabled)
VALUES ($1, $2, $3, TRUE)
ON CONFLICT (org_id, name) DO UPDATE
SET type = EXCLUDED.type, enabled = TRUE`
)

// PostgresStore reads tenants from PostgreSQL through a pgx pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to url. maxConns of zero keeps the pgx default.
func NewPostgresStore(ctx context.Context, url string, maxConns int32) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "invalid database url")
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeCollaborator, "failed to create database pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, errors.ErrorTypeCollaborator, "failed to reach database")
	}
	return &PostgresStore{pool: pool}, nil
}

// GetAllOrgs implements Store.
func (s *PostgresStore) GetAllOrgs(ctx context.Context, active bool) ([]Organization, error) {
	rows, err := s.pool.Query(ctx, selectOrgs, active)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeCollaborator, "failed to query organizations")
	}
	orgs, err := pgx.CollectRows(rows, pgx.RowToStructByName[Organization])
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeCollaborator, "failed to scan organizations")
	}
	return orgs, nil
}

// GetOrg implements Store.
func (s *PostgresStore) GetOrg(ctx context.Context, orgID string) (Organization, error) {
	rows, err := s.pool.Query(ctx, selectOrg, orgID)
	if err != nil {
		return Organization{}, errors.Wrap(err, errors.ErrorTypeCollaborator, "failed to query organization").
			WithDetail("org_id", orgID)
	}
	org, err := pgx.CollectExactlyOneRow(rows, pgx.RowToStructByName[Organization])
	if errors.Is(err, pgx.ErrNoRows) {
		return Organization{}, orgNotFound(orgID)
	}
	if err != nil {
		return Organization{}, errors.Wrap(err, errors.ErrorTypeCollaborator, "failed to scan organization").
			WithDetail("org_id", orgID)
	}
	return org, nil
}

// GetUsers implements Store.
func (s *PostgresStore) GetUsers(ctx context.Context, orgID string, active bool) ([]User, error) {
	rows, err := s.pool.Query(ctx, selectUsers, orgID, active)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeCollaborator, "failed to query users").
			WithDetail("org_id", orgID)
	}
	users, err := pgx.CollectRows(rows, pgx.RowToStructByName[User])
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeCollaborator, "failed to scan users").
			WithDetail("org_id", orgID)
	}
	return users, nil
}

// GetOrgApps implements Store.
func (s *PostgresStore) GetOrgApps(ctx context.Context, orgID string) ([]App, error) {
	rows, err := s.pool.Query(ctx, selectOrgApps, orgID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeCollaborator, "failed to query org apps").
			WithDetail("org_id", orgID)
	}
	apps, err := pgx.CollectRows(rows, pgx.RowToStructByName[App])
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeCollaborator, "failed to scan org apps").
			WithDetail("org_id", orgID)
	}
	return apps, nil
}

// EnableApps implements Store. The upserts are sent as one batch, which
// pgx runs in a single implicit transaction.
func (s *PostgresStore) EnableApps(ctx context.Context, orgID string, apps []App) error {
	if len(apps) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, app := range apps {
		batch.Queue(upsertOrgApp, orgID, app.Name, app.Type)
	}

	results := s.pool.SendBatch(ctx, batch)
	for _, app := range apps {
		if _, err := results.Exec(); err != nil {
			_ = results.Close()
			return errors.Wrap(err, errors.ErrorTypeCollaborator, "failed to enable app").
				WithDetail("org_id", orgID).
				WithDetail("app", app.Name)
		}
	}
	if err := results.Close(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeCollaborator, "failed to enable apps").
			WithDetail("org_id", orgID)
	}
	return nil
}

// Close implements Store.
func (s *PostgresStore) Close(context.Context) error {
	s.pool.Close()
	return nil
}
