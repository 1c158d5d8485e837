package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gabmerlin/saas-sub001/internal/domain"
)

var _ TenantRepository = (*PostgresTenantRepo)(nil)

// PostgresTenantRepo implements TenantRepository over pgx.
type PostgresTenantRepo struct {
	db *pgxpool.Pool
}

func NewPostgresTenantRepo(pool *pgxpool.Pool) *PostgresTenantRepo {
	return &PostgresTenantRepo{db: pool}
}

func (r *PostgresTenantRepo) LookupSubdomain(ctx context.Context, subdomain string) (string, bool, error) {
	const tenantQuery = `SELECT 1 FROM tenants WHERE subdomain = $1 LIMIT 1`

	var one int
	err := r.db.QueryRow(ctx, tenantQuery, subdomain).Scan(&one)
	if err == nil {
		return "tenants", true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return "", false, fmt.Errorf("lookup subdomain: %w", err)
	}

	const domainQuery = `SELECT 1 FROM tenant_domains WHERE subdomain = $1 LIMIT 1`

	err = r.db.QueryRow(ctx, domainQuery, subdomain).Scan(&one)
	if err == nil {
		return "tenant_domains", true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return "", false, fmt.Errorf("lookup subdomain claim: %w", err)
	}
	return "", false, nil
}

func (r *PostgresTenantRepo) GetTenantByKey(ctx context.Context, key string) (domain.Tenant, error) {
	const query = `
SELECT id, subdomain, name, status, created_at, updated_at
FROM tenants
WHERE subdomain = $1
LIMIT 1`

	var t domain.Tenant
	if err := r.db.QueryRow(ctx, query, key).Scan(
		&t.ID,
		&t.Subdomain,
		&t.Name,
		&t.Status,
		&t.CreatedAt,
		&t.UpdatedAt,
	); err != nil {
		return domain.Tenant{}, fmt.Errorf("get tenant: %w", err)
	}
	return t, nil
}

func (r *PostgresTenantRepo) RecordDomain(ctx context.Context, tenantID int64, host string) error {
	const query = `
INSERT INTO tenant_domains (tenant_id, subdomain, is_primary)
VALUES ($1, $2, false)
ON CONFLICT (subdomain) DO NOTHING`

	if _, err := r.db.Exec(ctx, query, tenantID, host); err != nil {
		return fmt.Errorf("record domain: %w", err)
	}
	return nil
}
