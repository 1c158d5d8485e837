package repository

import (
	"context"

	"github.com/gabmerlin/saas-sub001/internal/domain"
)

// TenantRepository provides tenant and domain lookups for the
// addressing layer.
type TenantRepository interface {
	// LookupSubdomain reports whether the subdomain is taken and, when
	// it is, which table claimed it ("tenants" or "tenant_domains").
	LookupSubdomain(ctx context.Context, subdomain string) (source string, taken bool, err error)
	GetTenantByKey(ctx context.Context, key string) (domain.Tenant, error)
	RecordDomain(ctx context.Context, tenantID int64, host string) error
}
