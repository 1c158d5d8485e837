package domain

import "time"

// Tenant represents one customer organization, addressed by a unique subdomain.
type Tenant struct {
	ID        int64
	Subdomain string
	Name      string
	Status    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TenantDomain maps an additional subdomain claim onto a tenant.
type TenantDomain struct {
	ID        int64
	TenantID  int64
	Subdomain string
	IsPrimary bool
	CreatedAt time.Time
}

// ProvisioningJob is the ephemeral unit of work for registering a subdomain
// with the DNS and edge-hosting providers. It is never persisted.
type ProvisioningJob struct {
	ID        string
	Subdomain string
	FQDN      string
}
