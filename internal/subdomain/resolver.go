package subdomain

import (
	"fmt"
	"net"
	"regexp"
	"strings"

	"github.com/gabmerlin/saas-sub001/internal/domain"
)

var keyPattern = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]*[a-z0-9])?$`)

// Resolver derives a tenant key from a request host. Pure and allocation-light;
// it runs on every inbound request.
type Resolver struct {
	roots        []string
	devTenantKey string
	reserved     map[string]struct{}
}

// NewResolver creates a resolver for the given root candidates. The configured
// root must come first; preview roots follow.
func NewResolver(roots []string, devTenantKey string, reserved []string) *Resolver {
	set := make(map[string]struct{}, len(reserved))
	for _, r := range reserved {
		set[strings.ToLower(strings.TrimSpace(r))] = struct{}{}
	}
	cleaned := make([]string, 0, len(roots))
	for _, root := range roots {
		if r := strings.ToLower(strings.TrimSpace(root)); r != "" {
			cleaned = append(cleaned, r)
		}
	}
	return &Resolver{roots: cleaned, devTenantKey: devTenantKey, reserved: set}
}

// Resolve returns the tenant key for host, or ok=false for apex/www hosts.
// A bare loopback host resolves to the fixed development tenant key so local
// multi-tenant testing works without real DNS.
func (r *Resolver) Resolve(host string) (string, bool) {
	cleaned := normalizeHost(host)
	if cleaned == "" {
		return "", false
	}

	if !strings.Contains(cleaned, ".") {
		// localhost and friends
		return r.devTenantKey, r.devTenantKey != ""
	}

	for _, root := range r.roots {
		if cleaned == root || cleaned == "www."+root {
			return "", false
		}
		if strings.HasSuffix(cleaned, "."+root) {
			prefix := strings.TrimSuffix(cleaned, "."+root)
			prefix = strings.TrimSuffix(prefix, ".")
			if prefix == "" || prefix == "www" {
				return "", false
			}
			return prefix, true
		}
	}

	// Last-resort heuristic for hosts outside every known root.
	if labels := strings.Split(cleaned, "."); len(labels) > 2 {
		first := labels[0]
		if first == "" || first == "www" {
			return "", false
		}
		return first, true
	}

	return "", false
}

// ValidateKey checks a requested subdomain against the identity grammar:
// lowercase [a-z0-9] with internal hyphens, 3-63 chars, not reserved.
func (r *Resolver) ValidateKey(sub string) error {
	cleaned := strings.ToLower(strings.TrimSpace(sub))
	if len(cleaned) < 3 || len(cleaned) > 63 {
		return fmt.Errorf("%w: must be 3-63 characters", domain.ErrInvalidSubdomain)
	}
	if !keyPattern.MatchString(cleaned) {
		return fmt.Errorf("%w: must be lowercase letters, digits, and internal hyphens", domain.ErrInvalidSubdomain)
	}
	if _, taken := r.reserved[cleaned]; taken {
		return fmt.Errorf("%w: %q is reserved", domain.ErrInvalidSubdomain, cleaned)
	}
	return nil
}

func normalizeHost(host string) string {
	cleaned := strings.ToLower(strings.TrimSpace(host))
	if strings.Contains(cleaned, ":") {
		if h, _, err := net.SplitHostPort(cleaned); err == nil {
			cleaned = h
		}
	}
	return cleaned
}
