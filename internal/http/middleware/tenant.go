package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/gabmerlin/saas-sub001/internal/subdomain"
)

const ginTenantKey = "tenant_key"

// TenantResolver derives the tenant key from the request host and
// stores it in the gin context for downstream handlers. Hosts that
// resolve to no tenant pass through unmarked.
func TenantResolver(resolver *subdomain.Resolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		if key, ok := resolver.Resolve(c.Request.Host); ok {
			c.Set(ginTenantKey, key)
		}
		c.Next()
	}
}

// GetTenantKey returns the tenant key resolved for this request.
func GetTenantKey(c *gin.Context) (string, bool) {
	value, ok := c.Get(ginTenantKey)
	if !ok {
		return "", false
	}
	key, ok := value.(string)
	return key, ok && key != ""
}
