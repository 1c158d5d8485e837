package http

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/gabmerlin/saas-sub001/internal/config"
	"github.com/gabmerlin/saas-sub001/internal/http/handler"
	httpmiddleware "github.com/gabmerlin/saas-sub001/internal/http/middleware"
	"github.com/gabmerlin/saas-sub001/internal/middleware"
	"github.com/gabmerlin/saas-sub001/internal/session"
	"github.com/gabmerlin/saas-sub001/internal/subdomain"
)

// NewRouter wires Gin routes and middleware.
func NewRouter(
	cfg config.Config,
	tenantHandler *handler.TenantHandler,
	sessionHandler *handler.SessionHandler,
	resolver *subdomain.Resolver,
	urlCodec *session.URLCodec,
	syn *session.Synchronizer,
	availabilityLimiter *middleware.RateLimiter,
) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(httpmiddleware.RequestLogger(nil))
	r.Use(httpmiddleware.TenantResolver(resolver))
	r.Use(middleware.TenantCORS(cfg))
	r.Use(otelgin.Middleware(cfg.ServiceName))
	r.Use(httpmiddleware.SessionHandoff(urlCodec, syn, nil))

	api := r.Group("/api")
	{
		api.GET("/tenant", tenantHandler.CurrentTenant)

		subs := api.Group("/subdomains")
		{
			subs.GET("/check", availabilityLimiter.Handler(), tenantHandler.CheckAvailability)
			subs.POST("/provision", tenantHandler.Provision)
		}

		sess := api.Group("/session")
		{
			sess.GET("", sessionHandler.Current)
			sess.POST("/signout", sessionHandler.SignOut)
			sess.POST("/payment-hold", sessionHandler.PaymentHold)
		}
	}

	auth := r.Group("/auth/oauth")
	{
		auth.GET("/start", sessionHandler.AuthStart)
		auth.GET("/callback", sessionHandler.AuthCallback)
	}

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	return r
}
