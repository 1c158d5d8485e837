package main

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"

	oauthadapter "github.com/gabmerlin/saas-sub001/internal/adapter/oauth"
	"github.com/gabmerlin/saas-sub001/internal/authflow"
	"github.com/gabmerlin/saas-sub001/internal/config"
	"github.com/gabmerlin/saas-sub001/internal/dns"
	"github.com/gabmerlin/saas-sub001/internal/edgehost"
	httptransport "github.com/gabmerlin/saas-sub001/internal/http"
	"github.com/gabmerlin/saas-sub001/internal/http/handler"
	apimiddleware "github.com/gabmerlin/saas-sub001/internal/middleware"
	"github.com/gabmerlin/saas-sub001/internal/provision"
	"github.com/gabmerlin/saas-sub001/internal/relay"
	"github.com/gabmerlin/saas-sub001/internal/repository"
	"github.com/gabmerlin/saas-sub001/internal/server"
	"github.com/gabmerlin/saas-sub001/internal/session"
	"github.com/gabmerlin/saas-sub001/internal/subdomain"
	"github.com/gabmerlin/saas-sub001/internal/telemetry"
)

func main() {
	app := fx.New(
		fx.Provide(
			newConfig,
			newLogger,
			newTelemetry,
			newSnowflake,
			newPGXPool,
			newRedisClient,
			newTenantRepository,
			newSubdomainResolver,
			newDNSSigner,
			newDNSClient,
			newEdgeClient,
			newOrchestrator,
			newAvailabilityLimiter,
			newRelay,
			newProviderClient,
			newCookieCodec,
			newURLCodec,
			newSynchronizer,
			newFlow,
			newTenantHandler,
			newSessionHandler,
			httptransport.NewRouter,
			newHTTPServer,
		),
		fx.Invoke(useTelemetry, startSynchronizer, startHTTPServer),
	)

	app.Run()
}

func newConfig() (config.Config, error) {
	return config.Load()
}

func newLogger(cfg config.Config) (*zap.Logger, error) {
	var (
		logger *zap.Logger
		err    error
	)
	if cfg.Environment == "development" {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return nil, err
	}
	zap.ReplaceGlobals(logger)
	return logger, nil
}

func newTelemetry(lc fx.Lifecycle, cfg config.Config, logger *zap.Logger) (*telemetry.Provider, error) {
	provider, err := telemetry.New(context.Background(), cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("telemetry init: %w", err)
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			return provider.Shutdown(stopCtx)
		},
	})

	return provider, nil
}

func newSnowflake() (*snowflake.Node, error) {
	node, err := snowflake.NewNode(1)
	return node, err
}

func newPGXPool(lc fx.Lifecycle, cfg config.Config) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			pool.Close()
			return nil
		},
	})

	return pool, nil
}

func newRedisClient(lc fx.Lifecycle, cfg config.Config) (redis.UniversalClient, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})
	return client, nil
}

func newTenantRepository(pool *pgxpool.Pool) repository.TenantRepository {
	return repository.NewPostgresTenantRepo(pool)
}

func newSubdomainResolver(cfg config.Config) *subdomain.Resolver {
	return subdomain.NewResolver(cfg.RootCandidates(), cfg.DevTenantKey, cfg.ReservedSubs)
}

func newDNSSigner(cfg config.Config) *dns.Signer {
	return dns.NewSigner(cfg.DNSEndpoint, cfg.DNSAppKey, cfg.DNSAppSecret, cfg.DNSConsumerKey, nil)
}

func newDNSClient(cfg config.Config, signer *dns.Signer, logger *zap.Logger) *dns.Client {
	return dns.NewClient(cfg.DNSEndpoint, cfg.DNSZone, signer, nil, cfg.DNSCallsPerSec, logger)
}

func newEdgeClient(cfg config.Config, logger *zap.Logger) *edgehost.Client {
	return edgehost.NewClient(cfg.EdgeAPIURL, cfg.EdgeToken, cfg.EdgeProjectID, nil, logger)
}

func newOrchestrator(cfg config.Config, edge *edgehost.Client, zone *dns.Client, resolver *subdomain.Resolver, node *snowflake.Node, logger *zap.Logger) *provision.Orchestrator {
	return provision.NewOrchestrator(cfg.RootDomain, cfg.DNSTarget, edge, zone, resolver, node, logger)
}

func newAvailabilityLimiter(cfg config.Config) *apimiddleware.RateLimiter {
	return apimiddleware.NewRateLimiter(cfg.AvailabilityLimit, cfg.AvailabilityWindow)
}

func newRelay(client redis.UniversalClient, cfg config.Config, logger *zap.Logger) *relay.Relay {
	return relay.NewRelay(relay.NewRedisKV(client), cfg.VerifierCookie, cfg.RootDomain, cfg.SecureCookies, 10*time.Minute, logger)
}

func newProviderClient() oauthadapter.ProviderClient {
	return oauthadapter.NewHTTPProviderClient(nil)
}

func newCookieCodec(cfg config.Config) *session.CookieCodec {
	return session.NewCookieCodec(cfg.SessionCookie, cfg.RootDomain, cfg.SecureCookies, cfg.SessionMaxAge)
}

func newURLCodec(cfg config.Config) *session.URLCodec {
	return session.NewURLCodec(cfg.HandoffParam)
}

func newSynchronizer(client redis.UniversalClient, cfg config.Config, r *relay.Relay, logger *zap.Logger) *session.Synchronizer {
	// The origin ID must be stable across restarts so Start can restore
	// the record this process mirrored before it went down.
	originID := cfg.SyncOriginID
	store := session.NewRedisStore(client, originID, cfg.SessionMaxAge)
	bus := session.NewRedisBroadcaster(client, "session:updates", logger)
	applier := &session.LogApplier{Logger: logger}
	clearer := relay.Clearer{Relay: r, ContextID: originID}
	return session.NewSynchronizer(originID, store, bus, applier, cfg.PaymentHoldTTL, logger,
		session.WithSecretClearer(clearer))
}

func newFlow(cfg config.Config, client oauthadapter.ProviderClient, r *relay.Relay, redisClient redis.UniversalClient, syn *session.Synchronizer, logger *zap.Logger) *authflow.Flow {
	provider := oauthadapter.ProviderConfig{
		AuthorizeURL: cfg.AuthAuthorizeURL,
		TokenURL:     cfg.AuthTokenURL,
		UserInfoURL:  cfg.AuthUserInfoURL,
		ClientID:     cfg.AuthClientID,
		ClientSecret: cfg.AuthClientSecret,
		Scopes:       cfg.AuthScopes,
	}
	return authflow.NewFlow(provider, client, r, relay.NewRedisKV(redisClient), syn, logger)
}

func newTenantHandler(resolver *subdomain.Resolver, repo repository.TenantRepository, orchestrator *provision.Orchestrator, cfg config.Config, logger *zap.Logger) *handler.TenantHandler {
	return handler.NewTenantHandler(resolver, repo, orchestrator, cfg.RootDomain, cfg.ProvisionSecret, logger)
}

func newSessionHandler(flow *authflow.Flow, syn *session.Synchronizer, cookies *session.CookieCodec, urlCodec *session.URLCodec, r *relay.Relay, cfg config.Config, logger *zap.Logger) *handler.SessionHandler {
	return handler.NewSessionHandler(flow, syn, cookies, urlCodec, r, cfg.RootDomain, cfg.SecureCookies, logger)
}

func newHTTPServer(router *gin.Engine, cfg config.Config) *server.HTTPServer {
	return server.NewHTTPServer(router, cfg.ShutdownTimeout)
}

func startSynchronizer(lc fx.Lifecycle, syn *session.Synchronizer) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return syn.Start(ctx)
		},
		OnStop: func(context.Context) error {
			syn.Stop()
			return nil
		},
	})
}

func startHTTPServer(lc fx.Lifecycle, srv *server.HTTPServer, cfg config.Config, logger *zap.Logger) {
	addr := ":" + cfg.HTTPPort
	var (
		cancel context.CancelFunc
		done   chan struct{}
	)

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			runCtx, stop := context.WithCancel(context.Background())
			cancel = stop
			done = make(chan struct{})

			go func() {
				if err := srv.Run(runCtx, addr); err != nil {
					logger.Error("http server stopped", zap.Error(err))
				}
				close(done)
			}()

			return nil
		},
		OnStop: func(ctx context.Context) error {
			if cancel != nil {
				cancel()
			}
			if done == nil {
				return nil
			}
			select {
			case <-done:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	})
}

func useTelemetry(*telemetry.Provider) {}
