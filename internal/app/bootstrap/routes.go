// internal/app/bootstrap/routes.go
package bootstrap

import (
	"context"
	"net/http"

	"github.com/dalemusser/waffle/config"
	"github.com/go-chi/chi/v5"
	"github.com/oriundostartup/libreta/internal/app/accounts"
	accountapifeature "github.com/oriundostartup/libreta/internal/app/features/accountapi"
	healthfeature "github.com/oriundostartup/libreta/internal/app/features/health"
	accountstore "github.com/oriundostartup/libreta/internal/app/store/accounts"
	"github.com/oriundostartup/libreta/internal/app/store/audit"
	remotestore "github.com/oriundostartup/libreta/internal/app/store/remote"
	"github.com/oriundostartup/libreta/internal/app/syncengine"
	"github.com/oriundostartup/libreta/internal/app/system/auditlog"
	"github.com/oriundostartup/libreta/internal/app/system/auth"
	"github.com/oriundostartup/libreta/internal/app/system/federated"
	"github.com/oriundostartup/libreta/internal/app/system/identity"
	"github.com/oriundostartup/libreta/internal/app/system/ratelimit"
	"github.com/oriundostartup/libreta/internal/app/system/timeouts"
	"go.uber.org/zap"
)

// BuildHandler constructs the root HTTP handler (router) for this WAFFLE app.
//
// WAFFLE calls this after configuration, DB connections, schema setup, and
// Startup have completed. Libreta assembles the identity provider, the
// remote store adapters, the sync engine and the provisioning flow, then
// mounts the account API and the health check.
func BuildHandler(coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) (http.Handler, error) {
	// Secure cookies are enabled in production mode.
	secure := coreCfg.Env == "prod"
	sessionMgr, err := auth.NewSessionManager(appCfg.SessionKey, appCfg.SessionName, appCfg.SessionDomain, appCfg.SessionMaxAge, secure, logger)
	if err != nil {
		logger.Error("session manager init failed", zap.Error(err))
		return nil, err
	}

	// Events are only written when the setting includes the database, but
	// the activity endpoint always reads from it.
	auditStore := audit.New(deps.MongoDatabase)
	auditLog := auditlog.New(auditStore, logger, auditlog.Uniform(appCfg.AuditLog))

	// Validated in ValidateConfig.
	proxies, err := ratelimit.ParseProxies(appCfg.TrustedProxies)
	if err != nil {
		return nil, err
	}
	auditLog.TrustProxies(proxies)

	idp := identity.New(accountstore.New(deps.MongoDatabase), verifiers(appCfg, logger), logger, identity.Config{})

	remote := remotestore.New(deps.MongoDatabase)
	engine := syncengine.New(remote, deps.Mirror, logger, syncengine.Config{
		Concurrency: appCfg.SyncConcurrency,
		Audit:       auditLog,
	})

	flow := accounts.NewFlow(idp, remote, engine, deps.Mirror, logger, accounts.Config{
		Attempts: appCfg.RemoteWriteAttempts,
		Backoff:  appCfg.RemoteRetryBackoff,
		Audit:    auditLog,
	})
	resolver := accounts.NewResolver(idp, engine, deps.Mirror, logger)

	r := chi.NewRouter()

	// Loads the signed-in identity into the request context when present.
	r.Use(sessionMgr.LoadSessionUser)

	// Health check endpoint for load balancers and orchestrators
	healthHandler := healthfeature.NewHandler(deps.MongoClient, deps.Mirror, logger)
	r.Mount("/health", healthfeature.Routes(healthHandler))

	// Registration, sign-in and session resolution
	accountHandler := accountapifeature.NewHandler(flow, resolver, sessionMgr,
		ratelimit.NewLoginLimiter(appCfg.LoginRateLimit, proxies), auditLog, auditStore, logger)
	r.Mount("/accounts", accountapifeature.Routes(accountHandler, sessionMgr))

	return r, nil
}

// verifiers builds the federated credential registry. Google is only
// registered when client credentials are configured; if OIDC discovery
// fails, ID tokens are rejected but access tokens and codes still verify.
func verifiers(appCfg AppConfig, logger *zap.Logger) federated.Registry {
	reg := federated.Registry{}
	if appCfg.GoogleClientID == "" {
		return reg
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeouts.Short())
	defer cancel()
	idTokens, err := federated.DiscoverGoogleIDTokens(ctx, appCfg.GoogleClientID)
	if err != nil {
		logger.Warn("google ID token verification disabled", zap.Error(err))
	}

	reg[federated.ProviderGoogle] = federated.NewGoogle(federated.GoogleConfig{
		ClientID:     appCfg.GoogleClientID,
		ClientSecret: appCfg.GoogleClientSecret,
		IDTokens:     idTokens,
	}, logger)
	return reg
}
