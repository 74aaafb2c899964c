package bootstrap

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/google/wire"
	"github.com/uptrace/bun"
	"go.uber.org/zap"

	"github.com/guxdde/base-auth-service/internal/adapters/config"
	apphttp "github.com/guxdde/base-auth-service/internal/adapters/http"
	"github.com/guxdde/base-auth-service/internal/adapters/logger"
	"github.com/guxdde/base-auth-service/internal/adapters/middleware"
	appnats "github.com/guxdde/base-auth-service/internal/adapters/nats"
	appredis "github.com/guxdde/base-auth-service/internal/adapters/redis"
	"github.com/guxdde/base-auth-service/internal/adapters/store"
	"github.com/guxdde/base-auth-service/internal/application"
	"github.com/guxdde/base-auth-service/internal/domain"
)

// Define distinct types for handlers and middlewares to help Wire differentiate them
type (
	TenantTokenHandler   http.HandlerFunc
	TenantRefreshHandler http.HandlerFunc
	UserTokenHandler     http.HandlerFunc
	UserProfileHandler   http.HandlerFunc

	APIKeyMiddleware func(http.Handler) http.Handler
	BearerMiddleware func(http.Handler) http.Handler
)

// InitialZapLoggerProvider provides a basic *zap.Logger instance, primarily for config initialization.
// It returns the logger, a cleanup function (for syncing), and an error if creation fails.
func InitialZapLoggerProvider() (*zap.Logger, func(), error) {
	zapLogger, err := zap.NewProduction()
	if err != nil {
		zapLogger, err = zap.NewDevelopment()
		if err != nil {
			zapLogger = zap.NewExample()
			fmt.Fprintf(os.Stderr, "Failed to create initial zap logger (production and development failed, falling back to example): %v\n", err)
		}
	}

	cleanup := func() {
		if syncErr := zapLogger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "Failed to sync initial zap logger: %v\n", syncErr)
		}
	}
	return zapLogger, cleanup, nil
}

// App holds the wired application components. Wire builds it via NewApp.
type App struct {
	configProvider config.Provider
	logger         domain.Logger
	httpServeMux   *http.ServeMux
	httpServer     *http.Server

	cacheClient    *appredis.Client
	db             *bun.DB
	auditPublisher *appnats.AuditPublisher

	tenantTokenHandler   TenantTokenHandler
	tenantRefreshHandler TenantRefreshHandler
	userTokenHandler     UserTokenHandler
	userProfileHandler   UserProfileHandler
	apiKeyMiddleware     APIKeyMiddleware
	bearerMiddleware     BearerMiddleware
}

// NewApp is the constructor for App, also for Wire.
func NewApp(
	cfgProvider config.Provider,
	appLogger domain.Logger,
	mux *http.ServeMux,
	server *http.Server,
	cacheClient *appredis.Client,
	db *bun.DB,
	auditPublisher *appnats.AuditPublisher,
	tenantTokenHandler TenantTokenHandler,
	tenantRefreshHandler TenantRefreshHandler,
	userTokenHandler UserTokenHandler,
	userProfileHandler UserProfileHandler,
	apiKeyMiddleware APIKeyMiddleware,
	bearerMiddleware BearerMiddleware,
) *App {
	return &App{
		configProvider:       cfgProvider,
		logger:               appLogger,
		httpServeMux:         mux,
		httpServer:           server,
		cacheClient:          cacheClient,
		db:                   db,
		auditPublisher:       auditPublisher,
		tenantTokenHandler:   tenantTokenHandler,
		tenantRefreshHandler: tenantRefreshHandler,
		userTokenHandler:     userTokenHandler,
		userProfileHandler:   userProfileHandler,
		apiKeyMiddleware:     apiKeyMiddleware,
		bearerMiddleware:     bearerMiddleware,
	}
}

// ConfigProvider provides the application configuration.
// It accepts appCtx to be passed to NewViperProvider for graceful goroutine shutdown.
func ConfigProvider(appCtx context.Context, zapLogger *zap.Logger) (config.Provider, error) {
	return config.NewViperProvider(appCtx, zapLogger)
}

// LoggerProvider provides the application logger.
func LoggerProvider(cfgProvider config.Provider) (domain.Logger, error) {
	appCfg := cfgProvider.Get()
	return logger.NewZapAdapter(cfgProvider, appCfg.App.ServiceName)
}

// HTTPServeMuxProvider provides the main HTTP multiplexer.
func HTTPServeMuxProvider() *http.ServeMux {
	return http.NewServeMux()
}

// HTTPGracefulServerProvider provides a new HTTP server configured for graceful shutdown.
func HTTPGracefulServerProvider(cfgProvider config.Provider, mux *http.ServeMux) *http.Server {
	appCfg := cfgProvider.Get()
	return &http.Server{
		Addr:         fmt.Sprintf(":%d", appCfg.Server.HTTPPort),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// CacheClientProvider provides the resilient Redis client and a cleanup
// closing its connection.
func CacheClientProvider(cfgProvider config.Provider, appLogger domain.Logger) (*appredis.Client, func()) {
	client := appredis.NewClient(cfgProvider, appLogger)
	cleanup := func() {
		if err := client.Close(); err != nil {
			appLogger.Warn(context.Background(), "Error closing Redis client", "error", err.Error())
		}
	}
	return client, cleanup
}

// DBProvider provides the relational database handle.
func DBProvider(cfgProvider config.Provider, appLogger domain.Logger) (*bun.DB, func(), error) {
	return store.NewDB(cfgProvider, appLogger)
}

// TenantStoreProvider provides the durable tenant store.
func TenantStoreProvider(db *bun.DB) *store.TenantStore {
	return store.NewTenantStore(db)
}

// UserStoreProvider provides the durable user store.
func UserStoreProvider(db *bun.DB) *store.UserStore {
	return store.NewUserStore(db)
}

// AuditPublisherProvider provides the NATS audit publisher.
func AuditPublisherProvider(ctx context.Context, cfgProvider config.Provider, appLogger domain.Logger) (*appnats.AuditPublisher, func(), error) {
	return appnats.NewAuditPublisher(ctx, cfgProvider, appLogger)
}

// DeviceRegistryProvider provides the bounded device session registry.
func DeviceRegistryProvider(appLogger domain.Logger, cfgProvider config.Provider, cache domain.CacheStore) *application.DeviceRegistry {
	return application.NewDeviceRegistry(appLogger, cfgProvider, cache)
}

// AuthServiceProvider provides the user token authority.
func AuthServiceProvider(appLogger domain.Logger, cfgProvider config.Provider, devices *application.DeviceRegistry, users domain.UserStore, audit domain.AuditSink) *application.AuthService {
	return application.NewAuthService(appLogger, cfgProvider, devices, users, audit)
}

// TenantAuthServiceProvider provides the tenant token authority.
func TenantAuthServiceProvider(appLogger domain.Logger, cfgProvider config.Provider, cache domain.CacheStore, tenants domain.TenantStore) *application.TenantAuthService {
	return application.NewTenantAuthService(appLogger, cfgProvider, cache, tenants)
}

// ResultCacheProvider provides the tagged result cache.
func ResultCacheProvider(appLogger domain.Logger, cfgProvider config.Provider, cache domain.CacheStore) *application.ResultCache {
	return application.NewResultCache(appLogger, cfgProvider, cache)
}

// TenantTokenHandlerProvider provides the tenant token issuance handler.
func TenantTokenHandlerProvider(tenantAuth *application.TenantAuthService, appLogger domain.Logger) TenantTokenHandler {
	return TenantTokenHandler(apphttp.TenantTokenHandler(tenantAuth, appLogger))
}

// TenantRefreshHandlerProvider provides the tenant token refresh handler.
func TenantRefreshHandlerProvider(tenantAuth *application.TenantAuthService, appLogger domain.Logger) TenantRefreshHandler {
	return TenantRefreshHandler(apphttp.TenantRefreshHandler(tenantAuth, appLogger))
}

// UserTokenHandlerProvider provides the user token minting handler.
func UserTokenHandlerProvider(authService *application.AuthService, devices *application.DeviceRegistry, appLogger domain.Logger) UserTokenHandler {
	return UserTokenHandler(apphttp.UserTokenHandler(authService, devices, appLogger))
}

// UserProfileHandlerProvider provides the cached profile handler.
func UserProfileHandlerProvider(resultCache *application.ResultCache, users domain.UserStore, appLogger domain.Logger) UserProfileHandler {
	return UserProfileHandler(apphttp.UserProfileHandler(resultCache, users, appLogger))
}

// APIKeyMiddlewareProvider provides the shared-secret middleware guarding
// the user token minting endpoint.
func APIKeyMiddlewareProvider(cfgProvider config.Provider, appLogger domain.Logger) APIKeyMiddleware {
	return APIKeyMiddleware(middleware.APIKeyAuthMiddleware(cfgProvider, appLogger))
}

// BearerMiddlewareProvider provides the bearer token middleware guarding
// authenticated routes.
func BearerMiddlewareProvider(authService *application.AuthService, appLogger domain.Logger) BearerMiddleware {
	return BearerMiddleware(middleware.BearerAuthMiddleware(authService, appLogger))
}

// ProviderSet is the Wire provider set for the entire application.
var ProviderSet = wire.NewSet(
	InitialZapLoggerProvider,
	ConfigProvider,
	LoggerProvider,
	HTTPServeMuxProvider,
	HTTPGracefulServerProvider,

	// Infrastructure Adapters
	CacheClientProvider,
	wire.Bind(new(domain.CacheStore), new(*appredis.Client)),
	DBProvider,
	TenantStoreProvider,
	wire.Bind(new(domain.TenantStore), new(*store.TenantStore)),
	UserStoreProvider,
	wire.Bind(new(domain.UserStore), new(*store.UserStore)),
	AuditPublisherProvider,
	wire.Bind(new(domain.AuditSink), new(*appnats.AuditPublisher)),

	// Application Services
	DeviceRegistryProvider,
	AuthServiceProvider,
	TenantAuthServiceProvider,
	ResultCacheProvider,

	// HTTP Handlers and Middleware
	TenantTokenHandlerProvider,
	TenantRefreshHandlerProvider,
	UserTokenHandlerProvider,
	UserProfileHandlerProvider,
	APIKeyMiddlewareProvider,
	BearerMiddlewareProvider,

	NewApp,
)
