//go:build wireinject
// +build wireinject

package di

import (
	"log/slog"

	"github.com/google/wire"
	sdklog "go.opentelemetry.io/otel/sdk/log"

	"github.com/sandeepkv93/portal-credential-exchange/internal/app"
	"github.com/sandeepkv93/portal-credential-exchange/internal/config"
	"github.com/sandeepkv93/portal-credential-exchange/internal/http/handler"
	"github.com/sandeepkv93/portal-credential-exchange/internal/http/router"
	"github.com/sandeepkv93/portal-credential-exchange/internal/service"
)

var serviceSet = wire.NewSet(
	provideRedisClient,
	provideDatabase,
	provideMondayClient,
	provideDirectory,
	provideStore,
	provideSessionManager,
	provideSessionService,
	provideCredentialService,
)

var httpSet = wire.NewSet(
	handler.NewAuthHandler,
	handler.NewUserHandler,
	handler.NewAdminHandler,
	provideReadiness,
	provideRouterDependencies,
	router.NewRouter,
	provideServer,
)

func InitializeApp(cfg *config.Config, logger *slog.Logger, lp *sdklog.LoggerProvider) (*app.App, error) {
	wire.Build(
		provideRuntime,
		serviceSet,
		httpSet,
		provideApp,
	)
	return nil, nil
}

func InitializeCredentialService(cfg *config.Config) (*service.CredentialService, error) {
	wire.Build(serviceSet)
	return nil, nil
}
