package app

import (
	"context"
	"os"

	prom "github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/iieono/make-via-backend-sub000/internal/build"
	"github.com/iieono/make-via-backend-sub000/internal/database"
	"github.com/iieono/make-via-backend-sub000/internal/engine"
	"github.com/iieono/make-via-backend-sub000/internal/generator"
	"github.com/iieono/make-via-backend-sub000/internal/migration"
	"github.com/iieono/make-via-backend-sub000/internal/notify"
	"github.com/iieono/make-via-backend-sub000/internal/server"
	"github.com/iieono/make-via-backend-sub000/internal/snapshot"
	"github.com/iieono/make-via-backend-sub000/internal/store"
)

// Module combines all application modules
func Module() fx.Option {
	return fx.Options(
		// Logger
		fx.Provide(newLogger),

		// Configuration
		fx.Provide(server.LoadConfig),

		// Metrics registry, shared by recorders and the /metrics endpoint
		fx.Provide(prom.NewRegistry),

		// Database and schema
		database.Module(),
		migration.Module(),

		// Domain modules
		snapshot.NewModule(),
		generator.NewModule(),
		store.NewModule(),
		engine.NewModule(),
		notify.NewModule(),
		build.NewModule(),

		// Server
		fx.Provide(server.NewServer),

		// Start the server
		fx.Invoke(registerHooks),
	)
}

func newLogger() (*zap.Logger, error) {
	env := os.Getenv("APP_ENV")
	return server.NewLogger(env)
}

func registerHooks(
	lifecycle fx.Lifecycle,
	srv *server.Server,
	log *zap.Logger,
) {
	lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.Start(); err != nil {
					log.Error("failed to start server", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Info("shutting down server...")
			srv.Stop()
			return nil
		},
	})
}
