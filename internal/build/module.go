package build

import (
	"context"

	prom "github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/iieono/make-via-backend-sub000/internal/config"
	"github.com/iieono/make-via-backend-sub000/internal/engine"
	"github.com/iieono/make-via-backend-sub000/internal/generator"
	"github.com/iieono/make-via-backend-sub000/internal/notify"
	"github.com/iieono/make-via-backend-sub000/internal/snapshot"
	"github.com/iieono/make-via-backend-sub000/internal/store"
)

// NewModule returns the build module options
func NewModule() fx.Option {
	return fx.Options(
		fx.Provide(
			fx.Annotate(
				func(db *gorm.DB) Repository {
					return NewRepository(db)
				},
			),
			fx.Annotate(
				func(repo Repository, artifacts store.Store, config *config.AppConfig, log *zap.Logger) *Cache {
					return NewCache(repo, artifacts, config, log)
				},
			),
			fx.Annotate(
				func(config *config.AppConfig, log *zap.Logger) *Pool {
					return NewPool(config.Build.Workers, config.Build.QueueSize, log)
				},
			),
			fx.Annotate(
				func(reg *prom.Registry) *Metrics {
					return NewMetrics(reg)
				},
			),
			fx.Annotate(
				func(
					config *config.AppConfig,
					repo Repository,
					cache *Cache,
					provider snapshot.Provider,
					gen generator.Generator,
					docker *engine.DockerManager,
					kube *engine.KubeManager,
					artifacts store.Store,
					notifier notify.Notifier,
					pool *Pool,
					metrics *Metrics,
					log *zap.Logger,
				) *Service {
					return NewService(&config.Build, repo, cache, provider, gen,
						docker, kube, artifacts, notifier, pool, metrics, log)
				},
			),
			fx.Annotate(
				func(config *config.AppConfig, repo Repository, artifacts store.Store, metrics *Metrics, log *zap.Logger) (*Janitor, error) {
					return NewJanitor(config, repo, artifacts, metrics, log)
				},
			),
			fx.Annotate(
				func(service *Service, log *zap.Logger) *Handler {
					return NewHandler(service, log)
				},
			),
		),
		fx.Invoke(registerHooks),
	)
}

func registerHooks(
	lifecycle fx.Lifecycle,
	service *Service,
	pool *Pool,
	janitor *Janitor,
	logger *zap.Logger,
) {
	lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := service.RecoverInterrupted(); err != nil {
				return err
			}
			pool.Start()
			return janitor.Start()
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("Stopping build workers")
			pool.Stop()
			return janitor.Stop()
		},
	})
}
