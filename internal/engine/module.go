package engine

import (
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/iieono/make-via-backend-sub000/internal/config"
)

// NewModule returns the engine module options
func NewModule() fx.Option {
	return fx.Options(
		fx.Provide(
			fx.Annotate(
				func(config *config.AppConfig, log *zap.Logger) (*DockerManager, error) {
					return NewDockerManager(&config.Docker, log)
				},
			),
			fx.Annotate(
				func(config *config.AppConfig, log *zap.Logger) (*KubeManager, error) {
					return NewKubeManager(&config.Kube, log)
				},
			),
		),
	)
}
