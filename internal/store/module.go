package store

import (
	"fmt"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/iieono/make-via-backend-sub000/internal/config"
)

// NewModule returns the store module options
func NewModule() fx.Option {
	return fx.Options(
		fx.Provide(
			fx.Annotate(
				func(config *config.AppConfig, log *zap.Logger) (Store, error) {
					return NewStore(config, log)
				},
			),
		),
	)
}

// NewStore builds the configured artifact store backend.
func NewStore(config *config.AppConfig, log *zap.Logger) (Store, error) {
	switch config.Store.Backend {
	case "s3":
		return NewS3Store(&config.Store.S3, log)
	case "local", "":
		return NewLocalStore(&config.Store.Local, log)
	default:
		return nil, fmt.Errorf("unknown store backend: %s", config.Store.Backend)
	}
}
