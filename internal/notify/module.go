package notify

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/iieono/make-via-backend-sub000/internal/config"
)

// NewModule returns the notify module options
func NewModule() fx.Option {
	return fx.Options(
		fx.Provide(
			fx.Annotate(
				func(config *config.AppConfig, log *zap.Logger) (Notifier, error) {
					return NewNotifier(config, log)
				},
			),
		),
		fx.Invoke(registerHooks),
	)
}

// NewNotifier builds the configured delivery channel, falling back to
// log-only when notifications are disabled.
func NewNotifier(config *config.AppConfig, log *zap.Logger) (Notifier, error) {
	if !config.Notify.Enabled {
		return NewLogNotifier(log), nil
	}
	return NewNATSNotifier(&config.Notify, log)
}

func registerHooks(
	lifecycle fx.Lifecycle,
	notifier Notifier,
) {
	lifecycle.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return notifier.Close()
		},
	})
}
