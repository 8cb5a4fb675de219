package snapshot

import (
	"go.uber.org/fx"
	"gorm.io/gorm"
)

// NewModule returns the snapshot module options
func NewModule() fx.Option {
	return fx.Options(
		fx.Provide(
			fx.Annotate(
				func(db *gorm.DB) Provider {
					return NewProvider(db)
				},
			),
		),
	)
}
