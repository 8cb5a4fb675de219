package generator

import (
	"go.uber.org/fx"
)

// NewModule returns the generator module options
func NewModule() fx.Option {
	return fx.Options(
		fx.Provide(
			fx.Annotate(
				func() Generator {
					return NewTemplateGenerator()
				},
			),
		),
	)
}
