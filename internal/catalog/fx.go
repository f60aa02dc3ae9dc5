package catalog

import (
	"github.com/smallbiznis/meterbill/internal/config"
	"go.uber.org/fx"
)

var Module = fx.Module("catalog",
	fx.Provide(func(cfg config.Config) (*Holder, error) {
		return NewHolder(cfg.CatalogPath)
	}),
)
