package plandef

import (
	"github.com/smallbiznis/creditmeter/internal/plandef/service"
	"go.uber.org/fx"
)

var Module = fx.Module("plandef.service",
	fx.Provide(service.NewService),
)
