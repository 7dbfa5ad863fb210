package eventdef

import (
	"github.com/smallbiznis/creditmeter/internal/eventdef/service"
	"go.uber.org/fx"
)

var Module = fx.Module("eventdef.service",
	fx.Provide(service.NewService),
)
