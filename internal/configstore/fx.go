package configstore

import (
	"github.com/smallbiznis/creditmeter/internal/configstore/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("configstore",
	fx.Provide(repository.NewRepository),
)
