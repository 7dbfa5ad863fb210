package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/creditmeter/internal/authorization"
	"github.com/smallbiznis/creditmeter/internal/cache"
	"github.com/smallbiznis/creditmeter/internal/clock"
	"github.com/smallbiznis/creditmeter/internal/config"
	"github.com/smallbiznis/creditmeter/internal/configstore"
	"github.com/smallbiznis/creditmeter/internal/eventdef"
	"github.com/smallbiznis/creditmeter/internal/ledger"
	"github.com/smallbiznis/creditmeter/internal/migration"
	"github.com/smallbiznis/creditmeter/internal/observability"
	"github.com/smallbiznis/creditmeter/internal/organization"
	"github.com/smallbiznis/creditmeter/internal/plandef"
	"github.com/smallbiznis/creditmeter/internal/providers"
	"github.com/smallbiznis/creditmeter/internal/ratelimit"
	"github.com/smallbiznis/creditmeter/internal/scheduler"
	"github.com/smallbiznis/creditmeter/internal/seed"
	"github.com/smallbiznis/creditmeter/internal/server"
	"github.com/smallbiznis/creditmeter/internal/usage"
	"github.com/smallbiznis/creditmeter/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,
		ratelimit.Module,
		providers.Module,

		// Registries and storage
		cache.Module,
		configstore.Module,
		eventdef.Module,
		plandef.Module,
		organization.Module,
		ledger.Module,

		// Metering
		usage.Module,
		authorization.Module,
		seed.Module,
		scheduler.Module,
		server.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
