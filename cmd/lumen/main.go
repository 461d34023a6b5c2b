package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/lumenadtech/lumen/internal/audit"
	"github.com/lumenadtech/lumen/internal/billing"
	"github.com/lumenadtech/lumen/internal/cache"
	"github.com/lumenadtech/lumen/internal/campaign"
	"github.com/lumenadtech/lumen/internal/clock"
	"github.com/lumenadtech/lumen/internal/config"
	"github.com/lumenadtech/lumen/internal/delivery"
	"github.com/lumenadtech/lumen/internal/events"
	"github.com/lumenadtech/lumen/internal/identity"
	"github.com/lumenadtech/lumen/internal/notify"
	"github.com/lumenadtech/lumen/internal/observability"
	"github.com/lumenadtech/lumen/internal/scheduler"
	"github.com/lumenadtech/lumen/internal/seed"
	"github.com/lumenadtech/lumen/internal/server"
	"github.com/lumenadtech/lumen/internal/settlement"
	"github.com/lumenadtech/lumen/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,

		cache.Module,
		events.Module,
		notify.Module,
		identity.Module,
		audit.Module,
		campaign.Module,
		delivery.Module,
		billing.Module,
		settlement.Module,
		scheduler.Module,
		seed.Module,

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
