package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/referralhub/internal/clock"
	"github.com/smallbiznis/referralhub/internal/config"
	"github.com/smallbiznis/referralhub/internal/migration"
	"github.com/smallbiznis/referralhub/internal/observability"
	"github.com/smallbiznis/referralhub/internal/providers"
	"github.com/smallbiznis/referralhub/internal/ratelimit"
	"github.com/smallbiznis/referralhub/internal/server"
	"github.com/smallbiznis/referralhub/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

func main() {
	app := fx.New(
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log.Named("fx")}
		}),

		// Core infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,

		providers.Module,
		ratelimit.Module,

		// Domains and HTTP surface
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
