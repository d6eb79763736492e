package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/academy/internal/clock"
	"github.com/smallbiznis/academy/internal/migration"
	"github.com/smallbiznis/academy/internal/observability"
	"github.com/smallbiznis/academy/internal/seed"
	"github.com/smallbiznis/academy/internal/server"
	"github.com/smallbiznis/academy/pkg/db"
	"github.com/smallbiznis/academy/pkg/kv"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core Infrastructure
		observability.Module,
		clock.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		kv.Module,
		migration.Module,
		seed.Module,

		// HTTP surface and the domains behind it
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
