package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/pharmasettle/internal/clock"
	"github.com/smallbiznis/pharmasettle/internal/config"
	"github.com/smallbiznis/pharmasettle/internal/migration"
	"github.com/smallbiznis/pharmasettle/internal/observability"
	"github.com/smallbiznis/pharmasettle/internal/scheduler"
	"github.com/smallbiznis/pharmasettle/internal/server"
	"github.com/smallbiznis/pharmasettle/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core Infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,

		// HTTP surface and settlement domains
		server.Module,

		// Background jobs
		scheduler.Module,
	)
	app.Run()
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.SnowflakeNode)
}
