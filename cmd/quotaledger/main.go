package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/quotaledger/internal/clock"
	"github.com/smallbiznis/quotaledger/internal/config"
	expirationrepository "github.com/smallbiznis/quotaledger/internal/expiration/repository"
	"github.com/smallbiznis/quotaledger/internal/lock"
	"github.com/smallbiznis/quotaledger/internal/migration"
	"github.com/smallbiznis/quotaledger/internal/observability"
	"github.com/smallbiznis/quotaledger/internal/quota"
	"github.com/smallbiznis/quotaledger/internal/scheduler"
	"github.com/smallbiznis/quotaledger/internal/server"
	"github.com/smallbiznis/quotaledger/internal/usage"
	"github.com/smallbiznis/quotaledger/pkg/db"
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
		lock.Module,

		// Quota domain
		usage.Module,
		expirationrepository.Module,
		quota.Module,
		scheduler.Module,

		server.Module,
	)
	app.Run()
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.NodeID)
}
