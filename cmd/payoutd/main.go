package main

import (
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"

	"github.com/mygitzaki/zylike-creator-platform-sub001/internal/bonus"
	"github.com/mygitzaki/zylike-creator-platform-sub001/internal/clock"
	"github.com/mygitzaki/zylike-creator-platform-sub001/internal/config"
	"github.com/mygitzaki/zylike-creator-platform-sub001/internal/disbursement"
	"github.com/mygitzaki/zylike-creator-platform-sub001/internal/earning"
	"github.com/mygitzaki/zylike-creator-platform-sub001/internal/migration"
	"github.com/mygitzaki/zylike-creator-platform-sub001/internal/observability"
	"github.com/mygitzaki/zylike-creator-platform-sub001/internal/payout"
	"github.com/mygitzaki/zylike-creator-platform-sub001/internal/scheduler"
	"github.com/mygitzaki/zylike-creator-platform-sub001/pkg/db"
)

func main() {
	app := fx.New(
		// Core Infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		migration.Module,
		clock.Module,

		// Functional Domains
		bonus.Module,
		earning.Module,
		payout.Module,
		disbursement.Module,
		scheduler.Module,
	)
	app.Run()
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.SnowflakeNode)
}
