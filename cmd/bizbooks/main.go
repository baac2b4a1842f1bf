package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/bizbooks/internal/audit"
	"github.com/smallbiznis/bizbooks/internal/cache"
	"github.com/smallbiznis/bizbooks/internal/clock"
	"github.com/smallbiznis/bizbooks/internal/config"
	"github.com/smallbiznis/bizbooks/internal/invoice"
	"github.com/smallbiznis/bizbooks/internal/ledger"
	"github.com/smallbiznis/bizbooks/internal/migration"
	"github.com/smallbiznis/bizbooks/internal/observability"
	"github.com/smallbiznis/bizbooks/internal/organization"
	"github.com/smallbiznis/bizbooks/internal/payment"
	"github.com/smallbiznis/bizbooks/internal/scheduler"
	"github.com/smallbiznis/bizbooks/internal/server"
	"github.com/smallbiznis/bizbooks/internal/tax"
	"github.com/smallbiznis/bizbooks/pkg/db"
	"github.com/smallbiznis/bizbooks/pkg/telemetry"
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
		telemetry.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		cache.Module,
		migration.Module,

		// Domains
		audit.Module,
		organization.Module,
		tax.Module,
		ledger.Module,
		invoice.Module,
		payment.Module,

		// Background jobs and ops endpoints
		scheduler.Module,
		server.Module,
	)
	app.Run()
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.NodeID)
}
