package db

import (
	"context"
	"time"

	"github.com/mygitzaki/zylike-creator-platform-sub001/internal/config"
	obslogger "github.com/mygitzaki/zylike-creator-platform-sub001/internal/observability/logger"
	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("database",
	fx.Provide(
		Dialect,
		New,
	),
)

const connectAttempts = 5

type Params struct {
	fx.In

	Lifecycle fx.Lifecycle
	Config    config.Config
	Dialector gorm.Dialector
	Log       *zap.Logger
	GormLog   obslogger.GormLoggerConfig
}

// New opens the database with retries, applies pool settings and registers
// the otel plugin.
func New(p Params) (*gorm.DB, error) {
	log := p.Log.Named("database")

	var (
		conn *gorm.DB
		err  error
	)
	for attempt := 1; attempt <= connectAttempts; attempt++ {
		conn, err = gorm.Open(p.Dialector, &gorm.Config{
			Logger:         obslogger.NewGormLogger(p.Log, p.GormLog),
			NowFunc:        func() time.Time { return time.Now().UTC() },
			TranslateError: true,
		})
		if err == nil {
			break
		}
		log.Warn("database not ready", zap.Int("attempt", attempt), zap.Error(err))
		time.Sleep(time.Duration(attempt) * time.Second)
	}
	if err != nil {
		return nil, err
	}

	if err := conn.Use(otelgorm.NewPlugin()); err != nil {
		return nil, err
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return nil, err
	}
	if p.Config.DBType == TypeSQLite {
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxIdleConns(p.Config.DBMaxIdleConn)
		sqlDB.SetMaxOpenConns(p.Config.DBMaxOpenConn)
		sqlDB.SetConnMaxLifetime(time.Duration(p.Config.DBConnMaxLifetime) * time.Second)
		sqlDB.SetConnMaxIdleTime(time.Duration(p.Config.DBConnMaxIdleTime) * time.Second)
	}

	p.Lifecycle.Append(fx.Hook{
		OnStop: func(context.Context) error {
			log.Info("closing database pool")
			return sqlDB.Close()
		},
	})

	log.Info("database connected", zap.String("type", p.Config.DBType))
	return conn, nil
}
