// Package data provides data access layer implementations.
// It holds the GitHub collaborator, the Redis merge lock and report cache, and the audit log store.
package data

import (
	"context"

	"MergeLane/internal/conf"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/wire"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// ProviderSet is data providers.
var ProviderSet = wire.NewSet(
	NewData,
	NewRedisClient,
	NewCacheClient,
	NewMySQLClient,
	NewGitHubClient,
	NewReportCacheRepo,
	NewRedisMergeLock,
	NewAuditLogger,
	NewNoopNotifier,
)

// Data contains the shared storage clients.
type Data struct {
	// redisClient backs merge locks and the report cache
	redisClient *redis.Client
	// db backs the audit log, nil when no database is configured
	db *gorm.DB
}

// NewData creates a new Data instance with all data layer dependencies.
// Missing Redis or MySQL does not prevent application startup (graceful degradation).
func NewData(_ *conf.Data, logger log.Logger, rdb *redis.Client, db *gorm.DB) (*Data, func(), error) {
	helper := log.NewHelper(logger)

	if rdb == nil {
		helper.Warn("Redis client is nil, merge locks and report cache will be unavailable")
	}
	if db == nil {
		helper.Warn("database is nil, audit records go to the application log")
	}

	d := &Data{
		redisClient: rdb,
		db:          db,
	}

	cleanup := func() {
		helper.Info("closing the data resources")
		// Redis and MySQL cleanup is handled by their constructors' cleanup functions
	}

	return d, cleanup, nil
}

// Health reports the state of each storage dependency: "ok", "disabled" or the error text.
func (d *Data) Health(ctx context.Context) map[string]string {
	status := map[string]string{"redis": "disabled", "database": "disabled"}

	if d.redisClient != nil {
		if err := d.redisClient.Ping(ctx).Err(); err != nil {
			status["redis"] = err.Error()
		} else {
			status["redis"] = "ok"
		}
	}

	if d.db != nil {
		sqlDB, err := d.db.DB()
		if err == nil {
			err = sqlDB.PingContext(ctx)
		}
		if err != nil {
			status["database"] = err.Error()
		} else {
			status["database"] = "ok"
		}
	}

	return status
}

// Healthy reports whether every configured dependency answered.
func (d *Data) Healthy(ctx context.Context) bool {
	for _, s := range d.Health(ctx) {
		if s != "ok" && s != "disabled" {
			return false
		}
	}
	return true
}
