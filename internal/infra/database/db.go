package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"
)

const pingTimeout = 5 * time.Second

// PoolConfig sizes the connection pool. The cycle fans out over a bounded
// number of workers, so MaxOpenConns should be at least CYCLE_WORKERS.
type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxOpenConns:    25,
		MaxIdleConns:    25,
		ConnMaxLifetime: 5 * time.Minute,
		ConnMaxIdleTime: time.Minute,
	}
}

func (p PoolConfig) apply(db *sql.DB) {
	idle := p.MaxIdleConns
	if idle > p.MaxOpenConns {
		idle = p.MaxOpenConns
	}
	db.SetMaxOpenConns(p.MaxOpenConns)
	db.SetMaxIdleConns(idle)
	db.SetConnMaxLifetime(p.ConnMaxLifetime)
	db.SetConnMaxIdleTime(p.ConnMaxIdleTime)
}

// Open validates the DSN, builds a pooled handle on the lib/pq connector and
// waits for the first successful ping.
func Open(ctx context.Context, dsn string, pool PoolConfig) (*sql.DB, error) {
	connector, err := pq.NewConnector(dsn)
	if err != nil {
		return nil, fmt.Errorf("invalid DATABASE_URL: %w", err)
	}
	db := sql.OpenDB(connector)
	pool.apply(db)

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}
