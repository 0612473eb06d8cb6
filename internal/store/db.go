package store

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// DB wraps sql.DB for the Postgres mirror using pgx.
type DB struct {
	Client *sql.DB
}

// NewDB opens the mirror database and pings it. The DB is returned even when
// the ping fails so callers can decide whether to degrade or exit.
func NewDB(ctx context.Context, connString string) (*DB, error) {
	db, err := sql.Open("pgx", connString)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return &DB{Client: db}, db.PingContext(pingCtx)
}

// Healthy reports whether the database answers a ping.
func (d *DB) Healthy(ctx context.Context) bool {
	if d == nil || d.Client == nil {
		return false
	}
	return d.Client.PingContext(ctx) == nil
}

// Close closes the underlying connection.
func (d *DB) Close() error {
	if d == nil || d.Client == nil {
		return nil
	}
	return d.Client.Close()
}
