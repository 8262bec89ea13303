// Package database persists the request and proxy audit log in Postgres.
package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/spf13/viper"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"egress-client/pkg/models"
)

type DB struct {
	*bun.DB
}

func NewDB() (*DB, error) {
	dsn := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		viper.GetString("database.user"),
		viper.GetString("database.password"),
		viper.GetString("database.host"),
		viper.GetInt("database.port"),
		viper.GetString("database.dbname"),
		viper.GetString("database.sslmode"),
	)

	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))

	db := bun.NewDB(sqldb, pgdialect.New())

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %v", err)
	}

	return &DB{db}, nil
}

// InitSchema creates the audit tables if they don't exist.
func (db *DB) InitSchema(ctx context.Context) error {
	for _, model := range []interface{}{
		(*models.RequestLog)(nil),
		(*models.ProxyFetch)(nil),
	} {
		_, err := db.NewCreateTable().
			Model(model).
			IfNotExists().
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to create table: %v", err)
		}
	}
	return nil
}

func (db *DB) InsertRequestLog(ctx context.Context, log *models.RequestLog) error {
	_, err := db.NewInsert().
		Model(log).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("error inserting request log: %v", err)
	}
	return nil
}

func (db *DB) InsertProxyFetch(ctx context.Context, fetch *models.ProxyFetch) error {
	_, err := db.NewInsert().
		Model(fetch).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("error inserting proxy fetch: %v", err)
	}
	return nil
}

// RecordProxyFetch lets the DB act as the pool's fetch audit sink.
func (db *DB) RecordProxyFetch(ctx context.Context, platform, address string, valid bool) error {
	return db.InsertProxyFetch(ctx, &models.ProxyFetch{
		Platform: platform,
		Address:  address,
		Valid:    valid,
	})
}

// GetRecentRequests returns the newest request logs, most recent first.
func (db *DB) GetRecentRequests(ctx context.Context, limit int) ([]models.RequestLog, error) {
	var logs []models.RequestLog
	err := db.NewSelect().
		Model(&logs).
		Order("created_at DESC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("error getting recent requests: %v", err)
	}
	return logs, nil
}
