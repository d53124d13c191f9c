package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// WriteClient provides read/write access to the helpdesk PostgreSQL store
type WriteClient struct {
	db *sqlx.DB
}

// NewWriteClient connects to the helpdesk store
func NewWriteClient(databaseURL string) (*WriteClient, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable not set")
	}

	db, err := sqlx.Connect(driverPostgres, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database with write access: %w", err)
	}

	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &WriteClient{db: db}, nil
}

// NewWriteClientFromDB wraps an existing connection
func NewWriteClientFromDB(db *sqlx.DB) *WriteClient {
	return &WriteClient{db: db}
}

// GetDB returns the underlying database connection
func (wc *WriteClient) GetDB() *sqlx.DB {
	return wc.db
}

// Close closes the database connection
func (wc *WriteClient) Close() error {
	return wc.db.Close()
}

// withTx runs fn in a transaction, committing on success and rolling back on error
func withTx(ctx context.Context, db *sqlx.DB, fn func(tx *sqlx.Tx) error) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
