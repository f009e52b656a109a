// Package storage opens the database connection that backs the participant
// catalogs. Exactly one backend is active per process.
package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"chainarena/config"
)

// Type constants for storage backends
const (
	TypeSQLite     = "sqlite"
	TypePostgreSQL = "postgresql"
	TypeMongoDB    = "mongodb"
)

// Storage is an open connection to one backend.
// Implementations must be safe for concurrent use.
type Storage interface {
	// Type returns the storage type ("sqlite", "postgresql", or "mongodb")
	Type() string

	// SQLiteDB returns the *sql.DB connection for SQLite, nil otherwise.
	SQLiteDB() *sql.DB

	// PostgreSQLPool returns the pgx pool for PostgreSQL, nil otherwise.
	PostgreSQLPool() *pgxpool.Pool

	// MongoDatabase returns the MongoDB database, nil otherwise.
	MongoDatabase() *mongo.Database

	// Close releases all resources held by the storage.
	Close() error
}

// New connects to the backend selected by cfg.Type.
func New(ctx context.Context, cfg config.StorageConfig) (Storage, error) {
	switch cfg.Type {
	case TypeSQLite:
		return NewSQLite(cfg.SQLite)
	case TypePostgreSQL:
		return NewPostgreSQL(ctx, cfg.PostgreSQL)
	case TypeMongoDB:
		return NewMongoDB(ctx, cfg.MongoDB)
	default:
		return nil, fmt.Errorf("unknown storage type: %s (valid: sqlite, postgresql, mongodb)", cfg.Type)
	}
}
