package ranking

import (
	"context"
	"fmt"

	"chainarena/internal/storage"
)

// NewStore returns the participant store for the active storage backend.
// The caller keeps ownership of store and closes it on shutdown.
func NewStore(ctx context.Context, store storage.Storage) (Store, error) {
	if store == nil {
		return nil, fmt.Errorf("storage is required")
	}

	switch store.Type() {
	case storage.TypeSQLite:
		return NewSQLiteStore(store.SQLiteDB())
	case storage.TypePostgreSQL:
		return NewPostgreSQLStore(ctx, store.PostgreSQLPool())
	case storage.TypeMongoDB:
		return NewMongoDBStore(store.MongoDatabase())
	default:
		return nil, fmt.Errorf("unknown storage type: %s", store.Type())
	}
}
