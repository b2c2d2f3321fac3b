package store

import (
	"context"
	"fmt"

	"github.com/mmdatafocus/shopledger_backend/config"
)

// OpenFromEnv builds the repository selected by LEDGER_STORE.
func OpenFromEnv(ctx context.Context) (Repository, error) {
	kind := config.LedgerStoreKind()
	switch kind {
	case config.StoreKindMemory:
		return NewMemoryStore(ctx, nil)
	case config.StoreKindFile:
		return NewMemoryStore(ctx, NewFilePersister(config.LedgerFilePath()))
	case config.StoreKindRedis:
		rdb, err := config.ConnectRedisWithRetry(ctx)
		if err != nil {
			return nil, err
		}
		return NewMemoryStore(ctx, NewRedisPersister(rdb, config.RedisSnapshotKey()))
	case config.StoreKindMySQL, config.StoreKindPostgres:
		db, err := config.ConnectDatabaseWithRetry(kind)
		if err != nil {
			return nil, err
		}
		s := NewGormStore(db)
		if err := s.Migrate(); err != nil {
			return nil, fmt.Errorf("migrate %s: %w", kind, err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unsupported LEDGER_STORE %q", kind)
	}
}
