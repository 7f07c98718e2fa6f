package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"live-digest/internal/live_digest/helper"
	"live-digest/pkg/config"
)

// Open 按 backend 打开分片存储
func Open(ctx context.Context, cfg config.StoreConfig, log *zap.Logger) (ShardStore, error) {
	switch cfg.Backend {
	case "", "file":
		return NewFileShards(cfg.Dir, cfg.LockTimeout, log)

	case "sqlite":
		if cfg.SQLite.Path != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(cfg.SQLite.Path), 0o755); err != nil {
				return nil, fmt.Errorf("create db dir: %w", err)
			}
		}
		return OpenSQLite(cfg.SQLite.Path, cfg.SQLite.Prefix, log)

	case "mongo":
		stores, err := helper.ConnectMongo(ctx, cfg.Mongo)
		if err != nil {
			return nil, err
		}
		s := NewMongoShards(stores.DB, cfg.Mongo.CollectionPrefix, cfg.Mongo.EnsureIndexes, log)
		s.closer = stores.Close
		return s, nil

	default:
		return nil, fmt.Errorf("unknown store backend: %q", cfg.Backend)
	}
}
