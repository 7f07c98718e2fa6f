package helper

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"live-digest/pkg/mongodb"
)

type Stores struct {
	Client *mongo.Client
	DB     *mongo.Database
}

// ConnectMongo 连接并 ping，失败直接返回错误
func ConnectMongo(ctx context.Context, cfg mongodb.MongoConfig) (*Stores, error) {
	clientOpts := options.Client().ApplyURI(cfg.URI())
	if cfg.HasAuth() {
		clientOpts.SetAuth(options.Credential{
			Username:   cfg.Username,
			Password:   cfg.Password,
			AuthSource: cfg.AuthSource,
		})
	}

	cli, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err = cli.Ping(ctx, nil); err != nil {
		_ = cli.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	return &Stores{
		Client: cli,
		DB:     cli.Database(cfg.DBName),
	}, nil
}

// Close 断开连接
func (s *Stores) Close(ctx context.Context) error {
	return s.Client.Disconnect(ctx)
}

// EnsureShardIndexes 确保分片集合有常用查询索引（live_date、date）
func EnsureShardIndexes(ctx context.Context, db *mongo.Database, collName string) error {
	c := db.Collection(collName)
	_, err := c.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "live_date", Value: 1}}},
		{Keys: bson.D{{Key: "date", Value: 1}}},
	})
	return err
}
