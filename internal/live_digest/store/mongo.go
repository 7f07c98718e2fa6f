package store

import (
	"context"
	"fmt"
	"regexp"
	"sync"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"live-digest/internal/live_digest/helper"
	"live-digest/internal/live_digest/model"
)

// MongoShards 按日期分表（collection）：live_YYYY_MM_DD，文档 _id 为 weibo_id。
// 重复 _id 由服务端拒绝，insert-if-absent 天然原子。
type MongoShards struct {
	Log           *zap.Logger
	DB            *mongo.Database
	Prefix        string
	EnsureIndexes bool

	// 本进程内已建过索引的集合
	indexed sync.Map
	closer  func(ctx context.Context) error
}

// NewMongoShards db 由调用方持有连接
func NewMongoShards(db *mongo.Database, prefix string, ensureIndexes bool, log *zap.Logger) *MongoShards {
	if prefix == "" {
		prefix = "live_"
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &MongoShards{Log: log, DB: db, Prefix: prefix, EnsureIndexes: ensureIndexes}
}

func (s *MongoShards) coll(key model.ShardKey) *mongo.Collection {
	return s.DB.Collection(key.CollectionName(s.Prefix))
}

func (s *MongoShards) Insert(ctx context.Context, key model.ShardKey, rec *model.EventRecord) (InsertOutcome, error) {
	if rec == nil || rec.WeiboID == "" {
		return 0, fmt.Errorf("insert into shard %s: empty weibo_id", key)
	}
	collName := key.CollectionName(s.Prefix)

	if s.EnsureIndexes {
		if _, done := s.indexed.LoadOrStore(collName, true); !done {
			if err := helper.EnsureShardIndexes(ctx, s.DB, collName); err != nil {
				s.Log.Warn("Failed to ensure shard indexes",
					zap.String("collection", collName),
					zap.Error(err),
				)
			}
		}
	}

	_, err := s.coll(key).InsertOne(ctx, rec)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return SkippedDuplicate, nil
		}
		return 0, &ShardError{Key: key, Err: fmt.Errorf("insert record: %w", err)}
	}
	return Inserted, nil
}

func (s *MongoShards) List(ctx context.Context, key model.ShardKey) ([]model.EventRecord, error) {
	cur, err := s.coll(key).Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, &ShardError{Key: key, Err: fmt.Errorf("find: %w", err)}
	}
	defer func(cur *mongo.Cursor, ctx context.Context) {
		if err := cur.Close(ctx); err != nil {
			s.Log.Warn("Failed to close cursor", zap.String("shard", key.String()), zap.Error(err))
		}
	}(cur, ctx)

	out := []model.EventRecord{}
	for cur.Next(ctx) {
		var r model.EventRecord
		if err := cur.Decode(&r); err != nil {
			return nil, corrupt(key, err)
		}
		out = append(out, r)
	}
	if err := cur.Err(); err != nil {
		return nil, &ShardError{Key: key, Err: fmt.Errorf("cursor: %w", err)}
	}
	return out, nil
}

func (s *MongoShards) ListShardKeys(ctx context.Context) ([]model.ShardKey, error) {
	names, err := s.DB.ListCollectionNames(ctx, shardCollectionFilter(s.Prefix))
	if err != nil {
		return nil, fmt.Errorf("list collections: %w", err)
	}
	var keys []model.ShardKey
	for _, name := range names {
		if key, ok := model.ShardKeyFromCollection(s.Prefix, name); ok {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

// shardCollectionFilter 前缀按字面匹配，"." 等元字符不能放宽范围
func shardCollectionFilter(prefix string) bson.M {
	return bson.M{"name": bson.M{"$regex": "^" + regexp.QuoteMeta(prefix)}}
}

func (s *MongoShards) Close(ctx context.Context) error {
	if s.closer != nil {
		return s.closer(ctx)
	}
	return nil
}
