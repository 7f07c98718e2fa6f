// Package store 按 live_date 分片持久化 EventRecord。
//
// 每个分片是独立的存储单元（JSON 文件 / SQLite 表 / Mongo 集合），
// weibo_id 只在分片内唯一。分片列表每次都从存储重新扫描，不做进程内缓存。
package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"live-digest/internal/live_digest/model"
)

var (
	// ErrCorruptShard 分片内容无法读取/解码，只影响该分片
	ErrCorruptShard = errors.New("corrupt shard")
	// ErrShardLocked 等待分片写锁超时
	ErrShardLocked = errors.New("shard locked")
)

// InsertOutcome 插入结果
type InsertOutcome int

const (
	Inserted InsertOutcome = iota
	SkippedDuplicate
)

func (o InsertOutcome) String() string {
	switch o {
	case Inserted:
		return "inserted"
	case SkippedDuplicate:
		return "skipped_duplicate"
	default:
		return fmt.Sprintf("InsertOutcome(%d)", int(o))
	}
}

// ShardStore 分片存储。Insert 对同一分片是 insert-if-absent。
type ShardStore interface {
	Insert(ctx context.Context, key model.ShardKey, rec *model.EventRecord) (InsertOutcome, error)
	List(ctx context.Context, key model.ShardKey) ([]model.EventRecord, error)
	ListShardKeys(ctx context.Context) ([]model.ShardKey, error)
	Close(ctx context.Context) error
}

// ShardError 标明出错的分片
type ShardError struct {
	Key model.ShardKey
	Err error
}

func (e *ShardError) Error() string {
	return fmt.Sprintf("shard %s: %v", e.Key, e.Err)
}

func (e *ShardError) Unwrap() error { return e.Err }

func corrupt(key model.ShardKey, err error) error {
	return &ShardError{Key: key, Err: fmt.Errorf("%w: %w", ErrCorruptShard, err)}
}

// Directory 某一时刻扫描到的分片集合，每次操作开始时现算
type Directory struct {
	Keys []model.ShardKey
}

// LoadDirectory 扫描存储得到当前分片
func LoadDirectory(ctx context.Context, s ShardStore) (Directory, error) {
	keys, err := s.ListShardKeys(ctx)
	if err != nil {
		return Directory{}, fmt.Errorf("list shard keys: %w", err)
	}
	sortKeys(keys)
	return Directory{Keys: keys}, nil
}

// Has 分片是否存在
func (d Directory) Has(key model.ShardKey) bool {
	for _, k := range d.Keys {
		if k == key {
			return true
		}
	}
	return false
}

// Upcoming 日期 >= asOf 的分片，升序；兜底分片不参与
func (d Directory) Upcoming(asOf time.Time) []model.ShardKey {
	day := time.Date(asOf.Year(), asOf.Month(), asOf.Day(), 0, 0, 0, 0, time.UTC)
	var out []model.ShardKey
	for _, k := range d.Keys {
		t, ok := k.Date()
		if !ok || t.Before(day) {
			continue
		}
		out = append(out, k)
	}
	sortKeys(out)
	return out
}

// sortKeys 日期升序，兜底分片排最后
func sortKeys(keys []model.ShardKey) {
	sort.Slice(keys, func(i, j int) bool {
		a, b := keys[i].IsDate(), keys[j].IsDate()
		if a != b {
			return a
		}
		return keys[i] < keys[j]
	})
}

// sortRecords 存储层统一按 weibo_id 输出，保证多次读取顺序一致
func sortRecords(recs []model.EventRecord) {
	sort.Slice(recs, func(i, j int) bool { return recs[i].WeiboID < recs[j].WeiboID })
}
