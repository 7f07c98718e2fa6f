package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// DateLayout 分片日期格式
const DateLayout = "2006-01-02"

// FallbackShard 无法解析 live_date 的记录统一落到这个分片
const FallbackShard ShardKey = "undated"

var ErrInvalidShardKey = errors.New("invalid shard key")

// ShardKey 分片名：YYYY-MM-DD 或 FallbackShard
type ShardKey string

// ParseShardKey 校验外部传入的分片名（文件名、URL 参数等）
func ParseShardKey(s string) (ShardKey, error) {
	if s == string(FallbackShard) {
		return FallbackShard, nil
	}
	if _, err := time.Parse(DateLayout, s); err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidShardKey, s)
	}
	return ShardKey(s), nil
}

func (k ShardKey) String() string { return string(k) }

// IsDate 是否是日期分片
func (k ShardKey) IsDate() bool {
	_, ok := k.Date()
	return ok
}

// Date 分片对应的日期（UTC 零点）
func (k ShardKey) Date() (time.Time, bool) {
	if k == FallbackShard {
		return time.Time{}, false
	}
	t, err := time.Parse(DateLayout, string(k))
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// CollectionName 表/集合名：<prefix>YYYY_MM_DD，与 content_YYYY_MM_DD 同一套命名
func (k ShardKey) CollectionName(prefix string) string {
	return prefix + strings.ReplaceAll(string(k), "-", "_")
}

// ShardKeyFromCollection CollectionName 的逆操作，非分片集合返回 false
func ShardKeyFromCollection(prefix, name string) (ShardKey, bool) {
	if !strings.HasPrefix(name, prefix) {
		return "", false
	}
	key, err := ParseShardKey(strings.ReplaceAll(strings.TrimPrefix(name, prefix), "_", "-"))
	if err != nil {
		return "", false
	}
	return key, true
}
