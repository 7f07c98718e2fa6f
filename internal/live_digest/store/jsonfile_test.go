package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"live-digest/internal/live_digest/model"
)

func TestFileShardsContract(t *testing.T) {
	runContract(t, func(t *testing.T) ShardStore {
		s, err := NewFileShards(t.TempDir(), time.Second, nil)
		require.NoError(t, err)
		return s
	})
}

func TestFileShardsCorruptShardIsolated(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s, err := NewFileShards(dir, time.Second, nil)
	require.NoError(t, err)

	_, err = s.Insert(ctx, "2025-06-01", record("good", "2025-06-01"))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "2025-07-01.json"), []byte("{not json"), 0o644))

	_, err = s.List(ctx, "2025-07-01")
	assert.ErrorIs(t, err, ErrCorruptShard)
	var se *ShardError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, model.ShardKey("2025-07-01"), se.Key)

	_, err = s.Insert(ctx, "2025-07-01", record("new", "2025-07-01"))
	assert.ErrorIs(t, err, ErrCorruptShard)

	// 其它分片照常读写
	out, err := s.Insert(ctx, "2025-06-01", record("other", "2025-06-01"))
	require.NoError(t, err)
	assert.Equal(t, Inserted, out)
	recs, err := s.List(ctx, "2025-06-01")
	require.NoError(t, err)
	assert.Len(t, recs, 2)

	// 损坏分片仍能被发现
	keys, err := s.ListShardKeys(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []model.ShardKey{"2025-06-01", "2025-07-01"}, keys)
}

func TestFileShardsIgnoresForeignFiles(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileShards(dir, time.Second, nil)
	require.NoError(t, err)

	for _, name := range []string{"notes.txt", "weibo_db.json", "2025-06-01.json.tmp", "2025-06-01.json.lock"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("{}"), 0o644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "2025-01-01.json"), 0o755))

	keys, err := s.ListShardKeys(context.Background())
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestFileShardsWaitsForLock(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s, err := NewFileShards(dir, 100*time.Millisecond, nil)
	require.NoError(t, err)

	lockPath := filepath.Join(dir, "2025-06-01.json.lock")
	require.NoError(t, os.WriteFile(lockPath, []byte("1\n"), 0o644))

	_, err = s.Insert(ctx, "2025-06-01", record("a", "2025-06-01"))
	assert.ErrorIs(t, err, ErrShardLocked)

	// 锁释放后可以写入
	go func() {
		time.Sleep(30 * time.Millisecond)
		_ = os.Remove(lockPath)
	}()
	s.LockTimeout = 2 * time.Second
	out, err := s.Insert(ctx, "2025-06-01", record("a", "2025-06-01"))
	require.NoError(t, err)
	assert.Equal(t, Inserted, out)

	_, err = os.Stat(lockPath)
	assert.ErrorIs(t, err, os.ErrNotExist, "lock released after insert")
}

func TestFileShardsBreaksOldLock(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s, err := NewFileShards(dir, 200*time.Millisecond, nil)
	require.NoError(t, err)
	s.StaleLockAge = time.Minute

	// 记录的是当前进程，按进程判断不算残留，只能靠锁的年龄
	lockPath := filepath.Join(dir, "2025-06-01.json.lock")
	require.NoError(t, os.WriteFile(lockPath, []byte(fmt.Sprintf("%d\n", os.Getpid())), 0o644))

	_, err = s.Insert(ctx, "2025-06-01", record("a", "2025-06-01"))
	assert.ErrorIs(t, err, ErrShardLocked, "fresh lock is respected")

	old := time.Now().Add(-2 * time.Minute)
	require.NoError(t, os.Chtimes(lockPath, old, old))

	out, err := s.Insert(ctx, "2025-06-01", record("a", "2025-06-01"))
	require.NoError(t, err)
	assert.Equal(t, Inserted, out)
	_, err = os.Stat(lockPath)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestFileShardsLockRespectsContext(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileShards(dir, time.Minute, nil)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "2025-06-01.json.lock"), nil, 0o644))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = s.Insert(ctx, "2025-06-01", record("a", "2025-06-01"))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestFileShardsEmptyFileIsEmptyShard(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileShards(dir, time.Second, nil)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "2025-06-01.json"), nil, 0o644))

	recs, err := s.List(context.Background(), "2025-06-01")
	require.NoError(t, err)
	assert.Empty(t, recs)
}
