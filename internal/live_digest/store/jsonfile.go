package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"live-digest/internal/live_digest/model"
)

const (
	shardExt         = ".json"
	lockPollInterval = 20 * time.Millisecond
	// 单次插入只持锁几毫秒，超过这个时长的锁视为持有者已退出
	defaultStaleLockAge = 2 * time.Minute
)

// FileShards 每个分片一个 JSON 文件：<dir>/<key>.json，内容为 weibo_id -> record。
// 写入前拿 <key>.json.lock 独占锁，多进程写同一分片时串行。
type FileShards struct {
	Log         *zap.Logger
	Dir         string
	LockTimeout time.Duration
	// 锁文件记录的进程已不存在，或锁文件比 StaleLockAge 更旧时，清理后重试
	StaleLockAge time.Duration
}

// NewFileShards 创建目录并返回文件分片存储
func NewFileShards(dir string, lockTimeout time.Duration, log *zap.Logger) (*FileShards, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create shard dir: %w", err)
	}
	if lockTimeout <= 0 {
		lockTimeout = 10 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &FileShards{Log: log, Dir: dir, LockTimeout: lockTimeout, StaleLockAge: defaultStaleLockAge}, nil
}

func (s *FileShards) path(key model.ShardKey) string {
	return filepath.Join(s.Dir, string(key)+shardExt)
}

func (s *FileShards) Insert(ctx context.Context, key model.ShardKey, rec *model.EventRecord) (InsertOutcome, error) {
	if rec == nil || rec.WeiboID == "" {
		return 0, fmt.Errorf("insert into shard %s: empty weibo_id", key)
	}

	unlock, err := s.lock(ctx, key)
	if err != nil {
		return 0, err
	}
	defer unlock()

	recs, err := s.load(key)
	if err != nil {
		return 0, err
	}
	if _, exists := recs[rec.WeiboID]; exists {
		return SkippedDuplicate, nil
	}
	recs[rec.WeiboID] = *rec

	data, err := json.MarshalIndent(recs, "", "  ")
	if err != nil {
		return 0, fmt.Errorf("marshal shard %s: %w", key, err)
	}
	if err := writeFileAtomic(s.path(key), data); err != nil {
		return 0, &ShardError{Key: key, Err: fmt.Errorf("write: %w", err)}
	}
	return Inserted, nil
}

func (s *FileShards) List(_ context.Context, key model.ShardKey) ([]model.EventRecord, error) {
	recs, err := s.load(key)
	if err != nil {
		return nil, err
	}
	out := make([]model.EventRecord, 0, len(recs))
	for _, r := range recs {
		out = append(out, r)
	}
	sortRecords(out)
	return out, nil
}

func (s *FileShards) ListShardKeys(_ context.Context) ([]model.ShardKey, error) {
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read shard dir: %w", err)
	}

	var keys []model.ShardKey
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, shardExt) {
			continue
		}
		key, err := model.ParseShardKey(strings.TrimSuffix(name, shardExt))
		if err != nil {
			s.Log.Debug("Ignoring non-shard file", zap.String("file", name))
			continue
		}
		keys = append(keys, key)
	}
	return keys, nil
}

func (s *FileShards) Close(context.Context) error { return nil }

// load 读取整个分片；文件不存在视为空分片
func (s *FileShards) load(key model.ShardKey) (map[string]model.EventRecord, error) {
	data, err := os.ReadFile(s.path(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return map[string]model.EventRecord{}, nil
		}
		return nil, corrupt(key, err)
	}
	recs := map[string]model.EventRecord{}
	if len(strings.TrimSpace(string(data))) == 0 {
		return recs, nil
	}
	if err := json.Unmarshal(data, &recs); err != nil {
		return nil, corrupt(key, err)
	}
	return recs, nil
}

// lock 以 O_EXCL 创建锁文件，轮询直到超时或 ctx 取消；遇到残留的锁先清理
func (s *FileShards) lock(ctx context.Context, key model.ShardKey) (func(), error) {
	lockPath := s.path(key) + ".lock"
	deadline := time.Now().Add(s.LockTimeout)

	for {
		f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			_, _ = fmt.Fprintf(f, "%d\n", os.Getpid())
			_ = f.Close()
			return func() {
				if err := os.Remove(lockPath); err != nil {
					s.Log.Warn("Failed to release shard lock", zap.String("lock", lockPath), zap.Error(err))
				}
			}, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, &ShardError{Key: key, Err: fmt.Errorf("create lock: %w", err)}
		}

		if holder, ok := s.staleLock(lockPath); ok && s.breakLock(lockPath, holder) {
			s.Log.Warn("Removed stale shard lock",
				zap.String("lock", lockPath),
				zap.Int("pid", holder.pid),
				zap.Time("lockedAt", holder.modTime),
			)
			continue
		}

		if time.Now().After(deadline) {
			return nil, &ShardError{Key: key, Err: fmt.Errorf("%w: %s held longer than %s", ErrShardLocked, lockPath, s.LockTimeout)}
		}

		timer := time.NewTimer(lockPollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

// lockHolder 锁文件里记录的进程号（0 表示未知）和锁文件修改时间
type lockHolder struct {
	pid     int
	modTime time.Time
}

func readLockHolder(path string) (lockHolder, error) {
	info, err := os.Stat(path)
	if err != nil {
		return lockHolder{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return lockHolder{}, err
	}
	pid, _ := strconv.Atoi(strings.TrimSpace(string(data)))
	return lockHolder{pid: pid, modTime: info.ModTime()}, nil
}

// staleLock 持有进程已退出，或锁太旧
func (s *FileShards) staleLock(lockPath string) (lockHolder, bool) {
	holder, err := readLockHolder(lockPath)
	if err != nil {
		return lockHolder{}, false
	}
	if holder.pid > 0 && holder.pid != os.Getpid() && !processAlive(holder.pid) {
		return holder, true
	}
	maxAge := s.StaleLockAge
	if maxAge <= 0 {
		maxAge = defaultStaleLockAge
	}
	return holder, time.Since(holder.modTime) > maxAge
}

// breakLock 先把锁改名再删除。改名后发现拿到的已不是判定为残留的那把锁
// （另一个进程抢先清理并重新加了锁），就把它还回去
func (s *FileShards) breakLock(lockPath string, holder lockHolder) bool {
	grave := fmt.Sprintf("%s.stale.%d", lockPath, os.Getpid())
	if err := os.Rename(lockPath, grave); err != nil {
		return false
	}
	taken, err := readLockHolder(grave)
	if err != nil || taken.pid != holder.pid || !taken.modTime.Equal(holder.modTime) {
		if err := os.Link(grave, lockPath); err != nil {
			s.Log.Warn("Failed to restore shard lock", zap.String("lock", lockPath), zap.Error(err))
		}
		_ = os.Remove(grave)
		return false
	}
	_ = os.Remove(grave)
	return true
}

// writeFileAtomic 原子写入文件（先写临时文件再重命名）
func writeFileAtomic(filePath string, data []byte) error {
	tmpFile := filePath + ".tmp"
	if err := os.WriteFile(tmpFile, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmpFile, filePath)
}
