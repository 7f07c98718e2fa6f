package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"live-digest/internal/live_digest/model"
)

// SQLiteShards 每个分片一张表（live_2025_06_01），weibo_id 为主键。
// 插入用 ON CONFLICT DO NOTHING，跨进程也是原子的 insert-if-absent。
type SQLiteShards struct {
	Log    *zap.Logger
	db     *sql.DB
	prefix string
}

// OpenSQLite 打开数据库；file 模式启用 WAL
func OpenSQLite(dbPath, prefix string, log *zap.Logger) (*SQLiteShards, error) {
	connStr := dbPath
	if dbPath == ":memory:" {
		connStr = "file::memory:?cache=shared"
	}

	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if dbPath != ":memory:" {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enable WAL mode: %w", err)
		}
		if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
			db.Close()
			return nil, fmt.Errorf("set busy timeout: %w", err)
		}
	}

	if prefix == "" {
		prefix = "live_"
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &SQLiteShards{Log: log, db: db, prefix: prefix}, nil
}

// table 表名只来自校验过的 ShardKey，可以安全拼进 SQL
func (s *SQLiteShards) table(key model.ShardKey) string {
	return `"` + key.CollectionName(s.prefix) + `"`
}

func (s *SQLiteShards) ensureTable(ctx context.Context, key model.ShardKey) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS `+s.table(key)+` (
			weibo_id TEXT PRIMARY KEY,
			url TEXT NOT NULL DEFAULT '',
			date TEXT NOT NULL DEFAULT '',
			live_date TEXT NOT NULL DEFAULT '',
			live_location TEXT NOT NULL DEFAULT '',
			group_names TEXT NOT NULL DEFAULT '[]',
			main_text TEXT NOT NULL DEFAULT ''
		)`)
	return err
}

func (s *SQLiteShards) Insert(ctx context.Context, key model.ShardKey, rec *model.EventRecord) (InsertOutcome, error) {
	if rec == nil || rec.WeiboID == "" {
		return 0, fmt.Errorf("insert into shard %s: empty weibo_id", key)
	}
	if _, err := model.ParseShardKey(string(key)); err != nil {
		return 0, err
	}
	if err := s.ensureTable(ctx, key); err != nil {
		return 0, &ShardError{Key: key, Err: fmt.Errorf("create table: %w", err)}
	}

	groups, err := json.Marshal(rec.Groups)
	if err != nil {
		return 0, fmt.Errorf("marshal groups: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO `+s.table(key)+` (weibo_id, url, date, live_date, live_location, group_names, main_text)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(weibo_id) DO NOTHING`,
		rec.WeiboID, rec.URL, rec.Date, rec.LiveDate, rec.LiveLocation, string(groups), rec.MainText,
	)
	if err != nil {
		return 0, &ShardError{Key: key, Err: fmt.Errorf("insert record: %w", err)}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, &ShardError{Key: key, Err: fmt.Errorf("rows affected: %w", err)}
	}
	if n == 0 {
		return SkippedDuplicate, nil
	}
	return Inserted, nil
}

func (s *SQLiteShards) List(ctx context.Context, key model.ShardKey) ([]model.EventRecord, error) {
	if _, err := model.ParseShardKey(string(key)); err != nil {
		return nil, err
	}
	exists, err := s.hasTable(ctx, key)
	if err != nil {
		return nil, err
	}
	if !exists {
		return []model.EventRecord{}, nil
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT weibo_id, url, date, live_date, live_location, group_names, main_text FROM "+s.table(key)+" ORDER BY weibo_id")
	if err != nil {
		return nil, corrupt(key, err)
	}
	defer rows.Close()

	out := []model.EventRecord{}
	for rows.Next() {
		var r model.EventRecord
		var groups string
		if err := rows.Scan(&r.WeiboID, &r.URL, &r.Date, &r.LiveDate, &r.LiveLocation, &groups, &r.MainText); err != nil {
			return nil, corrupt(key, err)
		}
		if err := json.Unmarshal([]byte(groups), &r.Groups); err != nil {
			return nil, corrupt(key, fmt.Errorf("groups of %s: %w", r.WeiboID, err))
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, corrupt(key, err)
	}
	return out, nil
}

func (s *SQLiteShards) ListShardKeys(ctx context.Context) ([]model.ShardKey, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT name FROM sqlite_master WHERE type='table'")
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	defer rows.Close()

	var keys []model.ShardKey
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan table name: %w", err)
		}
		if key, ok := model.ShardKeyFromCollection(s.prefix, name); ok {
			keys = append(keys, key)
		}
	}
	return keys, rows.Err()
}

func (s *SQLiteShards) hasTable(ctx context.Context, key model.ShardKey) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name = ?", key.CollectionName(s.prefix),
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("lookup table: %w", err)
	}
	return n > 0, nil
}

func (s *SQLiteShards) Close(context.Context) error {
	return s.db.Close()
}
