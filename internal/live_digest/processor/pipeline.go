package processor

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"live-digest/internal/live_digest/helper"
	"live-digest/internal/live_digest/model"
	"live-digest/internal/live_digest/store"
)

// RecordExtractor Extractor 的抽象，便于替换
type RecordExtractor interface {
	Extract(ctx context.Context, post model.RawPost) (*model.EventRecord, error)
}

// Pipeline 顺序处理：抽取 -> 定分片 -> 写入，一条处理完再处理下一条
type Pipeline struct {
	Log       *zap.Logger
	Extractor RecordExtractor
	Store     store.ShardStore

	// 抽取前在全部分片中查重（默认只做分片内去重）
	GlobalDedup bool
}

// Summary 一次运行的统计
type Summary struct {
	RunID      string
	Total      int
	Inserted   int
	Duplicates int
	Known      int // GlobalDedup 命中，未调用抽取服务
	Invalid    int // 缺少 weibo_id
	Failed     int // 抽取服务失败
	ShardErrs  int // 分片损坏/加锁失败
	ByShard    map[model.ShardKey]int
}

// Run 处理一批微博。单条失败只记录日志，不影响后续；只有 ctx 取消会提前返回
func (p *Pipeline) Run(ctx context.Context, posts []model.RawPost) (Summary, error) {
	sum := Summary{
		RunID:   uuid.New().String(),
		ByShard: map[model.ShardKey]int{},
	}
	log := p.Log.With(zap.String("run", sum.RunID))
	log.Info("Ingest started", zap.Int("posts", len(posts)))

	var known map[string]bool
	if p.GlobalDedup {
		known = p.knownIDs(ctx, log)
	}

	for _, post := range posts {
		if err := ctx.Err(); err != nil {
			log.Warn("Ingest cancelled", zap.Int("processed", sum.Total), zap.Error(err))
			return sum, err
		}
		sum.Total++

		if post.ID == "" {
			sum.Invalid++
			log.Warn("Post without weibo_id skipped", zap.String("url", post.URL))
			continue
		}
		if known[post.ID] {
			sum.Known++
			log.Info("Post already stored, skipping extraction", zap.String("weiboId", post.ID))
			continue
		}

		rec, err := p.Extractor.Extract(ctx, post)
		if err != nil {
			if ctx.Err() != nil {
				log.Warn("Ingest cancelled", zap.Int("processed", sum.Total), zap.Error(err))
				return sum, ctx.Err()
			}
			sum.Failed++
			log.Error("Failed to extract post",
				zap.String("weiboId", post.ID),
				zap.Error(err),
			)
			continue
		}

		key := helper.ResolveShard(rec.LiveDate)
		if key == model.FallbackShard {
			log.Info("Unparseable live date, routing to fallback shard",
				zap.String("weiboId", post.ID),
				zap.String("liveDate", rec.LiveDate),
			)
		}

		outcome, err := p.Store.Insert(ctx, key, rec)
		if err != nil {
			if ctx.Err() != nil {
				return sum, ctx.Err()
			}
			sum.ShardErrs++
			log.Error("Failed to insert record",
				zap.String("weiboId", post.ID),
				zap.String("shard", key.String()),
				zap.Bool("corrupt", errors.Is(err, store.ErrCorruptShard)),
				zap.Error(err),
			)
			continue
		}

		switch outcome {
		case store.SkippedDuplicate:
			sum.Duplicates++
			log.Info("Duplicate record skipped",
				zap.String("weiboId", post.ID),
				zap.String("shard", key.String()),
			)
		case store.Inserted:
			sum.Inserted++
			sum.ByShard[key]++
			if known != nil {
				known[post.ID] = true
			}
			log.Debug("Record inserted",
				zap.String("weiboId", post.ID),
				zap.String("shard", key.String()),
			)
		}
	}

	log.Info("Ingest completed",
		zap.Int("total", sum.Total),
		zap.Int("inserted", sum.Inserted),
		zap.Int("duplicates", sum.Duplicates),
		zap.Int("known", sum.Known),
		zap.Int("failed", sum.Failed),
		zap.Int("shardErrors", sum.ShardErrs),
	)
	return sum, nil
}

// knownIDs 汇总现有全部分片的 weibo_id；损坏分片跳过
func (p *Pipeline) knownIDs(ctx context.Context, log *zap.Logger) map[string]bool {
	known := map[string]bool{}
	dir, err := store.LoadDirectory(ctx, p.Store)
	if err != nil {
		log.Error("Failed to scan shards for global dedup", zap.Error(err))
		return known
	}
	for _, key := range dir.Keys {
		recs, err := p.Store.List(ctx, key)
		if err != nil {
			log.Error("Failed to read shard for global dedup",
				zap.String("shard", key.String()),
				zap.Error(err),
			)
			continue
		}
		for _, r := range recs {
			known[r.WeiboID] = true
		}
	}
	return known
}
