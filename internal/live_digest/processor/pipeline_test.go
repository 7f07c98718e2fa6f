package processor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"live-digest/internal/live_digest/model"
	"live-digest/internal/live_digest/store"
)

// stubExtractor 按 weibo_id 返回预设的 live_date；failIDs 中的条目返回服务错误
type stubExtractor struct {
	liveDates map[string]string
	failIDs   map[string]bool
	calls     []string
}

func (s *stubExtractor) Extract(_ context.Context, post model.RawPost) (*model.EventRecord, error) {
	s.calls = append(s.calls, post.ID)
	if s.failIDs[post.ID] {
		return nil, errors.Join(ErrExtractionService, errors.New("http 502"))
	}
	return model.NewEventRecord(post, model.Fragment{
		LiveDate: s.liveDates[post.ID],
		MainText: post.Content,
	}), nil
}

func posts(ids ...string) []model.RawPost {
	out := make([]model.RawPost, 0, len(ids))
	for _, id := range ids {
		out = append(out, model.RawPost{
			ID:          id,
			URL:         "https://weibo.cn/comment/" + id,
			PublishedAt: "2025-05-20 10:00",
			Content:     "正文 " + id,
		})
	}
	return out
}

func newFilePipeline(t *testing.T, ext RecordExtractor) (*Pipeline, *store.FileShards, string) {
	dir := t.TempDir()
	fs, err := store.NewFileShards(dir, time.Second, zap.NewNop())
	require.NoError(t, err)
	return &Pipeline{Log: zap.NewNop(), Extractor: ext, Store: fs}, fs, dir
}

func TestPipelineRoutesByLiveDate(t *testing.T) {
	ext := &stubExtractor{liveDates: map[string]string{
		"1": "2025-06-01",
		"2": " 2025-06-01 ",
		"3": "6月1日",
		"4": "",
		"5": "2025-07-15",
	}}
	p, fs, _ := newFilePipeline(t, ext)
	ctx := context.Background()

	sum, err := p.Run(ctx, posts("1", "2", "3", "4", "5"))
	require.NoError(t, err)
	assert.Equal(t, 5, sum.Total)
	assert.Equal(t, 5, sum.Inserted)
	assert.NotEmpty(t, sum.RunID)
	assert.Equal(t, map[model.ShardKey]int{
		"2025-06-01":        2,
		"2025-07-15":        1,
		model.FallbackShard: 2,
	}, sum.ByShard)

	recs, err := fs.List(ctx, model.FallbackShard)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "3", recs[0].WeiboID)
	assert.Equal(t, "6月1日", recs[0].LiveDate, "live_date kept verbatim")
}

func TestPipelineIsIdempotent(t *testing.T) {
	ext := &stubExtractor{liveDates: map[string]string{"1": "2025-06-01", "2": "2025-06-02"}}
	p, fs, _ := newFilePipeline(t, ext)
	ctx := context.Background()

	_, err := p.Run(ctx, posts("1", "2"))
	require.NoError(t, err)
	first, err := fs.List(ctx, "2025-06-01")
	require.NoError(t, err)

	sum, err := p.Run(ctx, posts("1", "2"))
	require.NoError(t, err)
	assert.Equal(t, 0, sum.Inserted)
	assert.Equal(t, 2, sum.Duplicates)

	second, err := fs.List(ctx, "2025-06-01")
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestPipelineSkipsFailedExtraction(t *testing.T) {
	ext := &stubExtractor{
		liveDates: map[string]string{"1": "2025-06-01", "3": "2025-06-01"},
		failIDs:   map[string]bool{"2": true},
	}
	p, fs, _ := newFilePipeline(t, ext)
	ctx := context.Background()

	sum, err := p.Run(ctx, posts("1", "2", "3"))
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Failed)
	assert.Equal(t, 2, sum.Inserted)
	assert.Equal(t, []string{"1", "2", "3"}, ext.calls)

	recs, err := fs.List(ctx, "2025-06-01")
	require.NoError(t, err)
	assert.Len(t, recs, 2)
}

func TestPipelineIsolatesCorruptShard(t *testing.T) {
	ext := &stubExtractor{liveDates: map[string]string{"1": "2025-06-01", "2": "2025-06-02"}}
	p, fs, dir := newFilePipeline(t, ext)
	ctx := context.Background()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "2025-06-01.json"), []byte("{not json"), 0o644))

	sum, err := p.Run(ctx, posts("1", "2"))
	require.NoError(t, err)
	assert.Equal(t, 1, sum.ShardErrs)
	assert.Equal(t, 1, sum.Inserted)

	recs, err := fs.List(ctx, "2025-06-02")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "2", recs[0].WeiboID)

	raw, err := os.ReadFile(filepath.Join(dir, "2025-06-01.json"))
	require.NoError(t, err)
	assert.Equal(t, "{not json", string(raw), "corrupt shard left untouched")
}

func TestPipelineInvalidPost(t *testing.T) {
	ext := &stubExtractor{}
	p, _, _ := newFilePipeline(t, ext)

	sum, err := p.Run(context.Background(), posts("", "1"))
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Invalid)
	assert.Equal(t, 1, sum.Inserted)
	assert.Equal(t, []string{"1"}, ext.calls)
}

func TestPipelineGlobalDedup(t *testing.T) {
	ext := &stubExtractor{liveDates: map[string]string{"1": "2025-06-01"}}
	p, _, _ := newFilePipeline(t, ext)
	ctx := context.Background()

	_, err := p.Run(ctx, posts("1"))
	require.NoError(t, err)

	// 第二次抽取出不同日期，默认会写进另一个分片
	ext.liveDates["1"] = "2025-06-08"
	ext.calls = nil
	p.GlobalDedup = true

	sum, err := p.Run(ctx, posts("1", "1"))
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Known)
	assert.Equal(t, 0, sum.Inserted)
	assert.Empty(t, ext.calls, "extractor not called for known ids")
}

func TestPipelineWithoutGlobalDedupAllowsCrossShardCopies(t *testing.T) {
	ext := &stubExtractor{liveDates: map[string]string{"1": "2025-06-01"}}
	p, fs, _ := newFilePipeline(t, ext)
	ctx := context.Background()

	_, err := p.Run(ctx, posts("1"))
	require.NoError(t, err)
	ext.liveDates["1"] = "2025-06-08"
	sum, err := p.Run(ctx, posts("1"))
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Inserted)

	keys, err := fs.ListShardKeys(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []model.ShardKey{"2025-06-01", "2025-06-08"}, keys)
}

func TestPipelineStopsOnCancel(t *testing.T) {
	ext := &stubExtractor{}
	p, _, _ := newFilePipeline(t, ext)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sum, err := p.Run(ctx, posts("1", "2"))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, sum.Total)
	assert.Empty(t, ext.calls)
}
