package helper

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"live-digest/internal/live_digest/model"
)

func TestResolveShard(t *testing.T) {
	cases := map[string]model.ShardKey{
		"2023-08-22":          "2023-08-22",
		" 2023-08-22\n":       "2023-08-22",
		"":                    model.FallbackShard,
		"   ":                 model.FallbackShard,
		"2023/08/22":          model.FallbackShard,
		"2023-8-22":           model.FallbackShard,
		"2023-13-01":          model.FallbackShard,
		"2023-02-30":          model.FallbackShard,
		"8月22日":               model.FallbackShard,
		"2023-08-22 19:30":    model.FallbackShard,
		"2023-08-22T19:30:00Z": model.FallbackShard,
	}
	for in, want := range cases {
		assert.Equal(t, want, ResolveShard(in), "live_date %q", in)
	}
}

func TestShardKeyCollectionRoundTrip(t *testing.T) {
	for _, key := range []model.ShardKey{"2025-06-01", model.FallbackShard} {
		name := key.CollectionName("live_")
		got, ok := model.ShardKeyFromCollection("live_", name)
		require.True(t, ok, name)
		assert.Equal(t, key, got)
	}
	assert.Equal(t, "live_2025_06_01", model.ShardKey("2025-06-01").CollectionName("live_"))

	_, ok := model.ShardKeyFromCollection("live_", "system.indexes")
	assert.False(t, ok)
	_, ok = model.ShardKeyFromCollection("live_", "live_garbage")
	assert.False(t, ok)
}

func TestParseShardKey(t *testing.T) {
	_, err := model.ParseShardKey("../etc/passwd")
	assert.ErrorIs(t, err, model.ErrInvalidShardKey)

	key, err := model.ParseShardKey("undated")
	require.NoError(t, err)
	assert.False(t, key.IsDate())

	key, err = model.ParseShardKey("2025-12-31")
	require.NoError(t, err)
	assert.True(t, key.IsDate())
}

func TestConfigureTimeLocationFallback(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	log := zap.New(core)

	ConfigureTimeLocation("Not/AZone", log)
	_, offset := time.Now().In(Location()).Zone()
	assert.Equal(t, 8*3600, offset)
	entries := logs.TakeAll()
	require.Len(t, entries, 1)
	assert.Equal(t, "Not/AZone", entries[0].ContextMap()["zone"])

	ConfigureTimeLocation("Asia/Shanghai", log)
	assert.Empty(t, logs.TakeAll())
	// 2025-05-31 17:00 UTC 在上海已经是 6 月 1 日
	day := DayOf(time.Date(2025, 5, 31, 17, 0, 0, 0, time.UTC))
	assert.Equal(t, "2025-06-01", day.Format(model.DateLayout))

	ConfigureTimeLocation("Not/AZone", nil)
	assert.Equal(t, "CST", Location().String())
	ConfigureTimeLocation("", nil)
}

func TestParseAsOf(t *testing.T) {
	got, err := ParseAsOf("2025-06-01")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC), got)

	_, err = ParseAsOf("June 1")
	assert.Error(t, err)
}
