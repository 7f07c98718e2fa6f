package helper

import (
	"strings"
	"time"
	_ "time/tzdata"

	"go.uber.org/zap"

	"live-digest/internal/live_digest/model"
)

var shanghai *time.Location

// ConfigureTimeLocation 设置时区，默认 Asia/Shanghai；加载失败记一条警告并兜底到 UTC+8
func ConfigureTimeLocation(name string, log *zap.Logger) {
	if name == "" {
		name = "Asia/Shanghai"
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		if log != nil {
			log.Warn("Failed to load time zone, falling back to UTC+8", zap.String("zone", name), zap.Error(err))
		}
		loc = time.FixedZone("CST", 8*3600)
	}
	shanghai = loc
}

// Location 当前配置的时区
func Location() *time.Location {
	if shanghai == nil {
		return time.FixedZone("CST", 8*3600)
	}
	return shanghai
}

// Today 配置时区下的今天（零点）
func Today() time.Time {
	return DayOf(time.Now())
}

// DayOf 截断到配置时区的零点，再换成 UTC 零点，与 ShardKey.Date 可比
func DayOf(t time.Time) time.Time {
	local := t.In(Location())
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)
}

// ParseAsOf 解析 YYYY-MM-DD；空串表示今天
func ParseAsOf(s string) (time.Time, error) {
	if s == "" {
		return Today(), nil
	}
	return time.Parse(model.DateLayout, s)
}

// ResolveShard 严格按 YYYY-MM-DD 解析 live_date，失败进兜底分片
func ResolveShard(liveDate string) model.ShardKey {
	s := strings.TrimSpace(liveDate)
	if s == "" {
		return model.FallbackShard
	}
	t, err := time.Parse(model.DateLayout, s)
	if err != nil {
		return model.FallbackShard
	}
	return model.ShardKey(t.Format(model.DateLayout))
}
