package scheduler

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"live-digest/internal/live_digest/helper"
	"live-digest/internal/live_digest/render"
)

// PageRenderer 渲染并写盘；*render.Renderer 实现了它
type PageRenderer interface {
	Run(ctx context.Context, asOf time.Time) (*render.Result, error)
}

// Worker 启动时渲染一次，之后在每个整点锚点重新渲染，
// 保证 current.html 跟着日期往前走
type Worker struct {
	Log      *zap.Logger
	Renderer PageRenderer
	Anchors  []int // 小时，0-23
}

var defaultAnchors = []int{0, 6, 12, 18}

// nextAnchor 返回 now 之后（含）最近的锚点；当天都过了则是次日第一个锚点
func nextAnchor(now time.Time, loc *time.Location, anchors []int) time.Time {
	hours := normalizeAnchors(anchors)
	local := now.In(loc)
	for _, h := range hours {
		t := time.Date(local.Year(), local.Month(), local.Day(), h, 0, 0, 0, loc)
		if !t.Before(local) {
			return t.UTC()
		}
	}
	next := time.Date(local.Year(), local.Month(), local.Day()+1, hours[0], 0, 0, 0, loc)
	return next.UTC()
}

func normalizeAnchors(anchors []int) []int {
	var hours []int
	seen := map[int]bool{}
	for _, h := range anchors {
		if h < 0 || h > 23 || seen[h] {
			continue
		}
		seen[h] = true
		hours = append(hours, h)
	}
	if len(hours) == 0 {
		return defaultAnchors
	}
	sort.Ints(hours)
	return hours
}

func (w *Worker) Run(ctx context.Context) {
	w.runOnce(ctx)

	loc := helper.Location()
	var last time.Time
	for {
		now := time.Now()
		// 刚在锚点上触发过时，跳过同一个锚点
		if !now.After(last) {
			now = last.Add(time.Nanosecond)
		}
		next := nextAnchor(now, loc, w.Anchors)
		sleep := time.Until(next)
		if sleep < 0 {
			sleep = 0
		}
		w.Log.Info("Next render scheduled", zap.Time("at", next.In(loc)))

		timer := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			timer.Stop()
			w.Log.Info("Render scheduler stopped")
			return
		case <-timer.C:
			last = next
			w.runOnce(ctx)
		}
	}
}

func (w *Worker) runOnce(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	asOf := helper.Today()
	res, err := w.Renderer.Run(ctx, asOf)
	if err != nil {
		w.Log.Error("Scheduled render failed",
			zap.String("asOf", asOf.Format("2006-01-02")),
			zap.Error(err),
		)
		return
	}
	if len(res.Failed) > 0 {
		w.Log.Warn("Some shards skipped during render", zap.Int("failed", len(res.Failed)))
	}
}
