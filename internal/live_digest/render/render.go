// Package render 把日期分片渲染成可浏览的静态 HTML：
// 每个分片一页、一个目录页、一个内联全部分片的汇总页，以及固定地址的 current.html。
package render

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"sort"
	"time"

	"go.uber.org/zap"

	"live-digest/internal/live_digest/model"
	"live-digest/internal/live_digest/store"
	"live-digest/pkg/config"
)

const (
	IndexFile   = "index.html"
	CurrentFile = "current.html"

	OrderAsc  = "asc"
	OrderDesc = "desc"

	CurrentAggregate = "aggregate"
	CurrentIndex     = "index"
)

//go:embed templates
var templateFS embed.FS

var pages = template.Must(template.New("pages").
	Funcs(template.FuncMap{"linkify": linkify, "joinGroups": joinGroups}).
	ParseFS(templateFS, "templates/*.tmpl"))

// Page 一个渲染好的文件
type Page struct {
	Name string
	Body []byte
}

// Result 一次渲染的全部产物
type Result struct {
	AsOf      time.Time
	Shards    []model.ShardKey // 成功渲染的分片，升序
	PerShard  map[model.ShardKey]Page
	Index     Page
	Aggregate Page
	Current   Page
	Failed    []model.ShardKey // 读取失败（损坏）被跳过的分片
}

// Pages 按固定顺序列出所有文件，便于写盘和比较
func (r *Result) Pages() []Page {
	out := make([]Page, 0, len(r.Shards)+3)
	for _, k := range r.Shards {
		out = append(out, r.PerShard[k])
	}
	return append(out, r.Index, r.Aggregate, r.Current)
}

// Renderer 纯读取 + 转换，不修改分片
type Renderer struct {
	Log   *zap.Logger
	Store store.ShardStore
	Opts  config.RenderConfig
}

func NewRenderer(s store.ShardStore, opts config.RenderConfig, log *zap.Logger) *Renderer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Renderer{Log: log, Store: s, Opts: opts}
}

type shardView struct {
	Key     string
	File    string
	Count   int
	Records []model.EventRecord
}

// ShardFile 分片页文件名
func ShardFile(key model.ShardKey) string {
	return key.String() + ".html"
}

// AggregateFile 汇总页文件名，带 as-of 日期
func AggregateFile(asOf time.Time) string {
	return "live_" + asOf.Format(model.DateLayout) + ".html"
}

// RenderAll 渲染日期 >= asOf 的全部分片；损坏的分片记日志后跳过
func (r *Renderer) RenderAll(ctx context.Context, asOf time.Time) (*Result, error) {
	dir, err := store.LoadDirectory(ctx, r.Store)
	if err != nil {
		return nil, err
	}

	res := &Result{AsOf: asOf, PerShard: map[model.ShardKey]Page{}}
	asOfStr := asOf.Format(model.DateLayout)
	aggFile := AggregateFile(asOf)
	title := r.Opts.Title

	var views []shardView
	for _, key := range dir.Upcoming(asOf) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		recs, err := r.Store.List(ctx, key)
		if err != nil {
			res.Failed = append(res.Failed, key)
			r.Log.Error("Failed to read shard, skipping",
				zap.String("shard", key.String()),
				zap.Error(err),
			)
			continue
		}
		sortForPage(recs)

		v := shardView{Key: key.String(), File: ShardFile(key), Count: len(recs), Records: recs}
		body, err := execute("shard", map[string]any{
			"Title":     fmt.Sprintf("%s · %s", title, key),
			"IndexFile": IndexFile,
			"Records":   recs,
		})
		if err != nil {
			return nil, fmt.Errorf("render shard %s: %w", key, err)
		}
		res.PerShard[key] = Page{Name: v.File, Body: body}
		res.Shards = append(res.Shards, key)
		views = append(views, v)
	}

	index, err := execute("index", map[string]any{
		"Title":         title,
		"AsOf":          asOfStr,
		"AggregateFile": aggFile,
		"Shards":        ordered(views, r.Opts.IndexOrder),
	})
	if err != nil {
		return nil, fmt.Errorf("render index: %w", err)
	}
	res.Index = Page{Name: IndexFile, Body: index}

	agg, err := execute("aggregate", map[string]any{
		"Title":     fmt.Sprintf("%s · %s", title, asOfStr),
		"AsOf":      asOfStr,
		"IndexFile": IndexFile,
		"Shards":    ordered(views, r.Opts.AggregateOrder),
	})
	if err != nil {
		return nil, fmt.Errorf("render aggregate: %w", err)
	}
	res.Aggregate = Page{Name: aggFile, Body: agg}

	switch r.Opts.Current {
	case CurrentIndex:
		res.Current = Page{Name: CurrentFile, Body: res.Index.Body}
	default:
		res.Current = Page{Name: CurrentFile, Body: res.Aggregate.Body}
	}

	r.Log.Info("Render completed",
		zap.String("asOf", asOfStr),
		zap.Int("shards", len(res.Shards)),
		zap.Int("failed", len(res.Failed)),
	)
	return res, nil
}

// Write 把渲染结果整体写入输出目录，current.html 每次覆盖
func (r *Renderer) Write(res *Result) error {
	outDir := r.Opts.OutputDir
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	for _, p := range res.Pages() {
		if err := writeFileAtomic(filepath.Join(outDir, p.Name), p.Body); err != nil {
			return fmt.Errorf("write %s: %w", p.Name, err)
		}
	}
	r.Log.Info("Pages written", zap.String("dir", outDir), zap.Int("files", len(res.Pages())))
	return nil
}

// Run 渲染并写盘
func (r *Renderer) Run(ctx context.Context, asOf time.Time) (*Result, error) {
	res, err := r.RenderAll(ctx, asOf)
	if err != nil {
		return nil, err
	}
	return res, r.Write(res)
}

func execute(name string, data any) ([]byte, error) {
	var buf bytes.Buffer
	if err := pages.ExecuteTemplate(&buf, name, data); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// sortForPage live_date 升序，相同时按发布日期、weibo_id
func sortForPage(recs []model.EventRecord) {
	sort.SliceStable(recs, func(i, j int) bool {
		a, b := recs[i], recs[j]
		if a.LiveDate != b.LiveDate {
			return a.LiveDate < b.LiveDate
		}
		if a.Date != b.Date {
			return a.Date < b.Date
		}
		return a.WeiboID < b.WeiboID
	})
}

// ordered views 本身是升序
func ordered(views []shardView, order string) []shardView {
	out := make([]shardView, len(views))
	copy(out, views)
	if order == OrderDesc {
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}
	return out
}

func writeFileAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
