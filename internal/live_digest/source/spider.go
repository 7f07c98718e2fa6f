package source

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"live-digest/internal/live_digest/model"
	"live-digest/pkg/config"
)

// repostPattern 转发微博正文在 "转发内容:" 之后
var repostPattern = regexp.MustCompile(`(?s)转发内容:\s*(.*)`)

// FromSpider 转换 weibo-spider 的 JSON 导出（{"weibo":[...]}）：
// 只保留带话题标签、且转发内容提到目标城市的微博
func FromSpider(data []byte, cfg config.CollectConfig, log *zap.Logger) ([]model.RawPost, error) {
	if log == nil {
		log = zap.NewNop()
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var dump struct {
		Weibo []map[string]any `json:"weibo"`
	}
	if err := dec.Decode(&dump); err != nil {
		return nil, fmt.Errorf("decode spider dump: %w", err)
	}

	var posts []model.RawPost
	for i, item := range dump.Weibo {
		post, ok := transformSpiderItem(item, cfg, log)
		if !ok {
			log.Debug("spider item filtered out", zap.Int("index", i))
			continue
		}
		posts = append(posts, post)
	}
	log.Info("Spider dump converted",
		zap.Int("items", len(dump.Weibo)),
		zap.Int("posts", len(posts)),
	)
	return posts, nil
}

func transformSpiderItem(m map[string]any, cfg config.CollectConfig, log *zap.Logger) (model.RawPost, bool) {
	id := stringField(m, "id")
	if id == "" {
		log.Debug("no valid ID found")
		return model.RawPost{}, false
	}

	content := stringField(m, "content")
	if cfg.Topic != "" && !strings.Contains(content, cfg.Topic) {
		return model.RawPost{}, false
	}

	match := repostPattern.FindStringSubmatch(content)
	if match == nil {
		log.Debug("no repost content", zap.String("weiboId", id))
		return model.RawPost{}, false
	}
	text := strings.TrimSpace(match[1])

	if len(cfg.Cities) > 0 && !mentionsAny(text, cfg.Cities) {
		return model.RawPost{}, false
	}

	return model.RawPost{
		ID:          id,
		URL:         cfg.URLPrefix + id,
		PublishedAt: stringField(m, "created_at"),
		Content:     text,
	}, true
}

func mentionsAny(text string, words []string) bool {
	for _, w := range words {
		if w != "" && strings.Contains(text, w) {
			return true
		}
	}
	return false
}

func stringField(m map[string]any, key string) string {
	v, ok := m[key]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	default:
		return fmt.Sprintf("%v", t)
	}
}
