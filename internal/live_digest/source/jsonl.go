// Package source 读写采集器产出的原始微博（JSON Lines），并把 weibo-spider 的导出转换成 RawPost。
package source

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"

	"live-digest/internal/live_digest/model"
)

// maxLineSize 单条微博正文可能很长
const maxLineSize = 4 << 20

// ReadPosts 逐行解析；空行跳过，坏行记日志后跳过
func ReadPosts(r io.Reader, log *zap.Logger) ([]model.RawPost, error) {
	if log == nil {
		log = zap.NewNop()
	}
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	var posts []model.RawPost
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		var p model.RawPost
		if err := json.Unmarshal([]byte(text), &p); err != nil {
			log.Warn("Invalid JSON line, skipping", zap.Int("line", line), zap.Error(err))
			continue
		}
		posts = append(posts, p)
	}
	if err := sc.Err(); err != nil {
		return posts, fmt.Errorf("read posts at line %d: %w", line+1, err)
	}
	return posts, nil
}

// ReadPostsFile ReadPosts 的文件版本；"-" 表示 stdin
func ReadPostsFile(path string, log *zap.Logger) ([]model.RawPost, error) {
	if path == "-" {
		return ReadPosts(os.Stdin, log)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}
	defer f.Close()
	return ReadPosts(f, log)
}

// WritePosts 每条一行，保留中文原样
func WritePosts(w io.Writer, posts []model.RawPost) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	for _, p := range posts {
		if err := enc.Encode(p); err != nil {
			return fmt.Errorf("write post %s: %w", p.ID, err)
		}
	}
	return nil
}
