package model

// RawPost 上游采集器产出的一条原始微博（JSONL 每行一条）
type RawPost struct {
	ID          string `json:"weibo_id"`
	URL         string `json:"url"`
	PublishedAt string `json:"date"` // 微博发布时间，原样保留
	Content     string `json:"content"`
}
