package model

// Fragment 抽取服务返回的结构化片段；解析失败时只有 MainText 有值
type Fragment struct {
	LiveDate     string   `json:"live_date"`
	LiveLocation string   `json:"live_location"`
	Groups       []string `json:"groups"`
	MainText     string   `json:"main_text"`
}

// EventRecord 持久化单元，_id 即 weibo_id，保证分片内唯一
type EventRecord struct {
	WeiboID      string   `bson:"_id" json:"weibo_id"`
	URL          string   `bson:"url" json:"url"`
	Date         string   `bson:"date" json:"date"` // 原微博发布日期
	LiveDate     string   `bson:"live_date" json:"live_date"`
	LiveLocation string   `bson:"live_location" json:"live_location"`
	Groups       []string `bson:"groups" json:"groups"`
	MainText     string   `bson:"main_text" json:"main_text"`
}

// NewEventRecord 合并原始微博元信息与抽取片段
func NewEventRecord(post RawPost, frag Fragment) *EventRecord {
	groups := frag.Groups
	if groups == nil {
		groups = []string{}
	}
	return &EventRecord{
		WeiboID:      post.ID,
		URL:          post.URL,
		Date:         post.PublishedAt,
		LiveDate:     frag.LiveDate,
		LiveLocation: frag.LiveLocation,
		Groups:       groups,
		MainText:     frag.MainText,
	}
}
