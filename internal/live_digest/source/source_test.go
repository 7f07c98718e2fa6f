package source

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"live-digest/internal/live_digest/model"
	"live-digest/pkg/config"
)

func TestReadPostsSkipsBadLines(t *testing.T) {
	input := strings.Join([]string{
		`{"weibo_id":"1","url":"https://weibo.cn/comment/1","date":"2025-05-01 10:00","content":"第一条"}`,
		``,
		`{not json`,
		`  {"weibo_id":"2","content":"第二条\n换行"}  `,
	}, "\n")

	posts, err := ReadPosts(strings.NewReader(input), zap.NewNop())
	require.NoError(t, err)
	require.Len(t, posts, 2)
	assert.Equal(t, model.RawPost{
		ID:          "1",
		URL:         "https://weibo.cn/comment/1",
		PublishedAt: "2025-05-01 10:00",
		Content:     "第一条",
	}, posts[0])
	assert.Equal(t, "第二条\n换行", posts[1].Content)
}

func TestReadPostsLongLine(t *testing.T) {
	long := strings.Repeat("长", 200*1024)
	posts, err := ReadPosts(strings.NewReader(`{"weibo_id":"1","content":"`+long+`"}`), nil)
	require.NoError(t, err)
	require.Len(t, posts, 1)
	assert.Equal(t, long, posts[0].Content)
}

func TestWritePostsRoundTrip(t *testing.T) {
	in := []model.RawPost{
		{ID: "1", URL: "https://weibo.cn/comment/1", PublishedAt: "2025-05-01", Content: "上海 <MAO> & 乐队"},
		{ID: "2", Content: "第二行\n"},
	}
	var buf bytes.Buffer
	require.NoError(t, WritePosts(&buf, in))
	assert.Contains(t, buf.String(), "上海 <MAO> & 乐队")
	assert.Equal(t, 2, strings.Count(buf.String(), "\n"))

	out, err := ReadPosts(&buf, nil)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestFromSpider(t *testing.T) {
	dump := `{"user":{"id":"7716940453"},"weibo":[
		{"id":"4937000000000001","created_at":"2023-08-01 12:30","content":"转发 #live演出情报# 转发内容: 8月22日 上海MAO 乐队A"},
		{"id":4937000000000002,"created_at":"2023-08-02","content":"#live演出情报# 转发内容:\n北京 乐队B"},
		{"id":"4937000000000003","content":"日常 转发内容: 上海 乐队C"},
		{"id":"4937000000000004","content":"#live演出情报# 没有转发"},
		{"content":"#live演出情报# 转发内容: 上海"},
		{"id":4937000000000005,"created_at":"2023-08-03","content":"#live演出情报# 转发内容:  上海 乐队D\n第二行 "}
	]}`
	cfg := config.CollectConfig{Topic: "#live演出情报", Cities: []string{"上海"}, URLPrefix: "https://weibo.cn/comment/"}

	posts, err := FromSpider([]byte(dump), cfg, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, []model.RawPost{
		{
			ID:          "4937000000000001",
			URL:         "https://weibo.cn/comment/4937000000000001",
			PublishedAt: "2023-08-01 12:30",
			Content:     "8月22日 上海MAO 乐队A",
		},
		{
			ID:          "4937000000000005",
			URL:         "https://weibo.cn/comment/4937000000000005",
			PublishedAt: "2023-08-03",
			Content:     "上海 乐队D\n第二行",
		},
	}, posts)
}

func TestFromSpiderWithoutCityFilter(t *testing.T) {
	dump := `{"weibo":[{"id":"1","content":"#live演出情报# 转发内容: 北京"}]}`
	posts, err := FromSpider([]byte(dump), config.CollectConfig{Topic: "#live演出情报"}, nil)
	require.NoError(t, err)
	require.Len(t, posts, 1)
	assert.Equal(t, "1", posts[0].URL)
}

func TestFromSpiderBadJSON(t *testing.T) {
	_, err := FromSpider([]byte(`{"weibo":`), config.CollectConfig{}, nil)
	assert.Error(t, err)
}
