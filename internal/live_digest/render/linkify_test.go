package render

import (
	"html/template"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLinkify(t *testing.T) {
	cases := []struct {
		in   string
		want template.HTML
	}{
		{"", ""},
		{"第一行\n第二行", "第一行<br>第二行"},
		{"a & b <i>", "a &amp; b &lt;i&gt;"},
		{
			"详情见 http://t.cn/abc，欢迎",
			`详情见 <a href="http://t.cn/abc" target="_blank" rel="noopener noreferrer">http://t.cn/abc</a>，欢迎`,
		},
		{
			"(https://a.b/c)",
			`(<a href="https://a.b/c" target="_blank" rel="noopener noreferrer">https://a.b/c</a>)`,
		},
		{
			`https://x.y/"onmouseover=`,
			`<a href="https://x.y/" target="_blank" rel="noopener noreferrer">https://x.y/</a>&#34;onmouseover=`,
		},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, linkify(c.in), "input %q", c.in)
	}
}

func TestJoinGroups(t *testing.T) {
	assert.Equal(t, "", joinGroups(nil))
	assert.Equal(t, "乐队A, 乐队B", joinGroups([]string{"乐队A", "乐队B"}))
}
