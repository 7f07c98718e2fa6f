package render

import (
	"html/template"
	"regexp"
	"strings"
)

// urlPattern 简单 URL 匹配，排除常见的中英文结束符
var urlPattern = regexp.MustCompile(`https?://[^\s)\]}，,。；;'"<>]+`)

const anchorAttrs = ` target="_blank" rel="noopener noreferrer"`

// linkify 转义正文并把 http/https 链接替换成可点的 <a>，换行转为 <br>
func linkify(text string) template.HTML {
	if text == "" {
		return ""
	}

	var sb strings.Builder
	last := 0
	for _, m := range urlPattern.FindAllStringIndex(text, -1) {
		sb.WriteString(escapeLines(text[last:m[0]]))
		u := template.HTMLEscapeString(text[m[0]:m[1]])
		sb.WriteString(`<a href="` + u + `"` + anchorAttrs + `>` + u + `</a>`)
		last = m[1]
	}
	sb.WriteString(escapeLines(text[last:]))
	return template.HTML(sb.String())
}

func escapeLines(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(template.HTMLEscapeString(s), "\n", "<br>")
}

func joinGroups(groups []string) string {
	return strings.Join(groups, ", ")
}
