package processor

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"live-digest/internal/live_digest/model"
)

// groupSep 模型常把团体名写成一个字符串
var groupSep = regexp.MustCompile(`[,，、/;；]+`)

// stripCodeFences 移除开头/结尾的代码块标记
func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
		// ```json / ```JSON 之类的语言标记
		if i := strings.IndexAny(s, "\n{["); i >= 0 && !strings.ContainsAny(s[:i], "{}[]\"") {
			s = s[i:]
		}
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// parseFragment 解析模型输出；失败返回 ok=false
func parseFragment(text string) (model.Fragment, bool) {
	var raw any
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return model.Fragment{}, false
	}

	// 某些模型会返回数组，取第一个对象
	if arr, ok := raw.([]any); ok {
		if len(arr) == 0 {
			return model.Fragment{}, false
		}
		raw = arr[0]
	}
	m, ok := raw.(map[string]any)
	if !ok {
		return model.Fragment{}, false
	}

	return model.Fragment{
		LiveDate:     strings.TrimSpace(asString(m["live_date"])),
		LiveLocation: strings.TrimSpace(asString(m["live_location"])),
		Groups:       asGroups(m["groups"]),
		MainText:     asString(m["main_text"]),
	}, true
}

// fallbackFragment 结构化失败时只保留原文
func fallbackFragment(cleaned string) model.Fragment {
	return model.Fragment{
		LiveDate:     "",
		LiveLocation: "",
		Groups:       []string{},
		MainText:     cleaned,
	}
}

func asString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case []any:
		parts := make([]string, 0, len(t))
		for _, p := range t {
			if s := strings.TrimSpace(asString(p)); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, "\n")
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return ""
		}
		return string(b)
	}
}

func asGroups(v any) []string {
	out := []string{}
	switch t := v.(type) {
	case nil:
	case string:
		for _, g := range groupSep.Split(t, -1) {
			if g = strings.TrimSpace(g); g != "" {
				out = append(out, g)
			}
		}
	case []any:
		for _, g := range t {
			if s := strings.TrimSpace(asString(g)); s != "" {
				out = append(out, s)
			}
		}
	default:
		if s := strings.TrimSpace(asString(t)); s != "" {
			out = append(out, s)
		}
	}
	return out
}
