package session

import (
	"encoding/json"
	"fmt"
	"strings"
)

// NormalizeItemText cleans up conversation-item text before persistence.
// Speech pipelines occasionally hand back a stringified list instead of
// plain text ("['hello there']"); a JSON array is unwrapped and joined,
// anything else bracket-wrapped gets stray brackets and quoting stripped.
// Returns "" when nothing speakable remains.
func NormalizeItemText(text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}
	if !strings.HasPrefix(text, "[") || !strings.HasSuffix(text, "]") {
		return text
	}

	var parts []any
	if err := json.Unmarshal([]byte(text), &parts); err == nil {
		joined := make([]string, 0, len(parts))
		for _, p := range parts {
			s := strings.TrimSpace(fmt.Sprint(p))
			if s != "" {
				joined = append(joined, s)
			}
		}
		return strings.Join(joined, " ")
	}

	// 非合法 JSON（如 Python 风格单引号列表），直接剥掉包裹符号
	inner := strings.TrimSuffix(strings.TrimPrefix(text, "["), "]")
	inner = strings.Trim(inner, `"' `)
	return strings.TrimSpace(inner)
}
