package classifier

import (
	"regexp"
	"strings"
)

var (
	// 候选对象必须以 {"key": 开头
	kvShape = regexp.MustCompile(`^\{\s*"[^"\\]*"\s*:`)
	// 定位 reason 字段的值起点
	reasonKey = regexp.MustCompile(`"reason"\s*:\s*`)
	// 合法的 JSON 字面量，不需要加引号
	jsonLiteral = regexp.MustCompile(`^(null|true|false|-?\d+(\.\d+)?([eE][+-]?\d+)?)\s*(,|\}|\n|$)`)
	// 正确闭合的字符串值
	closedString = regexp.MustCompile(`^"(?:[^"\\\n]|\\.)*"\s*(,|\}|\n|$)`)
)

// Repair extracts the first key-value shaped {...} object from text and
// requotes a bare or unterminated reason value. Only reason is ever
// requoted. It reports false when text holds no candidate object.
func Repair(text string) (string, bool) {
	candidate, ok := extractObject(text)
	if !ok {
		return "", false
	}
	return requoteReason(candidate), true
}

// extractObject returns the first balanced {...} substring that looks like a
// JSON object. When braces never balance, the candidate runs to the last
// closing brace in text.
func extractObject(text string) (string, bool) {
	for from := 0; from < len(text); {
		i := strings.IndexByte(text[from:], '{')
		if i < 0 {
			return "", false
		}
		start := from + i

		candidate := balanced(text[start:])
		if candidate == "" {
			if end := strings.LastIndexByte(text, '}'); end > start {
				candidate = text[start : end+1]
			}
		}
		if candidate != "" && kvShape.MatchString(candidate) {
			return candidate, true
		}
		from = start + 1
	}
	return "", false
}

// balanced scans s, which starts with '{', and returns the prefix up to the
// matching '}', or "" if it never closes. Braces inside strings are ignored.
func balanced(s string) string {
	depth := 0
	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[:i+1]
			}
		}
	}
	return ""
}

func requoteReason(obj string) string {
	loc := reasonKey.FindStringIndex(obj)
	if loc == nil {
		return obj
	}
	start := loc[1]
	rest := obj[start:]
	if jsonLiteral.MatchString(rest) || closedString.MatchString(rest) {
		return obj
	}

	end := len(rest)
	if i := strings.IndexAny(rest, "}\n"); i >= 0 {
		end = i
	}

	value := strings.TrimSpace(rest[:end])
	comma := strings.HasSuffix(value, ",")
	value = strings.TrimSpace(strings.TrimSuffix(value, ","))
	if strings.HasPrefix(value, `"`) {
		value = strings.TrimSuffix(strings.TrimPrefix(value, `"`), `"`)
	}

	var b strings.Builder
	b.WriteString(obj[:start])
	b.WriteString(quote(value))
	if comma {
		b.WriteByte(',')
	}
	b.WriteString(rest[end:])
	return b.String()
}

func quote(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	s = strings.ReplaceAll(s, "\t", `\t`)
	s = strings.ReplaceAll(s, "\r", "")
	return `"` + s + `"`
}
