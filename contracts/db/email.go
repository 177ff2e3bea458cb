package db

import "time"

// NormalizedEmailRecord 是规范化邮件在对象存储中的 JSON 结构
type NormalizedEmailRecord struct {
	From        string `json:"from"`
	To          string `json:"to"`
	Subject     string `json:"subject"`
	Body        string `json:"body"`
	DisplayName string `json:"display_name"`
	// RFC 3339，Date 头缺失或无法解析时省略
	Timestamp string `json:"timestamp,omitempty"`
}

// FormatTimestamp renders t for the record, or "" for the zero time.
func FormatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
