package db

import "time"

// User 表示 users 表的完整结构
type User struct {
	Email            string    `json:"email"`
	TelegramID       *string   `json:"telegram_id,omitempty"`
	ForwardConfirmed bool      `json:"forward_confirmed"`
	UpdatedAt        time.Time `json:"updated_at"`
}
