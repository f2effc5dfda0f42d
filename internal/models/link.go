package models

import (
	"time"

	"github.com/google/uuid"
)

// Owner снимок владельца на момент создания ссылки.
// Намеренно денормализован: последующие изменения аккаунта его не трогают.
type Owner struct {
	Username string `json:"username"`
	Role     string `json:"role"`
}

type Link struct {
	ID          uuid.UUID     `json:"id"`
	ShortCode   string        `json:"short_code"`
	OriginalURL string        `json:"original_url"`
	Owner       *Owner        `json:"owner,omitempty"`
	AccessCount int64         `json:"access_count"`
	AccessLog   []AccessEvent `json:"access_log,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
}

// AggregateStats сводка по истории доступов. Вычисляется при каждом чтении,
// ничего не материализуется.
type AggregateStats struct {
	AccessCount   int64          `json:"access_count"`
	AccessTimes   []time.Time    `json:"access_times"`
	BrowserStats  map[string]int `json:"browser_stats"`
	PlatformStats map[string]int `json:"platform_stats"`
}
