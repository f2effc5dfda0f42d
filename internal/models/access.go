package models

import (
	"time"
)

// AccessEvent одно разрешение короткого кода. Неизменяемо после записи.
type AccessEvent struct {
	Timestamp     time.Time `json:"timestamp"`
	Browser       string    `json:"browser"`
	IP            string    `json:"ip"`
	RequestedHost string    `json:"requested_host"`
	Platform      string    `json:"platform"`
}

// AccessMeta сырые метаданные запроса до классификации.
type AccessMeta struct {
	ShortCode     string
	UserAgent     string
	IP            string
	RequestedHost string
}
