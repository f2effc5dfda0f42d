package models

import (
	"time"
)

// User запись справочника пользователей. Пароли и аутентификация
// живут у внешнего коллаборатора, здесь только username и роль.
type User struct {
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}
