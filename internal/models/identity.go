package models

// Роли вызывающих. Анонимный пользователь — обычный владелец,
// привязанный к своей сессии, а не аккаунт.
const (
	RoleUser      = "user"
	RoleAdmin     = "admin"
	RoleAnonymous = "anonymous"
)

// Identity личность вызывающего, собирается один раз на запрос
// на границе транспорта и дальше передаётся в фасад без изменений.
// Ядро доверяет этому значению как уже проверенному.
type Identity struct {
	Username string
	Role     string
}

// Authenticated личность по проверенному аккаунту.
func Authenticated(username, role string) Identity {
	return Identity{Username: username, Role: role}
}

// Anonymous синтетическая личность по идентификатору сессии.
func Anonymous(sessionID string) Identity {
	return Identity{Username: "anon-" + sessionID, Role: RoleAnonymous}
}

func (i Identity) IsAdmin() bool {
	return i.Role == RoleAdmin
}

// Snapshot владелец, который будет зафиксирован в создаваемой ссылке.
func (i Identity) Snapshot() *Owner {
	return &Owner{Username: i.Username, Role: i.Role}
}
