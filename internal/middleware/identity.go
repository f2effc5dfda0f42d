package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/dkuznetsov/link-registry/internal/config"
	"github.com/dkuznetsov/link-registry/internal/models"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// callerKey ключ Identity в контексте запроса. Личность собирается здесь,
// на границе транспорта, ровно один раз — дальше фасад получает её как есть.
const callerKey = "caller"

// Заголовки коллабораторов
const (
	tokenHeader    = "X-API-Token"
	authUserHeader = "X-Auth-Username"
	authRoleHeader = "X-Auth-Role"
	sessionHeader  = "X-Session-ID"
	sessionCookie  = "sid"
)

// RequireToken middleware токен-аутентификации REST API.
// Карта токен -> личность приходит из конфига; выдача и отзыв токенов —
// забота внешнего коллаборатора.
func RequireToken(tokens map[string]config.TokenIdentity) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.GetHeader(tokenHeader)

		// Запасные варианты: Authorization: Bearer и query параметр
		if token == "" {
			authHeader := c.GetHeader("Authorization")
			if strings.HasPrefix(authHeader, "Bearer ") {
				token = strings.TrimPrefix(authHeader, "Bearer ")
			}
		}
		if token == "" {
			token = c.Query("api_token")
		}

		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":   "missing_token",
				"message": "Требуется API токен: заголовок X-API-Token, Authorization: Bearer или query параметр api_token",
			})
			c.Abort()
			return
		}

		// Сравнение за константное время
		var matched *config.TokenIdentity
		for valid, identity := range tokens {
			if subtle.ConstantTimeCompare([]byte(token), []byte(valid)) == 1 {
				id := identity
				matched = &id
				break
			}
		}

		if matched == nil {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":   "invalid_token",
				"message": "Невалидный API токен",
			})
			c.Abort()
			return
		}

		c.Set(callerKey, models.Authenticated(matched.Username, matched.Role))
		c.Next()
	}
}

// SessionIdentity middleware дашборда. Сессионный коллаборатор передаёт
// проверенного пользователя заголовками; без него личность анонимная,
// привязанная к идентификатору сессии.
func SessionIdentity() gin.HandlerFunc {
	return func(c *gin.Context) {
		username := c.GetHeader(authUserHeader)
		if username != "" {
			role := c.GetHeader(authRoleHeader)
			if role == "" {
				role = models.RoleUser
			}
			c.Set(callerKey, models.Authenticated(username, role))
			c.Next()
			return
		}

		sessionID := c.GetHeader(sessionHeader)
		if sessionID == "" {
			if cookie, err := c.Cookie(sessionCookie); err == nil {
				sessionID = cookie
			}
		}
		if sessionID == "" {
			// Коллаборатор не дал сессию: одноразовая анонимная личность
			sessionID = uuid.NewString()
		}

		c.Set(callerKey, models.Anonymous(sessionID))
		c.Next()
	}
}

// CallerFromContext извлекает личность вызывающего из контекста запроса.
func CallerFromContext(c *gin.Context) (models.Identity, bool) {
	value, exists := c.Get(callerKey)
	if !exists {
		return models.Identity{}, false
	}
	caller, ok := value.(models.Identity)
	return caller, ok
}
