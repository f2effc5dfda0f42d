package tests

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/dkuznetsov/link-registry/internal/config"
	"github.com/dkuznetsov/link-registry/internal/handler"
	"github.com/dkuznetsov/link-registry/internal/middleware"
	"github.com/dkuznetsov/link-registry/internal/models"
	"github.com/dkuznetsov/link-registry/internal/preview"
	"github.com/dkuznetsov/link-registry/internal/repository"
	"github.com/dkuznetsov/link-registry/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/modules/redis"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	chromeLinuxUA = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	firefoxWinUA  = "Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:121.0) Gecko/20100101 Firefox/121.0"
	safariMacUA   = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Safari/605.1.15"
)

// TestMain настраивает тестовые контейнеры
func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

// TestEnv хранит окружение для интеграционных тестов
type TestEnv struct {
	router         *gin.Engine
	registry       service.Registry
	recorder       service.AccessRecorder
	dbContainer    testcontainers.Container
	redisContainer testcontainers.Container
	db             *repository.PostgresDB
	redis          *repository.RedisDB
}

// setupTestEnv создаёт тестовое окружение с PostgreSQL и Redis контейнерами
func setupTestEnv(t *testing.T) *TestEnv {
	ctx := t.Context()

	// Запускаем контейнер PostgreSQL
	dbContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("linkregistry"),
		postgres.WithUsername("user"),
		postgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)

	// Запускаем контейнер Redis
	redisContainer, err := redis.Run(ctx,
		"redis:7-alpine",
	)
	require.NoError(t, err)

	// Получаем данные для подключения
	dbHost, err := dbContainer.Host(ctx)
	require.NoError(t, err)
	dbPort, err := dbContainer.MappedPort(ctx, "5432")
	require.NoError(t, err)

	redisHost, err := redisContainer.Host(ctx)
	require.NoError(t, err)
	redisPort, err := redisContainer.MappedPort(ctx, "6379")
	require.NoError(t, err)

	// Создаём подключение к БД
	db, err := repository.NewPostgresDB(config.DBConfig{
		Host:     dbHost,
		Port:     dbPort.Port(),
		User:     "user",
		Password: "password",
		Name:     "linkregistry",
	})
	require.NoError(t, err)

	// Применяем схему
	require.NoError(t, db.Migrate(ctx))

	// Создаём подключение к Redis
	redisClient, err := repository.NewRedisClient(config.RedisConfig{
		Host: redisHost,
		Port: redisPort.Port(),
	})
	require.NoError(t, err)

	// Инициализируем репозитории и сервисы
	linkRepo := repository.NewLinkRepository(db)
	previewCache := repository.NewPreviewCache(redisClient)

	registry := service.NewRegistry(linkRepo, nil) // nil logger для тестов
	recorder := service.NewAccessRecorder(linkRepo, nil)
	recorder.Start()

	previews := preview.NewService(previewCache, nil)

	// Настраиваем роутер с middleware
	rateLimiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{
		RequestsPerSecond: 100, // Высокий лимит для тестов
		BurstSize:         200,
		CleanupInterval:   time.Minute,
	})

	router := handler.NewRouter(registry, recorder, previews, rateLimiter, nil, "http://localhost:8080", nil)

	return &TestEnv{
		router:         router,
		registry:       registry,
		recorder:       recorder,
		dbContainer:    dbContainer,
		redisContainer: redisContainer,
		db:             db,
		redis:          redisClient,
	}
}

// teardown очищает ресурсы после теста
func (env *TestEnv) teardown(t *testing.T) {
	env.recorder.Stop()
	env.db.Close()
	env.redis.Close()

	ctx := t.Context()
	if env.dbContainer != nil {
		env.dbContainer.Terminate(ctx)
	}
	if env.redisContainer != nil {
		env.redisContainer.Terminate(ctx)
	}
}

// createLink создаёт ссылку от имени пользователя и возвращает ответ
func (env *TestEnv) createLink(t *testing.T, url, username, role string) handler.LinkEntry {
	body, _ := json.Marshal(handler.CreateLinkRequest{URL: url})
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/api/v1/links", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if username != "" {
		req.Header.Set("X-Auth-Username", username)
		req.Header.Set("X-Auth-Role", role)
	}
	env.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp handler.LinkEntry
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

// TestIntegration_CreateLink тестирует создание ссылок через API
func TestIntegration_CreateLink(t *testing.T) {
	if testing.Short() {
		t.Skip("Пропускаем интеграционный тест в коротком режиме")
	}

	env := setupTestEnv(t)
	defer env.teardown(t)

	t.Run("валидный URL", func(t *testing.T) {
		resp := env.createLink(t, "https://example.com/test", "alice", models.RoleUser)

		assert.Len(t, resp.ShortCode, 6)
		assert.Equal(t, "https://example.com/test", resp.OriginalURL)
		assert.NotEmpty(t, resp.ID)
		require.NotNil(t, resp.Owner)
		assert.Equal(t, "alice", resp.Owner.Username)
	})

	t.Run("анонимный вызывающий", func(t *testing.T) {
		body, _ := json.Marshal(handler.CreateLinkRequest{URL: "https://example.com/anon"})
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("POST", "/api/v1/links", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Session-ID", "s-100")
		env.router.ServeHTTP(w, req)

		require.Equal(t, http.StatusCreated, w.Code)

		var resp handler.LinkEntry
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		require.NotNil(t, resp.Owner)
		assert.Equal(t, "anon-s-100", resp.Owner.Username)
	})

	t.Run("пустой URL", func(t *testing.T) {
		body, _ := json.Marshal(handler.CreateLinkRequest{URL: "   "})
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("POST", "/api/v1/links", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		env.router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)

		var errResp handler.ErrorResponse
		json.Unmarshal(w.Body.Bytes(), &errResp)
		assert.NotEmpty(t, errResp.Error)
	})
}

// TestIntegration_RedirectAndStats тестирует редирект и накопление статистики
func TestIntegration_RedirectAndStats(t *testing.T) {
	if testing.Short() {
		t.Skip("Пропускаем интеграционный тест в коротком режиме")
	}

	env := setupTestEnv(t)
	defer env.teardown(t)

	created := env.createLink(t, "https://example.com/stats-test", "alice", models.RoleUser)

	// Три разрешения с разных браузеров и платформ
	agents := []string{chromeLinuxUA, firefoxWinUA, safariMacUA}
	for i, ua := range agents {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/"+created.ShortCode, nil)
		req.Header.Set("User-Agent", ua)
		req.Header.Set("X-Forwarded-For", fmt.Sprintf("192.168.1.%d", i))
		env.router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusTemporaryRedirect, w.Code)
		assert.Equal(t, "https://example.com/stats-test", w.Header().Get("Location"))
	}

	// Даём worker pool время обработать события
	time.Sleep(500 * time.Millisecond)

	t.Run("получение статистики", func(t *testing.T) {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/api/v1/links/"+created.ShortCode+"/stats", nil)
		env.router.ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code)

		var stats models.AggregateStats
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
		assert.Equal(t, int64(3), stats.AccessCount)
		assert.Len(t, stats.AccessTimes, 3)
		assert.Equal(t, 1, stats.BrowserStats[service.BrowserChrome])
		assert.Equal(t, 1, stats.BrowserStats[service.BrowserFirefox])
		assert.Equal(t, 1, stats.BrowserStats[service.BrowserSafari])
		assert.Equal(t, 1, stats.PlatformStats[service.PlatformLinux])
		assert.Equal(t, 1, stats.PlatformStats[service.PlatformWindows])
		assert.Equal(t, 1, stats.PlatformStats[service.PlatformMacOS])
	})

	t.Run("несуществующая ссылка", func(t *testing.T) {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/nonexist", nil)
		env.router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

// TestIntegration_StatsSnapshotConsistency проверяет согласованность снимка:
// при конкурентных записях доступов каждая прочитанная сводка обязана
// удовлетворять access_count == len(access_times)
func TestIntegration_StatsSnapshotConsistency(t *testing.T) {
	if testing.Short() {
		t.Skip("Пропускаем интеграционный тест в коротком режиме")
	}

	env := setupTestEnv(t)
	defer env.teardown(t)

	created := env.createLink(t, "https://example.com/snapshot-test", "alice", models.RoleUser)

	const hits = 20

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < hits; i++ {
			w := httptest.NewRecorder()
			req, _ := http.NewRequest("GET", "/"+created.ShortCode, nil)
			req.Header.Set("User-Agent", chromeLinuxUA)
			env.router.ServeHTTP(w, req)
		}
	}()

	// Читаем сводку параллельно с записями: каждый снимок согласован,
	// даже когда счётчик ещё растёт
	for i := 0; i < hits; i++ {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/api/v1/links/"+created.ShortCode+"/stats", nil)
		env.router.ServeHTTP(w, req)
		require.Equal(t, http.StatusOK, w.Code)

		var stats models.AggregateStats
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
		assert.Equal(t, stats.AccessCount, int64(len(stats.AccessTimes)),
			"снимок рассогласован: count=%d, events=%d", stats.AccessCount, len(stats.AccessTimes))
	}

	wg.Wait()
	time.Sleep(time.Second)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/api/v1/links/"+created.ShortCode+"/stats", nil)
	env.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var final models.AggregateStats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &final))
	assert.Equal(t, int64(hits), final.AccessCount)
	assert.Len(t, final.AccessTimes, hits)
}

// TestIntegration_Ownership тестирует изоляцию списков и авторизацию удаления
func TestIntegration_Ownership(t *testing.T) {
	if testing.Short() {
		t.Skip("Пропускаем интеграционный тест в коротком режиме")
	}

	env := setupTestEnv(t)
	defer env.teardown(t)

	aliceLink := env.createLink(t, "https://example.com/alice", "alice", models.RoleUser)
	env.createLink(t, "https://example.com/bob", "bob", models.RoleUser)

	listCodes := func(username, role string) []string {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/api/v1/links", nil)
		req.Header.Set("X-Auth-Username", username)
		req.Header.Set("X-Auth-Role", role)
		env.router.ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code)

		var entries []handler.LinkEntry
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &entries))
		codes := make([]string, 0, len(entries))
		for _, e := range entries {
			codes = append(codes, e.ShortCode)
		}
		return codes
	}

	t.Run("каждый видит только своё", func(t *testing.T) {
		assert.Len(t, listCodes("alice", models.RoleUser), 1)
		assert.Len(t, listCodes("bob", models.RoleUser), 1)
	})

	t.Run("админ видит всё", func(t *testing.T) {
		assert.Len(t, listCodes("root", models.RoleAdmin), 2)
	})

	t.Run("чужую ссылку удалить нельзя", func(t *testing.T) {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("DELETE", "/api/v1/links/"+aliceLink.ShortCode, nil)
		req.Header.Set("X-Auth-Username", "bob")
		req.Header.Set("X-Auth-Role", models.RoleUser)
		env.router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("владелец удаляет свою ссылку", func(t *testing.T) {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("DELETE", "/api/v1/links/"+aliceLink.ShortCode, nil)
		req.Header.Set("X-Auth-Username", "alice")
		req.Header.Set("X-Auth-Role", models.RoleUser)
		env.router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("повторное удаление", func(t *testing.T) {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("DELETE", "/api/v1/links/"+aliceLink.ShortCode, nil)
		req.Header.Set("X-Auth-Username", "alice")
		req.Header.Set("X-Auth-Role", models.RoleUser)
		env.router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

// TestIntegration_Rename тестирует переименование кода с сохранением истории
func TestIntegration_Rename(t *testing.T) {
	if testing.Short() {
		t.Skip("Пропускаем интеграционный тест в коротком режиме")
	}

	env := setupTestEnv(t)
	defer env.teardown(t)

	created := env.createLink(t, "https://example.com/rename", "alice", models.RoleUser)
	other := env.createLink(t, "https://example.com/other", "alice", models.RoleUser)

	// Один доступ до переименования
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/"+created.ShortCode, nil)
	req.Header.Set("User-Agent", chromeLinuxUA)
	env.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusTemporaryRedirect, w.Code)

	time.Sleep(500 * time.Millisecond)

	rename := func(code, newCode string) *httptest.ResponseRecorder {
		body, _ := json.Marshal(handler.RenameLinkRequest{NewCode: newCode})
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("PUT", "/api/v1/links/"+code, bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Auth-Username", "alice")
		req.Header.Set("X-Auth-Role", models.RoleUser)
		env.router.ServeHTTP(w, req)
		return w
	}

	t.Run("занятый код", func(t *testing.T) {
		w := rename(created.ShortCode, other.ShortCode)
		assert.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("успешное переименование сохраняет историю", func(t *testing.T) {
		w := rename(created.ShortCode, "myCode1")
		require.Equal(t, http.StatusOK, w.Code)

		// Старый код больше не разрешается
		rw := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/"+created.ShortCode, nil)
		env.router.ServeHTTP(rw, req)
		assert.Equal(t, http.StatusNotFound, rw.Code)

		// Новый код несёт ту же ссылку и её историю
		sw := httptest.NewRecorder()
		req, _ = http.NewRequest("GET", "/api/v1/links/myCode1/stats", nil)
		env.router.ServeHTTP(sw, req)
		require.Equal(t, http.StatusOK, sw.Code)

		var stats models.AggregateStats
		require.NoError(t, json.Unmarshal(sw.Body.Bytes(), &stats))
		assert.Equal(t, int64(1), stats.AccessCount)
	})

	t.Run("несуществующий код", func(t *testing.T) {
		w := rename("missing", "whatever")
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

// TestIntegration_DeleteThenReuse тестирует повторное использование освобождённого кода
func TestIntegration_DeleteThenReuse(t *testing.T) {
	if testing.Short() {
		t.Skip("Пропускаем интеграционный тест в коротком режиме")
	}

	env := setupTestEnv(t)
	defer env.teardown(t)

	created := env.createLink(t, "https://example.com/first", "alice", models.RoleUser)

	// Накапливаем историю и удаляем
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/"+created.ShortCode, nil)
	req.Header.Set("User-Agent", chromeLinuxUA)
	env.router.ServeHTTP(w, req)
	time.Sleep(500 * time.Millisecond)

	dw := httptest.NewRecorder()
	req, _ = http.NewRequest("DELETE", "/api/v1/links/"+created.ShortCode, nil)
	req.Header.Set("X-Auth-Username", "alice")
	req.Header.Set("X-Auth-Role", models.RoleUser)
	env.router.ServeHTTP(dw, req)
	require.Equal(t, http.StatusOK, dw.Code)

	// Тот же код занимаем заново через переименование новой ссылки
	fresh := env.createLink(t, "https://example.com/second", "alice", models.RoleUser)
	body, _ := json.Marshal(handler.RenameLinkRequest{NewCode: created.ShortCode})
	rw := httptest.NewRecorder()
	req, _ = http.NewRequest("PUT", "/api/v1/links/"+fresh.ShortCode, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Auth-Username", "alice")
	req.Header.Set("X-Auth-Role", models.RoleUser)
	env.router.ServeHTTP(rw, req)
	require.Equal(t, http.StatusOK, rw.Code)

	// У новой ссылки свежая личность и пустая история
	sw := httptest.NewRecorder()
	req, _ = http.NewRequest("GET", "/api/v1/links/"+created.ShortCode+"/stats", nil)
	env.router.ServeHTTP(sw, req)
	require.Equal(t, http.StatusOK, sw.Code)

	var stats models.AggregateStats
	require.NoError(t, json.Unmarshal(sw.Body.Bytes(), &stats))
	assert.Equal(t, int64(0), stats.AccessCount)
	assert.Empty(t, stats.AccessTimes)
	assert.NotEqual(t, created.ID, fresh.ID)
}

// TestIntegration_HealthCheck тестирует endpoint проверки здоровья
func TestIntegration_HealthCheck(t *testing.T) {
	if testing.Short() {
		t.Skip("Пропускаем интеграционный тест в коротком режиме")
	}

	env := setupTestEnv(t)
	defer env.teardown(t)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/api/v1/health", nil)
	env.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp map[string]string
	json.Unmarshal(w.Body.Bytes(), &resp)
	assert.Equal(t, "ok", resp["status"])
	assert.Equal(t, "link-registry", resp["service"])
}
