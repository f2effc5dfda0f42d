package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dkuznetsov/link-registry/internal/models"
	"github.com/dkuznetsov/link-registry/internal/repository"
	"github.com/dkuznetsov/link-registry/internal/shortcode"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Константы фасада
const (
	// maxCodeAttempts бюджет повторов генерации при конфликте кода.
	// Исчерпание бюджета означает либо истощение алфавита, либо
	// неисправность хранилища, и наружу уходит как Conflict.
	maxCodeAttempts = 5
	storeTimeout    = 5 * time.Second
)

// Registry единая точка входа для всех фронтендов. Web, REST и RPC видят
// одни и те же бизнес-правила: владение, авторизацию, уникальность.
type Registry interface {
	Shorten(ctx context.Context, originalURL string, caller models.Identity) (*models.Link, error)
	Resolve(ctx context.Context, code string) (*models.Link, error)
	List(ctx context.Context, caller models.Identity) ([]*models.Link, error)
	Remove(ctx context.Context, code string, caller models.Identity) error
	Rename(ctx context.Context, oldCode, newCode string, caller models.Identity) error
	Stats(ctx context.Context, code string) (*models.AggregateStats, error)
}

type registry struct {
	links  repository.LinkRepository
	logger *zap.Logger
}

// NewRegistry создаёт фасад реестра ссылок.
func NewRegistry(links repository.LinkRepository, logger *zap.Logger) Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &registry{
		links:  links,
		logger: logger,
	}
}

// Shorten создаёт новую ссылку. Назначение валидируется только на
// непустоту, владелец фиксируется снимком из личности вызывающего.
func (r *registry) Shorten(ctx context.Context, originalURL string, caller models.Identity) (*models.Link, error) {
	if strings.TrimSpace(originalURL) == "" {
		return nil, fmt.Errorf("%w: original url is empty", ErrInvalidInput)
	}

	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		code, err := shortcode.Generate()
		if err != nil {
			return nil, fmt.Errorf("failed to generate code: %w", err)
		}

		id, err := uuid.NewV7()
		if err != nil {
			return nil, fmt.Errorf("failed to generate link id: %w", err)
		}

		link := &models.Link{
			ID:          id,
			ShortCode:   code,
			OriginalURL: originalURL,
			Owner:       caller.Snapshot(),
			CreatedAt:   time.Now(),
		}

		opCtx, cancel := context.WithTimeout(ctx, storeTimeout)
		err = r.links.Create(opCtx, link)
		cancel()

		if err == nil {
			return link, nil
		}
		if errors.Is(err, repository.ErrCodeExists) {
			r.logger.Debug("Коллизия короткого кода, повтор генерации",
				zap.String("code", code),
				zap.Int("attempt", attempt+1),
			)
			continue
		}
		return nil, mapStoreErr(err)
	}

	return nil, fmt.Errorf("%w: code generation exhausted %d attempts", ErrConflict, maxCodeAttempts)
}

// Resolve находит ссылку по коду. NotFound после конкурентного delete —
// корректный исход, запись доступа делает Access Recorder отдельно.
func (r *registry) Resolve(ctx context.Context, code string) (*models.Link, error) {
	opCtx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	link, err := r.links.GetByShortCode(opCtx, code)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	return link, nil
}

// List возвращает ссылки, видимые вызывающему: админ видит всё,
// остальные — только свои.
func (r *registry) List(ctx context.Context, caller models.Identity) ([]*models.Link, error) {
	opCtx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	links, err := r.links.ListAll(opCtx)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	return filterVisible(links, caller), nil
}

// Remove удаляет ссылку. Авторизация (админ или владелец) живёт здесь,
// в ядре, чтобы все фронтенды применяли её одинаково.
func (r *registry) Remove(ctx context.Context, code string, caller models.Identity) error {
	opCtx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	link, err := r.links.GetByShortCode(opCtx, code)
	if err != nil {
		return mapStoreErr(err)
	}

	if !caller.IsAdmin() && (link.Owner == nil || link.Owner.Username != caller.Username) {
		return fmt.Errorf("%w: not the owner of %s", ErrForbidden, code)
	}

	delCtx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	return mapStoreErr(r.links.Delete(delCtx, code))
}

// Rename меняет короткий код, сохраняя остальные поля и историю.
// Авторизация та же, что у Remove: владелец или админ.
func (r *registry) Rename(ctx context.Context, oldCode, newCode string, caller models.Identity) error {
	if strings.TrimSpace(oldCode) == "" || strings.TrimSpace(newCode) == "" {
		return fmt.Errorf("%w: both codes are required", ErrInvalidInput)
	}

	getCtx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	link, err := r.links.GetByShortCode(getCtx, oldCode)
	if err != nil {
		return mapStoreErr(err)
	}

	if !caller.IsAdmin() && (link.Owner == nil || link.Owner.Username != caller.Username) {
		return fmt.Errorf("%w: not the owner of %s", ErrForbidden, oldCode)
	}

	opCtx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	return mapStoreErr(r.links.Rename(opCtx, oldCode, newCode))
}

// Stats сворачивает историю доступов ссылки в сводку. Свёртка выполняется
// на каждом вызове, без кэша и без оконного ограничения.
func (r *registry) Stats(ctx context.Context, code string) (*models.AggregateStats, error) {
	link, err := r.Resolve(ctx, code)
	if err != nil {
		return nil, err
	}
	return Aggregate(link, r.logger), nil
}

// Aggregate сводит историю доступов одной ссылки.
func Aggregate(link *models.Link, logger *zap.Logger) *models.AggregateStats {
	stats := &models.AggregateStats{
		AccessCount:   link.AccessCount,
		AccessTimes:   make([]time.Time, 0, len(link.AccessLog)),
		BrowserStats:  make(map[string]int),
		PlatformStats: make(map[string]int),
	}

	for _, ev := range link.AccessLog {
		stats.AccessTimes = append(stats.AccessTimes, ev.Timestamp)
		stats.BrowserStats[ev.Browser]++
		stats.PlatformStats[ev.Platform]++
	}

	// Счётчик хранится рядом с историей как rollup; расхождение со
	// свёрткой сигнализирует о повреждении данных.
	if logger != nil && stats.AccessCount != int64(len(link.AccessLog)) {
		logger.Warn("Счётчик доступов расходится с журналом",
			zap.String("code", link.ShortCode),
			zap.Int64("access_count", stats.AccessCount),
			zap.Int("events", len(link.AccessLog)),
		)
	}

	return stats
}

// filterVisible фильтр владения над результатом ListAll.
func filterVisible(links []*models.Link, caller models.Identity) []*models.Link {
	if caller.IsAdmin() {
		return links
	}

	visible := make([]*models.Link, 0, len(links))
	for _, link := range links {
		if link.Owner != nil && link.Owner.Username == caller.Username {
			visible = append(visible, link)
		}
	}
	return visible
}
