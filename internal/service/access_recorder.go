package service

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/dkuznetsov/link-registry/internal/models"
	"github.com/dkuznetsov/link-registry/internal/repository"
	"go.uber.org/zap"
)

// Константы worker pool
const (
	defaultWorkerCount   = 3
	defaultChannelBuffer = 1000
	maxAppendRetries     = 3
)

// Классификации браузера и платформы. Грубая эвристика по подстрокам,
// порядок проверок значим.
const (
	BrowserChrome  = "Chrome"
	BrowserFirefox = "Firefox"
	BrowserSafari  = "Safari"
	BrowserEdge    = "Edge"
	BrowserOther   = "Other"

	PlatformWindows = "Windows"
	PlatformMacOS   = "MacOS"
	PlatformLinux   = "Linux"
	PlatformOther   = "Other"

	ClassUnknown = "Unknown"
)

// AccessRecorder асинхронно дописывает события доступа к ссылкам.
type AccessRecorder interface {
	Start()
	Stop()
	Record(ctx context.Context, meta *models.AccessMeta) error
}

// recordedAccess уже классифицированное событие, привязанное к коду.
type recordedAccess struct {
	code  string
	event models.AccessEvent
}

// accessRecorder worker pool поверх канала событий. В отличие от
// синхронного пути, редирект не ждёт записи в БД.
type accessRecorder struct {
	links       repository.LinkRepository
	logger      *zap.Logger
	events      chan recordedAccess
	workerCount int
	wg          sync.WaitGroup
}

// NewAccessRecorder создаёт новый рекордер доступов.
func NewAccessRecorder(links repository.LinkRepository, logger *zap.Logger) AccessRecorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &accessRecorder{
		links:       links,
		logger:      logger,
		events:      make(chan recordedAccess, defaultChannelBuffer),
		workerCount: defaultWorkerCount,
	}
}

// Start запускает воркеров.
func (r *accessRecorder) Start() {
	r.logger.Info("Запуск воркеров рекордера доступов", zap.Int("count", r.workerCount))

	for i := 0; i < r.workerCount; i++ {
		r.wg.Add(1)
		go r.worker(i)
	}
}

// Stop закрывает канал и дожидается, пока воркеры допишут всё из буфера.
// Останавливать рекордер можно только после остановки фронтендов.
func (r *accessRecorder) Stop() {
	r.logger.Info("Остановка рекордера доступов...")
	close(r.events)
	r.wg.Wait()
	r.logger.Info("Рекордер доступов остановлен")
}

// worker дописывает события из канала до его закрытия.
func (r *accessRecorder) worker(id int) {
	defer r.wg.Done()

	r.logger.Debug("Воркер рекордера запущен", zap.Int("id", id))

	for rec := range r.events {
		r.append(rec)
	}

	r.logger.Debug("Воркер рекордера остановлен", zap.Int("id", id))
}

// append пишет одно событие с retry логикой.
func (r *accessRecorder) append(rec recordedAccess) {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	var err error
	for i := 0; i < maxAppendRetries; i++ {
		if err = r.links.AppendAccess(ctx, rec.code, &rec.event); err == nil {
			return
		}
		if i < maxAppendRetries-1 {
			r.logger.Debug("Повторная попытка записи события доступа",
				zap.String("code", rec.code),
				zap.Int("attempt", i+1),
				zap.Error(err),
			)
			time.Sleep(time.Duration(i+1) * 100 * time.Millisecond)
		}
	}

	r.logger.Error("Не удалось записать событие доступа",
		zap.String("code", rec.code),
		zap.Error(err),
	)
}

// Record классифицирует метаданные запроса и ставит событие в очередь.
// Временная метка фиксируется здесь, поэтому accessTimes следует порядку
// вызовов, а не порядку записи воркерами.
func (r *accessRecorder) Record(ctx context.Context, meta *models.AccessMeta) error {
	rec := recordedAccess{
		code: meta.ShortCode,
		event: models.AccessEvent{
			Timestamp:     time.Now(),
			Browser:       ClassifyBrowser(meta.UserAgent),
			IP:            meta.IP,
			RequestedHost: meta.RequestedHost,
			Platform:      ClassifyPlatform(meta.UserAgent),
		},
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case r.events <- rec:
		return nil
	default:
		// Буфер заполнен: событие дописывается синхронно, а не теряется.
		r.logger.Warn("Буфер рекордера заполнен, синхронная запись",
			zap.String("code", rec.code),
		)
		appendCtx, cancel := context.WithTimeout(ctx, storeTimeout)
		defer cancel()
		return r.links.AppendAccess(appendCtx, rec.code, &rec.event)
	}
}

// ClassifyBrowser определяет браузер по User-Agent. Проверка Chrome идёт
// раньше Safari: Chrome на WebKit тоже содержит "Safari".
func ClassifyBrowser(userAgent string) string {
	if userAgent == "" {
		return ClassUnknown
	}
	switch {
	case strings.Contains(userAgent, "Chrome"):
		return BrowserChrome
	case strings.Contains(userAgent, "Firefox"):
		return BrowserFirefox
	case strings.Contains(userAgent, "Safari"):
		return BrowserSafari
	case strings.Contains(userAgent, "Edge"):
		return BrowserEdge
	default:
		return BrowserOther
	}
}

// ClassifyPlatform определяет платформу по User-Agent.
func ClassifyPlatform(userAgent string) string {
	if userAgent == "" {
		return ClassUnknown
	}
	switch {
	case strings.Contains(userAgent, "Windows"):
		return PlatformWindows
	case strings.Contains(userAgent, "Mac"):
		return PlatformMacOS
	case strings.Contains(userAgent, "X11"), strings.Contains(userAgent, "Linux"):
		return PlatformLinux
	default:
		return PlatformOther
	}
}
