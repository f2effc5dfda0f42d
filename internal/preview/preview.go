// Package preview клиент внешнего сервиса превью ссылок.
// Ядро от него не зависит: любой сбой здесь деградирует в пустой ответ
// и никогда не роняет shorten/list/stats.
package preview

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/dkuznetsov/link-registry/internal/repository"
	"go.uber.org/zap"
)

const (
	apiEndpoint = "https://api.microlink.io"
	fetchTTL    = 24 * time.Hour
	maxBody     = 1 << 20
)

type Service interface {
	// Fetch возвращает payload превью или nil, если получить его не удалось.
	Fetch(ctx context.Context, originalURL string) []byte
}

type service struct {
	cache  repository.PreviewCache
	client *http.Client
	logger *zap.Logger
}

func NewService(cache repository.PreviewCache, logger *zap.Logger) Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &service{
		cache:  cache,
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger,
	}
}

func (s *service) Fetch(ctx context.Context, originalURL string) []byte {
	if originalURL == "" {
		return nil
	}

	if payload, err := s.cache.Get(ctx, originalURL); err == nil {
		return payload
	}

	endpoint := fmt.Sprintf("%s?url=%s", apiEndpoint, url.QueryEscape(originalURL))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil
	}

	resp, err := s.client.Do(req)
	if err != nil {
		s.logger.Debug("Сервис превью недоступен", zap.Error(err))
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		s.logger.Debug("Сервис превью вернул ошибку", zap.Int("status", resp.StatusCode))
		return nil
	}

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil
	}

	if err := s.cache.Set(ctx, originalURL, payload, fetchTTL); err != nil {
		// Промах кэша не критичен
		s.logger.Debug("Не удалось закэшировать превью", zap.Error(err))
	}

	return payload
}
