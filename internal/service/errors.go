package service

import (
	"context"
	"errors"
	"net"

	"github.com/dkuznetsov/link-registry/internal/repository"
)

// Стабильные исходы ядра. Каждый транспорт (web, REST, RPC) рендерит их
// по-своему, само ядро транспортно-специфичного вывода не производит.
var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrNotFound           = errors.New("not found")
	ErrConflict           = errors.New("conflict")
	ErrForbidden          = errors.New("forbidden")
	ErrStorageUnavailable = errors.New("storage unavailable")
)

// mapStoreErr переводит ошибки хранилища в таксономию ядра.
// Таймаут или недоступность хранилища — транзиентная ошибка, наружу
// она уходит явно и никогда не глотается.
func mapStoreErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrLinkNotFound), errors.Is(err, repository.ErrUserNotFound):
		return ErrNotFound
	case errors.Is(err, repository.ErrCodeExists), errors.Is(err, repository.ErrUserExists):
		return ErrConflict
	case errors.Is(err, context.DeadlineExceeded), isConnectivityErr(err):
		return ErrStorageUnavailable
	default:
		return err
	}
}

// isConnectivityErr распознаёт сетевые сбои подключения к хранилищу:
// connection refused, обрыв соединения, недоступный хост.
func isConnectivityErr(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr)
}
