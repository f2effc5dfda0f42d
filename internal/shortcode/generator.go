// Package shortcode генерирует короткие коды для ссылок.
// Сам по себе генератор уникальность не гарантирует: её обеспечивает
// уникальный индекс хранилища, а фасад повторяет генерацию при конфликте.
package shortcode

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

const (
	// Length длина кода: 6 символов из 62-символьного алфавита,
	// порядка 5.7*10^10 комбинаций.
	Length   = 6
	alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
)

// Generate возвращает случайный код фиксированной длины.
func Generate() (string, error) {
	buf := make([]byte, Length)
	for i := range buf {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(alphabet))))
		if err != nil {
			return "", fmt.Errorf("failed to generate short code: %w", err)
		}
		buf[i] = alphabet[n.Int64()]
	}
	return string(buf), nil
}
