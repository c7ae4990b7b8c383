// Package lock сериализует операции над одними и теми же (чартер, дата).
// Допуск бронирования и создание закрытого диапазона берут одинаковые ключи,
// поэтому на пересекающихся датах они не чередуются.
package lock

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
)

// ErrTimeout: блокировку не удалось взять за отведённое время.
var ErrTimeout = errors.New("lock wait timeout")

// Unlock освобождает все ключи, взятые одним Acquire.
type Unlock func()

// Locker берёт набор ключей целиком или не берёт ни одного.
type Locker interface {
	Acquire(ctx context.Context, keys ...string) (Unlock, error)
}

// DateKey: ключ блокировки дня календаря чартера.
func DateKey(charterID uuid.UUID, date string) string {
	return fmt.Sprintf("charter:%s:date:%s", charterID, date)
}

// DateKeys: ключи для всех дат диапазона.
func DateKeys(charterID uuid.UUID, dates []string) []string {
	keys := make([]string, 0, len(dates))
	for _, d := range dates {
		keys = append(keys, DateKey(charterID, d))
	}
	return keys
}

// normalize сортирует и убирает дубли: единый порядок захвата исключает дедлоки.
func normalize(keys []string) []string {
	out := make([]string, len(keys))
	copy(out, keys)
	sort.Strings(out)

	uniq := out[:0]
	for i, k := range out {
		if i > 0 && k == out[i-1] {
			continue
		}
		uniq = append(uniq, k)
	}
	return uniq
}
