package calendar

import (
	"fmt"
	"time"

	"github.com/Leganyst/charter-booking/internal/model"
)

// DateLayout: формат календарной даты во всех слоях.
const DateLayout = "2006-01-02"

const day = 24 * time.Hour

// ParseDate разбирает дату вида 2025-07-10.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", model.ErrInvalidDate, s)
	}
	return t, nil
}

func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// NormalizeDate приводит строку к каноничному виду или возвращает ошибку.
func NormalizeDate(s string) (string, error) {
	t, err := ParseDate(s)
	if err != nil {
		return "", err
	}
	return FormatDate(t), nil
}

// AddDays сдвигает дату на n дней.
func AddDays(date string, n int) (string, error) {
	t, err := ParseDate(date)
	if err != nil {
		return "", err
	}
	return FormatDate(t.AddDate(0, 0, n)), nil
}

// DateRange: диапазон календарных дат, границы включительно.
type DateRange struct {
	Start string
	End   string
}

// NewDateRange проверяет формат и порядок границ.
func NewDateRange(start, end string) (DateRange, error) {
	s, err := NormalizeDate(start)
	if err != nil {
		return DateRange{}, err
	}
	e, err := NormalizeDate(end)
	if err != nil {
		return DateRange{}, err
	}
	if e < s {
		return DateRange{}, fmt.Errorf("%w: %s > %s", model.ErrInvalidRange, s, e)
	}
	return DateRange{Start: s, End: e}, nil
}

// Contains: входит ли дата в диапазон.
// Даты в каноничном виде сравниваются лексикографически.
func (r DateRange) Contains(date string) bool {
	return r.Start <= date && date <= r.End
}

// Overlaps: пересекаются ли диапазоны (касание концами считается пересечением).
func (r DateRange) Overlaps(other DateRange) bool {
	return r.Start <= other.End && other.Start <= r.End
}

// Len: количество дней в диапазоне.
func (r DateRange) Len() int {
	s, err := ParseDate(r.Start)
	if err != nil {
		return 0
	}
	e, err := ParseDate(r.End)
	if err != nil {
		return 0
	}
	return int(e.Sub(s)/day) + 1
}

// Days перечисляет все даты диапазона по возрастанию.
func (r DateRange) Days() []string {
	s, err := ParseDate(r.Start)
	if err != nil {
		return nil
	}
	e, err := ParseDate(r.End)
	if err != nil {
		return nil
	}
	days := make([]string, 0, r.Len())
	for cur := s; !cur.After(e); cur = cur.AddDate(0, 0, 1) {
		days = append(days, FormatDate(cur))
	}
	return days
}

func (r DateRange) String() string {
	return r.Start + ".." + r.End
}

// OverlappingIndexes: индексы диапазонов из existing, пересекающихся с r.
func OverlappingIndexes(r DateRange, existing []DateRange) []int {
	var idx []int
	for i, other := range existing {
		if r.Overlaps(other) {
			idx = append(idx, i)
		}
	}
	return idx
}

// SlotStart: момент отправления слота в часовом поясе loc.
func SlotStart(date string, slot model.TimeSlot, loc *time.Location) (time.Time, error) {
	t, err := ParseDate(date)
	if err != nil {
		return time.Time{}, err
	}
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc).Add(slot.StartOffset()), nil
}

// DaysUntil = ceil((at - now) / 24h). Для прошедших дат значение отрицательное или ноль.
func DaysUntil(at, now time.Time) int {
	diff := at.Sub(now)
	days := int(diff / day)
	if diff%day > 0 {
		days++
	}
	return days
}
