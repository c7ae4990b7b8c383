// Package refund: фиксированная политика возвратов и переносов.
// Обе функции чистые и не зависят друг от друга.
package refund

import (
	"time"

	"github.com/Leganyst/charter-booking/internal/calendar"
)

const (
	FullRefundDays    = 7
	PartialRefundDays = 3
	PartialPercent    = 50

	// Перенос бесплатен не позже чем за 48 часов.
	FreeRescheduleDays = 2
	// RescheduleFeeCents: $25.
	RescheduleFeeCents int64 = 2500
)

type Quote struct {
	DaysUntil     int   `json:"days_until"`
	RefundPercent int   `json:"refund_percent"`
	RefundCents   int64 `json:"refund_cents"`
}

// ComputeRefund: >=7 дней: 100%, 3..6: 50%, меньше 3: 0%.
func ComputeRefund(eventAt, now time.Time, amountPaidCents int64) Quote {
	days := calendar.DaysUntil(eventAt, now)

	percent := 0
	switch {
	case days >= FullRefundDays:
		percent = 100
	case days >= PartialRefundDays:
		percent = PartialPercent
	}

	return Quote{
		DaysUntil:     days,
		RefundPercent: percent,
		RefundCents:   amountPaidCents * int64(percent) / 100,
	}
}

type RescheduleQuote struct {
	DaysUntil int   `json:"days_until"`
	Free      bool  `json:"free"`
	FeeCents  int64 `json:"fee_cents"`
}

// ComputeRescheduleFee: бесплатно при DaysUntil >= 2, иначе фиксированный сбор.
func ComputeRescheduleFee(eventAt, now time.Time) RescheduleQuote {
	days := calendar.DaysUntil(eventAt, now)
	if days >= FreeRescheduleDays {
		return RescheduleQuote{DaysUntil: days, Free: true}
	}
	return RescheduleQuote{DaysUntil: days, FeeCents: RescheduleFeeCents}
}
