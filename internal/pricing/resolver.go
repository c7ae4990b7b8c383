// Package pricing вычисляет цену слота из сезонных правил.
//
// Если на дату действуют несколько правил, побеждает правило с фиксированной
// ценой; среди равных: созданное позже; при совпадении времени: с большим ID.
// Множители не перемножаются.
package pricing

import (
	"context"
	"fmt"
	"math"

	"github.com/google/uuid"

	"github.com/Leganyst/charter-booking/internal/model"
)

// Source: откуда взялась цена.
type Source string

const (
	SourceBase         Source = "base"
	SourceMultiplier   Source = "multiplier"
	SourceCustom       Source = "custom"
	SourceSlotOverride Source = "slot_override"
)

// Decision: цена за гостя и её происхождение.
type Decision struct {
	PriceCents     int64      `json:"price_cents"`
	BasePriceCents int64      `json:"base_price_cents"`
	Source         Source     `json:"source"`
	RuleID         *uuid.UUID `json:"rule_id,omitempty"`
	Multiplier     float64    `json:"multiplier,omitempty"`
}

// Resolve: чистая функция над набором правил.
func Resolve(rules []model.SeasonalRule, date string, basePriceCents int64) Decision {
	winner := pick(rules, date)
	if winner == nil {
		return Decision{PriceCents: basePriceCents, BasePriceCents: basePriceCents, Source: SourceBase}
	}

	id := winner.ID
	if winner.CustomPriceCents != nil {
		return Decision{
			PriceCents:     *winner.CustomPriceCents,
			BasePriceCents: basePriceCents,
			Source:         SourceCustom,
			RuleID:         &id,
		}
	}

	return Decision{
		PriceCents:     int64(math.Round(float64(basePriceCents) * winner.PriceMultiplier)),
		BasePriceCents: basePriceCents,
		Source:         SourceMultiplier,
		RuleID:         &id,
		Multiplier:     winner.PriceMultiplier,
	}
}

// SlotOverride: персональная цена слота, сезонные правила не применяются.
func SlotOverride(priceCents, basePriceCents int64) Decision {
	return Decision{PriceCents: priceCents, BasePriceCents: basePriceCents, Source: SourceSlotOverride}
}

func pick(rules []model.SeasonalRule, date string) *model.SeasonalRule {
	var winner *model.SeasonalRule
	for i := range rules {
		r := &rules[i]
		if r.StartDate > date || date > r.EndDate {
			continue
		}
		if winner == nil || outranks(r, winner) {
			winner = r
		}
	}
	return winner
}

func outranks(a, b *model.SeasonalRule) bool {
	if a.HasCustomPrice() != b.HasCustomPrice() {
		return a.HasCustomPrice()
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID.String() > b.ID.String()
}

type RuleStore interface {
	ListCovering(ctx context.Context, charterID uuid.UUID, date string) ([]model.SeasonalRule, error)
}

// Resolver только читает правила и безопасен для конкурентного вызова.
type Resolver struct {
	rules RuleStore
}

func NewResolver(rules RuleStore) *Resolver {
	return &Resolver{rules: rules}
}

func (r *Resolver) ResolvePrice(ctx context.Context, charterID uuid.UUID, date string, basePriceCents int64) (Decision, error) {
	rules, err := r.rules.ListCovering(ctx, charterID, date)
	if err != nil {
		return Decision{}, fmt.Errorf("list seasonal rules %s/%s: %w", charterID, date, err)
	}
	return Resolve(rules, date, basePriceCents), nil
}
