package pricing

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Leganyst/charter-booking/internal/calendar"
	"github.com/Leganyst/charter-booking/internal/model"
	"github.com/Leganyst/charter-booking/internal/notify"
)

type RuleRepository interface {
	Create(ctx context.Context, rule *model.SeasonalRule) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.SeasonalRule, error)
	Delete(ctx context.Context, id uuid.UUID) error
	ListByCharter(ctx context.Context, charterID uuid.UUID) ([]model.SeasonalRule, error)
}

type CreateRuleRequest struct {
	CharterID        uuid.UUID
	Name             string
	StartDate        string
	EndDate          string
	Multiplier       float64
	CustomPriceCents *int64
}

type CreateRuleResult struct {
	Rule *model.SeasonalRule
	// Правила чартера, чьи даты пересекаются с новым.
	Overlaps []model.SeasonalRule
}

// RuleService: правка сезонных правил капитаном.
// Правки редкие, поэтому без блокировок: последняя запись выигрывает.
type RuleService struct {
	repo      RuleRepository
	publisher notify.Publisher
	logger    *zap.Logger
}

func NewRuleService(repo RuleRepository, publisher notify.Publisher, logger *zap.Logger) *RuleService {
	return &RuleService{repo: repo, publisher: publisher, logger: logger}
}

// CreateRule сохраняет правило и сообщает, с какими правилами оно пересекается.
// Пересечение не ошибка: цену на общих датах решает приоритет правил.
func (s *RuleService) CreateRule(ctx context.Context, req CreateRuleRequest) (CreateRuleResult, error) {
	rng, err := calendar.NewDateRange(req.StartDate, req.EndDate)
	if err != nil {
		return CreateRuleResult{}, err
	}
	if err := validateRule(req.Multiplier, req.CustomPriceCents); err != nil {
		return CreateRuleResult{}, err
	}

	existing, err := s.repo.ListByCharter(ctx, req.CharterID)
	if err != nil {
		return CreateRuleResult{}, fmt.Errorf("list seasonal rules: %w", err)
	}
	windows := make([]calendar.DateRange, len(existing))
	for i, r := range existing {
		windows[i] = calendar.DateRange{Start: r.StartDate, End: r.EndDate}
	}
	var overlaps []model.SeasonalRule
	for _, i := range calendar.OverlappingIndexes(rng, windows) {
		overlaps = append(overlaps, existing[i])
	}

	multiplier := req.Multiplier
	if multiplier == 0 {
		multiplier = 1
	}

	rule := &model.SeasonalRule{
		CharterID:        req.CharterID,
		Name:             req.Name,
		StartDate:        rng.Start,
		EndDate:          rng.End,
		PriceMultiplier:  multiplier,
		CustomPriceCents: req.CustomPriceCents,
	}
	if err := s.repo.Create(ctx, rule); err != nil {
		return CreateRuleResult{}, fmt.Errorf("create seasonal rule: %w", err)
	}

	log := s.logger.With(
		zap.String("rule_id", rule.ID.String()),
		zap.String("charter_id", rule.CharterID.String()),
		zap.String("range", rng.String()),
	)
	if len(overlaps) > 0 {
		ids := make([]string, len(overlaps))
		for i, o := range overlaps {
			ids[i] = o.ID.String()
		}
		log.Warn("seasonal rule overlaps existing rules", zap.Strings("overlaps", ids))
	}
	log.Info("seasonal rule created")

	s.publishRange(ctx, rule.CharterID, rng)
	return CreateRuleResult{Rule: rule, Overlaps: overlaps}, nil
}

func (s *RuleService) DeleteRule(ctx context.Context, id uuid.UUID) error {
	rule, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}

	s.logger.Info("seasonal rule deleted", zap.String("rule_id", id.String()))
	s.publishRange(ctx, rule.CharterID, calendar.DateRange{Start: rule.StartDate, End: rule.EndDate})
	return nil
}

func (s *RuleService) GetRule(ctx context.Context, id uuid.UUID) (*model.SeasonalRule, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *RuleService) ListRules(ctx context.Context, charterID uuid.UUID) ([]model.SeasonalRule, error) {
	return s.repo.ListByCharter(ctx, charterID)
}

func (s *RuleService) publishRange(ctx context.Context, charterID uuid.UUID, rng calendar.DateRange) {
	for _, d := range rng.Days() {
		s.publisher.Publish(ctx, notify.Change{
			Type:      model.ChangePriceRuleChanged,
			CharterID: charterID,
			Date:      d,
		})
	}
}

// Нужен либо множитель > 0, либо неотрицательная фиксированная цена.
func validateRule(multiplier float64, custom *int64) error {
	if custom != nil {
		if *custom < 0 {
			return fmt.Errorf("%w: negative custom price", model.ErrInvalidRule)
		}
		if multiplier < 0 {
			return fmt.Errorf("%w: negative multiplier", model.ErrInvalidRule)
		}
		return nil
	}
	if multiplier <= 0 {
		return fmt.Errorf("%w: multiplier must be positive", model.ErrInvalidRule)
	}
	return nil
}
