package provider

import (
	"context"
	"log/slog"
	"sync"
)

// BlacklistedScore — оценка-сигнал отклонения оффера.
const BlacklistedScore = -1.0

// Offer — оффер провайдера, поступающий на оценку.
type Offer struct {
	// ID — идентификатор оффера.
	ID string

	// Issuer — идентификатор провайдера, выставившего оффер.
	Issuer string

	// Properties — непрозрачные свойства оффера.
	Properties map[string]any
}

// Scorer — базовая функция оценки офферов маркетплейса.
type Scorer interface {
	ScoreOffer(ctx context.Context, offer Offer) (float64, error)
}

// ScorerFunc — адаптер функции к интерфейсу Scorer.
type ScorerFunc func(ctx context.Context, offer Offer) (float64, error)

// ScoreOffer реализует интерфейс Scorer.
func (f ScorerFunc) ScoreOffer(ctx context.Context, offer Offer) (float64, error) {
	return f(ctx, offer)
}

// BlacklistScorer — обёртка базовой оценки, отклоняющая офферы
// провайдеров, чьи экземпляры ранее завершились аварийно.
type BlacklistScorer struct {
	base   Scorer
	logger *slog.Logger

	mu        sync.RWMutex
	blacklist map[string]struct{}
}

// NewBlacklistScorer создаёт обёртку вокруг базовой оценки.
func NewBlacklistScorer(base Scorer, logger *slog.Logger) *BlacklistScorer {
	if logger == nil {
		logger = slog.Default()
	}
	return &BlacklistScorer{
		base:      base,
		logger:    logger,
		blacklist: make(map[string]struct{}),
	}
}

// Blacklist добавляет провайдера в чёрный список.
func (s *BlacklistScorer) Blacklist(providerID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blacklist[providerID] = struct{}{}
}

// IsBlacklisted возвращает true, если провайдер в чёрном списке.
func (s *BlacklistScorer) IsBlacklisted(providerID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.blacklist[providerID]
	return ok
}

// ScoreOffer отклоняет оффер провайдера из чёрного списка, иначе
// делегирует базовой оценке.
func (s *BlacklistScorer) ScoreOffer(ctx context.Context, offer Offer) (float64, error) {
	if s.IsBlacklisted(offer.Issuer) {
		s.logger.Debug("rejecting offer from a blacklisted provider",
			"offer_id", offer.ID,
			"provider_id", offer.Issuer,
		)
		return BlacklistedScore, nil
	}
	return s.base.ScoreOffer(ctx, offer)
}
