package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/jmylchreest/prayerline/internal/models"
	"github.com/jmylchreest/prayerline/internal/repository"
)

// IntentionService manages confirmed prayer intentions.
type IntentionService struct {
	repos  *repository.Repositories
	logger *slog.Logger
}

// NewIntentionService creates a new intention service.
func NewIntentionService(repos *repository.Repositories, logger *slog.Logger) *IntentionService {
	return &IntentionService{
		repos:  repos,
		logger: logger.With("component", "intention_service"),
	}
}

// MarkDelivered records that an intention was prayed for. It succeeds once.
func (s *IntentionService) MarkDelivered(ctx context.Context, id string) (*models.PrayerIntention, error) {
	in, err := s.repos.Intentions.Get(ctx, id)
	if err != nil {
		return nil, storeError(err)
	}
	if in == nil {
		return nil, ErrIntentionNotFound
	}

	flipped, err := s.repos.Intentions.MarkDelivered(ctx, id, time.Now().UTC())
	if err != nil {
		return nil, storeError(err)
	}
	if !flipped {
		return nil, ErrAlreadyDelivered
	}

	in, err = s.repos.Intentions.Get(ctx, id)
	if err != nil {
		return nil, storeError(err)
	}
	s.logger.Info("intention delivered", "intention_id", id, "session_id", in.SessionID)
	return in, nil
}
