package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/greenloop/recircle-backend/internal/pkg/logger"
	"github.com/greenloop/recircle-backend/internal/repos"
	"github.com/greenloop/recircle-backend/internal/types"
)

// Trust ledger reasons.
const (
	TrustReasonVerified    = "verified_action"
	TrustReasonRejected    = "rejected_action"
	TrustReasonDuplicate   = "duplicate_image"
	TrustReasonGpsAnomaly  = "gps_anomaly"
	TrustReasonGpsAccuracy = "gps_accuracy"
	TrustReasonSuspicious  = "suspicious_activity"
	TrustReasonSimilar     = "phash_similar"
)

const (
	trustIncreaseDelta    = 0.01
	trustIncreaseCooldown = time.Hour
	redemptionWindow      = 30 * 24 * time.Hour
)

var trustPenalties = map[string]float64{
	TrustReasonDuplicate:   -0.10,
	TrustReasonGpsAnomaly:  -0.15,
	TrustReasonGpsAccuracy: -0.05,
	TrustReasonRejected:    -0.05,
	TrustReasonSuspicious:  -0.20,
	TrustReasonSimilar:     -0.08,
}

// TrustService owns every mutation of a user's trust score. Callers
// must hold the user row lock (repos.UserRepo.GetForUpdate) for the
// duration of the enclosing transaction.
type TrustService interface {
	// ApplyIncrease bumps the score for a verified action, rate limited
	// to one increase per hour. Returns the new score and whether the
	// bump was applied.
	ApplyIncrease(ctx context.Context, tx *gorm.DB, user *types.User, actionID uuid.UUID) (float64, bool, error)
	// ApplyPenalty debits the score for a violation. A clean trailing
	// 30 days halves the penalty, so an old offense does not keep
	// dragging a reformed user down at full force.
	ApplyPenalty(ctx context.Context, tx *gorm.DB, user *types.User, actionID *uuid.UUID, reason string) (float64, error)
	// Multiplier maps a trust score onto the reward multiplier band.
	Multiplier(score float64) float64
}

type trustService struct {
	log         *logger.Logger
	userRepo    repos.UserRepo
	historyRepo repos.TrustHistoryRepo
}

func NewTrustService(userRepo repos.UserRepo, historyRepo repos.TrustHistoryRepo, baseLog *logger.Logger) TrustService {
	serviceLog := baseLog.With("service", "TrustService")
	return &trustService{log: serviceLog, userRepo: userRepo, historyRepo: historyRepo}
}

func (ts *trustService) ApplyIncrease(ctx context.Context, tx *gorm.DB, user *types.User, actionID uuid.UUID) (float64, bool, error) {
	lastIncrease, err := ts.historyRepo.GetLastIncrease(ctx, tx, user.ID)
	if err != nil {
		return user.TrustScore, false, fmt.Errorf("load last increase: %w", err)
	}
	if lastIncrease != nil && time.Since(lastIncrease.CreatedAt) < trustIncreaseCooldown {
		return user.TrustScore, false, nil
	}

	newScore := clampScore(user.TrustScore + trustIncreaseDelta)
	if newScore == user.TrustScore {
		return user.TrustScore, false, nil
	}
	if err := ts.record(ctx, tx, user, actionID, TrustReasonVerified, newScore); err != nil {
		return user.TrustScore, false, err
	}
	user.TrustScore = newScore
	return newScore, true, nil
}

func (ts *trustService) ApplyPenalty(ctx context.Context, tx *gorm.DB, user *types.User, actionID *uuid.UUID, reason string) (float64, error) {
	delta, ok := trustPenalties[reason]
	if !ok {
		return user.TrustScore, fmt.Errorf("unknown trust penalty reason %q", reason)
	}

	recent, err := ts.historyRepo.GetViolationsSince(ctx, tx, user.ID, time.Now().Add(-redemptionWindow))
	if err != nil {
		return user.TrustScore, fmt.Errorf("load recent violations: %w", err)
	}
	if len(recent) == 0 {
		delta /= 2
	}

	newScore := clampScore(user.TrustScore + delta)
	entry := &types.TrustHistory{
		UserID:        user.ID,
		PreviousScore: user.TrustScore,
		NewScore:      newScore,
		Delta:         newScore - user.TrustScore,
		Reason:        reason,
		ActionID:      actionID,
	}
	if _, err := ts.historyRepo.Create(ctx, tx, entry); err != nil {
		return user.TrustScore, fmt.Errorf("record trust history: %w", err)
	}
	if err := ts.userRepo.UpdateTrustScore(ctx, tx, user.ID, newScore); err != nil {
		return user.TrustScore, fmt.Errorf("update trust score: %w", err)
	}
	ts.log.Info("trust penalty applied",
		"user_id", user.ID,
		"reason", reason,
		"previous", user.TrustScore,
		"new", newScore)
	user.TrustScore = newScore
	return newScore, nil
}

func (ts *trustService) Multiplier(score float64) float64 {
	switch {
	case score < 0.3:
		return 0.0
	case score < 0.5:
		return 0.5
	default:
		return 1.0
	}
}

func (ts *trustService) record(ctx context.Context, tx *gorm.DB, user *types.User, actionID uuid.UUID, reason string, newScore float64) error {
	entry := &types.TrustHistory{
		UserID:        user.ID,
		PreviousScore: user.TrustScore,
		NewScore:      newScore,
		Delta:         newScore - user.TrustScore,
		Reason:        reason,
		ActionID:      &actionID,
	}
	if _, err := ts.historyRepo.Create(ctx, tx, entry); err != nil {
		return fmt.Errorf("record trust history: %w", err)
	}
	if err := ts.userRepo.UpdateTrustScore(ctx, tx, user.ID, newScore); err != nil {
		return fmt.Errorf("update trust score: %w", err)
	}
	return nil
}

func clampScore(score float64) float64 {
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}
