package services

import (
	"context"
	"fmt"
	"math"
	"time"

	"gorm.io/gorm"

	"github.com/greenloop/recircle-backend/internal/pkg/logger"
	"github.com/greenloop/recircle-backend/internal/repos"
	"github.com/greenloop/recircle-backend/internal/types"
)

// Gate reasons recorded when a verified action earns zero points.
const (
	GateDailyCap       = "daily_cap_reached"
	GatePointDailyCap  = "point_daily_cap_reached"
	GateSameMaterial   = "same_material_repeat"
	GateActionCooldown = "action_cooldown"
	GatePointCooldown  = "same_point_cooldown"
	GateZeroTrust      = "zero_trust_multiplier"
)

// RewardService computes and persists the payout for a verified
// action. Callers must hold the user row lock for the enclosing
// transaction. Award reads the streak the user walked in with, so the
// streak advance belongs after the payout.
type RewardService interface {
	// Award is idempotent on action: a replayed settlement returns the
	// stored reward instead of paying twice. When a cap or cooldown
	// gate fires, no reward row is written and the gate name is
	// returned; a zero trust multiplier still writes a zero-point row.
	Award(ctx context.Context, tx *gorm.DB, action *types.RecycleAction, user *types.User, point *types.RecyclingPoint, trustMultiplier float64) (*types.Reward, string, error)
	// NextStreak computes the streak value the action moves the user
	// to: consecutive days extend it, a gap resets it, a second action
	// on the same day leaves it alone.
	NextStreak(user *types.User, at time.Time) int
}

type rewardService struct {
	log        *logger.Logger
	rules      RewardRules
	rewardRepo repos.RewardRepo
	actionRepo repos.RecycleActionRepo
}

func NewRewardService(rules RewardRules, rewardRepo repos.RewardRepo, actionRepo repos.RecycleActionRepo, baseLog *logger.Logger) RewardService {
	serviceLog := baseLog.With("service", "RewardService")
	return &rewardService{log: serviceLog, rules: rules, rewardRepo: rewardRepo, actionRepo: actionRepo}
}

func (rs *rewardService) Award(ctx context.Context, tx *gorm.DB, action *types.RecycleAction, user *types.User, point *types.RecyclingPoint, trustMultiplier float64) (*types.Reward, string, error) {
	existing, err := rs.rewardRepo.GetByActionID(ctx, tx, action.ID)
	if err != nil {
		return nil, "", fmt.Errorf("load existing reward: %w", err)
	}
	if existing != nil {
		rs.log.Info("reward already settled",
			"action_id", action.ID,
			"final_points", existing.FinalPoints)
		return existing, "", nil
	}

	base, ok := rs.rules.BasePoints[action.Material]
	if !ok {
		return nil, "", fmt.Errorf("no base points for material %q", action.Material)
	}

	gate, err := rs.checkGates(ctx, tx, action, user, point)
	if err != nil {
		return nil, "", err
	}
	if gate != "" {
		// Caps and cooldowns withhold the payout without leaving a
		// row; the action record already tells that story.
		rs.log.Info("reward withheld",
			"action_id", action.ID,
			"user_id", user.ID,
			"gate", gate)
		return nil, gate, nil
	}

	streakMultiplier := math.Min(rs.rules.MaxStreakMultiplier, 1.0+float64(user.StreakDays)*rs.rules.StreakStep)

	reward := &types.Reward{
		UserID:             user.ID,
		ActionID:           action.ID,
		BasePoints:         base,
		LocationMultiplier: point.RewardMultiplier,
		StreakMultiplier:   streakMultiplier,
		TrustMultiplier:    trustMultiplier,
	}
	if trustMultiplier == 0 {
		// The zero-point row is the record that the action was verified
		// but deliberately unpaid.
		gate = GateZeroTrust
	} else {
		reward.FinalPoints = int(math.Floor(float64(base) * point.RewardMultiplier * streakMultiplier * trustMultiplier))
	}

	if _, err := rs.rewardRepo.Create(ctx, tx, reward); err != nil {
		return nil, "", fmt.Errorf("create reward: %w", err)
	}
	if err := rs.actionRepo.UpdatePointsAwarded(ctx, tx, action.ID, reward.FinalPoints); err != nil {
		return nil, "", fmt.Errorf("update points awarded: %w", err)
	}
	rs.log.Info("reward computed",
		"action_id", action.ID,
		"user_id", user.ID,
		"final_points", reward.FinalPoints,
		"gate", gate)
	return reward, gate, nil
}

func (rs *rewardService) checkGates(ctx context.Context, tx *gorm.DB, action *types.RecycleAction, user *types.User, point *types.RecyclingPoint) (string, error) {
	now := action.CreatedAt
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	dailyTotal, err := rs.rewardRepo.SumFinalPointsByUserSince(ctx, tx, user.ID, dayStart)
	if err != nil {
		return "", fmt.Errorf("sum daily points: %w", err)
	}
	if dailyTotal >= int64(rs.rules.DailyCap) {
		return GateDailyCap, nil
	}

	pointDaily, err := rs.rewardRepo.SumFinalPointsByUserAtPointSince(ctx, tx, user.ID, point.ID, dayStart)
	if err != nil {
		return "", fmt.Errorf("sum point daily: %w", err)
	}
	if pointDaily >= int64(rs.rules.PointDailyCap) {
		return GatePointDailyCap, nil
	}

	// The repeat gate spans every point: hopping stations with the same
	// item is the pattern it exists to stop.
	sameMaterial, err := rs.actionRepo.CountVerifiedMaterialByUserSince(ctx, tx, user.ID, action.Material, now.Add(-rs.rules.SameMaterialWindow.Std()))
	if err != nil {
		return "", fmt.Errorf("count same material: %w", err)
	}
	if sameMaterial >= int64(rs.rules.SameMaterialLimit) {
		return GateSameMaterial, nil
	}

	lastAction, err := rs.actionRepo.GetLastByUser(ctx, tx, user.ID, action.ID)
	if err != nil {
		return "", fmt.Errorf("load last action: %w", err)
	}
	if lastAction != nil && now.Sub(lastAction.CreatedAt) < rs.rules.MinActionGap.Std() {
		return GateActionCooldown, nil
	}

	lastAtPoint, err := rs.actionRepo.GetLastByUserAtPoint(ctx, tx, user.ID, point.ID, action.ID)
	if err != nil {
		return "", fmt.Errorf("load last action at point: %w", err)
	}
	if lastAtPoint != nil && now.Sub(lastAtPoint.CreatedAt) < rs.rules.MinSamePointGap.Std() {
		return GatePointCooldown, nil
	}
	return "", nil
}

func (rs *rewardService) NextStreak(user *types.User, at time.Time) int {
	if user.LastActionAt == nil {
		return 1
	}
	last := user.LastActionAt.In(at.Location())
	lastDay := time.Date(last.Year(), last.Month(), last.Day(), 0, 0, 0, 0, at.Location())
	today := time.Date(at.Year(), at.Month(), at.Day(), 0, 0, 0, 0, at.Location())
	switch int(today.Sub(lastDay).Hours() / 24) {
	case 0:
		return user.StreakDays
	case 1:
		return user.StreakDays + 1
	default:
		return 1
	}
}
