package repos

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/greenloop/recircle-backend/internal/pkg/logger"
	"github.com/greenloop/recircle-backend/internal/types"
)

type RewardRepo interface {
	Create(ctx context.Context, tx *gorm.DB, reward *types.Reward) (*types.Reward, error)
	GetByActionID(ctx context.Context, tx *gorm.DB, actionID uuid.UUID) (*types.Reward, error)
	SumFinalPointsByUserSince(ctx context.Context, tx *gorm.DB, userID uuid.UUID, since time.Time) (int64, error)
	SumFinalPointsByUserAtPointSince(ctx context.Context, tx *gorm.DB, userID, pointID uuid.UUID, since time.Time) (int64, error)
	ListByUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID, limit, offset int) ([]*types.Reward, error)
}

type rewardRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewRewardRepo(db *gorm.DB, baseLog *logger.Logger) RewardRepo {
	repoLog := baseLog.With("repo", "RewardRepo")
	return &rewardRepo{db: db, log: repoLog}
}

func (rr *rewardRepo) Create(ctx context.Context, tx *gorm.DB, reward *types.Reward) (*types.Reward, error) {
	transaction := tx
	if transaction == nil {
		transaction = rr.db
	}
	if err := transaction.WithContext(ctx).Create(reward).Error; err != nil {
		return nil, err
	}
	return reward, nil
}

func (rr *rewardRepo) GetByActionID(ctx context.Context, tx *gorm.DB, actionID uuid.UUID) (*types.Reward, error) {
	transaction := tx
	if transaction == nil {
		transaction = rr.db
	}
	var reward types.Reward
	err := transaction.WithContext(ctx).
		Where("action_id = ?", actionID).
		First(&reward).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &reward, nil
}

func (rr *rewardRepo) SumFinalPointsByUserSince(ctx context.Context, tx *gorm.DB, userID uuid.UUID, since time.Time) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = rr.db
	}
	var sum *int64
	if err := transaction.WithContext(ctx).
		Model(&types.Reward{}).
		Select("SUM(final_points)").
		Where("user_id = ? AND created_at >= ?", userID, since).
		Scan(&sum).Error; err != nil {
		return 0, err
	}
	if sum == nil {
		return 0, nil
	}
	return *sum, nil
}

func (rr *rewardRepo) SumFinalPointsByUserAtPointSince(ctx context.Context, tx *gorm.DB, userID, pointID uuid.UUID, since time.Time) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = rr.db
	}
	var sum *int64
	if err := transaction.WithContext(ctx).
		Model(&types.Reward{}).
		Select("SUM(rewards.final_points)").
		Joins("JOIN recycle_actions ON recycle_actions.id = rewards.action_id").
		Where("rewards.user_id = ? AND recycle_actions.recycling_point_id = ? AND rewards.created_at >= ?", userID, pointID, since).
		Scan(&sum).Error; err != nil {
		return 0, err
	}
	if sum == nil {
		return 0, nil
	}
	return *sum, nil
}

func (rr *rewardRepo) ListByUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID, limit, offset int) ([]*types.Reward, error) {
	transaction := tx
	if transaction == nil {
		transaction = rr.db
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	var rewards []*types.Reward
	if err := transaction.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&rewards).Error; err != nil {
		return nil, err
	}
	return rewards, nil
}
