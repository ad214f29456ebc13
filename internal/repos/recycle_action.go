package repos

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/greenloop/recircle-backend/internal/pkg/logger"
	"github.com/greenloop/recircle-backend/internal/types"
)

// ActionListFilter narrows ListByUser. Zero values mean "no filter".
type ActionListFilter struct {
	Status   string
	Material types.Material
	PointID  *uuid.UUID
	From     *time.Time
	To       *time.Time
	Limit    int
	Offset   int
}

type RecycleActionRepo interface {
	Create(ctx context.Context, tx *gorm.DB, action *types.RecycleAction) (*types.RecycleAction, error)
	GetByID(ctx context.Context, tx *gorm.DB, actionID uuid.UUID) (*types.RecycleAction, error)
	GetByIdempotencyKey(ctx context.Context, tx *gorm.DB, userID uuid.UUID, key string) (*types.RecycleAction, error)
	ListByUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID, filter ActionListFilter) ([]*types.RecycleAction, int64, error)

	ExistsByImageHash(ctx context.Context, tx *gorm.DB, imageHash string, excludeID uuid.UUID) (bool, error)
	CountDistinctUsersByImageHash(ctx context.Context, tx *gorm.DB, imageHash string) (int64, error)
	// GetRecentByUser returns the user's most recent actions, newest
	// first, for perceptual-hash comparison.
	GetRecentByUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID, excludeID uuid.UUID, limit int) ([]*types.RecycleAction, error)
	GetLastByUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID, excludeID uuid.UUID) (*types.RecycleAction, error)
	GetLastByUserAtPoint(ctx context.Context, tx *gorm.DB, userID, pointID uuid.UUID, excludeID uuid.UUID) (*types.RecycleAction, error)

	CountByUserSince(ctx context.Context, tx *gorm.DB, userID uuid.UUID, since time.Time, excludeID uuid.UUID) (int64, error)
	CountDistinctPointsByUserSince(ctx context.Context, tx *gorm.DB, userID uuid.UUID, since time.Time) (int64, error)
	CountVerifiedMaterialByUserSince(ctx context.Context, tx *gorm.DB, userID uuid.UUID, material types.Material, since time.Time) (int64, error)
	CountVerifiedByUserSince(ctx context.Context, tx *gorm.DB, userID uuid.UUID, since time.Time) (int64, error)
	CountDistinctUsersNearSince(ctx context.Context, tx *gorm.DB, lat, lng, tolerance float64, since time.Time) (int64, error)

	ClaimNextPending(ctx context.Context, tx *gorm.DB, staleCutoff time.Duration) (*types.RecycleAction, error)
	UpdateDecision(ctx context.Context, tx *gorm.DB, actionID uuid.UUID, status string, score *float64, aiScore *float64, aiResult []byte, rejectionReason string) (bool, error)
	MarkFlagged(ctx context.Context, tx *gorm.DB, actionID uuid.UUID, reason string) error
	UpdatePointsAwarded(ctx context.Context, tx *gorm.DB, actionID uuid.UUID, points int) error
}

type recycleActionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewRecycleActionRepo(db *gorm.DB, baseLog *logger.Logger) RecycleActionRepo {
	repoLog := baseLog.With("repo", "RecycleActionRepo")
	return &recycleActionRepo{db: db, log: repoLog}
}

func (rar *recycleActionRepo) Create(ctx context.Context, tx *gorm.DB, action *types.RecycleAction) (*types.RecycleAction, error) {
	transaction := tx
	if transaction == nil {
		transaction = rar.db
	}
	if err := transaction.WithContext(ctx).Create(action).Error; err != nil {
		return nil, err
	}
	return action, nil
}

func (rar *recycleActionRepo) GetByID(ctx context.Context, tx *gorm.DB, actionID uuid.UUID) (*types.RecycleAction, error) {
	transaction := tx
	if transaction == nil {
		transaction = rar.db
	}
	var action types.RecycleAction
	err := transaction.WithContext(ctx).
		Where("id = ?", actionID).
		First(&action).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &action, nil
}

func (rar *recycleActionRepo) GetByIdempotencyKey(ctx context.Context, tx *gorm.DB, userID uuid.UUID, key string) (*types.RecycleAction, error) {
	transaction := tx
	if transaction == nil {
		transaction = rar.db
	}
	var action types.RecycleAction
	err := transaction.WithContext(ctx).
		Where("user_id = ? AND idempotency_key = ?", userID, key).
		First(&action).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &action, nil
}

func (rar *recycleActionRepo) ListByUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID, filter ActionListFilter) ([]*types.RecycleAction, int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = rar.db
	}
	query := transaction.WithContext(ctx).
		Model(&types.RecycleAction{}).
		Where("user_id = ?", userID)
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.Material != "" {
		query = query.Where("material = ?", filter.Material)
	}
	if filter.PointID != nil {
		query = query.Where("recycling_point_id = ?", *filter.PointID)
	}
	if filter.From != nil {
		query = query.Where("created_at >= ?", *filter.From)
	}
	if filter.To != nil {
		query = query.Where("created_at < ?", *filter.To)
	}
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	limit := filter.Limit
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	var actions []*types.RecycleAction
	if err := query.
		Order("created_at DESC").
		Limit(limit).
		Offset(filter.Offset).
		Find(&actions).Error; err != nil {
		return nil, 0, err
	}
	return actions, total, nil
}

func (rar *recycleActionRepo) ExistsByImageHash(ctx context.Context, tx *gorm.DB, imageHash string, excludeID uuid.UUID) (bool, error) {
	transaction := tx
	if transaction == nil {
		transaction = rar.db
	}
	var count int64
	if err := transaction.WithContext(ctx).
		Model(&types.RecycleAction{}).
		Where("image_hash = ? AND id <> ?", imageHash, excludeID).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (rar *recycleActionRepo) CountDistinctUsersByImageHash(ctx context.Context, tx *gorm.DB, imageHash string) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = rar.db
	}
	var count int64
	if err := transaction.WithContext(ctx).
		Model(&types.RecycleAction{}).
		Where("image_hash = ?", imageHash).
		Distinct("user_id").
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (rar *recycleActionRepo) GetRecentByUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID, excludeID uuid.UUID, limit int) ([]*types.RecycleAction, error) {
	transaction := tx
	if transaction == nil {
		transaction = rar.db
	}
	var actions []*types.RecycleAction
	if err := transaction.WithContext(ctx).
		Where("user_id = ? AND id <> ?", userID, excludeID).
		Order("created_at DESC").
		Limit(limit).
		Find(&actions).Error; err != nil {
		return nil, err
	}
	return actions, nil
}

func (rar *recycleActionRepo) GetLastByUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID, excludeID uuid.UUID) (*types.RecycleAction, error) {
	transaction := tx
	if transaction == nil {
		transaction = rar.db
	}
	var action types.RecycleAction
	err := transaction.WithContext(ctx).
		Where("user_id = ? AND id <> ?", userID, excludeID).
		Order("created_at DESC").
		First(&action).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &action, nil
}

func (rar *recycleActionRepo) GetLastByUserAtPoint(ctx context.Context, tx *gorm.DB, userID, pointID uuid.UUID, excludeID uuid.UUID) (*types.RecycleAction, error) {
	transaction := tx
	if transaction == nil {
		transaction = rar.db
	}
	var action types.RecycleAction
	err := transaction.WithContext(ctx).
		Where("user_id = ? AND recycling_point_id = ? AND id <> ?", userID, pointID, excludeID).
		Order("created_at DESC").
		First(&action).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &action, nil
}

func (rar *recycleActionRepo) CountByUserSince(ctx context.Context, tx *gorm.DB, userID uuid.UUID, since time.Time, excludeID uuid.UUID) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = rar.db
	}
	var count int64
	if err := transaction.WithContext(ctx).
		Model(&types.RecycleAction{}).
		Where("user_id = ? AND created_at >= ? AND id <> ?", userID, since, excludeID).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (rar *recycleActionRepo) CountDistinctPointsByUserSince(ctx context.Context, tx *gorm.DB, userID uuid.UUID, since time.Time) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = rar.db
	}
	var count int64
	if err := transaction.WithContext(ctx).
		Model(&types.RecycleAction{}).
		Where("user_id = ? AND created_at >= ?", userID, since).
		Distinct("recycling_point_id").
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (rar *recycleActionRepo) CountVerifiedMaterialByUserSince(ctx context.Context, tx *gorm.DB, userID uuid.UUID, material types.Material, since time.Time) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = rar.db
	}
	var count int64
	if err := transaction.WithContext(ctx).
		Model(&types.RecycleAction{}).
		Where("user_id = ? AND material = ? AND status = ? AND created_at >= ?",
			userID, material, types.ActionStatusVerified, since).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (rar *recycleActionRepo) CountVerifiedByUserSince(ctx context.Context, tx *gorm.DB, userID uuid.UUID, since time.Time) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = rar.db
	}
	var count int64
	if err := transaction.WithContext(ctx).
		Model(&types.RecycleAction{}).
		Where("user_id = ? AND status = ? AND created_at >= ?", userID, types.ActionStatusVerified, since).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (rar *recycleActionRepo) CountDistinctUsersNearSince(ctx context.Context, tx *gorm.DB, lat, lng, tolerance float64, since time.Time) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = rar.db
	}
	var count int64
	if err := transaction.WithContext(ctx).
		Model(&types.RecycleAction{}).
		Where("gps_lat BETWEEN ? AND ? AND gps_lng BETWEEN ? AND ? AND created_at >= ?",
			lat-tolerance, lat+tolerance, lng-tolerance, lng+tolerance, since).
		Distinct("user_id").
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// ClaimNextPending atomically claims the oldest unclaimed pending action
// for verification. Claims older than staleCutoff are treated as
// abandoned and may be re-claimed, so a crashed worker never strands an
// action forever. Returns nil when nothing is claimable.
func (rar *recycleActionRepo) ClaimNextPending(ctx context.Context, tx *gorm.DB, staleCutoff time.Duration) (*types.RecycleAction, error) {
	transaction := tx
	if transaction == nil {
		transaction = rar.db
	}
	var claimed *types.RecycleAction
	err := transaction.WithContext(ctx).Transaction(func(txx *gorm.DB) error {
		var action types.RecycleAction
		staleBefore := time.Now().Add(-staleCutoff)
		err := txx.
			Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where("status = ? AND (verification_started_at IS NULL OR verification_started_at < ?)",
				types.ActionStatusPending, staleBefore).
			Order("created_at ASC").
			First(&action).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		now := time.Now()
		if err := txx.Model(&types.RecycleAction{}).
			Where("id = ?", action.ID).
			Updates(map[string]interface{}{
				"verification_started_at": now,
				"updated_at":              now,
			}).Error; err != nil {
			return err
		}
		action.VerificationStartedAt = &now
		claimed = &action
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

// UpdateDecision finalizes a pending action. The WHERE status guard
// makes the transition single-shot: the bool reports whether this call
// actually performed it.
func (rar *recycleActionRepo) UpdateDecision(ctx context.Context, tx *gorm.DB, actionID uuid.UUID, status string, score *float64, aiScore *float64, aiResult []byte, rejectionReason string) (bool, error) {
	transaction := tx
	if transaction == nil {
		transaction = rar.db
	}
	updates := map[string]interface{}{
		"status":     status,
		"updated_at": time.Now(),
	}
	if score != nil {
		updates["verification_score"] = *score
	}
	if aiScore != nil {
		updates["ai_score"] = *aiScore
	}
	if len(aiResult) > 0 {
		updates["ai_result"] = aiResult
	}
	if rejectionReason != "" {
		updates["rejection_reason"] = rejectionReason
	}
	res := transaction.WithContext(ctx).
		Model(&types.RecycleAction{}).
		Where("id = ? AND status = ?", actionID, types.ActionStatusPending).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (rar *recycleActionRepo) MarkFlagged(ctx context.Context, tx *gorm.DB, actionID uuid.UUID, reason string) error {
	transaction := tx
	if transaction == nil {
		transaction = rar.db
	}
	return transaction.WithContext(ctx).
		Model(&types.RecycleAction{}).
		Where("id = ? AND status = ?", actionID, types.ActionStatusRejected).
		Updates(map[string]interface{}{
			"status":           types.ActionStatusFlagged,
			"rejection_reason": reason,
			"updated_at":       time.Now(),
		}).Error
}

func (rar *recycleActionRepo) UpdatePointsAwarded(ctx context.Context, tx *gorm.DB, actionID uuid.UUID, points int) error {
	transaction := tx
	if transaction == nil {
		transaction = rar.db
	}
	return transaction.WithContext(ctx).
		Model(&types.RecycleAction{}).
		Where("id = ?", actionID).
		Updates(map[string]interface{}{
			"points_awarded": points,
			"updated_at":     time.Now(),
		}).Error
}
