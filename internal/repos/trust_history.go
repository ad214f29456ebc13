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

type TrustHistoryRepo interface {
	Create(ctx context.Context, tx *gorm.DB, entry *types.TrustHistory) (*types.TrustHistory, error)
	// GetLastIncrease returns the most recent positive-delta entry for
	// the user, or nil when the score has never gone up.
	GetLastIncrease(ctx context.Context, tx *gorm.DB, userID uuid.UUID) (*types.TrustHistory, error)
	GetViolationsSince(ctx context.Context, tx *gorm.DB, userID uuid.UUID, since time.Time) ([]*types.TrustHistory, error)
	ListByUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID, limit, offset int) ([]*types.TrustHistory, error)
}

type trustHistoryRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewTrustHistoryRepo(db *gorm.DB, baseLog *logger.Logger) TrustHistoryRepo {
	repoLog := baseLog.With("repo", "TrustHistoryRepo")
	return &trustHistoryRepo{db: db, log: repoLog}
}

func (thr *trustHistoryRepo) Create(ctx context.Context, tx *gorm.DB, entry *types.TrustHistory) (*types.TrustHistory, error) {
	transaction := tx
	if transaction == nil {
		transaction = thr.db
	}
	if err := transaction.WithContext(ctx).Create(entry).Error; err != nil {
		return nil, err
	}
	return entry, nil
}

func (thr *trustHistoryRepo) GetLastIncrease(ctx context.Context, tx *gorm.DB, userID uuid.UUID) (*types.TrustHistory, error) {
	transaction := tx
	if transaction == nil {
		transaction = thr.db
	}
	var entry types.TrustHistory
	err := transaction.WithContext(ctx).
		Where("user_id = ? AND delta > 0", userID).
		Order("created_at DESC").
		First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (thr *trustHistoryRepo) GetViolationsSince(ctx context.Context, tx *gorm.DB, userID uuid.UUID, since time.Time) ([]*types.TrustHistory, error) {
	transaction := tx
	if transaction == nil {
		transaction = thr.db
	}
	var entries []*types.TrustHistory
	if err := transaction.WithContext(ctx).
		Where("user_id = ? AND delta < 0 AND created_at >= ?", userID, since).
		Order("created_at DESC").
		Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

func (thr *trustHistoryRepo) ListByUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID, limit, offset int) ([]*types.TrustHistory, error) {
	transaction := tx
	if transaction == nil {
		transaction = thr.db
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	var entries []*types.TrustHistory
	if err := transaction.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}
