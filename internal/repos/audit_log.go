package repos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/greenloop/recircle-backend/internal/pkg/logger"
	"github.com/greenloop/recircle-backend/internal/types"
)

type AuditLogRepo interface {
	Create(ctx context.Context, tx *gorm.DB, entry *types.AuditLog) (*types.AuditLog, error)
	ListByUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID, limit, offset int) ([]*types.AuditLog, error)
	ListByEntity(ctx context.Context, tx *gorm.DB, entityType string, entityID uuid.UUID) ([]*types.AuditLog, error)
	DeleteOlderThan(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error)
}

type auditLogRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewAuditLogRepo(db *gorm.DB, baseLog *logger.Logger) AuditLogRepo {
	repoLog := baseLog.With("repo", "AuditLogRepo")
	return &auditLogRepo{db: db, log: repoLog}
}

func (alr *auditLogRepo) Create(ctx context.Context, tx *gorm.DB, entry *types.AuditLog) (*types.AuditLog, error) {
	transaction := tx
	if transaction == nil {
		transaction = alr.db
	}
	if err := transaction.WithContext(ctx).Create(entry).Error; err != nil {
		return nil, err
	}
	return entry, nil
}

func (alr *auditLogRepo) ListByUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID, limit, offset int) ([]*types.AuditLog, error) {
	transaction := tx
	if transaction == nil {
		transaction = alr.db
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var entries []*types.AuditLog
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

func (alr *auditLogRepo) ListByEntity(ctx context.Context, tx *gorm.DB, entityType string, entityID uuid.UUID) ([]*types.AuditLog, error) {
	transaction := tx
	if transaction == nil {
		transaction = alr.db
	}
	var entries []*types.AuditLog
	if err := transaction.WithContext(ctx).
		Where("entity_type = ? AND entity_id = ?", entityType, entityID).
		Order("created_at ASC").
		Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

func (alr *auditLogRepo) DeleteOlderThan(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = alr.db
	}
	res := transaction.WithContext(ctx).
		Where("created_at < ?", cutoff).
		Delete(&types.AuditLog{})
	return res.RowsAffected, res.Error
}
