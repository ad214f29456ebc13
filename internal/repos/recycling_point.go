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

type RecyclingPointRepo interface {
	Create(ctx context.Context, tx *gorm.DB, point *types.RecyclingPoint) (*types.RecyclingPoint, error)
	GetByID(ctx context.Context, tx *gorm.DB, pointID uuid.UUID) (*types.RecyclingPoint, error)
	ListActive(ctx context.Context, tx *gorm.DB) ([]*types.RecyclingPoint, error)
	// ListNear returns active points inside a bounding box around the
	// given coordinate. Callers refine with a haversine pass; the box
	// just keeps the scan cheap.
	ListNear(ctx context.Context, tx *gorm.DB, lat, lng, boxDegrees float64) ([]*types.RecyclingPoint, error)
	Update(ctx context.Context, tx *gorm.DB, point *types.RecyclingPoint) error
	SetActive(ctx context.Context, tx *gorm.DB, pointID uuid.UUID, active bool) error
}

type recyclingPointRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewRecyclingPointRepo(db *gorm.DB, baseLog *logger.Logger) RecyclingPointRepo {
	repoLog := baseLog.With("repo", "RecyclingPointRepo")
	return &recyclingPointRepo{db: db, log: repoLog}
}

func (rpr *recyclingPointRepo) Create(ctx context.Context, tx *gorm.DB, point *types.RecyclingPoint) (*types.RecyclingPoint, error) {
	transaction := tx
	if transaction == nil {
		transaction = rpr.db
	}
	if err := transaction.WithContext(ctx).Create(point).Error; err != nil {
		return nil, err
	}
	return point, nil
}

func (rpr *recyclingPointRepo) GetByID(ctx context.Context, tx *gorm.DB, pointID uuid.UUID) (*types.RecyclingPoint, error) {
	transaction := tx
	if transaction == nil {
		transaction = rpr.db
	}
	var point types.RecyclingPoint
	err := transaction.WithContext(ctx).
		Where("id = ?", pointID).
		First(&point).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &point, nil
}

func (rpr *recyclingPointRepo) ListActive(ctx context.Context, tx *gorm.DB) ([]*types.RecyclingPoint, error) {
	transaction := tx
	if transaction == nil {
		transaction = rpr.db
	}
	var points []*types.RecyclingPoint
	if err := transaction.WithContext(ctx).
		Where("is_active = ?", true).
		Order("name ASC").
		Find(&points).Error; err != nil {
		return nil, err
	}
	return points, nil
}

func (rpr *recyclingPointRepo) ListNear(ctx context.Context, tx *gorm.DB, lat, lng, boxDegrees float64) ([]*types.RecyclingPoint, error) {
	transaction := tx
	if transaction == nil {
		transaction = rpr.db
	}
	var points []*types.RecyclingPoint
	if err := transaction.WithContext(ctx).
		Where("is_active = ? AND latitude BETWEEN ? AND ? AND longitude BETWEEN ? AND ?",
			true, lat-boxDegrees, lat+boxDegrees, lng-boxDegrees, lng+boxDegrees).
		Find(&points).Error; err != nil {
		return nil, err
	}
	return points, nil
}

func (rpr *recyclingPointRepo) Update(ctx context.Context, tx *gorm.DB, point *types.RecyclingPoint) error {
	transaction := tx
	if transaction == nil {
		transaction = rpr.db
	}
	point.UpdatedAt = time.Now()
	return transaction.WithContext(ctx).Save(point).Error
}

func (rpr *recyclingPointRepo) SetActive(ctx context.Context, tx *gorm.DB, pointID uuid.UUID, active bool) error {
	transaction := tx
	if transaction == nil {
		transaction = rpr.db
	}
	return transaction.WithContext(ctx).
		Model(&types.RecyclingPoint{}).
		Where("id = ?", pointID).
		Updates(map[string]interface{}{
			"is_active":  active,
			"updated_at": time.Now(),
		}).Error
}
