package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	errs "github.com/greenloop/recircle-backend/internal/pkg/errors"
	"github.com/greenloop/recircle-backend/internal/pkg/logger"
	"github.com/greenloop/recircle-backend/internal/platform/apierr"
	"github.com/greenloop/recircle-backend/internal/repos"
	"github.com/greenloop/recircle-backend/internal/types"
	"github.com/greenloop/recircle-backend/internal/utils"
)

type CreatePointRequest struct {
	Name             string           `json:"name"`
	Latitude         float64          `json:"latitude"`
	Longitude        float64          `json:"longitude"`
	RadiusMeters     float64          `json:"radius_meters"`
	Altitude         *float64         `json:"altitude,omitempty"`
	AllowedMaterials []types.Material `json:"allowed_materials"`
	RewardMultiplier float64          `json:"reward_multiplier"`
}

// NearbyPoint carries the distance alongside the point so clients can
// sort without redoing the math.
type NearbyPoint struct {
	*types.RecyclingPoint
	DistanceMeters float64 `json:"distance_meters"`
}

type PointService interface {
	Create(ctx context.Context, req CreatePointRequest) (*types.RecyclingPoint, error)
	Get(ctx context.Context, pointID uuid.UUID) (*types.RecyclingPoint, error)
	ListActive(ctx context.Context) ([]*types.RecyclingPoint, error)
	ListNearby(ctx context.Context, lat, lng, radiusMeters float64) ([]NearbyPoint, error)
	SetActive(ctx context.Context, pointID uuid.UUID, active bool) error
}

type pointService struct {
	log       *logger.Logger
	pointRepo repos.RecyclingPointRepo
}

func NewPointService(pointRepo repos.RecyclingPointRepo, baseLog *logger.Logger) PointService {
	serviceLog := baseLog.With("service", "PointService")
	return &pointService{log: serviceLog, pointRepo: pointRepo}
}

func (ps *pointService) Create(ctx context.Context, req CreatePointRequest) (*types.RecyclingPoint, error) {
	if req.Name == "" {
		return nil, apierr.New(http.StatusBadRequest, "INVALID_POINT", fmt.Errorf("name required"))
	}
	if req.RadiusMeters <= 0 {
		return nil, apierr.New(http.StatusBadRequest, "INVALID_POINT", fmt.Errorf("radius must be positive"))
	}
	if len(req.AllowedMaterials) == 0 {
		return nil, apierr.New(http.StatusBadRequest, "INVALID_POINT", fmt.Errorf("at least one material required"))
	}
	for _, m := range req.AllowedMaterials {
		if !m.Valid() {
			return nil, apierr.New(http.StatusBadRequest, "INVALID_MATERIAL", fmt.Errorf("unknown material %q", m))
		}
	}
	multiplier := req.RewardMultiplier
	if multiplier <= 0 {
		multiplier = 1.0
	}

	raw, err := json.Marshal(req.AllowedMaterials)
	if err != nil {
		return nil, fmt.Errorf("marshal materials: %w", err)
	}
	point := &types.RecyclingPoint{
		Name:             req.Name,
		Latitude:         req.Latitude,
		Longitude:        req.Longitude,
		RadiusMeters:     req.RadiusMeters,
		Altitude:         req.Altitude,
		AllowedMaterials: datatypes.JSON(raw),
		RewardMultiplier: multiplier,
		IsActive:         true,
	}
	return ps.pointRepo.Create(ctx, nil, point)
}

func (ps *pointService) Get(ctx context.Context, pointID uuid.UUID) (*types.RecyclingPoint, error) {
	point, err := ps.pointRepo.GetByID(ctx, nil, pointID)
	if err != nil {
		return nil, err
	}
	if point == nil {
		return nil, apierr.New(http.StatusNotFound, "POINT_NOT_FOUND", fmt.Errorf("recycling point %s: %w", pointID, errs.ErrNotFound))
	}
	return point, nil
}

func (ps *pointService) ListActive(ctx context.Context) ([]*types.RecyclingPoint, error) {
	return ps.pointRepo.ListActive(ctx, nil)
}

func (ps *pointService) ListNearby(ctx context.Context, lat, lng, radiusMeters float64) ([]NearbyPoint, error) {
	// One degree of latitude is about 111km; the box over-fetches and
	// the haversine pass trims it to the true radius.
	boxDegrees := radiusMeters / 111000.0
	candidates, err := ps.pointRepo.ListNear(ctx, nil, lat, lng, boxDegrees)
	if err != nil {
		return nil, err
	}
	var nearby []NearbyPoint
	for _, p := range candidates {
		d := utils.HaversineMeters(lat, lng, p.Latitude, p.Longitude)
		if d <= radiusMeters {
			nearby = append(nearby, NearbyPoint{RecyclingPoint: p, DistanceMeters: d})
		}
	}
	return nearby, nil
}

func (ps *pointService) SetActive(ctx context.Context, pointID uuid.UUID, active bool) error {
	return ps.pointRepo.SetActive(ctx, nil, pointID, active)
}
