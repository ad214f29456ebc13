package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	ActionStatusPending  = "PENDING"
	ActionStatusVerified = "VERIFIED"
	ActionStatusRejected = "REJECTED"
	ActionStatusFlagged  = "FLAGGED"
)

// FrameSample is one entry of the frame metadata captured by the
// mobile client during the detection burst.
type FrameSample struct {
	Index       int         `json:"index"`
	TimestampMs int64       `json:"timestamp_ms"`
	Confidence  float64     `json:"confidence"`
	BoundingBox BoundingBox `json:"bounding_box"`
}

type BoundingBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// AIResult is the classifier verdict persisted alongside the action.
type AIResult struct {
	ObjectType string  `json:"object_type"`
	Confidence float64 `json:"confidence"`
	Authentic  bool    `json:"authentic"`
	Quality    string  `json:"quality"`
	Reasoning  string  `json:"reasoning,omitempty"`
	Provider   string  `json:"provider,omitempty"`
}

type RecycleAction struct {
	ID               uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID           uuid.UUID `gorm:"type:uuid;not null;index:idx_recycle_actions_user_created;column:user_id" json:"user_id"`
	RecyclingPointID uuid.UUID `gorm:"type:uuid;not null;index;column:recycling_point_id" json:"recycling_point_id"`
	Material         Material  `gorm:"not null;index;column:material" json:"material"`

	Confidence           float64 `gorm:"not null;column:confidence" json:"confidence"`
	BoundingBoxAreaRatio float64 `gorm:"not null;column:bounding_box_area_ratio" json:"bounding_box_area_ratio"`
	FrameCountDetected   int     `gorm:"not null;column:frame_count_detected" json:"frame_count_detected"`
	MotionScore          float64 `gorm:"not null;column:motion_score" json:"motion_score"`

	// ImageHash stays pristine on every row, duplicates included, so
	// cross-user hash queries see the real value. Exact-replay
	// rejection happens at intake, not through a unique index.
	ImageHash      string `gorm:"not null;index:idx_recycle_actions_image_hash;column:image_hash" json:"image_hash"`
	PerceptualHash string `gorm:"not null;index;column:perceptual_hash" json:"perceptual_hash"`
	ImageURL       string `gorm:"not null;column:image_url" json:"image_url"`

	GpsLat      float64  `gorm:"not null;column:gps_lat" json:"gps_lat"`
	GpsLng      float64  `gorm:"not null;column:gps_lng" json:"gps_lng"`
	GpsAccuracy float64  `gorm:"not null;column:gps_accuracy" json:"gps_accuracy"`
	GpsAltitude *float64 `gorm:"column:gps_altitude" json:"gps_altitude,omitempty"`

	FrameSamples datatypes.JSON `gorm:"type:jsonb;column:frame_samples" json:"frame_samples,omitempty"`

	VerificationScore *float64       `gorm:"column:verification_score" json:"verification_score,omitempty"`
	AIScore           *float64       `gorm:"column:ai_score" json:"ai_score,omitempty"`
	AIResult          datatypes.JSON `gorm:"type:jsonb;column:ai_result" json:"ai_result,omitempty"`
	RejectionReason   string         `gorm:"column:rejection_reason" json:"rejection_reason,omitempty"`

	Status        string `gorm:"not null;default:PENDING;index:idx_recycle_actions_status_created;column:status" json:"status"`
	PointsAwarded *int   `gorm:"column:points_awarded" json:"points_awarded,omitempty"`

	IdempotencyKey string `gorm:"not null;uniqueIndex:idx_recycle_actions_idempotency;column:idempotency_key" json:"idempotency_key"`

	// VerificationStartedAt is the worker claim marker: set exactly once
	// by the conditional claim update, so only one worker ever verifies
	// a given action.
	VerificationStartedAt *time.Time `gorm:"column:verification_started_at" json:"-"`

	CreatedAt time.Time `gorm:"not null;default:now();index:idx_recycle_actions_user_created" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (RecycleAction) TableName() string { return "recycle_actions" }
