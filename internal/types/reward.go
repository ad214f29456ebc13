package types

import (
	"time"

	"github.com/google/uuid"
)

type Reward struct {
	ID                 uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	UserID             uuid.UUID `gorm:"type:uuid;not null;index:idx_rewards_user_created;column:user_id" json:"user_id"`
	ActionID           uuid.UUID `gorm:"type:uuid;not null;uniqueIndex;column:action_id" json:"action_id"`
	BasePoints         int       `gorm:"not null;column:base_points" json:"base_points"`
	LocationMultiplier float64   `gorm:"not null;column:location_multiplier" json:"location_multiplier"`
	StreakMultiplier   float64   `gorm:"not null;column:streak_multiplier" json:"streak_multiplier"`
	TrustMultiplier    float64   `gorm:"not null;column:trust_multiplier" json:"trust_multiplier"`
	FinalPoints        int       `gorm:"not null;column:final_points" json:"final_points"`
	CreatedAt          time.Time `gorm:"not null;default:now();index:idx_rewards_user_created" json:"created_at"`
}

func (Reward) TableName() string { return "rewards" }
