package types

import (
	"time"

	"github.com/google/uuid"
)

// TrustHistory is an append-only ledger row. The sum of deltas since
// account creation, clamped step by step to [0,1], reconstructs the
// user's current trust score.
type TrustHistory struct {
	ID            uuid.UUID  `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	UserID        uuid.UUID  `gorm:"type:uuid;not null;index:idx_trust_history_user_created;column:user_id" json:"user_id"`
	PreviousScore float64    `gorm:"not null;column:previous_score" json:"previous_score"`
	NewScore      float64    `gorm:"not null;column:new_score" json:"new_score"`
	Delta         float64    `gorm:"not null;column:delta" json:"delta"`
	Reason        string     `gorm:"not null;column:reason" json:"reason"`
	ActionID      *uuid.UUID `gorm:"type:uuid;column:action_id" json:"action_id,omitempty"`
	CreatedAt     time.Time  `gorm:"not null;default:now();index:idx_trust_history_user_created" json:"created_at"`
}

func (TrustHistory) TableName() string { return "trust_history" }
