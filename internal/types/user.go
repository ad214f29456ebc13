package types

import (
	"time"

	"github.com/google/uuid"
)

const (
	RoleUser  = "USER"
	RoleAdmin = "ADMIN"
)

// DefaultTrustScore is the score a freshly registered account starts at.
const DefaultTrustScore = 0.7

type User struct {
	ID                uuid.UUID  `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	Email             string     `gorm:"uniqueIndex;not null;column:email" json:"email"`
	PasswordHash      string     `gorm:"not null;column:password_hash" json:"-"`
	TrustScore        float64    `gorm:"not null;default:0.7;column:trust_score" json:"trust_score"`
	StreakDays        int        `gorm:"not null;default:0;column:streak_days" json:"streak_days"`
	LastActionAt      *time.Time `gorm:"column:last_action_at" json:"last_action_at,omitempty"`
	DeviceFingerprint string     `gorm:"column:device_fingerprint" json:"-"`
	Role              string     `gorm:"not null;default:USER;column:role" json:"role"`
	CreatedAt         time.Time  `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt         time.Time  `gorm:"not null;default:now()" json:"updated_at"`
}

func (User) TableName() string { return "users" }
