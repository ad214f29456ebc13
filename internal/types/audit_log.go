package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	AuditActionSubmitted  = "ACTION_SUBMITTED"
	AuditActionVerified   = "ACTION_VERIFIED"
	AuditActionRejected   = "ACTION_REJECTED"
	AuditActionFlagged    = "ACTION_FLAGGED"
	AuditTrustChanged     = "TRUST_SCORE_CHANGED"
	AuditRewardAwarded    = "REWARD_AWARDED"
	AuditUserLogin        = "USER_LOGIN"
	AuditUserRegistered   = "USER_REGISTERED"
)

type AuditLog struct {
	ID         uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	ActionType string         `gorm:"not null;index:idx_audit_logs_type_created;column:action_type" json:"action_type"`
	UserID     *uuid.UUID     `gorm:"type:uuid;index;column:user_id" json:"user_id,omitempty"`
	EntityType string         `gorm:"column:entity_type" json:"entity_type,omitempty"`
	EntityID   *uuid.UUID     `gorm:"type:uuid;column:entity_id" json:"entity_id,omitempty"`
	Metadata   datatypes.JSON `gorm:"type:jsonb;column:metadata" json:"metadata,omitempty"`
	IPAddress  string         `gorm:"column:ip_address" json:"ip_address,omitempty"`
	UserAgent  string         `gorm:"column:user_agent" json:"user_agent,omitempty"`
	CreatedAt  time.Time      `gorm:"not null;default:now();index:idx_audit_logs_type_created" json:"created_at"`
}

func (AuditLog) TableName() string { return "audit_logs" }
