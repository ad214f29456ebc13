package services

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/greenloop/recircle-backend/internal/pkg/logger"
	"github.com/greenloop/recircle-backend/internal/repos"
	"github.com/greenloop/recircle-backend/internal/types"
)

// AuditService appends to the audit trail. Failures are logged and
// swallowed: an audit hiccup must never roll back the business
// transaction it describes.
type AuditService interface {
	Record(ctx context.Context, tx *gorm.DB, entry AuditEntry)
	ListForUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*types.AuditLog, error)
}

type AuditEntry struct {
	ActionType string
	UserID     *uuid.UUID
	EntityType string
	EntityID   *uuid.UUID
	Metadata   map[string]interface{}
	IPAddress  string
	UserAgent  string
}

type auditService struct {
	log       *logger.Logger
	auditRepo repos.AuditLogRepo
}

func NewAuditService(auditRepo repos.AuditLogRepo, baseLog *logger.Logger) AuditService {
	serviceLog := baseLog.With("service", "AuditService")
	return &auditService{log: serviceLog, auditRepo: auditRepo}
}

func (as *auditService) Record(ctx context.Context, tx *gorm.DB, entry AuditEntry) {
	row := &types.AuditLog{
		ActionType: entry.ActionType,
		UserID:     entry.UserID,
		EntityType: entry.EntityType,
		EntityID:   entry.EntityID,
		IPAddress:  entry.IPAddress,
		UserAgent:  entry.UserAgent,
	}
	if entry.Metadata != nil {
		raw, err := json.Marshal(entry.Metadata)
		if err != nil {
			as.log.Warn("failed to marshal audit metadata", "action_type", entry.ActionType, "error", err)
		} else {
			row.Metadata = datatypes.JSON(raw)
		}
	}
	if _, err := as.auditRepo.Create(ctx, tx, row); err != nil {
		as.log.Warn("failed to record audit entry", "action_type", entry.ActionType, "error", err)
	}
}

func (as *auditService) ListForUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*types.AuditLog, error) {
	return as.auditRepo.ListByUser(ctx, nil, userID, limit, offset)
}
