package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	redisclient "github.com/greenloop/recircle-backend/internal/clients/redis"
	errs "github.com/greenloop/recircle-backend/internal/pkg/errors"
	"github.com/greenloop/recircle-backend/internal/pkg/logger"
	"github.com/greenloop/recircle-backend/internal/platform/apierr"
	"github.com/greenloop/recircle-backend/internal/repos"
	"github.com/greenloop/recircle-backend/internal/types"
)

// SubmitActionRequest is the parsed submission payload. Image is the
// raw photo stream from the multipart upload.
type SubmitActionRequest struct {
	UserID         uuid.UUID
	PointID        uuid.UUID
	Material       types.Material
	IdempotencyKey string

	Confidence           float64
	BoundingBoxAreaRatio float64
	FrameCountDetected   int
	MotionScore          float64
	FrameSamples         []types.FrameSample
	PerceptualHash       string

	GpsLat      float64
	GpsLng      float64
	GpsAccuracy float64
	GpsAltitude *float64

	Image io.Reader
}

// ActionService orchestrates the lifecycle of a submission: intake over
// HTTP, background verification, and the money moves that follow the
// verdict.
type ActionService interface {
	Submit(ctx context.Context, req SubmitActionRequest) (*types.RecycleAction, error)
	// Process verifies one claimed pending action end to end. It is
	// called by the worker, never by handlers.
	Process(ctx context.Context, action *types.RecycleAction) error
	Get(ctx context.Context, userID uuid.UUID, isAdmin bool, actionID uuid.UUID) (*types.RecycleAction, error)
	List(ctx context.Context, userID uuid.UUID, filter repos.ActionListFilter) ([]*types.RecycleAction, int64, error)
}

type actionService struct {
	log *logger.Logger
	db  *gorm.DB

	userRepo   repos.UserRepo
	pointRepo  repos.RecyclingPointRepo
	actionRepo repos.RecycleActionRepo

	bucket       BucketService
	verification VerificationService
	trust        TrustService
	fraud        FraudService
	rewards      RewardService
	audit        AuditService
	events       redisclient.EventBus
}

func NewActionService(
	db *gorm.DB,
	userRepo repos.UserRepo,
	pointRepo repos.RecyclingPointRepo,
	actionRepo repos.RecycleActionRepo,
	bucket BucketService,
	verification VerificationService,
	trust TrustService,
	fraud FraudService,
	rewards RewardService,
	audit AuditService,
	events redisclient.EventBus,
	baseLog *logger.Logger,
) ActionService {
	serviceLog := baseLog.With("service", "ActionService")
	return &actionService{
		log:          serviceLog,
		db:           db,
		userRepo:     userRepo,
		pointRepo:    pointRepo,
		actionRepo:   actionRepo,
		bucket:       bucket,
		verification: verification,
		trust:        trust,
		fraud:        fraud,
		rewards:      rewards,
		audit:        audit,
		events:       events,
	}
}

// inTx wraps fn in a transaction. A service built without a db handle
// runs fn on the repos' default connection, which treats a nil tx the
// same way.
func (ats *actionService) inTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	if ats.db == nil {
		return fn(nil)
	}
	return ats.db.WithContext(ctx).Transaction(fn)
}

func (ats *actionService) Submit(ctx context.Context, req SubmitActionRequest) (*types.RecycleAction, error) {
	if !req.Material.Valid() {
		return nil, apierr.New(http.StatusBadRequest, "INVALID_MATERIAL", fmt.Errorf("unknown material %q", req.Material))
	}
	if req.IdempotencyKey == "" {
		return nil, apierr.New(http.StatusBadRequest, "MISSING_IDEMPOTENCY_KEY", fmt.Errorf("idempotency key required"))
	}
	if req.Image == nil {
		return nil, apierr.New(http.StatusBadRequest, "MISSING_IMAGE", fmt.Errorf("image required"))
	}

	// Replays of the same submission return the original action.
	if existing, err := ats.actionRepo.GetByIdempotencyKey(ctx, nil, req.UserID, req.IdempotencyKey); err != nil {
		return nil, err
	} else if existing != nil {
		return existing, nil
	}

	point, err := ats.pointRepo.GetByID(ctx, nil, req.PointID)
	if err != nil {
		return nil, err
	}
	if point == nil || !point.IsActive {
		return nil, apierr.New(http.StatusNotFound, "POINT_NOT_FOUND", fmt.Errorf("recycling point %s: %w", req.PointID, errs.ErrNotFound))
	}

	actionID := uuid.New()
	key := fmt.Sprintf("actions/%s/%s.jpg", req.UserID, actionID)
	imageHash, err := ats.bucket.Upload(ctx, key, req.Image)
	if err != nil {
		return nil, fmt.Errorf("upload image: %w", err)
	}

	action := &types.RecycleAction{
		ID:                   actionID,
		UserID:               req.UserID,
		RecyclingPointID:     point.ID,
		Material:             req.Material,
		Confidence:           req.Confidence,
		BoundingBoxAreaRatio: req.BoundingBoxAreaRatio,
		FrameCountDetected:   req.FrameCountDetected,
		MotionScore:          req.MotionScore,
		ImageHash:            imageHash,
		PerceptualHash:       req.PerceptualHash,
		ImageURL:             ats.bucket.PublicURL(key),
		GpsLat:               req.GpsLat,
		GpsLng:               req.GpsLng,
		GpsAccuracy:          req.GpsAccuracy,
		GpsAltitude:          req.GpsAltitude,
		IdempotencyKey:       req.IdempotencyKey,
		Status:               types.ActionStatusPending,
		CreatedAt:            time.Now(),
		UpdatedAt:            time.Now(),
	}
	if len(req.FrameSamples) > 0 {
		raw, err := json.Marshal(req.FrameSamples)
		if err != nil {
			return nil, fmt.Errorf("marshal frame samples: %w", err)
		}
		action.FrameSamples = datatypes.JSON(raw)
	}

	// An exact image replay is rejected at intake. The duplicate row is
	// still stored, with the hash it shares with the original, so the
	// fraud sweep can see the same image moving across accounts.
	dup, err := ats.actionRepo.ExistsByImageHash(ctx, nil, imageHash, actionID)
	if err != nil {
		return nil, err
	}

	err = ats.inTx(ctx, func(tx *gorm.DB) error {
		if dup {
			action.Status = types.ActionStatusRejected
			action.RejectionReason = ReasonDuplicateImage
		}
		if _, err := ats.actionRepo.Create(ctx, tx, action); err != nil {
			return err
		}
		ats.audit.Record(ctx, tx, AuditEntry{
			ActionType: types.AuditActionSubmitted,
			UserID:     &action.UserID,
			EntityType: "recycle_action",
			EntityID:   &action.ID,
			Metadata: map[string]interface{}{
				"material": action.Material,
				"point_id": action.RecyclingPointID,
			},
		})
		if dup {
			user, err := ats.userRepo.GetForUpdate(ctx, tx, action.UserID)
			if err != nil {
				return err
			}
			if user == nil {
				return apierr.New(http.StatusNotFound, "USER_NOT_FOUND", fmt.Errorf("user %s not found", action.UserID))
			}
			if _, err := ats.trust.ApplyPenalty(ctx, tx, user, &action.ID, TrustReasonDuplicate); err != nil {
				return err
			}
			ats.audit.Record(ctx, tx, AuditEntry{
				ActionType: types.AuditActionRejected,
				UserID:     &action.UserID,
				EntityType: "recycle_action",
				EntityID:   &action.ID,
				Metadata:   map[string]interface{}{"reason": ReasonDuplicateImage},
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if action.Status == types.ActionStatusRejected {
		ats.runFraudSweep(ctx, action)
		ats.publish(ctx, action)
	}
	return action, nil
}

func (ats *actionService) Process(ctx context.Context, action *types.RecycleAction) error {
	user, err := ats.userRepo.GetByID(ctx, nil, action.UserID)
	if err != nil {
		return fmt.Errorf("load user: %w", err)
	}
	if user == nil {
		return fmt.Errorf("user %s not found for action %s", action.UserID, action.ID)
	}
	point, err := ats.pointRepo.GetByID(ctx, nil, action.RecyclingPointID)
	if err != nil {
		return fmt.Errorf("load point: %w", err)
	}
	if point == nil {
		return fmt.Errorf("point %s not found for action %s", action.RecyclingPointID, action.ID)
	}

	outcome, err := ats.verification.Verify(ctx, nil, action, user, point)
	if err != nil {
		return fmt.Errorf("verify action %s: %w", action.ID, err)
	}

	var aiResultRaw []byte
	if outcome.AIResult != nil {
		if aiResultRaw, err = json.Marshal(outcome.AIResult); err != nil {
			return fmt.Errorf("marshal ai result: %w", err)
		}
	}

	// The verdict commits on its own before any side effect runs. A
	// settlement hiccup must not erase the decision and send the action
	// back through the claim loop.
	decided, err := ats.actionRepo.UpdateDecision(ctx, nil, action.ID, outcome.Status, outcome.Score, outcome.AIScore, aiResultRaw, outcome.RejectionReason)
	if err != nil {
		return err
	}
	if !decided {
		// Someone else already decided it. Nothing to do.
		return nil
	}
	action.Status = outcome.Status
	action.VerificationScore = outcome.Score
	action.AIScore = outcome.AIScore
	action.RejectionReason = outcome.RejectionReason

	if outcome.Status == types.ActionStatusVerified {
		ats.settleVerified(ctx, action, point)
	} else {
		ats.settleRejected(ctx, action, outcome)
	}

	if action.Status == types.ActionStatusRejected {
		ats.runFraudSweep(ctx, action)
	}
	ats.publish(ctx, action)
	return nil
}

// settleVerified runs the money moves for a committed VERIFIED verdict
// in their own transaction. Failures are logged, not propagated: the
// verdict stands either way, and Award replays cleanly if the action is
// ever settled again.
func (ats *actionService) settleVerified(ctx context.Context, action *types.RecycleAction, point *types.RecyclingPoint) {
	err := ats.inTx(ctx, func(tx *gorm.DB) error {
		return ats.settleVerifiedTx(ctx, tx, action, point)
	})
	if err != nil {
		ats.log.Error("verified settlement failed", "action_id", action.ID, "error", err)
	}
}

func (ats *actionService) settleVerifiedTx(ctx context.Context, tx *gorm.DB, action *types.RecycleAction, point *types.RecyclingPoint) error {
	user, err := ats.userRepo.GetForUpdate(ctx, tx, action.UserID)
	if err != nil {
		return err
	}
	if user == nil {
		return fmt.Errorf("user %s disappeared", action.UserID)
	}

	newScore, increased, err := ats.trust.ApplyIncrease(ctx, tx, user, action.ID)
	if err != nil {
		return err
	}
	if increased {
		ats.audit.Record(ctx, tx, AuditEntry{
			ActionType: types.AuditTrustChanged,
			UserID:     &user.ID,
			EntityType: "recycle_action",
			EntityID:   &action.ID,
			Metadata:   map[string]interface{}{"new_score": newScore, "reason": TrustReasonVerified},
		})
	}

	// The payout reads the streak the user walked in with; the streak
	// advance lands after.
	reward, gate, err := ats.rewards.Award(ctx, tx, action, user, point, ats.trust.Multiplier(user.TrustScore))
	if err != nil {
		return err
	}
	if reward != nil {
		action.PointsAwarded = &reward.FinalPoints
	}

	streak := ats.rewards.NextStreak(user, action.CreatedAt)
	if err := ats.userRepo.UpdateStreak(ctx, tx, user.ID, streak, action.CreatedAt); err != nil {
		return err
	}
	user.StreakDays = streak

	ats.audit.Record(ctx, tx, AuditEntry{
		ActionType: types.AuditActionVerified,
		UserID:     &user.ID,
		EntityType: "recycle_action",
		EntityID:   &action.ID,
		Metadata:   map[string]interface{}{"score": action.VerificationScore},
	})
	if reward != nil {
		ats.audit.Record(ctx, tx, AuditEntry{
			ActionType: types.AuditRewardAwarded,
			UserID:     &user.ID,
			EntityType: "reward",
			EntityID:   &reward.ID,
			Metadata: map[string]interface{}{
				"final_points": reward.FinalPoints,
				"gate":         gate,
			},
		})
	} else {
		ats.audit.Record(ctx, tx, AuditEntry{
			ActionType: types.AuditRewardAwarded,
			UserID:     &user.ID,
			EntityType: "recycle_action",
			EntityID:   &action.ID,
			Metadata:   map[string]interface{}{"final_points": 0, "gate": gate},
		})
	}
	return nil
}

// settleRejected applies the trust penalty for a committed REJECTED
// verdict. Same error boundary as settleVerified.
func (ats *actionService) settleRejected(ctx context.Context, action *types.RecycleAction, outcome *VerificationOutcome) {
	reason := outcome.PenaltyReason
	if reason == "" {
		reason = TrustReasonRejected
	}
	err := ats.inTx(ctx, func(tx *gorm.DB) error {
		user, err := ats.userRepo.GetForUpdate(ctx, tx, action.UserID)
		if err != nil {
			return err
		}
		if user == nil {
			return fmt.Errorf("user %s disappeared", action.UserID)
		}
		newScore, err := ats.trust.ApplyPenalty(ctx, tx, user, &action.ID, reason)
		if err != nil {
			return err
		}
		ats.audit.Record(ctx, tx, AuditEntry{
			ActionType: types.AuditActionRejected,
			UserID:     &user.ID,
			EntityType: "recycle_action",
			EntityID:   &action.ID,
			Metadata: map[string]interface{}{
				"reason":    outcome.RejectionReason,
				"new_score": newScore,
			},
		})
		return nil
	})
	if err != nil {
		ats.log.Error("rejected settlement failed", "action_id", action.ID, "error", err)
	}
}

// runFraudSweep runs the cross-action heuristics after a rejection and
// escalates to FLAGGED when any of them fire. Sweep failures are
// logged, not propagated: the rejection already stands.
func (ats *actionService) runFraudSweep(ctx context.Context, action *types.RecycleAction) {
	signals, err := ats.fraud.Check(ctx, action)
	if err != nil {
		ats.log.Error("fraud sweep failed", "action_id", action.ID, "error", err)
		return
	}
	if len(signals) == 0 {
		return
	}

	err = ats.inTx(ctx, func(tx *gorm.DB) error {
		user, err := ats.userRepo.GetForUpdate(ctx, tx, action.UserID)
		if err != nil {
			return err
		}
		if user == nil {
			return fmt.Errorf("user %s disappeared", action.UserID)
		}
		if err := ats.actionRepo.MarkFlagged(ctx, tx, action.ID, ReasonFraudSuspected); err != nil {
			return err
		}
		if _, err := ats.trust.ApplyPenalty(ctx, tx, user, &action.ID, TrustReasonSuspicious); err != nil {
			return err
		}
		ats.audit.Record(ctx, tx, AuditEntry{
			ActionType: types.AuditActionFlagged,
			UserID:     &user.ID,
			EntityType: "recycle_action",
			EntityID:   &action.ID,
			Metadata:   map[string]interface{}{"signals": signals},
		})
		return nil
	})
	if err != nil {
		ats.log.Error("fraud escalation failed", "action_id", action.ID, "error", err)
		return
	}
	action.Status = types.ActionStatusFlagged
}

func (ats *actionService) publish(ctx context.Context, action *types.RecycleAction) {
	if ats.events == nil {
		return
	}
	event := redisclient.ActionEvent{
		ActionID:        action.ID,
		UserID:          action.UserID,
		Status:          action.Status,
		Score:           action.VerificationScore,
		PointsAwarded:   action.PointsAwarded,
		RejectionReason: action.RejectionReason,
		OccurredAt:      time.Now(),
	}
	if err := ats.events.Publish(ctx, event); err != nil {
		ats.log.Warn("failed to publish action event", "action_id", action.ID, "error", err)
	}
}

func (ats *actionService) Get(ctx context.Context, userID uuid.UUID, isAdmin bool, actionID uuid.UUID) (*types.RecycleAction, error) {
	action, err := ats.actionRepo.GetByID(ctx, nil, actionID)
	if err != nil {
		return nil, err
	}
	if action == nil {
		return nil, apierr.New(http.StatusNotFound, "ACTION_NOT_FOUND", fmt.Errorf("action %s: %w", actionID, errs.ErrNotFound))
	}
	if !isAdmin && action.UserID != userID {
		return nil, apierr.New(http.StatusForbidden, "FORBIDDEN", fmt.Errorf("action %s does not belong to user %s", actionID, userID))
	}
	return action, nil
}

func (ats *actionService) List(ctx context.Context, userID uuid.UUID, filter repos.ActionListFilter) ([]*types.RecycleAction, int64, error) {
	return ats.actionRepo.ListByUser(ctx, nil, userID, filter)
}
