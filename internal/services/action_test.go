package services

import (
	"context"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/greenloop/recircle-backend/internal/types"
)

type fakePointRepo struct {
	points map[uuid.UUID]*types.RecyclingPoint
}

func (f *fakePointRepo) Create(ctx context.Context, tx *gorm.DB, point *types.RecyclingPoint) (*types.RecyclingPoint, error) {
	f.points[point.ID] = point
	return point, nil
}

func (f *fakePointRepo) GetByID(ctx context.Context, tx *gorm.DB, pointID uuid.UUID) (*types.RecyclingPoint, error) {
	return f.points[pointID], nil
}

func (f *fakePointRepo) ListActive(ctx context.Context, tx *gorm.DB) ([]*types.RecyclingPoint, error) {
	return nil, nil
}

func (f *fakePointRepo) ListNear(ctx context.Context, tx *gorm.DB, lat, lng, boxDegrees float64) ([]*types.RecyclingPoint, error) {
	return nil, nil
}

func (f *fakePointRepo) Update(ctx context.Context, tx *gorm.DB, point *types.RecyclingPoint) error {
	return nil
}

func (f *fakePointRepo) SetActive(ctx context.Context, tx *gorm.DB, pointID uuid.UUID, active bool) error {
	return nil
}

type fakeAuditLogRepo struct {
	rows []*types.AuditLog
}

func (f *fakeAuditLogRepo) Create(ctx context.Context, tx *gorm.DB, entry *types.AuditLog) (*types.AuditLog, error) {
	f.rows = append(f.rows, entry)
	return entry, nil
}

func (f *fakeAuditLogRepo) ListByUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID, limit, offset int) ([]*types.AuditLog, error) {
	return f.rows, nil
}

func (f *fakeAuditLogRepo) ListByEntity(ctx context.Context, tx *gorm.DB, entityType string, entityID uuid.UUID) ([]*types.AuditLog, error) {
	return f.rows, nil
}

func (f *fakeAuditLogRepo) DeleteOlderThan(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error) {
	return 0, nil
}

type fakeBucket struct {
	hash string
}

func (f *fakeBucket) Upload(ctx context.Context, key string, file io.Reader) (string, error) {
	return f.hash, nil
}

func (f *fakeBucket) Delete(ctx context.Context, key string) error { return nil }

func (f *fakeBucket) PublicURL(key string) string { return "https://cdn.test/" + key }

type fakeVerification struct {
	outcome *VerificationOutcome
	err     error
}

func (f *fakeVerification) Verify(ctx context.Context, tx *gorm.DB, action *types.RecycleAction, user *types.User, point *types.RecyclingPoint) (*VerificationOutcome, error) {
	return f.outcome, f.err
}

type actionFixture struct {
	svc     ActionService
	users   *fakeUserRepo
	actions *fakeActionRepo
	rewards *fakeRewardRepo
	history *fakeTrustHistoryRepo
	user    *types.User
	point   *types.RecyclingPoint
}

func newActionFixture(t *testing.T, verification VerificationService, actions *fakeActionRepo, rewards *fakeRewardRepo) *actionFixture {
	t.Helper()
	log := testLogger(t)

	yesterday := time.Now().Add(-24 * time.Hour)
	user := &types.User{ID: uuid.New(), TrustScore: 0.9, StreakDays: 4, LastActionAt: &yesterday}
	point := &types.RecyclingPoint{ID: uuid.New(), RewardMultiplier: 1.0, IsActive: true}

	users := newFakeUserRepo(user)
	points := &fakePointRepo{points: map[uuid.UUID]*types.RecyclingPoint{point.ID: point}}
	history := &fakeTrustHistoryRepo{}

	trust := NewTrustService(users, history, log)
	rewardSvc := NewRewardService(DefaultRewardRules(), rewards, actions, log)
	fraud := NewFraudService(actions, rewards, log)
	audit := NewAuditService(&fakeAuditLogRepo{}, log)

	svc := NewActionService(nil, users, points, actions, &fakeBucket{hash: "sha256-img"}, verification, trust, fraud, rewardSvc, audit, nil, log)
	return &actionFixture{
		svc:     svc,
		users:   users,
		actions: actions,
		rewards: rewards,
		history: history,
		user:    user,
		point:   point,
	}
}

func pendingAction(userID, pointID uuid.UUID) *types.RecycleAction {
	return &types.RecycleAction{
		ID:               uuid.New(),
		UserID:           userID,
		RecyclingPointID: pointID,
		Material:         types.MaterialGlass,
		ImageHash:        "sha256-img",
		Status:           types.ActionStatusPending,
		CreatedAt:        time.Now(),
	}
}

func verifiedOutcome() *VerificationOutcome {
	score := 0.95
	return &VerificationOutcome{Status: types.ActionStatusVerified, Score: &score}
}

func TestProcessAwardsBeforeStreakAdvance(t *testing.T) {
	// The payout multiplier comes from the streak the user carried into
	// the action; the streak only advances afterwards.
	fx := newActionFixture(t, &fakeVerification{outcome: verifiedOutcome()}, &fakeActionRepo{}, &fakeRewardRepo{})
	action := pendingAction(fx.user.ID, fx.point.ID)

	if err := fx.svc.Process(context.Background(), action); err != nil {
		t.Fatalf("Process: %v", err)
	}

	if len(fx.rewards.created) != 1 {
		t.Fatalf("expected one reward row, got %d", len(fx.rewards.created))
	}
	reward := fx.rewards.created[0]
	// glass base 10, streak 4 days -> 1.2: floor(10 * 1.0 * 1.2 * 1.0)
	if !almostEqual(reward.StreakMultiplier, 1.2) {
		t.Fatalf("payout used post-advance streak: multiplier %v", reward.StreakMultiplier)
	}
	if reward.FinalPoints != 12 {
		t.Fatalf("expected 12 points, got %d", reward.FinalPoints)
	}
	if len(fx.users.streakUpdates) != 1 || fx.users.streakUpdates[0] != 5 {
		t.Fatalf("expected streak advanced to 5 after payout, got %v", fx.users.streakUpdates)
	}
	if action.PointsAwarded == nil || *action.PointsAwarded != 12 {
		t.Fatalf("expected points on action, got %v", action.PointsAwarded)
	}
}

func TestProcessVerdictSurvivesSettlementFailure(t *testing.T) {
	// Once the decision is written, a failing reward query must not
	// bubble up and send the action back through the claim loop.
	var decidedStatus string
	actions := &fakeActionRepo{updateDecisionFn: func(actionID uuid.UUID, status string) (bool, error) {
		decidedStatus = status
		return true, nil
	}}
	rewards := &fakeRewardRepo{sumByUserFn: func(uuid.UUID, time.Time) (int64, error) {
		return 0, fmt.Errorf("connection reset")
	}}
	fx := newActionFixture(t, &fakeVerification{outcome: verifiedOutcome()}, actions, rewards)
	action := pendingAction(fx.user.ID, fx.point.ID)

	if err := fx.svc.Process(context.Background(), action); err != nil {
		t.Fatalf("Process must not surface settlement errors, got: %v", err)
	}
	if decidedStatus != types.ActionStatusVerified {
		t.Fatalf("decision not recorded, got %q", decidedStatus)
	}
	if len(rewards.created) != 0 {
		t.Fatalf("failed settlement must not leave a reward row")
	}
}

func TestProcessSettlementReplayKeepsStoredPoints(t *testing.T) {
	stored := &types.Reward{ID: uuid.New(), FinalPoints: 18}
	rewards := &fakeRewardRepo{getByActionFn: func(actionID uuid.UUID) (*types.Reward, error) {
		return stored, nil
	}}
	fx := newActionFixture(t, &fakeVerification{outcome: verifiedOutcome()}, &fakeActionRepo{}, rewards)
	action := pendingAction(fx.user.ID, fx.point.ID)

	if err := fx.svc.Process(context.Background(), action); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if len(rewards.created) != 0 {
		t.Fatalf("replay must not pay twice")
	}
	if action.PointsAwarded == nil || *action.PointsAwarded != 18 {
		t.Fatalf("expected stored points 18, got %v", action.PointsAwarded)
	}
}

func TestSubmitDuplicateKeepsImageHash(t *testing.T) {
	// The rejected duplicate stores the hash it shares with the
	// original, so cross-user hash queries see both rows.
	var created *types.RecycleAction
	actions := &fakeActionRepo{
		existsByImageHashFn: func(hash string, excludeID uuid.UUID) (bool, error) { return true, nil },
		createFn: func(action *types.RecycleAction) (*types.RecycleAction, error) {
			created = action
			return action, nil
		},
	}
	fx := newActionFixture(t, &fakeVerification{}, actions, &fakeRewardRepo{})

	action, err := fx.svc.Submit(context.Background(), SubmitActionRequest{
		UserID:         fx.user.ID,
		PointID:        fx.point.ID,
		Material:       types.MaterialGlass,
		IdempotencyKey: "idem-1",
		Image:          strings.NewReader("jpeg bytes"),
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if action.Status != types.ActionStatusRejected || action.RejectionReason != ReasonDuplicateImage {
		t.Fatalf("expected duplicate rejection, got %s (%s)", action.Status, action.RejectionReason)
	}
	if created == nil || created.ImageHash != "sha256-img" {
		t.Fatalf("duplicate row must keep the shared image hash, got %+v", created)
	}
	if len(fx.history.entries) != 1 || fx.history.entries[0].Reason != TrustReasonDuplicate {
		t.Fatalf("expected duplicate trust penalty, got %+v", fx.history.entries)
	}
}
