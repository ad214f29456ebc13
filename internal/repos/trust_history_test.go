package repos

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/greenloop/recircle-backend/internal/repos/testutil"
	"github.com/greenloop/recircle-backend/internal/types"
)

func TestTrustHistoryRepo(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)

	ctx := context.Background()
	repo := NewTrustHistoryRepo(db, testutil.Logger(t))

	now := time.Now().UTC()
	userID := uuid.New()

	entries := []*types.TrustHistory{
		{UserID: userID, PreviousScore: 0.70, NewScore: 0.71, Delta: 0.01, Reason: "verified_action", CreatedAt: now.Add(-40 * 24 * time.Hour)},
		{UserID: userID, PreviousScore: 0.71, NewScore: 0.61, Delta: -0.10, Reason: "duplicate_image", CreatedAt: now.Add(-35 * 24 * time.Hour)},
		{UserID: userID, PreviousScore: 0.61, NewScore: 0.62, Delta: 0.01, Reason: "verified_action", CreatedAt: now.Add(-2 * time.Hour)},
		{UserID: userID, PreviousScore: 0.62, NewScore: 0.57, Delta: -0.05, Reason: "rejected_action", CreatedAt: now.Add(-1 * time.Hour)},
	}
	for _, e := range entries {
		if _, err := repo.Create(ctx, tx, e); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}

	last, err := repo.GetLastIncrease(ctx, tx, userID)
	if err != nil {
		t.Fatalf("GetLastIncrease: %v", err)
	}
	if last == nil || last.Reason != "verified_action" || last.Delta != 0.01 {
		t.Fatalf("GetLastIncrease: got %+v", last)
	}
	if !last.CreatedAt.After(now.Add(-3 * time.Hour)) {
		t.Fatalf("GetLastIncrease: expected the recent increase, got %v", last.CreatedAt)
	}

	if got, err := repo.GetLastIncrease(ctx, tx, uuid.New()); err != nil || got != nil {
		t.Fatalf("GetLastIncrease unknown user: err=%v got=%v", err, got)
	}

	violations, err := repo.GetViolationsSince(ctx, tx, userID, now.Add(-30*24*time.Hour))
	if err != nil {
		t.Fatalf("GetViolationsSince: %v", err)
	}
	if len(violations) != 1 || violations[0].Reason != "rejected_action" {
		t.Fatalf("GetViolationsSince: got %d entries", len(violations))
	}

	all, err := repo.ListByUser(ctx, tx, userID, 10, 0)
	if err != nil {
		t.Fatalf("ListByUser: %v", err)
	}
	if len(all) != 4 || all[0].Reason != "rejected_action" {
		t.Fatalf("ListByUser: len=%d first=%q", len(all), all[0].Reason)
	}
}

func TestRewardRepo(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)

	ctx := context.Background()
	repo := NewRewardRepo(db, testutil.Logger(t))
	actionRepo := NewRecycleActionRepo(db, testutil.Logger(t))

	now := time.Now().UTC()
	userID := uuid.New()
	pointID := uuid.New()

	action := seedAction(userID, pointID, now.Add(-30*time.Minute))
	if _, err := actionRepo.Create(ctx, tx, action); err != nil {
		t.Fatalf("seed action: %v", err)
	}

	reward := &types.Reward{
		UserID:             userID,
		ActionID:           action.ID,
		BasePoints:         5,
		LocationMultiplier: 1.5,
		StreakMultiplier:   1.1,
		TrustMultiplier:    1.0,
		FinalPoints:        8,
		CreatedAt:          now.Add(-30 * time.Minute),
	}
	if _, err := repo.Create(ctx, tx, reward); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := repo.GetByActionID(ctx, tx, action.ID)
	if err != nil || got == nil || got.FinalPoints != 8 {
		t.Fatalf("GetByActionID: err=%v got=%+v", err, got)
	}
	if got, err := repo.GetByActionID(ctx, tx, uuid.New()); err != nil || got != nil {
		t.Fatalf("GetByActionID missing: err=%v got=%v", err, got)
	}

	sum, err := repo.SumFinalPointsByUserSince(ctx, tx, userID, now.Add(-time.Hour))
	if err != nil || sum != 8 {
		t.Fatalf("SumFinalPointsByUserSince: sum=%d err=%v", sum, err)
	}
	sum, err = repo.SumFinalPointsByUserSince(ctx, tx, userID, now)
	if err != nil || sum != 0 {
		t.Fatalf("SumFinalPointsByUserSince empty window: sum=%d err=%v", sum, err)
	}

	sum, err = repo.SumFinalPointsByUserAtPointSince(ctx, tx, userID, pointID, now.Add(-time.Hour))
	if err != nil || sum != 8 {
		t.Fatalf("SumFinalPointsByUserAtPointSince: sum=%d err=%v", sum, err)
	}
}
