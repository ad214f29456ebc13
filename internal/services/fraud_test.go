package services

import (
	"context"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/greenloop/recircle-backend/internal/types"
)

func fraudAction() *types.RecycleAction {
	return &types.RecycleAction{
		ID:        uuid.New(),
		UserID:    uuid.New(),
		ImageHash: "hash-x",
		GpsLat:    40.0,
		GpsLng:    -73.9,
	}
}

func TestFraudCheckCleanAction(t *testing.T) {
	fs := NewFraudService(&fakeActionRepo{}, &fakeRewardRepo{}, testLogger(t))
	signals, err := fs.Check(context.Background(), fraudAction())
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if len(signals) != 0 {
		t.Fatalf("expected no signals, got %v", signals)
	}
}

func TestFraudCheckSignals(t *testing.T) {
	log := testLogger(t)

	cases := []struct {
		name    string
		actions *fakeActionRepo
		rewards *fakeRewardRepo
		want    string
	}{
		{
			name: "image shared across accounts",
			actions: &fakeActionRepo{distinctUsersByHashFn: func(string) (int64, error) {
				return 2, nil
			}},
			rewards: &fakeRewardRepo{},
			want:    SignalSharedImage,
		},
		{
			name: "users clustered at one spot",
			actions: &fakeActionRepo{distinctUsersNearFn: func(float64, float64, float64, time.Time) (int64, error) {
				return 3, nil
			}},
			rewards: &fakeRewardRepo{},
			want:    SignalClusteredUsers,
		},
		{
			name: "submission burst",
			actions: &fakeActionRepo{countByUserSinceFn: func(uuid.UUID, time.Time) (int64, error) {
				return 6, nil
			}},
			rewards: &fakeRewardRepo{},
			want:    SignalSubmissionBurst,
		},
		{
			name: "point hopping",
			actions: &fakeActionRepo{distinctPointsFn: func(uuid.UUID, time.Time) (int64, error) {
				return 4, nil
			}},
			rewards: &fakeRewardRepo{},
			want:    SignalPointHopping,
		},
		{
			name:    "points farming",
			actions: &fakeActionRepo{},
			rewards: &fakeRewardRepo{sumByUserFn: func(uuid.UUID, time.Time) (int64, error) {
				return 81, nil
			}},
			want: SignalPointFarming,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fs := NewFraudService(tc.actions, tc.rewards, log)
			signals, err := fs.Check(context.Background(), fraudAction())
			if err != nil {
				t.Fatalf("Check: %v", err)
			}
			if len(signals) != 1 || signals[0] != tc.want {
				t.Fatalf("expected [%s], got %v", tc.want, signals)
			}
		})
	}
}

func TestFraudCheckMultipleSignals(t *testing.T) {
	actions := &fakeActionRepo{
		distinctUsersByHashFn: func(string) (int64, error) { return 5, nil },
		countByUserSinceFn:    func(uuid.UUID, time.Time) (int64, error) { return 20, nil },
	}
	fs := NewFraudService(actions, &fakeRewardRepo{}, testLogger(t))
	signals, err := fs.Check(context.Background(), fraudAction())
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	sort.Strings(signals)
	want := []string{SignalSharedImage, SignalSubmissionBurst}
	sort.Strings(want)
	if len(signals) != 2 || signals[0] != want[0] || signals[1] != want[1] {
		t.Fatalf("expected %v, got %v", want, signals)
	}
}

func TestFraudCheckPropagatesErrors(t *testing.T) {
	actions := &fakeActionRepo{distinctUsersByHashFn: func(string) (int64, error) {
		return 0, fmt.Errorf("db down")
	}}
	fs := NewFraudService(actions, &fakeRewardRepo{}, testLogger(t))
	if _, err := fs.Check(context.Background(), fraudAction()); err == nil {
		t.Fatalf("expected error")
	}
}

func TestFraudThresholdBoundaries(t *testing.T) {
	log := testLogger(t)

	// Exactly at the limit is clean for the strict-greater heuristics.
	actions := &fakeActionRepo{
		distinctUsersByHashFn: func(string) (int64, error) { return 1, nil },
		countByUserSinceFn:    func(uuid.UUID, time.Time) (int64, error) { return 5, nil },
		distinctPointsFn:      func(uuid.UUID, time.Time) (int64, error) { return 3, nil },
		distinctUsersNearFn:   func(float64, float64, float64, time.Time) (int64, error) { return 2, nil },
	}
	rewards := &fakeRewardRepo{sumByUserFn: func(uuid.UUID, time.Time) (int64, error) { return 80, nil }}
	fs := NewFraudService(actions, rewards, log)
	signals, err := fs.Check(context.Background(), fraudAction())
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if len(signals) != 0 {
		t.Fatalf("boundary values must not trip, got %v", signals)
	}
}
