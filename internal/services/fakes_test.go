package services

import (
	"context"
	"math"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/greenloop/recircle-backend/internal/pkg/logger"
	"github.com/greenloop/recircle-backend/internal/repos"
	"github.com/greenloop/recircle-backend/internal/types"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func testLogger(tb interface{ Fatalf(string, ...interface{}) }) *logger.Logger {
	log, err := logger.New("test")
	if err != nil {
		tb.Fatalf("init logger: %v", err)
	}
	return log
}

// fakeActionRepo lets each test stub only the queries it touches;
// everything else returns zero values.
type fakeActionRepo struct {
	createFn                  func(action *types.RecycleAction) (*types.RecycleAction, error)
	getByIDFn                 func(id uuid.UUID) (*types.RecycleAction, error)
	getByIdempotencyKeyFn     func(userID uuid.UUID, key string) (*types.RecycleAction, error)
	existsByImageHashFn       func(hash string, excludeID uuid.UUID) (bool, error)
	distinctUsersByHashFn     func(hash string) (int64, error)
	recentByUserFn            func(userID uuid.UUID, limit int) ([]*types.RecycleAction, error)
	lastByUserFn              func(userID uuid.UUID) (*types.RecycleAction, error)
	lastByUserAtPointFn       func(userID, pointID uuid.UUID) (*types.RecycleAction, error)
	countByUserSinceFn        func(userID uuid.UUID, since time.Time) (int64, error)
	distinctPointsFn          func(userID uuid.UUID, since time.Time) (int64, error)
	verifiedMaterialFn        func(userID uuid.UUID, material types.Material, since time.Time) (int64, error)
	verifiedByUserFn          func(userID uuid.UUID, since time.Time) (int64, error)
	distinctUsersNearFn       func(lat, lng, tolerance float64, since time.Time) (int64, error)
	claimNextPendingFn        func() (*types.RecycleAction, error)
	updateDecisionFn          func(actionID uuid.UUID, status string) (bool, error)
	markFlaggedFn             func(actionID uuid.UUID, reason string) error
	updatePointsAwardedFn     func(actionID uuid.UUID, points int) error
	listByUserFn              func(userID uuid.UUID, filter repos.ActionListFilter) ([]*types.RecycleAction, int64, error)
}

func (f *fakeActionRepo) Create(ctx context.Context, tx *gorm.DB, action *types.RecycleAction) (*types.RecycleAction, error) {
	if f.createFn != nil {
		return f.createFn(action)
	}
	return action, nil
}

func (f *fakeActionRepo) GetByID(ctx context.Context, tx *gorm.DB, actionID uuid.UUID) (*types.RecycleAction, error) {
	if f.getByIDFn != nil {
		return f.getByIDFn(actionID)
	}
	return nil, nil
}

func (f *fakeActionRepo) GetByIdempotencyKey(ctx context.Context, tx *gorm.DB, userID uuid.UUID, key string) (*types.RecycleAction, error) {
	if f.getByIdempotencyKeyFn != nil {
		return f.getByIdempotencyKeyFn(userID, key)
	}
	return nil, nil
}

func (f *fakeActionRepo) ListByUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID, filter repos.ActionListFilter) ([]*types.RecycleAction, int64, error) {
	if f.listByUserFn != nil {
		return f.listByUserFn(userID, filter)
	}
	return nil, 0, nil
}

func (f *fakeActionRepo) ExistsByImageHash(ctx context.Context, tx *gorm.DB, imageHash string, excludeID uuid.UUID) (bool, error) {
	if f.existsByImageHashFn != nil {
		return f.existsByImageHashFn(imageHash, excludeID)
	}
	return false, nil
}

func (f *fakeActionRepo) CountDistinctUsersByImageHash(ctx context.Context, tx *gorm.DB, imageHash string) (int64, error) {
	if f.distinctUsersByHashFn != nil {
		return f.distinctUsersByHashFn(imageHash)
	}
	return 0, nil
}

func (f *fakeActionRepo) GetRecentByUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID, excludeID uuid.UUID, limit int) ([]*types.RecycleAction, error) {
	if f.recentByUserFn != nil {
		return f.recentByUserFn(userID, limit)
	}
	return nil, nil
}

func (f *fakeActionRepo) GetLastByUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID, excludeID uuid.UUID) (*types.RecycleAction, error) {
	if f.lastByUserFn != nil {
		return f.lastByUserFn(userID)
	}
	return nil, nil
}

func (f *fakeActionRepo) GetLastByUserAtPoint(ctx context.Context, tx *gorm.DB, userID, pointID uuid.UUID, excludeID uuid.UUID) (*types.RecycleAction, error) {
	if f.lastByUserAtPointFn != nil {
		return f.lastByUserAtPointFn(userID, pointID)
	}
	return nil, nil
}

func (f *fakeActionRepo) CountByUserSince(ctx context.Context, tx *gorm.DB, userID uuid.UUID, since time.Time, excludeID uuid.UUID) (int64, error) {
	if f.countByUserSinceFn != nil {
		return f.countByUserSinceFn(userID, since)
	}
	return 0, nil
}

func (f *fakeActionRepo) CountDistinctPointsByUserSince(ctx context.Context, tx *gorm.DB, userID uuid.UUID, since time.Time) (int64, error) {
	if f.distinctPointsFn != nil {
		return f.distinctPointsFn(userID, since)
	}
	return 0, nil
}

func (f *fakeActionRepo) CountVerifiedMaterialByUserSince(ctx context.Context, tx *gorm.DB, userID uuid.UUID, material types.Material, since time.Time) (int64, error) {
	if f.verifiedMaterialFn != nil {
		return f.verifiedMaterialFn(userID, material, since)
	}
	return 0, nil
}

func (f *fakeActionRepo) CountVerifiedByUserSince(ctx context.Context, tx *gorm.DB, userID uuid.UUID, since time.Time) (int64, error) {
	if f.verifiedByUserFn != nil {
		return f.verifiedByUserFn(userID, since)
	}
	return 0, nil
}

func (f *fakeActionRepo) CountDistinctUsersNearSince(ctx context.Context, tx *gorm.DB, lat, lng, tolerance float64, since time.Time) (int64, error) {
	if f.distinctUsersNearFn != nil {
		return f.distinctUsersNearFn(lat, lng, tolerance, since)
	}
	return 0, nil
}

func (f *fakeActionRepo) ClaimNextPending(ctx context.Context, tx *gorm.DB, staleCutoff time.Duration) (*types.RecycleAction, error) {
	if f.claimNextPendingFn != nil {
		return f.claimNextPendingFn()
	}
	return nil, nil
}

func (f *fakeActionRepo) UpdateDecision(ctx context.Context, tx *gorm.DB, actionID uuid.UUID, status string, score *float64, aiScore *float64, aiResult []byte, rejectionReason string) (bool, error) {
	if f.updateDecisionFn != nil {
		return f.updateDecisionFn(actionID, status)
	}
	return true, nil
}

func (f *fakeActionRepo) MarkFlagged(ctx context.Context, tx *gorm.DB, actionID uuid.UUID, reason string) error {
	if f.markFlaggedFn != nil {
		return f.markFlaggedFn(actionID, reason)
	}
	return nil
}

func (f *fakeActionRepo) UpdatePointsAwarded(ctx context.Context, tx *gorm.DB, actionID uuid.UUID, points int) error {
	if f.updatePointsAwardedFn != nil {
		return f.updatePointsAwardedFn(actionID, points)
	}
	return nil
}

type fakeUserRepo struct {
	users         map[uuid.UUID]*types.User
	trustUpdates  []float64
	streakUpdates []int
}

func newFakeUserRepo(users ...*types.User) *fakeUserRepo {
	m := make(map[uuid.UUID]*types.User, len(users))
	for _, u := range users {
		m[u.ID] = u
	}
	return &fakeUserRepo{users: m}
}

func (f *fakeUserRepo) Create(ctx context.Context, tx *gorm.DB, users []*types.User) ([]*types.User, error) {
	for _, u := range users {
		if u.ID == uuid.Nil {
			u.ID = uuid.New()
		}
		f.users[u.ID] = u
	}
	return users, nil
}

func (f *fakeUserRepo) GetByID(ctx context.Context, tx *gorm.DB, userID uuid.UUID) (*types.User, error) {
	return f.users[userID], nil
}

func (f *fakeUserRepo) GetByEmail(ctx context.Context, tx *gorm.DB, email string) (*types.User, error) {
	for _, u := range f.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, nil
}

func (f *fakeUserRepo) EmailExists(ctx context.Context, tx *gorm.DB, email string) (bool, error) {
	u, _ := f.GetByEmail(ctx, tx, email)
	return u != nil, nil
}

func (f *fakeUserRepo) GetForUpdate(ctx context.Context, tx *gorm.DB, userID uuid.UUID) (*types.User, error) {
	return f.users[userID], nil
}

func (f *fakeUserRepo) UpdateTrustScore(ctx context.Context, tx *gorm.DB, userID uuid.UUID, score float64) error {
	if u, ok := f.users[userID]; ok {
		u.TrustScore = score
	}
	f.trustUpdates = append(f.trustUpdates, score)
	return nil
}

func (f *fakeUserRepo) UpdateStreak(ctx context.Context, tx *gorm.DB, userID uuid.UUID, streakDays int, lastActionAt time.Time) error {
	if u, ok := f.users[userID]; ok {
		u.StreakDays = streakDays
		u.LastActionAt = &lastActionAt
	}
	f.streakUpdates = append(f.streakUpdates, streakDays)
	return nil
}

type fakeTrustHistoryRepo struct {
	entries        []*types.TrustHistory
	lastIncreaseFn func(userID uuid.UUID) (*types.TrustHistory, error)
	violationsFn   func(userID uuid.UUID, since time.Time) ([]*types.TrustHistory, error)
}

func (f *fakeTrustHistoryRepo) Create(ctx context.Context, tx *gorm.DB, entry *types.TrustHistory) (*types.TrustHistory, error) {
	entry.CreatedAt = time.Now()
	f.entries = append(f.entries, entry)
	return entry, nil
}

func (f *fakeTrustHistoryRepo) GetLastIncrease(ctx context.Context, tx *gorm.DB, userID uuid.UUID) (*types.TrustHistory, error) {
	if f.lastIncreaseFn != nil {
		return f.lastIncreaseFn(userID)
	}
	return nil, nil
}

func (f *fakeTrustHistoryRepo) GetViolationsSince(ctx context.Context, tx *gorm.DB, userID uuid.UUID, since time.Time) ([]*types.TrustHistory, error) {
	if f.violationsFn != nil {
		return f.violationsFn(userID, since)
	}
	return nil, nil
}

func (f *fakeTrustHistoryRepo) ListByUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID, limit, offset int) ([]*types.TrustHistory, error) {
	return f.entries, nil
}

type fakeRewardRepo struct {
	created       []*types.Reward
	sumByUserFn   func(userID uuid.UUID, since time.Time) (int64, error)
	sumAtPointFn  func(userID, pointID uuid.UUID, since time.Time) (int64, error)
	getByActionFn func(actionID uuid.UUID) (*types.Reward, error)
}

func (f *fakeRewardRepo) Create(ctx context.Context, tx *gorm.DB, reward *types.Reward) (*types.Reward, error) {
	if reward.ID == uuid.Nil {
		reward.ID = uuid.New()
	}
	f.created = append(f.created, reward)
	return reward, nil
}

func (f *fakeRewardRepo) GetByActionID(ctx context.Context, tx *gorm.DB, actionID uuid.UUID) (*types.Reward, error) {
	if f.getByActionFn != nil {
		return f.getByActionFn(actionID)
	}
	return nil, nil
}

func (f *fakeRewardRepo) SumFinalPointsByUserSince(ctx context.Context, tx *gorm.DB, userID uuid.UUID, since time.Time) (int64, error) {
	if f.sumByUserFn != nil {
		return f.sumByUserFn(userID, since)
	}
	return 0, nil
}

func (f *fakeRewardRepo) SumFinalPointsByUserAtPointSince(ctx context.Context, tx *gorm.DB, userID, pointID uuid.UUID, since time.Time) (int64, error) {
	if f.sumAtPointFn != nil {
		return f.sumAtPointFn(userID, pointID, since)
	}
	return 0, nil
}

func (f *fakeRewardRepo) ListByUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID, limit, offset int) ([]*types.Reward, error) {
	return f.created, nil
}

// fakeProvider is a scripted AI provider for chain tests.
type fakeProvider struct {
	name   string
	result *types.AIResult
	err    error
	calls  int
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Classify(ctx context.Context, req ClassificationRequest) (*types.AIResult, error) {
	f.calls++
	return f.result, f.err
}
