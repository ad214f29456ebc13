package services

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	errs "github.com/greenloop/recircle-backend/internal/pkg/errors"
	"github.com/greenloop/recircle-backend/internal/pkg/logger"
	"github.com/greenloop/recircle-backend/internal/platform/apierr"
	"github.com/greenloop/recircle-backend/internal/repos"
	"github.com/greenloop/recircle-backend/internal/types"
)

// UserProfile is the aggregate the profile endpoint returns.
type UserProfile struct {
	User         *types.User           `json:"user"`
	PointsToday  int64                 `json:"points_today"`
	TrustHistory []*types.TrustHistory `json:"trust_history"`
	Rewards      []*types.Reward       `json:"rewards"`
}

type UserService interface {
	GetProfile(ctx context.Context, userID uuid.UUID) (*UserProfile, error)
	GetTrustHistory(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*types.TrustHistory, error)
	GetRewards(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*types.Reward, error)
}

type userService struct {
	log         *logger.Logger
	userRepo    repos.UserRepo
	historyRepo repos.TrustHistoryRepo
	rewardRepo  repos.RewardRepo
}

func NewUserService(userRepo repos.UserRepo, historyRepo repos.TrustHistoryRepo, rewardRepo repos.RewardRepo, baseLog *logger.Logger) UserService {
	serviceLog := baseLog.With("service", "UserService")
	return &userService{log: serviceLog, userRepo: userRepo, historyRepo: historyRepo, rewardRepo: rewardRepo}
}

func (us *userService) GetProfile(ctx context.Context, userID uuid.UUID) (*UserProfile, error) {
	user, err := us.userRepo.GetByID(ctx, nil, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, apierr.New(http.StatusNotFound, "USER_NOT_FOUND", fmt.Errorf("user %s: %w", userID, errs.ErrNotFound))
	}

	now := time.Now()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	pointsToday, err := us.rewardRepo.SumFinalPointsByUserSince(ctx, nil, userID, dayStart)
	if err != nil {
		return nil, err
	}
	history, err := us.historyRepo.ListByUser(ctx, nil, userID, 10, 0)
	if err != nil {
		return nil, err
	}
	rewards, err := us.rewardRepo.ListByUser(ctx, nil, userID, 10, 0)
	if err != nil {
		return nil, err
	}
	return &UserProfile{
		User:         user,
		PointsToday:  pointsToday,
		TrustHistory: history,
		Rewards:      rewards,
	}, nil
}

func (us *userService) GetTrustHistory(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*types.TrustHistory, error) {
	return us.historyRepo.ListByUser(ctx, nil, userID, limit, offset)
}

func (us *userService) GetRewards(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*types.Reward, error) {
	return us.rewardRepo.ListByUser(ctx, nil, userID, limit, offset)
}
