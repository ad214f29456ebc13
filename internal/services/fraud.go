package services

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/greenloop/recircle-backend/internal/pkg/logger"
	"github.com/greenloop/recircle-backend/internal/repos"
	"github.com/greenloop/recircle-backend/internal/types"
)

// Fraud signals.
const (
	SignalSharedImage     = "image_shared_across_users"
	SignalClusteredUsers  = "users_clustered_at_location"
	SignalSubmissionBurst = "submission_burst"
	SignalPointHopping    = "point_hopping"
	SignalPointFarming    = "excessive_points_earned"
)

const (
	burstWindow        = time.Minute
	burstLimit         = 5
	clusterWindow      = time.Minute
	clusterTolerance   = 0.0001
	clusterUserLimit   = 3
	hoppingWindow      = 5 * time.Minute
	hoppingPointLimit  = 3
	farmingWindow      = time.Hour
	farmingPointsLimit = 80
)

// FraudService runs the cross-action heuristics that single-action
// verification cannot see. The checks hit independent slices of
// history, so they run concurrently on the connection pool; callers
// must not hand them a single shared transaction.
type FraudService interface {
	Check(ctx context.Context, action *types.RecycleAction) ([]string, error)
}

type fraudService struct {
	log        *logger.Logger
	actionRepo repos.RecycleActionRepo
	rewardRepo repos.RewardRepo
}

func NewFraudService(actionRepo repos.RecycleActionRepo, rewardRepo repos.RewardRepo, baseLog *logger.Logger) FraudService {
	serviceLog := baseLog.With("service", "FraudService")
	return &fraudService{log: serviceLog, actionRepo: actionRepo, rewardRepo: rewardRepo}
}

func (fs *fraudService) Check(ctx context.Context, action *types.RecycleAction) ([]string, error) {
	var (
		mu      sync.Mutex
		signals []string
	)
	hit := func(signal string) {
		mu.Lock()
		signals = append(signals, signal)
		mu.Unlock()
	}

	now := time.Now()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		users, err := fs.actionRepo.CountDistinctUsersByImageHash(gctx, nil, action.ImageHash)
		if err != nil {
			return err
		}
		if users > 1 {
			hit(SignalSharedImage)
		}
		return nil
	})

	g.Go(func() error {
		users, err := fs.actionRepo.CountDistinctUsersNearSince(gctx, nil, action.GpsLat, action.GpsLng, clusterTolerance, now.Add(-clusterWindow))
		if err != nil {
			return err
		}
		if users >= clusterUserLimit {
			hit(SignalClusteredUsers)
		}
		return nil
	})

	g.Go(func() error {
		count, err := fs.actionRepo.CountByUserSince(gctx, nil, action.UserID, now.Add(-burstWindow), action.ID)
		if err != nil {
			return err
		}
		if count > burstLimit {
			hit(SignalSubmissionBurst)
		}
		return nil
	})

	g.Go(func() error {
		points, err := fs.actionRepo.CountDistinctPointsByUserSince(gctx, nil, action.UserID, now.Add(-hoppingWindow))
		if err != nil {
			return err
		}
		if points > hoppingPointLimit {
			hit(SignalPointHopping)
		}
		return nil
	})

	g.Go(func() error {
		earned, err := fs.rewardRepo.SumFinalPointsByUserSince(gctx, nil, action.UserID, now.Add(-farmingWindow))
		if err != nil {
			return err
		}
		if earned > farmingPointsLimit {
			hit(SignalPointFarming)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if len(signals) > 0 {
		fs.log.Warn("fraud signals detected",
			"action_id", action.ID,
			"user_id", action.UserID,
			"signals", signals)
	}
	return signals, nil
}
