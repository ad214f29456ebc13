package app

import (
	"gorm.io/gorm"

	"github.com/greenloop/recircle-backend/internal/pkg/logger"
	"github.com/greenloop/recircle-backend/internal/repos"
)

type Repos struct {
	User           repos.UserRepo
	UserToken      repos.UserTokenRepo
	RecycleAction  repos.RecycleActionRepo
	RecyclingPoint repos.RecyclingPointRepo
	Reward         repos.RewardRepo
	TrustHistory   repos.TrustHistoryRepo
	AuditLog       repos.AuditLogRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger) Repos {
	log.Info("Wiring repos...")
	return Repos{
		User:           repos.NewUserRepo(db, log),
		UserToken:      repos.NewUserTokenRepo(db, log),
		RecycleAction:  repos.NewRecycleActionRepo(db, log),
		RecyclingPoint: repos.NewRecyclingPointRepo(db, log),
		Reward:         repos.NewRewardRepo(db, log),
		TrustHistory:   repos.NewTrustHistoryRepo(db, log),
		AuditLog:       repos.NewAuditLogRepo(db, log),
	}
}
