package app

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/greenloop/recircle-backend/internal/pkg/logger"
	"github.com/greenloop/recircle-backend/internal/services"
)

type Services struct {
	Audit        services.AuditService
	Auth         services.AuthService
	User         services.UserService
	Point        services.PointService
	Trust        services.TrustService
	Fraud        services.FraudService
	Reward       services.RewardService
	Verification services.VerificationService
	Action       services.ActionService
}

func wireServices(db *gorm.DB, log *logger.Logger, cfg Config, r Repos, clients Clients) (Services, error) {
	log.Info("Wiring services...")

	audit := services.NewAuditService(r.AuditLog, log)

	auth, err := services.NewAuthService(db, r.User, r.UserToken, audit, log)
	if err != nil {
		return Services{}, fmt.Errorf("init auth service: %w", err)
	}

	user := services.NewUserService(r.User, r.TrustHistory, r.Reward, log)
	point := services.NewPointService(r.RecyclingPoint, log)
	trust := services.NewTrustService(r.User, r.TrustHistory, log)
	fraud := services.NewFraudService(r.RecycleAction, r.Reward, log)

	rules, err := services.LoadRewardRules(cfg.RewardRulesPath)
	if err != nil {
		return Services{}, fmt.Errorf("load reward rules: %w", err)
	}
	reward := services.NewRewardService(rules, r.Reward, r.RecycleAction, log)

	verification := services.NewVerificationService(r.RecycleAction, clients.AI, log)

	action := services.NewActionService(
		db,
		r.User,
		r.RecyclingPoint,
		r.RecycleAction,
		clients.Bucket,
		verification,
		trust,
		fraud,
		reward,
		audit,
		clients.EventBus,
		log,
	)

	return Services{
		Audit:        audit,
		Auth:         auth,
		User:         user,
		Point:        point,
		Trust:        trust,
		Fraud:        fraud,
		Reward:       reward,
		Verification: verification,
		Action:       action,
	}, nil
}
