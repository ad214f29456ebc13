package app

import (
	"github.com/greenloop/recircle-backend/internal/pkg/logger"
	"github.com/greenloop/recircle-backend/internal/utils"
)

type Config struct {
	Mode            string
	Port            string
	RewardRulesPath string
	ServiceVersion  string
}

func LoadConfig(log *logger.Logger) Config {
	return Config{
		Mode:            utils.GetEnv("MODE", "development", log),
		Port:            utils.GetEnv("PORT", "8080", log),
		RewardRulesPath: utils.GetEnv("REWARD_RULES_PATH", "", log),
		ServiceVersion:  utils.GetEnv("SERVICE_VERSION", "dev", log),
	}
}
