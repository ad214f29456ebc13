package app

import (
	"fmt"
	"os"
	"strings"

	redisclient "github.com/greenloop/recircle-backend/internal/clients/redis"
	"github.com/greenloop/recircle-backend/internal/pkg/logger"
	"github.com/greenloop/recircle-backend/internal/services"
)

type Clients struct {
	EventBus redisclient.EventBus
	Bucket   services.BucketService
	AI       services.AIClientService
}

func wireClients(log *logger.Logger) (Clients, error) {
	log.Info("Wiring clients...")

	// Redis is optional. Without it verdicts still land in postgres,
	// only the live stream goes quiet.
	var bus redisclient.EventBus
	if strings.TrimSpace(os.Getenv("REDIS_ADDR")) != "" {
		b, err := redisclient.NewEventBus(log)
		if err != nil {
			return Clients{}, fmt.Errorf("init redis event bus: %w", err)
		}
		bus = b
	}

	bucket, err := services.NewBucketService(log)
	if err != nil {
		return Clients{}, fmt.Errorf("init bucket client: %w", err)
	}

	ai := services.NewAIClientService(log)

	return Clients{
		EventBus: bus,
		Bucket:   bucket,
		AI:       ai,
	}, nil
}
