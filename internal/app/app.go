package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/greenloop/recircle-backend/internal/db"
	"github.com/greenloop/recircle-backend/internal/jobs/worker"
	"github.com/greenloop/recircle-backend/internal/observability"
	"github.com/greenloop/recircle-backend/internal/pkg/logger"
	"github.com/greenloop/recircle-backend/internal/realtime"
)

const shutdownTimeout = 5 * time.Second

type App struct {
	Log      *logger.Logger
	DB       *gorm.DB
	Router   *gin.Engine
	Cfg      Config
	Repos    Repos
	Clients  Clients
	Services Services
	Hub      *realtime.Hub
	Worker   *worker.Worker

	cancel       context.CancelFunc
	otelShutdown func(context.Context) error
}

func New(log *logger.Logger) (*App, error) {
	log.Info("Loading environment variables...")
	cfg := LoadConfig(log)

	if strings.HasPrefix(strings.ToLower(cfg.Mode), "prod") {
		gin.SetMode(gin.ReleaseMode)
	}

	otelShutdown := observability.InitOTel(context.Background(), log, observability.OtelConfig{
		ServiceName: "recircle-backend",
		Environment: cfg.Mode,
		Version:     cfg.ServiceVersion,
	})

	pg, err := db.NewPostgresService(log)
	if err != nil {
		return nil, fmt.Errorf("init postgres: %w", err)
	}
	if err := pg.AutoMigrateAll(); err != nil {
		return nil, fmt.Errorf("postgres automigrate: %w", err)
	}
	theDB := pg.DB()

	clients, err := wireClients(log)
	if err != nil {
		return nil, err
	}

	hub := realtime.NewHub(log)
	reposet := wireRepos(theDB, log)

	serviceset, err := wireServices(theDB, log, cfg, reposet, clients)
	if err != nil {
		return nil, err
	}

	handlerset := wireHandlers(theDB, log, clients, serviceset, hub)
	middlewareset := wireMiddleware(log, serviceset)
	router := wireRouter(log, handlerset, middlewareset)

	verifyWorker := worker.New(theDB, reposet.RecycleAction, serviceset.Action, log)

	return &App{
		Log:          log,
		DB:           theDB,
		Router:       router,
		Cfg:          cfg,
		Repos:        reposet,
		Clients:      clients,
		Services:     serviceset,
		Hub:          hub,
		Worker:       verifyWorker,
		otelShutdown: otelShutdown,
	}, nil
}

// Start launches the verification worker and, when redis is
// configured, the forwarder feeding the realtime hub.
func (a *App) Start() {
	if a == nil || a.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	if a.Worker != nil {
		a.Worker.Start(ctx)
	}
	if a.Clients.EventBus != nil {
		if err := a.Clients.EventBus.StartForwarder(ctx, a.Hub.Publish); err != nil {
			a.Log.Warn("event forwarder failed to start", "error", err)
		}
	}
}

func (a *App) Run(addr string) error {
	if a == nil || a.Router == nil {
		return fmt.Errorf("app not initialized")
	}
	return a.Router.Run(addr)
}

func (a *App) Close() {
	if a == nil {
		return
	}
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	if a.Worker != nil {
		a.Worker.Wait()
	}
	if a.Clients.EventBus != nil {
		if err := a.Clients.EventBus.Close(); err != nil {
			a.Log.Warn("event bus close failed", "error", err)
		}
	}
	if a.otelShutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := a.otelShutdown(ctx); err != nil {
			a.Log.Warn("otel shutdown failed", "error", err)
		}
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}
