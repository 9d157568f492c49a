package server

import (
	"context"
	"time"

	"backend-attendhub/internal/attendance"
	"backend-attendhub/internal/auth"
	"backend-attendhub/internal/config"
	"backend-attendhub/internal/location/pipeline"
	"backend-attendhub/internal/session"
	"backend-attendhub/internal/stream"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

type Server struct {
	App      *fiber.App
	Cfg      config.Config
	DB       *pgxpool.Pool
	Redis    *redis.Client
	Stream   *stream.Hub
	Sessions *session.Service
}

// NewServer wires the attendance engine behind the HTTP surface. ctx bounds
// the background workers (device pipelines, session sweeper).
func NewServer(ctx context.Context, cfg config.Config, db *pgxpool.Pool, redisClient *redis.Client) *Server {
	app := fiber.New()
	app.Use(recover.New())
	app.Use(logger.New())

	s := &Server{
		App:    app,
		Cfg:    cfg,
		DB:     db,
		Redis:  redisClient,
		Stream: stream.NewHub(redisClient),
	}

	registerRoutes(ctx, s)
	return s
}

func registerRoutes(ctx context.Context, s *Server) {
	s.App.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	jwtMiddleware := auth.JWTMiddleware(s.Cfg.JWTSecret)

	sessionSvc := session.NewService(s.DB, session.Config{
		MaxDuration:   s.Cfg.SessionMaxDuration(),
		SweepInterval: s.Cfg.SweepInterval(),
	})
	s.Sessions = sessionSvc

	attendanceSvc := attendance.NewService(s.DB, s.Stream, attendance.Config{
		ViolationLimit: s.Cfg.ViolationLimit,
		LateAfter:      s.Cfg.LateAfter(),
		RecentLogLimit: s.Cfg.LocationLogLimit,
	})

	pipelineCfg := pipeline.DefaultManagerConfig()
	if s.Cfg.PipelineQueueSize > 0 {
		pipelineCfg.Pipeline.QueueSize = s.Cfg.PipelineQueueSize
	}
	if s.Cfg.RecalIntervalSec > 0 {
		pipelineCfg.Fusion.RecalInterval = time.Duration(s.Cfg.RecalIntervalSec) * time.Second
	}
	pipelineMgr := pipeline.NewManager(ctx, pipelineCfg)

	session.RegisterRoutes(s.App.Group("/sessions"), sessionSvc, jwtMiddleware)
	attendance.RegisterRoutes(s.App.Group("/attendance"), attendanceSvc, jwtMiddleware)
	pipeline.RegisterRoutes(s.App.Group("/location"), pipelineMgr, jwtMiddleware)
	stream.RegisterRoutes(s.App.Group("/stream"), s.Stream)
}
