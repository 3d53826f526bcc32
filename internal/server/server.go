package server

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"anoa.com/challengescore/internal/config"
	"anoa.com/challengescore/internal/middleware"
	"anoa.com/challengescore/pkg/metrics"

	activityHttp "anoa.com/challengescore/internal/modules/activity/delivery/http"
	activityRepo "anoa.com/challengescore/internal/modules/activity/repository"
	activityService "anoa.com/challengescore/internal/modules/activity/service"

	challengeHttp "anoa.com/challengescore/internal/modules/challenge/delivery/http"
	challengeRepo "anoa.com/challengescore/internal/modules/challenge/repository"
	challengeService "anoa.com/challengescore/internal/modules/challenge/service"

	leaderboardHttp "anoa.com/challengescore/internal/modules/leaderboard/delivery/http"
	leaderboardRepo "anoa.com/challengescore/internal/modules/leaderboard/repository"
	leaderboardService "anoa.com/challengescore/internal/modules/leaderboard/service"

	scoreHttp "anoa.com/challengescore/internal/modules/score/delivery/http"
	scoreRepo "anoa.com/challengescore/internal/modules/score/repository"
	scoreService "anoa.com/challengescore/internal/modules/score/service"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-co-op/gocron/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

type Server struct {
	engine      *gin.Engine
	db          *gorm.DB
	redisClient *redis.Client
	scheduler   gocron.Scheduler
	score       scoreService.ScoreService
}

type Options struct {
	Config  *config.Config
	Logger  *slog.Logger
	Metrics *metrics.Scoring
	// Gatherer backs GET /metrics; nil means the default registry.
	Gatherer prometheus.Gatherer
}

func NewServer(db *gorm.DB, redisClient *redis.Client, opts Options) *Server {
	cfg := opts.Config
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	gatherer := opts.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	challengeRepo := challengeRepo.NewChallengeRepository(db)
	activityRepo := activityRepo.NewActivityRepository(db)

	leaderboardRepo := leaderboardRepo.NewLeaderboardRepository(db)
	leaderboardSvc := leaderboardService.NewLeaderboardService(leaderboardRepo, challengeRepo, activityRepo, redisClient, cfg.LeaderboardCacheTTL, opts.Metrics)
	leaderboardHandler := leaderboardHttp.NewLeaderboardHandler(leaderboardSvc)

	scoreRepo := scoreRepo.NewScoreRepository(db)
	scoreSvc := scoreService.NewScoreService(scoreRepo, challengeRepo, redisClient, leaderboardSvc, opts.Metrics, cfg.RecomputeConcurrency, cfg.RecomputeCooldown)
	scoreHandler := scoreHttp.NewScoreHandler(scoreSvc)

	challengeSvc := challengeService.NewChallengeService(challengeRepo, scoreSvc)
	challengeHandler := challengeHttp.NewChallengeHandler(challengeSvc)

	activitySvc := activityService.NewActivityService(activityRepo, challengeRepo, scoreSvc, opts.Metrics)
	activityHandler := activityHttp.NewActivityHandler(activitySvc)

	if cfg.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	setupCORS(router, cfg.AllowedOrigins)

	router.Use(gin.Recovery())
	router.Use(middleware.NewObservability(logger, opts.Metrics, "/metrics", "/healthz").Handler())

	router.GET("/healthz", func(c *gin.Context) {
		sqlDB, err := db.DB()
		if err == nil {
			err = sqlDB.PingContext(c.Request.Context())
		}
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	api := router.Group("/api")
	{
		// Challenge routes
		api.POST("/challenges", challengeHandler.CreateChallenge)
		api.GET("/challenges/:id", challengeHandler.GetChallenge)
		api.POST("/challenges/:id/metrics", challengeHandler.AddMetric)
		api.POST("/challenges/:id/participants", challengeHandler.JoinChallenge)
		api.GET("/challenges/:id/participants", challengeHandler.ListParticipants)
		api.POST("/challenges/:id/recompute", scoreHandler.RecomputeChallenge)
		api.GET("/challenges/:id/leaderboard", leaderboardHandler.GetLeaderboard)

		api.PUT("/metrics/:id/config", challengeHandler.UpdateMetricConfig)

		// Activity routes
		api.POST("/logs", activityHandler.SubmitLog)
		api.GET("/participants/:id/metrics/:metric_id/logs", activityHandler.ListLogs)
		api.GET("/participants/:id/metrics/:metric_id/snapshots", scoreHandler.GetSnapshots)
	}

	return &Server{
		engine:      router,
		db:          db,
		redisClient: redisClient,
		score:       scoreSvc,
	}
}

// StartJobs launches the recompute scheduler. Jobs stop when Close is called.
func (s *Server) StartJobs(ctx context.Context, cfg *config.Config) error {
	hour, minute, err := config.ParseClock(cfg.NightlyRecomputeAt)
	if err != nil {
		return err
	}
	sched, err := scoreService.StartScheduler(ctx, s.score, scoreService.SchedulerConfig{
		DrainInterval: cfg.RecomputeInterval,
		NightlyHour:   hour,
		NightlyMinute: minute,
	})
	if err != nil {
		return err
	}
	s.scheduler = sched
	return nil
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) Run(addr string) error {
	return s.engine.Run(addr)
}

func (s *Server) Close() error {
	if s.scheduler == nil {
		return nil
	}
	return s.scheduler.Shutdown()
}

func setupCORS(router *gin.Engine, allowedOrigins string) {
	var origins []string
	if allowedOrigins != "" {
		origins = strings.Split(allowedOrigins, ",")
	} else {
		origins = []string{"http://localhost:3000"}
	}

	router.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
}
