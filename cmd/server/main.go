package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ezmeets/backend/config"
	"github.com/ezmeets/backend/internal/auth"
	"github.com/ezmeets/backend/internal/jitsi"
	"github.com/ezmeets/backend/internal/meetings"
	"github.com/ezmeets/backend/internal/middleware"
	"github.com/ezmeets/backend/internal/models"
	"github.com/ezmeets/backend/internal/realtime"
	"github.com/ezmeets/backend/internal/roster"
	"github.com/ezmeets/backend/internal/users"
	"github.com/ezmeets/backend/pkg/database"
	"github.com/ezmeets/backend/pkg/queue"
	"github.com/ezmeets/backend/pkg/redis"
	"github.com/ezmeets/backend/pkg/storage"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), logger)
	if err != nil {
		logger.Fatal("connect database", zap.Error(err))
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool); err != nil {
		logger.Fatal("run migrations", zap.Error(err))
	}

	// A deployment that cannot sign join tokens must not serve traffic.
	tokens, err := jitsi.NewTokenService(cfg.Jitsi.Secret, cfg.Jitsi.Issuer, cfg.Jitsi.Audience)
	if err != nil {
		logger.Fatal("jitsi token service", zap.Error(err))
	}

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Warn("redis unavailable, presence fan-out and verification queue disabled", zap.Error(err))
		rdb = nil
	}

	var photos *storage.S3
	if cfg.AWS.Region != "" {
		photos, err = storage.NewS3(ctx, storage.S3Config{
			Region:               cfg.AWS.Region,
			AccessKeyID:          cfg.AWS.AccessKeyID,
			SecretAccessKey:      cfg.AWS.SecretAccessKey,
			PhotosBucket:         cfg.AWS.PhotosBucket,
			PresignExpireMinutes: cfg.AWS.PresignExpireMinutes,
		}, logger)
		if err != nil {
			logger.Fatal("s3 client", zap.Error(err))
		}
	} else {
		logger.Warn("AWS region not set, photo storage disabled")
	}

	jwtService := auth.NewJWTService(cfg.Auth.Secret, cfg.Auth.ExpireHours)
	userRepo := auth.NewRepository(pool)
	meetingRepo := meetings.NewRepository(pool)
	rosterRepo := roster.NewRepository(pool)

	var jobs *queue.Queue
	if rdb != nil {
		jobs = queue.NewQueue(rdb.Client, logger)
	}

	hub := realtime.NewHub(logger)
	broadcaster := realtime.NewBroadcaster(hub, rdb, logger)
	go broadcaster.Listen(ctx)

	authHandler := auth.NewHandler(userRepo, jwtService, logger)
	meetingHandler := meetings.NewHandler(meetingRepo, userRepo, tokens, photoCleaner(photos), cfg.Jitsi.Host, logger)
	rosterHandler := roster.NewHandler(rosterRepo, broadcaster, photoUploader(photos), logger)
	userHandler := users.NewHandler(userRepo, userPhotoStore(photos), jobs, logger)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.Logger(logger))
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	authGroup := router.Group("/auth")
	{
		authGroup.POST("/register", authHandler.Register)
		authGroup.POST("/login", authHandler.Login)
	}

	// Connection-event webhook from the conferencing backend; no user session.
	router.POST("/meetings/log", rosterHandler.Log)

	adminRoles := []string{string(models.RoleAdmin), string(models.RoleSuperAdmin)}

	api := router.Group("/", middleware.JWT(jwtService))
	{
		api.GET("/meetings/mine", meetingHandler.Mine)
		api.POST("/meetings/:id/join", meetingHandler.Join)
		api.POST("/users/avatar", userHandler.ChangeAvatar)

		admin := api.Group("/", middleware.RequireRole(adminRoles...))
		{
			admin.GET("/meetings", meetingHandler.List)
			admin.POST("/meetings", meetingHandler.Schedule)
			admin.GET("/meetings/:id", meetingHandler.GetByID)
			admin.PUT("/meetings/:id", meetingHandler.Update)
			admin.DELETE("/meetings/:id", meetingHandler.Delete)
			admin.POST("/meetings/:id/end", meetingHandler.EndNow)
			admin.GET("/meetings/:id/roster", rosterHandler.ListByMeeting)
			admin.POST("/meetings/:id/camstatus", rosterHandler.AddCamStatus)
			admin.GET("/ws/meetings/:id", hub.ServeWS)
			admin.GET("/users", userHandler.List)
			admin.POST("/users/:id/approve", userHandler.Approve)
			admin.GET("/users/:id/avatar", userHandler.AvatarDownloadURL)
		}

		super := api.Group("/", middleware.RequireRole(string(models.RoleSuperAdmin)))
		{
			super.POST("/users/:id/role", userHandler.SetRole)
			super.DELETE("/users/:id", userHandler.Delete)
		}
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("listen", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	if rdb != nil {
		rdb.Close()
	}
	logger.Info("server stopped")
	os.Exit(0)
}

// photoCleaner avoids passing a typed-nil *storage.S3 behind the
// meetings.PhotoCleaner interface.
func photoCleaner(s *storage.S3) meetings.PhotoCleaner {
	if s == nil {
		return nil
	}
	return s
}

// photoUploader does the same for roster.PhotoUploader.
func photoUploader(s *storage.S3) roster.PhotoUploader {
	if s == nil {
		return nil
	}
	return s
}

// userPhotoStore does the same for users.PhotoStore.
func userPhotoStore(s *storage.S3) users.PhotoStore {
	if s == nil {
		return nil
	}
	return s
}
