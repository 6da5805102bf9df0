package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	charmlog "github.com/charmbracelet/log"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	config "github.com/maheshrc27/crosspost/configs"
	"github.com/maheshrc27/crosspost/internal/api/handlers"
	"github.com/maheshrc27/crosspost/internal/api/middleware"
	"github.com/maheshrc27/crosspost/internal/database"
	job "github.com/maheshrc27/crosspost/internal/jobs"
	"github.com/maheshrc27/crosspost/internal/lock"
	"github.com/maheshrc27/crosspost/internal/metrics"
	"github.com/maheshrc27/crosspost/internal/models"
	"github.com/maheshrc27/crosspost/internal/platform"
	"github.com/maheshrc27/crosspost/internal/queue"
	"github.com/maheshrc27/crosspost/internal/repository"
	"github.com/maheshrc27/crosspost/internal/service"
	"github.com/maheshrc27/crosspost/internal/storage"
	"github.com/maheshrc27/crosspost/pkg/oauth1"
	"github.com/maheshrc27/crosspost/pkg/utils"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron"
	"golang.org/x/time/rate"
)

func main() {
	if err := godotenv.Load(); err != nil {
		charmlog.Warn("Failed to load .env file", "err", err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		charmlog.Fatal("Invalid configuration", "err", err)
	}
	initLogger(cfg)

	db, err := sql.Open("postgres", cfg.PostgresURI)
	if err != nil {
		fatal("Failed to connect to database", err)
	}
	defer closeDB(db)

	if err := db.Ping(); err != nil {
		fatal("Database is unreachable", err)
	}
	if err := database.Migrate(db); err != nil {
		fatal("Failed to run migrations", err)
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisURI})
	defer rdb.Close()

	redisConn := asynq.RedisClientOpt{Addr: cfg.RedisURI}
	client := asynq.NewClient(redisConn)
	defer client.Close()

	cipher, err := utils.NewTokenCipher([]byte(cfg.EncryptionKey))
	if err != nil {
		fatal("Invalid encryption key", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	// Calls are bounded by their contexts; this only caps a stuck media upload.
	httpClient := &http.Client{Timeout: cfg.MediaTimeout}

	media, err := storage.NewMediaStore(context.Background(), cfg.R2, httpClient)
	if err != nil {
		fatal("Failed to set up media store", err)
	}

	signer := oauth1.NewSigner(cfg.Twitter.ConsumerKey, cfg.Twitter.ConsumerSecret)

	providers := platform.NewProviders(
		platform.NewTwitterProvider(cfg.Twitter.ClientID, cfg.Twitter.ClientSecret, cfg.Twitter.RedirectURI, httpClient),
		platform.NewFacebookProvider(cfg.Facebook.ClientID, cfg.Facebook.ClientSecret, cfg.Facebook.RedirectURI, httpClient),
		platform.NewInstagramProvider(cfg.Instagram.ClientID, cfg.Instagram.ClientSecret, cfg.Instagram.RedirectURI, httpClient),
		platform.NewThreadsProvider(cfg.Threads.ClientID, cfg.Threads.ClientSecret, cfg.Threads.RedirectURI, httpClient),
		platform.NewLinkedInProvider(cfg.LinkedIn.ClientID, cfg.LinkedIn.ClientSecret, cfg.LinkedIn.RedirectURI, httpClient),
		platform.NewYoutubeProvider(cfg.Google.ClientID, cfg.Google.ClientSecret, cfg.Google.RedirectURI, httpClient),
		platform.NewTiktokProvider(cfg.Tiktok.ClientID, cfg.Tiktok.ClientSecret, cfg.Tiktok.RedirectURI, httpClient),
	)

	publishers := platform.NewRegistry(
		platform.NewTwitterPublisher(signer, media, httpClient),
		platform.NewFacebookPublisher(httpClient),
		platform.NewInstagramPublisher(httpClient),
		platform.NewThreadsPublisher(httpClient),
		platform.NewLinkedInPublisher(media, httpClient),
		platform.NewYoutubePublisher(media, httpClient),
		platform.NewTiktokPublisher(httpClient),
	)

	connectionRepo := repository.NewConnectionRepository(db)
	pendingRepo := repository.NewPendingTokenRepository(db)
	resultRepo := repository.NewPublishResultRepository(db)

	scheduler := queue.NewScheduler(client, cfg.NotificationWebhook)

	dispatcher := service.NewPublishDispatcher(
		service.NewCredentialSelector(connectionRepo),
		cipher,
		publishers,
		m,
		service.DispatcherConfig{
			Timeout:      cfg.PlatformTimeout,
			MediaTimeout: cfg.MediaTimeout,
			Concurrency:  cfg.PublishConcurrency,
			RateLimit:    rate.Limit(cfg.PlatformRateLimit),
			Burst:        cfg.PlatformBurst,
		})
	publishService := service.NewPublishService(dispatcher, resultRepo, scheduler, cfg.MaxPublishAttempts)
	oauthService := service.NewOAuthService(
		providers,
		platform.NewTwitterOAuth1(signer, httpClient),
		service.NewRedisStateStore(rdb, models.PendingTokenTTL),
		connectionRepo,
		pendingRepo,
		cipher,
		service.OAuthConfig{StateSecret: cfg.SecretKey, OAuth1Callback: cfg.Twitter.OAuth1Callback})
	connectionService := service.NewConnectionService(connectionRepo, providers, cipher)

	// cron jobs
	instanceID, err := utils.RandomString(16)
	if err != nil {
		fatal("Failed to generate instance id", err)
	}
	refreshTokenJob := job.NewTokenRefreshJob(connectionRepo, providers, cipher, scheduler, m,
		lock.NewLocker(rdb, "jobs:token-refresh", instanceID))
	sweepJob := job.NewPendingSweepJob(pendingRepo)

	c := cron.New()
	if err := c.AddFunc(cfg.RefreshSchedule, refreshTokenJob.RefreshTokens); err != nil {
		fatal("Invalid REFRESH_SCHEDULE", err)
	}
	if err := c.AddFunc(cfg.PendingSweepSchedule, sweepJob.Sweep); err != nil {
		fatal("Invalid PENDING_SWEEP_SCHEDULE", err)
	}
	c.Start()
	defer c.Stop()

	// queue
	queueW := queue.NewQueue(publishService, cfg.NotificationWebhook, httpClient)
	server := asynq.NewServer(redisConn, asynq.Config{
		Concurrency: 10,
	})
	mux := asynq.NewServeMux()
	queueW.Register(mux)
	if err := server.Start(mux); err != nil {
		fatal("Could not start asynq server", err)
	}

	app := fiber.New(fiber.Config{
		ReadTimeout:  10 * time.Minute,
		WriteTimeout: 10 * time.Minute,
		BodyLimit:    100 * 1024 * 1024,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			slog.Error("unhandled error", "path", c.Path(), "error", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "something went wrong"})
		},
	})

	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.FrontendURL,
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowCredentials: true,
		MaxAge:           3600,
	}))

	health := handlers.NewHealthHandler(db)
	app.Get("/healthz", health.Healthz)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})))

	platformHandler := handlers.NewPlatformHandler(oauthService, *cfg)
	app.Get("/auth/twitter/oauth1/callback", platformHandler.OAuth1Callback)
	app.Get("/auth/:platform/callback", platformHandler.CallbackHandler)

	authMiddleware := middleware.NewAuthMiddleware(*cfg)
	api := app.Group("/api")
	api.Use(authMiddleware.AuthMiddleware())

	connections := handlers.NewConnectionHandler(connectionService)
	api.Get("/connections", connections.List)
	api.Delete("/connections", connections.DeleteAll)
	api.Post("/connections/twitter/oauth1", platformHandler.InitiateOAuth1)
	api.Get("/connections/:platform/authorize", platformHandler.Authorize)
	api.Post("/connections/:id/primary", connections.SetPrimary)
	api.Delete("/connections/:id", connections.Delete)

	post := handlers.NewPostHandler(publishService)
	api.Post("/posts/publish", post.Publish)
	api.Get("/posts/:id/results", post.Results)

	mediaHandler := handlers.NewMediaHandler(media)
	api.Post("/media", mediaHandler.Upload)

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			fatal("Failed to start server", err)
		}
	}()
	slog.Info("Server is running", "port", cfg.Port)

	gracefulShutdown(app, server)
}

func initLogger(cfg *config.Config) {
	level, err := charmlog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = charmlog.InfoLevel
	}

	logger := charmlog.NewWithOptions(os.Stdout, charmlog.Options{
		ReportTimestamp: true,
		TimeFormat:      "2006-01-02 15:04:05.000",
		Level:           level,
	})
	charmlog.SetDefault(logger)
	slog.SetDefault(slog.New(logger))
}

func fatal(msg string, err error) {
	slog.Error(msg, "error", err)
	os.Exit(1)
}

func closeDB(db *sql.DB) {
	fmt.Fprint(os.Stdout, "Closing database connection... ")
	if err := db.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to close database: %v", err)
		return
	}
	fmt.Fprintln(os.Stdout, "Done")
}

func gracefulShutdown(app *fiber.App, server *asynq.Server) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	<-quit
	slog.Info("Shutting down server...")

	if err := app.Shutdown(); err != nil {
		slog.Error("Failed to shut down server", "error", err)
	}
	server.Shutdown()

	slog.Info("Server shutdown complete.")
}
