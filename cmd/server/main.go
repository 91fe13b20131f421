package main

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	config "github.com/postline/postline/configs"
	"github.com/postline/postline/internal/api/handlers"
	"github.com/postline/postline/internal/api/middleware"
	"github.com/postline/postline/internal/dispatch"
	job "github.com/postline/postline/internal/jobs"
	"github.com/postline/postline/internal/notify"
	"github.com/postline/postline/internal/platform"
	"github.com/postline/postline/internal/repository"
	"github.com/postline/postline/internal/service"
	"github.com/postline/postline/pkg/ratelimit"
	"github.com/robfig/cron"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: Failed to load environment variables", err)
	}

	cfg := config.LoadConfig()

	db, err := sql.Open("postgres", cfg.PostgresURI)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer closeDB(db)

	if err := db.Ping(); err != nil {
		log.Fatalf("Database is unreachable: %v", err)
	}

	redisConn := asynq.RedisClientOpt{Addr: cfg.RedisURI}

	app := fiber.New(fiber.Config{
		ReadTimeout:  10 * time.Minute,
		WriteTimeout: 10 * time.Minute,
		BodyLimit:    100 * 1024 * 1024, // 100 MB
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			log.Printf("Error: %v", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
		},
	})

	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOriginsFunc: func(origin string) bool {
			return true
		},
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowCredentials: true,
		MaxAge:           3600,
	}))

	userRepo := repository.NewUserRepository(db)
	postRepo := repository.NewPostRepository(db)
	credentialsRepo := repository.NewCredentialsRepository(db)
	rssSourceRepo := repository.NewRssSourceRepository(db)

	mediaService := service.NewMediaService(*cfg)
	tokenService := service.NewTokenService(*cfg, credentialsRepo)

	telegramAdapter := platform.NewTelegramAdapter(cfg.TelegramAPIBase)
	adapters := map[string]platform.Adapter{
		platform.Telegram:  telegramAdapter,
		platform.VK:        platform.NewVKAdapter(cfg.VKAPIBase),
		platform.OK:        platform.NewOKAdapter(cfg.OKAPIBase),
		platform.Instagram: platform.NewInstagramAdapter("https://graph.facebook.com/v19.0", mediaService),
		platform.Max:       platform.NewMaxAdapter(cfg.MaxAPIBase),
	}

	limiter := ratelimit.NewDefaultLimiter()
	notifier := notify.NewLogNotifier()

	publisher := service.NewPublisherService(postRepo, userRepo, tokenService, adapters, limiter, notifier, cfg.UploadDir)

	dispatcher := dispatch.NewDispatcher(redisConn)
	defer dispatcher.Close()

	userService := service.NewUserService(userRepo)
	postService := service.NewPostService(db, postRepo, userRepo, tokenService, adapters, dispatcher, notifier, cfg.UploadDir)
	sourceService := service.NewSourceService(rssSourceRepo, userRepo)
	rssService := service.NewRSSService(rssSourceRepo, postRepo, publisher, cfg.UploadDir)

	authMiddleware := middleware.NewAuthMiddleware(*cfg)

	webhook := handlers.NewWebhookHandler(*cfg, userRepo, credentialsRepo, telegramAdapter)
	app.Post("/webhook", webhook.Telegram)

	api := app.Group("/api")
	api.Use(authMiddleware.AuthMiddleware())

	user := handlers.NewUserHandler(userService)
	api.Get("/user/info", user.GetUserInfo)
	api.Post("/user/notify", user.UpdateNotifyPreference)

	post := handlers.NewPostHandler(postService)
	api.Post("/posts/create", post.CreatePost)
	api.Get("/posts", post.ListPosts)
	api.Get("/posts/:id/status", post.PostStatus)
	api.Post("/posts/remove", post.RemovePost)

	source := handlers.NewSourceHandler(sourceService)
	api.Post("/sources/add", source.AddSource)
	api.Get("/sources", source.ListSources)
	api.Post("/sources/remove", source.RemoveSource)

	// cron jobs, each under its own cross-process lock file
	refreshTokenJob := job.NewTokenRefreshJob(credentialsRepo, tokenService, cfg.LockFilePath+".tokens")
	rssJob := job.NewRSSJob(rssService, cfg.LockFilePath+".rss")
	recoveryJob := job.NewRecoveryJob(postRepo, cfg.RecoveryTimeout, cfg.LockFilePath+".recovery")

	c := cron.New()
	c.AddFunc("@every 00h10m00s", refreshTokenJob.RefreshTokens)
	c.AddFunc(fmt.Sprintf("@every %s", cfg.RSSInterval), rssJob.Run)
	c.AddFunc("@every 00h10m00s", recoveryJob.Run)
	c.Start()

	worker := dispatch.NewWorker(publisher)

	go func() {
		server := asynq.NewServer(redisConn, asynq.Config{
			Concurrency: 10,
		})

		mux := asynq.NewServeMux()
		mux.HandleFunc(dispatch.TaskTypePublishPost, worker.HandlePublishTask)

		log.Println("Starting the Asynq server...")
		if err := server.Run(mux); err != nil {
			log.Fatalf("Could not start Asynq server: %v", err)
		}
	}()

	go func() {
		if err := app.Listen(cfg.ListenAddr); err != nil {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()
	log.Printf("Server is running on %s", cfg.ListenAddr)

	gracefulShutdown(app, db)
}

func closeDB(db *sql.DB) {
	fmt.Fprint(os.Stdout, "Closing database connection... ")
	if err := db.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to close database: %v", err)
		return
	}
	fmt.Fprintln(os.Stdout, "Done")
}

func gracefulShutdown(app *fiber.App, db *sql.DB) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	<-quit
	log.Println("Shutting down server...")

	if err := app.Shutdown(); err != nil {
		log.Fatalf("Failed to shut down server: %v", err)
	}

	closeDB(db)
	log.Println("Server shutdown complete.")
}
