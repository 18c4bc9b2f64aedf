package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"duel-arena-system/handlers"
	"duel-arena-system/models"
	"duel-arena-system/services"
	"duel-arena-system/utils"
	"duel-arena-system/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  No .env file found, reading environment variables directly")
	}

	app := fiber.New(fiber.Config{
		AppName: "duel-arena-system",
	})

	// Load allowed origins from environment variable
	allowedOriginsEnv := os.Getenv("ALLOWED_ORIGINS")
	if allowedOriginsEnv == "" {
		log.Println("⚠️  ALLOWED_ORIGINS environment variable not set, using default: http://localhost:3000")
		allowedOriginsEnv = "http://localhost:3000"
	}
	allowedOriginsList := strings.Split(allowedOriginsEnv, ",")
	for i, origin := range allowedOriginsList {
		allowedOriginsList[i] = strings.TrimSpace(origin)
	}
	allowedOriginsString := strings.Join(allowedOriginsList, ",")

	app.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOriginsString,
		AllowMethods:     "GET,POST,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, X-Requested-With, X-Operator-Secret",
		ExposeHeaders:    "Content-Length, Content-Type",
		AllowCredentials: true,
		MaxAge:           86400, // 24 hours
	}))

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("DATABASE_URL environment variable not set")
	}

	// Object storage is optional; without it, final standings are not exported.
	if err := utils.InitR2(); err != nil {
		log.Printf("⚠️  R2 not configured, standings export disabled: %v", err)
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatal("failed to connect to database:", err)
	}

	if err := db.AutoMigrate(
		&models.Snapshot{},
	); err != nil {
		log.Fatal("failed to migrate database:", err)
	}

	judgeBaseURL := os.Getenv("JUDGE_API_BASE_URL")
	if judgeBaseURL == "" {
		judgeBaseURL = "https://kenkoooo.com/atcoder"
	}
	judgeHost := os.Getenv("JUDGE_HOST")
	if judgeHost == "" {
		judgeHost = "atcoder.jp"
	}
	judge := services.NewJudgeClient(judgeBaseURL, judgeHost)

	pollInterval := 30 * time.Second
	if raw := os.Getenv("POLL_INTERVAL_SECONDS"); raw != "" {
		secs, err := strconv.Atoi(raw)
		if err != nil || secs < 5 {
			log.Fatalf("invalid POLL_INTERVAL_SECONDS %q (minimum 5)", raw)
		}
		pollInterval = time.Duration(secs) * time.Second
	}

	catalog := services.NewProblemCatalog()
	tournamentService := services.NewTournamentService(db, judge, catalog, pollInterval)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	catalogWorker := workers.NewCatalogSyncWorker(judge, catalog, 6*time.Hour)
	catalogWorker.Start(ctx)

	handlers.SetupTournamentRoutes(app, tournamentService)

	port := os.Getenv("PORT")
	if port == "" {
		port = "5300"
	}

	go func() {
		if err := app.Listen(":" + port); err != nil {
			log.Printf("Server error: %v", err)
		}
	}()

	log.Printf("✅ Server running on http://localhost:%s", port)
	log.Printf("✅ Judge API: %s (polling every %s)", judge.BaseURL, pollInterval)
	log.Println("✅ Catalog Sync Worker running")
	log.Printf("✅ CORS configured for origins: %s", allowedOriginsString)

	<-ctx.Done()
	log.Println("Shutting down server...")
	tournamentService.StopPollScheduler()
	if err := app.Shutdown(); err != nil {
		log.Printf("Shutdown error: %v", err)
	}
}
