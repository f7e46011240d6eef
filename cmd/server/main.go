package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"peakform/coach-app/internal/agent"
	"peakform/coach-app/internal/api"
	"peakform/coach-app/internal/bot"
	"peakform/coach-app/internal/config"
	"peakform/coach-app/internal/policy"
	"peakform/coach-app/internal/planner"
	"peakform/coach-app/internal/repository/mongo"
	"peakform/coach-app/internal/service"
	"peakform/coach-app/internal/storage"

	"github.com/gin-gonic/gin"
	"github.com/sashabaranov/go-openai"
	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "coach-app",
	Short: "Multi-domain personal coaching assistant",
	Long: "coach-app runs the coaching assistant: a Telegram bot and HTTP API " +
		"that plan and track weekly cardio, strength, mindfulness, nutrition and sleep.",
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the API server and the Telegram bot",
	Run: func(cmd *cobra.Command, args []string) {
		runServer()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", ".", "directory containing config.yaml")
	rootCmd.AddCommand(serveCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runServer() {
	log.Println("Starting Coach App Server...")

	// --- Configuration ---
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		log.Fatalf("FATAL: Could not load config: %v", err)
	}
	log.Println("Configuration loaded.")

	// --- Database Connection ---
	dbClient, err := mongo.ConnectDB(cfg.Database.URI)
	if err != nil {
		log.Fatalf("FATAL: Could not connect to MongoDB: %v", err)
	}
	defer func() {
		log.Println("Disconnecting MongoDB...")
		if err := mongo.DisconnectDB(dbClient); err != nil {
			log.Printf("ERROR: Failed to disconnect MongoDB: %v", err)
		}
	}()
	appDB := dbClient.Database(cfg.Database.Name)
	log.Println("Database connection established.")

	// --- Ensure Indexes ---
	log.Println("Ensuring database indexes...")
	go func() { // Run index creation concurrently/in background
		ctx, cancel := context.WithTimeout(context.Background(), 1*time.Minute)
		defer cancel()
		mongo.EnsureUserIndexes(ctx, appDB.Collection("users"))
		mongo.EnsureWeeklyPlanIndexes(ctx, appDB.Collection("weekly_plans"))
		mongo.EnsureSessionIndexes(ctx, appDB.Collection("sessions"))
		mongo.EnsureContextItemIndexes(ctx, appDB.Collection("context_items"))
		log.Println("Index creation process completed.")
	}()

	// --- Initialize Plan Archive ---
	var archiver storage.PlanArchiver
	if cfg.S3.BucketName != "" {
		log.Println("Initializing plan archive storage...")
		archiver, err = storage.NewS3Archiver(cfg.S3)
		if err != nil {
			log.Fatalf("FATAL: Failed to initialize S3 archive: %v", err)
		}
	} else {
		log.Println("No archive bucket configured, superseded plans will not be archived.")
		archiver = storage.NoopArchiver{}
	}

	// --- Initialize Repositories ---
	log.Println("Initializing repositories...")
	userRepo := mongo.NewMongoUserRepository(appDB)
	planRepo := mongo.NewMongoWeeklyPlanRepository(appDB)
	sessionRepo := mongo.NewMongoSessionRepository(appDB)
	onboardingRepo := mongo.NewMongoOnboardingRepository(appDB)
	contextRepo := mongo.NewMongoContextItemRepository(appDB)

	// --- Initialize Services ---
	log.Println("Initializing services...")
	table := policy.DefaultTable()
	generator := planner.NewOpenAIGenerator(cfg.OpenAI.APIKey, cfg.OpenAI.Model, table, cfg.OpenAI.Timeout)
	authService := service.NewAuthService(userRepo, cfg.JWT.Secret, cfg.JWT.Expiration)
	planService := service.NewPlanService(planRepo, sessionRepo, userRepo, contextRepo, generator, table, archiver)
	onboardingService := service.NewOnboardingService(onboardingRepo, userRepo, contextRepo, planService)

	// --- Initialize Assistant Loop ---
	catalog := agent.BuildCatalog(planService, contextRepo)
	chatClient := openai.NewClient(cfg.OpenAI.APIKey)
	loop := agent.NewLoop(chatClient, cfg.OpenAI.Model, catalog, cfg.Agent.MaxToolCalls, cfg.Agent.TurnTimeout, nil)

	// --- Start Telegram Bot ---
	botCtx, stopBot := context.WithCancel(context.Background())
	defer stopBot()
	if cfg.Telegram.Token != "" {
		tgBot, err := bot.New(cfg.Telegram.Token, onboardingService, planService, userRepo, loop)
		if err != nil {
			log.Fatalf("FATAL: Failed to initialize Telegram bot: %v", err)
		}
		go tgBot.Run(botCtx)
	} else {
		log.Println("No Telegram token configured, bot channel disabled.")
	}

	// --- Initialize Gin Engine ---
	router := gin.Default() // Includes Logger and Recovery middleware

	// --- Setup Routes ---
	log.Println("Setting up API routes...")
	api.SetupRoutes(router, cfg.JWT.Secret, authService, planService, contextRepo, loop)

	// --- Start HTTP Server ---
	server := &http.Server{
		Addr:        cfg.Server.Address,
		Handler:     router,
		ReadTimeout: 10 * time.Second,
		// Chat turns can run tool loops; give them the full turn budget.
		WriteTimeout: cfg.Agent.TurnTimeout + 10*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	log.Printf("Server starting on %s", cfg.Server.Address)

	// --- Graceful Shutdown ---
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("FATAL: ListenAndServe Error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")
	stopBot()

	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()

	if err := server.Shutdown(ctxShutdown); err != nil {
		log.Fatalf("FATAL: Server forced to shutdown: %v", err)
	}

	log.Println("Server exiting.")
}
