package main

import (
	"log"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"

	"recetario/internal/config"
	"recetario/internal/database"
	"recetario/internal/handlers"
	"recetario/internal/middleware"
	"recetario/internal/routes"
	"recetario/internal/services"
	"recetario/pkg/utils"
)

func main() {
	// Load env
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}
	// Load configuration
	cfg := config.Load()

	utils.SetHashTimeCost(cfg.HashTimeCost)

	// Connect to PostgreSQL
	log.Printf("Connecting to PostgreSQL...")
	if err := database.ConnectPostgres(cfg.PostgresURI); err != nil {
		log.Fatal("Failed to connect to PostgreSQL:", err)
	}
	defer database.DisconnectPostgres()

	// Connect to Redis
	log.Printf("Connecting to Redis...")
	if err := database.ConnectRedis(cfg.RedisURI); err != nil {
		log.Fatal("Failed to connect to Redis:", err)
	}
	defer database.DisconnectRedis()

	// Make sure the upload root exists before serving from it
	if err := os.MkdirAll(cfg.UploadRoot, 0o755); err != nil {
		log.Fatal("Failed to create upload root:", err)
	}

	// Wire services
	userStore := services.NewPostgresUserStore(database.PostgresDB)
	sessionService := services.NewSessionService(database.RedisClient, cfg.SessionTTL)
	namespace := services.NewNamespace(cfg.UploadRoot)
	assetPipeline := services.NewAssetPipeline(namespace, cfg.MaxUploadSize, cfg.AvatarSize, cfg.CoverW, cfg.CoverH)
	accountService := services.NewAccountService(userStore, sessionService, assetPipeline, namespace)

	handlers.Init(cfg, accountService, userStore)

	// Setup router
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS", "PATCH"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Requested-With"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if cfg.IsProduction() {
		for _, mw := range middleware.ProductionSecurity(cfg.AllowedHost) {
			r.Use(mw)
		}
		log.Println("✅ Production security enabled (security headers, host check)")
	}

	r.Use(middleware.LoadSession(sessionService))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})

	// Setup routes
	routes.SetupRoutes(r, cfg.UploadRoot)

	log.Printf("🚀 Recetario backend running on :%s", cfg.Port)
	if err := http.ListenAndServe(":"+cfg.Port, r); err != nil {
		log.Fatal("Failed to start server:", err)
	}
}
