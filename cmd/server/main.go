package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/spf13/viper"

	"github.com/coopledger/backoffice/internal/database"
	"github.com/coopledger/backoffice/internal/handlers"
	mW "github.com/coopledger/backoffice/internal/middleware"
	"github.com/coopledger/backoffice/internal/services"
)

func main() {
	// Initialize config
	viper.SetConfigFile(".env") // explicitly point to .env file
	viper.AutomaticEnv()        // allow environment variables to override .env

	viper.BindEnv("database.host", "DATABASE_HOST")
	viper.BindEnv("database.port", "DATABASE_PORT")
	viper.BindEnv("database.user", "DATABASE_USER")
	viper.BindEnv("database.password", "DATABASE_PASSWORD")
	viper.BindEnv("database.name", "DATABASE_NAME")
	viper.BindEnv("database.ssl_mode", "DATABASE_SSL_MODE")

	viper.BindEnv("redis.host", "REDIS_HOST")
	viper.BindEnv("redis.port", "REDIS_PORT")
	viper.BindEnv("redis.password", "REDIS_PASSWORD")
	viper.BindEnv("redis.db", "REDIS_DB")

	viper.BindEnv("reports.cache_ttl", "REPORTS_CACHE_TTL")

	if err := viper.ReadInConfig(); err != nil {
		log.Printf("Config file not found, using defaults: %v", err)
	}

	// Initialize services
	db := database.InitDatabase()
	defer db.Close()

	redisClient := database.InitRedis()
	if redisClient != nil {
		defer redisClient.Close()
	}

	cache := services.NewReportCache(redisClient)
	postingService := services.NewPostingService(db, cache)
	reversalService := services.NewReversalService(db, cache)
	reportingService := services.NewReportingService(db, cache)
	agingService := services.NewAgingService(db)
	adbService := services.NewADBService(db)
	duplicateService := services.NewDuplicateService(db)
	reconciliationService := services.NewReconciliationService(db)

	journalHandler := handlers.NewJournalHandler(postingService, reversalService)
	reportsHandler := handlers.NewReportsHandler(reportingService, agingService, adbService, duplicateService, reconciliationService)

	// Setup router
	r := chi.NewRouter()

	// Middleware
	r.Use(mW.SecurityHeaders)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(60 * time.Second))

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Access-Control-Allow-Origin"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
	})

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/journal-entries", journalHandler.PostEntry)
		r.Delete("/journal-entries/{entryId}", journalHandler.DeleteEntry)
		r.Delete("/fund-transactions/{fundTransactId}", journalHandler.DeleteFundTransaction)
		r.Delete("/loan-repayments/{repaymentId}", journalHandler.DeleteLoanRepayment)
		r.Delete("/item-payments/{paymentId}", journalHandler.DeleteItemPayment)

		r.Get("/reports/monthly-revenue-expense", reportsHandler.MonthlyRevenueExpense)
		r.Get("/reports/net-surplus", reportsHandler.NetSurplus)
		r.Get("/reports/aging-loans", reportsHandler.AgingLoans)
		r.Get("/reports/aging-invoices", reportsHandler.AgingInvoices)
		r.Get("/reports/average-daily-balance", reportsHandler.AverageDailyBalance)
		r.Get("/reports/duplicates", reportsHandler.Duplicates)
		r.Get("/reports/patronage", reportsHandler.Patronage)
		r.Get("/reports/reconciliation", reportsHandler.Reconciliation)
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	// Start server
	server := &http.Server{
		Addr:         ":" + port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		log.Printf("Server starting on :%s", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Server shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server stopped")
}
