// main.go
// Ombra secure transport API
// Mission lifecycle, chain-of-custody audit logging, and pricing over Firestore

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ombra/audit"
	"ombra/auth"
	"ombra/codegen"
	"ombra/config"
	"ombra/db"
	"ombra/handlers"
	"ombra/middleware"
	"ombra/mission"
	"ombra/models"
	"ombra/policy"
	"ombra/report"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	if err := godotenv.Load(); err != nil {
		fmt.Println("no .env file found, using system environment variables")
	}

	cfg := config.Load()
	cfg.Validate()

	logger := newLogger(cfg.Logging)
	defer logger.Sync()

	logger.Infow("starting ombra api server",
		"environment", cfg.Server.Environment,
		"port", cfg.Server.Port,
	)

	ctx := context.Background()
	store, err := db.NewFirestoreDB(ctx, cfg.Firebase.ProjectID, cfg.Firebase.CredentialsPath)
	if err != nil {
		logger.Fatalw("failed to initialize firestore", "error", err)
	}
	defer store.Close()

	jwtManager := auth.NewJWTManager(
		cfg.JWT.Secret,
		cfg.JWT.Expiration,
		cfg.JWT.RefreshTokenExpiration,
	)

	// Domain services.
	codes := codegen.NewGenerator(store, logger)
	auditSvc := audit.NewService(store, logger)
	policySvc := policy.NewService(store, logger)
	missionSvc := mission.NewService(store, codes, cfg.Pricing.Currency, logger)
	reportSvc := report.NewService(store, auditSvc, logger)

	seedCtx, cancelSeed := context.WithTimeout(ctx, cfg.Pricing.StoreTimeout)
	if err := policySvc.SeedIfAbsent(seedCtx); err != nil {
		cancelSeed()
		logger.Fatalw("failed to seed security levels", "error", err)
	}
	cancelSeed()

	// Handlers.
	authHandler := handlers.NewAuthHandler(store, jwtManager, logger)
	missionHandler := handlers.NewMissionHandler(missionSvc, policySvc, cfg.Pricing.StoreTimeout, logger)
	pricingHandler := handlers.NewPricingHandler(cfg.Pricing.Currency, logger)
	levelHandler := handlers.NewLevelHandler(policySvc, cfg.Pricing.StoreTimeout, logger)
	reportHandler := handlers.NewReportHandler(reportSvc, cfg.Pricing.StoreTimeout, logger)

	rateLimiter := middleware.NewRateLimiter(cfg.RateLimit.Requests, cfg.RateLimit.Window)
	rateLimiter.CleanupOldLimiters()

	mux := http.NewServeMux()

	// Public routes.
	mux.HandleFunc("/health", handleHealth)
	mux.HandleFunc("/api/login", authHandler.Login)
	mux.HandleFunc("/api/refresh", authHandler.RefreshToken)

	authMiddleware := middleware.AuthMiddleware(jwtManager, store)
	clientOnly := middleware.RequireRole(models.RoleClient, models.RoleAdmin)
	driverOnly := middleware.RequireRole(models.RoleDriver, models.RoleAdmin)
	adminOnly := middleware.RequireRole(models.RoleAdmin)

	// Quotes and levels, any authenticated user.
	mux.Handle("/api/quote", authMiddleware(http.HandlerFunc(pricingHandler.Quote)))
	mux.Handle("/api/security-levels", authMiddleware(http.HandlerFunc(levelHandler.Available)))

	// Client mission surface.
	mux.Handle("/api/missions", authMiddleware(clientOnly(http.HandlerFunc(missionHandler.Create))))
	mux.Handle("/api/missions/get", authMiddleware(http.HandlerFunc(missionHandler.Get)))
	mux.Handle("/api/missions/mine", authMiddleware(clientOnly(http.HandlerFunc(missionHandler.ClientMissions))))
	mux.Handle("/api/missions/status", authMiddleware(http.HandlerFunc(missionHandler.UpdateStatus)))
	mux.Handle("/api/missions/watch", authMiddleware(http.HandlerFunc(missionHandler.Watch)))
	mux.Handle("/api/missions/watch/mine", authMiddleware(http.HandlerFunc(missionHandler.WatchMine)))

	// Driver surface.
	mux.Handle("/api/driver/missions", authMiddleware(driverOnly(http.HandlerFunc(missionHandler.DriverMissions))))
	mux.Handle("/api/driver/missions/view", authMiddleware(driverOnly(http.HandlerFunc(missionHandler.DriverMissionView))))
	mux.Handle("/api/driver/missions/scan", authMiddleware(driverOnly(http.HandlerFunc(missionHandler.RecordScan))))

	// Admin dispatch and policy administration.
	mux.Handle("/api/missions/assign", authMiddleware(adminOnly(http.HandlerFunc(missionHandler.Assign))))
	mux.Handle("/api/admin/driver-eligibility", authMiddleware(adminOnly(http.HandlerFunc(levelHandler.DriverEligibility))))
	mux.Handle("/api/admin/security-levels", authMiddleware(adminOnly(http.HandlerFunc(levelHandler.Update))))

	// Chain-of-custody reports.
	mux.Handle("/api/reports/generate", authMiddleware(http.HandlerFunc(reportHandler.Generate)))
	mux.Handle("/api/reports/get", authMiddleware(http.HandlerFunc(reportHandler.Get)))
	mux.Handle("/api/reports/download", authMiddleware(http.HandlerFunc(reportHandler.Download)))

	handler := middleware.CORSMiddleware(cfg.CORS.AllowedOrigins)(mux)
	handler = rateLimiter.Middleware()(handler)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 40 * time.Second, // mission watch long-polls for 30s
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Infow("server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalw("server failed to start", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Infow("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Errorw("server forced to shutdown", "error", err)
	}

	logger.Infow("server stopped")
}

func newLogger(cfg config.LoggingConfig) *zap.SugaredLogger {
	var zapCfg zap.Config
	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
	}
	if level, err := zap.ParseAtomicLevel(cfg.Level); err == nil {
		zapCfg.Level = level
	}
	logger, err := zapCfg.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	return logger.Sugar()
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"status":"healthy","timestamp":%d,"version":"1.0.0"}`, time.Now().Unix())
}
