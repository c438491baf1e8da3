package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bavena95/mode-app/pkg/config"
	"github.com/bavena95/mode-app/pkg/db"
	"github.com/bavena95/mode-app/pkg/db/queries"
	"github.com/bavena95/mode-app/pkg/handlers"
	"github.com/bavena95/mode-app/pkg/identity"
	"github.com/bavena95/mode-app/pkg/llm"
	"github.com/bavena95/mode-app/pkg/provider"
	"github.com/bavena95/mode-app/pkg/services"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

func main() {
	log.SetOutput(gin.DefaultWriter)
	log.SetFormatter(&log.JSONFormatter{})
	log.Info("Starting mode-app API...")

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Warnf("Unknown LOG_LEVEL %q, using info", cfg.LogLevel)
		level = log.InfoLevel
	}
	log.SetLevel(level)
	if level != log.DebugLevel && level != log.TraceLevel {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := db.InitDB(cfg.DatabaseURL); err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.CloseDB()

	userQueries := queries.NewUserQueries(db.DB)
	projectQueries := queries.NewProjectQueries(db.DB)
	generationQueries := queries.NewGenerationQueries(db.DB)

	tokens, err := services.NewTokenService(cfg.JwtSecret, cfg.JwtAlgorithm, cfg.AccessTokenExpire)
	if err != nil {
		log.Fatalf("Failed to initialize session tokens: %v", err)
	}

	var verifier identity.Verifier = identity.NewStackAuthVerifier(
		cfg.StackAuthBaseURL, cfg.StackAuthProjectID, cfg.StackAuthSecretKey, cfg.IdentityTimeout)
	if cfg.RedisURL != "" {
		redisClient, err := identity.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			log.Fatalf("Failed to initialize identity cache: %v", err)
		}
		defer redisClient.Close()
		verifier = identity.NewCachingVerifier(verifier, identity.NewRedisCache(redisClient), cfg.IdentityCacheTTL)
		log.Infof("Identity cache enabled, ttl %s", cfg.IdentityCacheTTL)
	}
	verifier = services.NewSessionVerifier(tokens, verifier)

	opts := []services.ManagerOption{services.WithPostSubmitCheck(cfg.PostSubmitCheckDelay)}
	if cfg.GeminiAPIKey != "" {
		enhancer, err := llm.NewGeminiService(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			log.Fatalf("Failed to initialize prompt enhancer: %v", err)
		}
		defer enhancer.Close()
		opts = append(opts, services.WithPromptEnhancer(enhancer))
		log.Infof("Prompt enhancement enabled with %s", cfg.GeminiModel)
	}

	fal := provider.NewFalClient(cfg.FalKey, cfg.FalQueueURL, cfg.ProviderTimeout)
	manager := services.NewGenerationManager(generationQueries, projectQueries, fal, opts...)
	defer manager.Close()

	// Closed once the reconciler has returned; stays nil when it is disabled.
	var reconcileDone chan struct{}
	if cfg.ReconcileInterval > 0 {
		reconciler := services.NewReconciler(generationQueries, manager,
			cfg.ReconcileInterval, cfg.ReconcileBatchSize, cfg.ReconcileWorkers)
		reconcileDone = make(chan struct{})
		go func() {
			defer close(reconcileDone)
			reconciler.Run(ctx)
		}()
	}

	apiHandlers := handlers.NewHandlers(manager, projectQueries, services.NewUserDirectory(userQueries), tokens, db.DB)
	router := handlers.NewRouter(apiHandlers, verifier, cfg.AllowedOrigins)

	srv := &http.Server{
		Addr:    cfg.Host + ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		log.Infof("Server listening on %s:%s", cfg.Host, cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("Failed to start server: %v", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorf("Server forced to shutdown: %v", err)
		os.Exit(1)
	}
	if reconcileDone != nil {
		<-reconcileDone
	}

	log.Info("Server exited gracefully.")
}
