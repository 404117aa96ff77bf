package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmerrifield20/reviewledger/internal/archive"
	"github.com/jmerrifield20/reviewledger/internal/handler"
	"github.com/jmerrifield20/reviewledger/internal/health"
	"github.com/jmerrifield20/reviewledger/internal/ledger"
	"github.com/jmerrifield20/reviewledger/internal/review"
	"github.com/jmerrifield20/reviewledger/internal/scoring"
	"github.com/jmerrifield20/reviewledger/internal/session"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync() //nolint:errcheck

	if err := run(logger); err != nil {
		logger.Fatal("reviewd exited with error", zap.Error(err))
	}
}

func run(logger *zap.Logger) error {
	// ── Configuration ────────────────────────────────────────────────────────
	viper.SetConfigName("reviewd")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("configs")
	viper.AddConfigPath(".")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.grpc_port", 9090)
	viper.SetDefault("server.cors_origins", []string{"http://localhost:3000"})
	viper.SetDefault("server.rate_limit_rps", 20)
	viper.SetDefault("server.issuer", "reviewd")
	viper.SetDefault("ledger.policy", ledger.PolicyDuplicate)
	viper.SetDefault("ledger.retention", string(session.RetentionSession))
	viper.SetDefault("session.idle_ttl", "30m")
	viper.SetDefault("session.token_secret", "")
	viper.SetDefault("session.token_ttl", "24h")
	viper.SetDefault("scoring.endpoint", "")
	viper.SetDefault("scoring.timeout", "5s")
	viper.SetDefault("database.url", "")
	viper.SetDefault("admin.secret_hash", "")

	if err := viper.ReadInConfig(); err != nil {
		var cfgNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &cfgNotFound) {
			return fmt.Errorf("read config: %w", err)
		}
		logger.Warn("no config file found, using defaults and env vars")
	}

	policy, err := ledger.PolicyByName(viper.GetString("ledger.policy"))
	if err != nil {
		return fmt.Errorf("ledger policy: %w", err)
	}
	retention, err := session.ParseRetention(viper.GetString("ledger.retention"))
	if err != nil {
		return fmt.Errorf("ledger retention: %w", err)
	}
	logger.Info("ledger configured",
		zap.String("policy", policy.Name()),
		zap.String("retention", string(retention)),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	healthSrv := health.NewServer(logger)

	// ── Archive (optional) ───────────────────────────────────────────────────
	var arch archive.Archive = archive.Nop{}
	var counter handler.ArchiveCounter
	if dbURL := viper.GetString("database.url"); dbURL != "" {
		db, err := pgxpool.New(ctx, dbURL)
		if err != nil {
			return fmt.Errorf("connect to postgres: %w", err)
		}
		defer db.Close()

		if err := db.Ping(ctx); err != nil {
			return fmt.Errorf("ping postgres: %w", err)
		}
		pg := archive.NewPostgresArchive(db, logger)
		if err := pg.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("archive schema: %w", err)
		}
		arch, counter = pg, pg
		healthSrv.AddProbe("archive", db.Ping)
		logger.Info("archive: postgres")
	} else {
		logger.Info("archive: disabled (set database.url to enable)")
	}

	// ── Scoring oracle ───────────────────────────────────────────────────────
	var scorer scoring.Scorer
	if endpoint := viper.GetString("scoring.endpoint"); endpoint != "" {
		scorer = scoring.NewHTTPScorer(endpoint, viper.GetDuration("scoring.timeout"), logger)
		logger.Info("scoring oracle: http", zap.String("endpoint", endpoint))
	} else {
		scorer = scoring.NewLexicalScorer(logger)
		logger.Info("scoring oracle: lexical (set scoring.endpoint to use a model server)")
	}

	// ── Sessions ─────────────────────────────────────────────────────────────
	store := session.NewStore(policy, viper.GetDuration("session.idle_ttl"), logger)
	tokens, err := session.NewTokenIssuer(
		[]byte(viper.GetString("session.token_secret")),
		viper.GetString("server.issuer"),
		viper.GetDuration("session.token_ttl"),
	)
	if err != nil {
		return fmt.Errorf("session tokens: %w", err)
	}
	if viper.GetString("session.token_secret") == "" {
		logger.Warn("session.token_secret not set; tokens will not survive a restart")
	}
	store.StartEviction(ctx, time.Minute)

	// ── Wire up layers ────────────────────────────────────────────────────────
	svc := review.NewService(scorer, arch, logger)
	svc.SetRecorder(handler.MetricsRecorder{})

	sessionHandler := handler.NewSessionHandler(store, tokens, retention, logger)
	reviewHandler := handler.NewReviewHandler(svc, sessionHandler, logger)
	ledgerHandler := handler.NewLedgerHandler(sessionHandler, logger)
	adminHandler := handler.NewAdminHandler(store, counter, viper.GetString("admin.secret_hash"), logger)

	// ── HTTP Router ───────────────────────────────────────────────────────────
	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())

	corsOrigins := viper.GetStringSlice("server.cors_origins")
	router.Use(cors.New(cors.Config{
		AllowOrigins:     corsOrigins,
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "Accept"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: !containsWildcard(corsOrigins),
		MaxAge:           12 * time.Hour,
	}))

	// Security headers
	router.Use(func(c *gin.Context) {
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Next()
	})

	// Request body size limit (64 KB)
	router.Use(func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, 1<<16)
		c.Next()
	})

	if rps := viper.GetInt("server.rate_limit_rps"); rps > 0 {
		router.Use(handler.RateLimiter(ctx, rps, rps*2, 10*time.Minute))
	}
	router.Use(handler.PrometheusMiddleware())
	router.Use(requestLogger(logger))

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "policy": policy.Name()})
	})
	router.GET("/metrics", handler.MetricsHandler())

	v1 := router.Group("/api/v1")
	sessionHandler.Register(v1)
	reviewHandler.Register(v1)
	ledgerHandler.Register(v1)
	adminHandler.Register(v1)

	// ── Background: publish active session gauge ──────────────────────────────
	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				handler.SetActiveSessions(float64(store.Len()))
			case <-ctx.Done():
				return
			}
		}
	}()

	// ── Servers ───────────────────────────────────────────────────────────────
	httpPort := viper.GetInt("server.port")
	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", httpPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("reviewd HTTP listening", zap.Int("port", httpPort))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP listen error", zap.Error(err))
		}
	}()

	grpcPort := viper.GetInt("server.grpc_port")
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", grpcPort))
	if err != nil {
		return fmt.Errorf("grpc listen on :%d: %w", grpcPort, err)
	}
	go func() {
		logger.Info("reviewd gRPC health listening", zap.Int("port", grpcPort))
		if err := healthSrv.Serve(lis); err != nil {
			logger.Error("gRPC serve error", zap.Error(err))
		}
	}()
	healthSrv.Refresh(ctx)
	go healthSrv.Watch(ctx, 30*time.Second)

	// ── Graceful shutdown ──────────────────────────────────────────────────────
	<-ctx.Done()
	logger.Info("shutting down reviewd...")

	healthSrv.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP shutdown error", zap.Error(err))
	}

	logger.Info("reviewd stopped")
	return nil
}

// containsWildcard returns true if origins includes "*".
func containsWildcard(origins []string) bool {
	for _, o := range origins {
		if strings.TrimSpace(o) == "*" {
			return true
		}
	}
	return false
}

// requestLogger returns a Gin middleware that logs each request with zap.
func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}
