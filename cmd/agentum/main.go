// Package main is the entry point for the agentum server: the HTTP/SSE
// surface over the session runner facade.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/extractumio/agentum/internal/authsvc"
	"github.com/extractumio/agentum/internal/common/config"
	"github.com/extractumio/agentum/internal/common/constants"
	"github.com/extractumio/agentum/internal/common/httpmw"
	"github.com/extractumio/agentum/internal/common/logger"
	"github.com/extractumio/agentum/internal/httpapi"
	"github.com/extractumio/agentum/internal/runner"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.NewLogger(logger.LoggingConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		OutputPath: cfg.Logging.OutputPath,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger.SetDefault(log)

	log.Info("starting agentum",
		zap.Int("port", cfg.Server.Port),
		zap.String("database", cfg.Database.Path),
		zap.Bool("sandbox_enabled", cfg.Sandbox.Enabled),
	)

	facade, err := runner.NewFacade(cfg, log)
	if err != nil {
		log.Fatal("failed to initialize runner facade", zap.Error(err))
	}
	defer facade.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := facade.Startup(ctx); err != nil {
		log.Fatal("startup reconciliation failed", zap.Error(err))
	}

	auth, err := authsvc.New(cfg.Auth.JWTSecretFile, cfg.Auth.TokenDurationTime())
	if err != nil {
		log.Fatal("failed to initialize auth service", zap.Error(err))
	}

	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware(cfg.CORS.Origins))
	router.Use(httpmw.RequestLogger(log, "agentum"))
	router.Use(httpmw.OtelTracing("agentum"))

	handler := httpapi.NewHandler(facade, auth, log)
	httpapi.RegisterHealth(router, handler)
	httpapi.RegisterRoutes(router.Group("/api/v1"), handler)

	// Stale sessions left running by a crash are reconciled once at startup
	// (facade.Startup above); this ticker catches any session a missed or
	// failed Cancel leaves running past its deadline during normal operation.
	go func() {
		ticker := time.NewTicker(constants.DefaultCleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n, err := facade.Lifecycle.CleanupStaleSessions(ctx); err != nil {
					log.Error("periodic stale session cleanup failed", zap.Error(err))
				} else if n > 0 {
					log.Info("periodic cleanup reconciled stale sessions", zap.Int("count", n))
				}
			}
		}
	}()

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeoutDuration(),
		WriteTimeout: cfg.Server.WriteTimeoutDuration(),
	}

	go func() {
		log.Info("HTTP server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down agentum")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), constants.ShutdownDrainTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", zap.Error(err))
	}

	log.Info("agentum stopped")
}

// corsMiddleware allows the configured origins (or none, if unset) to
// call the API from a browser, mirroring the bearer-token-over-query-param
// support needed for the SSE endpoint.
func corsMiddleware(origins []string) gin.HandlerFunc {
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		allowed[o] = true
	}
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin != "" && (allowed["*"] || allowed[origin]) {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Authorization")
		}
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
