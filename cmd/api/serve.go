package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	_ "expenseflow/api/swagger" // swagger docs
	"expenseflow/internal/config"
	"expenseflow/internal/database"
	"expenseflow/internal/handler"
	"expenseflow/internal/logger"
	"expenseflow/internal/metrics"
	"expenseflow/internal/middleware"
	"expenseflow/internal/repository"
	"expenseflow/internal/service"
	"expenseflow/internal/websocket"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"gorm.io/gorm"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		log := logger.New(cfg.Log)

		db, err := database.Connect(cfg.Database, log)
		if err != nil {
			return fmt.Errorf("database connection failed: %w", err)
		}
		defer closeDB(db)
		if err := database.Migrate(db); err != nil {
			return fmt.Errorf("database migration failed: %w", err)
		}
		if sqlDB, err := db.DB(); err == nil {
			if err := metrics.RegisterDB(sqlDB, cfg.Database.Driver); err != nil {
				log.WithError(err).Warn("database pool metrics not registered")
			}
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		hub := websocket.NewHub(log)
		go hub.Run(ctx.Done())

		srv := &http.Server{
			Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
			Handler: newRouter(cfg, db, hub, log),
		}
		errCh := make(chan error, 1)
		go func() {
			log.WithField("addr", srv.Addr).Info("server listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
			close(errCh)
		}()

		select {
		case err := <-errCh:
			if err != nil {
				return fmt.Errorf("server failed: %w", err)
			}
			return nil
		case <-ctx.Done():
		}

		log.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}
		log.Info("server exited")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

// newRouter wires repositories, services and handlers onto a gin engine.
func newRouter(cfg *config.Config, db *gorm.DB, hub *websocket.Hub, log *logrus.Logger) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	auth := middleware.NewAuthenticator(cfg.Auth.JWTSecret)
	if cfg.Auth.JWTSecret == "" {
		log.Warn("JWT_SECRET is not set, using the development secret")
	}

	// Set up dependencies (Repository -> Service -> Handler)
	txManager := repository.NewTransactionManager(db)
	directoryRepo := repository.NewDirectoryRepository(db)
	auditService := service.NewAuditService(repository.NewAuditRepository(db))
	directoryService := service.NewDirectoryService(directoryRepo, txManager, log)
	ruleService := service.NewRuleService(repository.NewRuleRepository(db), directoryRepo, auditService, txManager, log)
	claimService := service.NewClaimService(repository.NewClaimRepository(db), directoryRepo, ruleService, auditService,
		txManager, hub, cfg.Approval, log)

	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestLog(log))

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.CORS.AllowedOrigins
	corsConfig.AllowCredentials = true
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", "Accept"}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	router.Use(cors.New(corsConfig))

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	router.GET("/metrics", gin.WrapH(metrics.Handler()))
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "OK", "websocket_clients": hub.Clients()})
	})
	router.GET("/ws", func(c *gin.Context) {
		websocket.ServeWs(hub, auth, c)
	})

	api := router.Group("")
	handler.NewClaimHandler(claimService, auth).RegisterRoutes(api)
	handler.NewRuleHandler(ruleService, auth).RegisterRoutes(api)
	handler.NewApproverHandler(directoryService, auth).RegisterRoutes(api)
	handler.NewAuditHandler(auditService, auth).RegisterRoutes(api)

	return router
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

func closeDB(db *gorm.DB) {
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.Close()
	}
}
