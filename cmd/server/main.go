package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"boostpanel/internal/auth"
	"boostpanel/internal/cache"
	"boostpanel/internal/config"
	cronrunner "boostpanel/internal/cron"
	"boostpanel/internal/db"
	"boostpanel/internal/handler"
	"boostpanel/internal/logger"
	"boostpanel/internal/provider"
	gormrepository "boostpanel/internal/repository/gorm"
	"boostpanel/internal/service"

	_ "boostpanel/docs"
)

func main() {
	cfgPath := os.Getenv("BP_CONFIG")
	if cfgPath == "" {
		cfgPath = "config/config.yaml"
	}

	envOnly := false
	if envOnlyRaw := os.Getenv("BP_ENV_ONLY"); envOnlyRaw != "" {
		envOnly = strings.EqualFold(envOnlyRaw, "true") || envOnlyRaw == "1"
	}

	cfg, err := config.Load(cfgPath, envOnly)
	if err != nil {
		panic(err)
	}

	logger, err := logger.New(cfg.Log)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	dbConn, err := db.Open(cfg.DB)
	if err != nil {
		logger.Fatal("db open failed", zap.Error(err))
	}
	defer db.Close(dbConn)

	if err := db.AutoMigrate(dbConn); err != nil {
		logger.Fatal("auto-migrate failed", zap.Error(err))
	}

	store := gormrepository.New(dbConn.Gorm)
	settingsSvc := &service.SystemSettingsService{Repo: store}
	if err := settingsSvc.EnsureDefaultSwitches(context.Background()); err != nil {
		logger.Warn("init default system switches failed", zap.Error(err))
	}

	var flagCache cache.Store
	if cfg.Redis.Enabled {
		flagCache = cache.NewRedisStore(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	} else {
		flagCache = cache.NewMemoryStore()
	}

	statusClients := map[provider.Key]provider.StatusClient{
		provider.Smmstone:  newStatusClient(provider.Smmstone, cfg.Providers.Smmstone),
		provider.Panelzone: newStatusClient(provider.Panelzone, cfg.Providers.Panelzone),
		provider.Boostline: newStatusClient(provider.Boostline, cfg.Providers.Boostline),
		provider.Primesmm:  newStatusClient(provider.Primesmm, cfg.Providers.Primesmm),
	}

	historyWriter := &service.HistoryWriter{Repo: store, Logger: logger}
	settlementSvc := &service.SettlementService{
		Repo:    store,
		Logger:  logger,
		History: historyWriter,
	}
	statusSyncSvc := &service.StatusSyncService{
		Repo:       store,
		Logger:     logger,
		Config:     cfg.StatusSync,
		Flags:      settingsSvc,
		Settlement: settlementSvc,
		History:    historyWriter,
		Clients:    statusClients,
	}

	var bulkClient *provider.BulkClient
	if cfg.BulkCheck.BaseURL != "" {
		bulkHTTP := &http.Client{Timeout: cfg.BulkCheck.Timeout}
		bulkClient = provider.NewBulkClient(bulkHTTP, cfg.BulkCheck.BaseURL, cfg.BulkCheck.APIKey)
	}
	bulkCheckSvc := &service.BulkCheckService{
		Repo:     store,
		Logger:   logger,
		Config:   cfg.BulkCheck,
		Flags:    settingsSvc,
		Cache:    flagCache,
		Client:   bulkClient,
		Fallback: statusSyncSvc,
	}

	ordersSvc := &service.OrderService{Repo: store, Logger: logger, History: historyWriter}
	depositsSvc := &service.DepositService{Repo: store, Logger: logger, Flags: settingsSvc}
	accountsSvc := &service.AccountService{Repo: store}
	jwt := auth.JWT{Secret: []byte(cfg.Auth.JWTSecret), TokenTTL: cfg.Auth.TokenTTL}

	if strings.EqualFold(cfg.App.Env, "dev") {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(corsMiddleware())

	healthHandler := &handler.HealthHandler{DB: dbConn.Gorm}
	healthHandler.Register(engine)
	authHandler := &handler.AuthHandler{Repo: store, Accounts: accountsSvc, JWT: jwt}
	authHandler.Register(engine)
	serviceHandler := &handler.ServiceHandler{Repo: store}
	serviceHandler.Register(engine)
	orderHandler := &handler.OrderHandler{
		Repo:     store,
		Orders:   ordersSvc,
		Sync:     statusSyncSvc,
		Deposits: depositsSvc,
		JWT:      jwt,
	}
	orderHandler.Register(engine)
	adminHandler := &handler.AdminHandler{
		Repo:       store,
		Orders:     ordersSvc,
		Sync:       bulkCheckSvc,
		Settlement: settlementSvc,
		Deposits:   depositsSvc,
		Flags:      settingsSvc,
		Cache:      flagCache,
		JWT:        jwt,
	}
	adminHandler.Register(engine)

	engine.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	srv := &http.Server{
		Addr:    cfg.Server.HTTPAddr,
		Handler: engine,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Cron.Enabled {
		cronRunner := cronrunner.New(logger, ctx)
		_, err = cronRunner.Add(cfg.Cron.StatusSync, bulkCheckSvc.RunScheduled)
		if err != nil {
			logger.Warn("cron register status sync failed", zap.Error(err))
		}
		cronRunner.Start()
		defer cronRunner.Stop()
	}

	if bulkClient != nil {
		probe := &service.DelegationProbe{
			Logger: logger,
			Config: cfg.Probe,
			Flags:  settingsSvc,
			Cache:  flagCache,
			Client: bulkClient,
		}
		go func() {
			if err := probe.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Warn("delegation probe stopped", zap.Error(err))
			}
		}()
	}

	errCh := make(chan error, 2)

	go func() {
		logger.Info("http server starting", zap.String("addr", cfg.Server.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown requested")
	case err := <-errCh:
		logger.Error("http server failed", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown failed", zap.Error(err))
	}
}

func newStatusClient(key provider.Key, cfg config.ProviderConfig) provider.StatusClient {
	timeout := cfg.StatusTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	httpClient := &http.Client{Timeout: timeout}
	return provider.NewHTTPStatusClient(httpClient, key, cfg.BaseURL, cfg.APIKey)
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
