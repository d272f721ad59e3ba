package main

import (
	"context"
	"log"

	"github.com/gin-gonic/gin"
	"github.com/mecarvi/siteadmin/internal/api"
	"github.com/mecarvi/siteadmin/internal/config"
	"github.com/mecarvi/siteadmin/internal/db"
	"github.com/mecarvi/siteadmin/internal/handler"
	"github.com/mecarvi/siteadmin/internal/logging"
	"github.com/mecarvi/siteadmin/internal/resource"
	"github.com/mecarvi/siteadmin/internal/router"
	"github.com/mecarvi/siteadmin/internal/service"
	"github.com/mecarvi/siteadmin/internal/site"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := logging.New(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat, File: cfg.LogFile})
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	gin.SetMode(cfg.GinMode)

	// 初始化数据库
	if err := db.Init(cfg.DatabasePath); err != nil {
		logger.WithError(err).Fatal("failed to initialize database")
	}
	if err := db.EnsureUser(db.DB, cfg.SuperRootUserName, cfg.SuperRootPassword); err != nil {
		logger.WithError(err).Fatal("failed to ensure super root user")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	creds := service.NewCredentialService(db.DB, cfg.APIToken)
	client := api.NewClient(cfg.APIBaseURL, creds,
		api.WithTimeout(cfg.APITimeout()),
		api.WithLogger(logger),
		api.WithMetrics(api.NewMetrics(reg)),
	)

	policy := resource.ClearOnError
	if cfg.KeepStaleOnFetchError() {
		policy = resource.KeepStale
	}
	ed, err := site.NewEditor(client, site.Options{
		FetchPolicy: policy,
		SuccessTTL:  cfg.SuccessBannerTTL(),
		ErrorTTL:    cfg.ErrorBannerTTL(),
		Logger:      logger,
	})
	if err != nil {
		logger.WithError(err).Fatal("failed to build editor")
	}
	ed.Load(context.Background())

	// 设置并运行 Gin 服务器
	r := router.SetupRouter(router.Options{
		API:           handler.NewAPI(db.DB, ed, creds, logger),
		SessionSecret: cfg.SessionSecret,
		Gatherer:      reg,
		Logger:        logger,
	})
	logger.WithField("addr", cfg.ListenAddr).WithField("api", client.BaseURL()).Info("siteadmin listening")
	if err := r.Run(cfg.ListenAddr); err != nil {
		logger.WithError(err).Fatal("failed to run server")
	}
}
