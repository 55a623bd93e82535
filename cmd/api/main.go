package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Maryoma-commits/NexuesPc/internal/api"
	"github.com/Maryoma-commits/NexuesPc/internal/catalog"
	"github.com/Maryoma-commits/NexuesPc/internal/config"
	"github.com/Maryoma-commits/NexuesPc/internal/history"
	"github.com/Maryoma-commits/NexuesPc/internal/pkg/logger"
	"github.com/Maryoma-commits/NexuesPc/internal/pkg/metrics"
	"github.com/Maryoma-commits/NexuesPc/internal/pkg/notify"
	"github.com/Maryoma-commits/NexuesPc/internal/pkg/queue"
	"github.com/Maryoma-commits/NexuesPc/internal/pkg/sitelock"
	"github.com/Maryoma-commits/NexuesPc/internal/scraper"

	"github.com/redis/go-redis/v9"
)

// main 是聚合服务的入口函数。
//
// 它负责：
// 1. 加载配置并初始化日志
// 2. 组装目录存储、抓取编排与 API 服务器
// 3. 启动定时抓取循环与 HTTP 服务
// 4. 优雅关闭
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	appLogger := logger.NewDefault(cfg.App.LogLevel)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics.Init(cfg.App.WorkerPoolSize)

	// Redis 不可用时站点锁和限速退化为直通，服务照常启动
	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       0,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			appLogger.Warn("redis unavailable, site locks and rate limits disabled",
				slog.String("addr", cfg.Redis.Addr),
				slog.String("error", err.Error()))
			_ = rdb.Close()
			rdb = nil
		}
	}

	hist, err := history.Open(cfg.MySQL.DSN, appLogger)
	if err != nil {
		appLogger.Warn("scrape history disabled",
			slog.String("error", err.Error()))
		hist = nil
	}

	store := catalog.NewStore(
		cfg.Catalog.Path,
		cfg.Catalog.BackupDir,
		appLogger,
		catalog.NewReconciler(appLogger, cfg.Catalog.ManualSites),
	)

	fetchers := scraper.NewFetchers(cfg, rdb, appLogger)
	pool := queue.NewQueue(appLogger, cfg.App.WorkerPoolSize, cfg.App.QueueCapacity)
	lock := sitelock.New(rdb, cfg.App.SiteLockTTL)
	notifier := notify.NewEmailNotifier(&cfg.Email, appLogger)

	svc := scraper.NewService(appLogger, store, fetchers, pool, lock, notifier, hist, cfg.App.ScrapeInterval)
	go svc.Start(ctx)

	srv := api.NewServer(cfg, appLogger, rdb, store, svc, hist)

	httpServer := &http.Server{
		Addr:    cfg.App.HTTPAddr,
		Handler: srv.Router(),
	}

	go func() {
		appLogger.Info("api server listening", slog.String("addr", cfg.App.HTTPAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Error("server run failed", slog.String("error", err.Error()))
		}
	}()

	<-ctx.Done()
	appLogger.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("http shutdown failed", slog.String("error", err.Error()))
	}
	pool.Shutdown()
	if err := srv.Close(); err != nil {
		appLogger.Error("close resources failed", slog.String("error", err.Error()))
	}
	appLogger.Info("stopped gracefully")
}
