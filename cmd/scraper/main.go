package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

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

// main 是一次性抓取的入口函数，抓完即退出。
//
// 不带参数时抓取所有启用站点，-site 指定单个站点。
// 适合在 cron 或手工排查时使用，与常驻服务共用站点锁，
// 不会和定时抓取撞车。
func main() {
	var (
		configPath = flag.String("config", "", "config file path")
		site       = flag.String("site", "", "scrape a single site instead of all")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	appLogger := logger.NewDefault(cfg.App.LogLevel)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics.Init(cfg.App.WorkerPoolSize)

	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       0,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			appLogger.Warn("redis unavailable, site locks and rate limits disabled",
				slog.String("error", err.Error()))
			_ = rdb.Close()
			rdb = nil
		}
		defer func() {
			if rdb != nil {
				_ = rdb.Close()
			}
		}()
	}

	hist, err := history.Open(cfg.MySQL.DSN, appLogger)
	if err != nil {
		appLogger.Warn("scrape history disabled", slog.String("error", err.Error()))
		hist = nil
	}

	store := catalog.NewStore(
		cfg.Catalog.Path,
		cfg.Catalog.BackupDir,
		appLogger,
		catalog.NewReconciler(appLogger, cfg.Catalog.ManualSites),
	)

	pool := queue.NewQueue(appLogger, cfg.App.WorkerPoolSize, cfg.App.QueueCapacity)
	pool.Start(ctx)
	defer pool.Shutdown()

	svc := scraper.NewService(
		appLogger,
		store,
		scraper.NewFetchers(cfg, rdb, appLogger),
		pool,
		sitelock.New(rdb, cfg.App.SiteLockTTL),
		notify.NewEmailNotifier(&cfg.Email, appLogger),
		hist,
		cfg.App.ScrapeInterval,
	)

	if *site != "" {
		merged, err := svc.RunSite(ctx, *site)
		if err != nil {
			appLogger.Error("site scrape failed",
				slog.String("site", *site),
				slog.String("error", err.Error()))
			os.Exit(1)
		}
		appLogger.Info("site scrape done",
			slog.String("site", *site),
			slog.Int("total_products", merged.TotalProducts))
		return
	}

	merged, err := svc.RunAll(ctx)
	if err != nil {
		appLogger.Error("scrape batch failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	appLogger.Info("scrape batch done", slog.Int("total_products", merged.TotalProducts))
}
