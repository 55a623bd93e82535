package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Maryoma-commits/NexuesPc/internal/catalog"
	"github.com/Maryoma-commits/NexuesPc/internal/history"
	"github.com/Maryoma-commits/NexuesPc/internal/model"
	"github.com/Maryoma-commits/NexuesPc/internal/pkg/metrics"
	"github.com/Maryoma-commits/NexuesPc/internal/pkg/notify"
	"github.com/Maryoma-commits/NexuesPc/internal/pkg/queue"
	"github.com/Maryoma-commits/NexuesPc/internal/pkg/sitelock"
)

// ErrUnknownSite 请求抓取的站点没有注册抓取器。
var ErrUnknownSite = fmt.Errorf("unknown site")

// Service 编排抓取批次：把站点抓取分发到 worker 池，
// 等全部站点完成后把结果一次性交给目录合并。
type Service struct {
	logger   *slog.Logger
	store    *catalog.Store
	fetchers []Fetcher
	pool     *queue.Queue
	lock     *sitelock.Lock
	notifier notify.Notifier
	history  *history.Store
	interval time.Duration
}

// NewService 创建抓取编排服务。notifier 和 hist 可以为 nil。
func NewService(
	logger *slog.Logger,
	store *catalog.Store,
	fetchers []Fetcher,
	pool *queue.Queue,
	lock *sitelock.Lock,
	notifier notify.Notifier,
	hist *history.Store,
	interval time.Duration,
) *Service {
	return &Service{
		logger:   logger,
		store:    store,
		fetchers: fetchers,
		pool:     pool,
		lock:     lock,
		notifier: notifier,
		history:  hist,
		interval: interval,
	}
}

// Start 启动 worker 池和定时抓取循环，阻塞直到 ctx 被取消。
func (s *Service) Start(ctx context.Context) {
	s.pool.Start(ctx)

	s.logger.Info("scrape loop started",
		slog.String("interval", s.interval.String()),
		slog.Int("sites", len(s.fetchers)))

	if _, err := s.RunAll(ctx); err != nil && ctx.Err() == nil {
		s.logger.Error("initial scrape batch failed", slog.String("error", err.Error()))
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scrape loop stopped")
			return
		case <-ticker.C:
			if _, err := s.RunAll(ctx); err != nil && ctx.Err() == nil {
				s.logger.Error("scrape batch failed", slog.String("error", err.Error()))
			}
		}
	}
}

// RunAll 执行一个完整批次：所有站点并发抓取，屏障等待后统一合并。
//
// 单个站点失败或跳过不影响批次：失败站点以空列表参与合并，
// 由空结果保护决定保留旧数据；被锁跳过的站点不参与合并。
func (s *Service) RunAll(ctx context.Context) (*model.Catalog, error) {
	start := time.Now()
	s.logger.Info("scrape batch started", slog.Int("sites", len(s.fetchers)))

	results := make(map[string][]model.Product, len(s.fetchers))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, f := range s.fetchers {
		f := f
		wg.Add(1)
		job := func(ctx context.Context) error {
			defer wg.Done()
			products, skipped := s.scrapeSite(ctx, f)
			if skipped {
				return nil
			}
			mu.Lock()
			results[f.Site()] = products
			mu.Unlock()
			return nil
		}
		if err := s.pool.EnqueueBlocking(ctx, job); err != nil {
			wg.Done()
			// 已派发的任务收尾后再返回，不留后台写 results 的 goroutine
			wg.Wait()
			return nil, fmt.Errorf("enqueue %s: %w", f.Site(), err)
		}
	}

	wg.Wait()
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	merged, err := s.store.Apply(results, true)
	if err != nil {
		return nil, err
	}

	s.alertDiscardedResults(ctx, results, merged)

	metrics.ScrapeRunsTotal.Inc()
	metrics.CatalogTotalProducts.Set(float64(merged.TotalProducts))

	s.logger.Info("scrape batch completed",
		slog.Int("total_products", merged.TotalProducts),
		slog.String("duration", time.Since(start).Round(time.Millisecond).String()))
	return merged, nil
}

// RunSite 手动触发单个站点的抓取与合并。
func (s *Service) RunSite(ctx context.Context, site string) (*model.Catalog, error) {
	var fetcher Fetcher
	for _, f := range s.fetchers {
		if f.Site() == site {
			fetcher = f
			break
		}
	}
	if fetcher == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSite, site)
	}

	products, skipped := s.scrapeSite(ctx, fetcher)
	if skipped {
		return nil, fmt.Errorf("scrape already in progress for %s", site)
	}

	merged, err := s.store.Apply(map[string][]model.Product{site: products}, true)
	if err != nil {
		return nil, err
	}
	metrics.CatalogTotalProducts.Set(float64(merged.TotalProducts))
	return merged, nil
}

// Sites 返回已注册的站点标识。
func (s *Service) Sites() []string {
	sites := make([]string, 0, len(s.fetchers))
	for _, f := range s.fetchers {
		sites = append(sites, f.Site())
	}
	return sites
}

// scrapeSite 抓取单个站点。返回 skipped=true 表示站点锁被占用，
// 本轮不更新该站点。抓取失败返回空列表，让合并端走空结果保护。
func (s *Service) scrapeSite(ctx context.Context, f Fetcher) (products []model.Product, skipped bool) {
	site := f.Site()

	ok, err := s.lock.TryAcquire(ctx, site)
	if err != nil {
		s.logger.Error("site lock error, skipping site",
			slog.String("site", site),
			slog.String("error", err.Error()))
		return nil, true
	}
	if !ok {
		s.logger.Info("scrape already running, skipping site", slog.String("site", site))
		return nil, true
	}
	defer func() {
		if err := s.lock.Release(ctx, site); err != nil {
			s.logger.Warn("release site lock failed",
				slog.String("site", site),
				slog.String("error", err.Error()))
		}
	}()

	start := time.Now()
	products, err = f.Fetch(ctx)
	elapsed := time.Since(start)

	metrics.ScrapeDuration.WithLabelValues(site).Observe(elapsed.Seconds())

	run := history.ScrapeRun{
		Site:       site,
		Products:   len(products),
		Succeeded:  err == nil,
		DurationMS: elapsed.Milliseconds(),
	}

	if err != nil {
		run.Error = err.Error()
		metrics.ScrapeErrorsTotal.WithLabelValues(site).Inc()
		s.logger.Error("site scrape failed",
			slog.String("site", site),
			slog.String("duration", elapsed.Round(time.Millisecond).String()),
			slog.String("error", err.Error()))
		s.sendAlert(ctx, notify.Alert{
			Site:       site,
			Reason:     "Scrape Failed",
			Detail:     err.Error(),
			OccurredAt: time.Now(),
		})
		products = []model.Product{}
	} else {
		metrics.ScrapeProducts.WithLabelValues(site).Set(float64(len(products)))
		s.logger.Info("site scrape completed",
			slog.String("site", site),
			slog.Int("products", len(products)),
			slog.String("duration", elapsed.Round(time.Millisecond).String()))
	}

	s.history.Record(ctx, run)
	return products, false
}

// alertDiscardedResults 对"抓到 0 条但旧数据被保留"的站点发告警。
func (s *Service) alertDiscardedResults(ctx context.Context, results map[string][]model.Product, merged *model.Catalog) {
	for site, products := range results {
		if len(products) > 0 {
			continue
		}
		if data, ok := merged.Sites[site]; ok && data.ProductCount > 0 {
			s.sendAlert(ctx, notify.Alert{
				Site:       site,
				Reason:     "Empty Fetch Discarded",
				Detail:     fmt.Sprintf("scrape returned 0 products, kept %d existing", data.ProductCount),
				OccurredAt: time.Now(),
			})
		}
	}
}

func (s *Service) sendAlert(ctx context.Context, alert notify.Alert) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Send(ctx, alert); err != nil {
		s.logger.Error("send alert failed",
			slog.String("site", alert.Site),
			slog.String("error", err.Error()))
	}
}
