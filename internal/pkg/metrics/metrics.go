// Package metrics 定义抓取与目录合并的 Prometheus 指标。
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ScrapeDuration 单个站点一次抓取的耗时分布。
	ScrapeDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "nexuespc",
		Subsystem: "scraper",
		Name:      "site_duration_seconds",
		Help:      "Duration of a single site scrape.",
		Buckets:   []float64{1, 5, 10, 30, 60, 120, 300},
	}, []string{"site"})

	// ScrapeProducts 站点最近一次抓取返回的商品数。
	ScrapeProducts = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "nexuespc",
		Subsystem: "scraper",
		Name:      "site_products",
		Help:      "Products returned by the most recent scrape of a site.",
	}, []string{"site"})

	// ScrapeErrorsTotal 站点抓取失败次数。
	ScrapeErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "nexuespc",
		Subsystem: "scraper",
		Name:      "site_errors_total",
		Help:      "Total scrape failures per site.",
	}, []string{"site"})

	// ScrapeRunsTotal 完整抓取批次计数。
	ScrapeRunsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "nexuespc",
		Subsystem: "scraper",
		Name:      "runs_total",
		Help:      "Total completed scrape batches.",
	})

	// ReconcileZeroResultTotal 空结果保护触发次数。
	ReconcileZeroResultTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "nexuespc",
		Subsystem: "catalog",
		Name:      "zero_result_total",
		Help:      "Times an empty fetch was discarded in favor of existing products.",
	}, []string{"site"})

	// ReconcileCuratedPreservedTotal 合并时保留的人工字段商品数。
	ReconcileCuratedPreservedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "nexuespc",
		Subsystem: "catalog",
		Name:      "curated_preserved_total",
		Help:      "Products whose curated fields were carried across a reconcile.",
	}, []string{"site"})

	// CatalogTotalProducts 目录文档中的商品总数。
	CatalogTotalProducts = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "nexuespc",
		Subsystem: "catalog",
		Name:      "total_products",
		Help:      "Total products across all sites in the catalog document.",
	})

	// RateLimitWaitDuration 页面抓取限速等待耗时。
	RateLimitWaitDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "nexuespc",
		Subsystem: "ratelimit",
		Name:      "wait_duration_seconds",
		Help:      "Time spent waiting for a rate limit token.",
		Buckets:   prometheus.DefBuckets,
	})

	// RateLimitTimeoutTotal 限速等待超时次数。
	RateLimitTimeoutTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "nexuespc",
		Subsystem: "ratelimit",
		Name:      "timeout_total",
		Help:      "Total rate limit waits aborted by context cancellation.",
	})

	workerPoolSize = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "nexuespc",
		Subsystem: "scraper",
		Name:      "worker_pool_size",
		Help:      "Configured size of the scrape worker pool.",
	})
)

// Init 记录启动时确定的静态指标。
func Init(workers int) {
	workerPoolSize.Set(float64(workers))
}
