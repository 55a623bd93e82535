package scraper

import (
	"log/slog"

	"github.com/Maryoma-commits/NexuesPc/internal/config"
	"github.com/Maryoma-commits/NexuesPc/internal/pkg/ratelimit"

	"github.com/redis/go-redis/v9"
)

// 支持自动抓取的站点，按固定顺序注册。
var knownSites = []string{"globaliraq", "alityan", "kolshzin", "spniq"}

// NewFetchers 根据配置构建启用站点的抓取器。
//
// 每个站点各自持有一个 Redis 令牌桶限速器，翻页节奏互不影响。
// rdb 为 nil 时限速器退化为直通。配置里出现未知站点名只告警不报错。
func NewFetchers(cfg *config.Config, rdb *redis.Client, logger *slog.Logger) []Fetcher {
	timeout := cfg.App.RequestTimeout

	fetchers := make([]Fetcher, 0, len(knownSites))
	for _, site := range knownSites {
		sc, ok := cfg.Sites[site]
		if !ok || !sc.Enabled || sc.BaseURL == "" {
			logger.Info("site disabled, skipping", slog.String("site", site))
			continue
		}

		limiter := ratelimit.NewSiteLimiter(rdb, logger, site, cfg.App.RateLimit, cfg.App.RateBurst)

		switch site {
		case "globaliraq":
			fetchers = append(fetchers, NewGlobalIraqFetcher(sc.BaseURL, timeout, limiter, logger))
		case "alityan":
			fetchers = append(fetchers, NewAlityanFetcher(sc.BaseURL, timeout, limiter, logger))
		case "kolshzin":
			fetchers = append(fetchers, NewKolshzinFetcher(sc.BaseURL, timeout, limiter, logger))
		case "spniq":
			fetchers = append(fetchers, NewSpniqFetcher(sc.BaseURL, timeout, limiter, logger))
		}
	}

	for site := range cfg.Sites {
		known := false
		for _, k := range knownSites {
			if k == site {
				known = true
				break
			}
		}
		if !known {
			logger.Warn("no fetcher registered for configured site", slog.String("site", site))
		}
	}

	return fetchers
}
