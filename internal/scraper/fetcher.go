// Package scraper 实现各商店站点的商品抓取。
//
// 每个站点一个 Fetcher，负责把站点接口返回的原始数据转成统一的
// Product 记录。站点抓取失败只影响自己，编排器会把失败站点当作
// 空结果交给目录合并，由空结果保护决定是否保留旧数据。
package scraper

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Maryoma-commits/NexuesPc/internal/model"
	"github.com/Maryoma-commits/NexuesPc/internal/pkg/ratelimit"
)

// Fetcher 单个站点的抓取器。
type Fetcher interface {
	// Site 返回站点标识（目录文档中的键）。
	Site() string
	// Fetch 抓取站点全部商品。部分页面失败时返回已抓到的部分，
	// 完全失败时返回错误。
	Fetch(ctx context.Context) ([]model.Product, error)
}

// userAgent 模拟常规浏览器，部分商店对默认 UA 返回 403。
const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36"

// httpGetter 发页面请求前先过限速器。
type httpGetter struct {
	client  *http.Client
	limiter *ratelimit.Limiter
}

func newHTTPGetter(timeout time.Duration, limiter *ratelimit.Limiter) *httpGetter {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &httpGetter{
		client:  &http.Client{Timeout: timeout},
		limiter: limiter,
	}
}

// get 请求 url 并返回响应体。非 200 状态返回错误。
func (g *httpGetter) get(ctx context.Context, url string) ([]byte, error) {
	if err := g.limiter.Acquire(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "*/*")

	res, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", url, err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("get %s: status %d", url, res.StatusCode)
	}

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", url, err)
	}
	return body, nil
}
