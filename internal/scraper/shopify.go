package scraper

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/Maryoma-commits/NexuesPc/internal/model"
	"github.com/Maryoma-commits/NexuesPc/internal/pkg/ratelimit"
	"github.com/Maryoma-commits/NexuesPc/internal/pricing"
)

// shopifyCollection 一个按分类组织的商品集合。
type shopifyCollection struct {
	slug     string
	category string
}

// ShopifyFetcher 抓取 Shopify 商店的 collections JSON 接口。
//
// 先逐个抓取分类集合（分类由集合决定），最后翻 all 集合补齐
// 未归类的商品，跳过已经抓到的 ID。
type ShopifyFetcher struct {
	site        string
	store       string // 商品记录里的展示名
	baseURL     string
	collections []shopifyCollection
	// all 集合里按 product_type 识别的分类（小写匹配）
	typeCategories map[string]string
	fixPrice       func(string) string
	getter         *httpGetter
	logger         *slog.Logger
}

// NewGlobalIraqFetcher 创建 GlobalIraq 抓取器。
//
// 该店价格带固定的 ".000" 小数尾巴（如 "1425000.000"），
// 解析前必须去掉，否则会被当成欧式千分位。
func NewGlobalIraqFetcher(baseURL string, timeout time.Duration, limiter *ratelimit.Limiter, logger *slog.Logger) *ShopifyFetcher {
	return &ShopifyFetcher{
		site:    "globaliraq",
		store:   "GlobalIraq",
		baseURL: strings.TrimRight(baseURL, "/"),
		collections: []shopifyCollection{
			{"ram-memory", model.CategoryRAM},
			{"processor", model.CategoryCPU},
			{"motherboard", model.CategoryMotherboard},
			{"mice", model.CategoryMouse},
			{"keyboards", model.CategoryKeyboard},
			{"power-supply", model.CategoryPowerSupply},
			{"case", model.CategoryCase},
			{"storage", model.CategoryStorage},
			{"cooling", model.CategoryCooler},
			{"monitor", model.CategoryMonitor},
			{"headsets", model.CategoryHeadset},
			{"laptop", model.CategoryLaptop},
		},
		typeCategories: map[string]string{"nvidia": model.CategoryGPU},
		fixPrice:       fixGlobalIraqPrice,
		getter:         newHTTPGetter(timeout, limiter),
		logger:         logger,
	}
}

// NewAlityanFetcher 创建 Alityan 抓取器。
func NewAlityanFetcher(baseURL string, timeout time.Duration, limiter *ratelimit.Limiter, logger *slog.Logger) *ShopifyFetcher {
	return &ShopifyFetcher{
		site:    "alityan",
		store:   "Alityan",
		baseURL: strings.TrimRight(baseURL, "/"),
		collections: []shopifyCollection{
			{"gpus", model.CategoryGPU},
			{"ram", model.CategoryRAM},
			{"amd", model.CategoryCPU},
			{"motherboards", model.CategoryMotherboard},
			{"mouses", model.CategoryMouse},
			{"keyboards", model.CategoryKeyboard},
			{"power-supply", model.CategoryPowerSupply},
			{"case", model.CategoryCase},
			{"storage", model.CategoryStorage},
			{"coolers", model.CategoryCooler},
			{"moniter", model.CategoryMonitor}, // 商店后台的拼写就是这样
			{"headsets", model.CategoryHeadset},
		},
		fixPrice: fixAlityanPrice,
		getter:   newHTTPGetter(timeout, limiter),
		logger:   logger,
	}
}

func (f *ShopifyFetcher) Site() string { return f.site }

// Fetch 抓取全部集合加 all 集合。
func (f *ShopifyFetcher) Fetch(ctx context.Context) ([]model.Product, error) {
	var products []model.Product
	seen := make(map[int64]struct{})

	for _, col := range f.collections {
		items, err := f.fetchCollection(ctx, col.slug)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			f.logger.Warn("collection fetch failed",
				slog.String("site", f.site),
				slog.String("collection", col.slug),
				slog.String("error", err.Error()))
			continue
		}
		for _, item := range items {
			seen[item.ID] = struct{}{}
			products = append(products, f.parseProduct(item, col.category))
		}
	}

	// all 集合补齐未归类商品
	items, err := f.fetchCollection(ctx, "all")
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		f.logger.Warn("all collection fetch failed",
			slog.String("site", f.site),
			slog.String("error", err.Error()))
	}
	for _, item := range items {
		if _, ok := seen[item.ID]; ok {
			continue
		}
		category := ""
		if f.typeCategories != nil {
			category = f.typeCategories[strings.ToLower(item.ProductType)]
		}
		products = append(products, f.parseProduct(item, category))
	}

	if len(products) == 0 {
		return nil, fmt.Errorf("%s: no products fetched", f.site)
	}
	return products, nil
}

// fetchCollection 翻页抓取单个集合，直到空页或出错。
func (f *ShopifyFetcher) fetchCollection(ctx context.Context, slug string) ([]shopifyProduct, error) {
	var all []shopifyProduct
	for page := 1; ; page++ {
		url := fmt.Sprintf("%s/collections/%s/products.json?sort_by=best-selling&page=%d", f.baseURL, slug, page)
		body, err := f.getter.get(ctx, url)
		if err != nil {
			if page == 1 {
				return nil, err
			}
			// 翻页途中出错，保留已抓到的部分
			f.logger.Warn("page fetch failed, keeping partial collection",
				slog.String("site", f.site),
				slog.String("collection", slug),
				slog.Int("page", page),
				slog.String("error", err.Error()))
			return all, nil
		}

		var data shopifyPage
		if err := json.Unmarshal(body, &data); err != nil {
			return all, fmt.Errorf("parse %s page %d: %w", slug, page, err)
		}
		if len(data.Products) == 0 {
			return all, nil
		}
		all = append(all, data.Products...)
	}
}

func (f *ShopifyFetcher) parseProduct(item shopifyProduct, category string) model.Product {
	var rawPrice, rawCompare string
	available := true
	if len(item.Variants) > 0 {
		rawPrice = string(item.Variants[0].Price)
		rawCompare = string(item.Variants[0].CompareAtPrice)
		if item.Variants[0].Available != nil {
			available = *item.Variants[0].Available
		}
	}

	price := pricing.Parse(f.fixPrice(rawPrice))
	compare := pricing.Parse(f.fixPrice(rawCompare))

	p := model.Product{
		ID:       fmt.Sprintf("%s-%d", f.site, item.ID),
		Title:    item.Title,
		Price:    price.NumericValue,
		RawPrice: price.RawValue,
		Link:     fmt.Sprintf("%s/products/%s", f.baseURL, item.Handle),
		Store:    f.store,
		InStock:  available,
		Category: category,

		TotalSales: item.TotalSales,
	}

	if pricing.AcceptOldPrice(price.NumericValue, compare.NumericValue) {
		old := compare.NumericValue
		p.OldPrice = &old
		p.RawOldPrice = compare.RawValue
		p.Discount = pricing.Discount(old, price.NumericValue)
	}

	p.DetectedCurrency = price.Currency
	if p.DetectedCurrency == "" {
		p.DetectedCurrency = compare.Currency
	}
	if p.DetectedCurrency == "" {
		p.DetectedCurrency = model.HomeCurrency
	}

	if len(item.Images) > 0 {
		p.Image = item.Images[0].URL
	}
	return p
}

// ==================== Shopify 响应结构 ====================

type shopifyPage struct {
	Products []shopifyProduct `json:"products"`
}

type shopifyProduct struct {
	ID          int64          `json:"id"`
	Title       string         `json:"title"`
	Handle      string         `json:"handle"`
	ProductType string         `json:"product_type"`
	Images      []shopifyImage `json:"images"`
	Variants    []struct {
		Price          flexString `json:"price"`
		CompareAtPrice flexString `json:"compare_at_price"`
		Available      *bool      `json:"available"`
	} `json:"variants"`
	TotalSales int `json:"total_sales"`
}

// shopifyImage 兼容两种图片格式：纯 URL 字符串或 {"src": "..."} 对象。
type shopifyImage struct {
	URL string
}

func (i *shopifyImage) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		i.URL = s
		return nil
	}
	var obj struct {
		Src string `json:"src"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	i.URL = obj.Src
	return nil
}

// flexString 兼容字符串和数字两种 JSON 表示，null 解析为空串。
type flexString string

func (s *flexString) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*s = ""
		return nil
	}
	var str string
	if err := json.Unmarshal(data, &str); err == nil {
		*s = flexString(str)
		return nil
	}
	var num json.Number
	if err := json.Unmarshal(data, &num); err != nil {
		return err
	}
	*s = flexString(num.String())
	return nil
}

// fixGlobalIraqPrice 去掉接口固定返回的 ".000" 尾巴。
// "1425000.000" -> "1425000"
func fixGlobalIraqPrice(priceStr string) string {
	if priceStr == "" {
		return priceStr
	}
	if strings.HasSuffix(priceStr, ".000") {
		return priceStr[:len(priceStr)-4]
	}
	if i := strings.LastIndex(priceStr, "."); i >= 0 && priceStr[i+1:] == "000" {
		return priceStr[:i]
	}
	return priceStr
}

// fixAlityanPrice 该店混用两种格式：
// 整数前缀超过 4 位时 ".000" 是小数尾巴（"745000.000" -> "745000"），
// 否则是千分位（"1850.000" 即 1,850,000 第纳尔的缩写，原样保留）。
func fixAlityanPrice(priceStr string) string {
	if priceStr == "" || !strings.HasSuffix(priceStr, ".000") {
		return priceStr
	}
	parts := strings.SplitN(priceStr, ".", 2)
	if len(parts) == 2 && len(parts[0]) > 4 {
		if _, err := strconv.Atoi(parts[0]); err == nil {
			return parts[0]
		}
	}
	return priceStr
}
