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

// spniqCategories API 分类标题到目录分类的映射，只抓这些分类。
var spniqCategories = map[string]string{
	"Graphics Card":  model.CategoryGPU,
	"CPU":            model.CategoryCPU,
	"Storage":        model.CategoryStorage,
	"Motherboard":    model.CategoryMotherboard,
	"Monitors":       model.CategoryMonitor,
	"PSU":            model.CategoryPowerSupply,
	"Coolers":        model.CategoryCooler,
	"Computer Cases": model.CategoryCase,
}

// SpniqFetcher 抓取 spniq 的 REST 接口。
//
// /categories 一次返回全部分类及其商品，不需要翻页。
type SpniqFetcher struct {
	apiURL  string
	shopURL string // 商品详情页域名，和 API 域名不同
	getter  *httpGetter
	logger  *slog.Logger
}

// NewSpniqFetcher 创建 spniq 抓取器。
func NewSpniqFetcher(apiURL string, timeout time.Duration, limiter *ratelimit.Limiter, logger *slog.Logger) *SpniqFetcher {
	apiURL = strings.TrimRight(apiURL, "/")
	return &SpniqFetcher{
		apiURL:  apiURL,
		shopURL: strings.Replace(apiURL, "api.", "", 1),
		getter:  newHTTPGetter(timeout, limiter),
		logger:  logger,
	}
}

func (f *SpniqFetcher) Site() string { return "spniq" }

// Fetch 抓取全部已映射分类的商品。
func (f *SpniqFetcher) Fetch(ctx context.Context) ([]model.Product, error) {
	body, err := f.getter.get(ctx, f.apiURL+"/categories")
	if err != nil {
		return nil, err
	}

	var categories []spniqCategory
	if err := json.Unmarshal(body, &categories); err != nil {
		return nil, fmt.Errorf("parse spniq categories: %w", err)
	}

	var products []model.Product
	for _, cat := range categories {
		category, ok := spniqCategories[cat.Title]
		if !ok {
			continue
		}
		for _, item := range cat.Products {
			products = append(products, f.parseProduct(item, category))
		}
	}

	if len(products) == 0 {
		return nil, fmt.Errorf("spniq: no products fetched")
	}
	return products, nil
}

func (f *SpniqFetcher) parseProduct(item spniqProduct, category string) model.Product {
	rawPrice := item.priceValue()
	// 占位价 1-2 表示暂无报价，按无货处理
	if rawPrice >= 1 && rawPrice <= 2 {
		rawPrice = 0
	}
	price := pricing.ParseValue(rawPrice)

	title := item.Title
	if title == "" {
		title = "Untitled Product"
	}

	p := model.Product{
		ID:               "spniq-" + item.ID,
		Title:            title,
		Price:            price.NumericValue,
		RawPrice:         strconv.FormatFloat(rawPrice, 'f', -1, 64),
		DetectedCurrency: model.HomeCurrency,
		Store:            "spniq",
		Link:             f.productLink(title, item.ID),
		Image:            f.imageURL(item),
		InStock:          item.Stock > 0 && price.NumericValue > 0,
		Category:         category,
		ShortDescription: item.ShortDescription,
		Vendor:           item.Vendor,
	}
	if price.Currency != "" {
		p.DetectedCurrency = price.Currency
	}
	return p
}

// productLink 商店前端按 标题slug_ID 组织详情页地址。
func (f *SpniqFetcher) productLink(title, id string) string {
	slug := strings.ToLower(title)
	slug = strings.ReplaceAll(slug, " ", "_")
	slug = strings.ReplaceAll(slug, "™", "")
	slug = strings.ReplaceAll(slug, "®", "")
	return fmt.Sprintf("%s/product/%s_%s", f.shopURL, slug, id)
}

func (f *SpniqFetcher) imageURL(item spniqProduct) string {
	first := item.firstImage()
	if first == "" {
		return ""
	}
	if strings.HasPrefix(first, "http") {
		return first
	}
	return f.apiURL + first
}

// ==================== spniq 响应结构 ====================

type spniqCategory struct {
	Title    string         `json:"title"`
	Products []spniqProduct `json:"products"`
}

type spniqProduct struct {
	ID               string          `json:"_id"`
	Title            string          `json:"title"`
	ShortDescription string          `json:"short_description"`
	Vendor           string          `json:"vendor"`
	Stock            int             `json:"stock"`
	Price            json.RawMessage `json:"price"`
	Images           []string        `json:"images"`
}

// spniqPriceEntry price 数组元素：{"key": "0", "value": 270000, "images": [...]}
type spniqPriceEntry struct {
	Value  float64         `json:"value"`
	Images json.RawMessage `json:"images"`
}

// priceValue 解析价格字段，兼容数组和纯数字两种格式。
func (p spniqProduct) priceValue() float64 {
	if len(p.Price) == 0 {
		return 0
	}
	var entries []spniqPriceEntry
	if err := json.Unmarshal(p.Price, &entries); err == nil {
		if len(entries) == 0 {
			return 0
		}
		return entries[0].Value
	}
	var v float64
	if err := json.Unmarshal(p.Price, &v); err == nil {
		return v
	}
	return 0
}

// firstImage 优先取价格条目里的图片，回退到根级 images。
// 图片字段也有列表和空格分隔字符串两种历史格式。
func (p spniqProduct) firstImage() string {
	var entries []spniqPriceEntry
	if err := json.Unmarshal(p.Price, &entries); err == nil && len(entries) > 0 {
		if img := firstImageFromRaw(entries[0].Images); img != "" {
			return img
		}
	}
	if len(p.Images) > 0 {
		return p.Images[0]
	}
	return ""
}

func firstImageFromRaw(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		if len(list) > 0 {
			return list[0]
		}
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		fields := strings.Fields(s)
		if len(fields) > 0 {
			return fields[0]
		}
	}
	return ""
}
