package scraper

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/Maryoma-commits/NexuesPc/internal/model"
	"github.com/Maryoma-commits/NexuesPc/internal/pkg/ratelimit"
	"github.com/Maryoma-commits/NexuesPc/internal/pricing"
)

// kolshzinCategoryPage 一个要翻页抓取的分类列表页。
// forceCategory 非空时覆盖 CSS 自动识别的分类。
type kolshzinCategoryPage struct {
	path          string
	forceCategory string
}

// KolshzinFetcher 抓取 Kolshzin 的 WooCommerce 商品列表页。
//
// 列表页通过 ?_ajax_get_product=1 接口翻页，页码超出范围时
// 服务端会原样重复最后一页，用上一页 HTML 比对来判断结束。
type KolshzinFetcher struct {
	baseURL string
	pages   []kolshzinCategoryPage
	getter  *httpGetter
	logger  *slog.Logger
}

// NewKolshzinFetcher 创建 Kolshzin 抓取器。
func NewKolshzinFetcher(baseURL string, timeout time.Duration, limiter *ratelimit.Limiter, logger *slog.Logger) *KolshzinFetcher {
	return &KolshzinFetcher{
		baseURL: strings.TrimRight(baseURL, "/"),
		pages: []kolshzinCategoryPage{
			{"/product-category/hardware-components/pc-components/", ""},
			{"/product-category/%d9%85%d9%86%d8%aa%d8%ac%d8%a7%d8%aa-%d8%ba%d9%8a%d8%ba%d8%a7%d8%a8%d8%a7%d9%8a%d8%aa-gigabyte-iraq/", ""},
			{"/product-category/computer-office/input-devices/keyboards/", model.CategoryKeyboard},
			{"/product-category/computer-office/input-devices/mouse/", model.CategoryMouse},
			{"/product-category/hardware-components/cooling/", model.CategoryCooler},
			{"/product-category/%d9%85%d9%86%d8%aa%d8%ac%d8%a7%d8%aa-%d8%b3%d8%a7%d9%85%d8%b3%d9%88%d9%86%d8%ac-samsung-%d8%a7%d9%84%d8%b9%d8%b1%d8%a7%d9%82/%d8%b4%d8%a7%d8%b4%d8%a7%d8%aa-%d8%b3%d8%a7%d9%85%d8%b3%d9%88%d9%86%d8%ac-samsung/", model.CategoryMonitor},
			{"/product-category/asus/asus-monitors/", model.CategoryMonitor},
			{"/product-category/%d9%85%d9%86%d8%aa%d8%ac%d8%a7%d8%aa-%d8%ba%d9%8a%d8%ba%d8%a7%d8%a8%d8%a7%d9%8a%d8%aa-gigabyte-iraq/gigabyte-monitors/", model.CategoryMonitor},
			{"/product-category/msi-monitors/", model.CategoryMonitor},
			{"/product-category/lg-monitors/", model.CategoryMonitor},
			{"/product-category/monitor-holders-stands/", model.CategoryMonitor},
			{"/product-category/hisense-monitors/", model.CategoryMonitor},
			{"/product-category/dell-monitors/", model.CategoryMonitor},
			{"/product-category/hp-monitors/", model.CategoryMonitor},
			{"/product-category/xiaomi-tvs/", model.CategoryMonitor},
			{"/product-category/computer-office/computer-headphones/", model.CategoryHeadset},
			{"/product-category/steelseries/", model.CategoryHeadset},
			{"/product-category/laptops/", model.CategoryLaptop},
		},
		getter: newHTTPGetter(timeout, limiter),
		logger: logger,
	}
}

func (f *KolshzinFetcher) Site() string { return "kolshzin" }

// Fetch 遍历全部分类页，按商品链接去重。
func (f *KolshzinFetcher) Fetch(ctx context.Context) ([]model.Product, error) {
	var products []model.Product
	seenLinks := make(map[string]struct{})

	for _, page := range f.pages {
		items, err := f.fetchCategoryPages(ctx, page, seenLinks)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			f.logger.Warn("category page fetch failed",
				slog.String("site", "kolshzin"),
				slog.String("path", page.path),
				slog.String("error", err.Error()))
			continue
		}
		products = append(products, items...)
	}

	if len(products) == 0 {
		return nil, fmt.Errorf("kolshzin: no products fetched")
	}
	return products, nil
}

func (f *KolshzinFetcher) fetchCategoryPages(ctx context.Context, page kolshzinCategoryPage, seenLinks map[string]struct{}) ([]model.Product, error) {
	var products []model.Product
	var lastHTML []byte

	for paged := 1; ; paged++ {
		url := fmt.Sprintf("%s%s?_ajax_get_product=1&paged=%d&per_page=150", f.baseURL, page.path, paged)
		body, err := f.getter.get(ctx, url)
		if err != nil {
			if paged == 1 {
				return nil, err
			}
			return products, nil
		}

		body = bytes.TrimSpace(body)
		if bytes.Equal(body, lastHTML) {
			return products, nil
		}
		lastHTML = body

		doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
		if err != nil {
			return products, fmt.Errorf("parse page %d: %w", paged, err)
		}

		items := doc.Find(".product-grid-item")
		if items.Length() == 0 {
			return products, nil
		}

		items.Each(func(_ int, s *goquery.Selection) {
			p, ok := f.parseProduct(s, page.forceCategory, seenLinks)
			if ok {
				products = append(products, p)
			}
		})
	}
}

func (f *KolshzinFetcher) parseProduct(s *goquery.Selection, forceCategory string, seenLinks map[string]struct{}) (model.Product, bool) {
	titleEl := s.Find("h3 a").First()
	title := strings.TrimSpace(titleEl.Text())
	if title == "" {
		title = "Unknown"
	}

	link, _ := titleEl.Attr("href")
	if link != "" {
		if _, dup := seenLinks[link]; dup {
			return model.Product{}, false
		}
		seenLinks[link] = struct{}{}
	}

	priceText := s.Find(".price ins bdi").First().Text()
	if priceText == "" {
		priceText = s.Find(".price bdi").First().Text()
	}
	if priceText == "" {
		priceText = "0"
	}
	oldPriceText := s.Find("del bdi").First().Text()

	price := pricing.Parse(priceText)

	category := forceCategory
	if category == "" {
		category = extractKolshzinCategory(s)
	}

	image, ok := s.Find("img").First().Attr("data-src")
	if !ok || image == "" {
		image, _ = s.Find("img").First().Attr("src")
	}

	// 页面上带 out-of-stock 标记才算缺货
	inStock := s.Find("p.stock.out-of-stock").Length() == 0

	p := model.Product{
		ID:               kolshzinProductID(title),
		Title:            title,
		Price:            price.NumericValue,
		RawPrice:         priceText,
		DetectedCurrency: model.HomeCurrency,
		Store:            "Kolshzin",
		Link:             link,
		Image:            image,
		InStock:          inStock,
		Category:         category,
	}

	if oldPriceText != "" {
		old := pricing.Parse(oldPriceText)
		if pricing.AcceptOldPrice(price.NumericValue, old.NumericValue) {
			v := old.NumericValue
			p.OldPrice = &v
			p.RawOldPrice = oldPriceText
			p.Discount = pricing.Discount(v, price.NumericValue)
		}
	}
	return p, true
}

// kolshzinProductID 该店列表页没有稳定的商品 ID，用标题哈希代替。
func kolshzinProductID(title string) string {
	sum := md5.Sum([]byte(title + "_kolshzin"))
	return "kolshzin-" + hex.EncodeToString(sum[:])[:16]
}

// kolshzinSlugCategories 按 product_cat-* class 的 slug 映射分类。
var kolshzinSlugCategories = map[string]string{
	// 显卡（各品牌）
	"zotac-graphics-cards":    "GPU",
	"pny-graphics-cards":      "GPU",
	"asus-graphics-cards":     "GPU",
	"msi-graphics-cards":      "GPU",
	"nvidia-graphics-cards":   "GPU",
	"amd-graphics-cards":      "GPU",
	"gigabyte-graphics-cards": "GPU",
	"gigabyte-gpu":            "GPU",
	"graphics-cards":          "GPU",
	"graphics-cards-msi":      "GPU",
	"galax-graphics-cards":    "GPU",
	"galax-gpu":               "GPU",
	"galax-gpus":              "GPU",
	"gpu-galax":               "GPU",
	"aorus-graphics-cards":    "GPU",
	"aorus-gpus":              "GPU",
	"gigabyte-aorus":          "GPU",

	// 内存
	"ram-ddr4":    "RAM",
	"ram-ddr5":    "RAM",
	"corsair-ram": "RAM",
	"gskill-ram":  "RAM",
	"memory-ram":  "RAM",
	"ddr4-memory": "RAM",
	"ddr5-memory": "RAM",
	"g-skill-ram": "RAM",
	"adata":       "RAM",

	// 主板
	"msi-motherboards":      "Motherboards",
	"asus-mb":               "Motherboards",
	"asus-motherboards":     "Motherboards",
	"gigabyte-motherboards": "Motherboards",
	"gigabyte-mb":           "Motherboards",
	"gigabyte-mainboard":    "Motherboards",
	"gigabyte-motherboard":  "Motherboards",
	"asrock-motherboards":   "Motherboards",
	"motherboards":          "Motherboards",
	"motherboard":           "Motherboards",
	"mainboard":             "Motherboards",
	"mainboards":            "Motherboards",

	// 存储
	"ssd-drive":   "Storage",
	"hdd-drive":   "Storage",
	"samsung-ssd": "Storage",
	"storage":     "Storage",
	"nvme-ssd":    "Storage",

	// 电源
	"pc-power-supply-unit": "Power Supply",
	"power-supply":         "Power Supply",
	"psu":                  "Power Supply",

	// 机箱
	"xigmatek-cases": "Case",
	"pc-cases":       "Case",
	"cases":          "Case",
	"computer-cases": "Case",

	// 散热
	"cooling":        "Cooler",
	"cpu-coolers":    "Cooler",
	"liquid-cooling": "Cooler",
	"fans":           "Cooler",

	// 外设
	"input-devices":      "Peripherals",
	"keyboards":          "Peripherals",
	"mice":               "Peripherals",
	"headsets":           "Peripherals",
	"gaming-peripherals": "Peripherals",

	// 显示器
	"monitors":        "Monitors",
	"gaming-monitors": "Monitors",
	"lcd-monitors":    "Monitors",

	// 处理器
	"processors":       "CPU",
	"intel-processors": "CPU",
	"amd-processors":   "CPU",
	"cpu":              "CPU",
}

// extractKolshzinCategory 从商品元素的 class 列表识别分类。
// 没有可识别的 product_cat-* class 时归入 Other。
func extractKolshzinCategory(s *goquery.Selection) string {
	classAttr, _ := s.Attr("class")
	for _, cls := range strings.Fields(classAttr) {
		if !strings.HasPrefix(cls, "product_cat-") {
			continue
		}
		slug := strings.TrimPrefix(cls, "product_cat-")
		if category, ok := kolshzinSlugCategories[slug]; ok {
			return category
		}
		return model.CategoryOther
	}
	return model.CategoryOther
}
