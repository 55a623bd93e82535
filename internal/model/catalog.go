package model

import (
	"time"
)

// 商品分类标签。
//
// 各站点的抓取器按采集的 collection 显式传入分类，
// 不再通过一长串布尔参数推断。
const (
	CategoryGPU         = "GPU"
	CategoryCPU         = "CPU"
	CategoryRAM         = "RAM"
	CategoryMotherboard = "Motherboards"
	CategoryStorage     = "Storage"
	CategoryPowerSupply = "Power Supply"
	CategoryCase        = "Case"
	CategoryCooler      = "Cooler"
	CategoryMonitor     = "Monitor"
	CategoryMouse       = "Mouse"
	CategoryKeyboard    = "Keyboard"
	CategoryHeadset     = "Headset"
	CategoryLaptop      = "Laptop"
	CategoryPeripheral  = "Peripherals"
	CategoryGeneral     = "General"
	CategoryOther       = "Other"
)

// HomeCurrency 是目录的记账货币。
// 所有站点的价格在规范化后统一以该货币（整数单位）表示。
const HomeCurrency = "IQD"

// Product 表示目录中的一条商品记录。
//
// ID 在所有站点范围内全局唯一（通常为 "{site}-{站点本地ID或哈希}"），
// 跨抓取周期保持稳定，是合并时的关联键。
//
// CompatibilitySpecs / ManualCategory / OriginalCategory 三个字段只由
// 人工编辑流程写入，抓取器永远不会产生它们；合并时必须原样保留。
type Product struct {
	ID    string  `json:"id"`
	Title string  `json:"title"`
	Price float64 `json:"price"` // 当前有效价格（记账货币，规范化后的数值）

	OldPrice    *float64 `json:"old_price,omitempty"` // 折扣前参考价，必须严格大于 Price
	RawPrice    string   `json:"raw_price,omitempty"` // 原始价格文本，仅用于审计/排错
	RawOldPrice string   `json:"raw_old_price,omitempty"`

	DetectedCurrency string `json:"detected_currency,omitempty"` // 从原始文本推断的货币代码
	Discount         int    `json:"discount"`                    // 折扣百分比，无有效折扣时为 0

	Category         string         `json:"category,omitempty"`
	CompatibilitySpecs map[string]any `json:"compatibility_specs,omitempty"` // 人工维护的兼容性参数
	ManualCategory   string         `json:"manual_category,omitempty"`   // 人工修正的分类，优先于 Category
	OriginalCategory string         `json:"original_category,omitempty"` // 人工修正前的原始分类

	Image   string `json:"image,omitempty"`
	Link    string `json:"link,omitempty"`
	Store   string `json:"store,omitempty"`
	InStock bool   `json:"in_stock"`

	// 站点透传字段，合并器不关心其内容
	TotalSales       int    `json:"total_sales,omitempty"`
	ShortDescription string `json:"short_description,omitempty"`
	Vendor           string `json:"vendor,omitempty"`
}

// HasCuratedFields 报告商品是否携带任何人工维护字段。
func (p *Product) HasCuratedFields() bool {
	return len(p.CompatibilitySpecs) > 0 || p.ManualCategory != "" || p.OriginalCategory != ""
}

// SiteData 是目录中单个站点的数据分片。
type SiteData struct {
	LastUpdated  time.Time `json:"last_updated"`
	ProductCount int       `json:"product_count"`
	Products     []Product `json:"products"`
}

// Catalog 是持久化的聚合目录文档。
//
// 不变量: TotalProducts 等于所有站点 ProductCount 之和，
// 只能通过重新计算得到，不允许单独修改。
type Catalog struct {
	LastUpdated   time.Time            `json:"last_updated"`
	TotalProducts int                  `json:"total_products"`
	Sites         map[string]*SiteData `json:"sites"`
}

// NewCatalog 返回一个空目录。
func NewCatalog() *Catalog {
	return &Catalog{
		Sites: make(map[string]*SiteData),
	}
}

// RecomputeTotal 重新计算 TotalProducts 并返回计算结果。
func (c *Catalog) RecomputeTotal() int {
	total := 0
	for _, site := range c.Sites {
		if site != nil {
			total += site.ProductCount
		}
	}
	c.TotalProducts = total
	return total
}
