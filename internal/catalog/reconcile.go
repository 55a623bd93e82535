// Package catalog 实现聚合目录的合并与持久化。
//
// 合并器把各站点新抓取的商品列表并入既有目录，依次执行三条策略：
// 空结果保护（抓取失败不得清空已知库存）、人工字段保留、聚合量重算。
package catalog

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Maryoma-commits/NexuesPc/internal/model"
	"github.com/Maryoma-commits/NexuesPc/internal/pkg/metrics"
)

var (
	// ErrSiteNotFound 表示目录中不存在指定站点。
	ErrSiteNotFound = errors.New("site not found in catalog")
	// ErrProductNotFound 表示站点分片中不存在指定商品。
	ErrProductNotFound = errors.New("product not found in site")
)

// Reconciler 负责把抓取结果合并进目录。
//
// 它是纯值语义的：输入目录不会被修改，合并结果作为新目录返回。
// 它不做任何 I/O，持久化由 Store 负责。
type Reconciler struct {
	logger      *slog.Logger
	manualSites []string         // 只人工维护、从不自动抓取的站点
	now         func() time.Time // 可注入的时钟，便于测试
}

// NewReconciler 创建合并器。
func NewReconciler(logger *slog.Logger, manualSites []string) *Reconciler {
	return &Reconciler{
		logger:      logger,
		manualSites: manualSites,
		now:         time.Now,
	}
}

// Reconcile 把 incoming 中各站点的新商品列表合并进 existing，返回待持久化的目录。
//
// merge 为 true 时只更新 incoming 中出现的站点，其余站点原样保留；
// 为 false 时 incoming 被视为完整的替换集合，但人工字段保留与
// 空结果保护仍然逐站点生效，人工维护站点也不会被丢弃。
func (r *Reconciler) Reconcile(existing *model.Catalog, incoming map[string][]model.Product, merge bool) *model.Catalog {
	if existing == nil {
		existing = model.NewCatalog()
	}
	now := r.now()

	out := model.NewCatalog()
	if merge {
		// 合并模式：从既有目录出发，未涉及的站点原样保留
		for site, data := range existing.Sites {
			out.Sites[site] = data
		}
	} else {
		// 替换模式：人工维护站点依然不能丢
		for _, site := range r.manualSites {
			if _, supplied := incoming[site]; supplied {
				continue
			}
			if data, ok := existing.Sites[site]; ok {
				r.logger.Info("preserving manual site",
					slog.String("site", site),
					slog.Int("products", data.ProductCount))
				out.Sites[site] = data
			}
		}
	}

	for site, products := range incoming {
		// 空结果保护：抓取返回 0 条而既有分片非空时，视为瞬时故障，
		// 保留既有数据不动。
		if len(products) == 0 {
			if data, ok := existing.Sites[site]; ok && data.ProductCount > 0 {
				r.logger.Warn("empty fetch result discarded, keeping existing products",
					slog.String("site", site),
					slog.Int("existing_count", data.ProductCount))
				metrics.ReconcileZeroResultTotal.WithLabelValues(site).Inc()
				out.Sites[site] = data
				continue
			}
			r.logger.Info("empty fetch result accepted",
				slog.String("site", site))
		}

		if data, ok := existing.Sites[site]; ok {
			products = preserveCuratedFields(r.logger, site, products, data.Products)
		}

		out.Sites[site] = &model.SiteData{
			LastUpdated:  now,
			ProductCount: len(products),
			Products:     products,
		}
	}

	out.RecomputeTotal()
	out.LastUpdated = now
	return out
}

// preserveCuratedFields 把既有商品上的人工维护字段复制到同 ID 的新商品上。
//
// manual_category 存在时覆盖 category：人工修正永远优先于抓取到的分类。
// 返回的切片是新分配的，不会改动调用方传入的商品记录。
func preserveCuratedFields(logger *slog.Logger, site string, products, existing []model.Product) []model.Product {
	curated := make(map[string]*model.Product, len(existing))
	for i := range existing {
		p := &existing[i]
		if p.ID != "" && p.HasCuratedFields() {
			curated[p.ID] = p
		}
	}
	if len(curated) == 0 {
		return products
	}

	out := make([]model.Product, len(products))
	copy(out, products)

	preserved := 0
	for i := range out {
		prev, ok := curated[out[i].ID]
		if !ok {
			continue
		}
		if len(prev.CompatibilitySpecs) > 0 {
			out[i].CompatibilitySpecs = prev.CompatibilitySpecs
		}
		if prev.ManualCategory != "" {
			out[i].ManualCategory = prev.ManualCategory
			out[i].Category = prev.ManualCategory
		}
		if prev.OriginalCategory != "" {
			out[i].OriginalCategory = prev.OriginalCategory
		}
		preserved++
	}

	if preserved > 0 {
		metrics.ReconcileCuratedPreservedTotal.WithLabelValues(site).Add(float64(preserved))
		logger.Info("preserved curated fields",
			slog.String("site", site),
			slog.Int("count", preserved))
	}
	return out
}

// SpecUpdate 描述对单个商品的人工标注修改。
//
// ClearSpecs 为 true 时删除 compatibility_specs 字段（显式清除），
// 否则 Specs 非空时整体覆盖。Category 非空时覆盖商品分类，
// 并按需记录 ManualCategory / OriginalCategory。
type SpecUpdate struct {
	ProductID        string
	Site             string
	Specs            map[string]any
	ClearSpecs       bool
	Category         string
	ManualCategory   string
	OriginalCategory string
}

// UpdateProductSpec 在目录中定位商品并应用人工标注修改。
//
// 站点或商品不存在时返回 ErrSiteNotFound / ErrProductNotFound，
// 此时目录不会被改动。修改是原地进行的，调用方负责随后持久化。
func (r *Reconciler) UpdateProductSpec(c *model.Catalog, upd SpecUpdate) error {
	if c == nil {
		return fmt.Errorf("%w: %s", ErrSiteNotFound, upd.Site)
	}
	data, ok := c.Sites[upd.Site]
	if !ok || data == nil {
		return fmt.Errorf("%w: %s", ErrSiteNotFound, upd.Site)
	}

	for i := range data.Products {
		p := &data.Products[i]
		if p.ID != upd.ProductID {
			continue
		}

		if upd.ClearSpecs {
			p.CompatibilitySpecs = nil
		} else if upd.Specs != nil {
			p.CompatibilitySpecs = upd.Specs
		}

		if upd.Category != "" {
			r.logger.Info("updating product category",
				slog.String("product_id", upd.ProductID),
				slog.String("from", p.Category),
				slog.String("to", upd.Category))
			if upd.ManualCategory != "" {
				p.ManualCategory = upd.ManualCategory
				// 首次人工改分类时记住抓取到的原始分类
				if p.OriginalCategory == "" {
					p.OriginalCategory = p.Category
				}
			}
			if upd.OriginalCategory != "" {
				p.OriginalCategory = upd.OriginalCategory
			}
			p.Category = upd.Category
		}
		return nil
	}

	return fmt.Errorf("%w: %s/%s", ErrProductNotFound, upd.Site, upd.ProductID)
}
