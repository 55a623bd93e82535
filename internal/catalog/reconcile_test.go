package catalog

import (
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/Maryoma-commits/NexuesPc/internal/model"
)

func testReconciler(manualSites ...string) *Reconciler {
	r := NewReconciler(slog.New(slog.NewTextHandler(io.Discard, nil)), manualSites)
	r.now = func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) }
	return r
}

func catalogWith(site string, products ...model.Product) *model.Catalog {
	c := model.NewCatalog()
	c.Sites[site] = &model.SiteData{
		LastUpdated:  time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC),
		ProductCount: len(products),
		Products:     products,
	}
	c.RecomputeTotal()
	return c
}

func TestReconcile_EmptyIncomingIsIdempotent(t *testing.T) {
	r := testReconciler()
	existing := catalogWith("alityan",
		model.Product{ID: "alityan-1", Title: "RTX 4070", Price: 850000},
		model.Product{ID: "alityan-2", Title: "RX 7800 XT", Price: 700000},
	)

	out := r.Reconcile(existing, map[string][]model.Product{}, true)

	if out.TotalProducts != existing.TotalProducts {
		t.Fatalf("total_products = %d, want %d", out.TotalProducts, existing.TotalProducts)
	}
	data, ok := out.Sites["alityan"]
	if !ok {
		t.Fatalf("expected alityan bucket to survive")
	}
	if data.ProductCount != 2 {
		t.Fatalf("product_count = %d, want 2", data.ProductCount)
	}
	if !data.LastUpdated.Equal(existing.Sites["alityan"].LastUpdated) {
		t.Fatalf("untouched bucket timestamp changed")
	}
}

func TestReconcile_ZeroResultSafety(t *testing.T) {
	r := testReconciler()
	products := make([]model.Product, 50)
	for i := range products {
		products[i] = model.Product{ID: "globaliraq-" + string(rune('a'+i%26)), Price: 1000}
	}
	existing := catalogWith("globaliraq", products...)

	out := r.Reconcile(existing, map[string][]model.Product{"globaliraq": {}}, true)

	data, ok := out.Sites["globaliraq"]
	if !ok {
		t.Fatalf("expected globaliraq bucket to survive empty fetch")
	}
	if data.ProductCount != 50 {
		t.Fatalf("product_count = %d, want 50 (existing inventory preserved)", data.ProductCount)
	}
	if out.TotalProducts != 50 {
		t.Fatalf("total_products = %d, want 50", out.TotalProducts)
	}
}

func TestReconcile_EmptyAcceptedForNewOrEmptySite(t *testing.T) {
	r := testReconciler()

	// 全新站点
	out := r.Reconcile(model.NewCatalog(), map[string][]model.Product{"spniq": {}}, true)
	if data := out.Sites["spniq"]; data == nil || data.ProductCount != 0 {
		t.Fatalf("expected empty bucket for new site")
	}

	// 既有计数已为 0
	existing := catalogWith("spniq")
	out = r.Reconcile(existing, map[string][]model.Product{"spniq": {}}, true)
	if data := out.Sites["spniq"]; data == nil || data.ProductCount != 0 {
		t.Fatalf("expected empty result accepted when existing count is zero")
	}
}

func TestReconcile_CuratedFieldsSurvive(t *testing.T) {
	r := testReconciler()
	existing := catalogWith("alityan", model.Product{
		ID:                 "alityan-77",
		Title:              "B650 Tomahawk",
		Price:              250000,
		CompatibilitySpecs: map[string]any{"chipset": "B650"},
	})

	incoming := map[string][]model.Product{
		"alityan": {{ID: "alityan-77", Title: "B650 Tomahawk", Price: 240000}},
	}
	out := r.Reconcile(existing, incoming, true)

	got := out.Sites["alityan"].Products[0]
	if got.CompatibilitySpecs == nil || got.CompatibilitySpecs["chipset"] != "B650" {
		t.Fatalf("compatibility_specs lost across reconcile: %+v", got.CompatibilitySpecs)
	}
	if got.Price != 240000 {
		t.Fatalf("price = %v, want fresh scrape value 240000", got.Price)
	}
}

func TestReconcile_ManualCategoryWins(t *testing.T) {
	r := testReconciler()
	existing := catalogWith("kolshzin", model.Product{
		ID:             "kolshzin-abc",
		Category:       model.CategoryGPU,
		ManualCategory: model.CategoryGPU,
	})

	incoming := map[string][]model.Product{
		"kolshzin": {{ID: "kolshzin-abc", Category: model.CategoryOther}},
	}
	out := r.Reconcile(existing, incoming, true)

	got := out.Sites["kolshzin"].Products[0]
	if got.Category != model.CategoryGPU {
		t.Fatalf("category = %q, want manual category %q", got.Category, model.CategoryGPU)
	}
	if got.ManualCategory != model.CategoryGPU {
		t.Fatalf("manual_category lost")
	}
}

func TestReconcile_IncomingNotMutated(t *testing.T) {
	r := testReconciler()
	existing := catalogWith("alityan", model.Product{
		ID:             "alityan-1",
		ManualCategory: model.CategoryRAM,
	})

	fresh := []model.Product{{ID: "alityan-1", Category: model.CategoryOther}}
	r.Reconcile(existing, map[string][]model.Product{"alityan": fresh}, true)

	if fresh[0].ManualCategory != "" {
		t.Fatalf("caller's product slice was mutated")
	}
}

func TestReconcile_ManualSiteSurvivesReplace(t *testing.T) {
	r := testReconciler("galaxyiq")
	existing := catalogWith("galaxyiq", model.Product{ID: "galaxyiq-1", Price: 100})
	existing.Sites["alityan"] = &model.SiteData{ProductCount: 1, Products: []model.Product{{ID: "alityan-1"}}}
	existing.RecomputeTotal()

	incoming := map[string][]model.Product{
		"globaliraq": {{ID: "globaliraq-1", Price: 200}},
	}
	out := r.Reconcile(existing, incoming, false)

	if _, ok := out.Sites["galaxyiq"]; !ok {
		t.Fatalf("manual-only site dropped during replace pass")
	}
	if _, ok := out.Sites["alityan"]; ok {
		t.Fatalf("non-manual site should not survive replace pass")
	}
	if out.TotalProducts != 2 {
		t.Fatalf("total_products = %d, want 2", out.TotalProducts)
	}
}

func TestReconcile_TotalAlwaysSumOfBuckets(t *testing.T) {
	r := testReconciler("galaxyiq")
	existing := catalogWith("galaxyiq", model.Product{ID: "galaxyiq-1"})
	existing.Sites["alityan"] = &model.SiteData{ProductCount: 3, Products: make([]model.Product, 3)}
	existing.RecomputeTotal()

	incoming := map[string][]model.Product{
		"alityan":    make([]model.Product, 5),
		"globaliraq": make([]model.Product, 7),
		"kolshzin":   {},
	}
	out := r.Reconcile(existing, incoming, true)

	sum := 0
	for _, data := range out.Sites {
		sum += data.ProductCount
	}
	if out.TotalProducts != sum {
		t.Fatalf("total_products = %d, bucket sum = %d", out.TotalProducts, sum)
	}
	if out.TotalProducts != 13 {
		t.Fatalf("total_products = %d, want 13", out.TotalProducts)
	}
}

func TestReconcile_NilExisting(t *testing.T) {
	r := testReconciler()
	out := r.Reconcile(nil, map[string][]model.Product{
		"alityan": {{ID: "alityan-1"}},
	}, true)
	if out.TotalProducts != 1 {
		t.Fatalf("total_products = %d, want 1", out.TotalProducts)
	}
}

func TestUpdateProductSpec(t *testing.T) {
	r := testReconciler()

	t.Run("set and clear specs", func(t *testing.T) {
		c := catalogWith("alityan", model.Product{ID: "alityan-1", Title: "X670E"})

		err := r.UpdateProductSpec(c, SpecUpdate{
			ProductID: "alityan-1",
			Site:      "alityan",
			Specs:     map[string]any{"socket": "AM5"},
		})
		if err != nil {
			t.Fatalf("set specs: %v", err)
		}
		if c.Sites["alityan"].Products[0].CompatibilitySpecs["socket"] != "AM5" {
			t.Fatalf("specs not applied")
		}

		err = r.UpdateProductSpec(c, SpecUpdate{
			ProductID:  "alityan-1",
			Site:       "alityan",
			ClearSpecs: true,
		})
		if err != nil {
			t.Fatalf("clear specs: %v", err)
		}
		if c.Sites["alityan"].Products[0].CompatibilitySpecs != nil {
			t.Fatalf("specs not cleared")
		}
	})

	t.Run("category override", func(t *testing.T) {
		c := catalogWith("alityan", model.Product{ID: "alityan-1", Category: model.CategoryOther})

		err := r.UpdateProductSpec(c, SpecUpdate{
			ProductID:        "alityan-1",
			Site:             "alityan",
			Category:         model.CategoryGPU,
			ManualCategory:   model.CategoryGPU,
			OriginalCategory: model.CategoryOther,
		})
		if err != nil {
			t.Fatalf("update category: %v", err)
		}
		got := c.Sites["alityan"].Products[0]
		if got.Category != model.CategoryGPU || got.ManualCategory != model.CategoryGPU || got.OriginalCategory != model.CategoryOther {
			t.Fatalf("category fields not applied: %+v", got)
		}
	})

	t.Run("unknown site", func(t *testing.T) {
		c := catalogWith("alityan", model.Product{ID: "alityan-1"})
		err := r.UpdateProductSpec(c, SpecUpdate{ProductID: "alityan-1", Site: "nosuch"})
		if !errors.Is(err, ErrSiteNotFound) {
			t.Fatalf("expected ErrSiteNotFound, got %v", err)
		}
	})

	t.Run("unknown product", func(t *testing.T) {
		c := catalogWith("alityan", model.Product{ID: "alityan-1"})
		err := r.UpdateProductSpec(c, SpecUpdate{ProductID: "alityan-999", Site: "alityan"})
		if !errors.Is(err, ErrProductNotFound) {
			t.Fatalf("expected ErrProductNotFound, got %v", err)
		}
	})
}
