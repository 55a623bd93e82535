package scraper

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestShopifyFetcher_CollectionsAndAll(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page := r.URL.Query().Get("page")
		switch r.URL.Path {
		case "/collections/gpus/products.json":
			if page != "1" {
				fmt.Fprint(w, `{"products": []}`)
				return
			}
			fmt.Fprint(w, `{"products": [
				{"id": 101, "title": "RTX 4070 Super", "handle": "rtx-4070-super",
				 "images": ["https://cdn.example.com/4070.jpg"],
				 "variants": [{"price": "745000.000", "compare_at_price": "850000.000", "available": true}]},
				{"id": 102, "title": "RX 7800 XT", "handle": "rx-7800-xt",
				 "images": [],
				 "variants": [{"price": "1850.000", "compare_at_price": null, "available": false}]}
			]}`)
		case "/collections/all/products.json":
			if page != "1" {
				fmt.Fprint(w, `{"products": []}`)
				return
			}
			fmt.Fprint(w, `{"products": [
				{"id": 101, "title": "RTX 4070 Super", "handle": "rtx-4070-super",
				 "variants": [{"price": "745000.000"}]},
				{"id": 300, "title": "USB Hub", "handle": "usb-hub",
				 "variants": [{"price": "25000.000", "available": true}]}
			]}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	f := NewAlityanFetcher(srv.URL, 5*time.Second, nil, discardLogger())
	products, err := f.Fetch(context.Background())
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}

	// gpus 集合 2 条 + all 集合去重后 1 条
	if len(products) != 3 {
		t.Fatalf("products = %d, want 3", len(products))
	}

	gpu := products[0]
	if gpu.ID != "alityan-101" {
		t.Fatalf("id = %q, want alityan-101", gpu.ID)
	}
	if gpu.Category != "GPU" {
		t.Fatalf("category = %q, want GPU", gpu.Category)
	}
	// 长格式 "745000.000" 去掉 .000 尾巴
	if gpu.Price != 745000 {
		t.Fatalf("price = %v, want 745000", gpu.Price)
	}
	if gpu.OldPrice == nil || *gpu.OldPrice != 850000 {
		t.Fatalf("old_price = %v, want 850000", gpu.OldPrice)
	}
	if gpu.Discount != 12 {
		t.Fatalf("discount = %d, want 12", gpu.Discount)
	}
	if gpu.DetectedCurrency != "IQD" {
		t.Fatalf("currency = %q, want IQD", gpu.DetectedCurrency)
	}
	if gpu.Image != "https://cdn.example.com/4070.jpg" {
		t.Fatalf("image = %q", gpu.Image)
	}
	if gpu.Link != srv.URL+"/products/rtx-4070-super" {
		t.Fatalf("link = %q", gpu.Link)
	}
	if !gpu.InStock {
		t.Fatalf("expected in stock")
	}

	// 短格式 "1850.000" 是千分位写法，1,850,000 第纳尔
	short := products[1]
	if short.Price != 1850000 {
		t.Fatalf("short format price = %v, want 1850000", short.Price)
	}
	if short.OldPrice != nil {
		t.Fatalf("expected no old price, got %v", *short.OldPrice)
	}
	if short.InStock {
		t.Fatalf("expected out of stock")
	}

	// all 集合：ID 101 去重，只剩 300，未归类
	other := products[2]
	if other.ID != "alityan-300" {
		t.Fatalf("id = %q, want alityan-300", other.ID)
	}
	if other.Category != "" {
		t.Fatalf("category = %q, want empty", other.Category)
	}
}

func TestShopifyFetcher_ProductTypeCategory(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/collections/all/products.json" || r.URL.Query().Get("page") != "1" {
			if r.URL.Path == "/collections/all/products.json" {
				fmt.Fprint(w, `{"products": []}`)
				return
			}
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, `{"products": [
			{"id": 7, "title": "RTX 4090", "handle": "rtx-4090", "product_type": "Nvidia",
			 "variants": [{"price": "2500000.000"}]}
		]}`)
	}))
	defer srv.Close()

	f := NewGlobalIraqFetcher(srv.URL, 5*time.Second, nil, discardLogger())
	products, err := f.Fetch(context.Background())
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(products) != 1 {
		t.Fatalf("products = %d, want 1", len(products))
	}
	if products[0].Category != "GPU" {
		t.Fatalf("category = %q, want GPU from product_type", products[0].Category)
	}
	if products[0].Price != 2500000 {
		t.Fatalf("price = %v, want 2500000", products[0].Price)
	}
}

func TestShopifyFetcher_AllSitesDownReturnsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "maintenance", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	f := NewGlobalIraqFetcher(srv.URL, 5*time.Second, nil, discardLogger())
	if _, err := f.Fetch(context.Background()); err == nil {
		t.Fatalf("expected error when every collection fails")
	}
}

func TestFixGlobalIraqPrice(t *testing.T) {
	cases := []struct{ in, want string }{
		{"1425000.000", "1425000"},
		{"1850.000", "1850"},
		{"745000", "745000"},
		{"", ""},
		{"1.425.000", "1.425"},
	}
	for _, tc := range cases {
		if got := fixGlobalIraqPrice(tc.in); got != tc.want {
			t.Fatalf("fixGlobalIraqPrice(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestFixAlityanPrice(t *testing.T) {
	cases := []struct{ in, want string }{
		{"745000.000", "745000"}, // 整数部分 5 位以上，.000 是小数尾巴
		{"1850.000", "1850.000"}, // 4 位以内，.000 是千分位
		{"12.99", "12.99"},
		{"", ""},
	}
	for _, tc := range cases {
		if got := fixAlityanPrice(tc.in); got != tc.want {
			t.Fatalf("fixAlityanPrice(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
