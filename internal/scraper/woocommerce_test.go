package scraper

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

const kolshzinListHTML = `
<div class="products">
  <div class="product-grid-item product product_cat-ram-ddr5 product-type-simple">
    <h3 class="wd-entities-title"><a href="https://kolshzin.example/product/fury-32gb/">Kingston Fury Beast 32GB DDR5</a></h3>
    <span class="price">
      <del><bdi>250,000 IQD</bdi></del>
      <ins><bdi>225,000 IQD</bdi></ins>
    </span>
    <img data-src="https://kolshzin.example/img/fury.jpg" src="placeholder.gif"/>
  </div>
  <div class="product-grid-item product product_cat-mystery-gadgets">
    <h3><a href="https://kolshzin.example/product/mystery/">Mystery Gadget</a></h3>
    <span class="price"><bdi>100,000 IQD</bdi></span>
    <img src="https://kolshzin.example/img/mystery.jpg"/>
    <p class="stock out-of-stock">Out of stock</p>
  </div>
</div>`

func TestKolshzinFetcher_ParsesListPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/product-category/hardware-components/pc-components/") {
			http.NotFound(w, r)
			return
		}
		// 页码超出范围时 WooCommerce 会重复返回最后一页
		fmt.Fprint(w, kolshzinListHTML)
	}))
	defer srv.Close()

	f := NewKolshzinFetcher(srv.URL, 5*time.Second, nil, discardLogger())
	products, err := f.Fetch(context.Background())
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(products) != 2 {
		t.Fatalf("products = %d, want 2", len(products))
	}

	ram := products[0]
	if !strings.HasPrefix(ram.ID, "kolshzin-") || len(ram.ID) != len("kolshzin-")+16 {
		t.Fatalf("id = %q, want kolshzin-<16 hex chars>", ram.ID)
	}
	if ram.Title != "Kingston Fury Beast 32GB DDR5" {
		t.Fatalf("title = %q", ram.Title)
	}
	if ram.Category != "RAM" {
		t.Fatalf("category = %q, want RAM from product_cat class", ram.Category)
	}
	if ram.Price != 225000 {
		t.Fatalf("price = %v, want 225000", ram.Price)
	}
	if ram.OldPrice == nil || *ram.OldPrice != 250000 {
		t.Fatalf("old_price = %v, want 250000", ram.OldPrice)
	}
	if ram.Discount != 10 {
		t.Fatalf("discount = %d, want 10", ram.Discount)
	}
	if ram.Image != "https://kolshzin.example/img/fury.jpg" {
		t.Fatalf("image = %q, want data-src value", ram.Image)
	}
	if !ram.InStock {
		t.Fatalf("expected in stock")
	}

	other := products[1]
	if other.Category != "Other" {
		t.Fatalf("category = %q, want Other for unknown slug", other.Category)
	}
	if other.InStock {
		t.Fatalf("expected out of stock")
	}
	if other.OldPrice != nil {
		t.Fatalf("expected no old price")
	}
}

func TestKolshzinFetcher_StopsOnRepeatedPage(t *testing.T) {
	var requests int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/product-category/hardware-components/pc-components/") {
			http.NotFound(w, r)
			return
		}
		requests++
		fmt.Fprint(w, kolshzinListHTML)
	}))
	defer srv.Close()

	f := NewKolshzinFetcher(srv.URL, 5*time.Second, nil, discardLogger())
	products, err := f.Fetch(context.Background())
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}

	// 第二页与第一页相同即停止翻页
	if requests != 2 {
		t.Fatalf("requests = %d, want 2 (first page + repeat detection)", requests)
	}
	// 相同商品链接只收录一次
	if len(products) != 2 {
		t.Fatalf("products = %d, want 2 after dedup", len(products))
	}
}

func TestKolshzinFetcher_AllPagesDownReturnsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer srv.Close()

	f := NewKolshzinFetcher(srv.URL, 5*time.Second, nil, discardLogger())
	if _, err := f.Fetch(context.Background()); err == nil {
		t.Fatalf("expected error when every category page fails")
	}
}
