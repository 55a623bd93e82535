package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/Maryoma-commits/NexuesPc/internal/api/auth"
	"github.com/Maryoma-commits/NexuesPc/internal/api/middleware"
	"github.com/Maryoma-commits/NexuesPc/internal/catalog"
	"github.com/Maryoma-commits/NexuesPc/internal/config"
	"github.com/Maryoma-commits/NexuesPc/internal/history"
	"github.com/Maryoma-commits/NexuesPc/internal/model"
	"github.com/Maryoma-commits/NexuesPc/internal/scraper"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

// Server 封装了 API 服务所需的依赖和路由处理。
//
// 它持有目录存储、抓取编排服务、Redis 客户端以及 Gin 路由引擎。
// 目录读取是公开的，抓取触发与人工标注需要管理员 JWT。
type Server struct {
	cfg     *config.Config
	logger  *slog.Logger
	rdb     *redis.Client
	router  *gin.Engine
	auth    *auth.Handler
	store   CatalogStore
	scrapes ScrapeRunner
	hist    *history.Store
}

// CatalogStore 目录文档的读写入口。
type CatalogStore interface {
	Load() *model.Catalog
	UpdateSpec(upd catalog.SpecUpdate) error
	Replace(c *model.Catalog) error
}

// ScrapeRunner 抓取批次的触发入口。
type ScrapeRunner interface {
	RunAll(ctx context.Context) (*model.Catalog, error)
	RunSite(ctx context.Context, site string) (*model.Catalog, error)
	Sites() []string
}

// NewServer 初始化 API 服务器并注册路由。
//
// 参数:
//
//	cfg: 配置对象
//	logger: 日志记录器
//	rdb: Redis 客户端，可以为 nil（健康检查会跳过 Redis）
//	store: 目录存储
//	scrapes: 抓取编排服务
//	hist: 抓取历史存储，可以为 nil
//
// 返回值:
//
//	*Server: 初始化完成的服务器实例
func NewServer(cfg *config.Config, logger *slog.Logger, rdb *redis.Client, store CatalogStore, scrapes ScrapeRunner, hist *history.Store) *Server {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(logger))

	s := &Server{
		cfg:     cfg,
		logger:  logger,
		rdb:     rdb,
		router:  r,
		auth:    auth.NewHandler(cfg.Security.JWTSecret, cfg.Security.AdminUser, cfg.Security.AdminPassHash, logger),
		store:   store,
		scrapes: scrapes,
		hist:    hist,
	}
	s.registerRoutes()
	return s
}

// Router 返回 HTTP 路由处理器。
func (s *Server) Router() http.Handler {
	return s.router
}

// Close 关闭缓存连接。
func (s *Server) Close() error {
	if s.rdb != nil {
		return s.rdb.Close()
	}
	return nil
}

// registerRoutes 注册所有的 API 路由。
func (s *Server) registerRoutes() {
	s.router.StaticFile("/", "./web/index.html")
	s.router.Static("/assets", "./web/assets")

	// Prometheus metrics 端点
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	s.router.GET("/healthz", s.handleHealthz)
	s.router.GET("/products", s.handleProducts)
	s.router.GET("/status", s.handleStatus)

	s.router.POST("/login", s.auth.Login)

	authed := s.router.Group("/")
	authed.Use(middleware.AuthMiddleware(s.cfg.Security.JWTSecret))
	authed.POST("/logout", s.auth.Logout)
	authed.POST("/scrape", s.handleScrapeAll)
	authed.POST("/scrape/:site", s.handleScrapeSite)
	authed.POST("/save-single-spec", s.handleSaveSingleSpec)
	authed.POST("/save-products", s.handleSaveProducts)
	authed.GET("/history", s.handleHistory)
}

func (s *Server) handleHealthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if s.rdb != nil {
		if err := s.rdb.Ping(ctx).Err(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error"})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// handleProducts 返回完整目录文档，与磁盘上的 JSON 同构。
func (s *Server) handleProducts(c *gin.Context) {
	c.JSON(http.StatusOK, s.store.Load())
}

type siteStatus struct {
	ProductCount int       `json:"product_count"`
	LastUpdated  time.Time `json:"last_updated"`
}

// handleStatus 返回各站点的商品数量与最近更新时间。
func (s *Server) handleStatus(c *gin.Context) {
	cat := s.store.Load()

	sites := make(map[string]siteStatus, len(cat.Sites))
	for name, data := range cat.Sites {
		sites[name] = siteStatus{
			ProductCount: data.ProductCount,
			LastUpdated:  data.LastUpdated,
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"total_products":  cat.TotalProducts,
		"last_updated":    cat.LastUpdated,
		"sites":           sites,
		"scrape_sites":    s.scrapes.Sites(),
		"scrape_interval": s.cfg.App.ScrapeInterval.String(),
	})
}

// handleScrapeAll 触发一个完整抓取批次。
//
// 批次可能持续数分钟，在后台执行，接口立即返回。并发触发由
// 站点锁兜底：正在抓取的站点会被本批次跳过。
func (s *Server) handleScrapeAll(c *gin.Context) {
	go func() {
		if _, err := s.scrapes.RunAll(context.Background()); err != nil {
			s.logger.Error("manual scrape batch failed", slog.String("error", err.Error()))
		}
	}()

	c.JSON(http.StatusAccepted, gin.H{
		"message": "scrape started",
		"sites":   s.scrapes.Sites(),
	})
}

// handleScrapeSite 同步抓取单个站点并合并进目录。
func (s *Server) handleScrapeSite(c *gin.Context) {
	site := c.Param("site")

	merged, err := s.scrapes.RunSite(c.Request.Context(), site)
	if err != nil {
		if errors.Is(err, scraper.ErrUnknownSite) {
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown site: " + site})
			return
		}
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}

	count := 0
	if data, ok := merged.Sites[site]; ok {
		count = data.ProductCount
	}
	c.JSON(http.StatusOK, gin.H{
		"site":           site,
		"product_count":  count,
		"total_products": merged.TotalProducts,
	})
}

// saveSingleSpecRequest 单个商品的人工标注修改。
//
// specs 字段显式传 null 表示清除兼容性参数，不传则保持不变。
type saveSingleSpecRequest struct {
	Site      string          `json:"site" binding:"required"`
	ProductID string          `json:"product_id" binding:"required"`
	Specs     json.RawMessage `json:"specs"`
	Category  string          `json:"category"`
}

func (s *Server) handleSaveSingleSpec(c *gin.Context) {
	var req saveSingleSpecRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	upd := catalog.SpecUpdate{
		ProductID: req.ProductID,
		Site:      req.Site,
	}
	if len(req.Specs) > 0 {
		if string(req.Specs) == "null" {
			upd.ClearSpecs = true
		} else {
			var specs map[string]any
			if err := json.Unmarshal(req.Specs, &specs); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "specs must be an object or null"})
				return
			}
			upd.Specs = specs
		}
	}
	if req.Category != "" {
		upd.Category = req.Category
		upd.ManualCategory = req.Category
	}

	if err := s.store.UpdateSpec(upd); err != nil {
		if errors.Is(err, catalog.ErrSiteNotFound) || errors.Is(err, catalog.ErrProductNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		s.logger.Error("save single spec failed",
			slog.String("site", req.Site),
			slog.String("product_id", req.ProductID),
			slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "save failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"saved": req.ProductID})
}

// handleSaveProducts 全量保存管理端编辑后的目录文档。
// 写入前会自动备份当前文档。
func (s *Server) handleSaveProducts(c *gin.Context) {
	var cat model.Catalog
	if err := c.ShouldBindJSON(&cat); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := s.store.Replace(&cat); err != nil {
		if len(cat.Sites) == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		s.logger.Error("save products failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "save failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"total_products": cat.TotalProducts})
}

// handleHistory 返回最近的抓取记录。未配置 MySQL 时返回 404。
func (s *Server) handleHistory(c *gin.Context) {
	if s.hist == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "scrape history disabled"})
		return
	}

	site := c.Query("site")
	limit := parseQueryInt(c, "limit", 50)

	runs, err := s.hist.Recent(c.Request.Context(), site, limit)
	if err != nil {
		s.logger.Error("query scrape history failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs})
}

// parseQueryInt 解析整数查询参数，非法时回退默认值。
func parseQueryInt(c *gin.Context, key string, def int) int {
	v := c.Query(key)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}
