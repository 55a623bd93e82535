// Package history 把每次站点抓取的结果记录到 MySQL，便于排查
// 某个站点从什么时候开始抓不到数据。未配置 DSN 时整个包退化为空操作。
package history

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// ScrapeRun 一次站点抓取的结果记录。
type ScrapeRun struct {
	ID         uint   `gorm:"primaryKey"`
	Site       string `gorm:"size:64;index"`
	Products   int
	Succeeded  bool
	Error      string `gorm:"size:1024"`
	DurationMS int64
	CreatedAt  time.Time `gorm:"index"`
}

// TableName 指定表名。
func (ScrapeRun) TableName() string { return "scrape_runs" }

// Store 抓取历史存储。
type Store struct {
	db     *gorm.DB
	logger *slog.Logger
}

// Open 连接 MySQL 并迁移表结构。dsn 为空时返回 nil Store，
// 所有方法对 nil 接收者都是空操作。
func Open(dsn string, logger *slog.Logger) (*Store, error) {
	if dsn == "" {
		return nil, nil
	}

	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}
	if err := db.AutoMigrate(&ScrapeRun{}); err != nil {
		return nil, fmt.Errorf("migrate scrape_runs: %w", err)
	}

	logger.Info("scrape history store ready")
	return &Store{db: db, logger: logger}, nil
}

// Record 写入一条抓取记录。失败只记日志，不打断抓取流程。
func (s *Store) Record(ctx context.Context, run ScrapeRun) {
	if s == nil || s.db == nil {
		return
	}
	if err := s.db.WithContext(ctx).Create(&run).Error; err != nil {
		s.logger.Error("record scrape run failed",
			slog.String("site", run.Site),
			slog.String("error", err.Error()))
	}
}

// Recent 返回最近的抓取记录，site 为空时不过滤站点。
func (s *Store) Recent(ctx context.Context, site string, limit int) ([]ScrapeRun, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	if limit <= 0 || limit > 500 {
		limit = 50
	}

	q := s.db.WithContext(ctx).Order("id DESC").Limit(limit)
	if site != "" {
		q = q.Where("site = ?", site)
	}

	var runs []ScrapeRun
	if err := q.Find(&runs).Error; err != nil {
		return nil, fmt.Errorf("query scrape runs: %w", err)
	}
	return runs, nil
}
