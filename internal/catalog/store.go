package catalog

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/Maryoma-commits/NexuesPc/internal/model"
)

// Store 负责目录文档的读写。
//
// 目录是单个 UTF-8 JSON 文件（缩进格式，前端直接读取），
// 每次合并都是 读取 -> 内存合并 -> 整体写回。Store 内部用互斥锁
// 串行化所有 load→merge→write 序列：定时抓取和手动触发可能并发到达，
// 共享文档不允许并发读改写。
type Store struct {
	path       string
	backupDir  string
	logger     *slog.Logger
	reconciler *Reconciler

	mu sync.Mutex
}

// NewStore 创建目录存储。
//
// 参数:
//
//	path: 目录 JSON 文件路径
//	backupDir: 备份目录，为空时不做备份
//	logger: 日志记录器
//	reconciler: 合并器
func NewStore(path, backupDir string, logger *slog.Logger, reconciler *Reconciler) *Store {
	return &Store{
		path:       path,
		backupDir:  backupDir,
		logger:     logger,
		reconciler: reconciler,
	}
}

// Load 读取持久化的目录。
//
// 文件不存在视为空目录，不报错；文件损坏时记录错误并返回空目录，
// 让空结果保护和人工字段保留按"首次运行"语义处理。
func (s *Store) Load() *model.Catalog {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			s.logger.Info("no catalog file found, starting empty",
				slog.String("path", s.path))
		} else {
			s.logger.Error("read catalog failed, starting empty",
				slog.String("path", s.path),
				slog.String("error", err.Error()))
		}
		return model.NewCatalog()
	}

	c := model.NewCatalog()
	if err := json.Unmarshal(data, c); err != nil {
		s.logger.Error("parse catalog failed, starting empty",
			slog.String("path", s.path),
			slog.String("error", err.Error()))
		return model.NewCatalog()
	}
	if c.Sites == nil {
		c.Sites = make(map[string]*model.SiteData)
	}

	s.logger.Info("catalog loaded",
		slog.Int("total_products", c.TotalProducts),
		slog.Int("sites", len(c.Sites)))
	return c
}

// Save 把目录写回磁盘。
//
// 写入通过临时文件 + rename 完成：写失败时磁盘上的旧文档保持权威，
// 合并结果直接丢弃，下个周期重新抓取即可。
func (s *Store) Save(c *model.Catalog) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal catalog: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("create catalog dir: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write catalog temp file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace catalog file: %w", err)
	}

	s.logger.Info("catalog saved",
		slog.String("path", s.path),
		slog.Int("total_products", c.TotalProducts))
	return nil
}

// Backup 把当前目录文件复制一份到备份目录，返回备份路径。
// 没有既有文件或未配置备份目录时返回空串，不报错。
func (s *Store) Backup() (string, error) {
	if s.backupDir == "" {
		return "", nil
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("read catalog for backup: %w", err)
	}

	if err := os.MkdirAll(s.backupDir, 0755); err != nil {
		return "", fmt.Errorf("create backup dir: %w", err)
	}
	name := fmt.Sprintf("products_backup_%s.json", time.Now().Format("20060102_150405"))
	path := filepath.Join(s.backupDir, name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("write backup: %w", err)
	}

	s.logger.Info("catalog backup created", slog.String("path", path))
	return path, nil
}

// Apply 执行一次完整的合并回合：加载既有目录、合并、写回。
//
// 这是抓取批次和单站点手动触发共用的入口，互斥锁保证同一时刻
// 只有一个回合在进行。返回合并后的目录。
func (s *Store) Apply(incoming map[string][]model.Product, merge bool) (*model.Catalog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing := s.Load()
	merged := s.reconciler.Reconcile(existing, incoming, merge)
	if err := s.Save(merged); err != nil {
		return nil, err
	}
	return merged, nil
}

// UpdateSpec 对单个商品应用人工标注修改并写回。
//
// 站点或商品不存在时返回错误且不改动磁盘文件。
func (s *Store) UpdateSpec(upd SpecUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.Load()
	if err := s.reconciler.UpdateProductSpec(c, upd); err != nil {
		return err
	}
	return s.Save(c)
}

// Replace 在备份后整体写入调用方提供的目录文档（管理端全量保存）。
// 文档缺少站点数据时拒绝写入。
func (s *Store) Replace(c *model.Catalog) error {
	if c == nil || len(c.Sites) == 0 {
		return fmt.Errorf("invalid catalog document: missing sites")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.Backup(); err != nil {
		return err
	}
	c.RecomputeTotal()
	return s.Save(c)
}
