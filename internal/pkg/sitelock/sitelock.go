// Package sitelock 用 Redis 锁保证同一站点同一时刻只有一个抓取在进行。
//
// 定时批次和手动触发可能撞在一起，抓取前先拿站点锁，
// 拿不到就跳过本轮。锁带 TTL，持有方异常退出后自动失效。
package sitelock

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "nexuespc:scrape:lock:"

// Lock 站点级抓取锁。
type Lock struct {
	rdb *redis.Client
	ttl time.Duration
}

// New 创建站点锁，ttl 应大于单站点抓取的最长耗时。
func New(rdb *redis.Client, ttl time.Duration) *Lock {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Lock{
		rdb: rdb,
		ttl: ttl,
	}
}

// TryAcquire 尝试获取站点锁，返回是否拿到。
//
// 未配置 Redis 时视为总能拿到，单实例部署不强制依赖 Redis。
func (l *Lock) TryAcquire(ctx context.Context, site string) (bool, error) {
	if l == nil || l.rdb == nil || site == "" {
		return true, nil
	}
	ok, err := l.rdb.SetNX(ctx, keyPrefix+site, "1", l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("sitelock setnx: %w", err)
	}
	return ok, nil
}

// Release 释放站点锁。抓取结束后调用，不等 TTL 过期。
func (l *Lock) Release(ctx context.Context, site string) error {
	if l == nil || l.rdb == nil || site == "" {
		return nil
	}
	if err := l.rdb.Del(ctx, keyPrefix+site).Err(); err != nil {
		return fmt.Errorf("sitelock del: %w", err)
	}
	return nil
}
