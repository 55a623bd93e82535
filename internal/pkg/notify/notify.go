package notify

import (
	"context"
	"time"
)

// Alert 描述一次需要人工关注的抓取事件。
type Alert struct {
	Site       string    // 站点标识
	Reason     string    // 事件类型 (如 "Scrape Failed", "Empty Fetch Discarded")
	Detail     string    // 补充说明或错误文本
	OccurredAt time.Time // 事件时间
}

// Notifier 定义告警通知接口。
type Notifier interface {
	// Send 发送告警。实现在配置缺失时应静默跳过而不是报错，
	// 通知失败不能影响抓取主流程。
	Send(ctx context.Context, alert Alert) error
}
