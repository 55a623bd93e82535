package notify

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"strings"

	"github.com/Maryoma-commits/NexuesPc/internal/config"

	"gopkg.in/gomail.v2"
)

// EmailNotifier 通过 SMTP 发送告警邮件。
type EmailNotifier struct {
	cfg    *config.EmailConfig
	logger *slog.Logger
}

// NewEmailNotifier 创建邮件通知器。
func NewEmailNotifier(cfg *config.EmailConfig, logger *slog.Logger) *EmailNotifier {
	return &EmailNotifier{
		cfg:    cfg,
		logger: logger,
	}
}

// Send 发送告警邮件。SMTP 配置不完整时记录 warn 并跳过。
func (n *EmailNotifier) Send(ctx context.Context, alert Alert) error {
	if n.cfg.SMTPHost == "" || n.cfg.SMTPUser == "" || n.cfg.FromEmail == "" {
		n.logger.Warn("email config missing, skip notification",
			slog.String("site", alert.Site),
			slog.String("reason", alert.Reason))
		return nil
	}
	if strings.TrimSpace(n.cfg.ToEmail) == "" {
		n.logger.Warn("email recipient empty, skip notification")
		return nil
	}

	m := gomail.NewMessage()
	m.SetHeader("From", n.cfg.FromEmail)
	m.SetHeader("To", n.cfg.ToEmail)
	m.SetHeader("Subject", fmt.Sprintf("[NexuesPc] %s: %s", alert.Reason, alert.Site))
	m.SetBody("text/html", buildAlertBody(alert))

	d := gomail.NewDialer(n.cfg.SMTPHost, n.cfg.SMTPPort, n.cfg.SMTPUser, n.cfg.SMTPPass)
	if err := d.DialAndSend(m); err != nil {
		return fmt.Errorf("send email: %w", err)
	}

	n.logger.Info("alert email sent",
		slog.String("to", n.cfg.ToEmail),
		slog.String("site", alert.Site),
		slog.String("reason", alert.Reason))
	return nil
}

func buildAlertBody(alert Alert) string {
	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; color: #1f2937;">
  <div style="max-width: 560px; margin: 24px auto; border: 1px solid #e5e7eb; border-radius: 12px; overflow: hidden;">
    <div style="background: #0f172a; color: #ffffff; padding: 14px 20px; font-weight: bold;">[NexuesPc] 抓取告警</div>
    <div style="padding: 20px;">
      <p><b>站点:</b> %s</p>
      <p><b>事件:</b> %s</p>
      <p><b>详情:</b> %s</p>
      <p style="color: #6b7280; font-size: 12px;">时间: %s</p>
    </div>
  </div>
</body>
</html>`,
		html.EscapeString(alert.Site),
		html.EscapeString(alert.Reason),
		html.EscapeString(alert.Detail),
		alert.OccurredAt.Format("2006-01-02 15:04:05"))
}
