package notify

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"strings"

	"supertodo/internal/config"

	"gopkg.in/gomail.v2"
)

// EmailNotifier 实现邮件通知。
type EmailNotifier struct {
	cfg    *config.EmailConfig
	logger *slog.Logger
	send   func(m *gomail.Message) error
}

// NewEmailNotifier 创建一个新的邮件通知器。
func NewEmailNotifier(cfg *config.EmailConfig, logger *slog.Logger) *EmailNotifier {
	n := &EmailNotifier{
		cfg:    cfg,
		logger: logger,
	}
	n.send = n.dialAndSend
	return n
}

// Configured 判断 SMTP 配置是否完整。
func (n *EmailNotifier) Configured() bool {
	return n != nil && n.cfg != nil && n.cfg.SMTPHost != "" && n.cfg.SMTPUser != "" && n.cfg.FromEmail != ""
}

// SendWelcome 发送欢迎邮件；未配置 SMTP 时直接跳过。
func (n *EmailNotifier) SendWelcome(ctx context.Context, name string, toEmail string) error {
	if !n.Configured() {
		if n != nil && n.logger != nil {
			n.logger.Debug("email config missing, skip welcome mail")
		}
		return nil
	}
	if strings.TrimSpace(toEmail) == "" {
		return fmt.Errorf("empty recipient")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m := gomail.NewMessage()
	m.SetHeader("From", n.cfg.FromEmail)
	m.SetHeader("To", toEmail)
	m.SetHeader("Subject", "[SuperTodo] 欢迎加入")
	m.SetBody("text/html", buildWelcomeBody(name))

	if err := n.send(m); err != nil {
		return fmt.Errorf("send email: %w", err)
	}

	if n.logger != nil {
		n.logger.Info("welcome email sent", slog.String("to", toEmail))
	}
	return nil
}

func (n *EmailNotifier) dialAndSend(m *gomail.Message) error {
	d := gomail.NewDialer(n.cfg.SMTPHost, n.cfg.SMTPPort, n.cfg.SMTPUser, n.cfg.SMTPPass)
	return d.DialAndSend(m)
}

func buildWelcomeBody(name string) string {
	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif;">
  <div style="max-width: 520px; margin: 0 auto; padding: 16px;">
    <h2>Hi %s,</h2>
    <p>你的 SuperTodo 账户已创建，现在可以登录并开始管理任务了。</p>
  </div>
</body>
</html>`, html.EscapeString(name))
}
