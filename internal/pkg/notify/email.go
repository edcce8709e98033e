package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"taskboard/internal/config"

	"gopkg.in/gomail.v2"
)

// EmailNotifier 实现邮件通知。
//
// SMTP 未配置时所有发送调用直接跳过并返回 nil，
// 保证没有邮件服务的部署也能正常工作。
type EmailNotifier struct {
	cfg    *config.EmailConfig
	logger *slog.Logger
}

// NewEmailNotifier 创建一个新的邮件通知器。
func NewEmailNotifier(cfg *config.EmailConfig, logger *slog.Logger) *EmailNotifier {
	return &EmailNotifier{
		cfg:    cfg,
		logger: logger,
	}
}

// SendAccountCreated 发送账户创建通知。
func (n *EmailNotifier) SendAccountCreated(ctx context.Context, toEmail string, fullName string) error {
	body := fmt.Sprintf(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif;">
  <div style="max-width: 520px; margin: 0 auto; padding: 16px;">
    <h2>Welcome to Taskboard</h2>
    <p>Hi %s,</p>
    <p>An administrator has created an account for you. You can sign in with your email address right away.</p>
  </div>
</body>
</html>`, htmlEscape(fullName))
	return n.send(toEmail, "[Taskboard] Your account has been created", body)
}

// SendAccountActivated 发送账户激活通知。
func (n *EmailNotifier) SendAccountActivated(ctx context.Context, toEmail string, fullName string) error {
	body := fmt.Sprintf(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif;">
  <div style="max-width: 520px; margin: 0 auto; padding: 16px;">
    <h2>Account activated</h2>
    <p>Hi %s,</p>
    <p>Your Taskboard account is now active. You can sign in and start tracking your tasks.</p>
  </div>
</body>
</html>`, htmlEscape(fullName))
	return n.send(toEmail, "[Taskboard] Your account is now active", body)
}

func (n *EmailNotifier) send(toEmail string, subject string, htmlBody string) error {
	if n.cfg.SMTPHost == "" || n.cfg.SMTPUser == "" || n.cfg.FromEmail == "" {
		if n.logger != nil {
			n.logger.Warn("email config missing, skip notification")
		}
		return nil
	}
	if strings.TrimSpace(toEmail) == "" {
		if n.logger != nil {
			n.logger.Warn("email recipient empty, skip notification")
		}
		return nil
	}

	m := gomail.NewMessage()
	m.SetHeader("From", n.cfg.FromEmail)
	m.SetHeader("To", toEmail)
	m.SetHeader("Subject", subject)
	m.SetBody("text/html", htmlBody)

	d := gomail.NewDialer(n.cfg.SMTPHost, n.cfg.SMTPPort, n.cfg.SMTPUser, n.cfg.SMTPPass)
	if err := d.DialAndSend(m); err != nil {
		return fmt.Errorf("send email: %w", err)
	}

	if n.logger != nil {
		n.logger.Info("email notification sent", slog.String("to", toEmail), slog.String("subject", subject))
	}
	return nil
}

var htmlReplacer = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

func htmlEscape(s string) string {
	return htmlReplacer.Replace(s)
}
