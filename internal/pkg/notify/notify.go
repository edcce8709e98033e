package notify

import "context"

// Notifier 定义账户通知接口。
type Notifier interface {
	// SendAccountCreated 通知用户账户已由管理员创建。
	SendAccountCreated(ctx context.Context, toEmail string, fullName string) error

	// SendAccountActivated 通知用户账户已激活。
	SendAccountActivated(ctx context.Context, toEmail string, fullName string) error
}
