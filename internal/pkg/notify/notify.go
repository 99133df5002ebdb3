package notify

import "context"

// Notifier 定义账户通知接口。
type Notifier interface {
	// SendWelcome 在注册成功后发送欢迎邮件。
	//
	// 参数:
	//   ctx: 上下文
	//   name: 用户名称
	//   toEmail: 接收邮箱
	SendWelcome(ctx context.Context, name string, toEmail string) error
}
