package mailer

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotConfigured 邮件服务缺少凭据
var ErrNotConfigured = errors.New("mailer: not configured")

// Message 一封 HTML 邮件
type Message struct {
	To      string
	Subject string
	HTML    string
}

// Sender 邮件发送接口，不做重试
type Sender interface {
	Send(ctx context.Context, msg *Message) error
}

// Options 邮件服务配置
type Options struct {
	Driver       string // resend/smtp
	From         string
	ResendAPIKey string
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
}

// New 按驱动创建发送器
func New(opts Options) (Sender, error) {
	switch opts.Driver {
	case "", "resend":
		return NewResendSender(opts.ResendAPIKey, opts.From)
	case "smtp":
		return NewSMTPSender(opts.SMTPHost, opts.SMTPPort, opts.SMTPUsername, opts.SMTPPassword, opts.From)
	default:
		return nil, fmt.Errorf("mailer: unknown driver %q", opts.Driver)
	}
}

type unconfigured struct{}

func (unconfigured) Send(context.Context, *Message) error { return ErrNotConfigured }

// Unconfigured 所有发送都返回 ErrNotConfigured，命令行工具在未配置邮件服务时使用
func Unconfigured() Sender { return unconfigured{} }
