package mailer

import (
	"bytes"
	"fmt"
	"html/template"
	"net/url"
	"strings"
)

var verifyEmailTmpl = template.Must(template.New("verify").Parse(`
<div style="font-family: Arial, sans-serif; line-height: 1.6;">
  <h2 style="color: #333;">Hello {{.Name}},</h2>
  <p>Thank you for registering on our platform. Please verify your email address by clicking the link below:</p>
  <a href="{{.Link}}" style="display: inline-block; padding: 10px 20px; margin: 20px 0; background-color: #28a745; color: #fff; text-decoration: none; border-radius: 5px;">
    Verify Email Address
  </a>
  <p>If you did not sign up for this account, please ignore this email.</p>
  <p>Best regards,<br/>The Team</p>
</div>
`))

var forgotPasswordTmpl = template.Must(template.New("forgot").Parse(`
<div style="font-family: Arial, sans-serif; line-height: 1.6;">
  <h2 style="color: #333;">Password Reset Request</h2>
  <p>Dear {{.Name}},</p>
  <p>We received a request to reset your password. Use the OTP below to proceed:</p>
  <div style="font-size: 24px; font-weight: bold; margin: 20px 0; color: #007BFF;">{{.OTP}}</div>
  <p>This OTP is valid for the next {{.Validity}}. If you did not request a password reset, please ignore this email.</p>
  <p>Thank you,<br/>The Support Team</p>
</div>
`))

// VerifyLink 前端邮箱验证链接
func VerifyLink(frontendURL, token string) string {
	return strings.TrimRight(frontendURL, "/") + "/verify-email?token=" + url.QueryEscape(token)
}

// VerifyEmail 注册后的邮箱验证邮件
func VerifyEmail(to, name, link string) (*Message, error) {
	var buf bytes.Buffer
	if err := verifyEmailTmpl.Execute(&buf, map[string]string{"Name": name, "Link": link}); err != nil {
		return nil, fmt.Errorf("render verify email: %w", err)
	}
	return &Message{To: to, Subject: "Verify your email address", HTML: buf.String()}, nil
}

// ForgotPassword 找回密码验证码邮件
func ForgotPassword(to, name, otp, validity string) (*Message, error) {
	var buf bytes.Buffer
	data := map[string]string{"Name": name, "OTP": otp, "Validity": validity}
	if err := forgotPasswordTmpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("render forgot password email: %w", err)
	}
	return &Message{To: to, Subject: "Forgot Password OTP", HTML: buf.String()}, nil
}
