// Package client 商城用户接口的 Go 客户端，负责保存会话令牌并在访问令牌过期时自动续期
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// envelope 服务端统一响应结构
type envelope[T any] struct {
	Message string `json:"message"`
	Error   bool   `json:"error"`
	Success bool   `json:"success"`
	Data    T      `json:"data"`
}

// APIError 服务端返回的错误
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.StatusCode, e.Message)
}

// User 用户信息
type User struct {
	ID            string     `json:"_id"`
	Name          string     `json:"name"`
	Email         string     `json:"email"`
	Avatar        string     `json:"avatar"`
	Mobile        string     `json:"mobile"`
	VerifyEmail   bool       `json:"verify_email"`
	LastLoginDate *time.Time `json:"last_login_date"`
	Status        string     `json:"status"`
	Role          string     `json:"role"`
}

// Options 客户端配置
type Options struct {
	BaseURL string
	// Store 为空时使用内存存储
	Store            TokenStore
	Base             http.RoundTripper
	Timeout          time.Duration
	OnSessionExpired func()
	Logger           *zap.SugaredLogger
}

// Client 会话客户端
type Client struct {
	baseURL string
	store   TokenStore
	http    *http.Client
}

// New 创建客户端
func New(opts Options) (*Client, error) {
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		return nil, errors.New("client: base url is required")
	}
	store := opts.Store
	if store == nil {
		store = NewMemoryStore()
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		baseURL: baseURL,
		store:   store,
		http: &http.Client{
			Timeout: timeout,
			Transport: &Transport{
				Base:             opts.Base,
				Store:            store,
				RefreshURL:       baseURL + RefreshPath,
				OnSessionExpired: opts.OnSessionExpired,
				Logger:           opts.Logger,
			},
		},
	}, nil
}

// Store 当前使用的令牌存储
func (c *Client) Store() TokenStore { return c.store }

// HTTPClient 带自动续期的 http.Client，可用于访问其他受保护接口
func (c *Client) HTTPClient() *http.Client { return c.http }

// do 发送 JSON 请求并解析响应体中的 data
func (c *Client) do(ctx context.Context, method, path string, in, out any) (string, error) {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return "", fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	env := envelope[json.RawMessage]{}
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return "", &APIError{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
	}
	if resp.StatusCode >= http.StatusBadRequest || env.Error {
		return "", &APIError{StatusCode: resp.StatusCode, Message: env.Message}
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return "", fmt.Errorf("decode response: %w", err)
		}
	}
	return env.Message, nil
}

// Register 注册
func (c *Client) Register(ctx context.Context, name, email, password string) (*User, error) {
	var u User
	in := map[string]string{"name": name, "email": email, "password": password}
	if _, err := c.do(ctx, http.MethodPost, "/api/user/register", in, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// VerifyEmail 使用邮件中的令牌验证邮箱
func (c *Client) VerifyEmail(ctx context.Context, token string) (string, error) {
	return c.do(ctx, http.MethodPost, "/api/user/verify-email", map[string]string{"verifyToken": token}, nil)
}

// Login 登录并保存两种令牌
func (c *Client) Login(ctx context.Context, email, password string) error {
	var tokens Tokens
	in := map[string]string{"email": email, "password": password}
	if _, err := c.do(ctx, http.MethodPost, "/api/user/login", in, &tokens); err != nil {
		return err
	}
	return c.store.Save(tokens)
}

// Logout 退出登录，服务端调用失败时也清除本地令牌
func (c *Client) Logout(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodGet, "/api/user/logout", nil, nil)
	if clearErr := c.store.Clear(); clearErr != nil {
		return errors.Join(err, clearErr)
	}
	return err
}

// UserDetails 当前用户信息
func (c *Client) UserDetails(ctx context.Context) (*User, error) {
	var u User
	if _, err := c.do(ctx, http.MethodGet, "/api/user/user-details", nil, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// ForgotPassword 请求找回密码验证码
func (c *Client) ForgotPassword(ctx context.Context, email string) error {
	_, err := c.do(ctx, http.MethodPut, "/api/user/forgot-password", map[string]string{"email": email}, nil)
	return err
}

// VerifyOTP 校验验证码
func (c *Client) VerifyOTP(ctx context.Context, email, otp string) error {
	_, err := c.do(ctx, http.MethodPut, "/api/user/verify-otp", map[string]string{"email": email, "otp": otp}, nil)
	return err
}

// ResetPassword 验证码校验通过后重置密码
func (c *Client) ResetPassword(ctx context.Context, email, newPassword, confPassword string) error {
	in := map[string]string{"email": email, "newPassword": newPassword, "confPassword": confPassword}
	_, err := c.do(ctx, http.MethodPut, "/api/user/reset-password", in, nil)
	return err
}
