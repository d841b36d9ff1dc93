package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrSecretNotConfigured 签名密钥未配置
	ErrSecretNotConfigured = errors.New("auth: token secret not configured")
	// ErrTokenExpired 令牌已过期
	ErrTokenExpired = errors.New("auth: token expired")
	// ErrTokenInvalid 签名错误、格式错误或算法不匹配
	ErrTokenInvalid = errors.New("auth: token invalid")
)

// Subject 令牌载荷中的用户身份
type Subject struct {
	ID    string
	Email string
}

// TokenType 令牌类型
type TokenType string

const (
	// AccessToken 访问令牌，用于访问受保护接口
	AccessToken TokenType = "access"
	// RefreshToken 刷新令牌，只用于换取新的访问令牌
	RefreshToken TokenType = "refresh"
)

// Claims 自定义JWT声明结构体
type Claims struct {
	ID    string    `json:"id"`
	Email string    `json:"email"`
	Type  TokenType `json:"type"`
	jwt.RegisteredClaims
}

// Options 令牌签发配置
type Options struct {
	AccessSecret  string
	RefreshSecret string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Issuer        string
	// Now 测试时注入时钟，为空使用 time.Now
	Now func() time.Time
}

// Issuer 签发与校验访问令牌、刷新令牌，两者使用不同密钥
type Issuer struct {
	opts Options
}

// NewIssuer 创建令牌签发器
func NewIssuer(opts Options) *Issuer {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.AccessTTL <= 0 {
		opts.AccessTTL = time.Hour
	}
	if opts.RefreshTTL <= 0 {
		opts.RefreshTTL = 30 * 24 * time.Hour
	}
	return &Issuer{opts: opts}
}

// Configured 两个密钥是否都已配置
func (i *Issuer) Configured() bool {
	return i.opts.AccessSecret != "" && i.opts.RefreshSecret != ""
}

func (i *Issuer) AccessTTL() time.Duration  { return i.opts.AccessTTL }
func (i *Issuer) RefreshTTL() time.Duration { return i.opts.RefreshTTL }

// Now 签发器使用的当前时间
func (i *Issuer) Now() time.Time { return i.opts.Now() }

// IssueAccessToken 签发访问令牌
func (i *Issuer) IssueAccessToken(sub Subject) (string, error) {
	return i.sign(sub, AccessToken, i.opts.AccessSecret, i.opts.AccessTTL)
}

// IssueRefreshToken 签发刷新令牌，持久化由调用方负责
func (i *Issuer) IssueRefreshToken(sub Subject) (string, error) {
	return i.sign(sub, RefreshToken, i.opts.RefreshSecret, i.opts.RefreshTTL)
}

// VerifyAccessToken 校验访问令牌
func (i *Issuer) VerifyAccessToken(token string) (*Claims, error) {
	return i.verify(token, AccessToken, i.opts.AccessSecret)
}

// VerifyRefreshToken 校验刷新令牌
func (i *Issuer) VerifyRefreshToken(token string) (*Claims, error) {
	return i.verify(token, RefreshToken, i.opts.RefreshSecret)
}

func (i *Issuer) sign(sub Subject, typ TokenType, secret string, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", ErrSecretNotConfigured
	}

	now := i.opts.Now()
	claims := Claims{
		ID:    sub.ID,
		Email: sub.Email,
		Type:  typ,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.opts.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// verify 校验签名、过期时间与令牌类型，仅接受 HS256。
// 类型不符时拒绝，两个密钥被配置成相同值时刷新令牌也不能充当访问令牌
func (i *Issuer) verify(token string, typ TokenType, secret string) (*Claims, error) {
	if secret == "" {
		return nil, ErrSecretNotConfigured
	}
	if token == "" {
		return nil, ErrTokenInvalid
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return []byte(secret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(i.opts.Now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	if !parsed.Valid || claims.ID == "" {
		return nil, ErrTokenInvalid
	}
	if claims.Type != typ {
		return nil, fmt.Errorf("%w: expected %s token, got %q", ErrTokenInvalid, typ, claims.Type)
	}
	return claims, nil
}
