package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"math/big"
	"time"
)

var (
	ErrInvalidOTP = errors.New("auth: invalid otp")
	ErrOTPExpired = errors.New("auth: otp expired")
)

const (
	otpMin  = 100000
	otpSpan = 900000
)

// Challenge 找回密码验证码及其过期时间
type Challenge struct {
	Code      string
	ExpiresAt time.Time
}

// GenerateOTP 生成 100000-999999 之间的六位数字
func GenerateOTP() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(otpSpan))
	if err != nil {
		return "", fmt.Errorf("generate otp: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()+otpMin), nil
}

// OTPManager 签发并校验一次性验证码
type OTPManager struct {
	ttl time.Duration
	now func() time.Time
}

// NewOTPManager ttl<=0 时默认一小时
func NewOTPManager(ttl time.Duration, now func() time.Time) *OTPManager {
	if ttl <= 0 {
		ttl = time.Hour
	}
	if now == nil {
		now = time.Now
	}
	return &OTPManager{ttl: ttl, now: now}
}

func (m *OTPManager) TTL() time.Duration { return m.ttl }

// NewChallenge 生成新的验证码，覆盖旧值由调用方完成
func (m *OTPManager) NewChallenge() (Challenge, error) {
	code, err := GenerateOTP()
	if err != nil {
		return Challenge{}, err
	}
	return Challenge{Code: code, ExpiresAt: m.now().Add(m.ttl)}, nil
}

// Verify 先比对验证码再检查过期，到期时刻即视为过期
func (m *OTPManager) Verify(stored Challenge, supplied string) error {
	if stored.Code == "" || supplied == "" {
		return ErrInvalidOTP
	}
	if subtle.ConstantTimeCompare([]byte(stored.Code), []byte(supplied)) != 1 {
		return ErrInvalidOTP
	}
	if !m.now().Before(stored.ExpiresAt) {
		return ErrOTPExpired
	}
	return nil
}
