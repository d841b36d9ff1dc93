package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"
)

// RefreshPath 刷新访问令牌的接口路径
const RefreshPath = "/api/user/refresh-token"

// ErrSessionExpired 刷新令牌失效，需要重新登录
var ErrSessionExpired = errors.New("client: session expired")

// Transport 为请求附加访问令牌，遇到 401 时用刷新令牌换取新访问令牌并重试一次
type Transport struct {
	// Base 为空时使用 http.DefaultTransport
	Base       http.RoundTripper
	Store      TokenStore
	RefreshURL string
	// OnSessionExpired 刷新失败、本地会话被清除后调用，通常跳转到登录
	OnSessionExpired func()
	Logger           *zap.SugaredLogger
}

func (t *Transport) base() http.RoundTripper {
	if t.Base != nil {
		return t.Base
	}
	return http.DefaultTransport
}

func (t *Transport) log() *zap.SugaredLogger {
	if t.Logger != nil {
		return t.Logger
	}
	return zap.NewNop().Sugar()
}

// RoundTrip 实现 http.RoundTripper
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	tokens, err := t.Store.Load()
	if err != nil {
		return nil, fmt.Errorf("load tokens: %w", err)
	}

	getBody, err := rewindable(req)
	if err != nil {
		return nil, err
	}

	first, err := withToken(req, getBody, tokens.AccessToken)
	if err != nil {
		return nil, err
	}
	resp, err := t.base().RoundTrip(first)
	if err != nil || resp.StatusCode != http.StatusUnauthorized || tokens.RefreshToken == "" {
		return resp, err
	}

	access, refreshErr := t.refresh(req.Context(), tokens.RefreshToken)
	if refreshErr != nil {
		t.log().Infow("刷新访问令牌失败，清除本地会话", "error", refreshErr)
		if err := t.Store.Clear(); err != nil {
			t.log().Warnw("清除本地令牌失败", "error", err)
		}
		if t.OnSessionExpired != nil {
			t.OnSessionExpired()
		}
		return resp, nil
	}

	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	tokens.AccessToken = access
	if err := t.Store.Save(tokens); err != nil {
		return nil, fmt.Errorf("save tokens: %w", err)
	}

	retry, err := withToken(req, getBody, access)
	if err != nil {
		return nil, err
	}
	return t.base().RoundTrip(retry)
}

// refresh 调用刷新接口，刷新令牌作为 Bearer 发送
func (t *Transport) refresh(ctx context.Context, refreshToken string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.RefreshURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+refreshToken)
	req.Header.Set("Accept", "application/json")

	resp, err := t.base().RoundTrip(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var env envelope[struct {
		AccessToken string `json:"accessToken"`
	}]
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return "", fmt.Errorf("%w: status %d", ErrSessionExpired, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK || env.Data.AccessToken == "" {
		return "", fmt.Errorf("%w: %s", ErrSessionExpired, env.Message)
	}
	return env.Data.AccessToken, nil
}

// rewindable 返回可重复读取请求体的函数，重试时需要
func rewindable(req *http.Request) (func() (io.ReadCloser, error), error) {
	if req.Body == nil || req.Body == http.NoBody {
		return nil, nil
	}
	if req.GetBody != nil {
		return req.GetBody, nil
	}

	data, err := io.ReadAll(req.Body)
	req.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("buffer request body: %w", err)
	}
	return func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(data)), nil
	}, nil
}

// withToken 复制请求并设置 Authorization，不修改调用方的请求
func withToken(req *http.Request, getBody func() (io.ReadCloser, error), token string) (*http.Request, error) {
	r := req.Clone(req.Context())
	if getBody != nil {
		body, err := getBody()
		if err != nil {
			return nil, fmt.Errorf("rewind request body: %w", err)
		}
		r.Body = body
		r.GetBody = getBody
	}
	if token != "" {
		r.Header.Set("Authorization", "Bearer "+token)
	}
	return r, nil
}
