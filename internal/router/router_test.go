package router

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/nsxzhou1114/shop-api/internal/controller"
	"github.com/nsxzhou1114/shop-api/internal/middleware"
	"github.com/nsxzhou1114/shop-api/internal/repository"
	"github.com/nsxzhou1114/shop-api/internal/service"
	"github.com/nsxzhou1114/shop-api/pkg/auth"
	"github.com/nsxzhou1114/shop-api/pkg/client"
	"github.com/nsxzhou1114/shop-api/pkg/mailer"
	"github.com/nsxzhou1114/shop-api/pkg/storage"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type outbox struct {
	mu   sync.Mutex
	sent []*mailer.Message
}

func (o *outbox) Send(_ context.Context, msg *mailer.Message) error {
	o.mu.Lock()
	o.sent = append(o.sent, msg)
	o.mu.Unlock()
	return nil
}

type staticUploader struct{}

func (staticUploader) Upload(context.Context, *storage.File) (string, error) {
	return "https://cdn.example.com/avatar.png", nil
}

type app struct {
	srv   *httptest.Server
	repo  *repository.MemoryUserRepository
	mail  *outbox
	clock *clock
}

func newApp(t *testing.T, rdb redis.Cmdable) *app {
	t.Helper()
	gin.SetMode(gin.TestMode)

	clk := &clock{t: time.Now().Truncate(time.Second)}
	issuer := auth.NewIssuer(auth.Options{
		AccessSecret:  "access-secret",
		RefreshSecret: "refresh-secret",
		AccessTTL:     time.Hour,
		RefreshTTL:    30 * 24 * time.Hour,
		Now:           clk.Now,
	})
	log := zap.NewNop().Sugar()
	a := &app{repo: repository.NewMemoryUserRepository(), mail: &outbox{}, clock: clk}

	svc := service.NewUserService(a.repo, issuer, auth.NewOTPManager(time.Hour, clk.Now), auth.NewHasher(4),
		a.mail, staticUploader{}, log, service.UserServiceOptions{
			FrontendURL:      "http://localhost:5173",
			MaxAvatarSize:    1 << 20,
			AllowedImageType: []string{"image/png"},
		}).WithClock(clk.Now)

	r := gin.New()
	r.Use(middleware.Recovery(zap.NewNop()))
	Setup(r, Deps{
		UserApi:     controller.NewUserApi(svc, log, controller.CookieOptions{AccessTTL: time.Hour, RefreshTTL: 30 * 24 * time.Hour}),
		Issuer:      issuer,
		TokenBuffer: 5 * time.Minute,
		Redis:       rdb,
		RateLimit:   middleware.RateLimitOptions{Limit: 3, Window: time.Minute, BlockDuration: time.Minute, KeyPrefix: "test"},
		Logger:      log,
	})

	a.srv = httptest.NewServer(r)
	t.Cleanup(a.srv.Close)
	return a
}

func (a *app) verifyToken(t *testing.T) string {
	t.Helper()
	a.mail.mu.Lock()
	defer a.mail.mu.Unlock()
	require.NotEmpty(t, a.mail.sent)
	html := a.mail.sent[len(a.mail.sent)-1].HTML
	i := strings.Index(html, "token=")
	require.GreaterOrEqual(t, i, 0)
	return html[i+len("token=") : i+len("token=")+24]
}

func TestSessionLifecycle(t *testing.T) {
	a := newApp(t, nil)
	ctx := context.Background()

	var expired atomic.Int32
	c, err := client.New(client.Options{
		BaseURL:          a.srv.URL,
		Store:            client.NewMemoryStore(),
		OnSessionExpired: func() { expired.Add(1) },
	})
	require.NoError(t, err)

	user, err := c.Register(ctx, "Jane", "jane@example.com", "Secret1!")
	require.NoError(t, err)
	assert.False(t, user.VerifyEmail)

	err = c.Login(ctx, "jane@example.com", "Secret1!")
	var apiErr *client.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusForbidden, apiErr.StatusCode)
	assert.Equal(t, "Please verify your email before logging in.", apiErr.Message)

	msg, err := c.VerifyEmail(ctx, a.verifyToken(t))
	require.NoError(t, err)
	assert.Equal(t, "Email verified successfully.", msg)

	require.NoError(t, c.Login(ctx, "jane@example.com", "Secret1!"))
	me, err := c.UserDetails(ctx)
	require.NoError(t, err)
	assert.Equal(t, user.ID, me.ID)
	assert.True(t, me.VerifyEmail)

	before, err := c.Store().Load()
	require.NoError(t, err)

	// 访问令牌过期后自动续期并重试
	a.clock.Advance(time.Hour + time.Second)
	me, err = c.UserDetails(ctx)
	require.NoError(t, err)
	assert.Equal(t, "jane@example.com", me.Email)
	assert.Zero(t, expired.Load())

	after, err := c.Store().Load()
	require.NoError(t, err)
	assert.NotEqual(t, before.AccessToken, after.AccessToken)
	assert.Equal(t, before.RefreshToken, after.RefreshToken)

	require.NoError(t, c.Logout(ctx))
	stored, err := a.repo.FindByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.RefreshToken)

	_, err = c.UserDetails(ctx)
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
}

func TestSessionExpiresWhenRefreshTokenRevoked(t *testing.T) {
	a := newApp(t, nil)
	ctx := context.Background()

	var expired atomic.Int32
	store := client.NewMemoryStore()
	c, err := client.New(client.Options{BaseURL: a.srv.URL, Store: store, OnSessionExpired: func() { expired.Add(1) }})
	require.NoError(t, err)

	u, err := c.Register(ctx, "Jane", "jane@example.com", "Secret1!")
	require.NoError(t, err)
	_, err = c.VerifyEmail(ctx, u.ID)
	require.NoError(t, err)
	require.NoError(t, c.Login(ctx, "jane@example.com", "Secret1!"))

	// 另一设备登录使旧刷新令牌失效
	a.clock.Advance(time.Second)
	other, err := client.New(client.Options{BaseURL: a.srv.URL})
	require.NoError(t, err)
	require.NoError(t, other.Login(ctx, "jane@example.com", "Secret1!"))

	a.clock.Advance(2 * time.Hour)
	_, err = c.UserDetails(ctx)
	var apiErr *client.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.EqualValues(t, 1, expired.Load())

	tokens, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, client.Tokens{}, tokens)
}

func TestPasswordReset(t *testing.T) {
	a := newApp(t, nil)
	ctx := context.Background()
	c, err := client.New(client.Options{BaseURL: a.srv.URL})
	require.NoError(t, err)

	u, err := c.Register(ctx, "Jane", "jane@example.com", "Secret1!")
	require.NoError(t, err)
	_, err = c.VerifyEmail(ctx, u.ID)
	require.NoError(t, err)

	var apiErr *client.APIError
	err = c.ForgotPassword(ctx, "nobody@example.com")
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)

	require.NoError(t, c.ForgotPassword(ctx, "jane@example.com"))

	err = c.ResetPassword(ctx, "jane@example.com", "NewPass1#", "NewPass1#")
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusForbidden, apiErr.StatusCode)

	stored, err := a.repo.FindByEmail(ctx, "jane@example.com")
	require.NoError(t, err)
	require.NoError(t, c.VerifyOTP(ctx, "jane@example.com", stored.ForgotPasswordOTP))
	require.NoError(t, c.ResetPassword(ctx, "jane@example.com", "NewPass1#", "NewPass1#"))

	require.NoError(t, c.Login(ctx, "jane@example.com", "NewPass1#"))
}

func do(t *testing.T, method, url, body string, header http.Header) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header[k] = v
	}
	resp, err := http.DefaultTransport.RoundTrip(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var env map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	return resp, env
}

func TestLoginCookies(t *testing.T) {
	a := newApp(t, nil)
	ctx := context.Background()
	c, err := client.New(client.Options{BaseURL: a.srv.URL})
	require.NoError(t, err)
	u, err := c.Register(ctx, "Jane", "jane@example.com", "Secret1!")
	require.NoError(t, err)
	_, err = c.VerifyEmail(ctx, u.ID)
	require.NoError(t, err)

	resp, env := do(t, http.MethodPost, a.srv.URL+"/api/user/login", `{"email":"jane@example.com","password":"Secret1!"}`, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Login successful.", env["message"])

	cookies := map[string]*http.Cookie{}
	for _, ck := range resp.Cookies() {
		cookies[ck.Name] = ck
	}
	access := cookies[middleware.AccessTokenCookie]
	refresh := cookies[middleware.RefreshTokenCookie]
	require.NotNil(t, access)
	require.NotNil(t, refresh)
	assert.True(t, access.HttpOnly)
	assert.Equal(t, http.SameSiteStrictMode, access.SameSite)
	assert.Equal(t, 3600, access.MaxAge)
	assert.Equal(t, 30*24*3600, refresh.MaxAge)

	// cookie 同样可以通过认证与刷新
	header := http.Header{"Cookie": {access.Name + "=" + access.Value}}
	resp, env = do(t, http.MethodGet, a.srv.URL+"/api/user/user-details", "", header)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "jane@example.com", env["data"].(map[string]any)["email"])

	header = http.Header{"Cookie": {refresh.Name + "=" + refresh.Value}}
	resp, env = do(t, http.MethodPost, a.srv.URL+"/api/user/refresh-token", "", header)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, env["data"].(map[string]any)["accessToken"])

	header = http.Header{"Cookie": {access.Name + "=" + access.Value}}
	resp, env = do(t, http.MethodGet, a.srv.URL+"/api/user/logout", "", header)
	assert.Equal(t, "Logout successful.", env["message"])
	for _, ck := range resp.Cookies() {
		assert.Empty(t, ck.Value)
		assert.Negative(t, ck.MaxAge)
	}
}

func TestUpdateUserRejectsUnknownFields(t *testing.T) {
	a := newApp(t, nil)
	ctx := context.Background()
	c, err := client.New(client.Options{BaseURL: a.srv.URL})
	require.NoError(t, err)
	u, err := c.Register(ctx, "Jane", "jane@example.com", "Secret1!")
	require.NoError(t, err)
	_, err = c.VerifyEmail(ctx, u.ID)
	require.NoError(t, err)
	require.NoError(t, c.Login(ctx, "jane@example.com", "Secret1!"))
	tokens, err := c.Store().Load()
	require.NoError(t, err)

	header := http.Header{"Authorization": {"Bearer " + tokens.AccessToken}}
	resp, env := do(t, http.MethodPut, a.srv.URL+"/api/user/update-user", `{"role":"admin"}`, header)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Invalid fields: role. Allowed fields: name, email, mobile, password.", env["message"])

	resp, env = do(t, http.MethodPut, a.srv.URL+"/api/user/update-user", `{"name":"Janet"}`, header)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Janet", env["data"].(map[string]any)["name"])
}

func TestPublicEndpoints(t *testing.T) {
	a := newApp(t, nil)

	resp, env := do(t, http.MethodGet, a.srv.URL+"/", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "API is running...", env["message"])

	resp, env = do(t, http.MethodGet, a.srv.URL+"/api/nothing", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, true, env["error"])

	resp, env = do(t, http.MethodGet, a.srv.URL+"/api/user/user-details", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "Access denied. No token provided.", env["message"])

	resp, env = do(t, http.MethodPost, a.srv.URL+"/api/user/register", `{"name":"J","email":"bad","password":"Secret1!"}`, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Email must be a valid email address.", env["message"])

	resp, env = do(t, http.MethodPost, a.srv.URL+"/api/user/register", "", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Name, email, and password are required.", env["message"])

	resp, _ = do(t, http.MethodPost, a.srv.URL+"/api/user/register", `{"name":"J","email":"j@example.com","password":"Secret1!"}`, nil)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, env = do(t, http.MethodGet, a.srv.URL+"/api/user/verify-email?token=65f0c0ffee00000000000001", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "Invalid verification token.", env["message"])
}

func TestRateLimitedLogin(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	a := newApp(t, rdb)

	body := `{"email":"nobody@example.com","password":"Secret1!"}`
	for i := 0; i < 3; i++ {
		resp, _ := do(t, http.MethodPost, a.srv.URL+"/api/user/login", body, nil)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	}
	resp, env := do(t, http.MethodPost, a.srv.URL+"/api/user/login", body, nil)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("Retry-After"))
	assert.Equal(t, true, env["error"])

	// 其他接口单独计数
	resp, _ = do(t, http.MethodGet, a.srv.URL+"/", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRegisterRejectsPasswordOverBcryptLimit(t *testing.T) {
	a := newApp(t, nil)
	body := `{"name":"Jane","email":"jane@example.com","password":"` + strings.Repeat("é", 40) + `a1!"}`

	resp, env := do(t, http.MethodPost, a.srv.URL+"/api/user/register", body, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Password must be at most 72 bytes.", env["message"])
}
