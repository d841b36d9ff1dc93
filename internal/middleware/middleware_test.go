package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/nsxzhou1114/shop-api/internal/config"
	"github.com/nsxzhou1114/shop-api/pkg/auth"
	"github.com/nsxzhou1114/shop-api/pkg/response"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var testNow = time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

func testIssuer(now func() time.Time) *auth.Issuer {
	return auth.NewIssuer(auth.Options{
		AccessSecret:  "access",
		RefreshSecret: "refresh",
		AccessTTL:     time.Hour,
		RefreshTTL:    24 * time.Hour,
		Now:           now,
	})
}

func decode(t *testing.T, w *httptest.ResponseRecorder) response.Response {
	t.Helper()
	var body response.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func protectedRouter(issuer *auth.Issuer) *gin.Engine {
	r := gin.New()
	r.GET("/me", JWTAuth(issuer, 5*time.Minute), func(c *gin.Context) {
		id, _ := GetUserID(c)
		claims, _ := GetClaims(c)
		c.JSON(http.StatusOK, gin.H{"id": id, "email": claims.Email})
	})
	return r
}

func TestJWTAuth_NoToken(t *testing.T) {
	r := protectedRouter(testIssuer(func() time.Time { return testNow }))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/me", nil))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	body := decode(t, w)
	assert.Equal(t, "Access denied. No token provided.", body.Message)
	assert.True(t, body.Error)
	assert.False(t, body.Success)
}

func TestJWTAuth_HeaderAndCookie(t *testing.T) {
	issuer := testIssuer(func() time.Time { return testNow })
	token, err := issuer.IssueAccessToken(auth.Subject{ID: "65f0c0ffee00000000000001", Email: "a@b.com"})
	require.NoError(t, err)
	r := protectedRouter(issuer)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"id":"65f0c0ffee00000000000001","email":"a@b.com"}`, w.Body.String())
	assert.Empty(t, w.Header().Get("X-Token-Expire-Soon"))

	req = httptest.NewRequest(http.MethodGet, "/me", nil)
	req.AddCookie(&http.Cookie{Name: AccessTokenCookie, Value: token})
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestJWTAuth_RejectsInvalidTokens(t *testing.T) {
	now := testNow
	issuer := testIssuer(func() time.Time { return now })
	r := protectedRouter(issuer)

	refresh, err := issuer.IssueRefreshToken(auth.Subject{ID: "65f0c0ffee00000000000001"})
	require.NoError(t, err)
	access, err := issuer.IssueAccessToken(auth.Subject{ID: "65f0c0ffee00000000000001"})
	require.NoError(t, err)

	for name, token := range map[string]string{
		"garbage":       "not-a-jwt",
		"refresh token": refresh,
	} {
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code, name)
		assert.Equal(t, "Invalid or expired token.", decode(t, w).Message, name)
	}

	now = now.Add(time.Hour)
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+access)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestJWTAuth_ExpireSoonHeader(t *testing.T) {
	now := testNow
	issuer := testIssuer(func() time.Time { return now })
	token, err := issuer.IssueAccessToken(auth.Subject{ID: "65f0c0ffee00000000000001"})
	require.NoError(t, err)

	now = now.Add(58 * time.Minute)
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	protectedRouter(issuer).ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "true", w.Header().Get("X-Token-Expire-Soon"))
}

func TestJWTAuth_MissingSecret(t *testing.T) {
	r := protectedRouter(auth.NewIssuer(auth.Options{}))

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer whatever")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "Server configuration error. Please contact administrator.", decode(t, w).Message)
}

func limitedRouter(t *testing.T, opts RateLimitOptions) (*gin.Engine, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	r := gin.New()
	r.POST("/login", RateLimiter(rdb, opts, zap.NewNop().Sugar()), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return r, mr
}

func post(r http.Handler, ip string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/login", nil)
	req.RemoteAddr = ip + ":1234"
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRateLimiter_BlocksAfterLimit(t *testing.T) {
	r, mr := limitedRouter(t, RateLimitOptions{Limit: 2, Window: time.Minute, BlockDuration: 5 * time.Minute, KeyPrefix: "test"})

	w := post(r, "10.0.0.1")
	require.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "2", w.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "1", w.Header().Get("X-RateLimit-Remaining"))

	require.Equal(t, http.StatusNoContent, post(r, "10.0.0.1").Code)

	w = post(r, "10.0.0.1")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "300", w.Header().Get("Retry-After"))
	assert.True(t, decode(t, w).Error)

	// 封禁期间直接拒绝
	w = post(r, "10.0.0.1")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))

	// 其他来源不受影响
	assert.Equal(t, http.StatusNoContent, post(r, "10.0.0.2").Code)

	mr.FastForward(5 * time.Minute)
	assert.Equal(t, http.StatusNoContent, post(r, "10.0.0.1").Code)
}

func TestRateLimiter_WindowResets(t *testing.T) {
	r, mr := limitedRouter(t, RateLimitOptions{Limit: 1, Window: time.Minute, BlockDuration: time.Minute, KeyPrefix: "test"})

	require.Equal(t, http.StatusNoContent, post(r, "10.0.0.1").Code)
	mr.FastForward(time.Minute)
	assert.Equal(t, http.StatusNoContent, post(r, "10.0.0.1").Code)
}

func TestRateLimiter_RestoresMissingWindow(t *testing.T) {
	r, mr := limitedRouter(t, RateLimitOptions{Limit: 5, Window: time.Minute, BlockDuration: time.Minute, KeyPrefix: "test"})
	key := "test:/login:ip:10.0.0.1"

	// 之前的 EXPIRE 未生效，计数器没有过期时间
	require.NoError(t, mr.Set(key, "3"))
	require.Zero(t, mr.TTL(key))

	w := post(r, "10.0.0.1")
	require.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "1", w.Header().Get("X-RateLimit-Remaining"))
	assert.Equal(t, time.Minute, mr.TTL(key))
	assert.Equal(t, "60", w.Header().Get("X-RateLimit-Reset"))

	mr.FastForward(time.Minute)
	assert.False(t, mr.Exists(key))
	w = post(r, "10.0.0.1")
	require.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "4", w.Header().Get("X-RateLimit-Remaining"))
}

func TestRateLimiter_FailsOpen(t *testing.T) {
	r, mr := limitedRouter(t, RateLimitOptions{Limit: 1, Window: time.Minute, BlockDuration: time.Minute, KeyPrefix: "test"})
	mr.Close()

	assert.Equal(t, http.StatusNoContent, post(r, "10.0.0.1").Code)
	assert.Equal(t, http.StatusNoContent, post(r, "10.0.0.1").Code)
}

func TestRecovery(t *testing.T) {
	r := gin.New()
	r.Use(response.ExposeInternal(false))
	r.Use(Recovery(zap.NewNop()))
	r.GET("/boom", func(*gin.Context) { panic("kaboom") })
	r.NoRoute(NotFound())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, response.InternalMessage, decode(t, w).Message)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nowhere", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.True(t, decode(t, w).Error)
}

func TestCors(t *testing.T) {
	r := gin.New()
	r.Use(Cors(config.CorsConfig{
		AllowOrigins:     []string{"https://shop.example.com"},
		AllowMethods:     []string{"GET", "POST"},
		AllowHeaders:     []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	}))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodOptions, "/", nil)
	req.Header.Set("Origin", "https://shop.example.com")
	req.Header.Set("Access-Control-Request-Method", "GET")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://shop.example.com", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
}
