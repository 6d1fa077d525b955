package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/supdinner/tables/internal/config"
	"github.com/supdinner/tables/internal/utils"
)

const secret = "test-secret"

// whoami echoes the identity stored by JWTAuth.
func whoami(c echo.Context) error {
	id, _ := UserID(c)
	return c.JSON(http.StatusOK, echo.Map{"id": id, "role": Role(c)})
}

func serve(e *echo.Echo, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestJWTAuth(t *testing.T) {
	e := echo.New()
	e.GET("/me", whoami, JWTAuth(secret))

	tok, err := utils.NewAccessToken(secret, 7, "admin", time.Hour)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+tok.Token)
	rec := serve(e, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"id":7,"role":"ADMIN"}`, rec.Body.String())

	numeric, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": 9, "role": "USER", "exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(secret))
	require.NoError(t, err)
	req = httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+numeric)
	rec = serve(e, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"id":9,"role":"USER"}`, rec.Body.String())
}

func TestJWTAuthRejects(t *testing.T) {
	e := echo.New()
	e.GET("/me", whoami, JWTAuth(secret))

	wrongKey, _ := utils.NewAccessToken("other", 7, "USER", time.Hour)
	expired, _ := utils.NewAccessToken(secret, 7, "USER", -time.Minute)
	noSubject, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"role": "USER", "exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(secret))
	noExpiry, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "7"}).SignedString([]byte(secret))

	cases := map[string]string{
		"missing":    "",
		"not bearer": "Basic abc",
		"wrong key":  "Bearer " + wrongKey.Token,
		"expired":    "Bearer " + expired.Token,
		"no subject": "Bearer " + noSubject,
		"no expiry":  "Bearer " + noExpiry,
	}
	for name, header := range cases {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if header != "" {
				req.Header.Set("Authorization", header)
			}
			assert.Equal(t, http.StatusUnauthorized, serve(e, req).Code)
		})
	}
}

func TestSubject(t *testing.T) {
	id, ok := subject("12")
	assert.True(t, ok)
	assert.Equal(t, uint64(12), id)
	id, ok = subject(float64(3))
	assert.True(t, ok)
	assert.Equal(t, uint64(3), id)

	for _, v := range []interface{}{"", "abc", "0", float64(0), float64(1.5), float64(-2), nil, true} {
		_, ok := subject(v)
		assert.False(t, ok, "%v", v)
	}
}

func TestRequireRole(t *testing.T) {
	e := echo.New()
	h := RequireRole(RoleAdmin)(whoami)

	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	SetIdentity(c, 1, "USER")
	require.NoError(t, h(c))
	assert.Equal(t, http.StatusForbidden, c.Response().Status)
	assert.False(t, IsAdmin(c))

	c = e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	SetIdentity(c, 1, RoleAdmin)
	require.NoError(t, h(c))
	assert.Equal(t, http.StatusOK, c.Response().Status)
	assert.True(t, IsAdmin(c))
}

func newRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

func TestRateLimit(t *testing.T) {
	cfg := config.RateLimitConfig{
		Enabled:        true,
		Capacity:       2,
		RefillTokens:   1,
		RefillInterval: time.Hour,
		TTL:            2 * time.Hour,
		KeyStrategy:    "user",
		Prefix:         "rl",
	}
	e := echo.New()
	e.POST("/join", func(c echo.Context) error { return c.NoContent(http.StatusNoContent) }, RateLimit(cfg, newRedis(t), zap.NewNop()))

	for i := 0; i < 2; i++ {
		rec := serve(e, httptest.NewRequest(http.MethodPost, "/join", nil))
		require.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, "2", rec.Header().Get("X-RateLimit-Limit"))
	}
	rec := serve(e, httptest.NewRequest(http.MethodPost, "/join", nil))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}

func TestRateLimitDisabledOrRedisDown(t *testing.T) {
	ok := func(c echo.Context) error { return c.NoContent(http.StatusNoContent) }
	cfg := config.RateLimitConfig{Enabled: false}
	e := echo.New()
	e.POST("/off", ok, RateLimit(cfg, nil, zap.NewNop()))

	down := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1})
	t.Cleanup(func() { _ = down.Close() })
	cfg = config.RateLimitConfig{Enabled: true, Capacity: 1, RefillTokens: 1, RefillInterval: time.Second, TTL: time.Minute, Prefix: "rl"}
	e.POST("/down", ok, RateLimit(cfg, down, zap.NewNop()))

	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusNoContent, serve(e, httptest.NewRequest(http.MethodPost, "/off", nil)).Code)
		assert.Equal(t, http.StatusNoContent, serve(e, httptest.NewRequest(http.MethodPost, "/down", nil)).Code)
	}
}

func TestRateKeyStrategies(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/v1/join", nil)
	req.Header.Set(echo.HeaderXRealIP, "10.0.0.1")
	c := e.NewContext(req, httptest.NewRecorder())
	c.SetPath("/v1/join")
	SetIdentity(c, 5, "USER")

	key := func(strategy string) string {
		return rateKey(config.RateLimitConfig{Prefix: "rl", KeyStrategy: strategy}, c)
	}
	assert.Equal(t, "rl:ip:10.0.0.1", key("ip"))
	assert.Equal(t, "rl:user:5", key("user"))
	assert.Equal(t, "rl:user:5:route:POST /v1/join", key("user_route"))
	assert.Equal(t, "rl:ip:10.0.0.1:user:5:route:POST /v1/join", key(""))
}

func TestCache(t *testing.T) {
	calls := 0
	e := echo.New()
	mw := Cache(config.CacheConfig{Enabled: true, TTL: time.Minute, Prefix: "cache", MaxBodyBytes: 1024}, newRedis(t), zap.NewNop())
	e.GET("/tables/:id", func(c echo.Context) error {
		calls++
		return c.JSON(http.StatusOK, echo.Map{"id": c.Param("id"), "calls": calls})
	}, mw)
	e.GET("/missing", func(c echo.Context) error {
		calls++
		return c.JSON(http.StatusNotFound, echo.Map{"error": "nope"})
	}, mw)

	first := serve(e, httptest.NewRequest(http.MethodGet, "/tables/1", nil))
	require.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, "MISS", first.Header().Get("X-Cache"))

	second := serve(e, httptest.NewRequest(http.MethodGet, "/tables/1", nil))
	require.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, "HIT", second.Header().Get("X-Cache"))
	assert.Equal(t, first.Body.String(), second.Body.String())
	assert.Contains(t, second.Header().Get(echo.HeaderContentType), echo.MIMEApplicationJSON)
	assert.Equal(t, 1, calls)

	other := serve(e, httptest.NewRequest(http.MethodGet, "/tables/2", nil))
	assert.Equal(t, "MISS", other.Header().Get("X-Cache"))
	assert.Equal(t, 2, calls)

	serve(e, httptest.NewRequest(http.MethodGet, "/missing", nil))
	again := serve(e, httptest.NewRequest(http.MethodGet, "/missing", nil))
	assert.Equal(t, http.StatusNotFound, again.Code)
	assert.Equal(t, 4, calls)
}

func TestCacheInvalidation(t *testing.T) {
	cfg := config.CacheConfig{Enabled: true, TTL: time.Minute, Prefix: "cache", MaxBodyBytes: 1024}
	rdb := newRedis(t)
	filled := 1
	e := echo.New()
	e.GET("/tables/:id", func(c echo.Context) error {
		return c.JSON(http.StatusOK, echo.Map{"spots_filled": filled})
	}, Cache(cfg, rdb, zap.NewNop()))

	serve(e, httptest.NewRequest(http.MethodGet, "/tables/1", nil))
	filled = 2
	stale := serve(e, httptest.NewRequest(http.MethodGet, "/tables/1", nil))
	assert.Equal(t, "HIT", stale.Header().Get("X-Cache"))
	assert.Contains(t, stale.Body.String(), `"spots_filled":1`)

	require.NoError(t, NewCacheInvalidator(cfg, rdb).Invalidate(context.Background()))
	fresh := serve(e, httptest.NewRequest(http.MethodGet, "/tables/1", nil))
	assert.Equal(t, "MISS", fresh.Header().Get("X-Cache"))
	assert.Contains(t, fresh.Body.String(), `"spots_filled":2`)
}

func TestPayloadRoundTrip(t *testing.T) {
	hdr := http.Header{"Content-Type": {"application/json"}}
	bs, err := encodePayload(http.StatusOK, hdr, []byte(`{"a":1}`))
	require.NoError(t, err)
	status, got, body, ok := decodePayload(bs)
	require.True(t, ok)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, hdr, got)
	assert.Equal(t, `{"a":1}`, string(body))

	_, _, _, ok = decodePayload([]byte{0, 1})
	assert.False(t, ok)
}
