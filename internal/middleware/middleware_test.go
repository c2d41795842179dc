package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GoPolymarket/intentgate/internal/config"
	"github.com/GoPolymarket/intentgate/internal/service"
)

func newRouter(t *testing.T, calls *int32) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	rm := service.NewRelayerManager([]config.RelayerConfig{
		{ID: "r1", APIKey: "key-1", Address: "0x00000000000000000000000000000000000000a1", QPS: 1, Burst: 2},
		{ID: "r2", APIKey: "key-2", Address: "0x00000000000000000000000000000000000000a2"},
	})

	r := gin.New()
	r.Use(ErrorHandler())
	v1 := r.Group("/v1")
	v1.Use(AuthMiddleware(rm), RateLimitMiddleware(rm), IdempotencyMiddleware(NewInMemIdempotencyStore(0)))
	v1.POST("/thing", func(c *gin.Context) {
		n := atomic.AddInt32(calls, 1)
		c.JSON(http.StatusOK, gin.H{"call": n, "caller": Caller(c).Hex()})
	})
	v1.POST("/other", func(c *gin.Context) {
		n := atomic.AddInt32(calls, 1)
		c.JSON(http.StatusOK, gin.H{"other": n})
	})
	v1.POST("/markets/:address/process", func(c *gin.Context) {
		n := atomic.AddInt32(calls, 1)
		c.JSON(http.StatusOK, gin.H{"market": c.Param("address"), "call": n})
	})
	return r
}

func do(r http.Handler, key, idem string) *httptest.ResponseRecorder {
	return doPath(r, "/v1/thing", key, idem)
}

func doPath(r http.Handler, path, key, idem string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, nil)
	if key != "" {
		req.Header.Set(HeaderGatewayKey, key)
	}
	if idem != "" {
		req.Header.Set(HeaderIdempotencyKey, idem)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestAuthMiddleware(t *testing.T) {
	var calls int32
	r := newRouter(t, &calls)

	assert.Equal(t, http.StatusUnauthorized, do(r, "", "").Code)
	assert.Equal(t, http.StatusUnauthorized, do(r, "nope", "").Code)

	rec := do(r, "key-2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, strings.ToLower(rec.Body.String()), "0x00000000000000000000000000000000000000a2")
}

func TestRateLimitMiddleware(t *testing.T) {
	var calls int32
	r := newRouter(t, &calls)

	assert.Equal(t, http.StatusOK, do(r, "key-1", "").Code)
	assert.Equal(t, http.StatusOK, do(r, "key-1", "").Code)
	rec := do(r, "key-1", "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Contains(t, rec.Body.String(), "RATE_LIMITED")

	// Unlimited relayer is unaffected.
	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusOK, do(r, "key-2", "").Code)
	}
}

func TestIdempotencyMiddleware_Replays(t *testing.T) {
	var calls int32
	r := newRouter(t, &calls)

	first := do(r, "key-2", "abc")
	second := do(r, "key-2", "abc")
	require.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, first.Body.String(), second.Body.String())
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

	do(r, "key-2", "def")
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestIdempotencyMiddleware_ScopedToEndpoint(t *testing.T) {
	var calls int32
	r := newRouter(t, &calls)

	thing := doPath(r, "/v1/thing", "key-2", "same")
	other := doPath(r, "/v1/other", "key-2", "same")
	require.Equal(t, http.StatusOK, thing.Code)
	require.Equal(t, http.StatusOK, other.Code)
	assert.Contains(t, other.Body.String(), `"other"`)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))

	m1 := doPath(r, "/v1/markets/0xaa/process", "key-2", "same")
	m2 := doPath(r, "/v1/markets/0xbb/process", "key-2", "same")
	assert.Contains(t, m1.Body.String(), "0xaa")
	assert.Contains(t, m2.Body.String(), "0xbb")
	assert.Equal(t, int32(4), atomic.LoadInt32(&calls))

	// Same endpoint still replays.
	again := doPath(r, "/v1/markets/0xaa/process", "key-2", "same")
	assert.Equal(t, m1.Body.String(), again.Body.String())
	assert.Equal(t, int32(4), atomic.LoadInt32(&calls))

	// Another relayer gets its own key space.
	doPath(r, "/v1/other", "key-1", "same")
	assert.Equal(t, int32(5), atomic.LoadInt32(&calls))
}

func TestReadOnlyMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(ErrorHandler(), ReadOnlyMiddleware(true))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.POST("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/x", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestAdminMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := &config.Config{Auth: config.AuthConfig{AdminKey: "admin"}}
	r := gin.New()
	r.Use(ErrorHandler())
	r.POST("/admin", AdminMiddleware(cfg), func(c *gin.Context) { c.Status(http.StatusNoContent) })

	req := httptest.NewRequest(http.MethodPost, "/admin", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/admin", nil)
	req.Header.Set(HeaderAdminKey, "admin")
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}
