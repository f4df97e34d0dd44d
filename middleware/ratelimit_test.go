package middleware

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/kasuganosora/arenabot/config"
)

func newRateLimitRouter(t *testing.T, r rate.Limit, b int) *gin.Engine {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	eng := gin.New()
	eng.Use(RateLimit(ctx, r, b))
	eng.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })
	return eng
}

func fromIP(ip string) map[string]string { return map[string]string{"X-Real-IP": ip} }

func TestRateLimit_Burst(t *testing.T) {
	r := newRateLimitRouter(t, 0.001, 3)
	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, call(r, http.MethodGet, "/", fromIP("10.0.1.1")).Code,
			"request %d should be allowed", i+1)
	}
	assert.Equal(t, http.StatusTooManyRequests, call(r, http.MethodGet, "/", fromIP("10.0.1.1")).Code)
}

func TestRateLimit_PerIP(t *testing.T) {
	r := newRateLimitRouter(t, 0.001, 1)
	for _, ip := range []string{"10.1.1.1", "10.1.1.2"} {
		assert.Equal(t, http.StatusOK, call(r, http.MethodGet, "/", fromIP(ip)).Code)
	}
	assert.Equal(t, http.StatusTooManyRequests, call(r, http.MethodGet, "/", fromIP("10.1.1.1")).Code)
}

func TestRateLimit_PerHost(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	eng := gin.New()
	eng.Use(HostAuth(config.SecurityConfig{HostSecret: testSecret}, nil))
	eng.Use(RateLimit(ctx, 0.001, 1))
	eng.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	a, _, err := GenerateToken("host-a", nil, testSecret, time.Hour)
	require.NoError(t, err)
	b, _, err := GenerateToken("host-b", nil, testSecret, time.Hour)
	require.NoError(t, err)

	// Same IP, different hosts: separate buckets.
	assert.Equal(t, http.StatusOK, call(eng, http.MethodGet, "/", bearer(a)).Code)
	assert.Equal(t, http.StatusOK, call(eng, http.MethodGet, "/", bearer(b)).Code)
	assert.Equal(t, http.StatusTooManyRequests, call(eng, http.MethodGet, "/", bearer(a)).Code)
}
