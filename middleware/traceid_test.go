package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTraceRouter() *gin.Engine {
	r := gin.New()
	r.Use(TraceID())
	r.GET("/trace", func(c *gin.Context) {
		c.String(http.StatusOK, GetTraceID(c))
	})
	return r
}

func TestTraceID_Generated(t *testing.T) {
	w := call(newTraceRouter(), http.MethodGet, "/trace", nil)
	require.Equal(t, http.StatusOK, w.Code)

	id := w.Body.String()
	assert.Len(t, id, 36)
	assert.Equal(t, id, w.Header().Get(TraceIDHeader))
}

func TestTraceID_Provided(t *testing.T) {
	w := call(newTraceRouter(), http.MethodGet, "/trace", map[string]string{TraceIDHeader: "my-custom-trace"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "my-custom-trace", w.Body.String())
	assert.Equal(t, "my-custom-trace", w.Header().Get(TraceIDHeader))
}

func TestTraceID_OversizedReplaced(t *testing.T) {
	long := strings.Repeat("x", maxTraceID+1)
	w := call(newTraceRouter(), http.MethodGet, "/trace", map[string]string{TraceIDHeader: long})
	assert.Len(t, w.Body.String(), 36)
}

func TestTraceID_UniquePerRequest(t *testing.T) {
	r := newTraceRouter()
	w1 := call(r, http.MethodGet, "/trace", nil)
	w2 := call(r, http.MethodGet, "/trace", nil)
	assert.NotEqual(t, w1.Body.String(), w2.Body.String())
}

func TestGetTraceID_Missing(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	assert.Equal(t, "", GetTraceID(c))
}
