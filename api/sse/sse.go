package sse

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/kasuganosora/arenabot/cache"
	"github.com/kasuganosora/arenabot/game/world"
)

const keepaliveInterval = 30 * time.Second

// Source is where decision streams come from.
type Source interface {
	Get(name string) (*world.LevelIndex, error)
	Subscribe(ctx context.Context, level string) (<-chan *cache.Message, func(), error)
}

// Handler handles the SSE endpoint.
type Handler struct {
	src       Source
	keepalive time.Duration
	logger    *zap.Logger
}

// NewHandler creates a new SSE Handler.
func NewHandler(src Source, logger *zap.Logger) *Handler {
	return &Handler{src: src, keepalive: keepaliveInterval, logger: logger}
}

// ServeDecisions handles GET /api/levels/:level/events.
// It streams the level's pickup decisions as "decision" events.
func (h *Handler) ServeDecisions(c *gin.Context) {
	level := c.Param("level")
	if _, err := h.src.Get(level); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	subCtx, subCancel := context.WithCancel(c.Request.Context())
	defer subCancel()

	msgCh, unsub, err := h.src.Subscribe(subCtx, level)
	if err != nil {
		h.logger.Error("sse subscribe failed", zap.String("level", level), zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "stream unavailable"})
		return
	}
	defer unsub()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	fmt.Fprintf(c.Writer, "event: connected\ndata: {\"level\":%q}\n\n", level)
	c.Writer.Flush()

	ticker := time.NewTicker(h.keepalive)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-msgCh:
			if !ok {
				return
			}
			fmt.Fprintf(c.Writer, "event: decision\ndata: %s\n\n", msg.Payload)
			c.Writer.Flush()

		case <-ticker.C:
			// Keepalive comment to prevent proxy timeouts.
			fmt.Fprintf(c.Writer, ": keepalive\n\n")
			c.Writer.Flush()

		case <-c.Request.Context().Done():
			return
		}
	}
}
