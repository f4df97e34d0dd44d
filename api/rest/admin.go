package rest

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/kasuganosora/arenabot/cache"
	"github.com/kasuganosora/arenabot/config"
	"github.com/kasuganosora/arenabot/game/world"
	"github.com/kasuganosora/arenabot/journal"
	mw "github.com/kasuganosora/arenabot/middleware"
	"github.com/kasuganosora/arenabot/scheduler"
)

// SessionCounter reports connected websocket hosts.
type SessionCounter interface {
	Count() int
}

// AdminHandler handles admin-only REST endpoints.
// Routes should be protected by AdminAuth middleware.
type AdminHandler struct {
	db       *gorm.DB
	mgr      *world.Manager
	sched    *scheduler.Scheduler
	sessions SessionCounter
	cache    cache.Cache
	sec      config.SecurityConfig
	logger   *zap.Logger
}

// NewAdminHandler creates an AdminHandler. sessions and c may be nil.
func NewAdminHandler(
	db *gorm.DB,
	mgr *world.Manager,
	sched *scheduler.Scheduler,
	sessions SessionCounter,
	c cache.Cache,
	sec config.SecurityConfig,
	logger *zap.Logger,
) *AdminHandler {
	return &AdminHandler{db: db, mgr: mgr, sched: sched, sessions: sessions, cache: c, sec: sec, logger: logger}
}

// Metrics returns server health metrics.
// GET /api/admin/metrics
func (h *AdminHandler) Metrics(c *gin.Context) {
	hosts := 0
	if h.sessions != nil {
		hosts = h.sessions.Count()
	}
	c.JSON(http.StatusOK, gin.H{
		"levels":          h.mgr.Names(),
		"combatants":      h.mgr.Combatants(),
		"ws_hosts":        hosts,
		"scheduler_tasks": h.sched.Stats(),
	})
}

// ListSchedulerTasks returns names of all registered ticker tasks.
// GET /api/admin/scheduler
func (h *AdminHandler) ListSchedulerTasks(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"tasks": h.sched.ListTickers()})
}

type tokenRequest struct {
	Host   string   `json:"host" binding:"required"`
	Levels []string `json:"levels"`
	// TTL overrides the configured token lifetime, e.g. "24h".
	TTL string `json:"ttl"`
}

// IssueToken signs a host token.
// POST /api/admin/tokens
func (h *AdminHandler) IssueToken(c *gin.Context) {
	var req tokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ttl := h.sec.TokenTTL
	if req.TTL != "" {
		d, err := time.ParseDuration(req.TTL)
		if err != nil || d <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid ttl"})
			return
		}
		ttl = d
	}
	tok, claims, err := mw.GenerateToken(req.Host, req.Levels, h.sec.HostSecret, ttl)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	h.logger.Info("host token issued", zap.String("host", req.Host), zap.String("token_id", claims.ID))
	c.JSON(http.StatusCreated, gin.H{
		"token":      tok,
		"token_id":   claims.ID,
		"expires_at": claims.ExpiresAt.Time,
	})
}

// RevokeToken marks a token ID revoked until the longest token lifetime
// has passed.
// DELETE /api/admin/tokens/:id
func (h *AdminHandler) RevokeToken(c *gin.Context) {
	if h.cache == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no cache configured"})
		return
	}
	id := c.Param("id")
	if len(id) != 36 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid token id"})
		return
	}
	ttl := h.sec.TokenTTL
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}
	if err := h.cache.Set(c.Request.Context(), mw.RevokedKey(id), "1", ttl); err != nil {
		abortErr(c, err)
		return
	}
	h.logger.Info("host token revoked", zap.String("token_id", id))
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// Decisions queries the decision journal.
// GET /api/admin/decisions?level=&combatant=&limit=
func (h *AdminHandler) Decisions(c *gin.Context) {
	if h.db == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no database configured"})
		return
	}
	q := journal.Query{Level: c.Query("level")}
	if s := c.Query("combatant"); s != "" {
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid combatant"})
			return
		}
		q.Combatant = id
	}
	if s := c.Query("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		q.Limit = n
	}
	rows, err := journal.Find(c.Request.Context(), h.db, q)
	if err != nil {
		abortErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"decisions": rows, "count": len(rows)})
}

// FlushStats persists combatant statistics immediately.
// POST /api/admin/stats/flush
func (h *AdminHandler) FlushStats(c *gin.Context) {
	if err := h.mgr.FlushStats(c.Request.Context()); err != nil {
		abortErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
