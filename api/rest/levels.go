package rest

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/kasuganosora/arenabot/game/world"
)

// LevelHandler serves the read-only level endpoints.
type LevelHandler struct {
	mgr *world.Manager
}

// NewLevelHandler creates a LevelHandler.
func NewLevelHandler(mgr *world.Manager) *LevelHandler {
	return &LevelHandler{mgr: mgr}
}

// Health reports liveness.
// GET /health
func (h *LevelHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "levels": h.mgr.Count()})
}

// List returns the summary of every active level.
// GET /api/levels
func (h *LevelHandler) List(c *gin.Context) {
	out := make([]world.Summary, 0)
	for _, name := range h.mgr.Names() {
		if lvl, err := h.mgr.Get(name); err == nil {
			out = append(out, lvl.Summary())
		}
	}
	c.JSON(http.StatusOK, gin.H{"levels": out})
}

func (h *LevelHandler) level(c *gin.Context) (*world.LevelIndex, bool) {
	lvl, err := h.mgr.Get(c.Param("level"))
	if err != nil {
		abortErr(c, err)
		return nil, false
	}
	return lvl, true
}

// Summary returns one level's overview.
// GET /api/levels/:level
func (h *LevelHandler) Summary(c *gin.Context) {
	lvl, ok := h.level(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, lvl.Summary())
}

// Values returns the pickup value of each item class on the level, or of
// the single class named by ?class=.
// GET /api/levels/:level/values
func (h *LevelHandler) Values(c *gin.Context) {
	lvl, ok := h.level(c)
	if !ok {
		return
	}
	if class := c.Query("class"); class != "" {
		v, err := lvl.ResourceValue(class)
		if err != nil {
			abortErr(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"class": class, "value": v})
		return
	}
	values, err := lvl.ResourceValues()
	if err != nil {
		abortErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"values": values})
}

// Clusters lists the level's clusters, most valuable first.
// GET /api/levels/:level/clusters
func (h *LevelHandler) Clusters(c *gin.Context) {
	lvl, ok := h.level(c)
	if !ok {
		return
	}
	clusters, err := lvl.Clusters()
	if err != nil {
		abortErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"clusters": clusters})
}

// Regions lists the level's regions.
// GET /api/levels/:level/regions
func (h *LevelHandler) Regions(c *gin.Context) {
	lvl, ok := h.level(c)
	if !ok {
		return
	}
	regions, err := lvl.Regions()
	if err != nil {
		abortErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"regions": regions})
}

// Recent returns the level's latest decisions, newest first.
// GET /api/levels/:level/decisions?limit=
func (h *LevelHandler) Recent(c *gin.Context) {
	if _, ok := h.level(c); !ok {
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	events, err := h.mgr.RecentDecisions(c.Request.Context(), c.Param("level"), limit)
	if err != nil {
		abortErr(c, err)
		return
	}
	if events == nil {
		events = []world.DecisionEvent{}
	}
	c.JSON(http.StatusOK, gin.H{"decisions": events})
}
