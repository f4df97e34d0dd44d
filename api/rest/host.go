package rest

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/kasuganosora/arenabot/game/economy"
	"github.com/kasuganosora/arenabot/game/geom"
	"github.com/kasuganosora/arenabot/game/item"
	"github.com/kasuganosora/arenabot/game/world"
	"github.com/kasuganosora/arenabot/resource"
)

// maxLevelBody bounds uploaded level files.
const maxLevelBody = 8 << 20

// HostHandler serves the endpoints game hosts drive a level with.
// Routes should be protected by HostAuth middleware.
type HostHandler struct {
	mgr    *world.Manager
	logger *zap.Logger
}

// NewHostHandler creates a HostHandler.
func NewHostHandler(mgr *world.Manager, logger *zap.Logger) *HostHandler {
	return &HostHandler{mgr: mgr, logger: logger}
}

// errStatus maps engine errors to HTTP statuses.
func errStatus(err error) int {
	switch {
	case errors.Is(err, world.ErrLevelNotFound), errors.Is(err, world.ErrUnknownCombatant):
		return http.StatusNotFound
	case errors.Is(err, world.ErrNotReady):
		return http.StatusConflict
	case errors.Is(err, world.ErrUnknownItem), errors.Is(err, resource.ErrInvalidLevel):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func abortErr(c *gin.Context, err error) {
	status := errStatus(err)
	if status == http.StatusInternalServerError {
		_ = c.Error(err)
		c.JSON(status, gin.H{"error": "internal error"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func (h *HostHandler) level(c *gin.Context) (*world.LevelIndex, bool) {
	lvl, err := h.mgr.Get(c.Param("level"))
	if err != nil {
		abortErr(c, err)
		return nil, false
	}
	return lvl, true
}

// levelFormat picks the level decoder from the request content type.
func levelFormat(contentType string) string {
	if strings.Contains(contentType, "yaml") {
		return "yaml"
	}
	return "json"
}

// Setup builds or rebuilds a level from the uploaded level file.
// POST /api/host/levels/:level/setup
func (h *HostHandler) Setup(c *gin.Context) {
	name := c.Param("level")
	data, err := io.ReadAll(io.LimitReader(c.Request.Body, maxLevelBody))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}
	ld, err := resource.ParseLevel(data, levelFormat(c.ContentType()))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if ld.Name != name {
		c.JSON(http.StatusBadRequest, gin.H{"error": "level name does not match the path"})
		return
	}
	lvl, err := h.mgr.Setup(c.Request.Context(), ld)
	if err != nil {
		abortErr(c, err)
		return
	}
	h.logger.Info("level set up by host", zap.String("level", name), zap.String("trace_id", c.GetString("trace_id")))
	c.JSON(http.StatusCreated, lvl.Summary())
}

// Delete resets and forgets a level.
// DELETE /api/host/levels/:level
func (h *HostHandler) Delete(c *gin.Context) {
	if err := h.mgr.Remove(c.Request.Context(), c.Param("level")); err != nil {
		abortErr(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Tick applies one tick snapshot.
// POST /api/host/levels/:level/tick
func (h *HostHandler) Tick(c *gin.Context) {
	lvl, ok := h.level(c)
	if !ok {
		return
	}
	var snap world.Snapshot
	if err := c.ShouldBindJSON(&snap); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	st, err := lvl.UpdateDynamicResources(snap)
	if err != nil {
		abortErr(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

// Plan returns a combatant's next pickup goal, 204 when none is worth it.
// POST /api/host/levels/:level/plan
func (h *HostHandler) Plan(c *gin.Context) {
	var req world.PlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	goal, err := h.mgr.PlanPickup(c.Request.Context(), c.Param("level"), req)
	if err != nil {
		abortErr(c, err)
		return
	}
	if goal == nil {
		c.Status(http.StatusNoContent)
		return
	}
	c.JSON(http.StatusOK, goal)
}

type heardRequest struct {
	Combatant item.EntityID `json:"combatant_id"`
	Origin    geom.Vec3     `json:"origin"`
}

// Heard times the cluster nearest a pickup a combatant heard.
// POST /api/host/levels/:level/heard
func (h *HostHandler) Heard(c *gin.Context) {
	lvl, ok := h.level(c)
	if !ok {
		return
	}
	var req heardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	timed, err := lvl.HeardPickup(req.Combatant, req.Origin)
	if err != nil {
		abortErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"timed": timed})
}

type combatRequest struct {
	Combatant item.EntityID       `json:"combatant_id"`
	Stats     economy.CombatStats `json:"stats"`
}

// Combat adds a combat statistics delta to a combatant's profile.
// POST /api/host/levels/:level/combat
func (h *HostHandler) Combat(c *gin.Context) {
	lvl, ok := h.level(c)
	if !ok {
		return
	}
	var req combatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := lvl.RecordCombat(req.Combatant, req.Stats); err != nil {
		abortErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
