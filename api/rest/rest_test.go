package rest_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/kasuganosora/arenabot/api/rest"
	"github.com/kasuganosora/arenabot/cache"
	"github.com/kasuganosora/arenabot/config"
	"github.com/kasuganosora/arenabot/game/world"
	"github.com/kasuganosora/arenabot/journal"
	mw "github.com/kasuganosora/arenabot/middleware"
	"github.com/kasuganosora/arenabot/model"
	"github.com/kasuganosora/arenabot/scheduler"
	"github.com/kasuganosora/arenabot/testutil"
)

const (
	hostSecret = "rest-test-secret"
	adminKey   = "test-key"
)

const corridor = `{
  "name": "corridor",
  "gametype": "ffa",
  "grid": {"cell_size": 64, "rows": [
    "........................",
    "........................",
    "........................"
  ]},
  "items": [
    {"id": 1, "class": "item_armor_body", "origin": [96, 96, 0]},
    {"id": 2, "class": "item_health", "origin": [800, 96, 0]},
    {"id": 3, "class": "weapon_rocketlauncher", "origin": [1400, 96, 0]}
  ]
}`

const corridorYAML = `name: corridor
gametype: ffa
grid:
  cell_size: 64
  rows:
    - "........................"
    - "........................"
    - "........................"
items:
  - {id: 1, class: item_armor_body, origin: [96, 96, 0]}
  - {id: 2, class: item_health, origin: [800, 96, 0]}
`

type env struct {
	r       *gin.Engine
	mgr     *world.Manager
	db      *gorm.DB
	cache   cache.Cache
	journal *journal.Service
	token   string
}

func newEnv(t *testing.T) *env {
	t.Helper()
	gin.SetMode(gin.TestMode)
	db := testutil.SetupTestDB(t)
	c, bus := testutil.SetupTestCache(t)
	mgr := world.NewManager(world.DefaultConfig(), c, bus, db, zap.NewNop())
	js := journal.New(db, journal.Options{}, zap.NewNop())
	mgr.SetJournal(js)
	sched := scheduler.New(zap.NewNop())
	t.Cleanup(sched.Stop)
	sec := config.SecurityConfig{HostSecret: hostSecret, TokenTTL: time.Hour}

	host := rest.NewHostHandler(mgr, zap.NewNop())
	levels := rest.NewLevelHandler(mgr)
	admin := rest.NewAdminHandler(db, mgr, sched, nil, c, sec, zap.NewNop())

	r := gin.New()
	r.Use(mw.TraceID())
	r.GET("/health", levels.Health)
	api := r.Group("/api")
	api.GET("/levels", levels.List)
	api.GET("/levels/:level", levels.Summary)
	api.GET("/levels/:level/values", levels.Values)
	api.GET("/levels/:level/clusters", levels.Clusters)
	api.GET("/levels/:level/regions", levels.Regions)
	api.GET("/levels/:level/decisions", levels.Recent)

	hostG := api.Group("/host/levels/:level")
	hostG.Use(mw.HostAuth(sec, c))
	hostG.POST("/setup", host.Setup)
	hostG.DELETE("", host.Delete)
	hostG.POST("/tick", host.Tick)
	hostG.POST("/plan", host.Plan)
	hostG.POST("/heard", host.Heard)
	hostG.POST("/combat", host.Combat)

	adminG := api.Group("/admin")
	adminG.Use(mw.AdminAuth(adminKey))
	adminG.GET("/metrics", admin.Metrics)
	adminG.GET("/scheduler", admin.ListSchedulerTasks)
	adminG.POST("/tokens", admin.IssueToken)
	adminG.DELETE("/tokens/:id", admin.RevokeToken)
	adminG.GET("/decisions", admin.Decisions)
	adminG.POST("/stats/flush", admin.FlushStats)

	tok, _, err := mw.GenerateToken("host-a", nil, hostSecret, time.Hour)
	require.NoError(t, err)
	return &env{r: r, mgr: mgr, db: db, cache: c, journal: js, token: tok}
}

func (e *env) do(method, path, contentType string, body []byte, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	e.r.ServeHTTP(w, req)
	return w
}

func (e *env) host(method, path string, body any) *httptest.ResponseRecorder {
	var raw []byte
	if s, ok := body.(string); ok {
		raw = []byte(s)
	} else if body != nil {
		raw, _ = json.Marshal(body)
	}
	return e.do(method, path, "application/json", raw, map[string]string{"Authorization": "Bearer " + e.token})
}

func (e *env) admin(method, path string, body any) *httptest.ResponseRecorder {
	raw, _ := json.Marshal(body)
	return e.do(method, path, "application/json", raw, map[string]string{mw.AdminKeyHeader: adminKey})
}

func (e *env) setupCorridor(t *testing.T) {
	t.Helper()
	w := e.host(http.MethodPost, "/api/host/levels/corridor/setup", corridor)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
}

func tickBody(now float64) map[string]any {
	return map[string]any{
		"time": now,
		"items": []map[string]any{
			{"id": 1, "in_use": true, "spawned": true},
			{"id": 2, "in_use": true, "spawned": true},
			{"id": 3, "in_use": true, "spawned": true},
		},
		"players": []map[string]any{
			{"id": 1, "team": 0, "origin": []float64{288, 96, 0}, "health": 100},
			{"id": 2, "team": 0, "origin": []float64{1300, 96, 0}, "health": 100},
		},
	}
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func TestHealth(t *testing.T) {
	e := newEnv(t)
	w := e.do(http.MethodGet, "/health", "", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", decode(t, w)["status"])
}

func TestSetup(t *testing.T) {
	e := newEnv(t)
	e.setupCorridor(t)

	w := e.do(http.MethodGet, "/api/levels/corridor", "", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var s world.Summary
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &s))
	assert.Equal(t, 3, s.Items)
	assert.False(t, s.Ready)

	w = e.do(http.MethodGet, "/api/levels", "", nil, nil)
	assert.Len(t, decode(t, w)["levels"], 1)
}

func TestSetup_YAML(t *testing.T) {
	e := newEnv(t)
	w := e.do(http.MethodPost, "/api/host/levels/corridor/setup", "application/yaml", []byte(corridorYAML),
		map[string]string{"Authorization": "Bearer " + e.token})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.EqualValues(t, 2, decode(t, w)["items"])
}

func TestSetup_Rejects(t *testing.T) {
	e := newEnv(t)
	assert.Equal(t, http.StatusBadRequest, e.host(http.MethodPost, "/api/host/levels/corridor/setup", "{").Code)
	assert.Equal(t, http.StatusBadRequest, e.host(http.MethodPost, "/api/host/levels/other/setup", corridor).Code)
	assert.Equal(t, http.StatusUnauthorized,
		e.do(http.MethodPost, "/api/host/levels/corridor/setup", "application/json", []byte(corridor), nil).Code)
}

func TestTickPlanFlow(t *testing.T) {
	e := newEnv(t)
	e.setupCorridor(t)

	w := e.host(http.MethodPost, "/api/host/levels/corridor/plan", map[string]any{"combatant_id": 1})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = e.host(http.MethodPost, "/api/host/levels/corridor/tick", tickBody(10))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.EqualValues(t, 2, decode(t, w)["players"])

	w = e.host(http.MethodPost, "/api/host/levels/corridor/plan", map[string]any{
		"combatant_id": 1,
		"objective":    map[string]any{"origin": []float64{1400, 96, 0}},
	})
	assert.Contains(t, []int{http.StatusOK, http.StatusNoContent}, w.Code)

	w = e.host(http.MethodPost, "/api/host/levels/corridor/plan", map[string]any{"combatant_id": 77})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = e.host(http.MethodPost, "/api/host/levels/corridor/heard",
		map[string]any{"combatant_id": 1, "origin": []float64{96, 96, 0}})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, decode(t, w), "timed")

	w = e.host(http.MethodPost, "/api/host/levels/corridor/combat",
		map[string]any{"combatant_id": 1, "stats": map[string]any{"deaths": 1}})
	assert.Equal(t, http.StatusOK, w.Code)

	w = e.do(http.MethodGet, "/api/levels/corridor/decisions?limit=5", "", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["decisions"], 1)

	assert.Equal(t, http.StatusNotFound,
		e.host(http.MethodPost, "/api/host/levels/nowhere/tick", tickBody(10)).Code)
	assert.Equal(t, http.StatusBadRequest,
		e.host(http.MethodPost, "/api/host/levels/corridor/tick", "not json").Code)
}

func TestReadEndpoints(t *testing.T) {
	e := newEnv(t)
	e.setupCorridor(t)

	w := e.do(http.MethodGet, "/api/levels/corridor/values", "", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	values := decode(t, w)["values"].(map[string]any)
	assert.Contains(t, values, "item_armor_body")

	w = e.do(http.MethodGet, "/api/levels/corridor/values?class=item_quad", "", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Less(t, decode(t, w)["value"].(float64), 0.0)

	w = e.do(http.MethodGet, "/api/levels/corridor/values?class=item_pony", "", nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = e.do(http.MethodGet, "/api/levels/corridor/clusters", "", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["clusters"], 3)

	w = e.do(http.MethodGet, "/api/levels/corridor/regions", "", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["regions"], 3)

	assert.Equal(t, http.StatusNotFound, e.do(http.MethodGet, "/api/levels/nowhere/clusters", "", nil, nil).Code)
}

func TestDelete(t *testing.T) {
	e := newEnv(t)
	e.setupCorridor(t)
	assert.Equal(t, http.StatusNoContent, e.host(http.MethodDelete, "/api/host/levels/corridor", nil).Code)
	assert.Equal(t, http.StatusNotFound, e.host(http.MethodDelete, "/api/host/levels/corridor", nil).Code)
	assert.Zero(t, e.mgr.Count())
}

func TestAdminAuth(t *testing.T) {
	e := newEnv(t)
	assert.Equal(t, http.StatusUnauthorized, e.do(http.MethodGet, "/api/admin/metrics", "", nil, nil).Code)
	assert.Equal(t, http.StatusUnauthorized,
		e.do(http.MethodGet, "/api/admin/metrics", "", nil, map[string]string{mw.AdminKeyHeader: "wrong"}).Code)
}

func TestAdminMetrics(t *testing.T) {
	e := newEnv(t)
	e.setupCorridor(t)
	w := e.admin(http.MethodGet, "/api/admin/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode(t, w)
	assert.Equal(t, []any{"corridor"}, resp["levels"])
	assert.Contains(t, resp, "combatants")
	assert.Contains(t, resp, "scheduler_tasks")

	w = e.admin(http.MethodGet, "/api/admin/scheduler", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, decode(t, w), "tasks")
}

func TestAdminTokens(t *testing.T) {
	e := newEnv(t)

	w := e.admin(http.MethodPost, "/api/admin/tokens", map[string]any{"host": "host-b", "levels": []string{"corridor"}})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	resp := decode(t, w)
	tok, id := resp["token"].(string), resp["token_id"].(string)

	claims, err := mw.ParseToken(tok, hostSecret)
	require.NoError(t, err)
	assert.Equal(t, "host-b", claims.Host)
	assert.Equal(t, id, claims.ID)

	assert.Equal(t, http.StatusBadRequest, e.admin(http.MethodPost, "/api/admin/tokens", map[string]any{}).Code)
	assert.Equal(t, http.StatusBadRequest,
		e.admin(http.MethodPost, "/api/admin/tokens", map[string]any{"host": "x", "ttl": "soon"}).Code)

	w = e.admin(http.MethodDelete, "/api/admin/tokens/"+id, nil)
	require.Equal(t, http.StatusOK, w.Code)
	_, err = e.cache.Get(context.Background(), mw.RevokedKey(id))
	require.NoError(t, err)

	w = e.do(http.MethodPost, "/api/host/levels/corridor/setup", "application/json", []byte(corridor),
		map[string]string{"Authorization": "Bearer " + tok})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	assert.Equal(t, http.StatusBadRequest, e.admin(http.MethodDelete, "/api/admin/tokens/short", nil).Code)
}

func TestAdminDecisionsAndStats(t *testing.T) {
	e := newEnv(t)
	e.setupCorridor(t)
	require.Equal(t, http.StatusOK, e.host(http.MethodPost, "/api/host/levels/corridor/tick", tickBody(10)).Code)
	e.host(http.MethodPost, "/api/host/levels/corridor/plan", map[string]any{"combatant_id": 1})
	e.host(http.MethodPost, "/api/host/levels/corridor/plan", map[string]any{"combatant_id": 2})
	e.journal.Stop(context.Background())

	w := e.admin(http.MethodGet, "/api/admin/decisions?level=corridor", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 2, decode(t, w)["count"])

	w = e.admin(http.MethodGet, "/api/admin/decisions?combatant=2", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, decode(t, w)["count"])

	assert.Equal(t, http.StatusBadRequest, e.admin(http.MethodGet, "/api/admin/decisions?limit=x", nil).Code)

	require.Equal(t, http.StatusOK, e.host(http.MethodPost, "/api/host/levels/corridor/combat",
		map[string]any{"combatant_id": 1, "stats": map[string]any{"kills": 2}}).Code)
	w = e.admin(http.MethodPost, "/api/admin/stats/flush", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var rows []model.CombatantStats
	require.NoError(t, e.db.Where("combatant = ?", 1).Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.Equal(t, 2.0, rows[0].Kills)
}
