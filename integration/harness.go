package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"gorm.io/gorm"

	apirest "github.com/kasuganosora/arenabot/api/rest"
	"github.com/kasuganosora/arenabot/api/sse"
	apiws "github.com/kasuganosora/arenabot/api/ws"
	"github.com/kasuganosora/arenabot/cache"
	"github.com/kasuganosora/arenabot/config"
	"github.com/kasuganosora/arenabot/game/world"
	"github.com/kasuganosora/arenabot/journal"
	mw "github.com/kasuganosora/arenabot/middleware"
	"github.com/kasuganosora/arenabot/scheduler"
	"github.com/kasuganosora/arenabot/testutil"
)

// AdminKey is the admin key the test server accepts.
const AdminKey = "integration-admin-key"

// TestServer wraps a real HTTP server with every subsystem wired together.
type TestServer struct {
	DB      *gorm.DB
	Cache   cache.Cache
	PubSub  cache.PubSub
	SM      *apiws.SessionManager
	Mgr     *world.Manager
	Journal *journal.Service
	Sched   *scheduler.Scheduler
	Server  *httptest.Server
	URL     string // http://127.0.0.1:<port>
	WSURL   string // ws://127.0.0.1:<port>/ws
	Sec     config.SecurityConfig
}

// NewTestServer creates a fully wired server for integration testing.
// It mirrors the dependency wiring in main.go.
func NewTestServer(t *testing.T) *TestServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	// ---- Infrastructure ----
	db := testutil.SetupTestDB(t)
	c, pubsub := testutil.SetupTestCache(t)
	logger := zap.NewNop()

	sec := config.SecurityConfig{
		HostSecret:     "integration-test-secret",
		TokenTTL:       72 * time.Hour,
		RateLimitRPS:   1000,
		RateLimitBurst: 2000,
		AllowedOrigins: []string{}, // allow all origins
	}

	// ---- Engine ----
	mgr := world.NewManager(world.DefaultConfig(), c, pubsub, db, logger)
	js := journal.New(db, journal.Options{BatchSize: 1, FlushInterval: 20 * time.Millisecond}, logger)
	mgr.SetJournal(js)

	sched := scheduler.New(logger)
	sched.AddTicker("stats_flush", 50*time.Millisecond, mgr.FlushStats)

	// ---- WS Router ----
	sm := apiws.NewSessionManager(logger)
	wsRouter := apiws.NewRouter(logger)
	apiws.NewEngineHandlers(mgr, logger).RegisterHandlers(wsRouter)

	// ---- Gin HTTP Server ----
	ctx, cancel := context.WithCancel(context.Background())
	limit := rate.Limit(sec.RateLimitRPS)

	r := gin.New()
	r.Use(mw.TraceID(), mw.Recovery(logger))

	hostH := apirest.NewHostHandler(mgr, logger)
	levelH := apirest.NewLevelHandler(mgr)
	adminH := apirest.NewAdminHandler(db, mgr, sched, sm, c, sec, logger)
	sseH := sse.NewHandler(mgr, logger)
	wsH := apiws.NewHandler(c, sec, sm, wsRouter, logger)

	r.GET("/health", levelH.Health)

	// ---- REST API routes (mirrors main.go) ----
	api := r.Group("/api")
	{
		readG := api.Group("")
		readG.Use(mw.RateLimit(ctx, limit, sec.RateLimitBurst))
		readG.GET("/levels", levelH.List)
		readG.GET("/levels/:level", levelH.Summary)
		readG.GET("/levels/:level/values", levelH.Values)
		readG.GET("/levels/:level/clusters", levelH.Clusters)
		readG.GET("/levels/:level/regions", levelH.Regions)
		readG.GET("/levels/:level/decisions", levelH.Recent)
		readG.GET("/levels/:level/events", sseH.ServeDecisions)

		hostG := api.Group("/host")
		hostG.Use(mw.HostAuth(sec, c), mw.RateLimit(ctx, limit, sec.RateLimitBurst))
		hostG.POST("/levels/:level/setup", hostH.Setup)
		hostG.DELETE("/levels/:level", hostH.Delete)
		hostG.POST("/levels/:level/tick", hostH.Tick)
		hostG.POST("/levels/:level/plan", hostH.Plan)
		hostG.POST("/levels/:level/heard", hostH.Heard)
		hostG.POST("/levels/:level/combat", hostH.Combat)

		adminG := api.Group("/admin")
		adminG.Use(mw.IPWhitelist([]string{"127.0.0.0/8", "::1"}), mw.AdminAuth(AdminKey))
		adminG.GET("/metrics", adminH.Metrics)
		adminG.GET("/scheduler", adminH.ListSchedulerTasks)
		adminG.POST("/tokens", adminH.IssueToken)
		adminG.DELETE("/tokens/:id", adminH.RevokeToken)
		adminG.GET("/decisions", adminH.Decisions)
		adminG.POST("/stats/flush", adminH.FlushStats)
	}

	// ---- WebSocket ----
	r.GET("/ws", wsH.ServeWS)

	// ---- Start server ----
	server := httptest.NewServer(r)
	url := server.URL
	wsURL := "ws" + url[len("http"):] + "/ws"

	ts := &TestServer{
		DB:      db,
		Cache:   c,
		PubSub:  pubsub,
		SM:      sm,
		Mgr:     mgr,
		Journal: js,
		Sched:   sched,
		Server:  server,
		URL:     url,
		WSURL:   wsURL,
		Sec:     sec,
	}
	t.Cleanup(func() {
		cancel()
		ts.Close()
	})
	return ts
}

// Close shuts down the test server and all engine systems.
func (ts *TestServer) Close() {
	ts.SM.CloseAll()
	ts.Server.Close()
	ts.Sched.Stop()
	ts.Journal.Stop(context.Background())
	ts.Mgr.StopAll()
}

// --- HTTP helpers ---

func (ts *TestServer) do(t *testing.T, method, path string, body []byte, headers map[string]string) *http.Response {
	t.Helper()
	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}
	req, err := http.NewRequest(method, ts.URL+path, bodyReader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

// PostJSON sends a POST request with JSON body and optional Bearer token.
func (ts *TestServer) PostJSON(t *testing.T, path string, body interface{}, token string) *http.Response {
	t.Helper()
	var data []byte
	if raw, ok := body.(string); ok {
		data = []byte(raw)
	} else {
		var err error
		data, err = json.Marshal(body)
		require.NoError(t, err)
	}
	return ts.do(t, http.MethodPost, path, data, bearer(token))
}

// Get sends a GET request with optional Bearer token.
func (ts *TestServer) Get(t *testing.T, path string, token string) *http.Response {
	t.Helper()
	return ts.do(t, http.MethodGet, path, nil, bearer(token))
}

// Admin sends a request carrying the admin key.
func (ts *TestServer) Admin(t *testing.T, method, path string, body interface{}) *http.Response {
	t.Helper()
	var data []byte
	if body != nil {
		var err error
		data, err = json.Marshal(body)
		require.NoError(t, err)
	}
	return ts.do(t, method, path, data, map[string]string{mw.AdminKeyHeader: AdminKey})
}

func bearer(token string) map[string]string {
	if token == "" {
		return nil
	}
	return map[string]string{"Authorization": "Bearer " + token}
}

// ReadJSON reads and decodes a JSON response body into the given target.
func ReadJSON(t *testing.T, resp *http.Response, target interface{}) {
	t.Helper()
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, target), "body: %s", string(data))
}

// --- Auth helpers ---

// IssueToken asks the admin API for a host token scoped to levels.
func (ts *TestServer) IssueToken(t *testing.T, host string, levels ...string) (token, id string) {
	t.Helper()
	resp := ts.Admin(t, http.MethodPost, "/api/admin/tokens", map[string]interface{}{
		"host":   host,
		"levels": levels,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var result map[string]interface{}
	ReadJSON(t, resp, &result)
	return result["token"].(string), result["token_id"].(string)
}

// --- WebSocket client ---

// WSClient wraps a gorilla/websocket connection for integration testing.
// A background readLoop feeds readCh so timeouts never touch the connection.
type WSClient struct {
	Conn   *websocket.Conn
	t      *testing.T
	seq    uint64
	readCh chan readResult
}

type readResult struct {
	data []byte
	err  error
}

// ConnectWS dials the test server's WS endpoint with the given host token.
func (ts *TestServer) ConnectWS(t *testing.T, token string) *WSClient {
	t.Helper()
	url := ts.WSURL + "?token=" + token
	dialer := websocket.Dialer{}
	conn, resp, err := dialer.Dial(url, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	require.NoError(t, err, "WS dial failed")
	wc := &WSClient{Conn: conn, t: t, readCh: make(chan readResult, 256)}
	go wc.readLoop()
	t.Cleanup(func() { conn.Close() })
	return wc
}

func (wc *WSClient) readLoop() {
	for {
		_, data, err := wc.Conn.ReadMessage()
		wc.readCh <- readResult{data, err}
		if err != nil {
			return
		}
	}
}

// Send writes a JSON packet to the WebSocket.
func (wc *WSClient) Send(msgType string, payload interface{}) {
	wc.t.Helper()
	seq := atomic.AddUint64(&wc.seq, 1)
	payloadJSON, err := json.Marshal(payload)
	require.NoError(wc.t, err)
	pkt := map[string]interface{}{
		"seq":     seq,
		"type":    msgType,
		"payload": json.RawMessage(payloadJSON),
	}
	data, err := json.Marshal(pkt)
	require.NoError(wc.t, err)
	require.NoError(wc.t, wc.Conn.WriteMessage(websocket.TextMessage, data))
}

// RecvAny reads one packet within timeout.
func (wc *WSClient) RecvAny(timeout time.Duration) (map[string]interface{}, error) {
	select {
	case res := <-wc.readCh:
		if res.err != nil {
			return nil, res.err
		}
		var pkt map[string]interface{}
		if err := json.Unmarshal(res.data, &pkt); err != nil {
			return nil, err
		}
		return pkt, nil
	case <-time.After(timeout):
		return nil, &timeoutError{}
	}
}

type timeoutError struct{}

func (e *timeoutError) Error() string   { return "read timeout" }
func (e *timeoutError) Timeout() bool   { return true }
func (e *timeoutError) Temporary() bool { return true }

// RecvType reads packets until one with the given type arrives.
func (wc *WSClient) RecvType(msgType string, timeout time.Duration) map[string]interface{} {
	wc.t.Helper()
	deadline := time.Now().Add(timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			break
		}
		pkt, err := wc.RecvAny(remaining)
		if err != nil {
			wc.t.Fatalf("WS recv failed while waiting for %q: %v", msgType, err)
		}
		if pkt["type"] == msgType {
			return pkt
		}
	}
	wc.t.Fatalf("timed out waiting for message type %q", msgType)
	return nil
}
