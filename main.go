package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	apirest "github.com/kasuganosora/arenabot/api/rest"
	"github.com/kasuganosora/arenabot/api/sse"
	apiws "github.com/kasuganosora/arenabot/api/ws"
	"github.com/kasuganosora/arenabot/cache"
	"github.com/kasuganosora/arenabot/config"
	dbadapter "github.com/kasuganosora/arenabot/db"
	"github.com/kasuganosora/arenabot/game/item"
	"github.com/kasuganosora/arenabot/game/pickup"
	"github.com/kasuganosora/arenabot/game/region"
	"github.com/kasuganosora/arenabot/game/world"
	"github.com/kasuganosora/arenabot/journal"
	mw "github.com/kasuganosora/arenabot/middleware"
	"github.com/kasuganosora/arenabot/model"
	"github.com/kasuganosora/arenabot/resource"
	"github.com/kasuganosora/arenabot/scheduler"
)

// engineConfig maps the file configuration onto the engine tuning.
func engineConfig(cfg *config.Config) world.Config {
	wc := world.DefaultConfig()
	wc.Items = item.Limits{
		MaxItems:     cfg.Item.MaxItems,
		MaxStatic:    cfg.Item.MaxStatic,
		MaxMobile:    cfg.Item.MaxMobile,
		MaxDropped:   cfg.Item.MaxDropped,
		ClusterRange: cfg.Item.ClusterRange,
		SuspendDepth: cfg.Item.SuspendedTrace,
	}
	wc.Regions = region.Config{
		MaxRegions:         cfg.Region.MaxRegions,
		MaxNeighbors:       cfg.Region.MaxLocalNeighbors,
		MaxDynamic:         cfg.Region.MaxDynamic,
		TrafficNeighbors:   cfg.Region.TrafficNeighbors,
		PathNeighborWeight: cfg.Region.PathNeighborWeight,
		ViewHeight:         cfg.Region.ViewHeight,
		SeedSeconds:        cfg.Region.TrafficSeedSeconds,
	}
	wc.Pickup = pickup.Config{
		MaxChain:            cfg.Pickup.MaxChain,
		MaxOptions:          cfg.Pickup.MaxOptions,
		AutopickupTime:      cfg.Pickup.AutopickupTime,
		AutopickupUtility:   cfg.Pickup.AutopickupUtility,
		PredictTimeMin:      cfg.Pickup.PredictTimeMin,
		ChangePenaltyTime:   cfg.Pickup.ChangePenaltyTime,
		ChangePenaltyFactor: cfg.Pickup.ChangePenaltyFactor,
		RecomputeDelay:      cfg.Pickup.RecomputeDelay,
		RecomputeDamageDrop: cfg.Pickup.RecomputeDamageDrop,
		ViewHeight:          cfg.Region.ViewHeight,
	}
	wc.Rules.QuadFactor = cfg.Rules.QuadFactor
	wc.Rules.WeaponRespawn = cfg.Rules.WeaponRespawn
	wc.Rules.TeamWeaponRespawn = cfg.Rules.TeamWeaponRespawn
	wc.Horizon = cfg.Pickup.ValuationHorizon
	wc.RunSpeed = cfg.Level.RunSpeed
	wc.DefaultSkill = cfg.Pickup.DefaultSkill
	return wc
}

func main() {
	cfgPath := "config/config.yaml"
	if len(os.Args) > 1 {
		cfgPath = os.Args[1]
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	// ---- Logger ----
	var logger *zap.Logger
	var logErr error
	if cfg.Server.Debug {
		logger, logErr = zap.NewDevelopment()
	} else {
		logger, logErr = zap.NewProduction()
	}
	if logErr != nil {
		log.Fatalf("logger: %v", logErr)
	}
	defer logger.Sync()

	if cfg.Server.AdminKey == "" {
		logger.Warn("server.admin_key is not set; admin endpoints are disabled")
	}
	if cfg.Security.HostSecret == "" {
		logger.Warn("security.host_secret is not set; host tokens cannot be issued or verified")
	}

	// ---- Database ----
	db, err := dbadapter.Open(cfg.Database)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	if err := model.AutoMigrate(db); err != nil {
		log.Fatalf("db migrate: %v", err)
	}
	logger.Info("DB initialized", zap.String("mode", cfg.Database.Mode))

	// ---- Cache / PubSub ----
	cacheConfig := cache.CacheConfig{
		RedisAddr:       cfg.Cache.RedisAddr,
		RedisPassword:   cfg.Cache.RedisPassword,
		RedisDB:         cfg.Cache.RedisDB,
		LocalGCInterval: cfg.Cache.LocalGCInterval,
		LocalPubSubBuf:  cfg.Cache.LocalPubSubBuf,
	}
	c, err := cache.NewCache(cacheConfig)
	if err != nil {
		log.Fatalf("cache: %v", err)
	}
	pubsub, err := cache.NewPubSub(cacheConfig)
	if err != nil {
		log.Fatalf("pubsub: %v", err)
	}
	logger.Info("Cache initialized", zap.Bool("redis", cfg.Cache.RedisAddr != ""))

	// ---- Engine ----
	mgr := world.NewManager(engineConfig(cfg), c, pubsub, db, logger)
	mgr.TravelTTL = cfg.Cache.TravelTTL

	var js *journal.Service
	if cfg.Journal.Enabled {
		js = journal.New(db, journal.Options{
			BatchSize:     cfg.Journal.BatchSize,
			FlushInterval: cfg.Journal.FlushInterval,
			QueueSize:     cfg.Journal.QueueSize,
		}, logger)
		mgr.SetJournal(js)
	}

	// ---- Level files ----
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if len(cfg.Level.Autoload) > 0 {
		res := resource.NewLoader(cfg.Level.DataDir)
		if err := res.Load(); err != nil {
			logger.Warn("level load warning", zap.Error(err))
		}
		for _, name := range cfg.Level.Autoload {
			ld, err := res.LoadLevel(name)
			if err != nil {
				logger.Warn("autoload level skipped", zap.String("level", name), zap.Error(err))
				continue
			}
			if _, err := mgr.Setup(ctx, ld); err != nil {
				logger.Warn("autoload level failed", zap.String("level", name), zap.Error(err))
				continue
			}
			logger.Info("level autoloaded", zap.String("level", name))
		}
	}

	// ---- Scheduler ----
	sched := scheduler.New(logger)
	if cfg.Level.StatsFlush > 0 {
		sched.AddTicker("stats_flush", cfg.Level.StatsFlush, mgr.FlushStats)
	}

	// ---- WS Router ----
	sm := apiws.NewSessionManager(logger)
	wsRouter := apiws.NewRouter(logger)
	apiws.NewEngineHandlers(mgr, logger).RegisterHandlers(wsRouter)

	// ---- Gin HTTP Server ----
	if !cfg.Server.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(mw.TraceID(), mw.Logger(logger), mw.Recovery(logger))

	limit := rate.Limit(cfg.Security.RateLimitRPS)
	hostH := apirest.NewHostHandler(mgr, logger)
	levelH := apirest.NewLevelHandler(mgr)
	adminH := apirest.NewAdminHandler(db, mgr, sched, sm, c, cfg.Security, logger)
	sseH := sse.NewHandler(mgr, logger)
	wsH := apiws.NewHandler(c, cfg.Security, sm, wsRouter, logger)

	r.GET("/health", levelH.Health)

	api := r.Group("/api")
	{
		readG := api.Group("")
		readG.Use(mw.RateLimit(ctx, limit, cfg.Security.RateLimitBurst))
		readG.GET("/levels", levelH.List)
		readG.GET("/levels/:level", levelH.Summary)
		readG.GET("/levels/:level/values", levelH.Values)
		readG.GET("/levels/:level/clusters", levelH.Clusters)
		readG.GET("/levels/:level/regions", levelH.Regions)
		readG.GET("/levels/:level/decisions", levelH.Recent)
		readG.GET("/levels/:level/events", sseH.ServeDecisions)

		hostG := api.Group("/host")
		hostG.Use(mw.HostAuth(cfg.Security, c), mw.RateLimit(ctx, limit, cfg.Security.RateLimitBurst))
		hostG.POST("/levels/:level/setup", hostH.Setup)
		hostG.DELETE("/levels/:level", hostH.Delete)
		hostG.POST("/levels/:level/tick", hostH.Tick)
		hostG.POST("/levels/:level/plan", hostH.Plan)
		hostG.POST("/levels/:level/heard", hostH.Heard)
		hostG.POST("/levels/:level/combat", hostH.Combat)

		adminG := api.Group("/admin")
		adminG.Use(mw.IPWhitelist(cfg.Security.AdminAllowIPs), mw.AdminAuth(cfg.Server.AdminKey))
		adminG.GET("/metrics", adminH.Metrics)
		adminG.GET("/scheduler", adminH.ListSchedulerTasks)
		adminG.POST("/tokens", adminH.IssueToken)
		adminG.DELETE("/tokens/:id", adminH.RevokeToken)
		adminG.GET("/decisions", adminH.Decisions)
		adminG.POST("/stats/flush", adminH.FlushStats)
	}

	// ---- WebSocket ----
	r.GET("/ws", wsH.ServeWS)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: r,
		// Event streams end with the process context.
		BaseContext: func(net.Listener) context.Context { return ctx },
	}
	go func() {
		logger.Info("Server listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	sm.CloseAll()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server shutdown", zap.Error(err))
	}
	sched.Stop()
	if err := mgr.FlushStats(shutdownCtx); err != nil {
		logger.Warn("final stats flush failed", zap.Error(err))
	}
	if js != nil {
		js.Stop(shutdownCtx)
	}
	mgr.StopAll()
}
