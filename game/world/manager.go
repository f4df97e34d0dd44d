package world

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/kasuganosora/arenabot/cache"
	"github.com/kasuganosora/arenabot/game/economy"
	"github.com/kasuganosora/arenabot/game/item"
	"github.com/kasuganosora/arenabot/game/nav"
	"github.com/kasuganosora/arenabot/game/pickup"
	"github.com/kasuganosora/arenabot/model"
	"github.com/kasuganosora/arenabot/resource"
)

// recentDecisions is how many decisions per level stay in the cache list.
const recentDecisions = 100

// DecisionEvent is a fresh pickup decision as published and journaled.
type DecisionEvent struct {
	ID    string `json:"id"`
	Level string `json:"level"`
	*pickup.Decision
}

// Recorder persists decision events. Record must not block.
type Recorder interface {
	Record(ev DecisionEvent)
}

// DecisionChannel is the pub/sub channel carrying a level's decisions.
func DecisionChannel(level string) string { return "arenabot:decisions:" + level }

func recentKey(level string) string { return "arenabot:recent:" + level }

// Manager owns every active level.
type Manager struct {
	mu      sync.RWMutex
	levels  map[string]*LevelIndex
	cfg     Config
	cache   cache.Cache
	bus     cache.PubSub
	db      *gorm.DB
	journal Recorder
	// TravelTTL bounds how long cached travel matrices live.
	TravelTTL time.Duration
	logger    *zap.Logger
}

// NewManager creates a Manager. Any of c, bus and db may be nil.
func NewManager(cfg Config, c cache.Cache, bus cache.PubSub, db *gorm.DB, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		levels:    make(map[string]*LevelIndex),
		cfg:       cfg,
		cache:     c,
		bus:       bus,
		db:        db,
		TravelTTL: 7 * 24 * time.Hour,
		logger:    logger,
	}
}

// SetJournal sets where decision events are persisted.
func (m *Manager) SetJournal(r Recorder) { m.journal = r }

// Setup builds (or rebuilds) the level described by ld.
func (m *Manager) Setup(ctx context.Context, ld *resource.LevelData) (*LevelIndex, error) {
	grid, err := ld.BuildGrid()
	if err != nil {
		return nil, fmt.Errorf("world: setup %s: %w", ld.Name, err)
	}
	sum, err := Checksum(ld)
	if err != nil {
		return nil, err
	}
	oracle := nav.NewGridOracle(grid, m.cfg.RunSpeed)
	cached := m.loadTravel(ctx, ld.Name, sum)

	lvl := m.getOrCreate(ld.Name)
	if err := lvl.SetupLevel(ld, oracle, cached); err != nil {
		return nil, err
	}
	if cached == nil {
		m.storeTravel(ctx, ld.Name, sum, lvl.Travel())
	}
	if err := m.saveRecord(ctx, ld, sum, lvl); err != nil {
		m.logger.Warn("level record not saved", zap.String("level", ld.Name), zap.Error(err))
	}
	if err := m.restoreStats(ctx, lvl); err != nil {
		m.logger.Warn("combatant stats not restored", zap.String("level", ld.Name), zap.Error(err))
	}
	return lvl, nil
}

func (m *Manager) getOrCreate(name string) *LevelIndex {
	m.mu.RLock()
	lvl, ok := m.levels[name]
	m.mu.RUnlock()
	if ok {
		return lvl
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if lvl, ok = m.levels[name]; ok {
		return lvl
	}
	lvl = NewLevelIndex(name, m.cfg, m.logger)
	m.levels[name] = lvl
	m.logger.Info("level created", zap.String("level", name))
	return lvl
}

// Get returns the level called name.
func (m *Manager) Get(name string) (*LevelIndex, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	lvl, ok := m.levels[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrLevelNotFound, name)
	}
	return lvl, nil
}

// Remove resets and forgets a level.
func (m *Manager) Remove(ctx context.Context, name string) error {
	m.mu.Lock()
	lvl, ok := m.levels[name]
	delete(m.levels, name)
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrLevelNotFound, name)
	}
	lvl.ResetLevel()
	if m.cache != nil {
		if err := m.cache.Del(ctx, recentKey(name)); err != nil {
			m.logger.Warn("recent decisions not cleared", zap.String("level", name), zap.Error(err))
		}
	}
	m.logger.Info("level removed", zap.String("level", name))
	return nil
}

// Names returns the active level names in order.
func (m *Manager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.levels))
	for name := range m.levels {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Count is the number of active levels.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.levels)
}

func (m *Manager) each(fn func(*LevelIndex)) {
	m.mu.RLock()
	levels := make([]*LevelIndex, 0, len(m.levels))
	for _, lvl := range m.levels {
		levels = append(levels, lvl)
	}
	m.mu.RUnlock()
	for _, lvl := range levels {
		fn(lvl)
	}
}

// Combatants is the number of combatants with a planner across all levels.
func (m *Manager) Combatants() int {
	n := 0
	m.each(func(lvl *LevelIndex) { n += lvl.Summary().Combatants })
	return n
}

// PlanPickup plans one combatant's pickup and publishes a fresh decision.
func (m *Manager) PlanPickup(ctx context.Context, level string, req PlanRequest) (*pickup.Goal, error) {
	lvl, err := m.Get(level)
	if err != nil {
		return nil, err
	}
	goal, d, err := lvl.PlanPickup(req)
	if err != nil {
		return nil, err
	}
	if d != nil {
		m.emit(ctx, level, d)
	}
	return goal, nil
}

func (m *Manager) emit(ctx context.Context, level string, d *pickup.Decision) {
	ev := DecisionEvent{ID: uuid.NewString(), Level: level, Decision: d}
	if m.journal != nil {
		m.journal.Record(ev)
	}
	if m.bus == nil && m.cache == nil {
		return
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		m.logger.Error("decision not encoded", zap.Error(err))
		return
	}
	if m.bus != nil {
		if err := m.bus.Publish(ctx, DecisionChannel(level), string(payload)); err != nil {
			m.logger.Warn("decision not published", zap.String("level", level), zap.Error(err))
		}
	}
	if m.cache != nil {
		key := recentKey(level)
		if err := m.cache.LPush(ctx, key, string(payload)); err != nil {
			m.logger.Warn("decision not cached", zap.String("level", level), zap.Error(err))
			return
		}
		_ = m.cache.LTrim(ctx, key, 0, recentDecisions-1)
	}
}

// RecentDecisions returns up to n of a level's latest decisions, newest first.
func (m *Manager) RecentDecisions(ctx context.Context, level string, n int) ([]DecisionEvent, error) {
	if m.cache == nil || n <= 0 {
		return nil, nil
	}
	raw, err := m.cache.LRange(ctx, recentKey(level), 0, int64(n-1))
	if err != nil {
		return nil, err
	}
	out := make([]DecisionEvent, 0, len(raw))
	for _, s := range raw {
		var ev DecisionEvent
		if err := json.Unmarshal([]byte(s), &ev); err != nil {
			continue
		}
		out = append(out, ev)
	}
	return out, nil
}

// Subscribe streams a level's decisions until cancel is called.
func (m *Manager) Subscribe(ctx context.Context, level string) (<-chan *cache.Message, func(), error) {
	if m.bus == nil {
		return nil, nil, fmt.Errorf("world: no pub/sub configured")
	}
	return m.bus.Subscribe(ctx, DecisionChannel(level))
}

func (m *Manager) loadTravel(ctx context.Context, name, sum string) [][]float64 {
	if m.cache == nil {
		return nil
	}
	blob, err := m.cache.Get(ctx, travelKey(name, sum))
	if err != nil {
		if !cache.IsNotFound(err) {
			m.logger.Warn("travel cache read failed", zap.String("level", name), zap.Error(err))
		}
		return nil
	}
	times, err := DecodeTravel([]byte(blob))
	if err != nil {
		m.logger.Warn("cached travel matrix unusable", zap.String("level", name), zap.Error(err))
		return nil
	}
	m.logger.Debug("travel matrix loaded from cache", zap.String("level", name), zap.Int("regions", len(times)))
	return times
}

func (m *Manager) storeTravel(ctx context.Context, name, sum string, times [][]float64) {
	if m.cache == nil || len(times) == 0 {
		return
	}
	blob, err := EncodeTravel(times)
	if err != nil {
		m.logger.Warn("travel matrix not cached", zap.String("level", name), zap.Error(err))
		return
	}
	if err := m.cache.Set(ctx, travelKey(name, sum), string(blob), m.TravelTTL); err != nil {
		m.logger.Warn("travel matrix not cached", zap.String("level", name), zap.Error(err))
	}
}

func (m *Manager) saveRecord(ctx context.Context, ld *resource.LevelData, sum string, lvl *LevelIndex) error {
	if m.db == nil {
		return nil
	}
	values, err := lvl.ResourceValues()
	if err != nil {
		return err
	}
	raw, err := json.Marshal(values)
	if err != nil {
		return err
	}
	s := lvl.Summary()
	rec := &model.LevelRecord{
		Name:     ld.Name,
		Checksum: sum,
		GameType: ld.GameType,
		Items:    s.Items,
		Clusters: s.StaticClusters + s.MobileClusters,
		Regions:  s.Regions,
		Values:   datatypes.JSON(raw),
	}
	return m.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"checksum", "game_type", "items", "clusters", "regions", "values", "updated_at"}),
	}).Create(rec).Error
}

func (m *Manager) restoreStats(ctx context.Context, lvl *LevelIndex) error {
	if m.db == nil {
		return nil
	}
	var rows []model.CombatantStats
	if err := m.db.WithContext(ctx).Where("level = ?", lvl.Name()).Find(&rows).Error; err != nil {
		return err
	}
	for _, row := range rows {
		stats := economy.NewCombatStats()
		if err := json.Unmarshal(row.Stats, &stats); err != nil {
			m.logger.Warn("combatant stats unreadable", zap.Int64("combatant", row.Combatant), zap.Error(err))
			continue
		}
		lvl.RestoreStats(item.EntityID(row.Combatant), stats)
	}
	return nil
}

// FlushStats persists every combatant's statistics.
func (m *Manager) FlushStats(ctx context.Context) error {
	if m.db == nil {
		return nil
	}
	var rows []model.CombatantStats
	m.each(func(lvl *LevelIndex) {
		for id, st := range lvl.CombatStats() {
			raw, err := json.Marshal(st)
			if err != nil {
				continue
			}
			rows = append(rows, model.CombatantStats{
				Level:     lvl.Name(),
				Combatant: int64(id),
				Deaths:    st.Deaths,
				Kills:     st.Kills,
				Stats:     datatypes.JSON(raw),
			})
		}
	})
	if len(rows) == 0 {
		return nil
	}
	return m.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "level"}, {Name: "combatant"}},
		DoUpdates: clause.AssignmentColumns([]string{"deaths", "kills", "stats", "updated_at"}),
	}).Create(&rows).Error
}

// StopAll resets every level (used at server shutdown).
func (m *Manager) StopAll() {
	m.mu.Lock()
	levels := m.levels
	m.levels = make(map[string]*LevelIndex)
	m.mu.Unlock()
	for _, lvl := range levels {
		lvl.ResetLevel()
	}
}
