// Package journal persists pickup decisions asynchronously in batches.
package journal

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/kasuganosora/arenabot/game/world"
	"github.com/kasuganosora/arenabot/model"
)

// Options tunes the batch writer.
type Options struct {
	BatchSize     int
	FlushInterval time.Duration
	QueueSize     int
}

func (o *Options) normalize() {
	if o.BatchSize <= 0 {
		o.BatchSize = 100
	}
	if o.FlushInterval <= 0 {
		o.FlushInterval = 5 * time.Second
	}
	if o.QueueSize <= 0 {
		o.QueueSize = 1024
	}
}

// Service writes decision events to the database.
type Service struct {
	db       *gorm.DB
	opts     Options
	ch       chan *model.PickupDecision
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	logger   *zap.Logger
}

// New creates a Service and starts its background worker.
func New(db *gorm.DB, opts Options, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts.normalize()
	svc := &Service{
		db:     db,
		opts:   opts,
		ch:     make(chan *model.PickupDecision, opts.QueueSize),
		stopCh: make(chan struct{}),
		logger: logger,
	}
	svc.wg.Add(1)
	go svc.worker()
	return svc
}

// Record enqueues a decision. Events are dropped when the queue is full.
func (svc *Service) Record(ev world.DecisionEvent) {
	if ev.Decision == nil {
		return
	}
	rec := toRecord(ev)
	select {
	case <-svc.stopCh:
		return
	default:
	}
	select {
	case svc.ch <- rec:
	default:
		svc.logger.Warn("journal queue full, dropping decision",
			zap.String("level", ev.Level),
			zap.Int("combatant", int(ev.Combatant)))
	}
}

func toRecord(ev world.DecisionEvent) *model.PickupDecision {
	chain, _ := json.Marshal(ev.Chain)
	options, _ := json.Marshal(ev.Options)
	return &model.PickupDecision{
		DecisionID: ev.ID,
		Level:      ev.Level,
		Combatant:  int64(ev.Combatant),
		GameTime:   ev.Time,
		FastPath:   ev.FastPath,
		Candidates: ev.Candidates,
		Baseline:   ev.Baseline,
		ScoreRate:  ev.ScoreRate,
		Target:     int64(ev.Target),
		Chain:      datatypes.JSON(chain),
		Options:    datatypes.JSON(options),
	}
}

// Stop flushes queued decisions and shuts down the worker.
// It blocks until the worker goroutine has finished.
func (svc *Service) Stop(_ context.Context) {
	svc.stopOnce.Do(func() { close(svc.stopCh) })
	svc.wg.Wait()
}

func (svc *Service) worker() {
	defer svc.wg.Done()
	ticker := time.NewTicker(svc.opts.FlushInterval)
	defer ticker.Stop()

	batch := make([]*model.PickupDecision, 0, svc.opts.BatchSize)

	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := svc.db.Create(&batch).Error; err != nil {
			svc.logger.Error("journal batch write failed", zap.Int("decisions", len(batch)), zap.Error(err))
		}
		batch = batch[:0]
	}

	for {
		select {
		case rec := <-svc.ch:
			batch = append(batch, rec)
			if len(batch) >= svc.opts.BatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-svc.stopCh:
			for {
				select {
				case rec := <-svc.ch:
					batch = append(batch, rec)
				default:
					flush()
					return
				}
			}
		}
	}
}

// Query filters journaled decisions.
type Query struct {
	Level     string
	Combatant int64
	Since     time.Time
	Limit     int
}

// Find returns matching decisions, newest first.
func Find(ctx context.Context, db *gorm.DB, q Query) ([]model.PickupDecision, error) {
	tx := db.WithContext(ctx).Model(&model.PickupDecision{})
	if q.Level != "" {
		tx = tx.Where("level = ?", q.Level)
	}
	if q.Combatant != 0 {
		tx = tx.Where("combatant = ?", q.Combatant)
	}
	if !q.Since.IsZero() {
		tx = tx.Where("created_at >= ?", q.Since)
	}
	limit := q.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var out []model.PickupDecision
	err := tx.Order("id DESC").Limit(limit).Find(&out).Error
	return out, err
}
