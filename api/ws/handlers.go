package ws

import (
	"context"
	"encoding/json"
	"errors"

	"go.uber.org/zap"

	"github.com/kasuganosora/arenabot/game/economy"
	"github.com/kasuganosora/arenabot/game/geom"
	"github.com/kasuganosora/arenabot/game/item"
	"github.com/kasuganosora/arenabot/game/pickup"
	"github.com/kasuganosora/arenabot/game/world"
)

// EngineHandlers serves the tick, plan, heard, combat and watch messages.
type EngineHandlers struct {
	mgr    *world.Manager
	logger *zap.Logger
}

// NewEngineHandlers creates the engine message handlers.
func NewEngineHandlers(mgr *world.Manager, logger *zap.Logger) *EngineHandlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EngineHandlers{mgr: mgr, logger: logger}
}

// RegisterHandlers registers every engine message on r.
func (h *EngineHandlers) RegisterHandlers(r *Router) {
	r.On("ping", h.handlePing)
	r.On("tick", h.handleTick)
	r.On("plan", h.handlePlan)
	r.On("heard", h.handleHeard)
	r.On("combat", h.handleCombat)
	r.On("watch", h.handleWatch)
	r.On("unwatch", h.handleUnwatch)
}

type levelRef struct {
	Level string `json:"level"`
}

// TickPayload carries one tick snapshot of a level.
type TickPayload struct {
	Level string `json:"level"`
	world.Snapshot
}

// PlanPayload asks for one combatant's next pickup.
type PlanPayload struct {
	Level string `json:"level"`
	world.PlanRequest
}

// PlanResult answers a plan message. Goal is nil when no pickup is worth it.
type PlanResult struct {
	Combatant item.EntityID `json:"combatant_id"`
	Goal      *pickup.Goal  `json:"goal"`
}

// HeardPayload reports a pickup sound heard by a combatant.
type HeardPayload struct {
	Level     string        `json:"level"`
	Combatant item.EntityID `json:"combatant_id"`
	Origin    geom.Vec3     `json:"origin"`
}

// CombatPayload is a combat statistics delta for one combatant.
type CombatPayload struct {
	Level     string              `json:"level"`
	Combatant item.EntityID       `json:"combatant_id"`
	Stats     economy.CombatStats `json:"stats"`
}

func (h *EngineHandlers) level(s *Session, name string) (*world.LevelIndex, error) {
	if name == "" {
		return nil, badRequest("level required")
	}
	if !s.AllowsLevel(name) {
		return nil, badRequest("level not allowed")
	}
	lvl, err := h.mgr.Get(name)
	if err != nil {
		return nil, badRequest(err.Error())
	}
	return lvl, nil
}

// engineError reports engine sentinel errors to the host without logging.
func engineError(err error) error {
	switch {
	case errors.Is(err, world.ErrNotReady), errors.Is(err, world.ErrUnknownCombatant),
		errors.Is(err, world.ErrLevelNotFound), errors.Is(err, world.ErrUnknownItem):
		return badRequest(err.Error())
	}
	return err
}

func (h *EngineHandlers) handlePing(_ context.Context, _ *Session, in *Incoming) (any, error) {
	var p struct {
		ClientTS int64 `json:"client_ts"`
	}
	if err := in.Decode(&p); err != nil {
		return nil, badRequest("bad payload")
	}
	return map[string]int64{"client_ts": p.ClientTS}, nil
}

func (h *EngineHandlers) handleTick(_ context.Context, s *Session, in *Incoming) (any, error) {
	var p TickPayload
	if err := in.Decode(&p); err != nil {
		return nil, badRequest("bad payload")
	}
	lvl, err := h.level(s, p.Level)
	if err != nil {
		return nil, err
	}
	st, err := lvl.UpdateDynamicResources(p.Snapshot)
	if err != nil {
		return nil, engineError(err)
	}
	return st, nil
}

func (h *EngineHandlers) handlePlan(ctx context.Context, s *Session, in *Incoming) (any, error) {
	var p PlanPayload
	if err := in.Decode(&p); err != nil {
		return nil, badRequest("bad payload")
	}
	if _, err := h.level(s, p.Level); err != nil {
		return nil, err
	}
	goal, err := h.mgr.PlanPickup(ctx, p.Level, p.PlanRequest)
	if err != nil {
		return nil, engineError(err)
	}
	return PlanResult{Combatant: p.Combatant, Goal: goal}, nil
}

func (h *EngineHandlers) handleHeard(_ context.Context, s *Session, in *Incoming) (any, error) {
	var p HeardPayload
	if err := in.Decode(&p); err != nil {
		return nil, badRequest("bad payload")
	}
	lvl, err := h.level(s, p.Level)
	if err != nil {
		return nil, err
	}
	timed, err := lvl.HeardPickup(p.Combatant, p.Origin)
	if err != nil {
		return nil, engineError(err)
	}
	return map[string]bool{"timed": timed}, nil
}

func (h *EngineHandlers) handleCombat(_ context.Context, s *Session, in *Incoming) (any, error) {
	var p CombatPayload
	if err := in.Decode(&p); err != nil {
		return nil, badRequest("bad payload")
	}
	lvl, err := h.level(s, p.Level)
	if err != nil {
		return nil, err
	}
	if err := lvl.RecordCombat(p.Combatant, p.Stats); err != nil {
		return nil, engineError(err)
	}
	return map[string]bool{"ok": true}, nil
}

// handleWatch forwards the level's decisions to the session as "decision"
// packets until unwatch or disconnect.
func (h *EngineHandlers) handleWatch(_ context.Context, s *Session, in *Incoming) (any, error) {
	var p levelRef
	if err := in.Decode(&p); err != nil {
		return nil, badRequest("bad payload")
	}
	if _, err := h.level(s, p.Level); err != nil {
		return nil, err
	}
	subCtx, cancel := context.WithCancel(context.Background())
	msgs, unsub, err := h.mgr.Subscribe(subCtx, p.Level)
	if err != nil {
		cancel()
		return nil, err
	}
	stop := func() {
		cancel()
		unsub()
	}
	s.Watch(p.Level, stop)

	go func() {
		for {
			select {
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var ev world.DecisionEvent
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					h.logger.Warn("decision event unreadable", zap.Error(err))
					continue
				}
				s.Send(&Packet{Type: "decision", Payload: ev})
			case <-subCtx.Done():
				return
			case <-s.Done:
				return
			}
		}
	}()
	return map[string]string{"watching": p.Level}, nil
}

func (h *EngineHandlers) handleUnwatch(_ context.Context, s *Session, in *Incoming) (any, error) {
	var p levelRef
	if err := in.Decode(&p); err != nil {
		return nil, badRequest("bad payload")
	}
	return map[string]bool{"stopped": s.Unwatch(p.Level)}, nil
}
