package journal

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kasuganosora/arenabot/game/pickup"
	"github.com/kasuganosora/arenabot/game/world"
	"github.com/kasuganosora/arenabot/model"
	"github.com/kasuganosora/arenabot/testutil"
)

func event(n int, level string) world.DecisionEvent {
	return world.DecisionEvent{
		ID:    fmt.Sprintf("00000000-0000-0000-0000-%012d", n),
		Level: level,
		Decision: &pickup.Decision{
			Combatant:  3,
			Time:       float64(n),
			Candidates: 4,
			Baseline:   .5,
			ScoreRate:  .75,
			Chain:      []string{"static#0(Heavy Armor)"},
			Target:     12,
			Options: []pickup.Option{
				{Chain: []string{"static#0(Heavy Armor)"}, ScoreRate: .75, Selected: true},
			},
		},
	}
}

func TestRecordFlushedOnStop(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := New(db, Options{}, zap.NewNop())
	svc.Record(event(1, "dm1"))
	svc.Stop(context.Background())

	var rows []model.PickupDecision
	require.NoError(t, db.Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.Equal(t, "dm1", rows[0].Level)
	assert.Equal(t, int64(3), rows[0].Combatant)
	assert.Equal(t, int64(12), rows[0].Target)
	assert.Equal(t, .75, rows[0].ScoreRate)

	var chain []string
	require.NoError(t, json.Unmarshal(rows[0].Chain, &chain))
	assert.Equal(t, []string{"static#0(Heavy Armor)"}, chain)
}

func TestRecordIgnoresEmptyEvents(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := New(db, Options{}, zap.NewNop())
	svc.Record(world.DecisionEvent{ID: "x", Level: "dm1"})
	svc.Stop(context.Background())

	var count int64
	db.Model(&model.PickupDecision{}).Count(&count)
	assert.Zero(t, count)
}

func TestBatchFlushWithoutStop(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := New(db, Options{BatchSize: 5, FlushInterval: time.Hour}, zap.NewNop())
	defer svc.Stop(context.Background())

	for i := 0; i < 5; i++ {
		svc.Record(event(i, "dm1"))
	}
	assert.Eventually(t, func() bool {
		var count int64
		db.Model(&model.PickupDecision{}).Count(&count)
		return count == 5
	}, 2*time.Second, 20*time.Millisecond)
}

func TestStopTwiceAndRecordAfterStop(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := New(db, Options{}, zap.NewNop())
	svc.Stop(context.Background())
	svc.Stop(context.Background())
	svc.Record(event(1, "dm1"))

	var count int64
	db.Model(&model.PickupDecision{}).Count(&count)
	assert.Zero(t, count)
}

func TestFind(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := New(db, Options{}, zap.NewNop())
	for i := 0; i < 3; i++ {
		svc.Record(event(i, "dm1"))
	}
	svc.Record(event(9, "ctf2"))
	svc.Stop(context.Background())

	ctx := context.Background()
	rows, err := Find(ctx, db, Query{Level: "dm1"})
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, 2.0, rows[0].GameTime)

	rows, err = Find(ctx, db, Query{Limit: 1})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "ctf2", rows[0].Level)

	rows, err = Find(ctx, db, Query{Combatant: 99})
	require.NoError(t, err)
	assert.Empty(t, rows)
}
