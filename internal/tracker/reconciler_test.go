package tracker

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/videre-project/Tracker-sub000/internal/client"
	"github.com/videre-project/Tracker-sub000/internal/config"
	"github.com/videre-project/Tracker-sub000/internal/models"
)

// recordSink 记录下游收到的全部条目
type recordSink struct {
	mu      sync.Mutex
	entries []Entry
}

func (s *recordSink) Append(e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, e)
	return nil
}

func (s *recordSink) all() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

func (s *recordSink) actions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var names []string
	for _, e := range s.entries {
		if e.Kind == string(client.GameActionPerformed) {
			names = append(names, e.Payload["name"].(string))
		}
	}
	return names
}

func reconcilerCfg() config.TrackerConfig {
	return config.TrackerConfig{AbsorbTimeout: time.Millisecond}
}

func action(name string, ts int64) client.GameEvent {
	return client.GameEvent{
		Kind:      client.GameActionPerformed,
		Timestamp: ts,
		Payload:   models.JSONMap{"name": name},
	}
}

func advance(ts int64) client.GameEvent {
	return client.GameEvent{Kind: client.GamePromptChanged, Timestamp: ts}
}

func TestReconcilerCommitsOnPromptAdvance(t *testing.T) {
	sink := &recordSink{}
	r := NewReconciler("g1", reconcilerCfg(), sink)

	r.HandleEvent(action("A", 1))
	r.HandleEvent(advance(2))

	assert.Equal(t, []string{"A"}, sink.actions())
}

func TestReconcilerCancelDiscardsInteraction(t *testing.T) {
	sink := &recordSink{}
	r := NewReconciler("g1", reconcilerCfg(), sink)

	r.HandleEvent(action("A", 1))
	r.HandleEvent(action("B", 1))
	r.HandleEvent(client.GameEvent{Kind: client.GameActionCancelled, Timestamp: 1})
	r.HandleEvent(advance(2))

	assert.Empty(t, sink.actions())
}

func TestReconcilerUndoDropsUndoneAction(t *testing.T) {
	sink := &recordSink{}
	r := NewReconciler("g1", reconcilerCfg(), sink)

	r.HandleEvent(action("A", 1))
	r.HandleEvent(action("B", 2))
	r.HandleEvent(client.GameEvent{Kind: client.GameActionUndone, Timestamp: 2})
	r.HandleEvent(advance(3))

	assert.Equal(t, []string{"A"}, sink.actions())
}

func TestReconcilerTieBreakIsPushOrder(t *testing.T) {
	sink := &recordSink{}
	r := NewReconciler("g1", reconcilerCfg(), sink)

	r.HandleEvent(action("A", 1))
	r.HandleEvent(action("B", 1))
	r.HandleEvent(action("C", 1))
	r.HandleEvent(advance(2))

	assert.Equal(t, []string{"A", "B", "C"}, sink.actions())
}

func TestReconcilerHoldsActionsAtOrAfterPrompt(t *testing.T) {
	sink := &recordSink{}
	r := NewReconciler("g1", reconcilerCfg(), sink)

	// 栈顶时间戳不小于T时本轮不提交
	r.HandleEvent(action("A", 1))
	r.HandleEvent(action("B", 2))
	r.HandleEvent(advance(2))
	assert.Empty(t, sink.actions())

	r.HandleEvent(advance(3))
	assert.Equal(t, []string{"A", "B"}, sink.actions())
}

func TestReconcilerLateUndoAfterCommit(t *testing.T) {
	sink := &recordSink{}
	r := NewReconciler("g1", reconcilerCfg(), sink)

	r.HandleEvent(action("A", 1))
	r.HandleEvent(advance(2))
	assert.Equal(t, []string{"A"}, sink.actions())

	// 目标已提交、栈为空的undo进侧队列，下一次推进只消化标记
	r.HandleEvent(client.GameEvent{Kind: client.GameActionUndone, Timestamp: 2})
	r.HandleEvent(advance(3))
	assert.Equal(t, []string{"A"}, sink.actions())
}

func TestReconcilerImmediateKinds(t *testing.T) {
	sink := &recordSink{}
	r := NewReconciler("g1", reconcilerCfg(), sink)

	r.HandleEvent(client.GameEvent{Kind: client.GamePhaseChanged, Timestamp: 5, Payload: models.JSONMap{"phase": "combat"}})
	r.HandleEvent(client.GameEvent{Kind: client.GameLifeChanged, Timestamp: 6, Payload: models.JSONMap{"life": float64(17)}})

	entries := sink.all()
	assert.Len(t, entries, 2)
	assert.Equal(t, string(client.GamePhaseChanged), entries[0].Kind)
	assert.Equal(t, string(client.GameLifeChanged), entries[1].Kind)
}

func TestReconcilerFinishFlushesInPushOrder(t *testing.T) {
	sink := &recordSink{}
	r := NewReconciler("g1", reconcilerCfg(), sink)

	r.HandleEvent(action("A", 1))
	r.HandleEvent(action("B", 2))
	r.HandleEvent(client.GameEvent{Kind: client.GameStatusChanged, Finished: true})

	assert.Equal(t, []string{"A", "B"}, sink.actions())
	assert.Zero(t, r.PendingCount())
}

func TestReconcilerFinishIsIdempotent(t *testing.T) {
	sink := &recordSink{}
	r := NewReconciler("g1", reconcilerCfg(), sink)

	unsubCalls := 0
	finishCalls := 0
	r.SetUnsubscribe(func() { unsubCalls++ })
	r.SetOnFinished(func(string) { finishCalls++ })

	r.HandleEvent(action("A", 1))
	r.Finish()
	r.Finish()

	assert.Equal(t, []string{"A"}, sink.actions())
	assert.Equal(t, 1, unsubCalls)
	assert.Equal(t, 1, finishCalls)

	// 停用后的事件被忽略
	r.HandleEvent(action("B", 2))
	r.HandleEvent(advance(3))
	assert.Equal(t, []string{"A"}, sink.actions())
}

func TestReconcilerAbsorbsInFlightAction(t *testing.T) {
	sink := &recordSink{}
	cfg := config.TrackerConfig{AbsorbTimeout: 200 * time.Millisecond}
	r := NewReconciler("g1", cfg, sink)

	r.HandleEvent(action("A", 1))

	// 推进期间仍在途的同交互动作被吸收进同一批提交
	go func() {
		time.Sleep(20 * time.Millisecond)
		r.HandleEvent(action("B", 1))
	}()
	r.HandleEvent(advance(2))

	assert.Equal(t, []string{"A", "B"}, sink.actions())
}
