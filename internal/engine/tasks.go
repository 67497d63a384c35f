package engine

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"autotrade/internal/types"
)

// task is one in-flight signal flow.
type task struct {
	signalID string
	symbol   string
	since    time.Time
	cancel   context.CancelFunc

	state     types.FlowState
	cancelled bool
}

// taskRegistry tracks in-flight flows by signal id.
type taskRegistry struct {
	mu    sync.Mutex
	tasks map[string]*task
}

func newTaskRegistry() *taskRegistry {
	return &taskRegistry{tasks: make(map[string]*task)}
}

// add registers a flow. It reports false when a flow for the same id is
// already running. With supersede set, older flows for the same symbol that
// have not started dispatching are cancelled and returned.
func (r *taskRegistry) add(sig types.Signal, cancel context.CancelFunc, now time.Time, supersede bool) (*task, []string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tasks[sig.ID]; exists {
		return nil, nil, false
	}

	var superseded []string
	if supersede {
		for id, t := range r.tasks {
			if strings.EqualFold(t.symbol, sig.Symbol) && t.cancelLocked() {
				superseded = append(superseded, id)
			}
		}
		sort.Strings(superseded)
	}

	t := &task{
		signalID: sig.ID,
		symbol:   sig.Symbol,
		since:    now,
		cancel:   cancel,
		state:    types.StateReceived,
	}
	r.tasks[sig.ID] = t
	return t, superseded, true
}

func (r *taskRegistry) remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tasks, id)
}

func (r *taskRegistry) setState(t *task, state types.FlowState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t.state = state
}

// beginDispatch moves a flow to DISPATCHING unless it was cancelled first.
// Past this point a flow can no longer be cancelled.
func (r *taskRegistry) beginDispatch(t *task) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t.cancelled {
		return false
	}
	t.state = types.StateDispatching
	return true
}

// cancel stops the flow for id if it has not started dispatching.
func (r *taskRegistry) cancel(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[id]
	if !ok {
		return false
	}
	return t.cancelLocked()
}

// cancelAll stops every flow that has not started dispatching.
func (r *taskRegistry) cancelAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.tasks {
		t.cancelLocked()
	}
}

func (t *task) cancelLocked() bool {
	if t.cancelled {
		return true
	}
	if t.state != types.StateReceived && t.state != types.StateWatching {
		return false
	}
	t.cancelled = true
	t.cancel()
	return true
}

func (r *taskRegistry) active() []types.ActiveFlow {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]types.ActiveFlow, 0, len(r.tasks))
	for _, t := range r.tasks {
		out = append(out, types.ActiveFlow{
			SignalID: t.signalID,
			Symbol:   t.symbol,
			State:    t.state,
			Since:    t.since,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Since.Equal(out[j].Since) {
			return out[i].SignalID < out[j].SignalID
		}
		return out[i].Since.Before(out[j].Since)
	})
	return out
}
