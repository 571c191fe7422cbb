package progress

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// KernelState is the tracked state of one kernel of one variant.
type KernelState struct {
	Variant   string `json:"variant"`
	Kernel    string `json:"kernel"`
	Total     int    `json:"total"`
	Generated int    `json:"generated"`
	Failed    int    `json:"failed"`
	Skipped   int    `json:"skipped"`
	Done      bool   `json:"done"`
}

// Snapshot is a point-in-time copy of a Tracker.
type Snapshot struct {
	RunID     string        `json:"run_id"`
	Started   time.Time     `json:"started"`
	Kernels   []KernelState `json:"kernels"`
	Variants  []string      `json:"finished_variants"`
	Generated int           `json:"generated"`
	Failed    int           `json:"failed"`
	Skipped   int           `json:"skipped"`
}

// Tracker accumulates events in memory and serves them as JSON.
type Tracker struct {
	mu       sync.RWMutex
	runID    string
	started  time.Time
	order    []string
	kernels  map[string]*KernelState
	finished []string
}

func NewTracker(runID string) *Tracker {
	return &Tracker{runID: runID, started: time.Now(), kernels: make(map[string]*KernelState)}
}

func (t *Tracker) Report(_ context.Context, ev Event) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if ev.Type == RunFinished {
		t.finished = append(t.finished, ev.Variant)
		return
	}

	key := ev.Variant + "/" + ev.Kernel
	st, ok := t.kernels[key]
	if !ok {
		st = &KernelState{Variant: ev.Variant, Kernel: ev.Kernel}
		t.kernels[key] = st
		t.order = append(t.order, key)
	}
	st.Total = ev.Total
	st.Generated = ev.Generated
	st.Failed = ev.Failed
	st.Skipped = ev.Skipped
	st.Done = ev.Type == KernelFinished
}

func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()

	s := Snapshot{
		RunID:    t.runID,
		Started:  t.started,
		Kernels:  make([]KernelState, 0, len(t.order)),
		Variants: append([]string{}, t.finished...),
	}
	for _, key := range t.order {
		st := *t.kernels[key]
		s.Kernels = append(s.Kernels, st)
		s.Generated += st.Generated
		s.Failed += st.Failed
		s.Skipped += st.Skipped
	}
	return s
}

// ServeHTTP writes the current snapshot as JSON.
func (t *Tracker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(t.Snapshot()); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
