package results

import (
	stderrors "errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// ErrInvalidRank is returned when a rank outside 1..N is selected
var ErrInvalidRank = stderrors.New("invalid rank")

// ErrNoSelection is returned when exporting before SelectResult
var ErrNoSelection = stderrors.New("no result selected")

// Trial is one evaluated parameter set. Trials are appended and never mutated.
type Trial struct {
	TrialNumber int                    `json:"trial_number" validate:"gte=0"`
	Params      map[string]float64     `json:"params" validate:"required"`
	Score       float64                `json:"score"`
	Metrics     map[string]interface{} `json:"metrics"`
	State       string                 `json:"state" validate:"omitempty,oneof=complete pruned failed"`
	Timestamp   time.Time              `json:"timestamp"`
}

// RankedResult is a ranked view of a trial
type RankedResult struct {
	Rank        int                    `json:"rank" validate:"gte=1"`
	TrialNumber int                    `json:"trial_number" validate:"gte=0"`
	Score       float64                `json:"score"`
	Selected    bool                   `json:"selected"`
	Exported    bool                   `json:"exported"`
	State       string                 `json:"state,omitempty" validate:"omitempty,oneof=complete pruned failed"`
	Params      map[string]float64     `json:"params" validate:"required"`
	Metrics     map[string]interface{} `json:"metrics"`
	Timestamp   time.Time              `json:"timestamp"`
}

// Manager accumulates the trials of a search and tracks the selection.
// It is safe for concurrent use.
type Manager struct {
	mu       sync.RWMutex
	trials   []Trial
	selected int
	exported map[int]bool
	next     int
}

// NewManager creates an empty manager
func NewManager() *Manager {
	return &Manager{selected: -1, exported: make(map[int]bool)}
}

// AddResult appends a trial numbered after every trial seen so far
func (m *Manager) AddResult(score float64, params map[string]float64, metrics map[string]interface{}) Trial {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := Trial{
		TrialNumber: m.next,
		Params:      copyParams(params),
		Score:       score,
		Metrics:     metrics,
		State:       "complete",
		Timestamp:   time.Now().UTC(),
	}
	m.append(t)
	return t
}

// AddTrial appends a fully built trial
func (m *Manager) AddTrial(t Trial) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t.Params = copyParams(t.Params)
	m.append(t)
}

func (m *Manager) append(t Trial) {
	m.trials = append(m.trials, t)
	if t.TrialNumber >= m.next {
		m.next = t.TrialNumber + 1
	}
}

// Len returns the number of trials
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.trials)
}

// Trials returns a copy of the trials in insertion order
func (m *Manager) Trials() []Trial {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Trial(nil), m.trials...)
}

// order returns trial indexes sorted by score descending, trial number ascending
func (m *Manager) order() []int {
	idx := make([]int, len(m.trials))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		ta, tb := m.trials[idx[a]], m.trials[idx[b]]
		if ta.Score != tb.Score {
			return ta.Score > tb.Score
		}
		return ta.TrialNumber < tb.TrialNumber
	})
	return idx
}

func (m *Manager) ranked(i, rank int) RankedResult {
	t := m.trials[i]
	return RankedResult{
		Rank:        rank,
		TrialNumber: t.TrialNumber,
		Score:       t.Score,
		Selected:    i == m.selected,
		Exported:    m.exported[i],
		State:       t.State,
		Params:      copyParams(t.Params),
		Metrics:     t.Metrics,
		Timestamp:   t.Timestamp,
	}
}

// RankResults ranks every trial, 1 being the best. Trials are not modified.
func (m *Manager) RankResults() []RankedResult {
	m.mu.RLock()
	defer m.mu.RUnlock()
	order := m.order()
	out := make([]RankedResult, len(order))
	for r, i := range order {
		out[r] = m.ranked(i, r+1)
	}
	return out
}

// SelectResult marks the trial at rank as the only selected one
func (m *Manager) SelectResult(rank int) (RankedResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rank < 1 || rank > len(m.trials) {
		return RankedResult{}, fmt.Errorf("%w: %d not in [1, %d]", ErrInvalidRank, rank, len(m.trials))
	}
	i := m.order()[rank-1]
	m.selected = i
	return m.ranked(i, rank), nil
}

// Selected returns the current selection with its rank
func (m *Manager) Selected() (RankedResult, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.selected < 0 {
		return RankedResult{}, false
	}
	for r, i := range m.order() {
		if i == m.selected {
			return m.ranked(i, r+1), true
		}
	}
	return RankedResult{}, false
}

// MarkExported flags the current selection as exported
func (m *Manager) MarkExported() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.selected >= 0 {
		m.exported[m.selected] = true
	}
}

// Clear discards every trial and the selection
func (m *Manager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trials = nil
	m.selected = -1
	m.exported = make(map[int]bool)
	m.next = 0
}

func copyParams(p map[string]float64) map[string]float64 {
	if p == nil {
		return map[string]float64{}
	}
	out := make(map[string]float64, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}
