package optimization

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ducminhle1904/regime-optimizer/internal/errors"
)

// Trial is a running trial handed out by a Study
type Trial struct {
	Number int
	Params map[string]float64

	intermediate map[int]float64
	rungs        map[int]float64
	lastStep     int
	reported     bool
	started      time.Time
}

func newTrial(number int, params map[string]float64) *Trial {
	return &Trial{
		Number:       number,
		Params:       params,
		intermediate: make(map[int]float64),
		rungs:        make(map[int]float64),
		started:      time.Now(),
	}
}

// Last returns the most recent intermediate report
func (t *Trial) Last() (step int, value float64, ok bool) {
	if !t.reported {
		return 0, 0, false
	}
	return t.lastStep, t.intermediate[t.lastStep], true
}

// LocalStudy is the in-process Study. Finished trials are written through to
// its Storage, and a study created over a storage that already holds trials
// resumes after them.
type LocalStudy struct {
	name    string
	space   SearchSpace
	sampler Sampler
	pruner  Pruner
	storage Storage

	mu     sync.Mutex
	trials []FrozenTrial
	next   int
}

// StudyOptions wires the pluggable parts of a study; nil fields get defaults
type StudyOptions struct {
	Sampler Sampler
	Pruner  Pruner
	Storage Storage
}

// NewStudy creates or resumes the study called name
func NewStudy(ctx context.Context, name string, space SearchSpace, opts StudyOptions) (*LocalStudy, error) {
	if name == "" {
		return nil, errors.NewConfigError("optimization", "study", "study name is required")
	}
	s := &LocalStudy{
		name:    name,
		space:   space,
		sampler: opts.Sampler,
		pruner:  opts.Pruner,
		storage: opts.Storage,
	}
	if s.sampler == nil {
		s.sampler = NewTPESampler(DefaultTPEConfig())
	}
	if s.pruner == nil {
		s.pruner = NopPruner{}
	}
	if s.storage == nil {
		s.storage = NewMemoryStorage()
	}

	trials, err := s.storage.LoadTrials(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("load study %s: %w", name, err)
	}
	sort.Slice(trials, func(i, j int) bool { return trials[i].Number < trials[j].Number })
	s.trials = trials
	if n := len(trials); n > 0 {
		s.next = trials[n-1].Number + 1
	}
	return s, nil
}

// Name implements Study
func (s *LocalStudy) Name() string { return s.name }

// Space returns the searched dimensions
func (s *LocalStudy) Space() SearchSpace { return s.space }

// SuggestParams implements Study
func (s *LocalStudy) SuggestParams(ctx context.Context) (*Trial, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	params := s.sampler.Sample(s.space, s.trials, s.next)
	t := newTrial(s.next, params)
	s.next++
	return t, nil
}

// Report implements Study
func (s *LocalStudy) Report(t *Trial, step int, value float64) {
	t.intermediate[step] = value
	t.lastStep = step
	t.reported = true
}

// ShouldPrune implements Study
func (s *LocalStudy) ShouldPrune(t *Trial) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pruner.Prune(s.trials, t)
}

// ReportResult implements Study. The trial joins the history only once the
// storage accepted it.
func (s *LocalStudy) ReportResult(ctx context.Context, t *Trial, state TrialState, value float64) (FrozenTrial, error) {
	if !state.Finished() {
		return FrozenTrial{}, errors.NewConfigError("optimization", "state", "trial %d cannot finish as %q", t.Number, state)
	}
	ft := FrozenTrial{
		Number:       t.Number,
		State:        state,
		Value:        value,
		Params:       copyParams(t.Params),
		Intermediate: copyIntMap(t.intermediate),
		Rungs:        copyIntMap(t.rungs),
		Started:      t.started,
		Finished:     time.Now(),
	}

	if err := s.storage.SaveTrial(ctx, s.name, ft); err != nil {
		return FrozenTrial{}, fmt.Errorf("save trial %d of %s: %w", t.Number, s.name, err)
	}
	s.mu.Lock()
	s.trials = append(s.trials, ft)
	s.mu.Unlock()
	return ft, nil
}

// Trials implements Study
func (s *LocalStudy) Trials() []FrozenTrial {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]FrozenTrial(nil), s.trials...)
}

// Best implements Study: the highest complete trial, falling back to pruned
// trials when none completed; ties go to the earlier trial
func (s *LocalStudy) Best() (FrozenTrial, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, state := range []TrialState{TrialComplete, TrialPruned} {
		var best FrozenTrial
		found := false
		for _, t := range s.trials {
			if t.State != state {
				continue
			}
			if !found || t.Value > best.Value {
				best, found = t, true
			}
		}
		if found {
			return best, true
		}
	}
	return FrozenTrial{}, false
}

func copyParams(p map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

func copyIntMap(m map[int]float64) map[int]float64 {
	if len(m) == 0 {
		return nil
	}
	out := make(map[int]float64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
