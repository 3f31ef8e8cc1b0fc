package optimization

import (
	"context"
	"time"
)

// Package optimization provides the parameter search machinery: a Study
// driven by a TPE sampler and a Hyperband pruner, and the two search stages
// built on top of it.

// TrialState is the lifecycle state of a trial
type TrialState string

const (
	TrialRunning  TrialState = "running"
	TrialComplete TrialState = "complete"
	TrialPruned   TrialState = "pruned"
	TrialFailed   TrialState = "failed"
)

// Finished reports whether the state is terminal
func (s TrialState) Finished() bool {
	return s == TrialComplete || s == TrialPruned || s == TrialFailed
}

// FrozenTrial is the immutable record of a finished trial
type FrozenTrial struct {
	Number int                `json:"number"`
	State  TrialState         `json:"state"`
	Value  float64            `json:"value"`
	Params map[string]float64 `json:"params"`
	// Intermediate holds the values reported per resource step
	Intermediate map[int]float64 `json:"intermediate,omitempty"`
	// Rungs holds the values recorded by the pruner per rung
	Rungs    map[int]float64 `json:"rungs,omitempty"`
	Started  time.Time       `json:"started"`
	Finished time.Time       `json:"finished"`
}

// Study is a stateful search over one SearchSpace. Trials of one study are
// evaluated sequentially: every suggestion depends on the finished history.
type Study interface {
	Name() string
	// SuggestParams starts a new trial with sampled parameters
	SuggestParams(ctx context.Context) (*Trial, error)
	// Report records an intermediate objective value at a resource step
	Report(t *Trial, step int, value float64)
	// ShouldPrune asks the pruner whether the trial should stop at its last reported step
	ShouldPrune(t *Trial) bool
	// ReportResult finishes the trial and persists it
	ReportResult(ctx context.Context, t *Trial, state TrialState, value float64) (FrozenTrial, error)
	Trials() []FrozenTrial
	Best() (FrozenTrial, bool)
}

// Sampler proposes parameters from the finished history
type Sampler interface {
	Sample(space SearchSpace, history []FrozenTrial, number int) map[string]float64
}

// Pruner decides whether a running trial should stop early
type Pruner interface {
	Prune(history []FrozenTrial, t *Trial) bool
}

// Storage persists finished trials so that a study can be resumed or audited
type Storage interface {
	LoadTrials(ctx context.Context, study string) ([]FrozenTrial, error)
	SaveTrial(ctx context.Context, study string, t FrozenTrial) error
	DeleteStudy(ctx context.Context, study string) error
}
