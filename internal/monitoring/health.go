package monitoring

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

var startTime = time.Now()

// ProgressTracker exposes the state of the running search over HTTP
type ProgressTracker struct {
	mu        sync.RWMutex
	stage     string
	study     string
	trial     int
	total     int
	bestScore float64
	updatedAt time.Time
	errors    []string
}

// ProgressStatus is the JSON document served by ProgressTracker
type ProgressStatus struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Stage     string    `json:"stage,omitempty"`
	Study     string    `json:"study,omitempty"`
	Trial     int       `json:"trial"`
	Total     int       `json:"total"`
	BestScore float64   `json:"best_score"`
	UpdatedAt time.Time `json:"updated_at"`
	Uptime    string    `json:"uptime"`
	Errors    []string  `json:"errors,omitempty"`
}

func NewProgressTracker() *ProgressTracker {
	return &ProgressTracker{errors: make([]string, 0)}
}

// Update records the latest progress of a study
func (p *ProgressTracker) Update(stage, study string, trial, total int, best float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stage, p.study, p.trial, p.total, p.bestScore = stage, study, trial, total, best
	p.updatedAt = time.Now()
	UpdateBestScore(study, best)
}

// RecordError keeps the last few errors for the status page
func (p *ProgressTracker) RecordError(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.errors = append(p.errors, err.Error())
	if len(p.errors) > 10 {
		p.errors = p.errors[1:]
	}
}

// Status returns a copy of the current progress
func (p *ProgressTracker) Status() ProgressStatus {
	p.mu.RLock()
	defer p.mu.RUnlock()

	status := "running"
	switch {
	case len(p.errors) > 0:
		status = "degraded"
	case p.total > 0 && p.trial >= p.total:
		status = "done"
	case p.stage == "":
		status = "idle"
	}

	return ProgressStatus{
		Status:    status,
		Timestamp: time.Now(),
		Stage:     p.stage,
		Study:     p.study,
		Trial:     p.trial,
		Total:     p.total,
		BestScore: p.bestScore,
		UpdatedAt: p.updatedAt,
		Uptime:    time.Since(startTime).String(),
		Errors:    append([]string(nil), p.errors...),
	}
}

func (p *ProgressTracker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	status := p.Status()
	w.Header().Set("Content-Type", "application/json")
	if status.Status == "degraded" {
		w.WriteHeader(http.StatusInternalServerError)
	}
	json.NewEncoder(w).Encode(status)
}
