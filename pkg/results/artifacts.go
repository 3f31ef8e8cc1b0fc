package results

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ducminhle1904/regime-optimizer/internal/backtest"
	"github.com/ducminhle1904/regime-optimizer/internal/indicators"
	"github.com/ducminhle1904/regime-optimizer/internal/monitoring"
	"github.com/ducminhle1904/regime-optimizer/internal/regime"
	"github.com/ducminhle1904/regime-optimizer/pkg/types"
)

// Meta describes the run that produced an artifact
type Meta struct {
	RunID             string          `json:"run_id,omitempty"`
	Stage             string          `json:"stage" validate:"required,oneof=regime signal"`
	Study             string          `json:"study,omitempty"`
	Exchange          string          `json:"exchange,omitempty"`
	Symbol            string          `json:"symbol,omitempty"`
	Interval          string          `json:"interval,omitempty"`
	DataStart         time.Time       `json:"data_start"`
	DataEnd           time.Time       `json:"data_end"`
	Bars              int             `json:"bars" validate:"gte=0"`
	ExportedAt        time.Time       `json:"exported_at"`
	OptimizationScore float64         `json:"optimization_score"`
	SelectedRank      int             `json:"selected_rank,omitempty" validate:"gte=0"`
	TradingStyle      string          `json:"trading_style,omitempty"`
	Description       string          `json:"description,omitempty"`
	RegimeSummary     *regime.Summary `json:"regime_summary,omitempty"`
}

// Stages of Meta
const (
	StageRegime = "regime"
	StageSignal = "signal"
)

// WithBars fills the data range fields from bars
func (m Meta) WithBars(bars []types.OHLCV) Meta {
	m.Bars = len(bars)
	if len(bars) > 0 {
		m.DataStart = bars[0].Timestamp
		m.DataEnd = bars[len(bars)-1].Timestamp
	}
	return m
}

// OptimizationResultsArtifact is the full trial history of a search
type OptimizationResultsArtifact struct {
	SchemaVersion      string                      `json:"schema_version" validate:"required,eq=2.0"`
	Meta               Meta                        `json:"meta"`
	OptimizationConfig map[string]interface{}      `json:"optimization_config"`
	ParamRanges        map[string]indicators.Range `json:"param_ranges" validate:"required"`
	Results            []RankedResult              `json:"results" validate:"dive"`
}

// Validate checks struct rules and the ranking invariants
func (a *OptimizationResultsArtifact) Validate() error {
	if err := validateStruct(a); err != nil {
		return err
	}
	for key, r := range a.ParamRanges {
		if err := r.Validate(); err != nil {
			return schemaError("$.param_ranges."+key, "range", "%v", err)
		}
	}
	selected := 0
	for i, r := range a.Results {
		path := fmt.Sprintf("$.results[%d]", i)
		if r.Rank != i+1 {
			return schemaError(path+".rank", "sequence", "rank %d at position %d", r.Rank, i+1)
		}
		if i > 0 && r.Score > a.Results[i-1].Score {
			return schemaError(path+".score", "order", "score %v above previous %v", r.Score, a.Results[i-1].Score)
		}
		if r.Selected {
			selected++
		}
	}
	if selected > 1 {
		return schemaError("$.results", "single_selection", "%d results are selected", selected)
	}
	return nil
}

// RegimeArtifact is the applied configuration of a selected Stage-1 trial
type RegimeArtifact struct {
	SchemaVersion string                  `json:"schema_version" validate:"required,eq=2.0"`
	Meta          Meta                    `json:"meta"`
	Params        map[string]float64      `json:"params"`
	Indicators    []indicators.Definition `json:"indicators" validate:"required,min=1"`
	Regimes       []regime.Definition     `json:"regimes" validate:"required,min=1"`
	RegimePeriods []regime.Period         `json:"regime_periods" validate:"dive"`
}

// Config returns the regime configuration held by the artifact
func (a *RegimeArtifact) Config() regime.Config {
	return regime.Config{Indicators: a.Indicators, Regimes: a.Regimes}.Clone()
}

// Validate checks struct rules, the configuration and period continuity
func (a *RegimeArtifact) Validate() error {
	if err := validateStruct(a); err != nil {
		return err
	}
	if err := a.Config().Validate(); err != nil {
		return configViolation("$.regimes", err)
	}
	known := map[string]bool{regime.Unknown: true}
	for _, id := range a.Config().RegimeIDs() {
		known[id] = true
	}
	return validatePeriods(a.RegimePeriods, known)
}

func validatePeriods(periods []regime.Period, known map[string]bool) error {
	for i, p := range periods {
		path := fmt.Sprintf("$.regime_periods[%d]", i)
		if known != nil && !known[p.RegimeID] {
			return schemaError(path+".regime_id", "known_regime", "unknown regime %q", p.RegimeID)
		}
		if i > 0 && p.StartIdx != periods[i-1].EndIdx+1 {
			return schemaError(path+".start_idx", "contiguous", "period starts at %d, previous ended at %d",
				p.StartIdx, periods[i-1].EndIdx)
		}
	}
	return nil
}

// SignalSelection is the chosen signal for one side and purpose
type SignalSelection struct {
	Side    types.Side             `json:"side" validate:"required,oneof=long short"`
	Purpose types.Purpose          `json:"purpose" validate:"required,oneof=entry exit"`
	Signal  backtest.SignalConfig  `json:"signal"`
	Score   float64                `json:"score"`
	Rank    int                    `json:"rank" validate:"gte=1"`
	Study   string                 `json:"study,omitempty"`
	Metrics map[string]interface{} `json:"metrics"`
}

// IndicatorID is the id under which the selection's indicator is exported
func (s SignalSelection) IndicatorID() string {
	return fmt.Sprintf("%s_%s_%s", s.Signal.IndicatorType, s.Side, s.Purpose)
}

// IndicatorSetArtifact holds the selected Stage-2 signals of one regime
type IndicatorSetArtifact struct {
	SchemaVersion string                  `json:"schema_version" validate:"required,eq=2.0"`
	Meta          Meta                    `json:"meta"`
	RegimeID      string                  `json:"regime_id" validate:"required"`
	Indicators    []indicators.Definition `json:"indicators" validate:"required,min=1"`
	Signals       []SignalSelection       `json:"signals" validate:"required,min=1,dive"`
	RegimePeriods []regime.Period         `json:"regime_periods" validate:"dive"`
}

// Validate checks struct rules, every signal and side/purpose uniqueness
func (a *IndicatorSetArtifact) Validate() error {
	if err := validateStruct(a); err != nil {
		return err
	}
	if err := indicators.ValidateDefinitions(a.Indicators); err != nil {
		return configViolation("$.indicators", err)
	}
	seen := make(map[string]bool, len(a.Signals))
	for i, s := range a.Signals {
		path := fmt.Sprintf("$.signals[%d]", i)
		if err := s.Signal.Validate(); err != nil {
			return configViolation(path+".signal", err)
		}
		if s.Signal.Side != s.Side || s.Signal.Purpose != s.Purpose {
			return schemaError(path+".signal", "consistent", "signal is %s/%s but listed as %s/%s",
				s.Signal.Side, s.Signal.Purpose, s.Side, s.Purpose)
		}
		key := string(s.Side) + "/" + string(s.Purpose)
		if seen[key] {
			return schemaError(path, "unique", "duplicate selection for %s", key)
		}
		seen[key] = true
	}
	return validatePeriods(a.RegimePeriods, nil)
}

// ExportOptimizationResults writes the ranked trial history
func (m *Manager) ExportOptimizationResults(path string, meta Meta, searchConfig interface{}, paramRanges map[string]indicators.Range) (*OptimizationResultsArtifact, error) {
	doc, err := toDocument(searchConfig)
	if err != nil {
		return nil, err
	}
	if paramRanges == nil {
		paramRanges = map[string]indicators.Range{}
	}
	a := &OptimizationResultsArtifact{
		SchemaVersion:      SchemaVersion,
		Meta:               meta,
		OptimizationConfig: doc,
		ParamRanges:        paramRanges,
		Results:            m.RankResults(),
	}
	if err := WriteArtifact(path, a); err != nil {
		return nil, err
	}
	return a, nil
}

// ExportSelectedRegime binds the selected parameters into template, classifies
// bars with the result and writes the applied configuration with its periods
func (m *Manager) ExportSelectedRegime(path string, meta Meta, template regime.Config, bars []types.OHLCV) (*RegimeArtifact, error) {
	sel, ok := m.Selected()
	if !ok {
		return nil, ErrNoSelection
	}
	cfg, err := template.Bind(sel.Params)
	if err != nil {
		return nil, err
	}
	res, err := regime.Classify(cfg, bars, regime.Options{})
	if err != nil {
		return nil, err
	}

	summary := regime.Summarize(res.Labels)
	meta = meta.WithBars(bars)
	meta.Stage = StageRegime
	meta.OptimizationScore = sel.Score
	meta.SelectedRank = sel.Rank
	meta.RegimeSummary = &summary

	a := &RegimeArtifact{
		SchemaVersion: SchemaVersion,
		Meta:          meta,
		Params:        sel.Params,
		Indicators:    cfg.Indicators,
		Regimes:       cfg.Regimes,
		RegimePeriods: res.PeriodsCopy(),
	}
	if err := WriteArtifact(path, a); err != nil {
		return nil, err
	}
	m.MarkExported()
	return a, nil
}

// ExportIndicatorSet writes the selected signals of one regime. The
// optimization score is the mean score of the selections.
func ExportIndicatorSet(path string, meta Meta, regimeID string, selections []SignalSelection, periods []regime.Period) (*IndicatorSetArtifact, error) {
	a := &IndicatorSetArtifact{
		SchemaVersion: SchemaVersion,
		Meta:          meta,
		RegimeID:      regimeID,
		Signals:       selections,
		RegimePeriods: periods,
	}
	a.Meta.Stage = StageSignal
	total := 0.0
	for _, s := range selections {
		def, _, err := s.Signal.Build(s.IndicatorID())
		if err != nil {
			return nil, configViolation("$.signals", err)
		}
		a.Indicators = append(a.Indicators, def)
		total += s.Score
	}
	if len(selections) > 0 {
		a.Meta.OptimizationScore = total / float64(len(selections))
	}
	if err := WriteArtifact(path, a); err != nil {
		return nil, err
	}
	return a, nil
}

// artifact is implemented by every exported document
type artifact interface {
	Validate() error
}

// WriteArtifact stamps the export time, validates a and writes it through a
// temporary file so readers never observe a partial document
func WriteArtifact(path string, a artifact) error {
	switch v := a.(type) {
	case *OptimizationResultsArtifact:
		v.Meta.ExportedAt = time.Now().UTC()
	case *RegimeArtifact:
		v.Meta.ExportedAt = time.Now().UTC()
	case *IndicatorSetArtifact:
		v.Meta.ExportedAt = time.Now().UTC()
	}
	if err := a.Validate(); err != nil {
		return err
	}

	data, err := json.MarshalIndent(a, "", "  ")
	if err != nil {
		return fmt.Errorf("encode artifact: %w", err)
	}
	if err := writeFileAtomic(path, data); err != nil {
		return err
	}
	monitoring.RecordArtifact(kindOf(a))
	return nil
}

func kindOf(a artifact) string {
	switch a.(type) {
	case *OptimizationResultsArtifact:
		return "optimization_results"
	case *RegimeArtifact:
		return "regime"
	case *IndicatorSetArtifact:
		return "indicator_set"
	}
	return "unknown"
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), 0644); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func load(path string, a artifact) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := decodeStrict(data, a); err != nil {
		return err
	}
	return a.Validate()
}

// LoadOptimizationResults reads and validates a trial history artifact
func LoadOptimizationResults(path string) (*OptimizationResultsArtifact, error) {
	a := &OptimizationResultsArtifact{}
	if err := load(path, a); err != nil {
		return nil, err
	}
	return a, nil
}

// LoadRegimeArtifact reads and validates an applied regime configuration
func LoadRegimeArtifact(path string) (*RegimeArtifact, error) {
	a := &RegimeArtifact{}
	if err := load(path, a); err != nil {
		return nil, err
	}
	return a, nil
}

// LoadIndicatorSetArtifact reads and validates a selected signal set
func LoadIndicatorSetArtifact(path string) (*IndicatorSetArtifact, error) {
	a := &IndicatorSetArtifact{}
	if err := load(path, a); err != nil {
		return nil, err
	}
	return a, nil
}

// ManagerFromArtifact rebuilds a manager from a loaded history, restoring the
// selection and export flags
func ManagerFromArtifact(a *OptimizationResultsArtifact) (*Manager, error) {
	m := NewManager()
	for _, r := range a.Results {
		m.AddTrial(Trial{
			TrialNumber: r.TrialNumber,
			Params:      r.Params,
			Score:       r.Score,
			Metrics:     r.Metrics,
			State:       r.State,
			Timestamp:   r.Timestamp,
		})
	}
	for _, r := range a.Results {
		if r.Selected {
			if _, err := m.SelectResult(r.Rank); err != nil {
				return nil, fmt.Errorf("restoring selection of trial %d: %w", r.TrialNumber, err)
			}
		}
		if r.Exported {
			m.mu.Lock()
			m.exported[r.Rank-1] = true
			m.mu.Unlock()
		}
	}
	return m, nil
}
