// Package validation checks selected signals on bars the search never saw
package validation

import (
	"time"

	"github.com/ducminhle1904/regime-optimizer/internal/backtest"
)

// Config enables holdout validation of Stage-2 selections. A zero
// HoldoutRatio disables it.
type Config struct {
	// HoldoutRatio is the trailing share of bars kept out of the search
	HoldoutRatio float64 `yaml:"holdout_ratio" json:"holdout_ratio" validate:"gte=0,lt=1"`
	// MinTestBars is the smallest holdout that is evaluated
	MinTestBars int `yaml:"min_test_bars" json:"min_test_bars" default:"50" validate:"gte=1"`
}

// Enabled reports whether a holdout is configured
func (c Config) Enabled() bool { return c.HoldoutRatio > 0 }

// Split divides a series at Index: bars before it are searched, bars from
// it on are held out
type Split struct {
	Index      int
	TrainStart time.Time
	TrainEnd   time.Time
	TestStart  time.Time
	TestEnd    time.Time
}

// TrainBars is the number of searched bars
func (s Split) TrainBars() int { return s.Index }

// Leg is one side's selected entry and optional exit
type Leg struct {
	Entry backtest.SignalConfig
	Exit  *backtest.SignalConfig
}

// Overfitting risk levels
const (
	RiskLow          = "LOW"
	RiskModerate     = "MODERATE"
	RiskHigh         = "HIGH"
	RiskInsufficient = "INSUFFICIENT"
)

// Summary compares in-sample and holdout performance of one regime's
// selections
type Summary struct {
	RegimeID  string           `json:"regime_id"`
	Split     Split            `json:"split"`
	TestBars  int              `json:"test_bars"`
	Train     backtest.Metrics `json:"train"`
	Test      backtest.Metrics `json:"test"`
	// ReturnDegradation is the relative drop of the average trade return,
	// in percent; negative when the holdout did better
	ReturnDegradation float64 `json:"return_degradation"`
	IsRobust          bool    `json:"is_robust"`
	OverfittingRisk   string  `json:"overfitting_risk"`
}
