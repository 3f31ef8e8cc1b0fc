package indicators

import (
	"fmt"

	"github.com/ducminhle1904/regime-optimizer/pkg/types"
)

type streamed struct {
	id      string
	kind    Kind
	outputs []string
	step    stepFunc
	row     []float64
}

// Stream produces snapshots one bar at a time. Each indicator keeps only its
// rolling state, and Frame replays the same steppers, so a pushed snapshot
// equals Frame.Snapshot for the same index.
type Stream struct {
	indicators []streamed
	n          int
}

// NewStream validates defs and returns an empty stream
func NewStream(defs []Definition) (*Stream, error) {
	if err := ValidateDefinitions(defs); err != nil {
		return nil, err
	}
	s := &Stream{indicators: make([]streamed, len(defs))}
	for i, d := range defs {
		c := &calculators[d.Type]
		s.indicators[i] = streamed{
			id:      d.ID,
			kind:    d.Type,
			outputs: c.outputs,
			step:    c.stepper(d.Type.resolve(d.Params)),
			row:     make([]float64, len(c.outputs)),
		}
	}
	return s, nil
}

// Push advances every indicator by one bar and returns the snapshot for it
func (s *Stream) Push(bar types.OHLCV) (Snapshot, error) {
	snap := make(Snapshot, len(s.indicators)+1)
	snap[PriceID] = priceReading(bar)
	for i := range s.indicators {
		ind := &s.indicators[i]
		ind.step(bar, ind.row)
		raw := make(map[string]float64, len(ind.row))
		for k, name := range ind.outputs {
			raw[name] = ind.row[k]
		}
		r, err := NormalizeReading(ind.kind, raw)
		if err != nil {
			return nil, fmt.Errorf("computing %s: %w", ind.id, err)
		}
		snap[ind.id] = r
	}
	s.n++
	return snap, nil
}

// Len returns the number of bars pushed so far
func (s *Stream) Len() int { return s.n }
