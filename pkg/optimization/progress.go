package optimization

// Progress is a snapshot of a running search
type Progress struct {
	Stage     string
	Study     string
	Trial     int
	Total     int
	BestScore float64
	State     TrialState
}

// ProgressFunc receives progress snapshots on its own goroutine
type ProgressFunc func(Progress)

// progressReporter delivers the latest snapshot to a callback without ever
// blocking the publisher; intermediate snapshots may be dropped
type progressReporter struct {
	ch   chan Progress
	done chan struct{}
}

func newProgressReporter(fn ProgressFunc) *progressReporter {
	if fn == nil {
		return nil
	}
	p := &progressReporter{ch: make(chan Progress, 1), done: make(chan struct{})}
	go func() {
		defer close(p.done)
		for pr := range p.ch {
			fn(pr)
		}
	}()
	return p
}

func (p *progressReporter) publish(pr Progress) {
	if p == nil {
		return
	}
	for attempt := 0; attempt < 2; attempt++ {
		select {
		case p.ch <- pr:
			return
		default:
		}
		// replace the stale snapshot
		select {
		case <-p.ch:
		default:
		}
	}
}

// close flushes the last snapshot and waits for the callback to return
func (p *progressReporter) close() {
	if p == nil {
		return
	}
	close(p.ch)
	<-p.done
}
