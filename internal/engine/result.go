package engine

import "github.com/platformbuilds/logcorrelate/internal/models"

// Result is one item delivered on Correlate's output channel: either a
// successfully produced correlation, or a terminal error that ends the
// call (spec §7: "the correlate sequence ends with the error;
// already-emitted correlations are valid"). Exactly one field is set.
type Result struct {
	Correlation *models.CorrelatedEvent
	Err         error
}

// errOnce captures the first terminal error reported by any of a query's
// pump goroutines, discarding the rest: once one stream has failed the
// call is ending, and only the first failure is informative.
type errOnce struct {
	ch chan error
}

func newErrOnce() *errOnce {
	return &errOnce{ch: make(chan error, 1)}
}

func (e *errOnce) set(err error) {
	if err == nil {
		return
	}
	select {
	case e.ch <- err:
	default:
	}
}

// get returns the captured error, or nil if none was reported.
func (e *errOnce) get() error {
	select {
	case err := <-e.ch:
		return err
	default:
		return nil
	}
}
