package transport

import (
	"context"
	"sync"

	"github.com/hashicorp/go-multierror"
)

// inFlight tracks asynchronously dispatched fire-and-forget requests so
// a later call can block until every one of them has completed and
// collect any errors they returned (spec.md §6's waitAllRequests
// barrier).
type inFlight struct {
	wg  sync.WaitGroup
	mu  sync.Mutex
	err error
}

// dispatch runs fn in its own goroutine, recording any error it returns
// against the next wait call.
func (f *inFlight) dispatch(fn func() error) {
	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		if err := fn(); err != nil {
			f.mu.Lock()
			f.err = multierror.Append(f.err, err)
			f.mu.Unlock()
		}
	}()
}

// wait blocks until every dispatched request has completed, or ctx is
// done, whichever comes first. It returns and clears the accumulated
// error.
func (f *inFlight) wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		f.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	err := f.err
	f.err = nil
	return err
}
