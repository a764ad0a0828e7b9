// Package runtime wires a worker's long-running pieces — the super-step
// driver, the token-ring watchdog, the transport listener — into a
// single Group that starts them together and reports every failure.
package runtime

import (
	"context"
	"sync"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/xerrors"
)

// Service is one long-running piece of a worker process.
type Service interface {
	// Name returns the service name, used to attribute a reported error.
	Name() string
	// Run executes the service and blocks until ctx is cancelled or an
	// unrecoverable error occurs.
	Run(ctx context.Context) error
}

// Group is a set of Services that run concurrently for the lifetime of
// a worker process.
type Group []Service

// Run starts every Service in the group and blocks until ctx is
// cancelled or any Service returns an error, at which point it cancels
// the rest and waits for them to exit before returning the accumulated
// errors.
func (g Group) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	errCh := make(chan error, len(g))
	wg.Add(len(g))
	for _, s := range g {
		go func(s Service) {
			defer wg.Done()
			if err := s.Run(runCtx); err != nil {
				errCh <- xerrors.Errorf("%s: %w", s.Name(), err)
				cancel()
			}
		}(s)
	}

	<-runCtx.Done()
	wg.Wait()

	var err error
	close(errCh)
	for svcErr := range errCh {
		err = multierror.Append(err, svcErr)
	}
	return err
}
