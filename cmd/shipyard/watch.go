package main

import (
	"context"
	"fmt"

	"github.com/jvreagan/shipyard/pkg/logging"
	"github.com/jvreagan/shipyard/pkg/poller"
	"github.com/jvreagan/shipyard/pkg/types"
)

// watch follows deployment id until it stops building. It exits 0 when the
// deployment is READY, 1 when it failed or could not be loaded, and 130 when
// ctx is cancelled.
func (a *app) watch(ctx context.Context, id string) error {
	if !poller.ValidID(id) {
		return usageError("watch <deployment-id>")
	}

	updates := make(chan poller.Snapshot, 16)
	done := make(chan struct{})

	p := poller.New(a.client,
		poller.WithInterval(a.cfg.Poll.Interval),
		poller.WithLogger(logging.GetLogger()),
		poller.WithUpdateFunc(func(s poller.Snapshot) {
			select {
			case updates <- s:
			case <-done:
			}
		}),
	)
	defer func() {
		close(done)
		p.Detach()
		p.Wait()
	}()

	p.Attach(ctx, id)

	siteURL := ""
	for {
		select {
		case <-ctx.Done():
			fmt.Fprintln(a.stderr, "\nInterrupted")
			return &exitError{code: exitInterrupted}

		case s := <-updates:
			if ctx.Err() != nil {
				fmt.Fprintln(a.stderr, "\nInterrupted")
				return &exitError{code: exitInterrupted}
			}
			if s.Deployment != nil && s.Deployment.Status == types.StatusReady && siteURL == "" {
				siteURL = a.siteURLFor(ctx, s.Deployment)
			}
			a.printer.Update(s, siteURL)

			switch {
			case s.State == poller.Stopped:
				return a.finish(s.Deployment)
			case s.State == poller.Idle && !s.Loading && !s.Armed && s.Err != "":
				// The first fetch failed; nothing is scheduled to retry.
				return &exitError{code: 1}
			}
		}
	}
}

func (a *app) finish(d *types.Deployment) error {
	switch d.Status {
	case types.StatusReady:
		fmt.Fprintf(a.stdout, "✓ Deployment %s is live\n", d.ID)
		return nil
	case types.StatusFail:
		return &exitError{code: 1, err: fmt.Errorf("✗ Deployment %s failed", d.ID)}
	default:
		return &exitError{code: 1, err: fmt.Errorf("Deployment %s is %s and is not being built", d.ID, d.Status)}
	}
}
