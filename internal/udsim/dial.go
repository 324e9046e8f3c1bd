package udsim

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/openucx/ud/internal/ud"
)

// DialWithRetry establishes a connection to peerAddr, retrying the
// handshake with exponential backoff if it doesn't complete within a
// bounded window. It drives ifc.Progress() itself while waiting, so
// callers who haven't started an async dispatcher can still use it.
//
// Grounded on probing/default.go's DefaultListenFuncWithRetry: the
// same backoff.ExponentialBackOff construction and
// backoff.WithContext/backoff.Retry usage, applied to a handshake
// instead of a listener bind.
func DialWithRetry(ctx context.Context, ifc *ud.Iface, peerAddr ud.Address, pathIndex uint8, opts ...backoff.ExponentialBackOffOpts) (*ud.Endpoint, error) {
	boOpts := append([]backoff.ExponentialBackOffOpts{
		backoff.WithInitialInterval(10 * time.Millisecond),
		backoff.WithMultiplier(2.0),
		backoff.WithMaxInterval(1 * time.Second),
		backoff.WithMaxElapsedTime(30 * time.Second),
	}, opts...)

	var ep *ud.Endpoint
	attempt := func() error {
		var err error
		ep, err = ifc.CreateEndpoint(peerAddr, pathIndex)
		if err != nil {
			return err
		}

		deadline := time.Now().Add(2 * time.Second)
		for time.Now().Before(deadline) {
			ifc.Progress()
			switch ep.State() {
			case ud.StateConnected:
				return nil
			case ud.StateFailed:
				return fmt.Errorf("endpoint to %s failed during handshake", peerAddr)
			}
			time.Sleep(time.Millisecond)
		}
		return fmt.Errorf("timed out waiting for handshake with %s", peerAddr)
	}

	b := backoff.NewExponentialBackOff(boOpts...)
	if err := backoff.Retry(attempt, backoff.WithContext(b, ctx)); err != nil {
		return nil, err
	}
	return ep, nil
}
