package lights

import (
	"context"
	"time"
)

// Transport is a communication channel through which lights are discovered
// and controlled. All values crossing this interface are in canonical units.
type Transport interface {
	Source() Source
	// Initialize establishes listening or session state. It fails with
	// ErrUnavailable when the transport cannot serve any light.
	Initialize(ctx context.Context) error
	// Discover requeries every visible light; it never returns a stale cache.
	Discover(ctx context.Context) ([]Light, error)
	// Control applies a sparse change following the fetch-merge-send order.
	Control(ctx context.Context, id string, change PartialControl) error
	// Shutdown releases sockets and timers. It is idempotent.
	Shutdown() error
}

// SceneTransport is implemented by transports that can run scenes stored in
// the user's account.
type SceneTransport interface {
	Scenes(ctx context.Context) ([]Scene, error)
	ActivateScene(ctx context.Context, uuid string, duration time.Duration) ([]ControlResult, error)
}

// raceTimeout runs op and returns ErrTimeout if it has not finished within d.
// op may still be running when raceTimeout returns.
func raceTimeout(ctx context.Context, d time.Duration, op func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- op(ctx)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		if ctx.Err() == context.DeadlineExceeded {
			return ErrTimeout
		}
		return ctx.Err()
	}
}
