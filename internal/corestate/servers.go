package corestate

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Server is anything with a cancellable run loop: the mobile API server
// (C9/C10/C11 combined), the LAN transfer server, and the LAN
// distribution server (C12) all satisfy this. Defined here rather than
// importing those packages directly so corestate has no dependency on
// its own callers — mirrors core_state.rs's handles being bare
// tokio::sync::Mutex<Option<T>> slots that main.rs populates.
type Server interface {
	Run(ctx context.Context) error
}

// ServerSlot holds one optional, replaceable running server plus its
// cancellation, guarded by its own mutex (spec: per-server handles,
// independent of the session RWMutex — starting or stopping a LAN server
// must not block a concurrent session read).
type ServerSlot struct {
	mu     sync.Mutex
	cancel context.CancelFunc
	group  *errgroup.Group
}

// Start launches srv under a fresh cancellation scope, stopping whatever
// was previously running in this slot first.
func (sl *ServerSlot) Start(parent context.Context, srv Server) {
	sl.mu.Lock()
	defer sl.mu.Unlock()

	sl.stopLocked()

	ctx, cancel := context.WithCancel(parent)
	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error { return srv.Run(gctx) })

	sl.cancel = cancel
	sl.group = group
}

// Stop cancels the running server, if any, and waits for it to exit.
func (sl *ServerSlot) Stop() error {
	sl.mu.Lock()
	defer sl.mu.Unlock()
	return sl.stopLocked()
}

func (sl *ServerSlot) stopLocked() error {
	if sl.cancel == nil {
		return nil
	}
	sl.cancel()
	err := sl.group.Wait()
	sl.cancel = nil
	sl.group = nil
	return err
}

// Running reports whether a server is currently active in this slot.
func (sl *ServerSlot) Running() bool {
	sl.mu.Lock()
	defer sl.mu.Unlock()
	return sl.cancel != nil
}
