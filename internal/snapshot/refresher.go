package snapshot

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"modelbridge/pkg/types"
)

// DefaultInterval is the background refresh cadence.
const DefaultInterval = 15 * time.Second

// Refresher owns the periodic snapshot fetch for one service lifetime. It is
// an explicitly started task, not tied to any UI lifetime: callers start it
// when the deployment entitles anyone to local models and stop it on
// shutdown. Overlapping refreshes are coalesced so concurrent callers share
// a single in-flight fetch, bounding load on the local server. Whichever
// fetch completes last wins; there is no cancellation of in-flight probes,
// results of a stopped refresher are simply discarded.
type Refresher struct {
	builder  *Builder
	interval time.Duration
	log      zerolog.Logger

	group singleflight.Group

	mu        sync.RWMutex
	last      *types.Snapshot
	subs      []func(types.Snapshot)
	onOffline func(types.Snapshot)
	// armed while the last delivered snapshot reported available; guards the
	// one-notification-per-offline-period behavior.
	offlineNotified bool

	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewRefresher returns a Refresher polling at interval (DefaultInterval when
// non-positive).
func NewRefresher(b *Builder, interval time.Duration, log zerolog.Logger) *Refresher {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Refresher{
		builder:  b,
		interval: interval,
		log:      log,
		stopCh:   make(chan struct{}),
	}
}

// Subscribe registers fn to receive every completed snapshot. Must be called
// before Start.
func (r *Refresher) Subscribe(fn func(types.Snapshot)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subs = append(r.subs, fn)
}

// SetOfflineNotifier registers fn to fire once per offline period: when a
// snapshot first reports unavailable, and not again until a later snapshot
// reports available. Must be called before Start.
func (r *Refresher) SetOfflineNotifier(fn func(types.Snapshot)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onOffline = fn
}

// Start launches the polling loop: an immediate fetch, then one per
// interval, until Stop or ctx cancellation.
func (r *Refresher) Start(ctx context.Context) {
	go func() {
		r.Refresh(ctx)
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				r.Refresh(ctx)
			case <-r.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop halts the polling loop. In-flight fetches run to completion and their
// results are still recorded; they are cheap and idempotent to abandon.
func (r *Refresher) Stop() {
	r.stopOnce.Do(func() { close(r.stopCh) })
}

// Refresh fetches a snapshot now, reusing any fetch already in flight, and
// delivers the result to subscribers. Mutation callers use this to
// resynchronize after load/unload instead of trusting the mutation's own
// response.
func (r *Refresher) Refresh(ctx context.Context) types.Snapshot {
	v, _, _ := r.group.Do("snapshot", func() (any, error) {
		snap := r.builder.Build(ctx)
		r.deliver(snap)
		return snap, nil
	})
	return v.(types.Snapshot)
}

// Last returns the most recently completed snapshot, if any.
func (r *Refresher) Last() (types.Snapshot, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.last == nil {
		return types.Snapshot{}, false
	}
	return *r.last, true
}

func (r *Refresher) deliver(snap types.Snapshot) {
	r.mu.Lock()
	s := snap
	r.last = &s
	subs := append(([]func(types.Snapshot))(nil), r.subs...)
	var notify func(types.Snapshot)
	if snap.IsAvailable {
		r.offlineNotified = false
	} else if !r.offlineNotified {
		r.offlineNotified = true
		notify = r.onOffline
	}
	r.mu.Unlock()

	for _, fn := range subs {
		fn(snap)
	}
	if notify != nil {
		r.log.Warn().Strs("errors", snap.Errors).Msg("local model server went offline")
		notify(snap)
	}
}
