package snapshot

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"modelbridge/pkg/types"
)

func TestRefreshCoalescesConcurrentCallers(t *testing.T) {
	gw := &fakeGateway{
		version: types.VersionInfo{Version: "0.3.16"},
		block:   make(chan struct{}),
	}
	r := NewRefresher(NewBuilder(gw, zerolog.Nop()), time.Hour, zerolog.Nop())

	const callers = 8
	var wg sync.WaitGroup
	wg.Add(callers)
	for i := 0; i < callers; i++ {
		go func() {
			defer wg.Done()
			r.Refresh(context.Background())
		}()
	}
	// Let all callers reach the in-flight fetch, then release it.
	time.Sleep(50 * time.Millisecond)
	close(gw.block)
	wg.Wait()

	assert.Equal(t, int64(1), gw.calls.Load(), "concurrent refreshes must share one fetch")
	snap, ok := r.Last()
	require.True(t, ok)
	assert.True(t, snap.IsAvailable)
}

func TestOfflineNotifierFiresOncePerOfflinePeriod(t *testing.T) {
	gw := &fakeGateway{versionErr: errors.New("getVersion: connection refused")}
	r := NewRefresher(NewBuilder(gw, zerolog.Nop()), time.Hour, zerolog.Nop())

	var notified int
	r.SetOfflineNotifier(func(types.Snapshot) { notified++ })

	r.Refresh(context.Background())
	r.Refresh(context.Background())
	r.Refresh(context.Background())
	assert.Equal(t, 1, notified, "repeated offline snapshots must not re-notify")

	// Server comes back: notifier re-arms.
	gw.versionErr = nil
	r.Refresh(context.Background())
	assert.Equal(t, 1, notified)

	// Goes down again: one more notification.
	gw.versionErr = errors.New("getVersion: connection refused")
	r.Refresh(context.Background())
	assert.Equal(t, 2, notified)
}

func TestSubscribersSeeEveryCompletedSnapshot(t *testing.T) {
	gw := &fakeGateway{version: types.VersionInfo{Version: "0.3.16"}}
	r := NewRefresher(NewBuilder(gw, zerolog.Nop()), time.Hour, zerolog.Nop())

	var got []types.Snapshot
	r.Subscribe(func(s types.Snapshot) { got = append(got, s) })

	r.Refresh(context.Background())
	r.Refresh(context.Background())
	require.Len(t, got, 2)
	assert.True(t, got[1].IsAvailable)
}

func TestStartPollsAndStopHalts(t *testing.T) {
	gw := &fakeGateway{version: types.VersionInfo{Version: "0.3.16"}}
	r := NewRefresher(NewBuilder(gw, zerolog.Nop()), 10*time.Millisecond, zerolog.Nop())

	r.Start(context.Background())
	deadline := time.Now().Add(time.Second)
	for gw.calls.Load() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	require.GreaterOrEqual(t, gw.calls.Load(), int64(3), "expected periodic refreshes")
	r.Stop()

	settled := gw.calls.Load()
	time.Sleep(50 * time.Millisecond)
	// One refresh may have been in flight when Stop was called.
	assert.LessOrEqual(t, gw.calls.Load(), settled+1)
}
