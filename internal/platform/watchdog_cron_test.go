//go:build !tinygo

package platform

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestCronWatchdog_RejectsSubSecondPeriod(t *testing.T) {
	w := NewCronWatchdog(zaptest.NewLogger(t))
	require.Error(t, w.Arm(500*time.Millisecond, func() {}))
}

func TestCronWatchdog_WakeThenReset(t *testing.T) {
	w := NewCronWatchdog(zaptest.NewLogger(t))
	defer w.Stop()

	var wakes, resets atomic.Int32
	w.OnReset(func() { resets.Add(1) })
	require.NoError(t, w.Arm(time.Second, func() { wakes.Add(1) }))

	// The first expiry wakes and clears the interrupt; nobody re-enables
	// it, so the next one resets.
	require.Eventually(t, func() bool { return resets.Load() > 0 }, 5*time.Second, 20*time.Millisecond)
	require.Equal(t, int32(1), wakes.Load())
	require.GreaterOrEqual(t, w.Resets(), 1)
}

func TestCronWatchdog_RearmedWakesKeepComing(t *testing.T) {
	w := NewCronWatchdog(zaptest.NewLogger(t))
	defer w.Stop()

	var resets atomic.Int32
	w.OnReset(func() { resets.Add(1) })
	woke := make(chan struct{}, 4)
	require.NoError(t, w.Arm(time.Second, func() { woke <- struct{}{} }))

	for i := 0; i < 2; i++ {
		select {
		case <-woke:
			w.Feed()
			require.NoError(t, w.EnableWakeIRQ())
		case <-time.After(5 * time.Second):
			t.Fatalf("wake %d never arrived", i)
		}
	}
	require.Zero(t, resets.Load())
}
