package lifecycle

import (
	"testing"
	"time"

	"github.com/appkit/amd/internal/runtimefactory"
	"github.com/stretchr/testify/require"
)

func TestStartToActive(t *testing.T) {
	m := New(50*time.Millisecond, nil)
	require.Equal(t, Inactive, m.State())

	done := make(chan struct{})
	var events []Event
	m.OnFinished(func(e Event) { events = append(events, e) })

	m.Start(nil, false, time.Second, func(rt runtimefactory.Runtime, onReady func(), onFail func()) error {
		onReady()
		close(done)
		return nil
	})

	<-done
	require.Equal(t, Active, m.State())
	require.Empty(t, events)
}

func TestQuickLaunchAttachSkipsStartup(t *testing.T) {
	m := New(50*time.Millisecond, nil)
	m.Start(nil, true, time.Second, nil)
	require.Equal(t, Active, m.State())
}

func TestDeadlineFailsToInactiveWithCrash(t *testing.T) {
	m := New(10*time.Millisecond, nil)

	var got Event
	done := make(chan struct{})
	m.OnFinished(func(e Event) { got = e; close(done) })

	m.Start(nil, false, 5*time.Millisecond, func(rt runtimefactory.Runtime, onReady func(), onFail func()) error {
		return nil // never calls onReady/onFail: deadline must fire
	})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("deadline never fired")
	}

	require.Equal(t, Inactive, m.State())
	require.Equal(t, Crash, got.Status)
}

func TestStopNoopOnInactive(t *testing.T) {
	m := New(10*time.Millisecond, nil)
	called := false
	m.Stop(false, func() { called = true })
	require.False(t, called)
	require.Equal(t, Inactive, m.State())
}

func TestForceStopOnActive(t *testing.T) {
	m := New(10*time.Millisecond, nil)
	m.Start(nil, true, time.Second, nil) // attach -> Active
	require.Equal(t, Active, m.State())

	var got Event
	m.OnFinished(func(e Event) { got = e })

	killed := false
	m.Stop(true, func() { killed = true })

	require.True(t, killed)
	require.Equal(t, Inactive, m.State())
	require.Equal(t, NormalExit, got.Status)
}

func TestGracefulStopArmsQuitTimerThenChildExited(t *testing.T) {
	m := New(20*time.Millisecond, nil)
	m.Start(nil, true, time.Second, nil)
	require.Equal(t, Active, m.State())

	var got Event
	done := make(chan struct{})
	m.OnFinished(func(e Event) { got = e; close(done) })

	m.Stop(false, func() {})
	require.Equal(t, Shutdown, m.State())

	m.ChildExited(17) // non-zero exit during Shutdown must still be NormalExit

	<-done
	require.Equal(t, NormalExit, got.Status)
	require.Equal(t, Inactive, m.State())
}

func TestCrashDuringActiveReportsCrash(t *testing.T) {
	m := New(20*time.Millisecond, nil)
	m.Start(nil, true, time.Second, nil)

	var got Event
	m.OnFinished(func(e Event) { got = e })

	m.ChildExited(139) // SIGSEGV-style exit code while Active
	require.Equal(t, Crash, got.Status)
	require.Equal(t, Inactive, m.State())
}

func TestStartQueuedDuringShutdownRunsAfterInactive(t *testing.T) {
	m := New(20*time.Millisecond, nil)
	m.Start(nil, true, time.Second, nil) // -> Active
	m.Stop(false, func() {})             // -> Shutdown

	started := make(chan struct{})
	m.Start(nil, true, time.Second, nil) // queued: state is Shutdown

	go func() {
		m.ChildExited(0) // drains pending start, which attaches -> Active
		close(started)
	}()

	<-started
	require.Equal(t, Active, m.State())
}
