package quicklaunch

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/appkit/amd/internal/container"
	"github.com/appkit/amd/internal/runtimefactory"
	"github.com/stretchr/testify/require"
)

type fakeRuntimeManager struct {
	kind     string
	quickOK  bool
	inproc   bool
}

func (m *fakeRuntimeManager) Kind() string             { return m.kind }
func (m *fakeRuntimeManager) InProcess() bool          { return m.inproc }
func (m *fakeRuntimeManager) SupportsQuickLaunch() bool { return m.quickOK }
func (m *fakeRuntimeManager) Create(c container.Container, quickLauncher bool) (runtimefactory.Runtime, error) {
	return nil, nil
}

func TestClampMax(t *testing.T) {
	require.Equal(t, 10, clampMax(11))
	require.Equal(t, 0, clampMax(-1))
	require.Equal(t, 2, clampMax(2))
}

func TestTakeExactMatchTriggersRebuild(t *testing.T) {
	var builds int32
	build := func(containerKind, runtimeKind string) (*Pair, error) {
		atomic.AddInt32(&builds, 1)
		return &Pair{}, nil
	}

	native := &fakeRuntimeManager{kind: "native", quickOK: true}
	p := New([]string{"process"}, []runtimefactory.Manager{native}, 2, 0, build, nil, nil)

	go p.Run()
	defer p.Stop()

	// One pair per rebuild tick, ticks 1000ms apart: the second pair
	// arrives about one second after Run starts.
	require.Eventually(t, func() bool {
		return p.WarmCount("process", "native") == 2
	}, 3*time.Second, 5*time.Millisecond)

	pair, ok := p.Take("process", "native")
	require.True(t, ok)
	require.NotNil(t, pair)
	require.Equal(t, 1, p.WarmCount("process", "native"))

	require.Eventually(t, func() bool {
		return p.WarmCount("process", "native") == 2
	}, time.Second, 5*time.Millisecond)
}

func TestTakeMissReturnsFalse(t *testing.T) {
	build := func(containerKind, runtimeKind string) (*Pair, error) { return &Pair{}, nil }
	p := New(nil, nil, 2, 0, build, nil, nil)

	_, ok := p.Take("process", "native")
	require.False(t, ok)
}

func TestInProcessRuntimesExcluded(t *testing.T) {
	build := func(containerKind, runtimeKind string) (*Pair, error) { return &Pair{}, nil }
	inproc := &fakeRuntimeManager{kind: "qml-inprocess", quickOK: false, inproc: true}

	p := New([]string{"process"}, []runtimefactory.Manager{inproc}, 2, 0, build, nil, nil)
	require.Empty(t, p.entries)
}

func TestIdleLoadGatesRebuild(t *testing.T) {
	var builds int32
	build := func(containerKind, runtimeKind string) (*Pair, error) {
		atomic.AddInt32(&builds, 1)
		return &Pair{}, nil
	}
	native := &fakeRuntimeManager{kind: "native", quickOK: true}

	highLoad := func() float64 { return 5.0 }
	p := New([]string{"process"}, []runtimefactory.Manager{native}, 2, 0.5, build, highLoad, nil)

	go p.Run()
	defer p.Stop()

	time.Sleep(50 * time.Millisecond)
	require.Equal(t, int32(0), atomic.LoadInt32(&builds))
}
