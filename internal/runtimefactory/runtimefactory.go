// Package runtimefactory implements the Runtime Factory (C7): a
// registry of runtime kinds (in-process, native child) that produce
// Runtime objects bound to containers. Grounded on daemon/driver.go's
// DriverInstance/NewDriverInstance, generalized from bblfsh driver
// processes to application runtimes.
package runtimefactory

import (
	"crypto/rand"
	"fmt"
	"os"
	"sync"

	"github.com/appkit/amd/internal/amerr"
	"github.com/appkit/amd/internal/container"
	"github.com/oklog/ulid"
)

// Runtime is a live execution of an application (spec §3 GLOSSARY): an
// OS process bound to a Container, or an in-process evaluation context.
type Runtime interface {
	ID() string
	Kind() string
	PID() int
	IsQuickLauncher() bool
	Container() container.Container
	Start(argv, env []string) error
	// Stop force-kills the runtime. For an in-process runtime this
	// drops the root evaluation context and reports a synthetic crash,
	// per spec §4.4.
	Stop() error
	Wait() (exitCode int, crashed bool)
}

// Manager creates Runtime instances of one kind.
type Manager interface {
	Kind() string
	// InProcess reports whether this kind runs inside the host's own
	// event loop rather than as a container-bound child (spec §4.3).
	InProcess() bool
	// SupportsQuickLaunch reports whether this kind may be pre-warmed
	// by the Quick-Launch Pool (only non-in-process kinds qualify,
	// spec §4.5).
	SupportsQuickLaunch() bool
	Create(c container.Container, quickLauncher bool) (Runtime, error)
}

// Factory is the registry of runtime kinds.
type Factory struct {
	mu       sync.RWMutex
	managers map[string]Manager
	order    []string
}

func NewFactory() *Factory {
	return &Factory{managers: map[string]Manager{}}
}

func (f *Factory) Register(m Manager) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.managers[m.Kind()]; !exists {
		f.order = append(f.order, m.Kind())
	}
	f.managers[m.Kind()] = m
}

func (f *Factory) Kinds() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]string, len(f.order))
	copy(out, f.order)
	return out
}

func (f *Factory) Manager(kind string) (Manager, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	m, ok := f.managers[kind]
	return m, ok
}

// Create instantiates a new runtime of kind, bound to c (nil for
// in-process kinds). quickLauncher marks the runtime as a not-yet-bound
// quick-launcher (spec §3's isQuickLauncher flag).
func (f *Factory) Create(kind string, c container.Container, quickLauncher bool) (Runtime, error) {
	m, ok := f.Manager(kind)
	if !ok {
		return nil, amerr.NotFound.New(fmt.Sprintf("runtime kind %q", kind))
	}
	return m.Create(c, quickLauncher)
}

func newID() string {
	return ulid.MustNew(ulid.Now(), rand.Reader).String()
}

// --- native: a process running as a child of a Container ---

type nativeManager struct{}

// NewNativeManager returns the built-in "native" runtime manager: it
// runs the application as a child process of a Container, grounded on
// daemon/driver.go's DriverInstance wrapping a runtime.Container.
func NewNativeManager() Manager { return &nativeManager{} }

func (m *nativeManager) Kind() string             { return "native" }
func (m *nativeManager) InProcess() bool          { return false }
func (m *nativeManager) SupportsQuickLaunch() bool { return true }

func (m *nativeManager) Create(c container.Container, quickLauncher bool) (Runtime, error) {
	if c == nil {
		return nil, amerr.System.New("native runtime requires a container")
	}
	return &nativeRuntime{id: newID(), c: c, quickLauncher: quickLauncher}, nil
}

type nativeRuntime struct {
	id            string
	c             container.Container
	quickLauncher bool
	pid           int
}

func (r *nativeRuntime) ID() string               { return r.id }
func (r *nativeRuntime) Kind() string             { return "native" }
func (r *nativeRuntime) PID() int                 { return r.pid }
func (r *nativeRuntime) IsQuickLauncher() bool    { return r.quickLauncher }
func (r *nativeRuntime) Container() container.Container { return r.c }

func (r *nativeRuntime) Start(argv, env []string) error {
	return r.c.Start(argv, env)
}

func (r *nativeRuntime) Stop() error {
	return r.c.Stop()
}

func (r *nativeRuntime) Wait() (int, bool) {
	// The container's process exit is observed by appmanager's
	// watchExit, which feeds the lifecycle state machine; Wait here
	// reports the last known container status.
	if r.c.Status() == container.StatusStopped {
		return 0, false
	}
	return -1, true
}

// --- qml-inprocess: runs the application in the host's own event loop ---

type qmlInProcessManager struct{}

// NewQMLInProcessManager returns the built-in "qml-inprocess" runtime
// manager: the "process" is a freshly created evaluation context,
// modeled here by running/crashed flags standing in for the QML
// engine's root context (spec §4.4); no goroutine or engine is started.
func NewQMLInProcessManager() Manager { return &qmlInProcessManager{} }

func (m *qmlInProcessManager) Kind() string             { return "qml-inprocess" }
func (m *qmlInProcessManager) InProcess() bool          { return true }
func (m *qmlInProcessManager) SupportsQuickLaunch() bool { return false }

func (m *qmlInProcessManager) Create(c container.Container, quickLauncher bool) (Runtime, error) {
	return &qmlInProcessRuntime{id: newID()}, nil
}

type qmlInProcessRuntime struct {
	id      string
	running bool
	crashed bool
}

func (r *qmlInProcessRuntime) ID() string               { return r.id }
func (r *qmlInProcessRuntime) Kind() string             { return "qml-inprocess" }
func (r *qmlInProcessRuntime) PID() int                 { return os.Getpid() }
func (r *qmlInProcessRuntime) IsQuickLauncher() bool    { return false }
func (r *qmlInProcessRuntime) Container() container.Container { return nil }

func (r *qmlInProcessRuntime) Start(argv, env []string) error {
	r.running = true
	return nil
}

// Stop drops the root evaluation context and reports a synthetic crash
// status, per spec §4.4: "'force kill' means dropping the root context
// and reporting a synthetic crash status."
func (r *qmlInProcessRuntime) Stop() error {
	r.running = false
	r.crashed = true
	return nil
}

func (r *qmlInProcessRuntime) Wait() (int, bool) {
	if r.crashed {
		return -1, true
	}
	return 0, false
}
