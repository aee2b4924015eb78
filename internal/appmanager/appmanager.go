// Package appmanager implements the process-wide ApplicationManager
// singleton (spec §4.9, design note "Process-wide singletons"): it ties
// the Application Registry (C5), the Container/Runtime Factories
// (C6/C7), the Runtime State Machine (C8) and the Quick-Launch Pool
// (C9) together into the single entry point the RPC surface and CLI
// drive. Grounded on daemon/daemon.go's Daemon struct, which plays the
// same "owns every running instance, dispatches by id" role for driver
// pools.
package appmanager

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/appkit/amd/internal/amerr"
	"github.com/appkit/amd/internal/app"
	"github.com/appkit/amd/internal/container"
	"github.com/appkit/amd/internal/lifecycle"
	"github.com/appkit/amd/internal/quicklaunch"
	"github.com/appkit/amd/internal/registry"
	"github.com/appkit/amd/internal/runtimefactory"
	"github.com/sirupsen/logrus"
)

// Manager is the ApplicationManager singleton: a value owned by the
// Orchestrator and passed by handle, never by global state (spec §9).
type Manager struct {
	mu sync.Mutex

	reg        *registry.Registry
	containers *container.Factory
	runtimes   *runtimefactory.Factory
	pool       *quicklaunch.Pool

	containerSelection []container.SelectionRule

	runDir   string
	quitTime time.Duration

	machines map[string]*lifecycle.Machine
	bindings map[string]*binding

	log *logrus.Entry
}

// binding is what a running application's state machine is attached
// to: the live container and runtime pair, kept so StopApplication and
// the child-exit watcher can reach them by application id.
type binding struct {
	c  container.Container
	rt runtimefactory.Runtime
}

// New builds a Manager. runDir is the base directory new container
// instances are rooted under (one subdirectory per running
// application), matching runtime/storage.go's per-instance rootfs
// layout.
func New(reg *registry.Registry, containers *container.Factory, runtimes *runtimefactory.Factory, pool *quicklaunch.Pool, containerSelection []container.SelectionRule, runDir string, quitTime time.Duration, log *logrus.Entry) *Manager {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Manager{
		reg:                reg,
		containers:         containers,
		runtimes:           runtimes,
		pool:               pool,
		containerSelection: containerSelection,
		runDir:             runDir,
		quitTime:           quitTime,
		machines:           map[string]*lifecycle.Machine{},
		bindings:           map[string]*binding{},
		log:                log.WithField("component", "appmanager"),
	}
}

// ValidateRuntimeNames enforces invariant I1 at registry-open time: every
// Application's runtimeName must be a key of a registered runtime
// manager, or the entry is skipped with a logged reason. Returns the
// subset of apps that passed.
func ValidateRuntimeNames(apps []*app.Application, runtimes *runtimefactory.Factory, log *logrus.Entry) []*app.Application {
	kept := make([]*app.Application, 0, len(apps))
	for _, a := range apps {
		// Aliases carry no runtimeName of their own (they resolve
		// through NonAliased), so validate the base's instead of
		// rejecting every alias outright.
		name := a.RuntimeName
		if a.IsAlias() {
			name = a.NonAliased.RuntimeName
		}
		if _, ok := runtimes.Manager(name); !ok {
			log.WithField("application", a.ID).WithField("runtimeName", name).
				Warn("skipping application: runtimeName is not a registered runtime kind")
			continue
		}
		kept = append(kept, a)
	}
	return kept
}

func (m *Manager) machineFor(id string) *lifecycle.Machine {
	m.mu.Lock()
	defer m.mu.Unlock()
	mach, ok := m.machines[id]
	if !ok {
		mach = lifecycle.New(m.quitTime, m.log.WithField("application", id))
		m.machines[id] = mach
	}
	return mach
}

// ApplicationIDs returns every non-alias and alias id currently known to
// the registry.
func (m *Manager) ApplicationIDs() []string {
	apps := m.reg.All()
	ids := make([]string, len(apps))
	for i, a := range apps {
		ids[i] = a.ID
	}
	return ids
}

// Get resolves id, transparently following aliases (spec §4.2 lookup).
func (m *Manager) Get(id string) (*app.Application, bool) {
	return m.reg.Lookup(id)
}

// IsRunning reports whether id's runtime state machine is not Inactive.
// Wired to the Installer's Remove(force=false) guard (spec §4.6 step 5).
func (m *Manager) IsRunning(id string) bool {
	m.mu.Lock()
	mach, ok := m.machines[id]
	m.mu.Unlock()
	if !ok {
		return false
	}
	return mach.State() != lifecycle.Inactive
}

// StartApplication starts id (spec §4.4 Start transition). documentURL
// is accepted but not delivered: no openDocument request is made to the
// started runtime. argvBuilder
// lets callers (debug-application) prepend a wrapper to the spawned
// command line; pass nil for a plain start.
func (m *Manager) StartApplication(id, documentURL string, argvBuilder func(programPath string) []string) error {
	a, ok := m.Get(id)
	if !ok {
		return amerr.NotFound.New("application " + id)
	}

	mach := m.machineFor(id)

	containerKind := container.Select(m.containerSelection, id)
	if containerKind == "" {
		return amerr.System.New("no container kind matches application " + id)
	}
	runtimeKind := a.RuntimeName

	runtimeMgr, ok := m.runtimes.Manager(runtimeKind)
	if !ok {
		return amerr.NotFound.New(fmt.Sprintf("runtime kind %q", runtimeKind))
	}

	attach := false
	var c container.Container
	var rt runtimefactory.Runtime

	if !runtimeMgr.InProcess() {
		if pair, ok := m.pool.Take(containerKind, runtimeKind); ok {
			c, rt = pair.Container, pair.Runtime
			attach = true
		} else {
			var err error
			c, err = m.containers.Create(containerKind, id, filepath.Join(m.runDir, id))
			if err != nil {
				return err
			}
			rt, err = m.runtimes.Create(runtimeKind, c, false)
			if err != nil {
				return err
			}
		}
	} else {
		var err error
		rt, err = m.runtimes.Create(runtimeKind, nil, false)
		if err != nil {
			return err
		}
	}

	m.mu.Lock()
	m.bindings[id] = &binding{c: c, rt: rt}
	m.mu.Unlock()

	mach.OnFinished(func(ev lifecycle.Event) {
		m.mu.Lock()
		delete(m.bindings, id)
		m.mu.Unlock()
	})

	if attach {
		mach.Start(rt, true, 0, nil)
		return nil
	}

	var argv []string
	if c != nil {
		argv = []string{c.ProgramPath()}
		if argvBuilder != nil {
			argv = argvBuilder(c.ProgramPath())
		}
	} else {
		argv = []string{a.CodeDir}
		if argvBuilder != nil {
			argv = argvBuilder(a.CodeDir)
		}
	}

	spawn := func(rt runtimefactory.Runtime, onReady func(), onFail func()) error {
		if err := rt.Start(argv, os.Environ()); err != nil {
			onFail()
			return err
		}
		onReady()

		if rt.Container() != nil {
			go m.watchExit(id, mach, rt.Container())
		}
		return nil
	}

	mach.Start(rt, false, startupDeadline, spawn)
	return nil
}

const startupDeadline = 10 * time.Second

// watchExit blocks on the container's real OS process exit and feeds it
// into the runtime state machine's ChildExited transition, bridging the
// async OS event into the event loop per spec §5's "self-pipe" design
// note (translated here to a dedicated goroutine per running instance
// rather than a single self-pipe, since Go channels already give each
// goroutine its own notification path).
func (m *Manager) watchExit(id string, mach *lifecycle.Machine, c container.Container) {
	exitCode, err := c.Wait()
	if err != nil {
		exitCode = -1
	}
	mach.ChildExited(exitCode)
}

// DebugApplication starts id with wrapper prepended to argv (spec §6
// "debug-application <wrapper> <id> [doc-url]").
func (m *Manager) DebugApplication(wrapper, id, documentURL string) error {
	return m.StartApplication(id, documentURL, func(programPath string) []string {
		return append([]string{wrapper}, programPath)
	})
}

// StopApplication requests a graceful stop (spec §4.4 Stop transition).
func (m *Manager) StopApplication(id string) error {
	m.mu.Lock()
	mach, ok := m.machines[id]
	b, hasBinding := m.bindings[id]
	m.mu.Unlock()
	if !ok {
		return amerr.NotFound.New("application " + id + " is not running")
	}

	kill := func() {
		if hasBinding {
			_ = b.rt.Stop()
		}
	}
	mach.Stop(false, kill)
	return nil
}

// ForceKill immediately force-kills id, matching the CLI's and the
// crash-recovery path's need for an unconditional stop.
func (m *Manager) ForceKill(id string) error {
	m.mu.Lock()
	mach, ok := m.machines[id]
	b, hasBinding := m.bindings[id]
	m.mu.Unlock()
	if !ok {
		return amerr.NotFound.New("application " + id + " is not running")
	}
	kill := func() {
		if hasBinding {
			_ = b.rt.Stop()
		}
	}
	mach.Stop(true, kill)
	return nil
}

// State reports id's current runtime state, for the CLI's
// show-application and the test-facing status introspection.
func (m *Manager) State(id string) (lifecycle.State, bool) {
	m.mu.Lock()
	mach, ok := m.machines[id]
	m.mu.Unlock()
	if !ok {
		return lifecycle.Inactive, false
	}
	return mach.State(), true
}

// Describe renders a one-line human-readable summary of a.
func Describe(a *app.Application) string {
	kind := "app"
	if a.IsAlias() {
		kind = "alias"
	} else if a.IsBuiltIn {
		kind = "builtin"
	}
	installed := ""
	if a.IsInstalled() {
		installed = fmt.Sprintf(" @%s", a.InstallationReport.InstallationLocationID)
	}
	return fmt.Sprintf("%-32s %-8s runtime=%s%s", a.ID, kind, a.RuntimeName, installed)
}
