// Package lifecycle implements the Runtime State Machine (C8): the
// start/stop/crash/quick-attach transitions for a single application
// runtime. Grounded on daemon/pool.go's channel-driven manager goroutine,
// adapted from a driver-instance pool to a single serialized
// per-application state machine (spec §4.4, design note "one command
// channel per Runtime").
package lifecycle

import (
	"sync"
	"time"

	"github.com/appkit/amd/internal/runtimefactory"
	"github.com/sirupsen/logrus"
)

// State is one of the four states in spec §4.4's transition table.
type State int

const (
	Inactive State = iota
	Startup
	Active
	Shutdown
)

func (s State) String() string {
	switch s {
	case Startup:
		return "Startup"
	case Active:
		return "Active"
	case Shutdown:
		return "Shutdown"
	default:
		return "Inactive"
	}
}

// ExitStatus classifies why a runtime stopped.
type ExitStatus int

const (
	NormalExit ExitStatus = iota
	Crash
)

// Event is delivered to observers registered via OnFinished whenever the
// machine returns to Inactive.
type Event struct {
	ExitCode int
	Status   ExitStatus
}

const defaultQuitTime = 250 * time.Millisecond

// Machine drives one application's runtime through the state graph in
// spec §4.4. All mutating calls are serialized internally: a Start()
// issued while Shutdown is in progress is queued and runs once Inactive
// is reached, matching the "Ordering guarantees" paragraph.
type Machine struct {
	mu    sync.Mutex
	state State

	quitTime time.Duration
	runtime  runtimefactory.Runtime

	pendingStart []func()
	observers    []func(Event)

	quitTimer *time.Timer
	log       *logrus.Entry
}

// New creates a machine in the Inactive state. quitTime is the grace
// period given to a runtime between "aboutToStop" and force-kill
// (spec §4.4 default 250ms).
func New(quitTime time.Duration, log *logrus.Entry) *Machine {
	if quitTime <= 0 {
		quitTime = defaultQuitTime
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Machine{state: Inactive, quitTime: quitTime, log: log}
}

func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// OnFinished registers an observer invoked every time the machine
// returns to Inactive, carrying the same information as the source's
// "finished" signal.
func (m *Machine) OnFinished(f func(Event)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observers = append(m.observers, f)
}

func (m *Machine) notify(ev Event) {
	for _, f := range m.observers {
		f(ev)
	}
}

// spawn is supplied by the caller: it must actually start rt and report
// childStarted/appInterfaceConnected/deadline/spawnError by calling the
// returned callbacks, exactly like the teacher's manageDrivers goroutine
// drives pool state from async spawn results.
type spawn func(rt runtimefactory.Runtime, onReady func(), onFail func()) error

// Start transitions Inactive -> Startup -> Active for rt, or, if attach
// is true, performs the quick-launch attach shortcut Inactive -> Active
// directly (spec §4.4: "Quick-launch attach ... skips Startup").
// deadline bounds how long Startup may take before it is treated as a
// spawn failure.
func (m *Machine) Start(rt runtimefactory.Runtime, attach bool, deadline time.Duration, doSpawn spawn) {
	m.mu.Lock()

	if m.state == Shutdown {
		// Queue: run once Inactive is reached.
		m.pendingStart = append(m.pendingStart, func() { m.Start(rt, attach, deadline, doSpawn) })
		m.mu.Unlock()
		return
	}

	if m.state != Inactive {
		m.mu.Unlock()
		return
	}

	m.runtime = rt

	if attach {
		m.state = Active
		m.mu.Unlock()
		return
	}

	m.state = Startup
	m.mu.Unlock()

	var once sync.Once
	deadlineTimer := time.AfterFunc(deadline, func() {
		once.Do(func() { m.startupFailed() })
	})

	onReady := func() {
		deadlineTimer.Stop()
		once.Do(func() { m.startupSucceeded() })
	}
	onFail := func() {
		deadlineTimer.Stop()
		once.Do(func() { m.startupFailed() })
	}

	if err := doSpawn(rt, onReady, onFail); err != nil {
		once.Do(func() { m.startupFailed() })
	}
}

func (m *Machine) startupSucceeded() {
	m.mu.Lock()
	if m.state != Startup {
		m.mu.Unlock()
		return
	}
	m.state = Active
	m.mu.Unlock()
}

func (m *Machine) startupFailed() {
	m.mu.Lock()
	if m.state != Startup {
		m.mu.Unlock()
		return
	}
	m.state = Inactive
	m.mu.Unlock()
	m.notify(Event{ExitCode: -1, Status: Crash})
	m.drainPending()
}

// Stop requests a shutdown. forceKill=false from Active arms the quit
// timer and waits for the observed child exit; forceKill=true
// force-kills immediately from Startup or Active (spec §4.4, plus the
// boundary case "stop(force=true) on Startup -> direct transition to
// Inactive with Crash status"). Stop does nothing on Inactive or while
// Shutdown is already in progress.
func (m *Machine) Stop(forceKill bool, kill func()) {
	m.mu.Lock()

	switch m.state {
	case Inactive:
		m.mu.Unlock()
		return // no-op
	case Startup:
		if forceKill {
			m.state = Inactive
			m.mu.Unlock()
			kill()
			m.notify(Event{ExitCode: -1, Status: Crash})
			m.drainPending()
			return
		}
		// A graceful stop during Startup is ignored: there is no
		// "Startup -> Shutdown" edge, and the request is not queued
		// for when the runtime reaches Active.
		m.mu.Unlock()
		return
	case Active:
		if forceKill {
			m.state = Inactive
			m.mu.Unlock()
			kill()
			m.notify(Event{ExitCode: 0, Status: NormalExit})
			m.drainPending()
			return
		}
		m.state = Shutdown
		m.quitTimer = time.AfterFunc(m.quitTime, func() {
			kill()
		})
		m.mu.Unlock()
		return
	case Shutdown:
		m.mu.Unlock()
		return
	}
}

// ChildExited reports that the OS process (or in-process context)
// backing this runtime has exited with exitCode. Per spec §4.4: a non-zero exit while Active is Crash; an
// exit observed during Shutdown is always NormalExit regardless of
// exit code.
func (m *Machine) ChildExited(exitCode int) {
	m.mu.Lock()
	state := m.state
	if m.quitTimer != nil {
		m.quitTimer.Stop()
		m.quitTimer = nil
	}

	var status ExitStatus
	switch state {
	case Shutdown:
		status = NormalExit
	case Active:
		if exitCode != 0 {
			status = Crash
		} else {
			status = NormalExit
		}
	default:
		m.mu.Unlock()
		return
	}

	m.state = Inactive
	m.runtime = nil
	m.mu.Unlock()

	m.notify(Event{ExitCode: exitCode, Status: status})
	m.drainPending()
}

func (m *Machine) drainPending() {
	m.mu.Lock()
	pending := m.pendingStart
	m.pendingStart = nil
	m.mu.Unlock()

	for _, p := range pending {
		p()
	}
}
