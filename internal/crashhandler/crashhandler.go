// Package crashhandler implements the Signal & Crash Handler (C1):
// async-signal-safe-as-possible handlers for the fatal signals, an
// optional gdb-attach window, and controlled termination. Grounded on
// the original implementation's crashhandler.cpp (initBacktrace,
// crashHandler, waitForGdbAttach), translated to Go's signal.Notify
// model since Go cannot install raw sigaction handlers or sigsuspend.
package crashhandler

import (
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"sync"
	"syscall"
	"time"
)

// Config mirrors the {printBacktrace, waitForGdbAttach, dumpCore}
// mapping read from configuration before the first fault (spec §4.1).
type Config struct {
	PrintBacktrace  bool
	WaitForGdbAttach time.Duration
	DumpCore        bool
}

// Handler holds the crash configuration plus the title and pid shown in
// the banner. The banner is formatted with fmt when a fatal signal
// arrives and the backtrace comes from debug.Stack, so the crash path
// allocates. Go does not need a demangle buffer (compiled names are
// already legible), but the banner format itself is preserved.
type Handler struct {
	cfg   Config
	title string
	pid   int

	mu        sync.Mutex
	installed bool
	sigCh     chan os.Signal
	alarmCh   chan os.Signal
}

// New builds a handler for the process titled title (normally the
// application id or binary name).
func New(title string, cfg Config) *Handler {
	return &Handler{cfg: cfg, title: title, pid: os.Getpid()}
}

// banner renders the fixed-format crash line from spec §4.1: "*** process
// <title> (<pid>) crashed *** > why: <reason>".
func banner(title string, pid int, sig os.Signal) string {
	return fmt.Sprintf("*** process %s (%d) crashed ***\n\n > why: %s\n", title, pid, sig)
}

// fatalSignals is the exact set from spec §4.1: SIGFPE, SIGSEGV, SIGILL,
// SIGBUS, SIGPIPE, SIGABRT.
var fatalSignals = []os.Signal{
	syscall.SIGFPE, syscall.SIGSEGV, syscall.SIGILL,
	syscall.SIGBUS, syscall.SIGPIPE, syscall.SIGABRT,
}

// Install registers the handler goroutine. It mirrors initBacktrace()'s
// role: from this point on, any of the fatal signals triggers
// crashHandler() instead of the default action.
func (h *Handler) Install() {
	h.mu.Lock()
	if h.installed {
		h.mu.Unlock()
		return
	}
	h.sigCh = make(chan os.Signal, 1)
	h.alarmCh = make(chan os.Signal, 1)
	h.installed = true
	h.mu.Unlock()

	signal.Notify(h.sigCh, fatalSignals...)
	signal.Notify(h.alarmCh, syscall.SIGALRM)

	go func() {
		sig := <-h.sigCh
		h.crash(sig)
	}()
}

// crash reproduces crashHandler()'s sequence: reset the signal to
// default (so a second fault aborts immediately), print the banner,
// optionally print a backtrace, optionally wait for a debugger, then
// either dump core or exit(-1).
func (h *Handler) crash(sig os.Signal) {
	signal.Reset(sig.(syscall.Signal))

	fmt.Fprint(os.Stderr, banner(h.title, h.pid, sig))

	if h.cfg.PrintBacktrace {
		fmt.Fprintln(os.Stderr, " > backtrace:")
		os.Stderr.Write(debug.Stack())
	}

	if h.cfg.WaitForGdbAttach > 0 {
		fmt.Fprintf(os.Stderr, " > waiting for debugger: gdb -p %d\n", h.pid)
		h.waitForGdbAttach()
	}

	if h.cfg.DumpCore {
		// Re-raise so the OS produces a core file, matching the
		// source's "reset to default + abort()" path.
		signal.Reset(sig.(syscall.Signal))
		_ = syscall.Kill(h.pid, sig.(syscall.Signal))
		select {} // the re-raised signal terminates us; never reached
	}

	os.Exit(-1)
}

// waitForGdbAttach stands in for the source's sigsuspend/SIGALRM dance:
// Go cannot sigsuspend, so it blocks on a channel fed by a SIGALRM
// handler armed via time.AfterFunc, with the same wake-on-SIGALRM
// semantics (spec §4.1's supplement in SPEC_FULL.md §4.1).
func (h *Handler) waitForGdbAttach() {
	timer := time.AfterFunc(h.cfg.WaitForGdbAttach, func() {
		_ = syscall.Kill(h.pid, syscall.SIGALRM)
	})
	defer timer.Stop()

	select {
	case <-h.alarmCh:
	case <-time.After(h.cfg.WaitForGdbAttach + time.Second):
	}
}
