// Package quicklaunch implements the Quick-Launch Pool (C9): a warm
// pool of pre-created (container, runtime) pairs per (containerKind,
// runtimeKind), governed by an idle-load controller. Grounded wholesale
// on daemon/pool.go's channel-based manager goroutine and atomic
// counters, adapted from an auto-scaling driver pool to a capped warm
// pool that rebuilds at most one pair per tick (spec §4.5).
package quicklaunch

import (
	"fmt"
	"sync"
	"time"

	"github.com/appkit/amd/internal/container"
	"github.com/appkit/amd/internal/runtimefactory"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

const (
	minMax     = 0
	maxMax     = 10
	rebuildTick = 1000 * time.Millisecond
)

// Pair is a warm (container, runtime) pair awaiting attach.
type Pair struct {
	Container container.Container
	Runtime   runtimefactory.Runtime
}

// entryKey identifies one (containerKind, runtimeKind) cross.
type entryKey struct {
	containerKind string
	runtimeKind   string
}

// Builder produces one new warm pair for an entry, or an error if any
// step fails — matching spec §4.5: "instantiating the container, then
// asking the runtime factory for a 'quick-launcher' runtime variant,
// starting it ... if any step fails the pair is discarded".
type Builder func(containerKind, runtimeKind string) (*Pair, error)

// LoadFunc reports the host's current load average, used to gate
// rebuilds when idleLoad > 0 (spec §4.5).
type LoadFunc func() float64

type entry struct {
	key     entryKey
	maximum int
	mu      sync.Mutex
	warm    []*Pair
}

// Pool maintains one entry per (containerKind, runtimeKind) cross that
// supports quick-launch.
type Pool struct {
	log     *logrus.Entry
	build   Builder
	load    LoadFunc
	idle    float64

	mu      sync.Mutex
	entries map[entryKey]*entry

	wake chan struct{}
	stop chan struct{}
	once sync.Once

	gauge *prometheus.GaugeVec
}

// clampMax clamps runtimesPerContainer into [0,10], per spec §4.5 and
// the boundary case "runtimesPerContainer set to 11 -> clamped to 10".
func clampMax(n int) int {
	if n < minMax {
		return minMax
	}
	if n > maxMax {
		return maxMax
	}
	return n
}

// New builds the pool by crossing every container kind with every
// runtime kind whose manager reports SupportsQuickLaunch (spec §4.5).
// Container kinds are not filtered: every kind passed in gets entries.
func New(containerKinds []string, runtimeKinds []runtimefactory.Manager, runtimesPerContainer int, idleLoad float64, build Builder, load LoadFunc, log *logrus.Entry) *Pool {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	if load == nil {
		load = func() float64 { return 0 }
	}

	p := &Pool{
		log:     log.WithField("component", "quicklaunch"),
		build:   build,
		load:    load,
		idle:    idleLoad,
		entries: map[entryKey]*entry{},
		wake:    make(chan struct{}, 1),
		stop:    make(chan struct{}),
		gauge: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "amd_quicklaunch_warm_pairs",
			Help: "Number of warm quick-launch pairs per (containerKind,runtimeKind).",
		}, []string{"container_kind", "runtime_kind"}),
	}

	max := clampMax(runtimesPerContainer)
	for _, ck := range containerKinds {
		for _, rm := range runtimeKinds {
			if !rm.SupportsQuickLaunch() {
				continue
			}
			key := entryKey{containerKind: ck, runtimeKind: rm.Kind()}
			p.entries[key] = &entry{key: key, maximum: max}
		}
	}

	return p
}

// Collector exposes the pool's warm-pair gauge to a prometheus registry.
func (p *Pool) Collector() prometheus.Collector { return p.gauge }

// Run starts the background rebuild loop. It blocks until Stop is
// called, so callers should invoke it in its own goroutine, exactly
// like daemon/pool.go's manageDrivers.
func (p *Pool) Run() {
	p.rebuildTick()

	for {
		select {
		case <-p.stop:
			return
		case <-p.wake:
			p.rebuildTick()
		}
	}
}

// Stop terminates the rebuild loop.
func (p *Pool) Stop() {
	p.once.Do(func() { close(p.stop) })
}

func (p *Pool) wakeUp() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// rebuildTick performs at most one new pair across all under-filled
// entries, then, if work remains, schedules another tick after 1000ms
// (spec §4.5: "at most one new pair per rebuild tick ... schedules the
// next tick after 1000 ms").
func (p *Pool) rebuildTick() {
	if p.idle > 0 && p.load() >= p.idle {
		time.AfterFunc(rebuildTick, p.wakeUp)
		return
	}

	p.mu.Lock()
	var chosen *entry
	for _, e := range p.entries {
		e.mu.Lock()
		underfilled := len(e.warm) < e.maximum
		e.mu.Unlock()
		if underfilled {
			chosen = e
			break
		}
	}
	p.mu.Unlock()

	if chosen == nil {
		return
	}

	pair, err := p.build(chosen.key.containerKind, chosen.key.runtimeKind)
	if err != nil {
		p.log.WithError(err).WithField("container_kind", chosen.key.containerKind).
			WithField("runtime_kind", chosen.key.runtimeKind).Warn("discarding failed quick-launch pair")
	} else {
		chosen.mu.Lock()
		chosen.warm = append(chosen.warm, pair)
		n := len(chosen.warm)
		chosen.mu.Unlock()
		p.gauge.WithLabelValues(chosen.key.containerKind, chosen.key.runtimeKind).Set(float64(n))
	}

	if p.todoRemains() {
		time.AfterFunc(rebuildTick, p.wakeUp)
	}
}

func (p *Pool) todoRemains() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, e := range p.entries {
		e.mu.Lock()
		under := len(e.warm) < e.maximum
		e.mu.Unlock()
		if under {
			return true
		}
	}
	return false
}

// Take looks for a warm pair matching containerKind and runtimeKind.
// Per spec §4.5 it searches in two passes: an exact match, then a
// (containerKind, "") match for an as-yet-unspecialized runtime. A hit
// removes the pair from the pool and triggers a new rebuild tick.
func (p *Pool) Take(containerKind, runtimeKind string) (*Pair, bool) {
	if pair, ok := p.takeExact(entryKey{containerKind, runtimeKind}); ok {
		p.wakeUp()
		return pair, true
	}
	if pair, ok := p.takeExact(entryKey{containerKind, ""}); ok {
		p.wakeUp()
		return pair, true
	}
	return nil, false
}

func (p *Pool) takeExact(key entryKey) (*Pair, bool) {
	p.mu.Lock()
	e, ok := p.entries[key]
	p.mu.Unlock()
	if !ok {
		return nil, false
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.warm) == 0 {
		return nil, false
	}
	pair := e.warm[0]
	e.warm = e.warm[1:]
	p.gauge.WithLabelValues(key.containerKind, key.runtimeKind).Set(float64(len(e.warm)))
	return pair, true
}

// WarmCount reports how many warm pairs currently sit in the
// (containerKind, runtimeKind) entry, for tests.
func (p *Pool) WarmCount(containerKind, runtimeKind string) int {
	p.mu.Lock()
	e, ok := p.entries[entryKey{containerKind, runtimeKind}]
	p.mu.Unlock()
	if !ok {
		return 0
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.warm)
}

func (k entryKey) String() string {
	return fmt.Sprintf("%s/%s", k.containerKind, k.runtimeKind)
}
