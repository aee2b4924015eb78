// Package container implements the Container Factory (C6): a registry
// of container kinds, and the built-in "process" kind that wraps an OS
// child process inside a libcontainer sandbox. Grounded on
// runtime/runtime.go and runtime/container.go's libcontainer-based
// factory.
package container

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/appkit/amd/internal/amerr"
	"github.com/opencontainers/runc/libcontainer"
	"github.com/opencontainers/runc/libcontainer/configs"
)

// Status mirrors the Status enum the teacher's daemon/protocol package
// declares for driver instances, generalized to any container.
type Status int

const (
	StatusCreated Status = iota
	StatusRunning
	StatusStopped
)

// Container is the spec's transient Container entity: program path,
// base directory, current cgroup name, and a reference to the started
// process once Start succeeds.
type Container interface {
	ID() string
	ProgramPath() string
	BaseDir() string
	CgroupName() string
	Start(argv []string, env []string) error
	Signal(sig os.Signal) error
	// Stop force-kills the container's process. Rootless containers
	// (like the teacher's) cannot rely on SIGTERM being honored, so
	// Stop always sends SIGKILL, matching runtime/container.go's Stop.
	Stop() error
	Status() Status
	// Wait blocks until the container's process exits and reports its
	// exit code, feeding appmanager's watchExit, which drives the
	// Runtime State Machine's ChildExited transition.
	Wait() (exitCode int, err error)
}

// Manager creates containers of one kind.
type Manager interface {
	Kind() string
	Create(id, baseDir string) (Container, error)
}

// Factory is the registry of container kinds (spec §4.3): "Each factory
// maintains a mapping from kind (string) to a manager; managers are
// registered once at orchestrator startup in a fixed order."
type Factory struct {
	mu       sync.RWMutex
	managers map[string]Manager
	order    []string
}

func NewFactory() *Factory {
	return &Factory{managers: map[string]Manager{}}
}

// Register adds a manager under its own Kind(). Registration order is
// preserved so callers can enumerate managers deterministically, which
// the Quick-Launch Pool needs when crossing container x runtime kinds
// at init.
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

// Create instantiates a new container of the given kind.
func (f *Factory) Create(kind, id, baseDir string) (Container, error) {
	f.mu.RLock()
	m, ok := f.managers[kind]
	f.mu.RUnlock()
	if !ok {
		return nil, amerr.NotFound.New(fmt.Sprintf("container kind %q", kind))
	}
	return m.Create(id, baseDir)
}

// processManager is the built-in "process" kind: it wraps an OS child
// process inside a libcontainer sandbox with a fixed namespace and
// cgroup configuration, grounded on runtime/runtime.go's
// ContainerConfigFactory.
type processManager struct {
	root         string
	lcFactory    libcontainer.Factory
	boundingCaps []string
}

// NewProcessManager builds the "process" container manager rooted at
// root (the libcontainer state directory, analogous to Runtime.Root in
// runtime/runtime.go). boundingCaps is the capability bounding set every
// container gets; pass nil to fall back to the conservative built-in
// default ("CAP_CHOWN", "CAP_SETUID", "CAP_SETGID"). The orchestrator
// narrows this list with internal/capset against what the host kernel
// actually supports before passing it in.
func NewProcessManager(root string, boundingCaps []string) (Manager, error) {
	if err := os.MkdirAll(root, 0711); err != nil {
		return nil, amerr.System.Wrap(err, "creating libcontainer root "+root)
	}

	lcFactory, err := libcontainer.New(root, libcontainer.Cgroupfs)
	if err != nil {
		return nil, amerr.System.Wrap(err, "initializing libcontainer factory")
	}

	if boundingCaps == nil {
		boundingCaps = []string{"CAP_CHOWN", "CAP_SETUID", "CAP_SETGID"}
	}

	return &processManager{root: root, lcFactory: lcFactory, boundingCaps: boundingCaps}, nil
}

func (m *processManager) Kind() string { return "process" }

func (m *processManager) Create(id, baseDir string) (Container, error) {
	cfg := defaultConfig(baseDir, m.boundingCaps)

	lc, err := m.lcFactory.Create(id, cfg)
	if err != nil {
		return nil, amerr.System.Wrap(err, "creating libcontainer container "+id)
	}

	return &processContainer{id: id, baseDir: baseDir, lc: lc, status: StatusCreated}, nil
}

// defaultConfig mirrors the teacher's default ContainerConfigFactory: a
// rootless sandbox with the full namespace set, a minimal mount table,
// and conservative rlimits.
func defaultConfig(rootfs string, boundingCaps []string) *configs.Config {
	return &configs.Config{
		Rootfs: rootfs,
		Capabilities: &configs.Capabilities{
			Bounding: boundingCaps,
		},
		Namespaces: configs.Namespaces([]configs.Namespace{
			{Type: configs.NEWNS},
			{Type: configs.NEWUTS},
			{Type: configs.NEWIPC},
			{Type: configs.NEWPID},
			{Type: configs.NEWUSER},
		}),
		Cgroups: &configs.Cgroup{
			Name:      filepath.Base(rootfs),
			Resources: &configs.Resources{},
		},
		MaskPaths: []string{"/proc/kcore"},
		ReadonlyPaths: []string{"/proc/sys"},
		Mounts: []*configs.Mount{
			{
				Source:      "proc",
				Destination: "/proc",
				Device:      "proc",
				Flags:       syscall.MS_NOEXEC | syscall.MS_NOSUID | syscall.MS_NODEV,
			},
			{
				Source:      "tmpfs",
				Destination: "/dev",
				Device:      "tmpfs",
				Flags:       syscall.MS_NOSUID | syscall.MS_STRICTATIME,
				Data:        "mode=755",
			},
		},
		Rlimits: []configs.Rlimit{
			{Type: syscall.RLIMIT_NOFILE, Hard: 1024, Soft: 1024},
		},
	}
}

type processContainer struct {
	id      string
	baseDir string
	lc      libcontainer.Container
	process *libcontainer.Process
	status  Status
}

func (c *processContainer) ID() string          { return c.id }
func (c *processContainer) ProgramPath() string  { return filepath.Join(c.baseDir, "bin", "run") }
func (c *processContainer) BaseDir() string      { return c.baseDir }
func (c *processContainer) CgroupName() string   { return c.id }
func (c *processContainer) Status() Status       { return c.status }

func (c *processContainer) Start(argv []string, env []string) error {
	if len(argv) == 0 {
		return amerr.System.New("empty argv for container " + c.id)
	}

	c.process = &libcontainer.Process{
		Args:   argv,
		Env:    env,
		Stdin:  os.Stdin,
		Stdout: os.Stdout,
		Stderr: os.Stderr,
		Init:   true,
	}

	if err := c.lc.Run(c.process); err != nil {
		c.lc.Destroy()
		return amerr.System.Wrap(err, "starting container "+c.id)
	}

	c.status = StatusRunning
	return nil
}

func (c *processContainer) Signal(sig os.Signal) error {
	if c.process == nil {
		return amerr.System.New("container " + c.id + " has no running process")
	}
	s, _ := sig.(syscall.Signal)
	return c.process.Signal(s)
}

// Stop always force-kills: rootless containers, like the teacher's,
// cannot rely on SIGTERM/SIGINT being delivered to PID 1 of a user
// namespace the way a normal process tree would.
func (c *processContainer) Stop() error {
	if c.process != nil {
		_ = c.process.Signal(syscall.SIGKILL)
		_, _ = c.process.Wait()
	}
	c.status = StatusStopped
	return c.lc.Destroy()
}

// Wait blocks on the underlying libcontainer process and translates its
// exit state into a plain exit code once it leaves StatusRunning.
func (c *processContainer) Wait() (int, error) {
	if c.process == nil {
		return -1, amerr.System.New("container " + c.id + " has no running process")
	}
	state, err := c.process.Wait()
	c.status = StatusStopped
	if err != nil {
		return -1, amerr.System.Wrap(err, "waiting on container "+c.id)
	}
	return state.ExitCode(), nil
}
