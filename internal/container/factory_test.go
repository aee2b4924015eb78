package container

import (
	"os"
	"testing"

	"github.com/appkit/amd/internal/amerr"
	"github.com/stretchr/testify/require"
)

type fakeManager struct{ kind string }

func (f *fakeManager) Kind() string { return f.kind }
func (f *fakeManager) Create(id, baseDir string) (Container, error) {
	return &fakeContainer{id: id, baseDir: baseDir}, nil
}

type fakeContainer struct {
	id      string
	baseDir string
	status  Status
}

func (c *fakeContainer) ID() string         { return c.id }
func (c *fakeContainer) ProgramPath() string { return c.baseDir + "/run" }
func (c *fakeContainer) BaseDir() string     { return c.baseDir }
func (c *fakeContainer) CgroupName() string  { return c.id }
func (c *fakeContainer) Status() Status      { return c.status }
func (c *fakeContainer) Start([]string, []string) error { c.status = StatusRunning; return nil }
func (c *fakeContainer) Signal(os.Signal) error         { return nil }
func (c *fakeContainer) Stop() error                    { c.status = StatusStopped; return nil }
func (c *fakeContainer) Wait() (int, error)              { return 0, nil }

func TestFactoryRegisterAndCreate(t *testing.T) {
	f := NewFactory()
	f.Register(&fakeManager{kind: "process"})
	f.Register(&fakeManager{kind: "native"})

	require.Equal(t, []string{"process", "native"}, f.Kinds())

	c, err := f.Create("process", "app-1", "/tmp/app-1")
	require.NoError(t, err)
	require.Equal(t, "app-1", c.ID())
}

func TestFactoryUnknownKind(t *testing.T) {
	f := NewFactory()
	_, err := f.Create("bogus", "id", "/tmp")
	require.True(t, amerr.NotFound.Is(err))
}
