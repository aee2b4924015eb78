package appmanager

import (
	"testing"

	"github.com/appkit/amd/internal/app"
	"github.com/appkit/amd/internal/container"
	"github.com/appkit/amd/internal/runtimefactory"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

// stubManager satisfies runtimefactory.Manager for the sole purpose of
// registering a known runtime kind.
type stubManager struct{ kind string }

func (s stubManager) Kind() string               { return s.kind }
func (s stubManager) InProcess() bool            { return false }
func (s stubManager) SupportsQuickLaunch() bool   { return false }
func (s stubManager) Create(c container.Container, quickLauncher bool) (runtimefactory.Runtime, error) {
	return nil, nil
}

func TestValidateRuntimeNamesKeepsAliases(t *testing.T) {
	runtimes := runtimefactory.NewFactory()
	runtimes.Register(stubManager{kind: "native"})

	log := logrus.NewEntry(logrus.New())

	base := &app.Application{ID: "com.x.base", RuntimeName: "native"}
	unknown := &app.Application{ID: "com.x.bad", RuntimeName: "nonexistent"}
	alias := &app.Application{ID: "com.x.base@alias", NonAliased: base}

	kept := ValidateRuntimeNames([]*app.Application{base, unknown, alias}, runtimes, log)

	ids := make([]string, len(kept))
	for i, a := range kept {
		ids[i] = a.ID
	}
	require.ElementsMatch(t, []string{"com.x.base", "com.x.base@alias"}, ids)
}
