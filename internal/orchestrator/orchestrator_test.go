package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/appkit/amd/internal/config"
	"github.com/appkit/amd/internal/container"
	"github.com/appkit/amd/internal/rpcsurface"
)

func TestParseBusKind(t *testing.T) {
	require.Equal(t, rpcsurface.BusSpec{Kind: rpcsurface.BusSystem}, parseBusKind("system", ""))
	require.Equal(t, rpcsurface.BusSpec{Kind: rpcsurface.BusSession}, parseBusKind("session", ""))
	require.Equal(t,
		rpcsurface.BusSpec{Kind: rpcsurface.BusExplicit, Address: "unix:path=/tmp/bus"},
		parseBusKind("explicit", "unix:path=/tmp/bus"))
	require.Equal(t, rpcsurface.BusSpec{Kind: rpcsurface.BusNone}, parseBusKind("bogus", ""))
}

func TestToSelectionRules(t *testing.T) {
	cfgs := []config.SelectionRuleConfig{
		{Glob: "*.qml", Kind: "qml"},
		{Glob: "*", Kind: "process"},
	}

	rules := toSelectionRules(cfgs)
	require.Equal(t, []container.SelectionRule{
		{Glob: "*.qml", Kind: "qml"},
		{Glob: "*", Kind: "process"},
	}, rules)
}
