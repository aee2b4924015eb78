package container

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSelectFirstMatchWins(t *testing.T) {
	rules := []SelectionRule{
		{Glob: "com.x.trusted.*", Kind: "native"},
		{Glob: "*", Kind: "process"},
	}

	require.Equal(t, "native", Select(rules, "com.x.trusted.a"))
	require.Equal(t, "process", Select(rules, "com.y.other"))
}

func TestSelectNoMatch(t *testing.T) {
	rules := []SelectionRule{{Glob: "com.x.*", Kind: "native"}}
	require.Equal(t, "", Select(rules, "com.y.other"))
}
