package buildsys

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseRoundTripsKnownSystems(t *testing.T) {
	for _, s := range []System{Autotools, CMake, Meson, Cargo, Go, Python, NodeJS} {
		require.Equal(t, s, Parse(s.String()))
	}
}

func TestParseUnknownDefaultsToUnknown(t *testing.T) {
	require.Equal(t, Unknown, Parse("scons"))
}

func TestOnlyPythonUsesVenv(t *testing.T) {
	require.True(t, Python.UsesVenv())
	require.False(t, Cargo.UsesVenv())
	require.False(t, Unknown.UsesVenv())
}

func TestCapabilitiesForUnknownIsEmpty(t *testing.T) {
	require.Equal(t, Capabilities{}, CapabilitiesFor(Unknown))
}
