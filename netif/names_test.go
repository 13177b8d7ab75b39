//go:build linux

package netif

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withTempNameDB(t *testing.T) {
	t.Helper()
	prev := nameDBPath
	SetNameDBPath(filepath.Join(t.TempDir(), "veth-names.db"))
	t.Cleanup(func() { nameDBPath = prev })
}

func TestAllocateNameIsUniquePerPrefix(t *testing.T) {
	withTempNameDB(t)

	a, err := AllocateName("v")
	require.NoError(t, err)
	b, err := AllocateName("v")
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
	assert.LessOrEqual(t, len(a), 15)
}

func TestAllocateNamePersistsAcrossCalls(t *testing.T) {
	withTempNameDB(t)

	seen := make(map[string]bool)
	for i := 0; i < 10; i++ {
		name, err := AllocateName("c")
		require.NoError(t, err)
		assert.False(t, seen[name], "name %q reused", name)
		seen[name] = true
	}
}

func TestReleaseNameAllowsReuseSlot(t *testing.T) {
	withTempNameDB(t)

	name, err := AllocateName("v")
	require.NoError(t, err)

	require.NoError(t, ReleaseName(name))
	require.NoError(t, ReleaseName(name))
}
