//go:build linux

package pty

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestSetupParentSkippedWithoutConsole(t *testing.T) {
	master, slave, err := SetupParent(false)
	require.NoError(t, err)
	assert.Equal(t, -1, master)
	assert.Equal(t, "", slave)
}

func TestSetupParentOpensRawPTY(t *testing.T) {
	if _, err := os.Stat("/dev/ptmx"); err != nil {
		t.Skipf("no /dev/ptmx in this environment: %v", err)
	}

	master, slave, err := SetupParent(true)
	require.NoError(t, err)
	defer unix.Close(master)

	assert.GreaterOrEqual(t, master, 0)
	assert.Regexp(t, `^/dev/pts/\d+$`, slave)

	if _, err := os.Stat(slave); err != nil {
		t.Skipf("devpts slave not visible in this mount namespace: %v", err)
	}
}

func TestSetupContainerSideOpensDistinctPTY(t *testing.T) {
	if _, err := os.Stat("/dev/ptmx"); err != nil {
		t.Skipf("no /dev/ptmx in this environment: %v", err)
	}

	m1, s1, err := SetupContainerSide()
	require.NoError(t, err)
	defer unix.Close(m1)

	m2, s2, err := SetupContainerSide()
	require.NoError(t, err)
	defer unix.Close(m2)

	assert.NotEqual(t, m1, m2)
	assert.NotEqual(t, s1, s2)
}
