//go:build linux

package initcollab

import (
	"os"
	"os/exec"
	"testing"

	"github.com/moby/sys/capability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeCap(t *testing.T) {
	cases := map[string]string{
		"CAP_CHOWN":            "chown",
		"CAP_NET_BIND_SERVICE": "net_bind_service",
		"chown":                "chown",
		"CAP_SYS_CHROOT":       "sys_chroot",
	}
	for in, want := range cases {
		assert.Equal(t, want, normalizeCap(in))
	}
}

// TestDropToDefaultCapsInSubprocess re-executes this test binary as a
// throwaway child process, since dropping the bounding capability set
// is irreversible for a running process and would otherwise poison
// every other test sharing this test binary.
func TestDropToDefaultCapsInSubprocess(t *testing.T) {
	if os.Getenv("LXCBOX_TEST_DROP_CAPS_HELPER") == "1" {
		if err := DropToDefaultCaps(); err != nil {
			os.Exit(1)
		}

		caps, err := capability.NewPid2(0)
		if err != nil {
			os.Exit(2)
		}
		if err := caps.Load(); err != nil {
			os.Exit(2)
		}
		if caps.Get(capability.EFFECTIVE, capability.CAP_SYS_ADMIN) {
			// CAP_SYS_ADMIN is not in the default bounding set and must
			// be gone after DropToDefaultCaps.
			os.Exit(3)
		}
		if !caps.Get(capability.EFFECTIVE, capability.CAP_CHOWN) {
			os.Exit(4)
		}
		os.Exit(0)
	}

	if os.Geteuid() != 0 {
		t.Skip("needs real root to exercise capability dropping")
	}

	cmd := exec.Command(os.Args[0], "-test.run=TestDropToDefaultCapsInSubprocess")
	cmd.Env = append(os.Environ(), "LXCBOX_TEST_DROP_CAPS_HELPER=1")
	out, err := cmd.CombinedOutput()
	require.NoError(t, err, "helper subprocess output: %s", out)
}
