//go:build linux

package initcollab

import (
	"fmt"

	"github.com/moby/sys/capability"
)

// defaultCaps mirrors the Docker/runc default bounding set, adapted
// from the capability allow-list used for the standalone sandbox.
var defaultCaps = []string{
	"CAP_CHOWN", "CAP_DAC_OVERRIDE", "CAP_FSETID", "CAP_FOWNER",
	"CAP_MKNOD", "CAP_NET_RAW", "CAP_SETGID", "CAP_SETUID",
	"CAP_SETFCAP", "CAP_SETPCAP", "CAP_NET_BIND_SERVICE",
	"CAP_SYS_CHROOT", "CAP_KILL", "CAP_AUDIT_READ", "CAP_AUDIT_WRITE",
}

// DropToDefaultCaps clears every capability set of the current process
// and reinstates only the default bounding set above. Must run after
// filesystem and network setup; Run calls it just before ApplySeccomp
// and Exec.
func DropToDefaultCaps() error {
	ids := make([]capability.Cap, 0, len(defaultCaps))
	known := make(map[string]capability.Cap)
	for _, c := range capability.ListKnown() {
		known[c.String()] = c
	}
	for _, name := range defaultCaps {
		id, ok := known[normalizeCap(name)]
		if !ok {
			continue
		}
		ids = append(ids, id)
	}

	caps, err := capability.NewPid2(0)
	if err != nil {
		return fmt.Errorf("get process capabilities: %w", err)
	}

	caps.Clear(capability.BOUNDS)
	caps.Set(capability.BOUNDING, ids...)
	caps.Clear(capability.CAPS)
	caps.Set(capability.PERMITTED, ids...)
	caps.Set(capability.EFFECTIVE, ids...)
	caps.Set(capability.INHERITABLE, ids...)
	caps.Clear(capability.AMBIENT)

	if err := caps.Apply(capability.CAPS | capability.BOUNDS | capability.AMBIENT); err != nil {
		return fmt.Errorf("apply capabilities: %w", err)
	}
	return nil
}

func normalizeCap(name string) string {
	s := name
	if len(s) > 4 && s[:4] == "CAP_" {
		s = s[4:]
	}
	out := make([]byte, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= 'A' && c <= 'Z' {
			c += 'a' - 'A'
		}
		out[i] = c
	}
	return string(out)
}
