//go:build linux

package initcollab

import (
	"fmt"

	seccomp "github.com/seccomp/libseccomp-golang"
	"golang.org/x/sys/unix"
)

// defaultDenySyscalls blocks the namespace-escape and host-interference
// syscalls a container should never need, adapted from the sandbox
// package's seccomp deny-list.
var defaultDenySyscalls = []string{
	"create_module", "init_module", "finit_module", "delete_module",
	"kexec_load", "kexec_file_load",
	"add_key", "request_key", "keyctl", "bpf",
	"ptrace", "process_vm_readv", "process_vm_writev",
	"adjtimex", "clock_adjtime", "settimeofday", "stime",
	"reboot", "quotactl", "nfsservctl", "sysfs", "_sysctl",
	"mount", "umount", "umount2", "pivot_root",
	"setns", "unshare",
	"open_by_handle_at",
	"perf_event_open", "fanotify_init",
	"name_to_handle_at", "lookup_dcookie",
	"userfaultfd", "iopl", "ioperm",
	"set_mempolicy", "move_pages",
	"kcmp", "acct",
}

/**
 * ApplySeccomp installs a default-allow seccomp filter that returns
 * ENOSYS for everything in defaultDenySyscalls. Must run after
 * filesystem and capability setup, immediately before Exec.
 */
func ApplySeccomp() error {
	if err := unix.Prctl(unix.PR_SET_NO_NEW_PRIVS, 1, 0, 0, 0); err != nil && err != unix.EINVAL {
		return fmt.Errorf("prctl(NO_NEW_PRIVS): %w", err)
	}

	filter, err := seccomp.NewFilter(seccomp.ActAllow)
	if err != nil {
		return err
	}
	defer filter.Release()

	denyAct := seccomp.ActErrno.SetReturnCode(int16(unix.ENOSYS))
	for _, name := range defaultDenySyscalls {
		sc, err := seccomp.GetSyscallFromName(name)
		if err != nil {
			continue
		}
		if err := filter.AddRule(sc, denyAct); err != nil {
			continue
		}
	}

	if err := filter.Load(); err != nil {
		return fmt.Errorf("seccomp: load: %w", err)
	}
	return nil
}
