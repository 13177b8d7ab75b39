//go:build linux

package pty

import (
	"context"
	"fmt"

	"golang.org/x/sys/unix"
)

/**
 * Forward is the long-running console pump (§4.3), run in a dedicated
 * forwarder process. Both descriptors are registered with epoll in
 * edge-triggered mode; the essential trick is that EPOLLHUP is ignored
 * rather than causing a tight loop when the user disconnects.
 *
 * State: two "active" booleans and a current-direction index. On each
 * iteration: wait with timeout 0 if any side is active (else wait
 * forever); a readable event marks that side active; a hangup event
 * is ignored; an EINTR causes a retry. If any side is active, forward
 * one byte from the current side to the other; if the read would
 * block, clear that side's active flag; if the write fails, the
 * forwarder terminates. Forward also returns a non-nil error when a
 * read fails with anything other than EAGAIN, when epoll_wait fails
 * with anything other than EINTR, or on an event mask with neither
 * EPOLLIN nor EPOLLHUP set. When both sides are active, the
 * direction toggles after each byte to keep the pump fair.
 *
 * Grounded on the original LXC driver's lxcTtyForward/lxcFdForward.
 *
 * @param ctx canceled to ask the forwarder to stop between bytes
 * @param fd1 one tunnel endpoint
 * @param fd2 the other tunnel endpoint
 * @return nil if ctx was canceled cleanly, or the fatal forwarding error
 */
func Forward(ctx context.Context, fd1, fd2 int) error {
	epollFd, err := unix.EpollCreate1(0)
	if err != nil {
		return fmt.Errorf("epoll_create1: %w", err)
	}
	defer unix.Close(epollFd)

	fds := [2]int{fd1, fd2}
	active := [2]bool{false, false}
	numActive := 0
	cur := 0

	for i, fd := range fds {
		ev := unix.EpollEvent{
			Events: unix.EPOLLIN | unix.EPOLLET,
		}
		// Store the fd itself in Fd, since unix.EpollEvent has no
		// separate u32 payload field in the Go binding; indexOf maps it
		// back to its position in fds.
		ev.Fd = int32(fd)
		if err := unix.EpollCtl(epollFd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
			return fmt.Errorf("epoll_ctl(fd %d): %w", fd, err)
		}
		_ = i
	}

	indexOf := func(fd int32) int {
		if int(fd) == fds[0] {
			return 0
		}
		return 1
	}

	events := make([]unix.EpollEvent, 1)

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		timeout := -1
		if numActive > 0 {
			timeout = 0
		}

		n, err := unix.EpollWait(epollFd, events, timeout)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return fmt.Errorf("epoll_wait: %w", err)
		}

		if n > 0 {
			ev := events[0]
			switch {
			case ev.Events&unix.EPOLLIN != 0:
				idx := indexOf(ev.Fd)
				if !active[idx] {
					active[idx] = true
					numActive++
				}
				cur = idx
			case ev.Events&unix.EPOLLHUP != 0:
				// Edge-triggered hangup: ignore and continue. This is
				// what collapses the tight loop a user disconnect
				// would otherwise cause under level-triggered polling.
				continue
			default:
				return fmt.Errorf("unexpected epoll event mask 0x%x", ev.Events)
			}
		} else {
			// Timed-out poll: decide which side to service next.
			if numActive == 2 {
				cur ^= 1
			} else if !active[cur] {
				cur ^= 1
			}
		}

		if numActive > 0 {
			writeIdx := cur ^ 1
			rc := forwardOneByte(fds[cur], fds[writeIdx])
			switch rc {
			case forwardBlocked:
				active[cur] = false
				numActive--
			case forwardError:
				return fmt.Errorf("forward fd %d -> %d failed", fds[cur], fds[writeIdx])
			case forwardOK:
				if numActive == 2 {
					cur ^= 1
				}
			}
		}
	}
}

type forwardResult int

const (
	forwardOK forwardResult = iota
	forwardBlocked
	forwardError
)

/**
 * forwardOneByte reads a single byte from readFd and writes it to
 * writeFd. Single-byte transfers are simpler than buffered transfers
 * and remain correct under edge-triggered readiness, because any
 * additional readable bytes stay readable until drained.
 */
func forwardOneByte(readFd, writeFd int) forwardResult {
	var buf [1]byte

	n, err := unix.Read(readFd, buf[:])
	if err != nil {
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			return forwardBlocked
		}
		return forwardError
	}
	if n == 0 {
		return forwardBlocked
	}

	if _, err := unix.Write(writeFd, buf[:]); err != nil {
		return forwardError
	}
	return forwardOK
}
