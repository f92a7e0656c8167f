// Copyright (2012) Sandia Corporation.
// Under the terms of Contract DE-AC04-94AL85000 with Sandia Corporation,
// the U.S. Government retains certain rights in this software.

package server

import (
	"golang.org/x/sys/unix"
)

// poller blocks until at least one of a dynamic set of sockets is
// readable. Pulled out so the engines can be driven by tests without
// real sockets.
type poller interface {
	wait(fds []int) (map[int]bool, error)
}

type unixPoller struct{}

func (unixPoller) wait(fds []int) (map[int]bool, error) {
	pfds := make([]unix.PollFd, len(fds))
	for i, fd := range fds {
		pfds[i] = unix.PollFd{Fd: int32(fd), Events: unix.POLLIN}
	}

	for {
		_, err := unix.Poll(pfds, -1)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return nil, err
		}
		break
	}

	ready := make(map[int]bool)
	for _, p := range pfds {
		if p.Revents&(unix.POLLIN|unix.POLLERR|unix.POLLHUP) != 0 {
			ready[int(p.Fd)] = true
		}
	}

	return ready, nil
}

// netReset reports whether a receive failed because the network behind
// the bus was reset, which the engines treat as a silent hangup.
func netReset(err error) bool {
	return err == unix.ENETRESET
}
