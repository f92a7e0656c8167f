// Copyright (2012) Sandia Corporation.
// Under the terms of Contract DE-AC04-94AL85000 with Sandia Corporation,
// the U.S. Government retains certain rights in this software.

// Package qrtr speaks the kernel IPC router datagram transport
// (AF_QIPCRTR) that connects the host to its coprocessors. Sockets are
// addressed by (node, port) pairs; a distinguished control port carries
// lifecycle packets for every node and service on the bus.
package qrtr

import "fmt"

// PortCtrl is the well-known control port on every node. Datagrams
// whose source port equals PortCtrl are control packets, not payload.
const PortCtrl = 0xfffffffe

// Addr is the transport address of one socket on the bus.
type Addr struct {
	Node uint32
	Port uint32
}

func (a Addr) String() string {
	return fmt.Sprintf("%d:%d", a.Node, a.Port)
}
