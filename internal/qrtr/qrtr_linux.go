// Copyright (2012) Sandia Corporation.
// Under the terms of Contract DE-AC04-94AL85000 with Sandia Corporation,
// the U.S. Government retains certain rights in this software.

// +build linux

package qrtr

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// rawSockaddrQRTR mirrors struct sockaddr_qrtr. The uint32 fields land
// on 4 byte boundaries, matching the kernel's implicit padding after
// the family.
type rawSockaddrQRTR struct {
	Family uint16
	_      uint16
	Node   uint32
	Port   uint32
}

// Socket is one AF_QIPCRTR datagram socket.
type Socket struct {
	fd   int
	addr Addr // local address, valid after bind
}

// Open returns a socket bound to the given local port, or to a kernel
// assigned port if port is 0.
func Open(port uint32) (*Socket, error) {
	fd, err := unix.Socket(unix.AF_QIPCRTR, unix.SOCK_DGRAM, 0)
	if err != nil {
		return nil, fmt.Errorf("qrtr socket: %v", err)
	}

	s := &Socket{fd: fd}

	// getsockname tells us the local node, which bind requires
	local, err := s.name()
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("qrtr getsockname: %v", err)
	}

	sa := rawSockaddrQRTR{
		Family: unix.AF_QIPCRTR,
		Node:   local.Node,
		Port:   port,
	}
	_, _, errno := unix.Syscall(unix.SYS_BIND, uintptr(fd),
		uintptr(unsafe.Pointer(&sa)), unsafe.Sizeof(sa))
	if errno != 0 {
		unix.Close(fd)
		return nil, fmt.Errorf("qrtr bind: %v", errno)
	}

	s.addr, err = s.name()
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("qrtr getsockname: %v", err)
	}

	return s, nil
}

// Dial returns a fresh socket connected to a single remote peer, so
// that Send needs no address and stray senders never reach it.
func Dial(addr Addr) (*Socket, error) {
	fd, err := unix.Socket(unix.AF_QIPCRTR, unix.SOCK_DGRAM, 0)
	if err != nil {
		return nil, fmt.Errorf("qrtr socket: %v", err)
	}

	sa := rawSockaddrQRTR{
		Family: unix.AF_QIPCRTR,
		Node:   addr.Node,
		Port:   addr.Port,
	}
	_, _, errno := unix.Syscall(unix.SYS_CONNECT, uintptr(fd),
		uintptr(unsafe.Pointer(&sa)), unsafe.Sizeof(sa))
	if errno != 0 {
		unix.Close(fd)
		return nil, fmt.Errorf("qrtr connect %v: %v", addr, errno)
	}

	return &Socket{fd: fd}, nil
}

func (s *Socket) name() (Addr, error) {
	var sa rawSockaddrQRTR
	salen := uint32(unsafe.Sizeof(sa))

	_, _, errno := unix.Syscall(unix.SYS_GETSOCKNAME, uintptr(s.fd),
		uintptr(unsafe.Pointer(&sa)), uintptr(unsafe.Pointer(&salen)))
	if errno != 0 {
		return Addr{}, errno
	}
	return Addr{Node: sa.Node, Port: sa.Port}, nil
}

// Addr returns the socket's local address.
func (s *Socket) Addr() Addr {
	return s.addr
}

// Fd returns the socket's file descriptor for readiness polling.
func (s *Socket) Fd() int {
	return s.fd
}

// Recvfrom receives one datagram and the address it came from. Errors
// are returned as raw errnos so callers can single out ENETRESET.
func (s *Socket) Recvfrom(b []byte) (int, Addr, error) {
	var sa rawSockaddrQRTR
	salen := uint32(unsafe.Sizeof(sa))

	var p unsafe.Pointer
	if len(b) > 0 {
		p = unsafe.Pointer(&b[0])
	}

	n, _, errno := unix.Syscall6(unix.SYS_RECVFROM, uintptr(s.fd),
		uintptr(p), uintptr(len(b)), 0,
		uintptr(unsafe.Pointer(&sa)), uintptr(unsafe.Pointer(&salen)))
	if errno != 0 {
		return 0, Addr{}, errno
	}

	return int(n), Addr{Node: sa.Node, Port: sa.Port}, nil
}

// Send transmits one datagram to the connected peer.
func (s *Socket) Send(b []byte) (int, error) {
	return unix.Write(s.fd, b)
}

// Publish registers (service, version, instance) with the name service
// so peers can find the socket, mirroring qrtr_publish(3).
func (s *Socket) Publish(service, version, instance uint32) error {
	pkt := ControlPacket{
		Cmd:      CtrlNewServer,
		Service:  service,
		Instance: instance<<8 | version&0xff,
		Node:     s.addr.Node,
		Port:     s.addr.Port,
	}

	sa := rawSockaddrQRTR{
		Family: unix.AF_QIPCRTR,
		Node:   s.addr.Node,
		Port:   PortCtrl,
	}

	b := encodeControl(pkt)
	_, _, errno := unix.Syscall6(unix.SYS_SENDTO, uintptr(s.fd),
		uintptr(unsafe.Pointer(&b[0])), uintptr(len(b)), 0,
		uintptr(unsafe.Pointer(&sa)), unsafe.Sizeof(sa))
	if errno != 0 {
		return fmt.Errorf("qrtr publish: %v", errno)
	}

	return nil
}

func (s *Socket) Close() error {
	return unix.Close(s.fd)
}
