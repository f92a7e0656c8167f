// Copyright (2012) Sandia Corporation.
// Under the terms of Contract DE-AC04-94AL85000 with Sandia Corporation,
// the U.S. Government retains certain rights in this software.

// Package server multiplexes the well-known TFTP service socket and
// one socket per in-flight transfer, dispatching datagrams to per
// client read and write state machines and reaping clients when the
// remote node goes away.
package server

import (
	"os"

	"go.uber.org/multierr"

	"github.com/a-wai/tqftpserv/internal/qrtr"
	"github.com/a-wai/tqftpserv/internal/tftp"
	log "github.com/a-wai/tqftpserv/pkg/minilog"
)

// Conn is the datagram socket surface the server consumes, satisfied
// by *qrtr.Socket.
type Conn interface {
	Recvfrom(b []byte) (int, qrtr.Addr, error)
	Send(b []byte) (int, error)
	Close() error
	Fd() int
}

// Opener resolves the logical filenames peers request into host file
// handles, satisfied by *translate.Rules.
type Opener interface {
	Open(name string) (*os.File, error)
	Create(name string) (*os.File, error)
}

// status is what a transfer handler returns to the loop.
type status int

const (
	statusKeep status = iota // transfer continues
	statusDone               // terminal; reap the client
)

// Server owns the service socket and the reader and writer registries.
// All mutation happens on the loop goroutine.
type Server struct {
	conn Conn
	fs   Opener

	// MaxTransfers caps concurrent transfers when > 0; requests over
	// the cap are answered with an out of resources error.
	MaxTransfers int

	dial func(qrtr.Addr) (Conn, error)
	poll poller

	readers map[int]*transfer // keyed by transfer socket fd
	writers map[int]*transfer

	buf []byte
}

// New returns a server handling requests from conn, resolving names
// through fs.
func New(conn Conn, fs Opener) *Server {
	return &Server{
		conn:    conn,
		fs:      fs,
		dial:    func(addr qrtr.Addr) (Conn, error) { return qrtr.Dial(addr) },
		poll:    unixPoller{},
		readers: make(map[int]*transfer),
		writers: make(map[int]*transfer),
		buf:     make([]byte, 4096),
	}
}

// Run drives the event loop until the readiness wait fails. Transfer
// errors reap the affected client and never end the loop.
func (s *Server) Run() error {
	for {
		fds := make([]int, 0, 1+len(s.readers)+len(s.writers))
		fds = append(fds, s.conn.Fd())
		for fd := range s.writers {
			fds = append(fds, fd)
		}
		for fd := range s.readers {
			fds = append(fds, fd)
		}

		ready, err := s.poll.wait(fds)
		if err != nil {
			return err
		}

		for fd, t := range s.writers {
			if ready[fd] {
				if s.handleWriter(t) == statusDone {
					s.reap(s.writers, fd)
				}
			}
		}

		for fd, t := range s.readers {
			if ready[fd] {
				if s.handleReader(t) == statusDone {
					s.reap(s.readers, fd)
				}
			}
		}

		if ready[s.conn.Fd()] {
			s.service()
		}
	}
}

// service receives one datagram from the well-known socket and
// dispatches it: control-port traffic to the lifecycle handler,
// everything else by opcode.
func (s *Server) service() {
	n, from, err := s.conn.Recvfrom(s.buf)
	if err != nil {
		if !netReset(err) {
			log.Error("recvfrom failed: %v", err)
		}
		return
	}

	if from.Port == qrtr.PortCtrl {
		pkt, err := qrtr.DecodeControl(s.buf[:n])
		if err != nil {
			log.Error("unable to decode control packet: %v", err)
			return
		}
		s.handleControl(pkt)
		return
	}

	pkt, err := tftp.Parse(s.buf[:n])
	if err != nil {
		log.Warn("dropping malformed datagram from %v: %v", from, err)
		return
	}

	switch p := pkt.(type) {
	case tftp.Request:
		s.handleRequest(p, from)
	case tftp.Error:
		log.Error("received error from %v: %v - %v", from, p.Code, p.Msg)
	default:
		log.Warn("unhandled %T from %v", p, from)
	}
}

// handleControl reacts to bus lifecycle packets. Both registries are
// swept: the original server reaped only writers here, leaving readers
// of a dead node dangling until their next send failed.
func (s *Server) handleControl(pkt qrtr.ControlPacket) {
	switch pkt.Cmd {
	case qrtr.CtrlBye:
		log.Debug("node %v left the bus", pkt.Node)
		s.reapMatching(func(t *transfer) bool {
			return t.addr.Node == pkt.Node
		})
	case qrtr.CtrlDelClient:
		addr := qrtr.Addr{Node: pkt.Node, Port: pkt.Port}
		log.Debug("client %v removed from the bus", addr)
		s.reapMatching(func(t *transfer) bool {
			return t.addr == addr
		})
	}
}

func (s *Server) reapMatching(match func(*transfer) bool) {
	for fd, t := range s.writers {
		if match(t) {
			s.reap(s.writers, fd)
		}
	}
	for fd, t := range s.readers {
		if match(t) {
			s.reap(s.readers, fd)
		}
	}
}

// reap removes a client from its registry and releases its socket and
// file handle.
func (s *Server) reap(reg map[int]*transfer, fd int) {
	t, ok := reg[fd]
	if !ok {
		return
	}

	delete(reg, fd)
	if err := t.close(); err != nil {
		log.Error("closing transfer %v: %v", t.addr, err)
	}
}

// transfers returns the number of in-flight transfers.
func (s *Server) transfers() int {
	return len(s.readers) + len(s.writers)
}

// Close reaps every transfer and closes the service socket.
func (s *Server) Close() error {
	var err error

	for _, t := range s.writers {
		err = multierr.Append(err, t.close())
	}
	for _, t := range s.readers {
		err = multierr.Append(err, t.close())
	}
	s.writers = make(map[int]*transfer)
	s.readers = make(map[int]*transfer)

	return multierr.Append(err, s.conn.Close())
}
