// Copyright (2012) Sandia Corporation.
// Under the terms of Contract DE-AC04-94AL85000 with Sandia Corporation,
// the U.S. Government retains certain rights in this software.

package server

import (
	"os"

	"github.com/a-wai/tqftpserv/internal/qrtr"
	"github.com/a-wai/tqftpserv/internal/tftp"
	log "github.com/a-wai/tqftpserv/pkg/minilog"
)

// handleRequest sets up a new transfer for an RRQ or WRQ received on
// the service socket. All replies, including rejections, travel over a
// fresh socket connected to the requesting peer.
func (s *Server) handleRequest(req tftp.Request, from qrtr.Addr) {
	if !tftp.OctetMode(req.Mode) {
		log.Error("mode %q is not octet, rejecting %v from %v", req.Mode, req.Filename, from)
		return
	}

	params, perr := tftp.NegotiateOptions(req.Options)

	log.Info("%v: %v from %v (options %v)", req.Op, req.Filename, from, req.Options)

	conn, err := s.dial(from)
	if err != nil {
		log.Error("unable to connect new socket to %v: %v", from, err)
		return
	}

	if perr != nil {
		log.Error("rejecting %v from %v: %v", req.Filename, from, perr)
		conn.Send(tftp.Error{Code: tftp.ErrBadOptions, Msg: perr.Error()}.Marshal())
		conn.Close()
		return
	}

	if s.MaxTransfers > 0 && s.transfers() >= s.MaxTransfers {
		log.Error("rejecting %v from %v: %v transfers in flight", req.Filename, from, s.transfers())
		conn.Send(tftp.Error{Code: tftp.ErrNotDefined, Msg: "out of resources"}.Marshal())
		conn.Close()
		return
	}

	switch req.Op {
	case tftp.OpRRQ:
		s.setupReader(req, params, conn, from)
	case tftp.OpWRQ:
		s.setupWriter(req, params, conn, from)
	}
}

func (s *Server) setupReader(req tftp.Request, params *tftp.Params, conn Conn, from qrtr.Addr) {
	f, err := s.fs.Open(req.Filename)
	if err != nil {
		log.Error("unable to open %v: %v, rejecting", req.Filename, err)
		conn.Send(openError(err).Marshal())
		conn.Close()
		return
	}

	if params.WantTransferSize() {
		if fi, err := f.Stat(); err == nil {
			params.TransferSize = fi.Size()
		}
	}

	t := &transfer{addr: from, conn: conn, file: f, params: params}
	s.readers[conn.Fd()] = t

	if len(req.Options) > 0 {
		conn.Send(tftp.OptionAck{Options: params.Echo()}.Marshal())
		return
	}

	// no options means no OACK handshake; send the first block now
	if s.pump(t, 0) == statusDone {
		s.reap(s.readers, conn.Fd())
	}
}

func (s *Server) setupWriter(req tftp.Request, params *tftp.Params, conn Conn, from qrtr.Addr) {
	f, err := s.fs.Create(req.Filename)
	if err != nil {
		log.Error("unable to create %v: %v, rejecting", req.Filename, err)
		conn.Close()
		return
	}

	t := &transfer{addr: from, conn: conn, file: f, params: params}
	s.writers[conn.Fd()] = t

	if len(req.Options) > 0 {
		conn.Send(tftp.OptionAck{Options: params.Echo()}.Marshal())
	}
}

// openError picks the TFTP error for a failed read open.
func openError(err error) tftp.Error {
	switch {
	case os.IsNotExist(err):
		return tftp.Error{Code: tftp.ErrNotFound, Msg: "file not found"}
	case os.IsPermission(err):
		return tftp.Error{Code: tftp.ErrAccess, Msg: "access violation"}
	}
	return tftp.Error{Code: tftp.ErrNotDefined, Msg: "file open failed"}
}
