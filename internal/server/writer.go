// Copyright (2012) Sandia Corporation.
// Under the terms of Contract DE-AC04-94AL85000 with Sandia Corporation,
// the U.S. Government retains certain rights in this software.

package server

import (
	"github.com/a-wai/tqftpserv/internal/tftp"
	log "github.com/a-wai/tqftpserv/pkg/minilog"
)

// shortBlockLen ends a write when a DATA payload comes in under it.
// The original server compares against 512 no matter what blksize was
// negotiated and the companion client never negotiates another size
// for uploads, so the literal stays.
const shortBlockLen = 512

// handleWriter services one datagram on a writer's transfer socket:
// append the payload, ack the block, and finish on a short block.
func (s *Server) handleWriter(t *transfer) status {
	buf := make([]byte, 4+t.params.BlockSize)
	n, from, err := t.conn.Recvfrom(buf)
	if err != nil {
		if !netReset(err) {
			log.Error("recvfrom failed: %v", err)
		}
		return statusDone
	}

	// drop unsolicited messages; the transfer is unaffected
	if from != t.addr {
		return statusKeep
	}

	pkt, err := tftp.Parse(buf[:n])
	if err != nil {
		log.Error("malformed packet from %v: %v", from, err)
		t.conn.Send(tftp.Error{Code: tftp.ErrIllegalOp, Msg: "Expected DATA opcode"}.Marshal())
		return statusDone
	}

	data, ok := pkt.(tftp.Data)
	if !ok {
		log.Error("expected DATA from %v, got %T", from, pkt)
		t.conn.Send(tftp.Error{Code: tftp.ErrIllegalOp, Msg: "Expected DATA opcode"}.Marshal())
		return statusDone
	}

	if _, err := t.file.Write(data.Payload); err != nil {
		log.Error("writing block %v from %v: %v", data.Block, from, err)
		return statusDone
	}

	t.conn.Send(tftp.Ack{Block: data.Block}.Marshal())

	if len(data.Payload) < shortBlockLen {
		if log.WillLog(log.DEBUG) {
			log.Debug("short block of %v bytes ends write from %v", len(data.Payload), from)
		}
		return statusDone
	}

	return statusKeep
}
