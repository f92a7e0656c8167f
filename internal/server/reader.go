// Copyright (2012) Sandia Corporation.
// Under the terms of Contract DE-AC04-94AL85000 with Sandia Corporation,
// the U.S. Government retains certain rights in this software.

package server

import (
	"fmt"
	"io"

	"github.com/a-wai/tqftpserv/internal/tftp"
	log "github.com/a-wai/tqftpserv/pkg/minilog"
)

// handleReader services one datagram on a reader's transfer socket.
// Readers only ever expect ACKs; anything else ends the transfer.
func (s *Server) handleReader(t *transfer) status {
	buf := make([]byte, 128) // ACKs and ERRORs only
	n, from, err := t.conn.Recvfrom(buf)
	if err != nil {
		if !netReset(err) {
			log.Error("recvfrom failed: %v", err)
		}
		return statusDone
	}

	// drop unsolicited messages; the transfer is unaffected
	if from != t.addr {
		log.Warn("discarding spoofed message from %v", from)
		return statusKeep
	}

	pkt, err := tftp.Parse(buf[:n])
	if err != nil {
		log.Error("malformed packet from %v: %v", from, err)
		return statusDone
	}

	switch p := pkt.(type) {
	case tftp.Ack:
		return s.readerAck(t, p.Block)
	case tftp.Error:
		// "End of Transfer" is not an error, it finishes the
		// stat(2)-like probes the coprocessor does with rsize
		if p.Code == tftp.ErrEndOfTransfer {
			log.Info("remote ended transfer %v: %v - %v", t.addr, p.Code, p.Msg)
		} else {
			log.Error("remote returned an error: %v - %v", p.Code, p.Msg)
		}
		return statusDone
	default:
		log.Error("expected ACK from %v, got %v", from, pkt)
		return statusDone
	}
}

// readerAck advances the transfer past an acked block and sends the
// next window.
func (s *Server) readerAck(t *transfer, wire uint16) status {
	// widen the wire number against the last acked block; within a
	// transfer block numbers only move forward
	t.block += int64(uint16(wire) - uint16(t.block))

	p := t.params

	// sent enough data for rsize already
	if p.ReadSize > 0 && t.block*p.BlockSize >= p.ReadSize {
		return statusDone
	}

	// the short block ending the file has been acked
	if t.final > 0 && t.block >= t.final {
		return statusDone
	}

	return s.pump(t, t.block)
}

// pump sends the window of data blocks following the acked block:
// wsize blocks, fewer if the file or the requested read size ends
// inside the window.
func (s *Server) pump(t *transfer, acked int64) status {
	p := t.params

	for block := acked; block < acked+p.WindowSize; block++ {
		want := p.BlockSize
		last := false

		// a partial read ends with exactly rsize%blksize bytes,
		// which may be none at all
		if p.ReadSize > 0 && (block+1)*p.BlockSize > p.ReadSize {
			want = p.ReadSize % p.BlockSize
			last = true
		}

		n, err := s.sendBlock(t, block+1, p.Seek+block*p.BlockSize, want, last)
		if err != nil {
			log.Error("sending block %v to %v: %v", block+1, t.addr, err)
			return statusDone
		}

		if last {
			break
		}
		if int64(n) < p.BlockSize {
			// natural end of file
			t.final = block + 1
			break
		}
		if p.ReadSize > 0 && (block+1)*p.BlockSize >= p.ReadSize {
			break
		}
	}

	return statusKeep
}

// sendBlock reads up to want bytes at offset and sends them as the
// numbered data block. A short read at end of file is fine; a short
// read on the block that finishes a bounded read is not, since the
// peer was promised exactly rsize bytes.
func (s *Server) sendBlock(t *transfer, block, offset, want int64, exact bool) (int, error) {
	buf := make([]byte, want)

	n, err := t.file.ReadAt(buf, offset)
	if err != nil && err != io.EOF {
		return 0, err
	}
	if exact && int64(n) < want {
		return 0, fmt.Errorf("requested %v bytes but only read %v from the file", want, n)
	}

	pkt := tftp.Data{Block: uint16(block), Payload: buf[:n]}
	if _, err := t.conn.Send(pkt.Marshal()); err != nil {
		return n, err
	}

	if log.WillLog(log.DEBUG) {
		log.Debug("sent block %v (%v bytes) to %v", block, n, t.addr)
	}

	return n, nil
}
