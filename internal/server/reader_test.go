// Copyright (2012) Sandia Corporation.
// Under the terms of Contract DE-AC04-94AL85000 with Sandia Corporation,
// the U.S. Government retains certain rights in this software.

package server

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/a-wai/tqftpserv/internal/qrtr"
	"github.com/a-wai/tqftpserv/internal/tftp"
)

var peer = qrtr.Addr{Node: 2, Port: 1000}

// rrq issues a read request and returns its transfer socket.
func rrq(t *testing.T, e *env, name string, opts ...tftp.Option) *fakeConn {
	t.Helper()

	e.request(tftp.Request{Op: tftp.OpRRQ, Filename: name, Mode: "octet",
		Options: opts}.Marshal(), peer)

	if len(e.dialed) == 0 {
		t.Fatal("no transfer socket dialed")
	}
	return e.dialed[len(e.dialed)-1]
}

func TestReadNoOptions(t *testing.T) {
	e := newEnv(t)
	e.write(t, "hello.txt", "abc")

	c := rrq(t, e, "/hello.txt")

	// no OACK handshake: block 1 comes immediately
	sent := c.take()
	if len(sent) != 1 {
		t.Fatal("sent:", len(sent))
	}
	d := mustData(t, sent[0])
	if d.Block != 1 || string(d.Payload) != "abc" {
		t.Fatalf("got block %v payload %q", d.Block, d.Payload)
	}

	e.ackReader(t, c, peer, 1)

	if len(c.take()) != 0 {
		t.Fatal("data after the final ack")
	}
	if len(e.s.readers) != 0 {
		t.Fatal("reader not reaped")
	}
	if c.closed != 1 {
		t.Fatal("socket closed", c.closed, "times")
	}
}

// The windowed partial read from the protocol docs: blksize=8 wsize=2
// rsize=20 seek=4 over a 100 byte file.
func TestReadWindowed(t *testing.T) {
	e := newEnv(t)
	e.write(t, "big.bin", strings.Repeat("A", 100))

	c := rrq(t, e, "/big.bin",
		tftp.Option{Name: "blksize", Value: "8"},
		tftp.Option{Name: "wsize", Value: "2"},
		tftp.Option{Name: "rsize", Value: "20"},
		tftp.Option{Name: "seek", Value: "4"})

	oack := mustOack(t, c.take()[0])
	want := []tftp.Option{
		{Name: "blksize", Value: "8"},
		{Name: "wsize", Value: "2"},
		{Name: "rsize", Value: "20"},
		{Name: "seek", Value: "4"},
	}
	if diff := cmp.Diff(want, oack.Options); diff != "" {
		t.Fatalf("oack mismatch (-want +got):\n%v", diff)
	}

	e.ackReader(t, c, peer, 0)

	sent := c.take()
	if len(sent) != 2 {
		t.Fatal("window sent", len(sent), "blocks")
	}
	for i, b := range sent {
		d := mustData(t, b)
		if d.Block != uint16(i+1) || string(d.Payload) != "AAAAAAAA" {
			t.Fatalf("block %v: %v %q", i+1, d.Block, d.Payload)
		}
	}

	e.ackReader(t, c, peer, 2)

	sent = c.take()
	if len(sent) != 1 {
		t.Fatal("window sent", len(sent), "blocks")
	}
	d := mustData(t, sent[0])
	if d.Block != 3 || string(d.Payload) != "AAAA" {
		t.Fatalf("got block %v payload %q", d.Block, d.Payload)
	}

	e.ackReader(t, c, peer, 3)

	if len(e.s.readers) != 0 {
		t.Fatal("reader not reaped")
	}
}

func TestReadSeek(t *testing.T) {
	e := newEnv(t)
	e.write(t, "digits.txt", "0123456789")

	c := rrq(t, e, "/digits.txt", tftp.Option{Name: "seek", Value: "4"})
	c.take() // oack

	e.ackReader(t, c, peer, 0)

	d := mustData(t, c.take()[0])
	if string(d.Payload) != "456789" {
		t.Fatalf("payload %q", d.Payload)
	}

	e.ackReader(t, c, peer, 1)
	if len(e.s.readers) != 0 {
		t.Fatal("reader not reaped")
	}
}

// A read size landing exactly on a block boundary completes on the ack
// of the last full block.
func TestReadRsizeExactMultiple(t *testing.T) {
	e := newEnv(t)
	e.write(t, "big.bin", strings.Repeat("B", 100))

	c := rrq(t, e, "/big.bin",
		tftp.Option{Name: "blksize", Value: "8"},
		tftp.Option{Name: "rsize", Value: "16"})
	c.take() // oack

	e.ackReader(t, c, peer, 0)
	total := 0
	for _, b := range c.take() {
		total += len(mustData(t, b).Payload)
	}

	e.ackReader(t, c, peer, 1)
	for _, b := range c.take() {
		total += len(mustData(t, b).Payload)
	}

	e.ackReader(t, c, peer, 2)
	if sent := c.take(); len(sent) != 0 {
		t.Fatal("data after rsize was satisfied:", len(sent))
	}
	if total != 16 {
		t.Fatal("delivered", total, "bytes")
	}
	if len(e.s.readers) != 0 {
		t.Fatal("reader not reaped")
	}
}

func TestReadTsize(t *testing.T) {
	e := newEnv(t)
	e.write(t, "hello.txt", "abc")

	c := rrq(t, e, "/hello.txt", tftp.Option{Name: "tsize", Value: "0"})

	oack := mustOack(t, c.take()[0])
	want := []tftp.Option{{Name: "tsize", Value: "3"}}
	if diff := cmp.Diff(want, oack.Options); diff != "" {
		t.Fatalf("oack mismatch (-want +got):\n%v", diff)
	}
}

func TestReadSpoofedSource(t *testing.T) {
	e := newEnv(t)
	e.write(t, "hello.txt", "abc")

	c := rrq(t, e, "/hello.txt")
	c.take()

	tr := e.s.readers[c.fd]
	c.push(tftp.Ack{Block: 1}.Marshal(), qrtr.Addr{Node: 9, Port: 9})
	if st := e.s.handleReader(tr); st != statusKeep {
		t.Fatal("spoofed ack ended the transfer")
	}

	if len(c.take()) != 0 {
		t.Fatal("spoofed ack moved the window")
	}
	if len(e.s.readers) != 1 {
		t.Fatal("reader gone")
	}
}

// Remote "End of Transfer" errors finish stat-like probes and reap the
// reader without further data.
func TestReadPeerEndOfTransfer(t *testing.T) {
	e := newEnv(t)
	e.write(t, "hello.txt", "abc")

	c := rrq(t, e, "/hello.txt")
	c.take()

	tr := e.s.readers[c.fd]
	c.push(tftp.Error{Code: tftp.ErrEndOfTransfer, Msg: "End of Transfer"}.Marshal(), peer)
	if st := e.s.handleReader(tr); st != statusDone {
		t.Fatal("peer error did not end the transfer")
	}
	e.s.reap(e.s.readers, c.fd)

	if len(c.take()) != 0 {
		t.Fatal("data after peer error")
	}
	if c.closed != 1 {
		t.Fatal("socket closed", c.closed, "times")
	}
}

// Any opcode other than ACK or ERROR tears the reader down without an
// error packet.
func TestReadWrongOpcode(t *testing.T) {
	e := newEnv(t)
	e.write(t, "hello.txt", "abc")

	c := rrq(t, e, "/hello.txt")
	c.take()

	tr := e.s.readers[c.fd]
	c.push(tftp.Data{Block: 1, Payload: []byte("x")}.Marshal(), peer)
	if st := e.s.handleReader(tr); st != statusDone {
		t.Fatal("wrong opcode kept the transfer")
	}

	if len(c.take()) != 0 {
		t.Fatal("reader answered a protocol error")
	}
}

// A file that is an exact multiple of blksize ends with an empty data
// block, acked like any other.
func TestReadExactMultipleFile(t *testing.T) {
	e := newEnv(t)
	e.write(t, "even.bin", strings.Repeat("C", 16))

	c := rrq(t, e, "/even.bin", tftp.Option{Name: "blksize", Value: "8"})
	c.take() // oack

	e.ackReader(t, c, peer, 0)
	d := mustData(t, c.take()[0])
	if d.Block != 1 || len(d.Payload) != 8 {
		t.Fatalf("block %v payload %v bytes", d.Block, len(d.Payload))
	}

	e.ackReader(t, c, peer, 1)
	d = mustData(t, c.take()[0])
	if d.Block != 2 || len(d.Payload) != 8 {
		t.Fatalf("block %v payload %v bytes", d.Block, len(d.Payload))
	}

	e.ackReader(t, c, peer, 2)
	d = mustData(t, c.take()[0])
	if d.Block != 3 || len(d.Payload) != 0 {
		t.Fatalf("block %v payload %v bytes", d.Block, len(d.Payload))
	}

	e.ackReader(t, c, peer, 3)
	if len(e.s.readers) != 0 {
		t.Fatal("reader not reaped")
	}
}
