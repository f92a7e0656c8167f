// Copyright (2012) Sandia Corporation.
// Under the terms of Contract DE-AC04-94AL85000 with Sandia Corporation,
// the U.S. Government retains certain rights in this software.

// Package tftp frames and parses the TFTP-derived protocol spoken over
// the QRTR bus: the six RFC 1350/2347 packet types plus the extension
// options (wsize, rsize, seek, timeoutms) the coprocessors use for
// windowed and partial reads.
package tftp

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"
)

type Opcode uint16

const (
	OpRRQ Opcode = iota + 1
	OpWRQ
	OpData
	OpAck
	OpError
	OpOack
)

func (o Opcode) String() string {
	switch o {
	case OpRRQ:
		return "RRQ"
	case OpWRQ:
		return "WRQ"
	case OpData:
		return "DATA"
	case OpAck:
		return "ACK"
	case OpError:
		return "ERROR"
	case OpOack:
		return "OACK"
	}

	return "Opcode(" + strconv.Itoa(int(o)) + ")"
}

// Error codes. EndOfTransfer is sent by the coprocessor to finish a
// stat-like probe and is not a real error.
const (
	ErrNotDefined    = 0
	ErrNotFound      = 1
	ErrAccess        = 2
	ErrIllegalOp     = 4
	ErrBadOptions    = 8
	ErrEndOfTransfer = 9
)

const modeOctet = "octet"

var (
	errShortPacket  = errors.New("short packet")
	errUnterminated = errors.New("unterminated string in packet")
)

// Option is one key/value pair from a request or OACK, in wire order.
type Option struct {
	Name  string
	Value string
}

// Request is a decoded RRQ or WRQ.
type Request struct {
	Op       Opcode
	Filename string
	Mode     string
	Options  []Option
}

// Data is a decoded DATA packet. Payload aliases the receive buffer.
type Data struct {
	Block   uint16
	Payload []byte
}

// Ack is a decoded ACK packet.
type Ack struct {
	Block uint16
}

// Error is a decoded ERROR packet.
type Error struct {
	Code uint16
	Msg  string
}

// OptionAck is a decoded OACK packet.
type OptionAck struct {
	Options []Option
}

// nextString consumes one NUL terminated string, returning it and the
// remainder of the buffer.
func nextString(b []byte) (string, []byte, error) {
	i := bytes.IndexByte(b, 0)
	if i < 0 {
		return "", nil, errUnterminated
	}
	return string(b[:i]), b[i+1:], nil
}

// parseOptions walks the key/value tail of a request or OACK. The walk
// is bounded by the buffer; a key without a value is an error.
func parseOptions(b []byte) ([]Option, error) {
	var opts []Option

	for len(b) > 0 {
		var opt Option
		var err error

		if opt.Name, b, err = nextString(b); err != nil {
			return nil, err
		}
		if opt.Value, b, err = nextString(b); err != nil {
			return nil, fmt.Errorf("option %q: %v", opt.Name, err)
		}

		opts = append(opts, opt)
	}

	return opts, nil
}

// Parse decodes one datagram into a packet variant. Data payloads
// alias b; strings are copied out of it.
func Parse(b []byte) (interface{}, error) {
	if len(b) < 2 {
		return nil, errShortPacket
	}

	op := Opcode(binary.BigEndian.Uint16(b))
	b = b[2:]

	switch op {
	case OpRRQ, OpWRQ:
		p := Request{Op: op}
		var err error
		if p.Filename, b, err = nextString(b); err != nil {
			return nil, err
		}
		if p.Mode, b, err = nextString(b); err != nil {
			return nil, err
		}
		if p.Options, err = parseOptions(b); err != nil {
			return nil, err
		}
		return p, nil
	case OpData:
		if len(b) < 2 {
			return nil, errShortPacket
		}
		return Data{Block: binary.BigEndian.Uint16(b), Payload: b[2:]}, nil
	case OpAck:
		if len(b) < 2 {
			return nil, errShortPacket
		}
		return Ack{Block: binary.BigEndian.Uint16(b)}, nil
	case OpError:
		if len(b) < 2 {
			return nil, errShortPacket
		}
		p := Error{Code: binary.BigEndian.Uint16(b)}
		// the message should be NUL terminated but some senders
		// omit it on the last string of the packet
		msg := b[2:]
		if i := bytes.IndexByte(msg, 0); i >= 0 {
			msg = msg[:i]
		}
		p.Msg = string(msg)
		return p, nil
	case OpOack:
		opts, err := parseOptions(b)
		if err != nil {
			return nil, err
		}
		return OptionAck{Options: opts}, nil
	}

	return nil, fmt.Errorf("unknown opcode %d", uint16(op))
}

func header(op Opcode, arg uint16) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint16(b, uint16(op))
	binary.BigEndian.PutUint16(b[2:], arg)
	return b
}

func appendOptions(b []byte, opts []Option) []byte {
	for _, opt := range opts {
		b = append(b, opt.Name...)
		b = append(b, 0)
		b = append(b, opt.Value...)
		b = append(b, 0)
	}
	return b
}

// Marshal frames a DATA packet around the payload.
func (p Data) Marshal() []byte {
	return append(header(OpData, p.Block), p.Payload...)
}

// Marshal frames an ACK packet.
func (p Ack) Marshal() []byte {
	return header(OpAck, p.Block)
}

// Marshal frames an ERROR packet.
func (p Error) Marshal() []byte {
	b := append(header(OpError, p.Code), p.Msg...)
	return append(b, 0)
}

// Marshal frames an OACK packet.
func (p OptionAck) Marshal() []byte {
	b := make([]byte, 2)
	binary.BigEndian.PutUint16(b, uint16(OpOack))
	return appendOptions(b, p.Options)
}

// Marshal frames an RRQ or WRQ.
func (p Request) Marshal() []byte {
	b := make([]byte, 2)
	binary.BigEndian.PutUint16(b, uint16(p.Op))
	b = append(b, p.Filename...)
	b = append(b, 0)
	b = append(b, p.Mode...)
	b = append(b, 0)
	return appendOptions(b, p.Options)
}
