// Copyright (2012) Sandia Corporation.
// Under the terms of Contract DE-AC04-94AL85000 with Sandia Corporation,
// the U.S. Government retains certain rights in this software.

package qrtr

import (
	"encoding/binary"
	"fmt"
)

// Control packet commands, from the kernel ABI.
const (
	CtrlHello     = 2
	CtrlBye       = 3
	CtrlNewServer = 4
	CtrlDelServer = 5
	CtrlDelClient = 6
)

// ctrlPktLen is the size of struct qrtr_ctrl_pkt: a le32 command
// followed by a 16 byte union.
const ctrlPktLen = 20

// ControlPacket is one decoded control-port datagram. Which fields are
// meaningful depends on Cmd: BYE carries Node; DEL_CLIENT carries Node
// and Port; NEW_SERVER and DEL_SERVER carry all four.
type ControlPacket struct {
	Cmd      uint32
	Service  uint32
	Instance uint32
	Node     uint32
	Port     uint32
}

// DecodeControl decodes a datagram received from the control port. All
// fields are little-endian per the kernel ABI, unlike the big-endian
// payload protocols running on top of the bus.
func DecodeControl(b []byte) (ControlPacket, error) {
	if len(b) < 4 {
		return ControlPacket{}, fmt.Errorf("short control packet: %d bytes", len(b))
	}

	pkt := ControlPacket{Cmd: binary.LittleEndian.Uint32(b)}

	switch pkt.Cmd {
	case CtrlBye:
		if len(b) < 8 {
			return ControlPacket{}, fmt.Errorf("short BYE packet: %d bytes", len(b))
		}
		pkt.Node = binary.LittleEndian.Uint32(b[4:])
	case CtrlDelClient:
		if len(b) < 12 {
			return ControlPacket{}, fmt.Errorf("short DEL_CLIENT packet: %d bytes", len(b))
		}
		pkt.Node = binary.LittleEndian.Uint32(b[4:])
		pkt.Port = binary.LittleEndian.Uint32(b[8:])
	case CtrlNewServer, CtrlDelServer:
		if len(b) < ctrlPktLen {
			return ControlPacket{}, fmt.Errorf("short server packet: %d bytes", len(b))
		}
		pkt.Service = binary.LittleEndian.Uint32(b[4:])
		pkt.Instance = binary.LittleEndian.Uint32(b[8:])
		pkt.Node = binary.LittleEndian.Uint32(b[12:])
		pkt.Port = binary.LittleEndian.Uint32(b[16:])
	}

	return pkt, nil
}

// encodeControl packs a control packet for the wire. The union leg is
// chosen by Cmd: BYE and DEL_CLIENT address a client, the server
// commands carry the full service tuple.
func encodeControl(pkt ControlPacket) []byte {
	b := make([]byte, ctrlPktLen)
	binary.LittleEndian.PutUint32(b, pkt.Cmd)

	switch pkt.Cmd {
	case CtrlBye:
		binary.LittleEndian.PutUint32(b[4:], pkt.Node)
	case CtrlDelClient:
		binary.LittleEndian.PutUint32(b[4:], pkt.Node)
		binary.LittleEndian.PutUint32(b[8:], pkt.Port)
	default:
		binary.LittleEndian.PutUint32(b[4:], pkt.Service)
		binary.LittleEndian.PutUint32(b[8:], pkt.Instance)
		binary.LittleEndian.PutUint32(b[12:], pkt.Node)
		binary.LittleEndian.PutUint32(b[16:], pkt.Port)
	}

	return b
}
