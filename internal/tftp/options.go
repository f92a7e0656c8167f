// Copyright (2012) Sandia Corporation.
// Under the terms of Contract DE-AC04-94AL85000 with Sandia Corporation,
// the U.S. Government retains certain rights in this software.

package tftp

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Recognized option names. Names are matched case sensitively; the
// transfer mode is not.
const (
	optBlockSize    = "blksize"
	optTimeoutMs    = "timeoutms"
	optTransferSize = "tsize"
	optWindowSize   = "wsize"
	optReadSize     = "rsize"
	optSeek         = "seek"
)

const (
	DefaultBlockSize = 512
	DefaultTimeoutMs = 1000

	// MinBlockSize is the RFC 2347 floor.
	MinBlockSize = 8

	// MaxBlockSize caps blksize at what one QRTR datagram can carry
	// after the 4 byte DATA header.
	MaxBlockSize = 65480
)

// Params are the negotiated parameters of one transfer.
type Params struct {
	BlockSize  int64
	TimeoutMs  int64
	WindowSize int64
	ReadSize   int64 // 0 means the full file
	Seek       int64

	// TransferSize is the file size to report for tsize, -1 until
	// known. Set by RRQ setup after a successful stat.
	TransferSize int64

	hasBlockSize  bool
	hasTimeoutMs  bool
	hasTsize      bool
	hasWindowSize bool
	hasReadSize   bool
	hasSeek       bool
}

// OctetMode reports whether mode is the (case insensitive) octet mode,
// the only transfer mode the server accepts.
func OctetMode(mode string) bool {
	return strings.EqualFold(mode, modeOctet)
}

// NegotiateOptions applies a request's options on top of the defaults.
// Unknown options are ignored. A value that does not parse to an
// acceptable integer rejects the whole request so the caller can answer
// with an ERROR packet.
func NegotiateOptions(opts []Option) (*Params, error) {
	p := &Params{
		BlockSize:    DefaultBlockSize,
		TimeoutMs:    DefaultTimeoutMs,
		WindowSize:   1,
		TransferSize: -1,
	}

	for _, opt := range opts {
		switch opt.Name {
		case optBlockSize, optTimeoutMs, optTransferSize, optWindowSize, optReadSize, optSeek:
		default:
			// ignore unknown options
			continue
		}

		v, err := atoi(opt.Value)
		if err != nil {
			return nil, fmt.Errorf("option %v: %v", opt.Name, err)
		}

		switch opt.Name {
		case optBlockSize:
			if v < MinBlockSize {
				return nil, fmt.Errorf("blksize %v below minimum %v", v, MinBlockSize)
			}
			if v > MaxBlockSize {
				v = MaxBlockSize
			}
			p.BlockSize = v
			p.hasBlockSize = true
		case optTimeoutMs:
			if v < 0 {
				return nil, fmt.Errorf("negative timeoutms %v", v)
			}
			p.TimeoutMs = v
			p.hasTimeoutMs = true
		case optTransferSize:
			// the value on request is a placeholder; we answer
			// with the real size for reads
			if v < 0 {
				return nil, fmt.Errorf("negative tsize %v", v)
			}
			p.hasTsize = true
		case optWindowSize:
			if v < 1 {
				return nil, fmt.Errorf("wsize %v below minimum 1", v)
			}
			p.WindowSize = v
			p.hasWindowSize = true
		case optReadSize:
			if v < 0 {
				return nil, fmt.Errorf("negative rsize %v", v)
			}
			p.ReadSize = v
			p.hasReadSize = true
		case optSeek:
			if v < 0 {
				return nil, fmt.Errorf("negative seek %v", v)
			}
			p.Seek = v
			p.hasSeek = true
		}
	}

	return p, nil
}

// Echo returns the OACK option list: every recognized option that was
// present in the request, with the value the server settled on, in the
// order the original server emits them. tsize appears only once the
// file size is known.
func (p *Params) Echo() []Option {
	var opts []Option

	add := func(name string, v int64) {
		opts = append(opts, Option{Name: name, Value: strconv.FormatInt(v, 10)})
	}

	if p.hasBlockSize {
		add(optBlockSize, p.BlockSize)
	}
	if p.hasTimeoutMs {
		add(optTimeoutMs, p.TimeoutMs)
	}
	if p.hasTsize && p.TransferSize >= 0 {
		add(optTransferSize, p.TransferSize)
	}
	if p.hasWindowSize {
		add(optWindowSize, p.WindowSize)
	}
	if p.hasReadSize {
		add(optReadSize, p.ReadSize)
	}
	if p.hasSeek {
		add(optSeek, p.Seek)
	}

	return opts
}

// WantTransferSize reports whether the request asked for tsize.
func (p *Params) WantTransferSize() bool {
	return p.hasTsize
}

// atoi converts like the C library's atoi: optional leading whitespace
// and sign, then digits up to the first non-digit character. The
// coprocessors depend on trailing garbage being ignored. Unlike atoi,
// overflow is an error instead of wrapping.
func atoi(s string) (int64, error) {
	i := 0
	for i < len(s) && (s[i] == ' ' || s[i] == '\t' || s[i] == '\n' ||
		s[i] == '\v' || s[i] == '\f' || s[i] == '\r') {
		i++
	}

	neg := false
	if i < len(s) && (s[i] == '+' || s[i] == '-') {
		neg = s[i] == '-'
		i++
	}

	var n int64
	for ; i < len(s) && s[i] >= '0' && s[i] <= '9'; i++ {
		d := int64(s[i] - '0')
		if n > (math.MaxInt64-d)/10 {
			return 0, fmt.Errorf("value out of range: %q", s)
		}
		n = n*10 + d
	}

	if neg {
		n = -n
	}
	return n, nil
}
