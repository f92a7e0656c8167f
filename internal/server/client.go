// Copyright (2012) Sandia Corporation.
// Under the terms of Contract DE-AC04-94AL85000 with Sandia Corporation,
// the U.S. Government retains certain rights in this software.

package server

import (
	"os"

	"go.uber.org/multierr"

	"github.com/a-wai/tqftpserv/internal/qrtr"
	"github.com/a-wai/tqftpserv/internal/tftp"
)

// transfer is the per-client state of one in-flight read or write. It
// exclusively owns its socket and file handle; close releases both.
type transfer struct {
	addr   qrtr.Addr
	conn   Conn
	file   *os.File
	params *tftp.Params

	// readers only. block is the highest acked block, widened from
	// the 16 bit wire numbers to keep file offsets right on files
	// past 2^16 blocks. final is the block number of the short block
	// that ends the file, 0 until one has been sent.
	block int64
	final int64
}

// close releases the transfer's socket and then its file handle.
func (t *transfer) close() error {
	return multierr.Append(t.conn.Close(), t.file.Close())
}
