// Copyright (2012) Sandia Corporation.
// Under the terms of Contract DE-AC04-94AL85000 with Sandia Corporation,
// the U.S. Government retains certain rights in this software.

package translate

import (
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/zstd"
)

// zstdSuffix marks compressed artifacts produced by the image
// packaging tooling.
const zstdSuffix = ".zst"

// decompress streams the compressed file at path into an unlinked
// temporary file and returns the handle rewound to offset 0, so stat
// reports the uncompressed size.
func decompress(path string) (*os.File, error) {
	in, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer in.Close()

	dec, err := zstd.NewReader(in)
	if err != nil {
		return nil, fmt.Errorf("zstd %v: %v", path, err)
	}
	defer dec.Close()

	tmp, err := os.CreateTemp("", "tqftpserv")
	if err != nil {
		return nil, err
	}
	os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, dec); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("zstd %v: %v", path, err)
	}

	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		tmp.Close()
		return nil, err
	}

	return tmp, nil
}
