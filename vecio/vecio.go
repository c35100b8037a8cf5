// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package vecio reads and writes numeric vectors in the plain text
// format shared by the solver's inputs and outputs: a sequence of
// whitespace-separated numbers in index order, with no header.
//
// A read selects a window [S, S+M) of a global file, so that every rank
// of a group can read its own partition out of one shared full-length
// file. Files are accessed through GRAIL's file library, so paths may
// be URLs to an object store such as S3 once an implementation is
// registered.
package vecio

import (
	"bufio"
	"context"
	"fmt"
	"math"
	"strconv"

	"github.com/ADepope/gVAMP/guard"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
)

// DefaultPrecision is the number of significant digits written by
// Write: the default precision of C++ output streams, which produced
// the files this package must interoperate with.
const DefaultPrecision = 6

// Read returns the values at positions [s, s+m) of the vector stored
// at path. Reading stops once the window has been filled. It is an
// error for the file to hold fewer than s+m values.
func Read(ctx context.Context, path string, s, m int) (vec []float64, err error) {
	if s < 0 || m < 0 {
		return nil, errors.E(errors.Invalid, fmt.Sprintf("vecio.Read %s: invalid window S=%d M=%d", path, s, m))
	}
	f, err := file.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := f.Close(ctx); cerr != nil {
			log.Error.Printf("%s: close: %v", f.Name(), cerr)
		}
	}()
	if vec, err = guard.Float64s(m); err != nil {
		return nil, err
	}
	scan := bufio.NewScanner(f.Reader(ctx))
	scan.Split(bufio.ScanWords)
	var i, n int
	for ; n < m && scan.Scan(); i++ {
		if i < s {
			continue
		}
		vec[n], err = strconv.ParseFloat(scan.Text(), 64)
		if err != nil {
			return nil, errors.E(errors.Invalid, fmt.Sprintf("vecio.Read %s: value %d", path, i), err)
		}
		n++
	}
	if err := scan.Err(); err != nil {
		return nil, errors.E(fmt.Sprintf("vecio.Read %s", path), err)
	}
	if n < m {
		return nil, errors.E(errors.Invalid, fmt.Sprintf("vecio.Read %s: file has %d values, need %d", path, i, s+m))
	}
	return vec, nil
}

// A Writer writes vectors one value per line. Non-finite values are
// spelled nan, inf and -inf, as C++ output streams spell them.
type Writer struct {
	// Precision is the number of significant digits written for each
	// value. Zero selects DefaultPrecision. A negative precision writes
	// the fewest digits that read back to the identical value.
	Precision int
}

// Write writes vec to path using DefaultPrecision.
func Write(ctx context.Context, path string, vec []float64) error {
	return Writer{Precision: DefaultPrecision}.Write(ctx, path, vec)
}

// Write writes vec to path, one value per line. If the write fails,
// the partially written file is discarded.
func (w Writer) Write(ctx context.Context, path string, vec []float64) error {
	f, err := file.Create(ctx, path)
	if err != nil {
		return err
	}
	prec := w.Precision
	if prec == 0 {
		prec = DefaultPrecision
	}
	var (
		bw  = bufio.NewWriter(f.Writer(ctx))
		buf []byte
	)
	for _, v := range vec {
		buf = appendFloat(buf[:0], v, prec)
		buf = append(buf, '\n')
		if _, err = bw.Write(buf); err != nil {
			break
		}
	}
	if err == nil {
		err = bw.Flush()
	}
	if err != nil {
		f.Discard(ctx)
		return errors.E(fmt.Sprintf("vecio.Write %s", path), err)
	}
	return f.Close(ctx)
}

func appendFloat(buf []byte, v float64, prec int) []byte {
	switch {
	case math.IsNaN(v):
		return append(buf, "nan"...)
	case math.IsInf(v, 1):
		return append(buf, "inf"...)
	case math.IsInf(v, -1):
		return append(buf, "-inf"...)
	}
	return strconv.AppendFloat(buf, v, 'g', prec, 64)
}

// ShardPath returns the path of the shard-th of n files with the
// provided prefix: "prefix-nnnn-of-mmmm".
func ShardPath(prefix string, shard, n int) string {
	return fmt.Sprintf("%s-%04d-of-%04d", prefix, shard, n)
}
