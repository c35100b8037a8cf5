// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package guard implements the fail-fast policy of the numeric layer.
// Infrastructure failures (a failed collective, an allocation failure,
// an overflowing narrowing cast, a broken internal invariant) are
// represented as errors with severity errors.Fatal. They are never
// retried: a fatal error on any rank terminates the whole group, since
// resuming an iterative solver after a desynchronized collective is
// unsafe.
package guard

import (
	"context"
	"fmt"
	"math"
	"path/filepath"
	"runtime"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
)

// fatalErr is used to match fatal errors.
var fatalErr = errors.E(errors.Fatal)

// An Aborter is a process group that can be torn down as a whole.
type Aborter interface {
	Abort(ctx context.Context, err error)
}

// IsFatal tells whether err carries the fatal severity.
func IsFatal(err error) bool {
	return err != nil && errors.Match(fatalErr, err)
}

// E constructs a fatal error from the provided arguments, as
// interpreted by errors.E.
func E(args ...interface{}) error {
	return errors.E(append([]interface{}{errors.Fatal}, args...)...)
}

// Fatalf returns a fatal error annotated with the caller's site.
func Fatalf(format string, args ...interface{}) error {
	return fatalAt(2, fmt.Sprintf(format, args...), nil)
}

// Collective checks the result of a collective call. A non-nil error
// is logged with the calling site and returned as a fatal error. Errors
// that are already fatal are passed through.
func Collective(err error) error {
	if err == nil {
		return nil
	}
	if IsFatal(err) {
		return err
	}
	return fatalAt(2, "collective failed", err)
}

// Int32 narrows n to an int32, returning a fatal error if the value
// does not fit.
func Int32(n int) (int32, error) {
	if n > math.MaxInt32 || n < math.MinInt32 {
		return 0, fatalAt(2, fmt.Sprintf("integer overflow: %d does not fit in type int32", n), nil)
	}
	return int32(n), nil
}

// Float64s allocates a vector of n float64s. Negative sizes and
// allocation failures reported by the runtime are returned as fatal
// errors.
func Float64s(n int) (vec []float64, err error) {
	if n < 0 {
		return nil, fatalAt(2, fmt.Sprintf("allocation of %d float64s", n), nil)
	}
	site := caller(2)
	defer func() {
		if e := recover(); e != nil {
			vec = nil
			err = fatal(site, fmt.Sprintf("allocation of %d float64s failed: %v", n, e), nil)
		}
	}()
	return make([]float64, n), nil
}

// Abort implements the top-level fatal policy: the failure is logged
// and the group is aborted so that every other rank observes a fatal
// error on its next (or pending) collective.
func Abort(ctx context.Context, group Aborter, err error) {
	log.Error.Printf("*FATAL*: aborting group: %v", err)
	group.Abort(ctx, err)
}

func fatalAt(skip int, msg string, err error) error {
	return fatal(caller(skip+1), msg, err)
}

// caller returns the file:line of the frame skip levels above caller
// itself, counted as by runtime.Caller.
func caller(skip int) string {
	if _, file, line, ok := runtime.Caller(skip); ok {
		return fmt.Sprintf("%s:%d", filepath.Base(file), line)
	}
	return "unknown site"
}

func fatal(site, msg string, err error) error {
	log.Error.Printf("*FATAL*: %s at %s", msg, site)
	if err == nil {
		return errors.E(errors.Fatal, fmt.Sprintf("%s (%s)", msg, site))
	}
	return errors.E(errors.Fatal, fmt.Sprintf("%s (%s)", msg, site), err)
}
