// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package vecio

import (
	"context"
	"io/ioutil"
	"math"
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/testutil"
	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
)

func TestRoundTrip(t *testing.T) {
	dir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	ctx := context.Background()

	const n = 1000
	r := rand.New(rand.NewSource(1))
	vec := make([]float64, n)
	for i := range vec {
		vec[i] = r.NormFloat64() * math.Pow(10, float64(r.Intn(12)-6))
	}
	path := filepath.Join(dir, "vec")
	assert.NoError(t, Write(ctx, path, vec))
	got, err := Read(ctx, path, 0, n)
	assert.NoError(t, err)
	if len(got) != n {
		t.Fatalf("got %v values, want %v", len(got), n)
	}
	for i := range vec {
		if math.Abs(got[i]-vec[i]) > 1e-5*math.Abs(vec[i]) {
			t.Errorf("value %d: got %v, want %v", i, got[i], vec[i])
		}
	}

	full := filepath.Join(dir, "full")
	assert.NoError(t, Writer{Precision: -1}.Write(ctx, full, vec))
	got, err = Read(ctx, full, 0, n)
	assert.NoError(t, err)
	expect.EQ(t, got, vec)
}

func TestWindow(t *testing.T) {
	dir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	ctx := context.Background()

	vec := make([]float64, 100)
	for i := range vec {
		vec[i] = float64(i)
	}
	path := filepath.Join(dir, "vec")
	assert.NoError(t, Write(ctx, path, vec))
	for _, w := range []struct{ s, m int }{
		{0, 0}, {0, 100}, {10, 20}, {99, 1}, {37, 63}, {100, 0},
	} {
		got, err := Read(ctx, path, w.s, w.m)
		assert.NoError(t, err)
		expect.EQ(t, got, vec[w.s:w.s+w.m])
	}
}

func TestFormat(t *testing.T) {
	dir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	ctx := context.Background()

	path := filepath.Join(dir, "vec")
	assert.NoError(t, Write(ctx, path, []float64{0, 0.5, -1, 1.0 / 3, 1e-5, 123456789, 100000}))
	b, err := ioutil.ReadFile(path)
	assert.NoError(t, err)
	expect.EQ(t, string(b), "0\n0.5\n-1\n0.333333\n1e-05\n1.23457e+08\n100000\n")
}

func TestFormatDefaults(t *testing.T) {
	dir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	ctx := context.Background()

	path := filepath.Join(dir, "vec")
	vec := []float64{0.123456789, 1234.5, math.NaN(), math.Inf(1), math.Inf(-1)}
	assert.NoError(t, Writer{}.Write(ctx, path, vec))
	b, err := ioutil.ReadFile(path)
	assert.NoError(t, err)
	expect.EQ(t, string(b), "0.123457\n1234.5\nnan\ninf\n-inf\n")

	got, err := Read(ctx, path, 0, len(vec))
	assert.NoError(t, err)
	expect.EQ(t, got[:2], []float64{0.123457, 1234.5})
	if !math.IsNaN(got[2]) || !math.IsInf(got[3], 1) || !math.IsInf(got[4], -1) {
		t.Errorf("got %v, want [NaN +Inf -Inf]", got[2:])
	}
}

// TestWhitespace reads files that do not hold one value per line.
func TestWhitespace(t *testing.T) {
	dir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	ctx := context.Background()

	path := filepath.Join(dir, "vec")
	assert.NoError(t, ioutil.WriteFile(path, []byte("  1 2\t3\n\n4\r\n5 6"), 0644))
	got, err := Read(ctx, path, 2, 3)
	assert.NoError(t, err)
	expect.EQ(t, got, []float64{3, 4, 5})
}

func TestReadErrors(t *testing.T) {
	dir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	ctx := context.Background()

	path := filepath.Join(dir, "vec")
	assert.NoError(t, Write(ctx, path, []float64{1, 2, 3}))
	if _, err := Read(ctx, path, 2, 2); !errors.Is(errors.Invalid, err) {
		t.Errorf("got %v, want invalid", err)
	}
	if _, err := Read(ctx, path, -1, 2); !errors.Is(errors.Invalid, err) {
		t.Errorf("got %v, want invalid", err)
	}
	bad := filepath.Join(dir, "bad")
	assert.NoError(t, ioutil.WriteFile(bad, []byte("1\nx\n3\n"), 0644))
	if _, err := Read(ctx, bad, 0, 3); !errors.Is(errors.Invalid, err) {
		t.Errorf("got %v, want invalid", err)
	}
	// Values beyond the window are never parsed.
	got, err := Read(ctx, bad, 0, 1)
	assert.NoError(t, err)
	expect.EQ(t, got, []float64{1})
	if _, err := Read(ctx, filepath.Join(dir, "missing"), 0, 1); err == nil {
		t.Error("expected error reading a missing file")
	}
}

func TestShardPath(t *testing.T) {
	expect.EQ(t, ShardPath("out/signal", 3, 16), "out/signal-0003-of-0016")
}
