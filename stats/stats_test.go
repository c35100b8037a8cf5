// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package stats

import (
	"math"
	"testing"

	fuzz "github.com/google/gofuzz"
)

func TestStats(t *testing.T) {
	coll := NewMap()
	var (
		x = coll.Int("x")
		_ = coll.Int("y")
	)
	if got, want := x.Get(), int64(0); got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	x.Add(123)
	x.Add(123)
	if got, want := x.Get(), int64(123*2); got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	all := make(Values)
	coll.AddAll(all)
	coll.AddAll(all)
	if got, want := len(all), 2; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := all["x"], int64(123*4); got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := all.String(), "x:492 y:0"; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	other := Values{"x": 8, "z": 1}
	all.Merge(other)
	if got, want := all.String(), "x:500 y:0 z:1"; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestNilMap(t *testing.T) {
	var m *Map
	m.Int("x").Add(1)
	if got, want := m.Int("x").Get(), int64(0); got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	m.AddAll(make(Values))
}

func TestPopStdDev(t *testing.T) {
	if got, want := PopStdDev([]float64{2, 4, 4, 4, 5, 5, 7, 9}), 2.0; math.Abs(got-want) > 1e-12 {
		t.Errorf("got %v, want %v", got, want)
	}
	if got := PopStdDev(nil); !math.IsNaN(got) {
		t.Errorf("got %v, want NaN", got)
	}
	if got, want := PopStdDev([]float64{42}), 0.0; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := PopStdDev([]float64{3, 3, 3}), 0.0; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}

// TestPopStdDevOffset checks that a large common offset does not
// destroy the result, as it does with sqrt(E[x²]-E[x]²).
func TestPopStdDevOffset(t *testing.T) {
	base := []float64{2, 4, 4, 4, 5, 5, 7, 9}
	shifted := make([]float64, len(base))
	for i, x := range base {
		shifted[i] = x + 1e9
	}
	if got, want := PopStdDev(shifted), 2.0; math.Abs(got-want) > 1e-6 {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestPopStdDevShiftInvariant(t *testing.T) {
	fz := fuzz.NewWithSeed(1234)
	fz.NilChance(0)
	fz.NumElements(2, 100)
	for i := 0; i < 100; i++ {
		var (
			vec    []float64
			offset float64
		)
		fz.Fuzz(&vec)
		for j := range vec {
			vec[j] = math.Mod(vec[j], 1e3)
			if math.IsNaN(vec[j]) || math.IsInf(vec[j], 0) {
				vec[j] = 0
			}
		}
		fz.Fuzz(&offset)
		offset = math.Mod(offset, 1e3)
		if math.IsNaN(offset) {
			offset = 0
		}
		shifted := make([]float64, len(vec))
		for j := range vec {
			shifted[j] = vec[j] + offset
		}
		a, b := PopStdDev(vec), PopStdDev(shifted)
		if math.Abs(a-b) > 1e-6*(1+a) {
			t.Errorf("stdev not shift invariant: %v vs %v", a, b)
		}
	}
}

func TestMean(t *testing.T) {
	if got, want := Mean([]float64{1, 2, 3, 4}), 2.5; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if got := Mean(nil); !math.IsNaN(got) {
		t.Errorf("got %v, want NaN", got)
	}
}
