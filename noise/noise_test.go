// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package noise

import (
	"testing"

	"github.com/ADepope/gVAMP/prior"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/testutil/assert"
)

func TestPrecision(t *testing.T) {
	for _, c := range []struct {
		snr   float64
		m     prior.Mixture
		mt, n int
		want  float64
	}{
		{1, prior.Mixture{Vars: []float64{1}, Probs: []float64{1}}, 10, 100, 10},
		{0.5, prior.Mixture{Vars: []float64{0, 2}, Probs: []float64{0.75, 0.25}}, 1000, 500, 0.5},
		{2, prior.Mixture{Vars: []float64{0, 1, 4}, Probs: []float64{0.5, 0.25, 0.25}}, 100, 125, 2},
	} {
		got, err := Precision(c.snr, c.m, c.mt, c.n)
		assert.NoError(t, err)
		if got != c.want {
			t.Errorf("Precision(%v, %v, %d, %d): got %v, want %v", c.snr, c.m, c.mt, c.n, got, c.want)
		}
	}
}

func TestPrecisionInvalid(t *testing.T) {
	for _, c := range []struct {
		m  prior.Mixture
		mt int
	}{
		{prior.Mixture{Vars: []float64{0, 5}, Probs: []float64{1, 0}}, 10},
		{prior.Mixture{Vars: []float64{1, 2}, Probs: []float64{1}}, 10},
		{prior.Mixture{Vars: []float64{1}, Probs: []float64{1}}, 0},
		{prior.Mixture{}, 10},
		{prior.Mixture{Vars: []float64{1, 2}, Probs: []float64{0.9, 0.9}}, 10},
		{prior.Mixture{Vars: []float64{1, 2}, Probs: []float64{2, -0.5}}, 10},
		{prior.Mixture{Vars: []float64{-1, 2}, Probs: []float64{0.5, 0.5}}, 10},
	} {
		if _, err := Precision(1, c.m, c.mt, 100); !errors.Is(errors.Invalid, err) {
			t.Errorf("%v, Mt=%d: got %v, want invalid", c.m, c.mt, err)
		}
	}
}
