// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package stats

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// Mean returns the arithmetic mean of vec, or NaN if vec is empty.
func Mean(vec []float64) float64 {
	if len(vec) == 0 {
		return math.NaN()
	}
	return stat.Mean(vec, nil)
}

// PopStdDev returns the population standard deviation of vec (the
// variance is normalized by n, not n-1). It uses a compensated
// two-pass algorithm, so that large offsets do not cancel out the
// variance. PopStdDev returns NaN for an empty vector and 0 for a
// single value.
func PopStdDev(vec []float64) float64 {
	n := len(vec)
	switch n {
	case 0:
		return math.NaN()
	case 1:
		return 0
	}
	_, variance := stat.MeanVariance(vec, nil)
	variance *= float64(n-1) / float64(n)
	if variance < 0 {
		variance = 0
	}
	return math.Sqrt(variance)
}
