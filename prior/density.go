// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package prior

import (
	"fmt"
	"math"

	"github.com/grailbio/base/errors"
	"gonum.org/v1/gonum/floats"
)

// DensityRatio returns p_nom(x)/p_den(x), where p_nom and p_den are
// mixtures of zero-mean Gaussians with variances etaNom and etaDen and
// shared weights pi. The weights are checked as in Mixture.Validate.
//
// Each mixture's exponential terms are taken relative to its
// largest-variance component, and the two are reconciled by a single
// residual exponential. The ratio therefore stays finite where the
// individual densities over- or underflow.
func DensityRatio(x float64, etaNom, etaDen, pi []float64) (float64, error) {
	k := len(pi)
	if k == 0 || len(etaNom) != k || len(etaDen) != k {
		return 0, errors.E(errors.Invalid, fmt.Sprintf("prior.DensityRatio: mismatched lengths %d, %d, %d", len(etaNom), len(etaDen), k))
	}
	if err := checkWeights(pi); err != nil {
		return 0, errors.E(errors.Invalid, "prior.DensityRatio", err)
	}
	for j := 0; j < k; j++ {
		if !(etaNom[j] > 0) || !(etaDen[j] > 0) {
			return 0, errors.E(errors.Invalid, fmt.Sprintf("prior.DensityRatio: component %d: non-positive variance", j))
		}
	}
	var (
		x2     = x * x / 2
		nomMax = floats.Max(etaNom)
		denMax = floats.Max(etaDen)
		nom    = scaledDensity(x2, etaNom, nomMax, pi)
		den    = scaledDensity(x2, etaDen, denMax, pi)
	)
	if den == 0 {
		return 0, errors.E(errors.Invalid, fmt.Sprintf("prior.DensityRatio: denominator density underflows at x=%v", x))
	}
	ratio := nom / den * math.Exp(-x2*(denMax-nomMax)/denMax/nomMax)
	if math.IsNaN(ratio) || math.IsInf(ratio, 0) {
		return 0, errors.E(errors.Invalid, fmt.Sprintf("prior.DensityRatio: ratio is not finite at x=%v", x))
	}
	return ratio, nil
}

// scaledDensity returns the mixture density at x, up to the factor
// exp(-x²/(2 max)) and the Gaussian normalization constant.
func scaledDensity(x2 float64, eta []float64, max float64, pi []float64) float64 {
	var d float64
	for j := range eta {
		d += pi[j] / math.Sqrt(eta[j]) * math.Exp(-x2*(max-eta[j])/eta[j]/max)
	}
	return d
}
