// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package prior implements spike-and-slab priors: mixtures of
// zero-mean Gaussians in which a component of zero variance is a point
// mass at zero (the spike). It provides seeded sampling from a mixture
// and a numerically stable ratio of two mixture densities.
package prior

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/grailbio/base/errors"
)

// ProbTolerance is the tolerance allowed on the sum of a mixture's
// weights.
const ProbTolerance = 1e-6

// A Mixture is a mixture of K zero-mean Gaussians: component j has
// variance Vars[j] and weight Probs[j].
type Mixture struct {
	Vars  []float64
	Probs []float64
}

// K returns the number of components in the mixture.
func (m Mixture) K() int { return len(m.Vars) }

// Validate checks that the mixture is well formed: at least one
// component, as many weights as variances, non-negative variances and
// weights, and weights that sum to 1.
func (m Mixture) Validate() error {
	if len(m.Vars) == 0 {
		return errors.E(errors.Invalid, "mixture has no components")
	}
	if len(m.Vars) != len(m.Probs) {
		return errors.E(errors.Invalid, fmt.Sprintf("mixture has %d variances and %d weights", len(m.Vars), len(m.Probs)))
	}
	for j, v := range m.Vars {
		if !(v >= 0) || math.IsInf(v, 0) {
			return errors.E(errors.Invalid, fmt.Sprintf("component %d: invalid variance %v", j, v))
		}
	}
	return checkWeights(m.Probs)
}

// checkWeights checks that each weight lies in [0, 1] and that the
// weights sum to 1 within ProbTolerance.
func checkWeights(probs []float64) error {
	var sum float64
	for j, p := range probs {
		if !(p >= 0) || p > 1 {
			return errors.E(errors.Invalid, fmt.Sprintf("component %d: invalid weight %v", j, p))
		}
		sum += p
	}
	if math.Abs(sum-1) > ProbTolerance {
		return errors.E(errors.Invalid, fmt.Sprintf("mixture weights sum to %v", sum))
	}
	return nil
}

// ExpectedVariance returns the variance of the mixture, Σ Vars[j]·Probs[j].
func (m Mixture) ExpectedVariance() float64 {
	var v float64
	for j := range m.Vars {
		v += m.Vars[j] * m.Probs[j]
	}
	return v
}

func (m Mixture) String() string {
	return fmt.Sprintf("vars=%s probs=%s", FormatList(m.Vars), FormatList(m.Probs))
}

// ParseList parses a comma-separated list of numbers, as used to
// specify mixtures on the command line.
func ParseList(s string) ([]float64, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	fields := strings.Split(s, ",")
	vals := make([]float64, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil {
			return nil, errors.E(errors.Invalid, fmt.Sprintf("list element %d", i), err)
		}
		vals[i] = v
	}
	return vals, nil
}

// FormatList formats vals as a comma-separated list.
func FormatList(vals []float64) string {
	fields := make([]string, len(vals))
	for i, v := range vals {
		fields[i] = strconv.FormatFloat(v, 'g', -1, 64)
	}
	return strings.Join(fields, ",")
}
