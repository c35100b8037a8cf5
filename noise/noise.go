// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package noise derives the observation model's noise precision from a
// target signal-to-noise ratio and the signal's prior.
package noise

import (
	"fmt"

	"github.com/ADepope/gVAMP/prior"
	"github.com/grailbio/base/errors"
)

// Precision returns the noise precision (inverse variance) that yields
// the provided signal-to-noise ratio for a signal of mt markers drawn
// from the mixture m and observed over n samples:
//
//	snr * n / mt / Σ m.Vars[i]*m.Probs[i]
//
// The mixture must be valid as defined by prior.Mixture.Validate. It
// is also a validation error for the mixture to have no variance, that
// is, for all of its probability mass to lie on spike components.
func Precision(snr float64, m prior.Mixture, mt, n int) (float64, error) {
	if err := m.Validate(); err != nil {
		return 0, errors.E(errors.Invalid, "noise.Precision", err)
	}
	if mt <= 0 {
		return 0, errors.E(errors.Invalid, fmt.Sprintf("noise.Precision: Mt = %d", mt))
	}
	expected := m.ExpectedVariance()
	if !(expected > 0) {
		return 0, errors.E(errors.Invalid, fmt.Sprintf("noise.Precision: expected prior variance is %v", expected))
	}
	return snr * float64(n) / float64(mt) / expected, nil
}
