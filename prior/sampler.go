// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package prior

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/ADepope/gVAMP/guard"
	"github.com/ADepope/gVAMP/stats"
	"github.com/grailbio/base/errors"
	"github.com/spaolacci/murmur3"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"
)

// A Sampler draws from mixtures using a single random engine that is
// seeded once. Samplers with the same seed produce the same sequence
// of draws. A Sampler is not safe for concurrent use.
type Sampler struct {
	src   rand.Source
	unif  distuv.Uniform
	draws *stats.Int
}

// NewSampler returns a sampler seeded with the provided seed.
func NewSampler(seed uint64) *Sampler {
	src := rand.NewSource(seed)
	return &Sampler{
		src:  src,
		unif: distuv.Uniform{Min: 0, Max: 1, Src: src},
	}
}

// Count arranges for the number of draws to be added to the provided
// counter.
func (s *Sampler) Count(c *stats.Int) {
	s.draws = c
}

// SeedFor derives the seed of a rank's sampler from a run seed, so
// that ranks draw independent but reproducible streams.
func SeedFor(seed uint64, rank int) uint64 {
	var b [16]byte
	binary.LittleEndian.PutUint64(b[:8], seed)
	binary.LittleEndian.PutUint64(b[8:], uint64(rank))
	return murmur3.Sum64WithSeed(b[:], uint32(seed>>32))
}

// Sample draws one value from the mixture m. A uniform variate u
// selects the first component whose cumulative weight reaches u; a
// spike component yields exactly 0, any other component a draw from
// N(0, Vars[j]).
func (s *Sampler) Sample(m Mixture) (float64, error) {
	if err := m.Validate(); err != nil {
		return 0, err
	}
	return s.sample(m), nil
}

// Simulate returns n independent draws from the mixture m.
func (s *Sampler) Simulate(m Mixture, n int) ([]float64, error) {
	if n < 0 {
		return nil, errors.E(errors.Invalid, fmt.Sprintf("simulate %d draws", n))
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	signal, err := guard.Float64s(n)
	if err != nil {
		return nil, err
	}
	for i := range signal {
		signal[i] = s.sample(m)
	}
	return signal, nil
}

// sample draws from a validated mixture.
func (s *Sampler) sample(m Mixture) float64 {
	s.draws.Add(1)
	j := choose(m.Probs, s.unif.Rand())
	if m.Vars[j] == 0 {
		return 0
	}
	return distuv.Normal{Mu: 0, Sigma: math.Sqrt(m.Vars[j]), Src: s.src}.Rand()
}

// choose returns the first index whose cumulative weight reaches u.
// If rounding leaves u above the total weight, the last component with
// positive weight is chosen.
func choose(probs []float64, u float64) int {
	var (
		cum  float64
		last int
	)
	for j, p := range probs {
		if p <= 0 {
			continue
		}
		cum += p
		last = j
		if u <= cum {
			return j
		}
	}
	return last
}
