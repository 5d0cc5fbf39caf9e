//
// Copyright 2023 The dpmech Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//

package bounded

import (
	"fmt"
	"math"

	"github.com/privacylab/dpmech/mechanisms"
)

const (
	// numBins is the number of logarithmic bins per sign. Bin i covers
	// magnitudes in (2^(i-1), 2^i], with bin 0 covering [0, 1]. Keeping the
	// top boundary at 2⁶² makes every bin edge representable in int64.
	numBins = 63

	// defaultSuccessProbability is the probability that no empty bin clears
	// the count threshold in Result.
	defaultSuccessProbability = 1 - 1e-9
)

// LogBounds is the default bounds-discovery collaborator. Inputs are counted
// into logarithmic bins by magnitude and sign; Result noises each bin count
// and reports the range spanned by the extreme bins whose noised counts
// clear a threshold. The threshold is chosen so that with probability
// defaultSuccessProbability no empty bin clears it.
//
// Each input lands in exactly one bin, so the bin counts have L_0
// sensitivity 1 and L_∞ sensitivity 1, and by parallel composition noising
// all of them costs the collaborator's epsilon once.
type LogBounds[T Number] struct {
	epsilon            float64
	successProbability float64
	mech               mechanisms.NumericalMechanism
	positive           [numBins]int64
	negative           [numBins]int64
}

// NewLogBounds constructs a LogBounds collaborator spending the given
// epsilon, with noise calibrated through the given mechanism builder.
func NewLogBounds[T Number](epsilon float64, mechBuilder mechanisms.NumericalMechanismBuilder) (*LogBounds[T], error) {
	mechBuilder.SetEpsilon(epsilon)
	mechBuilder.SetL0Sensitivity(1)
	mechBuilder.SetLInfSensitivity(1)
	mech, err := mechBuilder.Build()
	if err != nil {
		return nil, err
	}
	return &LogBounds[T]{
		epsilon:            epsilon,
		successProbability: defaultSuccessProbability,
		mech:               mech,
	}, nil
}

// Add counts x into its magnitude bin.
func (lb *LogBounds[T]) Add(x T) {
	v := float64(x)
	if v < 0 {
		lb.negative[binIndex(-v)]++
		return
	}
	lb.positive[binIndex(v)]++
}

func binIndex(magnitude float64) int {
	if magnitude <= 1 {
		return 0
	}
	i := int(math.Ceil(math.Log2(magnitude)))
	if i > numBins-1 {
		return numBins - 1
	}
	return i
}

// threshold is the smallest noised count a bin must reach to be considered
// populated. A union bound over all 2·numBins bins keeps the probability
// that an empty bin's Laplace noise clears it below 1-successProbability.
func (lb *LogBounds[T]) threshold() float64 {
	failureProbability := 1 - lb.successProbability
	return math.Log(float64(numBins)/failureProbability) / lb.epsilon
}

// Result noises the bin counts and returns the bounds spanned by the
// extreme bins clearing the threshold: the lower edge of the leftmost such
// bin and the upper edge of the rightmost. It fails when no bin clears the
// threshold, which means the data was too sparse for the configured epsilon.
func (lb *LogBounds[T]) Result() (lower, upper T, err error) {
	threshold := lb.threshold()

	leftmost, rightmost := 0, -1
	// Bins ordered from the most negative to the most positive: negative
	// numBins-1 .. 0, then positive 0 .. numBins-1.
	for pos := 0; pos < 2*numBins; pos++ {
		count := lb.count(pos)
		noised, noiseErr := lb.mech.AddNoiseInt64(count, 1.0)
		if noiseErr != nil {
			return 0, 0, noiseErr
		}
		if float64(noised) >= threshold {
			if rightmost < 0 {
				leftmost = pos
			}
			rightmost = pos
		}
	}
	if rightmost < 0 {
		return 0, 0, fmt.Errorf("Bin count threshold was too large to find approximate bounds. Either run over a larger dataset or decrease success probability and try again.")
	}
	return T(lowerEdge(leftmost)), T(upperEdge(rightmost)), nil
}

func (lb *LogBounds[T]) count(pos int) int64 {
	if pos < numBins {
		return lb.negative[numBins-1-pos]
	}
	return lb.positive[pos-numBins]
}

// lowerEdge returns the smallest magnitude covered by the bin at the given
// ordered position.
func lowerEdge(pos int) float64 {
	if pos < numBins {
		return -math.Exp2(float64(numBins - 1 - pos))
	}
	i := pos - numBins
	if i == 0 {
		return 0
	}
	return math.Exp2(float64(i - 1))
}

// upperEdge returns the largest magnitude covered by the bin at the given
// ordered position.
func upperEdge(pos int) float64 {
	if pos < numBins {
		i := numBins - 1 - pos
		if i == 0 {
			return 0
		}
		return -math.Exp2(float64(i - 1))
	}
	return math.Exp2(float64(pos - numBins))
}
