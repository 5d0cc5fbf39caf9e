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

package distributions

import (
	"math"

	"github.com/privacylab/dpmech/rand"
)

// granularityParam determines the resolution of the numerical noise that is
// being generated relative to the L_1 sensitivity and privacy parameter
// epsilon. Larger values result in more fine grained noise, but increase the
// chance of sampling inaccuracies due to overflows. The probability of an
// overflow is less than 2⁻¹⁰⁰⁰, if the granularity parameter is set to a
// value of 2⁴⁰ or less and the epsilon of the sampled distribution is at
// least 2⁻⁵⁰.
//
// This parameter must be a power of 2.
var granularityParam = math.Exp2(40)

// LaplaceDistribution samples Laplace noise of diversity
// l1Sensitivity/epsilon on a power-of-two grid. The sampling is based on a
// two-sided geometric distribution, which avoids generating the dense set of
// float64 outputs that a direct transform of a uniform draw would produce.
type LaplaceDistribution struct {
	epsilon       float64
	l1Sensitivity float64
	granularity   float64
}

// NewLaplace returns a secure Laplace distribution with the given epsilon
// and L_1 sensitivity. Parameter validation is owned by the mechanism
// builders; both values must be positive, epsilon at least 2⁻⁵⁰, and the
// resulting diversity representable (see GeometricLambda).
func NewLaplace(epsilon, l1Sensitivity float64) *LaplaceDistribution {
	return &LaplaceDistribution{
		epsilon:       epsilon,
		l1Sensitivity: l1Sensitivity,
		granularity:   CeilPowerOfTwo((l1Sensitivity / epsilon) / granularityParam),
	}
}

// Granularity returns the spacing of the sampling grid.
func (d *LaplaceDistribution) Granularity() float64 {
	return d.granularity
}

// GeometricLambda returns the parameter of the underlying two-sided
// geometric distribution at the given scale multiplier. The effective
// sensitivity is increased by one granularity to account for the rounding of
// the noised value onto the grid.
func (d *LaplaceDistribution) GeometricLambda(scale float64) float64 {
	return d.granularity * d.epsilon / (scale * (d.l1Sensitivity + d.granularity))
}

// Sample returns one independent Laplace draw at the given scale multiplier.
// The result is a multiple of the granularity.
func (d *LaplaceDistribution) Sample(scale float64) float64 {
	sample := twoSidedGeometric(d.GeometricLambda(scale))
	return float64(sample) * d.granularity
}

// geometric draws a sample from a geometric distribution with parameter
//
//	p = 1 - e^-λ.
//
// More precisely, it returns the number of Bernoulli trials until the first
// success where the success probability is p = 1 - e^-λ. The returned sample
// is truncated to the max int64 value.
//
// Note that to ensure that a truncation happens with probability less than
// 10⁻⁶, λ must be greater than 2⁻⁵⁹.
func geometric(lambda float64) int64 {
	// Return truncated sample in the case that the sample exceeds the max
	// int64.
	if rand.Uniform() > -1.0*math.Expm1(-1.0*lambda*math.MaxInt64) {
		return math.MaxInt64
	}

	// Perform a binary search for the sample in the interval from 1 to max
	// int64. Each iteration splits the interval in two and randomly keeps
	// either the left or the right subinterval depending on the respective
	// probability of the sample being contained in them. The search ends once
	// the interval only contains a single sample.
	var left int64 = 0              // exclusive bound
	var right int64 = math.MaxInt64 // inclusive bound

	for left+1 < right {
		// Compute a midpoint that divides the probability mass of the current
		// interval approximately evenly between the left and right
		// subinterval. The resulting midpoint will be less or equal to the
		// arithmetic mean of the interval. This reduces the expected number
		// of iterations of the binary search compared to a search that uses
		// the arithmetic mean as a midpoint. The speed up is more pronounced
		// the higher the success probability p is.
		mid := left - int64(math.Floor((math.Log(0.5)+math.Log1p(math.Exp(lambda*float64(left-right))))/lambda))
		// Ensure that mid is contained in the search interval. This is a
		// safeguard to account for potential mathematical inaccuracies due to
		// finite precision arithmetic.
		if mid <= left {
			mid = left + 1
		} else if mid >= right {
			mid = right - 1
		}

		// Probability that the sample is at most mid, i.e.,
		//   q = Pr[X ≤ mid | left < X ≤ right]
		// where X denotes the sample. The value of q should be approximately
		// one half.
		q := math.Expm1(lambda*float64(left-mid)) / math.Expm1(lambda*float64(left-right))
		if rand.Uniform() <= q {
			right = mid
		} else {
			left = mid
		}
	}
	return right
}

// twoSidedGeometric draws a sample from a geometric distribution that is
// mirrored at 0. The non-negative part of the distribution's PDF matches
// the PDF of a geometric distribution of parameter p = 1 - e^-λ that is
// shifted to the left by 1 and scaled accordingly.
func twoSidedGeometric(lambda float64) int64 {
	var sample int64 = 0
	var sign int64 = -1
	// Keep a sample of 0 only if the sign is positive. Otherwise, the
	// probability of 0 would be twice as high as it should be.
	for sample == 0 && sign == -1 {
		sample = geometric(lambda) - 1
		sign = int64(rand.Sign())
	}
	return sample * sign
}
