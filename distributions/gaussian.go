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

var (
	// binomialBound is the square root of the maximum number n of Bernoulli
	// trials from which a binomial sample is drawn. Larger values result in
	// more fine-grained noise, but increase the chance of sampling
	// inaccuracies due to overflows. The probability of such an event will be
	// roughly 2⁻⁴⁵ or less, if the square root is set to 2⁵⁷.
	binomialBound float64 = math.Exp2(57.0)
	// The absolute bound of the two-sided geometric samples k that are used
	// for creating a binomial sample is m + n / 2. For performance reasons, m
	// is not composed of n Bernoulli trials. Instead, m is obtained via a
	// rejection sampling technique, which sets
	//   m = (k + l) * (sqrt(2 * n) + 1),
	// where l is a uniform random sample between 0 and 1. Bounding k is
	// therefore necessary to prevent m from overflowing.
	//
	// The probability of a single sample k being bounded is 2⁻⁴⁵.
	geometricBound int64 = (math.MaxInt64 / int64(math.Round(math.Sqrt2*binomialBound+1.0))) - 1
)

// GaussianDistribution samples Gaussian noise of a fixed standard deviation
// on a power-of-two grid. The sampling approximates the Gaussian with a
// binomial distribution of a matching number of Bernoulli trials, which is
// robust against unintentional privacy leaks due to artifacts of
// floating-point arithmetic.
type GaussianDistribution struct {
	stddev      float64
	granularity float64
}

// NewGaussian returns a secure Gaussian distribution with the given standard
// deviation. The standard deviation must be positive and finite; validation
// is owned by the mechanism builders.
func NewGaussian(stddev float64) *GaussianDistribution {
	return &GaussianDistribution{
		stddev:      stddev,
		granularity: CeilPowerOfTwo(2.0 * stddev / binomialBound),
	}
}

// Granularity returns the spacing of the sampling grid.
func (d *GaussianDistribution) Granularity() float64 {
	return d.granularity
}

// Sample returns one independent Gaussian draw at the given scale
// multiplier. The result is a multiple of the granularity.
func (d *GaussianDistribution) Sample(scale float64) float64 {
	// sqrtN is chosen in a way that places it in the interval between
	// binomialBound and binomialBound / 2 for a scale of 1. This ensures that
	// the respective binomial distribution consists of enough Bernoulli
	// samples to closely approximate a Gaussian distribution.
	sqrtN := 2.0 * d.stddev * scale / d.granularity
	sample := symmetricBinomial(sqrtN)
	return float64(sample) * d.granularity
}

// symmetricBinomial returns a random sample m where the term m + n / 2 is
// drawn from a binomial distribution of n Bernoulli trials that have a
// success probability of 0.5 each. The sampling technique is based on
// Bringmann et al.'s rejection sampling approach proposed in "Internal DLA:
// Efficient Simulation of a Physical Growth Model"
// (https://people.mpi-inf.mpg.de/~kbringma/paper/2014ICALP.pdf).
func symmetricBinomial(sqrtN float64) int64 {
	stepSize := int64(math.Round(math.Sqrt2*sqrtN + 1.0))
	var result int64
	for {
		// 1 is subtracted from the geometric sample to count the number of
		// Bernoulli fails rather than the number of trials until the first
		// success.
		boundedGeometricSample := int64(math.Min(rand.Geometric()-1.0, float64(geometricBound)))
		twoSidedGeometricSample := boundedGeometricSample
		if rand.Boolean() {
			twoSidedGeometricSample = -twoSidedGeometricSample - 1
		}

		result = stepSize*twoSidedGeometricSample + rand.I63n(stepSize)
		resultProbability := binomialProbability(sqrtN, result)
		rejectProbability := rand.Uniform()
		if resultProbability > 0.0 &&
			rejectProbability < resultProbability*float64(stepSize)*math.Pow(2.0, float64(boundedGeometricSample))/4.0 {
			break
		}
	}
	return result
}

// binomialProbability approximates the probability of a random sample
// m + n / 2 drawn from a binomial distribution of n Bernoulli trials that
// have a success probability of 1 / 2 each. The approximation is based on
// Lemma 7 of
// https://github.com/google/differential-privacy/blob/main/common_docs/Secure_Noise_Generation.pdf
func binomialProbability(sqrtN float64, m int64) float64 {
	if math.Abs(float64(m)) > sqrtN*math.Sqrt(math.Log(sqrtN)/2.0) {
		return 0.0
	}
	return (math.Sqrt(2.0/math.Pi) / sqrtN) *
		math.Exp((-2.0*float64(m)*float64(m))/(sqrtN*sqrtN)) *
		(1 - 0.4*math.Pow(2.0, 1.5)*math.Pow(math.Log(sqrtN), 1.5)/sqrtN)
}
