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

// Package mechanisms contains the differentially private numerical noise
// mechanisms: validated construction of Laplace and Gaussian mechanisms,
// noise addition with per-call privacy budget fractions, and confidence
// intervals around noised results.
//
// A mechanism is immutable once built and may be shared across goroutines.
// Builders are mutable single-owner objects; Clone them before handing them
// to another goroutine.
package mechanisms

// ConfidenceInterval contains bounds such that the noise added by a
// mechanism falls between them with probability ConfidenceLevel.
type ConfidenceInterval struct {
	LowerBound, UpperBound float64
	ConfidenceLevel        float64
}

// NumericalMechanism adds calibrated noise to numerical statistics.
//
// The privacyBudget arguments are the fraction of the mechanism's epsilon
// spent on an individual call, in (0,1]. Spending a fraction b widens the
// noise by 1/b, so a sequence of calls with fractions summing to at most 1
// keeps the combined privacy loss within the configured epsilon.
type NumericalMechanism interface {
	// Epsilon returns the mechanism's total privacy budget.
	Epsilon() float64

	// AddNoise adds noise to x, spending the full privacy budget.
	AddNoise(x float64) (float64, error)

	// AddNoiseWithBudget adds noise to x, spending the given fraction of
	// the privacy budget.
	AddNoiseWithBudget(x, privacyBudget float64) (float64, error)

	// AddNoiseInt64 adds noise to the integer statistic x, spending the
	// given fraction of the privacy budget. The noised value is rounded to
	// the noise granularity before truncation so that the truncation does
	// not bias the result.
	AddNoiseInt64(x int64, privacyBudget float64) (int64, error)

	// NoiseConfidenceInterval returns the interval
	// [noisedResult+boundLow, noisedResult+boundHigh] that contains the
	// noise added at the given budget fraction with probability
	// confidenceLevel. confidenceLevel must be in (0,1) and privacyBudget
	// in (0,1].
	NoiseConfidenceInterval(confidenceLevel, privacyBudget, noisedResult float64) (ConfidenceInterval, error)
}

// NumericalMechanismBuilder constructs a NumericalMechanism from optional
// parameters. Setters never validate; Build validates every supplied field
// in a deterministic order and stops at the first failing check. A failed
// Build never returns a partially constructed mechanism.
type NumericalMechanismBuilder interface {
	// SetEpsilon sets the privacy budget ε.
	SetEpsilon(epsilon float64)

	// SetL0Sensitivity sets the maximum number of partitions a single
	// record can contribute to.
	SetL0Sensitivity(l0Sensitivity float64)

	// SetLInfSensitivity sets the maximum change of a single partition's
	// value from one record's contribution.
	SetLInfSensitivity(lInfSensitivity float64)

	// Clone returns an independent copy of the builder. Mutating the copy
	// does not affect the original.
	Clone() NumericalMechanismBuilder

	// Build validates the supplied parameters and constructs the mechanism.
	Build() (NumericalMechanism, error)
}
