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

package mechanisms

import (
	"fmt"
	"math"

	"github.com/privacylab/dpmech/checks"
	"github.com/privacylab/dpmech/distributions"
)

// maxOverflowProbability bounds the probability that a secure Laplace draw
// exceeds the float64 range. Parameter combinations above it cannot be
// sampled reliably and are rejected at build time.
var maxOverflowProbability = math.Exp2(-64.0)

// LaplaceMechanism adds Laplace noise calibrated to an L_1 sensitivity and
// epsilon. Noised outputs are snapped onto the sampling grid of the
// underlying distribution so that the set of representable outputs does not
// leak sub-granularity information about the raw value.
type LaplaceMechanism struct {
	epsilon       float64
	l1Sensitivity float64
	distro        distributions.Distribution
}

// LaplaceBuilder constructs LaplaceMechanisms. The zero value has no
// parameters set.
type LaplaceBuilder struct {
	epsilon         *float64
	l0Sensitivity   *float64
	lInfSensitivity *float64
	l1Sensitivity   *float64
}

// SetEpsilon sets the privacy budget ε.
func (b *LaplaceBuilder) SetEpsilon(epsilon float64) {
	b.epsilon = &epsilon
}

// SetL0Sensitivity sets the L_0 sensitivity. Together with the L_∞
// sensitivity it determines the L_1 sensitivity when that is not set
// directly.
func (b *LaplaceBuilder) SetL0Sensitivity(l0Sensitivity float64) {
	b.l0Sensitivity = &l0Sensitivity
}

// SetLInfSensitivity sets the L_∞ sensitivity.
func (b *LaplaceBuilder) SetLInfSensitivity(lInfSensitivity float64) {
	b.lInfSensitivity = &lInfSensitivity
}

// SetL1Sensitivity sets the L_1 sensitivity directly, taking precedence over
// a derivation from the L_0 and L_∞ sensitivities.
func (b *LaplaceBuilder) SetL1Sensitivity(l1Sensitivity float64) {
	b.l1Sensitivity = &l1Sensitivity
}

// Clone returns an independent copy of the builder.
func (b *LaplaceBuilder) Clone() NumericalMechanismBuilder {
	return &LaplaceBuilder{
		epsilon:         copyOptional(b.epsilon),
		l0Sensitivity:   copyOptional(b.l0Sensitivity),
		lInfSensitivity: copyOptional(b.lInfSensitivity),
		l1Sensitivity:   copyOptional(b.l1Sensitivity),
	}
}

// Build validates the supplied parameters and constructs the mechanism.
// Validation order: epsilon, L_0 and L_∞ sensitivities when supplied, the
// direct or derived L_1 sensitivity, and finally the feasibility of the
// secure sampler for the resulting noise scale.
func (b *LaplaceBuilder) Build() (NumericalMechanism, error) {
	if err := checks.CheckEpsilonSecure(b.epsilon); err != nil {
		return nil, err
	}
	if b.l0Sensitivity != nil {
		if err := checks.CheckL0Sensitivity(*b.l0Sensitivity); err != nil {
			return nil, err
		}
	}
	if b.lInfSensitivity != nil {
		if err := checks.CheckLInfSensitivity(*b.lInfSensitivity); err != nil {
			return nil, err
		}
	}
	l1Sensitivity, err := b.l1()
	if err != nil {
		return nil, err
	}
	if err := checks.CheckL1Sensitivity(l1Sensitivity); err != nil {
		return nil, err
	}

	// Probability that a Laplace draw of diversity l1/ε falls outside the
	// float64 range. Both tails together amount to exp(-MaxFloat64/diversity).
	diversity := l1Sensitivity / *b.epsilon
	if overflowProbability := math.Exp(-math.MaxFloat64 / diversity); overflowProbability >= maxOverflowProbability {
		return nil, fmt.Errorf("The combination of L1 sensitivity %e and epsilon %e cannot be sampled reliably", l1Sensitivity, *b.epsilon)
	}

	return &LaplaceMechanism{
		epsilon:       *b.epsilon,
		l1Sensitivity: l1Sensitivity,
		distro:        distributions.NewLaplace(*b.epsilon, l1Sensitivity),
	}, nil
}

func (b *LaplaceBuilder) l1() (float64, error) {
	if b.l1Sensitivity != nil {
		return *b.l1Sensitivity, nil
	}
	if b.l0Sensitivity != nil && b.lInfSensitivity != nil {
		return *b.l0Sensitivity * *b.lInfSensitivity, nil
	}
	return 0, fmt.Errorf("L1 sensitivity has to be set, either directly or via the L0 and LInf sensitivities")
}

func copyOptional(x *float64) *float64 {
	if x == nil {
		return nil
	}
	v := *x
	return &v
}

// NewLaplaceMechanism constructs a LaplaceMechanism without validating the
// parameters; prefer LaplaceBuilder. An l1Sensitivity of 0 yields a no-op
// mechanism whose AddNoise returns its input unchanged, which aggregations
// use to disable noise for sub-results whose sensitivity collapsed to zero.
func NewLaplaceMechanism(epsilon, l1Sensitivity float64) *LaplaceMechanism {
	m := &LaplaceMechanism{epsilon: epsilon, l1Sensitivity: l1Sensitivity}
	if l1Sensitivity > 0 {
		m.distro = distributions.NewLaplace(epsilon, l1Sensitivity)
	}
	return m
}

// NewLaplaceMechanismWithDistribution constructs a LaplaceMechanism drawing
// its noise from the given distribution. Tests use it to inject
// deterministic doubles.
func NewLaplaceMechanismWithDistribution(epsilon, l1Sensitivity float64, distro distributions.Distribution) *LaplaceMechanism {
	return &LaplaceMechanism{epsilon: epsilon, l1Sensitivity: l1Sensitivity, distro: distro}
}

// Epsilon returns the mechanism's total privacy budget.
func (m *LaplaceMechanism) Epsilon() float64 {
	return m.epsilon
}

// L1Sensitivity returns the L_1 sensitivity the noise is calibrated to.
func (m *LaplaceMechanism) L1Sensitivity() float64 {
	return m.l1Sensitivity
}

// Diversity returns the scale parameter of the Laplace noise,
// l1Sensitivity/epsilon.
func (m *LaplaceMechanism) Diversity() float64 {
	return m.l1Sensitivity / m.epsilon
}

// AddNoise adds Laplace noise to x, spending the full privacy budget.
func (m *LaplaceMechanism) AddNoise(x float64) (float64, error) {
	return m.AddNoiseWithBudget(x, 1.0)
}

// AddNoiseWithBudget adds Laplace noise to x, spending the given fraction of
// the privacy budget. The result is rounded to the granularity of the
// underlying distribution.
func (m *LaplaceMechanism) AddNoiseWithBudget(x, privacyBudget float64) (float64, error) {
	if err := checks.CheckPrivacyBudget(privacyBudget); err != nil {
		return 0, err
	}
	if m.distro == nil {
		// Zero sensitivity: adding a record cannot change the statistic, so
		// no noise is needed and the sampler is never invoked.
		return x, nil
	}
	noise := m.distro.Sample(1.0 / privacyBudget)
	return distributions.RoundToMultipleOfPowerOfTwo(x, m.distro.Granularity()) + noise, nil
}

// AddNoiseInt64 adds Laplace noise to the integer statistic x, spending the
// given fraction of the privacy budget.
func (m *LaplaceMechanism) AddNoiseInt64(x int64, privacyBudget float64) (int64, error) {
	if err := checks.CheckPrivacyBudget(privacyBudget); err != nil {
		return 0, err
	}
	if m.distro == nil {
		return x, nil
	}
	granularity := m.distro.Granularity()
	noise := m.distro.Sample(1.0 / privacyBudget)
	if granularity < 1 {
		return x + int64(math.Round(noise)), nil
	}
	// noise is an integer multiple of the granularity, so the sum stays on
	// the integer grid and the truncation is exact.
	return distributions.RoundToMultiple(x, int64(granularity)) + int64(noise), nil
}

// NoiseConfidenceInterval returns the interval that contains the noise added
// at the given budget fraction with probability confidenceLevel. For a
// Laplace distribution of diversity λ the two-sided interval is
// noisedResult ± λ/privacyBudget · ln(1-confidenceLevel).
func (m *LaplaceMechanism) NoiseConfidenceInterval(confidenceLevel, privacyBudget, noisedResult float64) (ConfidenceInterval, error) {
	if err := checks.CheckConfidenceLevel(confidenceLevel); err != nil {
		return ConfidenceInterval{}, err
	}
	if err := checks.CheckPrivacyBudget(privacyBudget); err != nil {
		return ConfidenceInterval{}, err
	}
	bound := m.Diversity() / privacyBudget * math.Log(1-confidenceLevel)
	return ConfidenceInterval{
		LowerBound:      noisedResult + bound,
		UpperBound:      noisedResult - bound,
		ConfidenceLevel: confidenceLevel,
	}, nil
}

func (m *LaplaceMechanism) String() string {
	return fmt.Sprintf("Laplace mechanism (epsilon %f, l1 sensitivity %f)", m.epsilon, m.l1Sensitivity)
}
