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
	"gonum.org/v1/gonum/stat/distuv"
)

// gaussianSigmaAccuracy is the relative accuracy up to which the smallest
// sigma satisfying the given DP parameters is approximated.
var gaussianSigmaAccuracy = 1e-3

// GaussianMechanism adds Gaussian noise calibrated to an L_2 sensitivity,
// epsilon, and delta. The standard deviation is solved numerically for the
// tight (ε,δ) guarantee; noised outputs are snapped onto the sampling grid
// of the underlying distribution.
type GaussianMechanism struct {
	epsilon       float64
	delta         float64
	l2Sensitivity float64
	stddev        float64
	distro        distributions.Distribution
}

// GaussianBuilder constructs GaussianMechanisms. The zero value has no
// parameters set.
type GaussianBuilder struct {
	epsilon         *float64
	delta           *float64
	l0Sensitivity   *float64
	lInfSensitivity *float64
	l2Sensitivity   *float64
}

// SetEpsilon sets the privacy budget ε.
func (b *GaussianBuilder) SetEpsilon(epsilon float64) {
	b.epsilon = &epsilon
}

// SetDelta sets the failure probability δ.
func (b *GaussianBuilder) SetDelta(delta float64) {
	b.delta = &delta
}

// SetL0Sensitivity sets the L_0 sensitivity. Together with the L_∞
// sensitivity it determines the L_2 sensitivity when that is not set
// directly.
func (b *GaussianBuilder) SetL0Sensitivity(l0Sensitivity float64) {
	b.l0Sensitivity = &l0Sensitivity
}

// SetLInfSensitivity sets the L_∞ sensitivity.
func (b *GaussianBuilder) SetLInfSensitivity(lInfSensitivity float64) {
	b.lInfSensitivity = &lInfSensitivity
}

// SetL2Sensitivity sets the L_2 sensitivity directly, taking precedence over
// a derivation from the L_0 and L_∞ sensitivities.
func (b *GaussianBuilder) SetL2Sensitivity(l2Sensitivity float64) {
	b.l2Sensitivity = &l2Sensitivity
}

// Clone returns an independent copy of the builder.
func (b *GaussianBuilder) Clone() NumericalMechanismBuilder {
	return &GaussianBuilder{
		epsilon:         copyOptional(b.epsilon),
		delta:           copyOptional(b.delta),
		l0Sensitivity:   copyOptional(b.l0Sensitivity),
		lInfSensitivity: copyOptional(b.lInfSensitivity),
		l2Sensitivity:   copyOptional(b.l2Sensitivity),
	}
}

// Build validates the supplied parameters and constructs the mechanism.
// Validation order: epsilon, delta, L_0 and L_∞ sensitivities when supplied,
// and the direct or derived L_2 sensitivity. An L_2 sensitivity that
// degenerated during derivation, e.g. by underflowing to 0 for subnormal
// inputs, is reported as a defect of the calculated sensitivity rather than
// of the raw inputs.
func (b *GaussianBuilder) Build() (NumericalMechanism, error) {
	if err := checks.CheckEpsilon(b.epsilon); err != nil {
		return nil, err
	}
	if err := checks.CheckDelta(b.delta); err != nil {
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
	l2Sensitivity, err := b.l2()
	if err != nil {
		return nil, err
	}

	stddev := CalculateStddev(*b.epsilon, *b.delta, l2Sensitivity)
	return &GaussianMechanism{
		epsilon:       *b.epsilon,
		delta:         *b.delta,
		l2Sensitivity: l2Sensitivity,
		stddev:        stddev,
		distro:        distributions.NewGaussian(stddev),
	}, nil
}

func (b *GaussianBuilder) l2() (float64, error) {
	if b.l2Sensitivity != nil {
		return *b.l2Sensitivity, checks.CheckL2Sensitivity(*b.l2Sensitivity)
	}
	if b.l0Sensitivity != nil && b.lInfSensitivity != nil {
		l2 := math.Sqrt(*b.l0Sensitivity) * *b.lInfSensitivity
		return l2, checks.CheckCalculatedL2Sensitivity(l2)
	}
	return 0, fmt.Errorf("L2 sensitivity has to be set, either directly or via the L0 and LInf sensitivities")
}

// NewGaussianMechanism constructs a GaussianMechanism without validating the
// parameters; prefer GaussianBuilder. An l2Sensitivity of 0 yields a no-op
// mechanism whose AddNoise returns its input unchanged.
func NewGaussianMechanism(epsilon, delta, l2Sensitivity float64) *GaussianMechanism {
	m := &GaussianMechanism{epsilon: epsilon, delta: delta, l2Sensitivity: l2Sensitivity}
	if l2Sensitivity > 0 {
		m.stddev = CalculateStddev(epsilon, delta, l2Sensitivity)
		m.distro = distributions.NewGaussian(m.stddev)
	}
	return m
}

// NewGaussianMechanismWithDistribution constructs a GaussianMechanism
// drawing its noise from the given distribution. Tests use it to inject
// deterministic doubles.
func NewGaussianMechanismWithDistribution(epsilon, delta, l2Sensitivity float64, distro distributions.Distribution) *GaussianMechanism {
	m := &GaussianMechanism{epsilon: epsilon, delta: delta, l2Sensitivity: l2Sensitivity, distro: distro}
	if l2Sensitivity > 0 {
		m.stddev = CalculateStddev(epsilon, delta, l2Sensitivity)
	}
	return m
}

// Epsilon returns the mechanism's total privacy budget.
func (m *GaussianMechanism) Epsilon() float64 {
	return m.epsilon
}

// Delta returns the mechanism's failure probability.
func (m *GaussianMechanism) Delta() float64 {
	return m.delta
}

// L2Sensitivity returns the L_2 sensitivity the noise is calibrated to.
func (m *GaussianMechanism) L2Sensitivity() float64 {
	return m.l2Sensitivity
}

// Stddev returns the standard deviation of the noise at full privacy
// budget.
func (m *GaussianMechanism) Stddev() float64 {
	return m.stddev
}

// AddNoise adds Gaussian noise to x, spending the full privacy budget.
func (m *GaussianMechanism) AddNoise(x float64) (float64, error) {
	return m.AddNoiseWithBudget(x, 1.0)
}

// AddNoiseWithBudget adds Gaussian noise to x, spending the given fraction
// of the privacy budget. The result is rounded to the granularity of the
// underlying distribution.
func (m *GaussianMechanism) AddNoiseWithBudget(x, privacyBudget float64) (float64, error) {
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

// AddNoiseInt64 adds Gaussian noise to the integer statistic x, spending the
// given fraction of the privacy budget.
func (m *GaussianMechanism) AddNoiseInt64(x int64, privacyBudget float64) (int64, error) {
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
	return distributions.RoundToMultiple(x, int64(granularity)) + int64(noise), nil
}

// NoiseConfidenceInterval returns the interval that contains the noise added
// at the given budget fraction with probability confidenceLevel. The bound
// is the (1+confidenceLevel)/2 quantile of a Gaussian with standard
// deviation stddev/privacyBudget.
func (m *GaussianMechanism) NoiseConfidenceInterval(confidenceLevel, privacyBudget, noisedResult float64) (ConfidenceInterval, error) {
	if err := checks.CheckConfidenceLevel(confidenceLevel); err != nil {
		return ConfidenceInterval{}, err
	}
	if err := checks.CheckPrivacyBudget(privacyBudget); err != nil {
		return ConfidenceInterval{}, err
	}
	if m.stddev == 0 {
		return ConfidenceInterval{LowerBound: noisedResult, UpperBound: noisedResult, ConfidenceLevel: confidenceLevel}, nil
	}
	noiseDist := distuv.Normal{Mu: 0, Sigma: m.stddev / privacyBudget}
	bound := noiseDist.Quantile((1 + confidenceLevel) / 2)
	return ConfidenceInterval{
		LowerBound:      noisedResult - bound,
		UpperBound:      noisedResult + bound,
		ConfidenceLevel: confidenceLevel,
	}, nil
}

func (m *GaussianMechanism) String() string {
	return fmt.Sprintf("Gaussian mechanism (epsilon %f, delta %e, l2 sensitivity %f)", m.epsilon, m.delta, m.l2Sensitivity)
}

// CalculateStddev returns the standard deviation σ of Gaussian noise needed
// to achieve (ε,δ)-differential privacy for the given L_2 sensitivity.
//
// There is no closed form for the tight σ, so it is approximated by a binary
// search. The result deviates from the exact value σ_tight by at most
// gaussianSigmaAccuracy·σ_tight.
//
// Runtime: O(log(max(σ_tight/l2Sensitivity, l2Sensitivity/σ_tight)) +
// log(1/gaussianSigmaAccuracy)).
func CalculateStddev(epsilon, delta, l2Sensitivity float64) float64 {
	if delta >= 1 {
		return 0
	}

	// l2Sensitivity is a reasonable starting guess for the upper bound since
	// the required noise grows linearly with sensitivity.
	upperBound := l2Sensitivity
	var lowerBound float64

	// Increase upperBound until it is actually an upper bound of σ_tight.
	// deltaForGaussian is decreasing with respect to sigma, so when this loop
	// exits, upperBound - lowerBound <= σ_tight and lowerBound >= 0.5·σ_tight
	// whenever σ_tight > l2Sensitivity.
	for deltaForGaussian(upperBound, epsilon, l2Sensitivity) > delta {
		lowerBound = upperBound
		upperBound = upperBound * 2
	}

	// Bisect until the interval is narrow relative to the lower bound. The
	// returned upperBound then satisfies the privacy guarantee while staying
	// within the relative accuracy of σ_tight.
	for upperBound-lowerBound > gaussianSigmaAccuracy*lowerBound {
		middle := lowerBound*0.5 + upperBound*0.5
		if deltaForGaussian(middle, epsilon, l2Sensitivity) > delta {
			lowerBound = middle
		} else {
			upperBound = middle
		}
	}

	return upperBound
}

// deltaForGaussian computes the smallest δ such that the Gaussian mechanism
// with fixed standard deviation σ is (ε,δ)-differentially private for the
// given L_2 sensitivity. The calculation is based on Theorem 8 of Balle and
// Wang's "Improving the Gaussian Mechanism for Differential Privacy:
// Analytical Calibration and Optimal Denoising"
// (https://arxiv.org/abs/1805.06530v2).
func deltaForGaussian(sigma, epsilon, l2Sensitivity float64) float64 {
	// Defining
	//   Φ – Standard Gaussian distribution (mean: 0, variance: 1) CDF
	//   s – L2 sensitivity
	//   δ(σ,s,ε) – The level of (ε,δ)-approximate differential privacy
	//              achieved by the Gaussian mechanism applied with standard
	//              deviation σ to data with L2 sensitivity s with fixed ε.
	// The tight choice of δ (https://arxiv.org/abs/1805.06530v2, Theorem 8)
	// is:
	//   δ(σ,s,ε) := Φ(s/(2σ) - εσ/s) - exp(ε)Φ(-s/(2σ) - εσ/s)
	// To simplify the calculation and the reasoning about overflow and
	// underflow, we pull out terms a := s/(2σ), b := εσ/s, c := exp(ε) so
	// that δ(σ,s,ε) = Φ(a - b) - cΦ(-a - b).
	a := l2Sensitivity / (2 * sigma)
	b := epsilon * sigma / l2Sensitivity
	c := math.Exp(epsilon)

	if math.IsInf(c, +1) {
		// δ(σ,s,ε) –> 0 as ε –> ∞, so return 0.
		return 0
	}
	if math.IsInf(b, +1) {
		// δ(σ,s,ε) –> 0 as the L2 sensitivity –> 0, so return 0.
		return 0
	}

	return distuv.UnitNormal.CDF(a-b) - c*distuv.UnitNormal.CDF(-a-b)
}
