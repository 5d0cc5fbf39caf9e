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
	"math"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/privacylab/dpmech/stattestutils"
)

var (
	_ NumericalMechanism        = &LaplaceMechanism{}
	_ NumericalMechanismBuilder = &LaplaceBuilder{}
)

func TestLaplaceBuilder(t *testing.T) {
	b := &LaplaceBuilder{}
	b.SetL1Sensitivity(3)
	b.SetEpsilon(1)
	m, err := b.Build()
	if err != nil {
		t.Fatalf("Build() failed: %v", err)
	}
	if got := m.Epsilon(); got != 1 {
		t.Errorf("Epsilon() = %f, want 1", got)
	}
	lm := m.(*LaplaceMechanism)
	if got := lm.L1Sensitivity(); got != 3 {
		t.Errorf("L1Sensitivity() = %f, want 3", got)
	}
}

func TestLaplaceBuilderValidation(t *testing.T) {
	for _, tc := range []struct {
		desc       string
		configure  func(*LaplaceBuilder)
		wantPrefix string
	}{
		{
			desc:       "epsilon not set",
			configure:  func(b *LaplaceBuilder) { b.SetL1Sensitivity(1) },
			wantPrefix: "Epsilon has to be set",
		},
		{
			desc: "epsilon zero",
			configure: func(b *LaplaceBuilder) {
				b.SetL1Sensitivity(1)
				b.SetEpsilon(0)
			},
			wantPrefix: "Epsilon has to be positive",
		},
		{
			desc: "epsilon negative",
			configure: func(b *LaplaceBuilder) {
				b.SetL1Sensitivity(1)
				b.SetEpsilon(-1)
			},
			wantPrefix: "Epsilon has to be positive",
		},
		{
			desc: "epsilon NaN",
			configure: func(b *LaplaceBuilder) {
				b.SetL1Sensitivity(1)
				b.SetEpsilon(math.NaN())
			},
			wantPrefix: "Epsilon has to be finite",
		},
		{
			desc: "epsilon infinity",
			configure: func(b *LaplaceBuilder) {
				b.SetL1Sensitivity(1)
				b.SetEpsilon(math.Inf(1))
			},
			wantPrefix: "Epsilon has to be finite",
		},
		{
			desc: "epsilon below secure minimum",
			configure: func(b *LaplaceBuilder) {
				b.SetL1Sensitivity(3)
				b.SetEpsilon(1e-100)
			},
			wantPrefix: "Epsilon has to be at least 2^-50",
		},
		{
			desc: "l0 sensitivity NaN",
			configure: func(b *LaplaceBuilder) {
				b.SetL0Sensitivity(math.NaN())
				b.SetLInfSensitivity(1)
				b.SetEpsilon(1)
			},
			wantPrefix: "L0 sensitivity has to be finite",
		},
		{
			desc: "l0 sensitivity infinity",
			configure: func(b *LaplaceBuilder) {
				b.SetL0Sensitivity(math.Inf(1))
				b.SetLInfSensitivity(1)
				b.SetEpsilon(1)
			},
			wantPrefix: "L0 sensitivity has to be finite",
		},
		{
			desc: "l0 sensitivity negative",
			configure: func(b *LaplaceBuilder) {
				b.SetL0Sensitivity(-1)
				b.SetLInfSensitivity(1)
				b.SetEpsilon(1)
			},
			wantPrefix: "L0 sensitivity has to be positive",
		},
		{
			desc: "lInf sensitivity NaN",
			configure: func(b *LaplaceBuilder) {
				b.SetL0Sensitivity(1)
				b.SetLInfSensitivity(math.NaN())
				b.SetEpsilon(1)
			},
			wantPrefix: "LInf sensitivity has to be finite",
		},
		{
			desc: "lInf sensitivity zero",
			configure: func(b *LaplaceBuilder) {
				b.SetL0Sensitivity(1)
				b.SetLInfSensitivity(0)
				b.SetEpsilon(1)
			},
			wantPrefix: "LInf sensitivity has to be positive",
		},
		{
			desc:       "no sensitivity",
			configure:  func(b *LaplaceBuilder) { b.SetEpsilon(1) },
			wantPrefix: "L1 sensitivity has to be set",
		},
		{
			desc: "l1 sensitivity too high",
			configure: func(b *LaplaceBuilder) {
				b.SetL1Sensitivity(math.MaxFloat64)
				b.SetEpsilon(1)
			},
			wantPrefix: "The combination of L1 sensitivity",
		},
	} {
		b := &LaplaceBuilder{}
		tc.configure(b)
		m, err := b.Build()
		if err == nil {
			t.Errorf("%s: Build() succeeded, want error with prefix %q", tc.desc, tc.wantPrefix)
			continue
		}
		if m != nil {
			t.Errorf("%s: Build() returned a partial mechanism alongside an error", tc.desc)
		}
		if !strings.HasPrefix(err.Error(), tc.wantPrefix) {
			t.Errorf("%s: Build() = %v, want prefix %q", tc.desc, err, tc.wantPrefix)
		}
	}
}

func TestLaplaceDiversity(t *testing.T) {
	for _, tc := range []struct {
		epsilon, l1Sensitivity, want float64
	}{
		{1.0, 1.0, 1.0},
		{2.0, 1.0, 0.5},
		{2.0, 3.0, 1.5},
		{1.0, 2.0, 2.0},
		{4.0, 2.0, 0.5},
	} {
		m := NewLaplaceMechanism(tc.epsilon, tc.l1Sensitivity)
		if got := m.Diversity(); got != tc.want {
			t.Errorf("Diversity() = %f for epsilon %f and l1 sensitivity %f, want %f", got, tc.epsilon, tc.l1Sensitivity, tc.want)
		}
	}
}

func TestLaplaceEstimatesL1WithL0AndLInf(t *testing.T) {
	b := &LaplaceBuilder{}
	b.SetEpsilon(1)
	b.SetL0Sensitivity(5)
	b.SetLInfSensitivity(3)
	m, err := b.Build()
	if err != nil {
		t.Fatalf("Build() failed: %v", err)
	}
	if got := m.(*LaplaceMechanism).L1Sensitivity(); got != 15 {
		t.Errorf("L1Sensitivity() = %f, want 15", got)
	}
}

func TestLaplaceDirectL1TakesPrecedence(t *testing.T) {
	b := &LaplaceBuilder{}
	b.SetEpsilon(1)
	b.SetL0Sensitivity(5)
	b.SetLInfSensitivity(3)
	b.SetL1Sensitivity(2)
	m, err := b.Build()
	if err != nil {
		t.Fatalf("Build() failed: %v", err)
	}
	if got := m.(*LaplaceMechanism).L1Sensitivity(); got != 2 {
		t.Errorf("L1Sensitivity() = %f, want 2", got)
	}
}

func TestLaplaceAddsNoNoiseWhenSensitivityIsZero(t *testing.T) {
	m := NewLaplaceMechanism(1.0, 0.0)
	for _, x := range []float64{0.0, 12.3, -7.5, 1e15} {
		// Repeated calls must be deterministic and never touch a sampler.
		for i := 0; i < 3; i++ {
			got, err := m.AddNoise(x)
			if err != nil {
				t.Fatalf("AddNoise(%f) failed: %v", x, err)
			}
			if got != x {
				t.Errorf("AddNoise(%f) = %f, want the input unchanged", x, got)
			}
		}
	}
	got, err := m.AddNoiseInt64(42, 1.0)
	if err != nil {
		t.Fatalf("AddNoiseInt64(42) failed: %v", err)
	}
	if got != 42 {
		t.Errorf("AddNoiseInt64(42) = %d, want 42", got)
	}
}

func TestLaplaceBudgetIsPassedToDistribution(t *testing.T) {
	distro := &mockDistribution{sample: 0, granularity: 1.0 / 1024}
	m := NewLaplaceMechanismWithDistribution(1.0, 1.0, distro)

	for _, budget := range []float64{1.0, 0.5, 0.25} {
		if _, err := m.AddNoiseWithBudget(0.0, budget); err != nil {
			t.Fatalf("AddNoiseWithBudget(0, %f) failed: %v", budget, err)
		}
	}
	if diff := cmp.Diff([]float64{1.0, 2.0, 4.0}, distro.scales); diff != "" {
		t.Errorf("recorded sampling scales mismatch (-want +got):\n%s", diff)
	}
}

func TestLaplaceAddNoiseStatistics(t *testing.T) {
	const numberOfSamples = 125000
	m := NewLaplaceMechanism(1.0, 1.0)
	samples := make([]float64, numberOfSamples)
	for i := 0; i < numberOfSamples; i++ {
		sample, err := m.AddNoise(0)
		if err != nil {
			t.Fatalf("AddNoise(0) failed: %v", err)
		}
		samples[i] = sample
	}
	// The noise is Laplace distributed with diversity 1, i.e. mean 0 and
	// variance 2. The tolerances are the 99.9995% quantiles of the
	// approximately Gaussian sample statistics, so the test falsely rejects
	// with a probability of about 10⁻⁵ each.
	wantVariance := 2.0
	meanTolerance := 4.41717 * math.Sqrt(wantVariance/numberOfSamples)
	varianceTolerance := 4.41717 * math.Sqrt(5.0) * wantVariance / math.Sqrt(numberOfSamples)
	if mean := stattestutils.SampleMean(samples); math.Abs(mean) > meanTolerance {
		t.Errorf("sample mean = %f, want 0 (tolerance %f)", mean, meanTolerance)
	}
	if variance := stattestutils.SampleVariance(samples); math.Abs(variance-wantVariance) > varianceTolerance {
		t.Errorf("sample variance = %f, want %f (tolerance %f)", variance, wantVariance, varianceTolerance)
	}
}

func TestLaplaceAddNoiseSnapsToGranularity(t *testing.T) {
	distro := &mockDistribution{sample: 10.0, granularity: 0.25}
	m := NewLaplaceMechanismWithDistribution(1.0, 1.0, distro)

	got, err := m.AddNoise(0.1 * distro.granularity)
	if err != nil {
		t.Fatalf("AddNoise failed: %v", err)
	}
	if remainder := math.Mod(got, distro.granularity); remainder != 0 {
		t.Errorf("AddNoise result %f is not a multiple of the granularity %f", got, distro.granularity)
	}
	if got != 10.0 {
		t.Errorf("AddNoise = %f, want 10.0", got)
	}
}

func TestLaplaceAddNoiseInt64(t *testing.T) {
	// Sub-integer granularity: the noise is rounded to the closest integer.
	distro := &mockDistribution{sample: 10.25, granularity: 0.25}
	m := NewLaplaceMechanismWithDistribution(1.0, 1.0, distro)
	got, err := m.AddNoiseInt64(7, 1.0)
	if err != nil {
		t.Fatalf("AddNoiseInt64 failed: %v", err)
	}
	if got != 17 {
		t.Errorf("AddNoiseInt64(7) = %d, want 17", got)
	}

	// Integer granularity: the input is rounded onto the integer grid first.
	distro = &mockDistribution{sample: 8.0, granularity: 4.0}
	m = NewLaplaceMechanismWithDistribution(1.0, 1.0, distro)
	got, err = m.AddNoiseInt64(13, 1.0)
	if err != nil {
		t.Fatalf("AddNoiseInt64 failed: %v", err)
	}
	if got != 20 {
		t.Errorf("AddNoiseInt64(13) = %d, want 20", got)
	}
}

func TestLaplaceNoiseConfidenceInterval(t *testing.T) {
	epsilon := 0.5
	level := 0.95
	budget := 0.5
	m := NewLaplaceMechanism(epsilon, 1.0)

	ci, err := m.NoiseConfidenceInterval(level, budget, 0)
	if err != nil {
		t.Fatalf("NoiseConfidenceInterval failed: %v", err)
	}
	wantLower := math.Log(1-level) / epsilon / budget
	if ci.LowerBound != wantLower {
		t.Errorf("LowerBound = %f, want %f", ci.LowerBound, wantLower)
	}
	if ci.UpperBound != -wantLower {
		t.Errorf("UpperBound = %f, want %f", ci.UpperBound, -wantLower)
	}
	if ci.ConfidenceLevel != level {
		t.Errorf("ConfidenceLevel = %f, want %f", ci.ConfidenceLevel, level)
	}

	result := 19.3
	ciWithResult, err := m.NoiseConfidenceInterval(level, budget, result)
	if err != nil {
		t.Fatalf("NoiseConfidenceInterval failed: %v", err)
	}
	if ciWithResult.LowerBound != result+wantLower {
		t.Errorf("LowerBound = %f, want %f", ciWithResult.LowerBound, result+wantLower)
	}
	if ciWithResult.UpperBound != result-wantLower {
		t.Errorf("UpperBound = %f, want %f", ciWithResult.UpperBound, result-wantLower)
	}
}

func TestLaplaceNoiseConfidenceIntervalArgumentValidation(t *testing.T) {
	m := NewLaplaceMechanism(1.0, 1.0)

	_, err := m.NoiseConfidenceInterval(0.5, math.NaN(), 0)
	if err == nil || !strings.HasPrefix(err.Error(), "Privacy budget has to be in") {
		t.Errorf("NoiseConfidenceInterval(0.5, NaN, 0) = %v, want privacy budget error", err)
	}

	_, err = m.NoiseConfidenceInterval(math.NaN(), 1.0, 0)
	if err == nil || !strings.HasPrefix(err.Error(), "Confidence level has to be in") {
		t.Errorf("NoiseConfidenceInterval(NaN, 1.0, 0) = %v, want confidence level error", err)
	}
}

func TestLaplaceAddNoiseBudgetValidation(t *testing.T) {
	m := NewLaplaceMechanism(1.0, 1.0)
	for _, budget := range []float64{0, -0.5, 1.5, math.NaN()} {
		if _, err := m.AddNoiseWithBudget(0, budget); err == nil {
			t.Errorf("AddNoiseWithBudget(0, %f) succeeded, want error", budget)
		}
	}
}

func TestLaplaceBuilderClone(t *testing.T) {
	b := &LaplaceBuilder{}
	b.SetL1Sensitivity(3)
	b.SetEpsilon(1)
	clone := b.Clone()

	m, err := clone.Build()
	if err != nil {
		t.Fatalf("Build() on clone failed: %v", err)
	}
	if got := m.Epsilon(); got != 1 {
		t.Errorf("Epsilon() = %f, want 1", got)
	}
	if got := m.(*LaplaceMechanism).L1Sensitivity(); got != 3 {
		t.Errorf("L1Sensitivity() = %f, want 3", got)
	}

	// Mutating the clone must not leak into the original.
	clone.SetEpsilon(2)
	clone.(*LaplaceBuilder).SetL1Sensitivity(7)
	m2, err := b.Build()
	if err != nil {
		t.Fatalf("Build() on original failed: %v", err)
	}
	if got := m2.Epsilon(); got != 1 {
		t.Errorf("after mutating the clone, original builds Epsilon() = %f, want 1", got)
	}
	if got := m2.(*LaplaceMechanism).L1Sensitivity(); got != 3 {
		t.Errorf("after mutating the clone, original builds L1Sensitivity() = %f, want 3", got)
	}
}
