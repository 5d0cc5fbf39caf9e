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
	"testing"

	"github.com/grd/stat"
)

var ln3 = math.Log(3)

func nearEqual(got, want, tolerance float64) bool {
	return math.Abs(got-want) <= tolerance
}

func TestLaplaceStatistics(t *testing.T) {
	const numberOfSamples = 125000
	for _, tc := range []struct {
		epsilon, l1Sensitivity, scale, variance float64
	}{
		// The variance of a Laplace distribution of diversity λ is 2λ².
		{1.0, 1.0, 1.0, 2.0},
		{ln3, 1.0, 1.0, 2.0 / (ln3 * ln3)},
		{2.0 * ln3, 2.0, 1.0, 2.0 / (ln3 * ln3)},
		{ln3, 1.0, 2.0, 8.0 / (ln3 * ln3)},
	} {
		d := NewLaplace(tc.epsilon, tc.l1Sensitivity)
		samples := make(stat.Float64Slice, numberOfSamples)
		for i := 0; i < numberOfSamples; i++ {
			samples[i] = d.Sample(tc.scale)
		}
		sampleMean, sampleVariance := stat.Mean(samples), stat.Variance(samples)
		// Assuming the samples are Laplace distributed with mean 0 and
		// variance tc.variance, the sample mean is approximately Gaussian
		// distributed with mean 0 and standard deviation
		// sqrt(tc.variance / numberOfSamples). The tolerance is set to the
		// 99.9995% quantile of that distribution, so the test falsely rejects
		// with a probability of 10⁻⁵.
		meanErrorTolerance := 4.41717 * math.Sqrt(tc.variance/float64(numberOfSamples))
		// Similarly, the sample variance is approximately Gaussian
		// distributed with mean tc.variance and standard deviation
		// sqrt(5) * tc.variance / sqrt(numberOfSamples).
		varianceErrorTolerance := 4.41717 * math.Sqrt(5.0) * tc.variance / math.Sqrt(float64(numberOfSamples))

		if !nearEqual(sampleMean, 0.0, meanErrorTolerance) {
			t.Errorf("got mean = %f, want 0 (parameters %+v)", sampleMean, tc)
		}
		if !nearEqual(sampleVariance, tc.variance, varianceErrorTolerance) {
			t.Errorf("got variance = %f, want %f (parameters %+v)", sampleVariance, tc.variance, tc)
		}
	}
}

func TestLaplaceSamplesAreOnGranularityGrid(t *testing.T) {
	d := NewLaplace(ln3, 1.0)
	granularity := d.Granularity()
	if granularity != CeilPowerOfTwo((1.0/ln3)/granularityParam) {
		t.Errorf("Granularity() = %e, want %e", granularity, CeilPowerOfTwo((1.0/ln3)/granularityParam))
	}
	for i := 0; i < 1000; i++ {
		sample := d.Sample(1.0)
		if remainder := math.Mod(sample, granularity); remainder != 0 {
			t.Fatalf("Sample(1.0) = %e is not a multiple of the granularity %e (remainder %e)", sample, granularity, remainder)
		}
	}
}

func TestLaplaceGeometricLambdaScaling(t *testing.T) {
	d := NewLaplace(1.0, 1.0)
	base := d.GeometricLambda(1.0)
	if got := d.GeometricLambda(2.0); got != base/2 {
		t.Errorf("GeometricLambda(2.0) = %e, want %e", got, base/2)
	}
	if got := d.GeometricLambda(4.0); got != base/4 {
		t.Errorf("GeometricLambda(4.0) = %e, want %e", got, base/4)
	}
}

func TestGaussianStatistics(t *testing.T) {
	const numberOfSamples = 125000
	for _, tc := range []struct {
		stddev, scale float64
	}{
		{1.0, 1.0},
		{3.42578125, 1.0},
		{1.0, 2.0},
		{0.25, 1.0},
	} {
		d := NewGaussian(tc.stddev)
		samples := make(stat.Float64Slice, numberOfSamples)
		for i := 0; i < numberOfSamples; i++ {
			samples[i] = d.Sample(tc.scale)
		}
		sampleMean, sampleVariance := stat.Mean(samples), stat.Variance(samples)
		variance := tc.stddev * tc.stddev * tc.scale * tc.scale
		meanErrorTolerance := 4.41717 * math.Sqrt(variance/float64(numberOfSamples))
		// The sample variance of Gaussian samples is approximately Gaussian
		// distributed with a standard deviation of
		// sqrt(2) * variance / sqrt(numberOfSamples).
		varianceErrorTolerance := 4.41717 * math.Sqrt2 * variance / math.Sqrt(float64(numberOfSamples))

		if !nearEqual(sampleMean, 0.0, meanErrorTolerance) {
			t.Errorf("got mean = %f, want 0 (parameters %+v)", sampleMean, tc)
		}
		if !nearEqual(sampleVariance, variance, varianceErrorTolerance) {
			t.Errorf("got variance = %f, want %f (parameters %+v)", sampleVariance, variance, tc)
		}
	}
}

func TestGaussianSamplesAreOnGranularityGrid(t *testing.T) {
	d := NewGaussian(1.0)
	granularity := d.Granularity()
	if granularity != CeilPowerOfTwo(2.0/binomialBound) {
		t.Errorf("Granularity() = %e, want %e", granularity, CeilPowerOfTwo(2.0/binomialBound))
	}
	for i := 0; i < 1000; i++ {
		sample := d.Sample(1.0)
		if remainder := math.Mod(sample, granularity); remainder != 0 {
			t.Fatalf("Sample(1.0) = %e is not a multiple of the granularity %e (remainder %e)", sample, granularity, remainder)
		}
	}
}
