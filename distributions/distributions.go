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

// Package distributions contains the secure noise distributions backing the
// numerical mechanisms.
//
// Noise is generated on a discrete grid whose spacing (the granularity) is a
// power of 2 derived from the distribution's scale. Sampling on this grid is
// robust against unintentional privacy leaks caused by artifacts of floating
// point arithmetic; see
// https://github.com/google/differential-privacy/blob/main/common_docs/Secure_Noise_Generation.pdf.
package distributions

// Distribution is a source of independent noise draws for a numerical
// mechanism. Implementations must produce a statistically independent sample
// on every call.
//
// The scale argument is a per-call multiplier of the distribution's
// configured width; mechanisms pass 1/privacyBudget so that spending a
// fraction of the privacy budget widens the noise proportionally.
type Distribution interface {
	// Sample returns one noise draw at the given scale multiplier. The
	// result is a multiple of Granularity.
	Sample(scale float64) float64

	// Granularity returns the spacing of the discrete grid the samples,
	// and any value noised with them, are rounded to.
	Granularity() float64
}
