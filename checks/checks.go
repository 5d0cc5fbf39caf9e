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

// Package checks contains validation for the parameters of differentially
// private mechanisms.
//
// All checks report invalid arguments as ordinary errors. The message
// prefixes are stable and part of the public contract; callers and tests may
// match on them.
package checks

import (
	"fmt"
	"math"

	log "github.com/golang/glog"
)

// minSecureEpsilon is the smallest epsilon for which the geometric sampling
// of Laplace noise stays accurate. Samples drawn for a smaller epsilon may
// get truncated with a non-negligible probability.
var minSecureEpsilon = math.Exp2(-50.0)

// CheckEpsilon returns an error if ε is unset, non-finite, or nonpositive.
func CheckEpsilon(epsilon *float64) error {
	if epsilon == nil {
		return fmt.Errorf("Epsilon has to be set")
	}
	if math.IsNaN(*epsilon) || math.IsInf(*epsilon, 0) {
		return fmt.Errorf("Epsilon has to be finite but is %f", *epsilon)
	}
	if *epsilon <= 0 {
		return fmt.Errorf("Epsilon has to be positive but is %f", *epsilon)
	}
	return nil
}

// CheckEpsilonSecure is like CheckEpsilon but additionally requires ε to be
// at least 2⁻⁵⁰, the smallest value for which secure noise can be sampled.
func CheckEpsilonSecure(epsilon *float64) error {
	if err := CheckEpsilon(epsilon); err != nil {
		return err
	}
	if *epsilon < minSecureEpsilon {
		return fmt.Errorf("Epsilon has to be at least 2^-50 but is %e", *epsilon)
	}
	return nil
}

// CheckDelta returns an error if δ is unset, non-finite, or outside the open
// interval (0,1).
func CheckDelta(delta *float64) error {
	if delta == nil {
		return fmt.Errorf("Delta has to be set")
	}
	if math.IsNaN(*delta) || math.IsInf(*delta, 0) {
		return fmt.Errorf("Delta has to be finite but is %f", *delta)
	}
	if *delta <= 0 || *delta >= 1 {
		return fmt.Errorf("Delta has to be in the interval (0,1) but is %f", *delta)
	}
	return nil
}

// CheckL0Sensitivity returns an error if the L_0 sensitivity is non-finite or
// nonpositive.
func CheckL0Sensitivity(l0Sensitivity float64) error {
	if math.IsNaN(l0Sensitivity) || math.IsInf(l0Sensitivity, 0) {
		return fmt.Errorf("L0 sensitivity has to be finite but is %f", l0Sensitivity)
	}
	if l0Sensitivity <= 0 {
		return fmt.Errorf("L0 sensitivity has to be positive but is %f", l0Sensitivity)
	}
	return nil
}

// CheckLInfSensitivity returns an error if the L_∞ sensitivity is non-finite
// or nonpositive.
func CheckLInfSensitivity(lInfSensitivity float64) error {
	if math.IsNaN(lInfSensitivity) || math.IsInf(lInfSensitivity, 0) {
		return fmt.Errorf("LInf sensitivity has to be finite but is %f", lInfSensitivity)
	}
	if lInfSensitivity <= 0 {
		return fmt.Errorf("LInf sensitivity has to be positive but is %f", lInfSensitivity)
	}
	return nil
}

// CheckL1Sensitivity returns an error if the L_1 sensitivity is non-finite or
// nonpositive.
func CheckL1Sensitivity(l1Sensitivity float64) error {
	if math.IsNaN(l1Sensitivity) || math.IsInf(l1Sensitivity, 0) {
		return fmt.Errorf("L1 sensitivity has to be finite but is %f", l1Sensitivity)
	}
	if l1Sensitivity <= 0 {
		return fmt.Errorf("L1 sensitivity has to be positive but is %f", l1Sensitivity)
	}
	return nil
}

// CheckL2Sensitivity returns an error if the L_2 sensitivity is non-finite or
// nonpositive.
func CheckL2Sensitivity(l2Sensitivity float64) error {
	if math.IsNaN(l2Sensitivity) || math.IsInf(l2Sensitivity, 0) {
		return fmt.Errorf("L2 sensitivity has to be finite but is %f", l2Sensitivity)
	}
	if l2Sensitivity <= 0 {
		return fmt.Errorf("L2 sensitivity has to be positive but is %f", l2Sensitivity)
	}
	return nil
}

// CheckCalculatedL2Sensitivity returns an error if an L_2 sensitivity derived
// from the L_0 and L_∞ sensitivities degenerated to a nonpositive or
// non-finite value, e.g. by underflowing to 0 for subnormal inputs.
func CheckCalculatedL2Sensitivity(l2Sensitivity float64) error {
	if l2Sensitivity <= 0 || math.IsNaN(l2Sensitivity) || math.IsInf(l2Sensitivity, 0) {
		return fmt.Errorf("The calculated L2 sensitivity has to be positive and finite but is %e", l2Sensitivity)
	}
	return nil
}

// CheckConfidenceLevel returns an error if the confidence level is non-finite
// or outside the open interval (0,1).
func CheckConfidenceLevel(confidenceLevel float64) error {
	if confidenceLevel <= 0 || confidenceLevel >= 1 || math.IsNaN(confidenceLevel) {
		return fmt.Errorf("Confidence level has to be in the interval (0,1) but is %f", confidenceLevel)
	}
	return nil
}

// CheckPrivacyBudget returns an error if the privacy budget fraction is
// non-finite or outside the half-open interval (0,1].
func CheckPrivacyBudget(privacyBudget float64) error {
	if privacyBudget <= 0 || privacyBudget > 1 || math.IsNaN(privacyBudget) {
		return fmt.Errorf("Privacy budget has to be in the interval (0,1] but is %f", privacyBudget)
	}
	return nil
}

// CheckBoundsFinite returns an error if either clamping bound is NaN or
// infinite.
func CheckBoundsFinite(lower, upper float64) error {
	if math.IsNaN(lower) || math.IsInf(lower, 0) {
		return fmt.Errorf("Lower bound has to be finite but is %f", lower)
	}
	if math.IsNaN(upper) || math.IsInf(upper, 0) {
		return fmt.Errorf("Upper bound has to be finite but is %f", upper)
	}
	return nil
}

// CheckBoundsOrder returns an error if lower is larger than upper. Equal
// bounds are legal but degenerate, so they only warn.
func CheckBoundsOrder(lower, upper float64) error {
	if lower > upper {
		return fmt.Errorf("Lower bound cannot be greater than upper bound")
	}
	if lower == upper {
		log.Warningf("Lower bound is equal to upper bound: all input values will be clamped to %f", upper)
	}
	return nil
}
