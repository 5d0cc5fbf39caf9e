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

// Package bounded provides the framework for differentially private
// statistics that clamp their inputs to a [lower, upper] range. The range
// determines the sensitivity, so it has to be known before any noise can be
// calibrated. It is supplied in one of three ways:
//
//  1. Manually, via SetLower and SetUpper.
//  2. Through a caller-constructed ApproxBounds collaborator, via
//     SetApproxBounds.
//  3. Automatically: when neither is supplied, BoundsSetup constructs a
//     default LogBounds collaborator seeded with the statistic's epsilon and
//     a clone of its mechanism builder.
//
// A builder owns at most one of {manual bounds, ApproxBounds collaborator}
// at a time; setting the collaborator clears manual bounds.
package bounded

import (
	"fmt"

	"github.com/privacylab/dpmech/checks"
	"github.com/privacylab/dpmech/mechanisms"
	"golang.org/x/exp/constraints"
)

// Number covers the value types bounded statistics operate on.
type Number interface {
	constraints.Integer | constraints.Float
}

// ApproxBounds is the bounds-discovery collaborator. Add observes one raw
// input; Result spends the collaborator's privacy budget to report
// approximate lower and upper bounds of the observed data.
type ApproxBounds[T Number] interface {
	Add(x T)
	Result() (lower, upper T, err error)
}

// Builder holds the configuration shared by all bounded statistics: the
// privacy parameters, the mechanism builder used to calibrate noise, and the
// clamping bounds or the collaborator that will discover them. A concrete
// statistic supplies a buildBounded hook that derives its sensitivity from
// the bounds and assembles the statistic.
type Builder[T Number, A any] struct {
	buildBounded func(*Builder[T, A]) (A, error)

	epsilon     *float64
	mechBuilder mechanisms.NumericalMechanismBuilder

	lower *T
	upper *T
	// Used to determine lower and upper automatically when they are not set
	// manually.
	approxBounds ApproxBounds[T]
}

// NewBuilder returns a Builder delegating to the given hook. The hook is
// invoked by Build after the bound-order check and is expected to call
// BoundsSetup before deriving sensitivity.
func NewBuilder[T Number, A any](buildBounded func(*Builder[T, A]) (A, error)) *Builder[T, A] {
	return &Builder[T, A]{buildBounded: buildBounded}
}

// SetEpsilon sets the privacy budget ε of the statistic.
func (b *Builder[T, A]) SetEpsilon(epsilon float64) {
	b.epsilon = &epsilon
}

// SetMechanismBuilder sets the mechanism builder noise is calibrated with.
// When unset, a Laplace builder is used.
func (b *Builder[T, A]) SetMechanismBuilder(mechBuilder mechanisms.NumericalMechanismBuilder) {
	b.mechBuilder = mechBuilder
}

// SetLower sets the manual lower clamping bound.
func (b *Builder[T, A]) SetLower(lower T) {
	b.lower = &lower
}

// SetUpper sets the manual upper clamping bound.
func (b *Builder[T, A]) SetUpper(upper T) {
	b.upper = &upper
}

// ClearBounds erases manual bounds and the bounds-discovery collaborator.
func (b *Builder[T, A]) ClearBounds() {
	b.lower = nil
	b.upper = nil
	b.approxBounds = nil
}

// SetApproxBounds sets the bounds-discovery collaborator. Manual bounds set
// earlier are cleared; subsequent builds use discovery.
func (b *Builder[T, A]) SetApproxBounds(approxBounds ApproxBounds[T]) {
	b.ClearBounds()
	b.approxBounds = approxBounds
}

// BoundsAreSet reports whether both manual bounds are present.
func (b *Builder[T, A]) BoundsAreSet() bool {
	return b.lower != nil && b.upper != nil
}

// Lower returns the manual lower bound, or nil when unset.
func (b *Builder[T, A]) Lower() *T {
	return b.lower
}

// Upper returns the manual upper bound, or nil when unset.
func (b *Builder[T, A]) Upper() *T {
	return b.upper
}

// ApproxBoundsInstance returns the bounds-discovery collaborator, or nil
// when none is configured.
func (b *Builder[T, A]) ApproxBoundsInstance() ApproxBounds[T] {
	return b.approxBounds
}

// Epsilon returns the configured privacy budget, or nil when unset.
func (b *Builder[T, A]) Epsilon() *float64 {
	return b.epsilon
}

// MechanismBuilderClone returns an independent copy of the configured
// mechanism builder, defaulting to Laplace. Bounds discovery and the final
// statistic each calibrate their own mechanism from such a clone, so the two
// consume independently calibrated noise.
func (b *Builder[T, A]) MechanismBuilderClone() mechanisms.NumericalMechanismBuilder {
	if b.mechBuilder == nil {
		return &mechanisms.LaplaceBuilder{}
	}
	return b.mechBuilder.Clone()
}

// BoundsSetup prepares the bound configuration for buildBounded. When
// neither manual bounds nor a collaborator are present, it constructs the
// default LogBounds collaborator from the statistic's epsilon and a clone of
// the mechanism builder. Manual bounds of a floating-point type must be
// finite.
func (b *Builder[T, A]) BoundsSetup() error {
	if !b.BoundsAreSet() && b.approxBounds == nil {
		if err := checks.CheckEpsilon(b.epsilon); err != nil {
			return err
		}
		approxBounds, err := NewLogBounds[T](*b.epsilon, b.MechanismBuilderClone())
		if err != nil {
			return fmt.Errorf("couldn't initialize default approximate bounds: %w", err)
		}
		b.approxBounds = approxBounds
	}
	if b.BoundsAreSet() && isFloat[T]() {
		return checks.CheckBoundsFinite(float64(*b.lower), float64(*b.upper))
	}
	return nil
}

// Build validates the bound order and delegates to the buildBounded hook.
// The order check always runs first: deriving sensitivity from an inverted
// bound range would silently produce a nonsensical clamp width.
func (b *Builder[T, A]) Build() (A, error) {
	var zero A
	if b.BoundsAreSet() {
		if err := checks.CheckBoundsOrder(float64(*b.lower), float64(*b.upper)); err != nil {
			return zero, err
		}
	}
	return b.buildBounded(b)
}

func isFloat[T Number]() bool {
	var zero T
	switch any(zero).(type) {
	case float32, float64:
		return true
	}
	return false
}

// Clamp returns x constrained to [lower, upper].
func Clamp[T Number](x, lower, upper T) T {
	if x < lower {
		return lower
	}
	if x > upper {
		return upper
	}
	return x
}
