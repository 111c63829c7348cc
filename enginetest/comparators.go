// Copyright 2025-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package enginetest

import (
	"math"

	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"k8s.io/klog/v2"
)

// Comparator judges one engine output against the corresponding reference
// output. Used with Harness.RunTestCustomCompareResults, which requires one
// comparator per output.
type Comparator func(got, ref *tensors.Tensor) bool

// CompareWithComparators checks every engine output against the reference
// output using one caller-supplied comparator per output. A comparator count
// different from the output count is an error, not a truncation.
func CompareWithComparators(got, ref []*tensors.Tensor, comparators []Comparator) error {
	if len(got) != len(ref) {
		return errors.Errorf("engine produced %d outputs, reference produced %d", len(got), len(ref))
	}
	if len(comparators) != len(got) {
		return errors.Errorf("%d comparators provided for %d outputs, each output needs its own",
			len(comparators), len(got))
	}
	for ii, compare := range comparators {
		if !compare(got[ii], ref[ii]) {
			return errors.Errorf("comparator #%d rejected engine output %s", ii, got[ii].Shape())
		}
	}
	return nil
}

// AllClose accepts outputs within |got-ref| <= atol + rtol*|ref| element-wise.
func AllClose(rtol, atol float64) Comparator {
	return func(got, ref *tensors.Tensor) bool {
		err := compareOne(got, ref, rtol, atol)
		if err != nil {
			klog.V(1).Infof("AllClose(%g, %g) rejected: %v", rtol, atol, err)
		}
		return err == nil
	}
}

// CosineSimilarityAbove accepts outputs whose flattened cosine similarity
// with the reference is above threshold. Useful for reduced precision
// engines, where element-wise tolerances are too strict.
func CosineSimilarityAbove(threshold float64) Comparator {
	return func(got, ref *tensors.Tensor) bool {
		gotFlat, err := tensorFloats(got)
		if err != nil {
			return false
		}
		refFlat, err := tensorFloats(ref)
		if err != nil || len(gotFlat) != len(refFlat) {
			return false
		}
		denom := floats.Norm(gotFlat, 2) * floats.Norm(refFlat, 2)
		if denom == 0 {
			return floats.Norm(gotFlat, 2) == floats.Norm(refFlat, 2)
		}
		return floats.Dot(gotFlat, refFlat)/denom > threshold
	}
}

// MaxAbsErrorBelow accepts outputs whose largest absolute element-wise error
// is below bound.
func MaxAbsErrorBelow(bound float64) Comparator {
	return func(got, ref *tensors.Tensor) bool {
		gotFlat, err := tensorFloats(got)
		if err != nil {
			return false
		}
		refFlat, err := tensorFloats(ref)
		if err != nil || len(gotFlat) != len(refFlat) {
			return false
		}
		var worst float64
		for ii := range gotFlat {
			worst = math.Max(worst, math.Abs(gotFlat[ii]-refFlat[ii]))
		}
		return worst < bound
	}
}
