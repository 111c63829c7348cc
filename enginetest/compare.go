// Copyright 2025-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package enginetest

import (
	"math"

	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"
	"github.com/x448/float16"
)

// Default tolerances for output comparison.
const (
	DefaultRtol = 1e-3
	DefaultAtol = 1e-3
)

// CompareOutputs checks that every engine output matches the reference output
// element-wise within |got-ref| <= atol + rtol*|ref|, with NaNs comparing
// equal. Both sides are materialized to the host and compared in float64.
//
// If expectedDTypes is non-nil, the engine outputs' dtypes must match it
// exactly (the reference side is not dtype-checked, it may run at a higher
// precision).
func CompareOutputs(got, ref []*tensors.Tensor, rtol, atol float64, expectedDTypes []dtypes.DType) error {
	if len(got) != len(ref) {
		return errors.Errorf("engine produced %d outputs, reference produced %d", len(got), len(ref))
	}
	if expectedDTypes != nil && len(expectedDTypes) != len(got) {
		return errors.Errorf("%d expected output dtypes for %d outputs", len(expectedDTypes), len(got))
	}
	for ii := range got {
		if expectedDTypes != nil && got[ii].DType() != expectedDTypes[ii] {
			return errors.Errorf("output #%d has dtype %s, expected %s", ii, got[ii].DType(), expectedDTypes[ii])
		}
		if err := compareOne(got[ii], ref[ii], rtol, atol); err != nil {
			return errors.WithMessagef(err, "output #%d", ii)
		}
	}
	return nil
}

func compareOne(got, ref *tensors.Tensor, rtol, atol float64) error {
	if got.Shape().Size() != ref.Shape().Size() {
		return errors.Errorf("engine output shape %s has different size than reference shape %s",
			got.Shape(), ref.Shape())
	}
	gotFlat, err := tensorFloats(got)
	if err != nil {
		return err
	}
	refFlat, err := tensorFloats(ref)
	if err != nil {
		return err
	}
	var worst float64
	worstIdx := -1
	for jj := range gotFlat {
		g, r := gotFlat[jj], refFlat[jj]
		if math.IsNaN(g) && math.IsNaN(r) {
			continue
		}
		if math.IsNaN(g) != math.IsNaN(r) {
			return errors.Errorf("value mismatch at flat index %d: engine=%v, reference=%v, NaN on one side only",
				jj, g, r)
		}
		diff := math.Abs(g - r)
		if diff > atol+rtol*math.Abs(r) {
			if worstIdx < 0 || diff > worst {
				worst, worstIdx = diff, jj
			}
		}
	}
	if worstIdx >= 0 {
		return errors.Errorf("value mismatch at flat index %d: engine=%v, reference=%v, |diff|=%v > atol(%v) + rtol(%v)*|reference|",
			worstIdx, gotFlat[worstIdx], refFlat[worstIdx], worst, atol, rtol)
	}
	return nil
}

// tensorFloats materializes t on the host and returns its values as float64.
func tensorFloats(t *tensors.Tensor) ([]float64, error) {
	var result []float64
	var convErr error
	err := t.ConstFlatData(func(flat any) {
		switch values := flat.(type) {
		case []float64:
			result = append(result, values...)
		case []float32:
			result = make([]float64, len(values))
			for ii, v := range values {
				result[ii] = float64(v)
			}
		case []float16.Float16:
			result = make([]float64, len(values))
			for ii, v := range values {
				result[ii] = float64(v.Float32())
			}
		case []int32:
			result = make([]float64, len(values))
			for ii, v := range values {
				result[ii] = float64(v)
			}
		case []int64:
			result = make([]float64, len(values))
			for ii, v := range values {
				result[ii] = float64(v)
			}
		default:
			convErr = errors.Errorf("comparison does not support dtype %s", t.DType())
		}
	})
	if err != nil {
		return nil, err
	}
	return result, convErr
}
