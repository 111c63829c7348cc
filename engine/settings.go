// Copyright 2025-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package engine compiles traced graphs down to a backend executable and runs
// them. It is the "device" side of a parity test: the reference side executes
// the model directly, the engine side goes through lowering and compilation.
package engine

import (
	"github.com/gomlx/gopjrt/dtypes"
)

// Settings control how a graph is compiled to an engine.
type Settings struct {
	// BackendConfig selects the backend, in the "<name>:<config>" format
	// accepted by backends.NewWithConfig. Unused when a backend is passed in
	// directly.
	BackendConfig string

	// Precisions lists the compute dtypes the engine may use. Empty means
	// float32. If float16 is allowed but float32 is not, float32 parameters
	// and constants are cast down to float16 for the computation.
	Precisions []dtypes.DType

	// TruncateFloat64 casts float64 parameters and constants to float32
	// inside the compiled graph. Outputs that were float64 become float32.
	TruncateFloat64 bool

	// Debug enables verbose logging of the lowering and compilation.
	Debug bool
}

// DefaultSettings compiles at float32 with no truncation.
func DefaultSettings() Settings { return Settings{} }

func (s Settings) allows(dtype dtypes.DType) bool {
	for _, d := range s.Precisions {
		if d == dtype {
			return true
		}
	}
	return false
}

// reducedPrecision reports whether computation should be cast to float16.
func (s Settings) reducedPrecision() bool {
	return len(s.Precisions) > 0 && s.allows(dtypes.Float16) && !s.allows(dtypes.Float32)
}
