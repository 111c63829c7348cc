// Copyright 2025-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package fx

// OpKind tags how a traced Node came to be: an input placeholder, an embedded
// constant, a call into a sub-module, a free-function operation, a method
// operation on a value, or the final output collector.
type OpKind int

const (
	// KindPlaceholder is a graph input.
	KindPlaceholder OpKind = iota

	// KindConstant is a tensor embedded in the graph (e.g., module parameters).
	KindConstant

	// KindCallModule is a call into a sub-module of the owner; its target is a
	// dotted attribute path resolvable with FetchAttr.
	KindCallModule

	// KindCallFunction is a free-function operation ("add", "matmul", ...).
	KindCallFunction

	// KindCallMethod is a method operation on a value ("reshape", "transpose").
	KindCallMethod

	// KindOutput collects the graph outputs.
	KindOutput
)

//go:generate go tool enumer -type=OpKind -trimprefix=Kind -transform=snake -output=gen_opkind_enumer.go opkind.go
