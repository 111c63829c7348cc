// Copyright 2025-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package enginetest holds the test harnesses for checking that a model
// compiled through the engine produces the same results as the framework's
// direct execution path, within tolerance.
package enginetest

import (
	"os"
	"sync"

	"github.com/gomlx/gomlx/backends"
	_ "github.com/gomlx/gomlx/backends/simplego"
	"k8s.io/klog/v2"
)

var (
	backendOnce   sync.Once
	cachedBackend backends.Backend
)

// BuildTestBackend returns the backend parity tests run against. It defaults
// to the pure-Go "go" backend, so tests need no accelerator setup; set
// GOMLX_BACKEND to test against another backend.
func BuildTestBackend() backends.Backend {
	backendOnce.Do(func() {
		config := "go"
		if selected := os.Getenv(backends.ConfigEnvVar); selected != "" {
			config = selected
		}
		backend, err := backends.NewWithConfig(config)
		if err != nil {
			klog.Fatalf("Failed to create backend %q: %+v", config, err)
		}
		cachedBackend = backend
	})
	return cachedBackend
}
