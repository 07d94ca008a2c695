// loader_stub.go: system loader stub for unsupported platforms
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

//go:build !linux && !darwin

package modelbox

import "runtime"

type systemLoader struct{}

// NewSystemLoader returns a loader whose Open always fails; this
// platform has no dynamic linker the registry can drive. Embedders can
// still supply their own LibraryLoader.
func NewSystemLoader() LibraryLoader {
	return &systemLoader{}
}

func (systemLoader) Open(path string, mode int) (SharedLibrary, error) {
	return nil, NewLoaderUnavailableError(runtime.GOOS)
}
