// loader_mode_other.go: dlopen mode flags for platforms without a loader
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

//go:build !linux && !darwin

package modelbox

// Placeholder values so mode composition stays well-defined; the system
// loader itself is unavailable on these platforms (see loader_stub.go).
const (
	rtldLazy     = 0x0001
	rtldNow      = 0x0002
	rtldLocal    = 0x0000
	rtldGlobal   = 0x0100
	rtldNodelete = 0x1000
	rtldDeepBind = 0x0000

	deepBindSupported = false
)
