// loader_mode_darwin.go: macOS dlopen mode flags
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

//go:build darwin

package modelbox

// Values from <dlfcn.h> (macOS). RTLD_DEEPBIND does not exist here; the
// flag is ignored when a descriptor requests it.
const (
	rtldLazy     = 0x0001
	rtldNow      = 0x0002
	rtldLocal    = 0x0004
	rtldGlobal   = 0x0008
	rtldNodelete = 0x0080
	rtldDeepBind = 0x0000

	deepBindSupported = false
)
