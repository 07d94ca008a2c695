// loader_mode_linux.go: glibc dlopen mode flags
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

//go:build linux

package modelbox

// Values from <dlfcn.h> (glibc).
const (
	rtldLazy     = 0x0001
	rtldNow      = 0x0002
	rtldLocal    = 0x0000
	rtldGlobal   = 0x0100
	rtldNodelete = 0x1000
	rtldDeepBind = 0x0008

	deepBindSupported = true
)
