// loader_unix.go: purego-backed system loader and driver ABI bridge
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

//go:build darwin || linux

package modelbox

import (
	"unsafe"

	"github.com/ebitengine/purego"
)

// systemLoader opens libraries through the platform dynamic linker.
type systemLoader struct{}

// NewSystemLoader returns the loader backed by dlopen/dlsym/dlclose.
func NewSystemLoader() LibraryLoader {
	return &systemLoader{}
}

func (systemLoader) Open(path string, mode int) (SharedLibrary, error) {
	handle, err := purego.Dlopen(path, mode)
	if err != nil {
		return nil, err
	}
	return &systemLibrary{path: path, handle: handle}, nil
}

// systemLibrary is one dlopen handle plus the typed bridges over the
// driver ABI exports.
type systemLibrary struct {
	path   string
	handle uintptr
}

func (l *systemLibrary) Handle() uintptr {
	return l.handle
}

func (l *systemLibrary) Close() error {
	return purego.Dlclose(l.handle)
}

// driverDescriptionABI mirrors the C descriptor the plugin fills in its
// DriverDescription export. String fields are NUL-terminated C strings
// owned by the plugin.
type driverDescriptionABI struct {
	class       uintptr
	driverType  uintptr
	name        uintptr
	version     uintptr
	description uintptr
	noDelete    int32
	global      int32
	deepBind    int32
}

func (l *systemLibrary) Description() (DriverDescriptionFunc, error) {
	sym, err := purego.Dlsym(l.handle, SymbolDriverDescription)
	if err != nil {
		return nil, err
	}

	var describe func(unsafe.Pointer)
	purego.RegisterFunc(&describe, sym)

	return func(desc *DriverDesc) {
		var raw driverDescriptionABI
		describe(unsafe.Pointer(&raw))

		desc.SetClass(goString(raw.class))
		desc.SetType(goString(raw.driverType))
		desc.SetName(goString(raw.name))
		desc.SetDescription(goString(raw.description))
		_ = desc.SetVersion(goString(raw.version))
		desc.SetNoDelete(raw.noDelete != 0)
		desc.SetGlobal(raw.global != 0)
		desc.SetDeepBind(raw.deepBind != 0)
	}, nil
}

func (l *systemLibrary) Init() (DriverInitFunc, error) {
	sym, err := purego.Dlsym(l.handle, SymbolDriverInit)
	if err != nil {
		return nil, err
	}

	var initFn func() int32
	purego.RegisterFunc(&initFn, sym)

	path := l.path
	return func() error {
		if code := initFn(); code != 0 {
			return NewDriverInitError(path, nil).WithContext("status", code)
		}
		return nil
	}, nil
}

func (l *systemLibrary) Factory() (DriverCreateFunc, error) {
	sym, err := purego.Dlsym(l.handle, SymbolCreateDriverFactory)
	if err != nil {
		return nil, err
	}

	var create func() uintptr
	purego.RegisterFunc(&create, sym)

	return func() DriverFactory {
		ptr := create()
		if ptr == 0 {
			return nil
		}
		return &NativeDriverFactory{ptr: ptr}
	}, nil
}

func (l *systemLibrary) Fini() (DriverFiniFunc, error) {
	sym, err := purego.Dlsym(l.handle, SymbolDriverFini)
	if err != nil {
		return nil, err
	}

	var fini func()
	purego.RegisterFunc(&fini, sym)
	return fini, nil
}

// NativeDriverFactory wraps the opaque factory pointer a C driver
// returns from CreateDriverFactory. The flow layer resolves further
// exports against the same library to operate it.
type NativeDriverFactory struct {
	ptr uintptr
}

// Pointer returns the plugin-owned factory pointer.
func (f *NativeDriverFactory) Pointer() uintptr {
	return f.ptr
}

// goString copies a NUL-terminated C string into a Go string. A zero
// pointer yields the empty string.
func goString(p uintptr) string {
	if p == 0 {
		return ""
	}
	var n int
	for *(*byte)(unsafe.Pointer(p + uintptr(n))) != 0 {
		n++
	}
	if n == 0 {
		return ""
	}
	return string(unsafe.Slice((*byte)(unsafe.Pointer(p)), n))
}
