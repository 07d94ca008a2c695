// loader.go: dynamic library loading abstraction
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package modelbox

// LibraryLoader opens driver libraries. The process default is the
// platform dynamic linker (see NewSystemLoader); tests and embedders may
// substitute their own implementation.
type LibraryLoader interface {
	// Open loads the library at path with the given mode flags and
	// returns a live handle on it. The returned error carries the
	// linker's message verbatim.
	Open(path string, mode int) (SharedLibrary, error)
}

// SharedLibrary is one opened driver library. Entrypoint accessors
// resolve the corresponding exported symbol on each call, so resolution
// failures surface exactly where the lifecycle needs them.
type SharedLibrary interface {
	// Handle is the opaque token the platform loader assigned to this
	// library. Two opens of the same file observe the same handle while
	// the library stays resident.
	Handle() uintptr

	// Description resolves the mandatory DriverDescription export.
	Description() (DriverDescriptionFunc, error)

	// Init resolves the mandatory DriverInit export.
	Init() (DriverInitFunc, error)

	// Factory resolves the mandatory CreateDriverFactory export.
	Factory() (DriverCreateFunc, error)

	// Fini resolves the optional DriverFini export. The error reports a
	// missing symbol; callers treat that as "nothing to run".
	Fini() (DriverFiniFunc, error)

	// Close drops this reference on the library. The platform loader
	// refcounts opens, so the library stays resident while other
	// references exist.
	Close() error
}

// LoadMode composes the dynamic-linker flags for a driver activation:
// eager binding, optionally pinned across unload, optionally preferring
// the library's own symbols, and exactly one of global or local symbol
// visibility.
func LoadMode(noDelete, global, deepBind bool) int {
	mode := rtldNow
	if noDelete {
		mode |= rtldNodelete
	}

	if deepBind && deepBindSupported {
		mode |= rtldDeepBind
	}

	if global {
		return mode | rtldGlobal
	}
	return mode | rtldLocal
}

// descriptionLoadMode is the probing mode used while harvesting a
// library's descriptor: lazy binding, local visibility, never pinned.
func descriptionLoadMode() int {
	return rtldLazy | rtldLocal
}

// pinLoadMode keeps a library resident in the loader after its probing
// handle closes.
func pinLoadMode() int {
	return rtldLazy | rtldLocal | rtldNodelete
}
