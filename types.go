// types.go: shared contracts and constants for the driver registry
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package modelbox

// Reserved driver class handled by the registry itself: drivers of this
// class expose a VirtualDriverManager factory and act as sub-registries.
const DriverClassVirtual = "virtual"

// Configuration keys consumed by DriverRegistry.Initialize.
const (
	// ConfigKeyDriverDir is the multi-valued list of directories to scan.
	ConfigKeyDriverDir = "driver.dir"

	// ConfigKeyDriverSkipDefault suppresses the compiled-in default
	// driver directory when true.
	ConfigKeyDriverSkipDefault = "driver.skip-default"
)

// Compile-time defaults for discovery and scan caching.
const (
	// DefaultDriverDir is appended to the configured search path unless
	// driver.skip-default is set.
	DefaultDriverDir = "/usr/local/lib/modelbox-drivers"

	// DefaultScanInfoPath is where the scan cache document is persisted.
	DefaultScanInfoPath = "/var/lib/modelbox/driver-scan-info.json"

	// DefaultLdCachePath is the system linker cache whose mtime
	// invalidates the scan cache.
	DefaultLdCachePath = "/etc/ld.so.cache"

	// DriverFileFilter selects candidate driver libraries inside each
	// configured directory.
	DriverFileFilter = "libmodelbox-*.so*"
)

// Exported symbol names every driver library must provide. DriverFini is
// optional and only resolved during teardown.
const (
	SymbolDriverDescription   = "DriverDescription"
	SymbolDriverInit          = "DriverInit"
	SymbolCreateDriverFactory = "CreateDriverFactory"
	SymbolDriverFini          = "DriverFini"
)

// DriverFactory is the object a driver library exports to build runtime
// instances. The registry treats it as opaque and only manages its
// lifetime; concrete factories expose their own construction surface to
// the layers above.
type DriverFactory interface{}

// VirtualDriverManager is the factory contract for drivers of class
// "virtual". A manager is initialized against the owning registry, scans
// the same directory list, and contributes additional drivers which the
// registry appends to its catalogue.
type VirtualDriverManager interface {
	DriverFactory

	// Init binds the manager to the registry it was loaded from.
	Init(registry *DriverRegistry) error

	// Scan lets the manager discover its own drivers under the
	// registry's configured directories.
	Scan(dirs []string) error

	// GetAllDriverList returns every driver the manager produced during
	// the last Scan.
	GetAllDriverList() []*Driver
}

// Typed views over the exported plugin entrypoints, as resolved by a
// LibraryLoader implementation.
type (
	// DriverDescriptionFunc populates a descriptor from the library's
	// DriverDescription export.
	DriverDescriptionFunc func(*DriverDesc)

	// DriverInitFunc runs the library's one-time DriverInit export.
	DriverInitFunc func() error

	// DriverCreateFunc builds the library's factory. A nil result means
	// the library refused to construct one.
	DriverCreateFunc func() DriverFactory

	// DriverFiniFunc runs the library's optional DriverFini export.
	DriverFiniFunc func()
)
