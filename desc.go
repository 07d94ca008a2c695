// desc.go: driver descriptor value object
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package modelbox

import (
	"strings"
)

// DriverDesc describes one driver library: its identity (class, type,
// name, version), the file that backs it, and the load flags applied
// when the library is activated. A populated descriptor is treated as
// immutable by the registry.
type DriverDesc struct {
	class       string
	driverType  string
	name        string
	version     string
	description string
	filePath    string
	noDelete    bool
	global      bool
	deepBind    bool
}

// NewDriverDesc creates an empty descriptor for a DriverDescription
// export to populate.
func NewDriverDesc() *DriverDesc {
	return &DriverDesc{}
}

// Class returns the driver class ("cpu", "virtual", ...).
func (d *DriverDesc) Class() string { return d.class }

// Type returns the driver type within its class.
func (d *DriverDesc) Type() string { return d.driverType }

// Name returns the driver name.
func (d *DriverDesc) Name() string { return d.name }

// Version returns the driver version, empty or "x.y.z".
func (d *DriverDesc) Version() string { return d.version }

// Description returns the human-readable description.
func (d *DriverDesc) Description() string { return d.description }

// FilePath returns the library file backing this driver.
func (d *DriverDesc) FilePath() string { return d.filePath }

// NoDelete reports whether the library must stay resident after unload.
func (d *DriverDesc) NoDelete() bool { return d.noDelete }

// Global reports whether the library's symbols enter the global scope.
func (d *DriverDesc) Global() bool { return d.global }

// DeepBind reports whether the library prefers its own symbols.
func (d *DriverDesc) DeepBind() bool { return d.deepBind }

// SetClass sets the driver class.
func (d *DriverDesc) SetClass(class string) { d.class = class }

// SetType sets the driver type.
func (d *DriverDesc) SetType(driverType string) { d.driverType = driverType }

// SetName sets the driver name.
func (d *DriverDesc) SetName(name string) { d.name = name }

// SetDescription sets the human-readable description.
func (d *DriverDesc) SetDescription(description string) { d.description = description }

// SetFilePath records the library file backing this driver.
func (d *DriverDesc) SetFilePath(filePath string) { d.filePath = filePath }

// SetNoDelete sets the keep-resident load flag.
func (d *DriverDesc) SetNoDelete(noDelete bool) { d.noDelete = noDelete }

// SetGlobal sets the global symbol visibility flag.
func (d *DriverDesc) SetGlobal(global bool) { d.global = global }

// SetDeepBind sets the deep-bind load flag.
func (d *DriverDesc) SetDeepBind(deepBind bool) { d.deepBind = deepBind }

// SetVersion validates and sets the driver version. The empty string is
// accepted and leaves the version unset; anything else must be three
// dot-separated non-empty decimal components.
func (d *DriverDesc) SetVersion(version string) error {
	if version == "" {
		return nil
	}

	if err := checkVersion(version); err != nil {
		return err
	}

	d.version = version
	return nil
}

// checkVersion enforces the x.y.z shape with integer components. The
// version doubles as a sort key in DriverRegistry.GetDriver, which
// compares version strings directly.
func checkVersion(version string) error {
	if !strings.Contains(version, ".") {
		return NewInvalidVersionError(version)
	}

	parts := strings.Split(version, ".")
	if len(parts) != 3 {
		return NewInvalidVersionError(version)
	}

	for _, part := range parts {
		if part == "" || !isDigits(part) {
			return NewInvalidVersionError(version)
		}
	}

	return nil
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// sameIdentity reports whether two descriptors carry the identity tuple
// the registry dedupes on.
func (d *DriverDesc) sameIdentity(other *DriverDesc) bool {
	return d.class == other.class &&
		d.driverType == other.driverType &&
		d.name == other.name &&
		d.description == other.description &&
		d.version == other.version
}
