// errors.go: structured error definitions for the driver registry
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package modelbox

import (
	stderrors "errors"

	"github.com/agilira/go-errors"
)

// Error codes for the driver registry and loader.
const (
	// Configuration errors (1000-1099)
	ErrCodeInvalidVersion   = "DRIVER_1001"
	ErrCodeNilConfiguration = "DRIVER_1002"
	ErrCodeConfigFileError  = "DRIVER_1003"
	ErrCodeConfigParseError = "DRIVER_1004"

	// Filesystem and cache IO errors (1100-1199)
	ErrCodeStatFailed     = "DRIVER_1101"
	ErrCodeListFailed     = "DRIVER_1102"
	ErrCodeCacheReadError = "DRIVER_1103"
	ErrCodeCacheWrite     = "DRIVER_1104"
	ErrCodeDirectoryEmpty = "DRIVER_1105"

	// Dynamic linkage errors (1200-1299)
	ErrCodeLibraryOpenFailed  = "DRIVER_1201"
	ErrCodeSymbolNotFound     = "DRIVER_1202"
	ErrCodeLoaderUnavailable  = "DRIVER_1203"

	// Plugin lifecycle errors (1300-1399)
	ErrCodeDriverInitFailed    = "DRIVER_1301"
	ErrCodeFactoryCreateFailed = "DRIVER_1302"

	// Registry errors (1400-1499)
	ErrCodeDuplicateDriver = "DRIVER_1401"
	ErrCodeScanFailed      = "DRIVER_1402"
	ErrCodeChildScanFailed = "DRIVER_1403"
)

// Configuration error constructors

func NewInvalidVersionError(version string) *errors.Error {
	return errors.New(ErrCodeInvalidVersion, "Invalid driver version").
		WithUserMessage("Driver version must be x.y.z with integer components").
		WithContext("version", version).
		WithSeverity("error")
}

func NewNilConfigurationError() *errors.Error {
	return errors.New(ErrCodeNilConfiguration, "Configuration is empty").
		WithUserMessage("A configuration is required to initialize the registry").
		WithSeverity("error")
}

func NewConfigFileError(path, message string, cause error) *errors.Error {
	return errors.Wrap(cause, ErrCodeConfigFileError, "Configuration file error: "+message).
		WithUserMessage("Failed to access the configuration file").
		WithContext("path", path).
		WithSeverity("error")
}

func NewConfigParseError(path string, cause error) *errors.Error {
	return errors.Wrap(cause, ErrCodeConfigParseError, "Configuration parse failed").
		WithUserMessage("The configuration file could not be parsed").
		WithContext("path", path).
		WithSeverity("error")
}

// Filesystem error constructors

func NewStatError(path string, cause error) *errors.Error {
	return errors.Wrap(cause, ErrCodeStatFailed, "stat "+path+" failed").
		WithContext("path", path).
		WithSeverity("error")
}

func NewListError(dir, filter string, cause error) *errors.Error {
	return errors.Wrap(cause, ErrCodeListFailed, "list directory: "+dir+"/"+filter+" failed").
		WithContext("dir", dir).
		WithContext("filter", filter).
		WithSeverity("error")
}

func NewDirectoryEmptyError(dir string) *errors.Error {
	return errors.New(ErrCodeDirectoryEmpty, "directory is empty").
		WithContext("dir", dir).
		WithSeverity("info")
}

func NewCacheReadError(path string, cause error) *errors.Error {
	return errors.Wrap(cause, ErrCodeCacheReadError, "Open file "+path+" for read failed").
		WithContext("path", path).
		WithSeverity("error")
}

func NewCacheWriteError(path string, cause error) *errors.Error {
	return errors.Wrap(cause, ErrCodeCacheWrite, "Open file "+path+" for write failed").
		WithContext("path", path).
		WithSeverity("error")
}

// Linkage error constructors. The loader's own message is preserved
// verbatim so the user sees exactly what the linker reported.

func NewLibraryOpenError(file string, cause error) *errors.Error {
	msg := "dlopen " + file + " failed, error: " + linkerMessage(cause)
	err := errors.New(ErrCodeLibraryOpenFailed, msg)
	if cause != nil {
		err = errors.Wrap(cause, ErrCodeLibraryOpenFailed, msg)
	}
	return err.
		WithContext("file", file).
		WithSeverity("error")
}

func NewSymbolNotFoundError(file, symbol string, cause error) *errors.Error {
	msg := "failed to dlsym function " + symbol + " in file: " + file +
		", error: " + linkerMessage(cause)
	err := errors.New(ErrCodeSymbolNotFound, msg)
	if cause != nil {
		err = errors.Wrap(cause, ErrCodeSymbolNotFound, msg)
	}
	return err.
		WithContext("file", file).
		WithContext("symbol", symbol).
		WithSeverity("error")
}

func NewLoaderUnavailableError(platform string) *errors.Error {
	return errors.New(ErrCodeLoaderUnavailable, "dynamic loading is not supported on "+platform).
		WithContext("platform", platform).
		WithSeverity("error")
}

// linkerMessage extracts the loader's error text, substituting a
// placeholder when the platform reported nothing.
func linkerMessage(cause error) string {
	if cause == nil {
		return "no error msg"
	}
	return cause.Error()
}

// Plugin lifecycle error constructors

func NewDriverInitError(file string, cause error) *errors.Error {
	if cause == nil {
		return errors.New(ErrCodeDriverInitFailed, "driver init failed, driver: "+file).
			WithContext("file", file).
			WithSeverity("error")
	}
	return errors.Wrap(cause, ErrCodeDriverInitFailed, "driver init failed, driver: "+file).
		WithContext("file", file).
		WithSeverity("error")
}

func NewFactoryCreateError(file string) *errors.Error {
	return errors.New(ErrCodeFactoryCreateFailed, "create driver factory failed, driver: "+file).
		WithContext("file", file).
		WithSeverity("error")
}

// Registry error constructors

func NewDuplicateDriverError(file string) *errors.Error {
	return errors.New(ErrCodeDuplicateDriver, file+" : driver is already registered.").
		WithContext("file", file).
		WithSeverity("warning")
}

func NewScanError(message string, cause error) *errors.Error {
	return errors.Wrap(cause, ErrCodeScanFailed, "Driver scan failed: "+message).
		WithSeverity("error")
}

func NewChildScanError(message string, cause error) *errors.Error {
	return errors.Wrap(cause, ErrCodeChildScanFailed, "Subprocess scan failed: "+message).
		WithUserMessage("Re-running the driver scan in a child process failed").
		WithSeverity("error")
}

// errorCode extracts the registry error code from err, or empty.
func errorCode(err error) string {
	var e *errors.Error
	if stderrors.As(err, &e) {
		return string(e.ErrorCode())
	}
	return ""
}

// IsDirectoryEmpty reports whether err is the informational "directory
// has no matching libraries" condition; the scan treats it as not-found
// rather than failure.
func IsDirectoryEmpty(err error) bool {
	return errorCode(err) == ErrCodeDirectoryEmpty
}

// IsDuplicateDriver reports whether err marks a library whose identity
// is already registered.
func IsDuplicateDriver(err error) bool {
	return errorCode(err) == ErrCodeDuplicateDriver
}
