// scan_subprocess.go: child-process isolation for the driver rescan
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package modelbox

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
)

// ScanRunner decides where the full rescan executes. The rescan briefly
// dlopens every candidate library to harvest its description, and a
// misbehaving library can leak state into the process that performs it;
// running it in a child keeps the host process clean.
type ScanRunner interface {
	// Run executes scan on behalf of registry and returns its outcome.
	Run(registry *DriverRegistry, scan func() error) error
}

// inProcessScanRunner runs the rescan in the current process. This is
// the default: embedders accept the dlopen side effects in exchange for
// zero setup, and tests rely on it.
type inProcessScanRunner struct{}

// InProcessScanRunner returns the runner that executes the rescan
// directly in the calling process.
func InProcessScanRunner() ScanRunner {
	return inProcessScanRunner{}
}

func (inProcessScanRunner) Run(_ *DriverRegistry, scan func() error) error {
	return scan()
}

// scanChildEnv carries the rescan request into the re-executed binary.
const scanChildEnv = "MODELBOX_DRIVER_SCAN_CHILD"

// scanChildRequest is the payload handed to the child process.
type scanChildRequest struct {
	Dirs         []string `json:"dirs"`
	ScanInfoPath string   `json:"scan_info_path"`
	LdCachePath  string   `json:"ld_cache_path"`
}

// subprocessScanRunner re-executes the current binary to perform the
// rescan; the child writes the cache file and exits, and the parent
// consumes the cache afterwards. The host's main function must dispatch
// the child via ScanChildRequested / RunScanChild.
type subprocessScanRunner struct {
	logger Logger
}

// SubprocessScanRunner returns the runner that isolates the rescan in a
// child process.
func SubprocessScanRunner(logger any) ScanRunner {
	return subprocessScanRunner{logger: NewLogger(logger)}
}

func (s subprocessScanRunner) Run(registry *DriverRegistry, scan func() error) error {
	executable, err := os.Executable()
	if err != nil {
		s.logger.Warn("cannot resolve own executable, scanning in process", "error", err)
		return scan()
	}

	request := scanChildRequest{
		Dirs:         registry.DriverDirs(),
		ScanInfoPath: registry.scanInfoPath,
		LdCachePath:  registry.ldCachePath,
	}
	payload, err := json.Marshal(request)
	if err != nil {
		return NewChildScanError("encode scan request failed", err)
	}

	cmd := exec.Command(executable)
	cmd.Env = append(os.Environ(), scanChildEnv+"="+string(payload))
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	s.logger.Debug("running driver rescan in child process", "executable", executable)
	if err := cmd.Run(); err != nil {
		return NewChildScanError("child scan process failed", err)
	}

	return nil
}

// ScanChildRequested reports whether this process was started as a scan
// child. Host binaries check it first thing in main and hand control to
// RunScanChild.
func ScanChildRequested() bool {
	return os.Getenv(scanChildEnv) != ""
}

// RunScanChild performs the rescan requested through the environment
// and returns the process exit code. The child uses the system loader
// and a fresh registry; its only output is the scan cache file.
func RunScanChild() int {
	var request scanChildRequest
	if err := json.Unmarshal([]byte(os.Getenv(scanChildEnv)), &request); err != nil {
		fmt.Fprintln(os.Stderr, NewChildScanError("decode scan request failed", err))
		return 1
	}

	registry := NewDriverRegistry(RegistryOptions{
		ScanInfoPath: request.ScanInfoPath,
		LdCachePath:  request.LdCachePath,
	})
	registry.driverDirs = request.Dirs

	if err := registry.innerScan(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	return 0
}
