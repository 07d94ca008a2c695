// registry.go: process driver catalogue, discovery and virtual recursion
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package modelbox

import (
	"os"
	"sort"
	"sync"
	"time"

	"github.com/agilira/go-timecache"
)

// DriverRegistry is the catalogue of every driver known to the process.
// It scans the configured directories, validates and dedupes each
// library's exported description, persists the result across restarts,
// and lends live factories with deterministic teardown.
//
// Catalogue mutation is confined to Initialize, Scan, Add,
// VirtualDriverScan and Clear;
// callers must quiesce readers across those operations. Factory
// acquisition and release on individual drivers is safe concurrently.
type DriverRegistry struct {
	drivers         []*Driver
	virtualManagers []*FactoryHandle
	driverDirs      []string
	config          Configuration

	lastModifyTimeSum int64
	scanResult        *ScanResultInfo

	loader           LibraryLoader
	logger           Logger
	handles          *HandleTable
	scanRunner       ScanRunner
	scanInfoPath     string
	ldCachePath      string
	defaultDriverDir string
}

// RegistryOptions configures a DriverRegistry. The zero value selects
// the system loader, the process-wide handle table, silent logging, an
// in-process rescan and the compiled-in default paths.
type RegistryOptions struct {
	// Loader opens driver libraries; nil selects the platform loader.
	Loader LibraryLoader

	// Logger receives scan and lifecycle logs; nil is silent.
	Logger Logger

	// Handles overrides the handle table; nil selects the process-wide
	// table. Only tests should override this.
	Handles *HandleTable

	// ScanRunner isolates the rescan; nil runs it in-process. Hosts
	// that want dlopen side effects kept out of the main process use
	// SubprocessScanRunner.
	ScanRunner ScanRunner

	// ScanInfoPath overrides where the scan cache is persisted.
	ScanInfoPath string

	// LdCachePath overrides the linker cache consulted for validity.
	LdCachePath string

	// DefaultDriverDir overrides the compiled-in driver directory.
	DefaultDriverDir string
}

// NewDriverRegistry creates a registry with the given options.
func NewDriverRegistry(opts RegistryOptions) *DriverRegistry {
	if opts.Loader == nil {
		opts.Loader = NewSystemLoader()
	}
	if opts.Logger == nil {
		opts.Logger = DefaultLogger()
	}
	if opts.Handles == nil {
		opts.Handles = GlobalHandleTable()
	}
	if opts.ScanRunner == nil {
		opts.ScanRunner = InProcessScanRunner()
	}
	if opts.ScanInfoPath == "" {
		opts.ScanInfoPath = DefaultScanInfoPath
	}
	if opts.LdCachePath == "" {
		opts.LdCachePath = DefaultLdCachePath
	}
	if opts.DefaultDriverDir == "" {
		opts.DefaultDriverDir = DefaultDriverDir
	}

	return &DriverRegistry{
		scanResult:       NewScanResultInfo(),
		loader:           opts.Loader,
		logger:           opts.Logger,
		handles:          opts.Handles,
		scanRunner:       opts.ScanRunner,
		scanInfoPath:     opts.ScanInfoPath,
		ldCachePath:      opts.LdCachePath,
		defaultDriverDir: opts.DefaultDriverDir,
	}
}

var (
	registryOnce     sync.Once
	registryInstance *DriverRegistry
)

// GetInstance returns the process registry, creating it with defaults
// on first use.
func GetInstance() *DriverRegistry {
	registryOnce.Do(func() {
		registryInstance = NewDriverRegistry(RegistryOptions{})
	})
	return registryInstance
}

// Initialize reads the driver search path from configuration: every
// value of driver.dir, plus the compiled-in default directory unless
// driver.skip-default is set. Calling it again with the same
// configuration recomputes the same directory list.
func (r *DriverRegistry) Initialize(config Configuration) error {
	if config == nil {
		return NewNilConfigurationError()
	}
	r.config = config

	r.driverDirs = config.GetStrings(ConfigKeyDriverDir)
	if !config.GetBool(ConfigKeyDriverSkipDefault, false) {
		r.driverDirs = append(r.driverDirs, r.defaultDriverDir)
	}

	for _, dir := range r.driverDirs {
		r.logger.Debug("driver search path", "dir", dir)
	}

	return nil
}

// DriverDirs returns the configured search directories.
func (r *DriverRegistry) DriverDirs() []string {
	out := make([]string, len(r.driverDirs))
	copy(out, r.driverDirs)
	return out
}

// ScanResult returns the success/failure record of the last walk.
func (r *DriverRegistry) ScanResult() *ScanResultInfo {
	return r.scanResult
}

// Scan brings the catalogue up to date. When the persisted cache still
// matches the filesystem it is consumed directly; otherwise the full
// walk runs under the configured ScanRunner and rewrites the cache.
// Afterwards the catalogue is rebuilt from the cache, the summary is
// logged, and virtual drivers are given their recursive scan pass.
func (r *DriverRegistry) Scan() error {
	start := timecache.CachedTime()

	if !r.checkPathAndMagicCode() {
		if err := r.scanRunner.Run(r, r.innerScan); err != nil {
			scanErr := NewChildScanError("rescan failed", err)
			r.logger.Error("driver rescan failed", "error", scanErr)
			return scanErr
		}
	}

	if err := r.gatherScanInfo(r.scanInfoPath); err != nil {
		return NewScanError("gather scan info failed", err)
	}

	r.printScanResults(r.scanInfoPath)

	r.logger.Info("begin scan virtual drivers")
	err := r.VirtualDriverScan()
	r.logger.Info("end scan virtual drivers")

	r.logger.Info("driver scan complete",
		"drivers", len(r.drivers),
		"elapsed", time.Since(start))
	return err
}

// innerScan walks every configured directory, adds each candidate
// library, and writes the scan cache stamped with the derived check
// code. Directory failures are best-effort: a broken directory is
// logged and the walk moves on.
func (r *DriverRegistry) innerScan() error {
	r.lastModifyTimeSum = 0
	r.scanResult = NewScanResultInfo()

	for _, dir := range r.driverDirs {
		if err := r.ScanDirectory(dir, DriverFileFilter); err != nil && !IsDirectoryEmpty(err) {
			r.logger.Warn("scan directory failed", "dir", dir, "error", err)
		}
	}

	checkCode := GenerateKey(r.lastModifyTimeSum)
	if err := r.writeScanInfo(r.scanInfoPath, checkCode); err != nil {
		r.logger.Error("write scan info failed", "error", err)
		return NewScanError("write scan info failed", err)
	}

	return nil
}

// ScanDirectory adds every library matching filter directly under path.
// A path naming a single file is added as-is. Symbolic links are
// skipped; their targets surface as regular files elsewhere in the
// walk or not at all. Mtimes of every considered entry feed the cache
// check code.
func (r *DriverRegistry) ScanDirectory(path, filter string) error {
	info, err := os.Lstat(path)
	if err != nil {
		return NewStatError(path, err)
	}

	if !info.IsDir() {
		r.lastModifyTimeSum += info.ModTime().Unix()
		addErr := r.Add(path)
		r.recordAddResult(path, addErr)
		return addErr
	}

	files, err := listDriverFiles(path, filter)
	if err != nil {
		return NewListError(path, filter, err)
	}

	if len(files) == 0 {
		return NewDirectoryEmptyError(path)
	}

	for _, file := range files {
		stat, err := os.Lstat(file)
		if err != nil {
			continue
		}

		if stat.Mode()&os.ModeSymlink != 0 {
			continue
		}
		r.lastModifyTimeSum += stat.ModTime().Unix()

		r.recordAddResult(file, r.Add(file))
	}

	return nil
}

func (r *DriverRegistry) recordAddResult(file string, err error) {
	if err == nil {
		r.scanResult.AddSuccess(file)
		return
	}
	r.scanResult.AddFailure(file, err.Error())
}

// Add probes a single library: it is opened lazily with local
// visibility, its exported DriverDescription populates a fresh
// descriptor, the identity is deduped against the catalogue, and the
// probing handle is closed again. A descriptor requesting no_delete
// triggers a second open that pins the library in the loader. Failures
// leave the catalogue unchanged.
func (r *DriverRegistry) Add(file string) error {
	lib, err := r.loader.Open(file, descriptionLoadMode())
	if err != nil {
		return NewLibraryOpenError(file, err)
	}

	describe, symErr := lib.Description()
	if symErr != nil {
		closeProbe(lib, r.logger)
		return NewSymbolNotFoundError(file, SymbolDriverDescription, symErr)
	}

	driver := newDriver(r.loader, r.handles, r.logger)
	desc := driver.GetDriverDesc()
	describe(desc)

	if r.containsDriver(driver) {
		r.logger.Debug("add driver failed, same library already registered", "file", file)
		closeProbe(lib, r.logger)
		return NewDuplicateDriverError(file)
	}

	desc.SetFilePath(file)
	if desc.NoDelete() {
		if pin, pinErr := r.loader.Open(file, pinLoadMode()); pinErr == nil {
			closeProbe(pin, r.logger)
		} else {
			r.logger.Warn("dlopen as no delete failed", "file", file, "error", pinErr)
		}
	}

	r.drivers = append(r.drivers, driver)
	closeProbe(lib, r.logger)

	r.logger.Debug("add driver",
		"name", desc.Name(),
		"class", desc.Class(),
		"type", desc.Type(),
		"description", desc.Description(),
		"version", desc.Version(),
		"file", file)
	return nil
}

func closeProbe(lib SharedLibrary, logger Logger) {
	if err := lib.Close(); err != nil {
		logger.Warn("probe library close failed", "error", err)
	}
}

// containsDriver reports whether the catalogue already holds a driver
// with the same identity tuple.
func (r *DriverRegistry) containsDriver(driver *Driver) bool {
	target := driver.GetDriverDesc()
	for _, existing := range r.drivers {
		if existing.GetDriverDesc().sameIdentity(target) {
			return true
		}
	}
	return false
}

// VirtualDriverScan gives every driver of the reserved virtual class a
// recursive registration pass: its factory is downcast to
// VirtualDriverManager, initialized against this registry, asked to
// scan the same directories, and every driver it produced is appended
// with the virtual mark. The manager's factory reference is retained so
// it outlives the drivers it spawned.
func (r *DriverRegistry) VirtualDriverScan() error {
	for _, driver := range r.GetDriverListByClass(DriverClassVirtual) {
		handle, err := driver.CreateFactory()
		if err != nil {
			r.logger.Warn("virtual driver factory failed", "file", driver.GetDriverFile(), "error", err)
			continue
		}

		manager, ok := handle.Factory().(VirtualDriverManager)
		if !ok {
			handle.Release()
			continue
		}

		if err := manager.Init(r); err != nil {
			r.logger.Warn("virtual driver init failed", "error", err)
		}

		if err := manager.Scan(r.driverDirs); err != nil {
			r.logger.Warn("virtual driver scan failed", "error", err)
		}

		for _, virtualDriver := range manager.GetAllDriverList() {
			virtualDriver.SetVirtual(true)
			r.drivers = append(r.drivers, virtualDriver)
		}

		r.virtualManagers = append(r.virtualManagers, handle)
	}

	return nil
}

// GetAllDriverList returns every registered driver in catalogue order.
func (r *DriverRegistry) GetAllDriverList() []*Driver {
	out := make([]*Driver, len(r.drivers))
	copy(out, r.drivers)
	return out
}

// GetDriverListByClass returns the drivers of one class in catalogue
// order.
func (r *DriverRegistry) GetDriverListByClass(driverClass string) []*Driver {
	var out []*Driver
	for _, driver := range r.drivers {
		if driver.GetDriverDesc().Class() == driverClass {
			out = append(out, driver)
		}
	}
	return out
}

// GetDriverClassList returns the distinct driver classes.
func (r *DriverRegistry) GetDriverClassList() []string {
	var classes []string
	for _, driver := range r.drivers {
		classes = append(classes, driver.GetDriverDesc().Class())
	}
	return removeSameElements(classes)
}

// GetDriverTypeList returns the distinct types within a class.
func (r *DriverRegistry) GetDriverTypeList(driverClass string) []string {
	var types []string
	for _, driver := range r.drivers {
		desc := driver.GetDriverDesc()
		if desc.Class() == driverClass {
			types = append(types, desc.Type())
		}
	}
	return removeSameElements(types)
}

// GetDriverNameList returns the distinct names within a class and type.
func (r *DriverRegistry) GetDriverNameList(driverClass, driverType string) []string {
	var names []string
	for _, driver := range r.drivers {
		desc := driver.GetDriverDesc()
		if desc.Class() == driverClass && desc.Type() == driverType {
			names = append(names, desc.Name())
		}
	}
	return removeSameElements(names)
}

// GetDriver returns the driver matching the identity exactly, or the
// identity match with the greatest version string when the requested
// version is absent, or nil when no identity matches. Version strings
// compare lexicographically; ties keep the earliest scanned driver.
func (r *DriverRegistry) GetDriver(driverClass, driverType, driverName, driverVersion string) *Driver {
	var candidate *Driver
	for _, driver := range r.drivers {
		desc := driver.GetDriverDesc()
		if desc.Class() != driverClass || desc.Type() != driverType || desc.Name() != driverName {
			continue
		}

		if desc.Version() == driverVersion {
			return driver
		}

		if candidate == nil {
			candidate = driver
			continue
		}

		if candidate.GetDriverDesc().Version() < desc.Version() {
			candidate = driver
		}
	}

	return candidate
}

// Clear empties the registry: virtual drivers and their retained
// managers go first, then the remaining catalogue, the directory list,
// the configuration and the mtime sum. Outstanding factories are not
// force-released; discarding a driver that still has live factory
// references is a programming error and panics.
func (r *DriverRegistry) Clear() {
	var virtualDrivers []*Driver
	remaining := make([]*Driver, 0, len(r.drivers))
	for _, driver := range r.drivers {
		if driver.IsVirtual() {
			virtualDrivers = append(virtualDrivers, driver)
			continue
		}
		remaining = append(remaining, driver)
	}
	r.drivers = remaining

	for _, handle := range r.virtualManagers {
		handle.Release()
	}
	r.virtualManagers = nil

	for _, driver := range virtualDrivers {
		driver.assertNoFactories()
	}
	for _, driver := range r.drivers {
		driver.assertNoFactories()
	}

	r.drivers = nil
	r.driverDirs = nil
	r.config = nil
	r.lastModifyTimeSum = 0
	r.scanResult = NewScanResultInfo()
}

// removeSameElements sorts and dedupes a projection list.
func removeSameElements(values []string) []string {
	sort.Strings(values)
	out := values[:0]
	var prev string
	for i, v := range values {
		if i > 0 && v == prev {
			continue
		}
		out = append(out, v)
		prev = v
	}
	return out
}
