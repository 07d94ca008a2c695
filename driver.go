// driver.go: driver aggregate and factory lifecycle
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package modelbox

import (
	"runtime"
	"sync"
)

// Driver is one registered plugin library. It owns the descriptor and,
// while at least one factory reference is outstanding, the opened
// library handle and the factory built from it.
//
// The lifecycle is reference counted on two levels: the driver counts
// the factory references it handed out, and the process-wide
// HandleTable counts activations per unique library handle so the
// plugin's DriverInit/DriverFini run once per resident interval even
// when several drivers share one file.
type Driver struct {
	mu       sync.Mutex
	desc     *DriverDesc
	virtual  bool
	refCount int
	lib      SharedLibrary
	factory  DriverFactory

	loader  LibraryLoader
	handles *HandleTable
	logger  Logger
}

// NewDriver creates a driver bound to the system loader and the
// process-wide handle table. Virtual driver managers use this to build
// the drivers they contribute.
func NewDriver() *Driver {
	return newDriver(NewSystemLoader(), GlobalHandleTable(), DefaultLogger())
}

func newDriver(loader LibraryLoader, handles *HandleTable, logger Logger) *Driver {
	d := &Driver{
		desc:    NewDriverDesc(),
		loader:  loader,
		handles: handles,
		logger:  logger,
	}
	// Backstop for drop paths that bypass Clear: a driver can only
	// become collectable after every FactoryHandle on it is gone, so a
	// non-zero refcount here means a sub-handle leaked. Clear performs
	// the same check synchronously.
	runtime.SetFinalizer(d, (*Driver).assertNoFactories)
	return d
}

// GetDriverDesc returns the driver's descriptor.
func (d *Driver) GetDriverDesc() *DriverDesc {
	return d.desc
}

// SetDriverDesc replaces the driver's descriptor.
func (d *Driver) SetDriverDesc(desc *DriverDesc) {
	d.desc = desc
}

// GetDriverFile returns the library file backing this driver.
func (d *Driver) GetDriverFile() string {
	return d.desc.FilePath()
}

// IsVirtual reports whether a virtual driver manager produced this
// driver.
func (d *Driver) IsVirtual() bool {
	return d.virtual
}

// SetVirtual marks the driver as produced by a virtual driver manager.
func (d *Driver) SetVirtual(virtual bool) {
	d.virtual = virtual
}

// FactoryRefCount returns the number of outstanding factory references.
func (d *Driver) FactoryRefCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.refCount
}

// CreateFactory activates the driver if needed and returns a shared
// reference on its factory. The first caller opens the library with the
// descriptor's load mode, runs DriverInit once per resident handle, and
// builds the factory; later callers share the same factory. Releasing
// the returned handle re-enters CloseFactory; the factory lives as long
// as the longest-held reference.
func (d *Driver) CreateFactory() (*FactoryHandle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.refCount++
	if d.refCount == 1 {
		if err := d.activateLocked(); err != nil {
			return nil, err
		}
	}

	handle := &FactoryHandle{driver: d, factory: d.factory}
	runtime.SetFinalizer(handle, (*FactoryHandle).Release)
	return handle, nil
}

// activateLocked performs the first-reference activation. On any
// failure the refcount and handle-table changes made so far are undone
// and the driver returns to the unloaded state.
func (d *Driver) activateLocked() error {
	file := d.desc.FilePath()
	mode := LoadMode(d.desc.NoDelete(), d.desc.Global(), d.desc.DeepBind())

	lib, err := d.loader.Open(file, mode)
	if err != nil {
		d.refCount--
		d.factory = nil
		openErr := NewLibraryOpenError(file, err)
		d.logger.Error("driver library open failed", "file", file, "error", openErr)
		return openErr
	}
	d.lib = lib

	entry := d.handles.Acquire(lib.Handle())

	entry.InitLock()
	if entry.IncInitCount() == 1 {
		initFn, symErr := lib.Init()
		if symErr != nil {
			entry.DecInitCount()
			entry.InitUnlock()
			resolveErr := NewSymbolNotFoundError(file, SymbolDriverInit, symErr)
			d.logger.Error("driver init symbol missing", "file", file, "error", resolveErr)
			d.abortActivationLocked()
			return resolveErr
		}

		if initErr := initFn(); initErr != nil {
			entry.DecInitCount()
			entry.InitUnlock()
			wrapped := NewDriverInitError(file, initErr)
			d.logger.Error("driver init failed", "file", file, "error", wrapped)
			d.abortActivationLocked()
			return wrapped
		}
	}
	entry.InitUnlock()

	createFn, symErr := lib.Factory()
	if symErr != nil {
		resolveErr := NewSymbolNotFoundError(file, SymbolCreateDriverFactory, symErr)
		d.logger.Error("driver factory symbol missing", "file", file, "error", resolveErr)
		d.closeFactoryLocked()
		return resolveErr
	}

	factory := createFn()
	if factory == nil {
		createErr := NewFactoryCreateError(file)
		d.logger.Error("driver factory creation failed", "file", file, "error", createErr)
		d.closeFactoryLocked()
		return createErr
	}

	d.factory = factory
	return nil
}

// abortActivationLocked unwinds an activation whose init phase never
// completed: the handle-table reference is dropped without running
// DriverFini, the library is closed, and the refcount returns to zero.
func (d *Driver) abortActivationLocked() {
	d.handles.Release(d.lib.Handle())
	if err := d.lib.Close(); err != nil {
		d.logger.Warn("driver library close failed", "file", d.desc.FilePath(), "error", err)
	}
	d.lib = nil
	d.factory = nil
	d.refCount--
}

// CloseFactory drops one factory reference. The last reference tears
// the driver down: DriverFini runs when this was the final activation
// of the underlying handle and the descriptor allows unloading;
// no_delete drivers instead pin their handle entry so the library stays
// initialized for the life of the process.
func (d *Driver) CloseFactory() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closeFactoryLocked()
}

func (d *Driver) closeFactoryLocked() {
	d.refCount--
	if d.refCount > 0 {
		return
	}

	if d.lib == nil {
		d.factory = nil
		return
	}

	handle := d.lib.Handle()
	entry := d.handles.Get(handle)
	if entry == nil {
		d.logger.Error("close factory failed, no handle entry", "file", d.desc.FilePath())
		d.factory = nil
		d.lib = nil
		return
	}

	noDelete := d.desc.NoDelete()
	pinned := false

	entry.InitLock()
	if entry.DecInitCount() == 0 {
		if noDelete {
			// Keep the entry resident so the plugin is never
			// re-initialized and its finalizer never runs.
			entry.PinInitCount()
			pinned = true
		} else {
			if fini, err := d.lib.Fini(); err == nil {
				fini()
			}
		}
	}
	entry.InitUnlock()

	if !pinned {
		d.handles.Release(handle)
	}

	d.factory = nil
	if err := d.lib.Close(); err != nil {
		d.logger.Warn("driver library close failed", "file", d.desc.FilePath(), "error", err)
	}
	d.lib = nil
}

// assertNoFactories panics when the driver still has outstanding
// factory references; discarding such a driver would leak a live
// sub-handle, which is a programming error rather than a recoverable
// condition.
func (d *Driver) assertNoFactories() {
	d.mu.Lock()
	count := d.refCount
	d.mu.Unlock()

	if count != 0 {
		panic("modelbox: driver " + d.desc.FilePath() +
			" discarded while factory reference count is not zero")
	}
}

// FactoryHandle is one shared reference on a driver's factory. Release
// is idempotent; a handle collected by the garbage collector without an
// explicit Release still releases its reference.
type FactoryHandle struct {
	driver  *Driver
	factory DriverFactory
	once    sync.Once
}

// Factory returns the underlying factory. The value stays valid until
// the handle is released.
func (h *FactoryHandle) Factory() DriverFactory {
	return h.factory
}

// Release drops this reference. The last release across all handles
// tears down the driver via CloseFactory.
func (h *FactoryHandle) Release() {
	h.once.Do(func() {
		runtime.SetFinalizer(h, nil)
		h.driver.CloseFactory()
	})
}
