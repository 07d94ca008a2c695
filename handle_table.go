// handle_table.go: process-wide library handle lifecycle table
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package modelbox

import (
	"sync"
)

// HandleEntry tracks the init lifecycle of one unique library handle.
// Multiple drivers backed by the same file share the entry, so the
// plugin's DriverInit runs exactly once per resident interval and
// DriverFini at most once.
type HandleEntry struct {
	// initMu serializes the first and last transitions through the
	// plugin's init/fini entrypoints. It is never held together with
	// the table lock while plugin code runs.
	initMu sync.Mutex

	// initCount is guarded by initMu.
	initCount int

	// refCount is guarded by the owning table's lock.
	refCount int
}

// InitLock acquires the entry's init guard.
func (e *HandleEntry) InitLock() { e.initMu.Lock() }

// InitUnlock releases the entry's init guard.
func (e *HandleEntry) InitUnlock() { e.initMu.Unlock() }

// IncInitCount increments the init refcount and returns the new value.
// Callers must hold the init guard.
func (e *HandleEntry) IncInitCount() int {
	e.initCount++
	return e.initCount
}

// DecInitCount decrements the init refcount and returns the new value.
// Callers must hold the init guard.
func (e *HandleEntry) DecInitCount() int {
	e.initCount--
	return e.initCount
}

// PinInitCount restores the init refcount to one so the entry stays
// resident. Callers must hold the init guard.
func (e *HandleEntry) PinInitCount() {
	e.initCount = 1
}

// HandleTable maps raw library handles to their lifecycle entries. One
// table serves the whole process so dlopen/dlclose stay idempotent
// across every Driver backed by the same file.
type HandleTable struct {
	mu      sync.Mutex
	entries map[uintptr]*HandleEntry
}

// NewHandleTable creates an empty handle table.
func NewHandleTable() *HandleTable {
	return &HandleTable{entries: make(map[uintptr]*HandleEntry)}
}

// Acquire returns the entry for handle, creating it with refcount one
// when absent and incrementing it otherwise.
func (t *HandleTable) Acquire(handle uintptr) *HandleEntry {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.entries[handle]
	if !ok {
		entry = &HandleEntry{refCount: 1}
		t.entries[handle] = entry
		return entry
	}

	entry.refCount++
	return entry
}

// Release drops one reference on handle and reports whether the caller
// was the last holder; the entry is erased exactly then. Releasing an
// unknown handle reports false.
func (t *HandleTable) Release(handle uintptr) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.entries[handle]
	if !ok {
		return false
	}

	entry.refCount--
	if entry.refCount > 0 {
		return false
	}

	delete(t.entries, handle)
	return true
}

// Get returns the entry for handle, or nil when absent.
func (t *HandleTable) Get(handle uintptr) *HandleEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.entries[handle]
}

// Len reports how many handles are currently resident.
func (t *HandleTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// processHandles is the process-wide table. It is created eagerly so it
// outlives every Driver regardless of teardown order.
var processHandles = NewHandleTable()

// GlobalHandleTable returns the process-wide handle table.
func GlobalHandleTable() *HandleTable {
	return processHandles
}
