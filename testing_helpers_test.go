// testing_helpers_test.go: shared fixtures for registry and driver tests
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package modelbox

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// fakePlugin models one driver library's exported surface for tests.
type fakePlugin struct {
	describe           DriverDescriptionFunc
	initErr            error
	factory            func() DriverFactory
	missingDescription bool
	missingInit        bool
	missingFactory     bool
	hasFini            bool

	handle    uintptr
	initCalls int
	finiCalls int
}

// fakeLoader resolves library paths against registered fake plugins.
// Re-opening a path yields the same handle while the plugin stays
// registered, matching platform loader behavior for resident files.
type fakeLoader struct {
	mu         sync.Mutex
	plugins    map[string]*fakePlugin
	openErrs   map[string]error
	openModes  map[string][]int
	opens      int
	nextHandle uintptr
}

func newFakeLoader() *fakeLoader {
	return &fakeLoader{
		plugins:   make(map[string]*fakePlugin),
		openErrs:  make(map[string]error),
		openModes: make(map[string][]int),
	}
}

func (l *fakeLoader) register(path string, plugin *fakePlugin) *fakePlugin {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.plugins[path] = plugin
	return plugin
}

// registerDescribed registers a plugin exporting the given identity.
func (l *fakeLoader) registerDescribed(path, class, driverType, name, version string) *fakePlugin {
	return l.register(path, &fakePlugin{
		describe: func(desc *DriverDesc) {
			desc.SetClass(class)
			desc.SetType(driverType)
			desc.SetName(name)
			desc.SetDescription(class + "-" + name + " driver")
			_ = desc.SetVersion(version)
		},
	})
}

func (l *fakeLoader) openCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.opens
}

func (l *fakeLoader) initCalls(plugin *fakePlugin) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return plugin.initCalls
}

func (l *fakeLoader) finiCalls(plugin *fakePlugin) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return plugin.finiCalls
}

func (l *fakeLoader) Open(path string, mode int) (SharedLibrary, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.openErrs[path]; err != nil {
		return nil, err
	}

	plugin, ok := l.plugins[path]
	if !ok {
		return nil, fmt.Errorf("%s: cannot open shared object file: No such file or directory", path)
	}

	if plugin.handle == 0 {
		l.nextHandle++
		plugin.handle = l.nextHandle
	}

	l.opens++
	l.openModes[path] = append(l.openModes[path], mode)
	return &fakeLibrary{loader: l, plugin: plugin}, nil
}

type fakeLibrary struct {
	loader *fakeLoader
	plugin *fakePlugin
}

func (f *fakeLibrary) Handle() uintptr {
	return f.plugin.handle
}

func (f *fakeLibrary) Close() error {
	return nil
}

func (f *fakeLibrary) Description() (DriverDescriptionFunc, error) {
	if f.plugin.missingDescription {
		return nil, fmt.Errorf("undefined symbol: %s", SymbolDriverDescription)
	}
	describe := f.plugin.describe
	if describe == nil {
		describe = func(*DriverDesc) {}
	}
	return describe, nil
}

func (f *fakeLibrary) Init() (DriverInitFunc, error) {
	if f.plugin.missingInit {
		return nil, fmt.Errorf("undefined symbol: %s", SymbolDriverInit)
	}
	return func() error {
		f.loader.mu.Lock()
		f.plugin.initCalls++
		f.loader.mu.Unlock()
		return f.plugin.initErr
	}, nil
}

func (f *fakeLibrary) Factory() (DriverCreateFunc, error) {
	if f.plugin.missingFactory {
		return nil, fmt.Errorf("undefined symbol: %s", SymbolCreateDriverFactory)
	}
	return func() DriverFactory {
		if f.plugin.factory != nil {
			return f.plugin.factory()
		}
		return &struct{ name string }{name: "fake-factory"}
	}, nil
}

func (f *fakeLibrary) Fini() (DriverFiniFunc, error) {
	if !f.plugin.hasFini {
		return nil, fmt.Errorf("undefined symbol: %s", SymbolDriverFini)
	}
	return func() {
		f.loader.mu.Lock()
		f.plugin.finiCalls++
		f.loader.mu.Unlock()
	}, nil
}

// newTestDriver builds a driver over the fake loader with an isolated
// handle table.
func newTestDriver(loader *fakeLoader, table *HandleTable, file string) *Driver {
	driver := newDriver(loader, table, NewTestLogger())
	driver.GetDriverDesc().SetFilePath(file)
	return driver
}

// newTestRegistry builds a registry over the fake loader with isolated
// cache paths under a temp dir.
func newTestRegistry(t *testing.T, loader *fakeLoader) (*DriverRegistry, string) {
	t.Helper()

	tmp := t.TempDir()
	ldCache := filepath.Join(tmp, "ld.so.cache")
	require.NoError(t, os.WriteFile(ldCache, []byte("ld-cache"), 0o644))

	registry := NewDriverRegistry(RegistryOptions{
		Loader:           loader,
		Logger:           NewTestLogger(),
		Handles:          NewHandleTable(),
		ScanInfoPath:     filepath.Join(tmp, "driver-scan-info.json"),
		LdCachePath:      ldCache,
		DefaultDriverDir: filepath.Join(tmp, "default-drivers"),
	})
	return registry, tmp
}

// writePluginFile creates an on-disk library file for the scanner to
// discover and registers its fake description.
func writePluginFile(t *testing.T, loader *fakeLoader, dir, fileName, class, driverType, name, version string) (string, *fakePlugin) {
	t.Helper()

	path := filepath.Join(dir, fileName)
	require.NoError(t, os.WriteFile(path, []byte("\x7fELF"), 0o755))
	return path, loader.registerDescribed(path, class, driverType, name, version)
}

// scanConfig builds a configuration pointing the registry at dirs only.
func scanConfig(dirs ...string) *MapConfiguration {
	config := NewMapConfiguration()
	config.Set(ConfigKeyDriverDir, dirs)
	config.Set(ConfigKeyDriverSkipDefault, true)
	return config
}
