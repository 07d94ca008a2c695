// scan_cache_test.go: tests for the scan cache document and validity
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package modelbox

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateKey(t *testing.T) {
	assert.Equal(t, GenerateKey(42), GenerateKey(42), "same sum derives the same code")
	assert.NotEqual(t, GenerateKey(42), GenerateKey(43))
	assert.Len(t, GenerateKey(0), 64, "hex-encoded digest")
}

func TestScanResultInfo(t *testing.T) {
	info := NewScanResultInfo()
	info.AddSuccess("/a/libmodelbox-a.so")
	info.AddSuccess("/a/libmodelbox-b.so")
	info.AddFailure("/a/libmodelbox-c.so", "dlopen failed")

	assert.Equal(t, []string{"/a/libmodelbox-a.so", "/a/libmodelbox-b.so"}, info.SuccessPaths())
	assert.Equal(t, map[string]string{"/a/libmodelbox-c.so": "dlopen failed"}, info.Failures())
}

func TestScanInfo_WriteReadRoundTrip(t *testing.T) {
	loader := newFakeLoader()
	registry, tmp := newTestRegistry(t, loader)

	pluginDir := filepath.Join(tmp, "drivers")
	require.NoError(t, os.MkdirAll(pluginDir, 0o755))
	writePluginFile(t, loader, pluginDir, "libmodelbox-foo.so", "cpu", "x", "foo", "1.2.3")
	writePluginFile(t, loader, pluginDir, "libmodelbox-bar.so", "cuda", "y", "bar", "2.0.0")

	require.NoError(t, registry.Initialize(scanConfig(pluginDir)))
	require.NoError(t, registry.Scan())
	require.Len(t, registry.GetAllDriverList(), 2)

	// A second registry fed only by the cache reconstructs the same
	// descriptors.
	rebuilt := NewDriverRegistry(RegistryOptions{
		Loader:       loader,
		Handles:      NewHandleTable(),
		ScanInfoPath: registry.scanInfoPath,
		LdCachePath:  registry.ldCachePath,
	})
	require.NoError(t, rebuilt.gatherScanInfo(registry.scanInfoPath))

	require.Len(t, rebuilt.GetAllDriverList(), 2)
	for _, original := range registry.GetAllDriverList() {
		desc := original.GetDriverDesc()
		match := rebuilt.GetDriver(desc.Class(), desc.Type(), desc.Name(), desc.Version())
		require.NotNil(t, match, "driver %s missing after rebuild", desc.Name())
		rebuiltDesc := match.GetDriverDesc()
		assert.True(t, desc.sameIdentity(rebuiltDesc))
		assert.Equal(t, desc.FilePath(), rebuiltDesc.FilePath())
		assert.Equal(t, desc.NoDelete(), rebuiltDesc.NoDelete())
		assert.Equal(t, desc.Global(), rebuiltDesc.Global())
		assert.Equal(t, desc.DeepBind(), rebuiltDesc.DeepBind())
	}
}

func TestScanInfo_DocumentShape(t *testing.T) {
	loader := newFakeLoader()
	registry, tmp := newTestRegistry(t, loader)

	pluginDir := filepath.Join(tmp, "drivers")
	require.NoError(t, os.MkdirAll(pluginDir, 0o755))
	writePluginFile(t, loader, pluginDir, "libmodelbox-foo.so", "cpu", "x", "foo", "1.2.3")

	broken := filepath.Join(pluginDir, "libmodelbox-broken.so")
	require.NoError(t, os.WriteFile(broken, []byte("\x7fELF"), 0o755))
	loader.register(broken, &fakePlugin{missingDescription: true})

	require.NoError(t, registry.Initialize(scanConfig(pluginDir)))
	require.NoError(t, registry.Scan())

	data, err := os.ReadFile(registry.scanInfoPath)
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Contains(t, doc, "ld_cache_time")
	assert.Contains(t, doc, "check_code")
	assert.Contains(t, doc, "version_record")

	entries, ok := doc["scan_drivers"].([]any)
	require.True(t, ok)
	require.Len(t, entries, 2)

	var successes, failures int
	for _, raw := range entries {
		entry, ok := raw.(map[string]any)
		require.True(t, ok)
		if entry["load_success"] == true {
			successes++
			for _, key := range []string{"class", "type", "name", "description",
				"version", "file_path", "no_delete", "global", "deep_bind"} {
				assert.Contains(t, entry, key)
			}
			continue
		}
		failures++
		assert.Contains(t, entry, "file_path")
		assert.Contains(t, entry, "err_msg")
	}
	assert.Equal(t, 1, successes)
	assert.Equal(t, 1, failures)
}

func TestScanCacheValidity(t *testing.T) {
	setup := func(t *testing.T) (*fakeLoader, *DriverRegistry, string) {
		loader := newFakeLoader()
		registry, tmp := newTestRegistry(t, loader)
		pluginDir := filepath.Join(tmp, "drivers")
		require.NoError(t, os.MkdirAll(pluginDir, 0o755))
		writePluginFile(t, loader, pluginDir, "libmodelbox-foo.so", "cpu", "x", "foo", "1.0.0")
		require.NoError(t, registry.Initialize(scanConfig(pluginDir)))
		require.NoError(t, registry.Scan())
		return loader, registry, pluginDir
	}

	t.Run("ValidAfterScan", func(t *testing.T) {
		_, registry, _ := setup(t)
		assert.True(t, registry.checkPathAndMagicCode())
	})

	t.Run("MissingCacheFile", func(t *testing.T) {
		_, registry, _ := setup(t)
		require.NoError(t, os.Remove(registry.scanInfoPath))
		assert.False(t, registry.checkPathAndMagicCode())
	})

	t.Run("MissingLdCache", func(t *testing.T) {
		_, registry, _ := setup(t)
		require.NoError(t, os.Remove(registry.ldCachePath))
		assert.False(t, registry.checkPathAndMagicCode())
	})

	t.Run("LdCacheMtimeChanged", func(t *testing.T) {
		_, registry, _ := setup(t)
		future := time.Now().Add(time.Hour)
		require.NoError(t, os.Chtimes(registry.ldCachePath, future, future))
		assert.False(t, registry.checkPathAndMagicCode())
	})

	t.Run("NewMatchingFile", func(t *testing.T) {
		loader, registry, pluginDir := setup(t)
		writePluginFile(t, loader, pluginDir, "libmodelbox-new.so", "cpu", "x", "new", "1.0.0")
		assert.False(t, registry.checkPathAndMagicCode())
	})

	t.Run("FileMtimeChanged", func(t *testing.T) {
		_, registry, pluginDir := setup(t)
		file := filepath.Join(pluginDir, "libmodelbox-foo.so")
		future := time.Now().Add(time.Hour)
		require.NoError(t, os.Chtimes(file, future, future))
		assert.False(t, registry.checkPathAndMagicCode(), "check code no longer matches")
	})

	t.Run("CorruptedCheckCode", func(t *testing.T) {
		_, registry, _ := setup(t)
		doc, err := readScanInfo(registry.scanInfoPath)
		require.NoError(t, err)
		doc.CheckCode = "tampered"

		data, err := json.Marshal(map[string]any{
			"ld_cache_time":  doc.LdCacheTime,
			"check_code":     doc.CheckCode,
			"version_record": doc.VersionRecord,
			"scan_drivers":   doc.ScanDrivers,
		})
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(registry.scanInfoPath, data, 0o644))
		assert.False(t, registry.checkPathAndMagicCode())
	})
}

func TestGatherScanInfo_SkipsFailedEntries(t *testing.T) {
	registry, tmp := newTestRegistry(t, newFakeLoader())

	cachePath := filepath.Join(tmp, "cache.json")
	doc := map[string]any{
		"ld_cache_time":  0,
		"check_code":     GenerateKey(0),
		"version_record": "test",
		"scan_drivers": []any{
			map[string]any{
				"class": "cpu", "type": "x", "name": "ok",
				"description": "ok driver", "version": "1.0.0",
				"file_path": "/drivers/libmodelbox-ok.so",
				"no_delete": false, "global": false, "deep_bind": false,
				"load_success": true,
			},
			map[string]any{
				"file_path":    "/drivers/libmodelbox-bad.so",
				"err_msg":      "dlopen failed",
				"load_success": false,
			},
		},
	}
	data, err := json.Marshal(doc)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(cachePath, data, 0o644))

	require.NoError(t, registry.gatherScanInfo(cachePath))
	require.Len(t, registry.GetAllDriverList(), 1)
	assert.Equal(t, "ok", registry.GetAllDriverList()[0].GetDriverDesc().Name())
}
