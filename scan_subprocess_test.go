// scan_subprocess_test.go: tests for scan isolation plumbing
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package modelbox

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInProcessScanRunner(t *testing.T) {
	runner := InProcessScanRunner()

	ran := false
	err := runner.Run(nil, func() error {
		ran = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, ran)
}

func TestScanChildRequested(t *testing.T) {
	t.Setenv(scanChildEnv, "")
	assert.False(t, ScanChildRequested())

	t.Setenv(scanChildEnv, `{"dirs":["/opt/a"]}`)
	assert.True(t, ScanChildRequested())
}

func TestScanChildRequest_RoundTrip(t *testing.T) {
	request := scanChildRequest{
		Dirs:         []string{"/opt/a", "/opt/b"},
		ScanInfoPath: "/var/lib/modelbox/driver-scan-info.json",
		LdCachePath:  "/etc/ld.so.cache",
	}

	payload, err := json.Marshal(request)
	require.NoError(t, err)

	var decoded scanChildRequest
	require.NoError(t, json.Unmarshal(payload, &decoded))
	assert.Equal(t, request, decoded)
}

func TestRunScanChild_BadPayload(t *testing.T) {
	t.Setenv(scanChildEnv, "{broken")
	assert.Equal(t, 1, RunScanChild())
}

func TestRunScanChild_EmptyScan(t *testing.T) {
	tmp := t.TempDir()
	request := scanChildRequest{
		Dirs:         nil,
		ScanInfoPath: tmp + "/scan-info.json",
		LdCachePath:  tmp + "/ld.so.cache",
	}
	payload, err := json.Marshal(request)
	require.NoError(t, err)
	t.Setenv(scanChildEnv, string(payload))

	assert.Equal(t, 0, RunScanChild())

	doc, err := readScanInfo(request.ScanInfoPath)
	require.NoError(t, err)
	assert.Empty(t, doc.ScanDrivers)
}
