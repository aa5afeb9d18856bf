package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/srg/nearby/internal/logbuf"
	"github.com/srg/nearby/internal/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExportActivity_NothingToExport(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	_, _, err := exportActivity(dir, time.Now(), logbuf.NewBuffer(logbuf.DefaultCapacity), nil)
	assert.ErrorIs(t, err, ErrNothingToExport)
	assert.NoDirExists(t, dir)
}

func TestExportActivity_LogOnly(t *testing.T) {
	dir := t.TempDir()
	buf := logbuf.NewBuffer(logbuf.DefaultCapacity)
	buf.Append("[12:00:00] Scan started: RSSI threshold=-75 dBm")
	buf.Append("[12:00:05] Scan stopped")
	now := time.UnixMilli(1717243200123)

	txtPath, jsonPath, err := exportActivity(dir, now, buf, nil)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "nearby_glasses_detected_1717243200123.txt"), txtPath)
	assert.Equal(t, filepath.Join(dir, "nearby_glasses_detected_1717243200123.json"), jsonPath)

	txt, err := os.ReadFile(txtPath)
	require.NoError(t, err)
	testutils.NewTextAsserter(t).Assert(string(txt),
		"[12:00:00] Scan started: RSSI threshold=-75 dBm\n[12:00:05] Scan stopped\n")

	data, err := os.ReadFile(jsonPath)
	require.NoError(t, err)
	testutils.NewJSONAsserter(t).WithOptions(testutils.WithIgnoreExtraKeys(false)).Assert(string(data), `{
		"export_timestamp": 1717243200123,
		"total_detections": 0,
		"detections": []
	}`)
}
