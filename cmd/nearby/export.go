package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/srg/nearby/internal/detect"
	"github.com/srg/nearby/internal/logbuf"
)

const exportFilePrefix = "nearby_glasses_detected_"

type exportDocument struct {
	ExportTimestamp int64          `json:"export_timestamp"`
	TotalDetections int            `json:"total_detections"`
	Detections      []detect.Event `json:"detections"`
}

// exportActivity writes the rendered activity log and the detections as
// <prefix><ms>.txt and <prefix><ms>.json into dir.
func exportActivity(dir string, now time.Time, buffer *logbuf.Buffer, detections []detect.Event) (string, string, error) {
	if buffer.Len() == 0 && len(detections) == 0 {
		return "", "", ErrNothingToExport
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", "", fmt.Errorf("failed to create export directory: %w", err)
	}

	base := filepath.Join(dir, fmt.Sprintf("%s%d", exportFilePrefix, now.UnixMilli()))
	txtPath := base + ".txt"
	jsonPath := base + ".json"

	if err := os.WriteFile(txtPath, []byte(buffer.Render()), 0o644); err != nil {
		return "", "", fmt.Errorf("failed to write %s: %w", txtPath, err)
	}

	doc := exportDocument{
		ExportTimestamp: now.UnixMilli(),
		TotalDetections: len(detections),
		Detections:      detections,
	}
	if doc.Detections == nil {
		doc.Detections = []detect.Event{}
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", "", fmt.Errorf("failed to encode detections: %w", err)
	}
	if err := os.WriteFile(jsonPath, append(data, '\n'), 0o644); err != nil {
		return "", "", fmt.Errorf("failed to write %s: %w", jsonPath, err)
	}

	return txtPath, jsonPath, nil
}
