package history

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/energytrack/energytrack/internal/energytracker"
	"github.com/energytrack/energytrack/internal/poller"
)

func TestPublishWritesLineProtocol(t *testing.T) {
	var lines []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/api/v2/write") {
			w.WriteHeader(http.StatusOK)
			return
		}
		body, _ := io.ReadAll(r.Body)
		for _, line := range strings.Split(strings.TrimSpace(string(body)), "\n") {
			if line != "" {
				lines = append(lines, line)
			}
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	recorder, err := NewInfluxRecorder(InfluxConfig{
		URL:    server.URL,
		Token:  "test-token",
		Org:    "home",
		Bucket: "energy",
	})
	require.NoError(t, err)
	defer recorder.Close()

	snapshot := poller.Snapshot{
		Taken: time.Date(2025, 11, 28, 10, 45, 0, 0, time.UTC),
		Records: []poller.Record{
			{
				Device: energytracker.Device{ID: "dev-1", Name: "Main meter", FolderPath: "/home"},
				LatestReading: &energytracker.MeterReading{
					Timestamp:      "2025-11-28T10:30:00.000Z",
					Value:          "1234.50",
					RolloverOffset: 2,
					MeterID:        "m-1",
				},
			},
			// No reading: no point.
			{Device: energytracker.Device{ID: "dev-2", Name: "Garage meter", FolderPath: "/garage"}},
			{
				Device: energytracker.Device{ID: "dev-3", Name: "Broken meter", FolderPath: "/attic"},
				// Unparseable value: skipped, not fatal.
				LatestReading: &energytracker.MeterReading{Timestamp: "2025-11-28T10:30:00.000Z", Value: "n/a", MeterID: "m-3"},
			},
		},
	}

	require.NoError(t, recorder.Publish(context.Background(), snapshot))

	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], "meter_reading")
	assert.Contains(t, lines[0], "device_id=dev-1")
	assert.Contains(t, lines[0], "meter_id=m-1")
	assert.Contains(t, lines[0], "value=1234.5")
	assert.Contains(t, lines[0], "rollover_offset=2i")
}

func TestNewInfluxRecorderValidatesConfig(t *testing.T) {
	_, err := NewInfluxRecorder(InfluxConfig{URL: "http://localhost:8086"})
	assert.Error(t, err)
}
