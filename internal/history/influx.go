// Package history records meter readings into InfluxDB so cycles
// build up a queryable time series instead of only the latest value.
package history

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"

	"github.com/energytrack/energytrack/internal/poller"
)

const measurement = "meter_reading"

// InfluxConfig configures the history sink.
type InfluxConfig struct {
	URL    string
	Token  string
	Org    string
	Bucket string
}

// InfluxRecorder is a poller.Sink writing one point per device with a
// reading.
type InfluxRecorder struct {
	client influxdb2.Client
	org    string
	bucket string
}

func NewInfluxRecorder(cfg InfluxConfig) (*InfluxRecorder, error) {
	if cfg.URL == "" || cfg.Token == "" || cfg.Org == "" || cfg.Bucket == "" {
		return nil, fmt.Errorf("influx configuration is incomplete")
	}
	return &InfluxRecorder{
		client: influxdb2.NewClient(cfg.URL, cfg.Token),
		org:    cfg.Org,
		bucket: cfg.Bucket,
	}, nil
}

func (r *InfluxRecorder) Name() string { return "influx" }

// Publish writes every record that carries a reading. Readings whose
// value does not parse as a decimal are skipped with a log line, and a
// single bad point does not block the rest.
func (r *InfluxRecorder) Publish(ctx context.Context, snapshot poller.Snapshot) error {
	writeAPI := r.client.WriteAPIBlocking(r.org, r.bucket)

	var errs []error
	for _, record := range snapshot.Records {
		reading := record.LatestReading
		if reading == nil {
			continue
		}

		value, err := strconv.ParseFloat(reading.Value, 64)
		if err != nil {
			log.Printf("history: invalid reading value for device %s: %q", record.Device.ID, reading.Value)
			continue
		}

		pointTime := snapshot.Taken
		if ts, err := time.Parse(time.RFC3339, reading.Timestamp); err == nil {
			pointTime = ts
		}

		point := influxdb2.NewPoint(
			measurement,
			map[string]string{
				"device_id":   record.Device.ID,
				"name":        record.Device.Name,
				"folder_path": record.Device.FolderPath,
				"meter_id":    reading.MeterID,
			},
			map[string]interface{}{
				"value":           value,
				"rollover_offset": reading.RolloverOffset,
			},
			pointTime,
		)
		if err := writeAPI.WritePoint(ctx, point); err != nil {
			errs = append(errs, fmt.Errorf("write point for %s: %w", record.Device.ID, err))
		}
	}
	return errors.Join(errs...)
}

func (r *InfluxRecorder) Close() {
	r.client.Close()
}
