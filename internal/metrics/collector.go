package metrics

import (
	"log"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/energytrack/energytrack/internal/poller"
)

// Source is the snapshot owner the collector reads from. Collection
// never triggers API calls; it only renders the current snapshot.
type Source interface {
	Snapshot() (poller.Snapshot, bool)
	Stats() poller.Stats
}

// NoticeCounter reports open diagnostic notices.
type NoticeCounter interface {
	Open() int
}

// Collector exposes the current device snapshot and poll-cycle health
// as Prometheus metrics.
type Collector struct {
	source  Source
	notices NoticeCounter

	readingValue     *prometheus.Desc
	readingTimestamp *prometheus.Desc
	rolloverOffset   *prometheus.Desc
	readingAvailable *prometheus.Desc
	lastUpdated      *prometheus.Desc
	devicesTotal     *prometheus.Desc
	pollSuccess      *prometheus.Desc
	lastSuccess      *prometheus.Desc
	pollDuration     *prometheus.Desc
	pollCycles       *prometheus.Desc
	readingFailures  *prometheus.Desc
	openNotices      *prometheus.Desc
}

func NewCollector(source Source, notices NoticeCounter) *Collector {
	deviceLabels := []string{"device_id", "name", "folder_path"}
	return &Collector{
		source:  source,
		notices: notices,
		readingValue: prometheus.NewDesc(
			"energytrack_meter_reading_value",
			"Latest meter reading value (kWh)",
			append(deviceLabels, "meter_id"), nil,
		),
		readingTimestamp: prometheus.NewDesc(
			"energytrack_meter_reading_timestamp_seconds",
			"Latest meter reading timestamp (epoch seconds)",
			[]string{"device_id"}, nil,
		),
		rolloverOffset: prometheus.NewDesc(
			"energytrack_meter_reading_rollover_offset",
			"Rollover correction applied after the meter counter wrapped",
			[]string{"device_id"}, nil,
		),
		readingAvailable: prometheus.NewDesc(
			"energytrack_device_reading_available",
			"Whether the device had a reading this cycle (1=yes, 0=no)",
			deviceLabels, nil,
		),
		lastUpdated: prometheus.NewDesc(
			"energytrack_device_last_updated_timestamp_seconds",
			"Device last-updated timestamp (epoch seconds)",
			[]string{"device_id"}, nil,
		),
		devicesTotal: prometheus.NewDesc(
			"energytrack_devices_total",
			"Devices in the current snapshot",
			nil, nil,
		),
		pollSuccess: prometheus.NewDesc(
			"energytrack_poll_success",
			"Last poll cycle success (1=ok, 0=error)",
			nil, nil,
		),
		lastSuccess: prometheus.NewDesc(
			"energytrack_last_poll_success_timestamp_seconds",
			"Last successful poll cycle timestamp (epoch seconds)",
			nil, nil,
		),
		pollDuration: prometheus.NewDesc(
			"energytrack_poll_duration_seconds",
			"Duration of the last poll cycle",
			nil, nil,
		),
		pollCycles: prometheus.NewDesc(
			"energytrack_poll_cycles_total",
			"Poll cycles attempted",
			nil, nil,
		),
		readingFailures: prometheus.NewDesc(
			"energytrack_reading_fetch_failures_total",
			"Per-device reading fetches that failed",
			nil, nil,
		),
		openNotices: prometheus.NewDesc(
			"energytrack_open_notices",
			"Open standing diagnostic notices",
			nil, nil,
		),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.readingValue
	ch <- c.readingTimestamp
	ch <- c.rolloverOffset
	ch <- c.readingAvailable
	ch <- c.lastUpdated
	ch <- c.devicesTotal
	ch <- c.pollSuccess
	ch <- c.lastSuccess
	ch <- c.pollDuration
	ch <- c.pollCycles
	ch <- c.readingFailures
	ch <- c.openNotices
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	stats := c.source.Stats()
	success := 1.0
	if stats.LastFailed {
		success = 0.0
	}
	ch <- prometheus.MustNewConstMetric(c.pollSuccess, prometheus.GaugeValue, success)
	ch <- prometheus.MustNewConstMetric(c.pollDuration, prometheus.GaugeValue, stats.LastDuration.Seconds())
	ch <- prometheus.MustNewConstMetric(c.pollCycles, prometheus.CounterValue, float64(stats.Cycles))
	ch <- prometheus.MustNewConstMetric(c.readingFailures, prometheus.CounterValue, float64(stats.ReadingFailures))
	if !stats.LastSuccess.IsZero() {
		ch <- prometheus.MustNewConstMetric(c.lastSuccess, prometheus.GaugeValue, float64(stats.LastSuccess.Unix()))
	}

	if c.notices != nil {
		ch <- prometheus.MustNewConstMetric(c.openNotices, prometheus.GaugeValue, float64(c.notices.Open()))
	}

	snapshot, ok := c.source.Snapshot()
	if !ok {
		return
	}
	ch <- prometheus.MustNewConstMetric(c.devicesTotal, prometheus.GaugeValue, float64(len(snapshot.Records)))

	for _, record := range snapshot.Records {
		device := record.Device
		labels := []string{device.ID, device.Name, device.FolderPath}

		available := 0.0
		if record.LatestReading != nil {
			available = 1.0
		}
		ch <- prometheus.MustNewConstMetric(c.readingAvailable, prometheus.GaugeValue, available, labels...)

		if ts, err := time.Parse(time.RFC3339, device.LastUpdatedAt); err == nil {
			ch <- prometheus.MustNewConstMetric(c.lastUpdated, prometheus.GaugeValue, float64(ts.Unix()), device.ID)
		}

		reading := record.LatestReading
		if reading == nil {
			continue
		}

		value, err := strconv.ParseFloat(reading.Value, 64)
		if err != nil {
			log.Printf("metrics: invalid reading value for device %s: %q", device.ID, reading.Value)
		} else {
			ch <- prometheus.MustNewConstMetric(c.readingValue, prometheus.GaugeValue, value, append(labels, reading.MeterID)...)
		}

		if ts, err := time.Parse(time.RFC3339, reading.Timestamp); err == nil {
			ch <- prometheus.MustNewConstMetric(c.readingTimestamp, prometheus.GaugeValue, float64(ts.Unix()), device.ID)
		}
		ch <- prometheus.MustNewConstMetric(c.rolloverOffset, prometheus.GaugeValue, float64(reading.RolloverOffset), device.ID)
	}
}
