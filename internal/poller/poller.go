// Package poller derives one consistent snapshot of all devices plus
// their latest readings per cycle. Each cycle is a stateless
// re-derivation from the API; the previous snapshot is replaced
// wholesale, never merged.
package poller

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/energytrack/energytrack/internal/energytracker"
)

// API is the slice of the Energy Tracker client a cycle needs.
type API interface {
	ListDevices(ctx context.Context, filter energytracker.DeviceFilter) ([]energytracker.Device, error)
	LatestReading(ctx context.Context, deviceID string) (*energytracker.MeterReading, error)
}

// Record pairs a device with its latest reading. LatestReading is nil
// when the device has no readings or its fetch failed this cycle.
type Record struct {
	Device        energytracker.Device        `json:"device"`
	LatestReading *energytracker.MeterReading `json:"latest_reading,omitempty"`
}

// Snapshot is the result of one completed cycle, in device-list order.
type Snapshot struct {
	Taken   time.Time `json:"taken"`
	Records []Record  `json:"records"`
}

// Sink receives completed snapshots. Sink errors are logged and never
// fail a cycle.
type Sink interface {
	Name() string
	Publish(ctx context.Context, snapshot Snapshot) error
}

// UpdateError marks a whole cycle as failed. Only the device-list
// fetch is fatal to a cycle; per-device reading failures are not.
type UpdateError struct {
	cause error
}

func (e *UpdateError) Error() string {
	return fmt.Sprintf("update_failed: %v", e.cause)
}

func (e *UpdateError) Unwrap() error {
	return e.cause
}

// Stats describe recent cycle outcomes for the metrics collector.
type Stats struct {
	Cycles          uint64
	ReadingFailures uint64
	LastAttempt     time.Time
	LastSuccess     time.Time
	LastDuration    time.Duration
	LastFailed      bool
}

// Poller runs poll cycles and owns the current snapshot.
type Poller struct {
	api   API
	sinks []Sink

	mu      sync.RWMutex
	current *Snapshot
	stats   Stats
}

func New(api API, sinks ...Sink) *Poller {
	return &Poller{api: api, sinks: sinks}
}

// Snapshot returns the most recent completed snapshot, if any cycle
// has succeeded yet.
func (p *Poller) Snapshot() (Snapshot, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.current == nil {
		return Snapshot{}, false
	}
	return *p.current, true
}

func (p *Poller) Stats() Stats {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.stats
}

// Refresh runs one cycle: list devices, then fetch each device's
// latest reading sequentially. A reading failure keeps the device in
// the snapshot without a reading; a device-list failure fails the
// cycle with an UpdateError and leaves the previous snapshot in
// place. A cancelled cycle publishes nothing.
func (p *Poller) Refresh(ctx context.Context) (Snapshot, error) {
	start := time.Now()
	var readingFailures uint64

	devices, err := p.api.ListDevices(ctx, energytracker.DeviceFilter{})
	if err != nil {
		p.recordFailure(start)
		return Snapshot{}, &UpdateError{cause: err}
	}
	log.Printf("poller: synchronized %d devices", len(devices))

	records := make([]Record, 0, len(devices))
	for _, device := range devices {
		reading, err := p.api.LatestReading(ctx, device.ID)
		if err != nil {
			if ctx.Err() != nil {
				return Snapshot{}, ctx.Err()
			}
			log.Printf("poller: failed to fetch readings for device %s: %v", device.ID, err)
			readingFailures++
			records = append(records, Record{Device: device})
			continue
		}
		records = append(records, Record{Device: device, LatestReading: reading})
	}

	if ctx.Err() != nil {
		return Snapshot{}, ctx.Err()
	}

	snapshot := Snapshot{Taken: time.Now(), Records: records}

	p.mu.Lock()
	p.current = &snapshot
	p.stats.Cycles++
	p.stats.ReadingFailures += readingFailures
	p.stats.LastAttempt = start
	p.stats.LastSuccess = snapshot.Taken
	p.stats.LastDuration = snapshot.Taken.Sub(start)
	p.stats.LastFailed = false
	p.mu.Unlock()

	p.fanOut(ctx, snapshot)
	return snapshot, nil
}

// Run drives Refresh on a fixed interval, starting with an immediate
// cycle. Cycles never overlap.
func (p *Poller) Run(ctx context.Context, interval time.Duration) {
	p.refreshLogged(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.refreshLogged(ctx)
		}
	}
}

func (p *Poller) refreshLogged(ctx context.Context) {
	if _, err := p.Refresh(ctx); err != nil && ctx.Err() == nil {
		log.Printf("poller: %v", err)
	}
}

func (p *Poller) recordFailure(start time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stats.Cycles++
	p.stats.LastAttempt = start
	p.stats.LastDuration = time.Since(start)
	p.stats.LastFailed = true
}

func (p *Poller) fanOut(ctx context.Context, snapshot Snapshot) {
	for _, sink := range p.sinks {
		if err := sink.Publish(ctx, snapshot); err != nil {
			log.Printf("poller: sink %s: %v", sink.Name(), err)
		}
	}
}
