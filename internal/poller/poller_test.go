package poller

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/energytrack/energytrack/internal/energytracker"
)

type fakeAPI struct {
	devices    []energytracker.Device
	listErr    error
	readings   map[string]*energytracker.MeterReading
	readingErr map[string]error
}

func (f *fakeAPI) ListDevices(_ context.Context, _ energytracker.DeviceFilter) ([]energytracker.Device, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.devices, nil
}

func (f *fakeAPI) LatestReading(_ context.Context, deviceID string) (*energytracker.MeterReading, error) {
	if err := f.readingErr[deviceID]; err != nil {
		return nil, err
	}
	return f.readings[deviceID], nil
}

type captureSink struct {
	name      string
	snapshots []Snapshot
	err       error
}

func (s *captureSink) Name() string { return s.name }

func (s *captureSink) Publish(_ context.Context, snapshot Snapshot) error {
	s.snapshots = append(s.snapshots, snapshot)
	return s.err
}

func twoDevices() []energytracker.Device {
	return []energytracker.Device{
		{ID: "dev-1", Name: "Main meter", FolderPath: "/home"},
		{ID: "dev-2", Name: "Garage meter", FolderPath: "/garage"},
	}
}

func TestRefreshToleratesPerDeviceFailure(t *testing.T) {
	api := &fakeAPI{
		devices: twoDevices(),
		readings: map[string]*energytracker.MeterReading{
			"dev-1": {Timestamp: "2025-11-28T10:30:00.000Z", Value: "1234.50", MeterID: "m-1"},
		},
		readingErr: map[string]error{
			"dev-2": errors.New("boom"),
		},
	}
	p := New(api)

	snapshot, err := p.Refresh(context.Background())
	require.NoError(t, err)

	require.Len(t, snapshot.Records, 2)
	assert.Equal(t, "dev-1", snapshot.Records[0].Device.ID)
	require.NotNil(t, snapshot.Records[0].LatestReading)
	assert.Equal(t, "1234.50", snapshot.Records[0].LatestReading.Value)
	assert.Equal(t, "dev-2", snapshot.Records[1].Device.ID)
	assert.Nil(t, snapshot.Records[1].LatestReading)

	stats := p.Stats()
	assert.Equal(t, uint64(1), stats.Cycles)
	assert.Equal(t, uint64(1), stats.ReadingFailures)
	assert.False(t, stats.LastFailed)
}

func TestRefreshFailsWhenDeviceListFails(t *testing.T) {
	cause := errors.New("list down")
	api := &fakeAPI{listErr: cause}
	p := New(api)

	_, err := p.Refresh(context.Background())

	var updateErr *UpdateError
	require.ErrorAs(t, err, &updateErr)
	assert.ErrorIs(t, err, cause)

	_, ok := p.Snapshot()
	assert.False(t, ok, "no snapshot should be published")
	assert.True(t, p.Stats().LastFailed)
}

func TestRefreshKeepsPreviousSnapshotOnFailure(t *testing.T) {
	api := &fakeAPI{devices: twoDevices()}
	p := New(api)

	first, err := p.Refresh(context.Background())
	require.NoError(t, err)

	api.listErr = errors.New("list down")
	_, err = p.Refresh(context.Background())
	require.Error(t, err)

	current, ok := p.Snapshot()
	require.True(t, ok)
	assert.Equal(t, first.Taken, current.Taken)
}

func TestRefreshFansOutToSinks(t *testing.T) {
	api := &fakeAPI{devices: twoDevices()}
	failing := &captureSink{name: "failing", err: errors.New("sink down")}
	healthy := &captureSink{name: "healthy"}
	p := New(api, failing, healthy)

	_, err := p.Refresh(context.Background())
	require.NoError(t, err)

	// A failing sink must not stop later sinks or fail the cycle.
	assert.Len(t, failing.snapshots, 1)
	assert.Len(t, healthy.snapshots, 1)
}

func TestCancelledCyclePublishesNothing(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	api := &fakeAPI{
		devices:    twoDevices(),
		readingErr: map[string]error{"dev-1": context.Canceled},
	}
	cancel()

	p := New(api)
	sink := &captureSink{name: "capture"}
	p.sinks = append(p.sinks, sink)

	_, err := p.Refresh(ctx)
	require.ErrorIs(t, err, context.Canceled)

	_, ok := p.Snapshot()
	assert.False(t, ok)
	assert.Empty(t, sink.snapshots)
}
