package energytracker

import "time"

// Device is a standard measuring device as reported by the Energy
// Tracker API. Values are snapshots; the API is the source of truth.
type Device struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	FolderPath    string `json:"folderPath"`
	LastUpdatedAt string `json:"lastUpdatedAt"`
}

// MeterReading is a single reading on a device's meter. Value stays a
// decimal string to preserve the server's precision; callers parse it
// when they need a number.
type MeterReading struct {
	Timestamp      string `json:"timestamp"`
	Value          string `json:"value"`
	RolloverOffset int    `json:"rolloverOffset"`
	Note           string `json:"note,omitempty"`
	MeterID        string `json:"meterId"`
	MeterNumber    string `json:"meterNumber,omitempty"`
}

// SortOrder selects reading ordering on the readings endpoint.
type SortOrder string

const (
	SortAscending  SortOrder = "asc"
	SortDescending SortOrder = "desc"
)

// DeviceFilter narrows ListDevices. Zero-value fields are omitted from
// the request entirely.
type DeviceFilter struct {
	Name          string
	FolderPath    string
	UpdatedAfter  time.Time
	UpdatedBefore time.Time
}

// ReadingFilter narrows ListReadings. Zero-value fields are omitted
// from the request entirely; an empty Sort means newest first.
type ReadingFilter struct {
	MeterID string
	From    time.Time
	To      time.Time
	Sort    SortOrder
}
