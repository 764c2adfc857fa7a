// Package publish republishes snapshots as Home Assistant MQTT
// discovery sensors, so readings show up as entities without any
// custom integration on the Home Assistant side.
package publish

import (
	"context"
	"crypto/rand"
	"crypto/tls"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/energytrack/energytrack/internal/poller"
)

const (
	defaultDiscoveryPrefix = "homeassistant"
	defaultTopicPrefix     = "energytrack"
)

// MQTTConfig configures the broker connection and topic layout.
type MQTTConfig struct {
	BrokerHost string
	BrokerPort int
	TLS        bool
	Username   string
	Password   string

	// DiscoveryPrefix is Home Assistant's discovery root, almost
	// always "homeassistant".
	DiscoveryPrefix string
	// TopicPrefix roots the state topics.
	TopicPrefix string
}

// MQTTPublisher is a poller.Sink pushing retained discovery configs
// and per-device state documents.
type MQTTPublisher struct {
	client          mqtt.Client
	discoveryPrefix string
	topicPrefix     string

	announced map[string]bool
}

func NewMQTTPublisher(cfg MQTTConfig) (*MQTTPublisher, error) {
	if cfg.BrokerHost == "" {
		return nil, fmt.Errorf("mqtt broker host is required")
	}
	port := cfg.BrokerPort
	if port == 0 {
		port = 1883
	}

	opts := mqtt.NewClientOptions()
	scheme := "tcp"
	if cfg.TLS {
		scheme = "ssl"
		opts.SetTLSConfig(&tls.Config{})
	}
	opts.AddBroker(fmt.Sprintf("%s://%s:%d", scheme, cfg.BrokerHost, port))
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.SetClientID(randomClientID())
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectTimeout(10 * time.Second)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}

	discoveryPrefix := cfg.DiscoveryPrefix
	if discoveryPrefix == "" {
		discoveryPrefix = defaultDiscoveryPrefix
	}
	topicPrefix := cfg.TopicPrefix
	if topicPrefix == "" {
		topicPrefix = defaultTopicPrefix
	}

	return &MQTTPublisher{
		client:          client,
		discoveryPrefix: discoveryPrefix,
		topicPrefix:     topicPrefix,
		announced:       make(map[string]bool),
	}, nil
}

func (p *MQTTPublisher) Name() string { return "mqtt" }

// Publish announces unseen devices with a retained discovery config,
// then publishes each device's retained state document. One device's
// publish failure does not stop the others.
func (p *MQTTPublisher) Publish(_ context.Context, snapshot poller.Snapshot) error {
	var errs []error
	for _, record := range snapshot.Records {
		deviceID := record.Device.ID

		if !p.announced[deviceID] {
			payload, err := json.Marshal(discoveryPayload(record, p.stateTopic(deviceID)))
			if err != nil {
				errs = append(errs, fmt.Errorf("encode discovery for %s: %w", deviceID, err))
				continue
			}
			if err := p.publishRetained(p.configTopic(deviceID), payload); err != nil {
				errs = append(errs, fmt.Errorf("announce %s: %w", deviceID, err))
				continue
			}
			p.announced[deviceID] = true
		}

		payload, err := json.Marshal(statePayload(record, snapshot.Taken))
		if err != nil {
			errs = append(errs, fmt.Errorf("encode state for %s: %w", deviceID, err))
			continue
		}
		if err := p.publishRetained(p.stateTopic(deviceID), payload); err != nil {
			errs = append(errs, fmt.Errorf("publish %s: %w", deviceID, err))
		}
	}
	return errors.Join(errs...)
}

func (p *MQTTPublisher) Close() {
	p.client.Disconnect(250)
}

func (p *MQTTPublisher) publishRetained(topic string, payload []byte) error {
	if token := p.client.Publish(topic, 0, true, payload); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	return nil
}

func (p *MQTTPublisher) configTopic(deviceID string) string {
	return fmt.Sprintf("%s/sensor/energytrack_%s/config", p.discoveryPrefix, deviceID)
}

func (p *MQTTPublisher) stateTopic(deviceID string) string {
	return fmt.Sprintf("%s/%s/state", p.topicPrefix, deviceID)
}

type discoveryDevice struct {
	Identifiers  []string `json:"identifiers"`
	Name         string   `json:"name"`
	Manufacturer string   `json:"manufacturer"`
	Model        string   `json:"model"`
}

type discoveryConfig struct {
	Name                string          `json:"name"`
	UniqueID            string          `json:"unique_id"`
	StateTopic          string          `json:"state_topic"`
	ValueTemplate       string          `json:"value_template"`
	DeviceClass         string          `json:"device_class"`
	StateClass          string          `json:"state_class"`
	UnitOfMeasurement   string          `json:"unit_of_measurement"`
	JSONAttributesTopic string          `json:"json_attributes_topic"`
	Device              discoveryDevice `json:"device"`
}

func discoveryPayload(record poller.Record, stateTopic string) discoveryConfig {
	device := record.Device
	return discoveryConfig{
		Name:                device.Name,
		UniqueID:            "energytrack_" + device.ID,
		StateTopic:          stateTopic,
		ValueTemplate:       "{{ value_json.value }}",
		DeviceClass:         "energy",
		StateClass:          "total_increasing",
		UnitOfMeasurement:   "kWh",
		JSONAttributesTopic: stateTopic,
		Device: discoveryDevice{
			Identifiers:  []string{"energytrack_" + device.ID},
			Name:         device.Name,
			Manufacturer: "Energy Tracker",
			Model:        "Standard Measuring Device",
		},
	}
}

type stateDocument struct {
	Status         string `json:"status"`
	Value          string `json:"value,omitempty"`
	Timestamp      string `json:"timestamp,omitempty"`
	RolloverOffset *int   `json:"rollover_offset,omitempty"`
	MeterID        string `json:"meter_id,omitempty"`
	MeterNumber    string `json:"meter_number,omitempty"`
	Note           string `json:"note,omitempty"`
	FolderPath     string `json:"folder_path"`
	LastUpdatedAt  string `json:"last_updated_at"`
	PolledAt       string `json:"polled_at"`
}

func statePayload(record poller.Record, taken time.Time) stateDocument {
	doc := stateDocument{
		Status:        "no_readings",
		FolderPath:    record.Device.FolderPath,
		LastUpdatedAt: record.Device.LastUpdatedAt,
		PolledAt:      taken.UTC().Format(time.RFC3339),
	}
	if reading := record.LatestReading; reading != nil {
		doc.Status = "active"
		doc.Value = reading.Value
		doc.Timestamp = reading.Timestamp
		doc.RolloverOffset = &reading.RolloverOffset
		doc.MeterID = reading.MeterID
		doc.MeterNumber = reading.MeterNumber
		doc.Note = reading.Note
	}
	return doc
}

func randomClientID() string {
	buf := make([]byte, 4)
	_, _ = rand.Read(buf)
	return "energytrack-" + hex.EncodeToString(buf)
}
