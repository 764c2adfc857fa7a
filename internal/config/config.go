// Package config loads daemon configuration from the environment,
// optionally seeded from a .env file.
package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DefaultHTTPAddr     = "0.0.0.0:8080"
	DefaultPollInterval = 15 * time.Minute
)

// Config is the full daemon configuration. Sink blocks are nil when
// the corresponding sink is not configured.
type Config struct {
	APIBaseURL   string
	APIToken     string
	HTTPAddr     string
	PollInterval time.Duration

	MQTT    *MQTTConfig
	Influx  *InfluxConfig
	Archive *ArchiveConfig
}

type MQTTConfig struct {
	Host            string
	Port            int
	TLS             bool
	Username        string
	Password        string
	DiscoveryPrefix string
	TopicPrefix     string
}

type InfluxConfig struct {
	URL    string
	Token  string
	Org    string
	Bucket string
}

type ArchiveConfig struct {
	Endpoint      string
	Bucket        string
	Prefix        string
	AccessKeyFile string
	SecretKeyFile string
	Region        string
}

// Load reads the environment, applies defaults, and validates.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("config: no .env file found, relying on system environment variables")
	}

	cfg := Config{
		APIBaseURL:   os.Getenv("ENERGYTRACK_API_BASE_URL"),
		HTTPAddr:     envOrDefault("ENERGYTRACK_HTTP_ADDR", DefaultHTTPAddr),
		PollInterval: DefaultPollInterval,
	}

	token, err := resolveToken()
	if err != nil {
		return Config{}, err
	}
	cfg.APIToken = token

	if raw := os.Getenv("ENERGYTRACK_POLL_INTERVAL"); raw != "" {
		interval, err := time.ParseDuration(raw)
		if err != nil {
			return Config{}, fmt.Errorf("parse ENERGYTRACK_POLL_INTERVAL: %w", err)
		}
		if interval <= 0 {
			return Config{}, fmt.Errorf("ENERGYTRACK_POLL_INTERVAL must be positive")
		}
		cfg.PollInterval = interval
	}

	if host := os.Getenv("ENERGYTRACK_MQTT_HOST"); host != "" {
		mqttCfg := &MQTTConfig{
			Host:            host,
			Port:            1883,
			Username:        os.Getenv("ENERGYTRACK_MQTT_USERNAME"),
			Password:        os.Getenv("ENERGYTRACK_MQTT_PASSWORD"),
			DiscoveryPrefix: os.Getenv("ENERGYTRACK_MQTT_DISCOVERY_PREFIX"),
			TopicPrefix:     os.Getenv("ENERGYTRACK_MQTT_TOPIC_PREFIX"),
		}
		if raw := os.Getenv("ENERGYTRACK_MQTT_PORT"); raw != "" {
			port, err := strconv.Atoi(raw)
			if err != nil {
				return Config{}, fmt.Errorf("parse ENERGYTRACK_MQTT_PORT: %w", err)
			}
			mqttCfg.Port = port
		}
		if raw := os.Getenv("ENERGYTRACK_MQTT_TLS"); raw != "" {
			tlsEnabled, err := strconv.ParseBool(raw)
			if err != nil {
				return Config{}, fmt.Errorf("parse ENERGYTRACK_MQTT_TLS: %w", err)
			}
			mqttCfg.TLS = tlsEnabled
		}
		cfg.MQTT = mqttCfg
	}

	if url := os.Getenv("ENERGYTRACK_INFLUX_URL"); url != "" {
		influxCfg := &InfluxConfig{
			URL:    url,
			Token:  os.Getenv("ENERGYTRACK_INFLUX_TOKEN"),
			Org:    os.Getenv("ENERGYTRACK_INFLUX_ORG"),
			Bucket: os.Getenv("ENERGYTRACK_INFLUX_BUCKET"),
		}
		if influxCfg.Token == "" || influxCfg.Org == "" || influxCfg.Bucket == "" {
			return Config{}, fmt.Errorf("influx configuration is incomplete: set ENERGYTRACK_INFLUX_TOKEN, ENERGYTRACK_INFLUX_ORG, and ENERGYTRACK_INFLUX_BUCKET")
		}
		cfg.Influx = influxCfg
	}

	if endpoint := os.Getenv("ENERGYTRACK_S3_ENDPOINT"); endpoint != "" {
		archiveCfg := &ArchiveConfig{
			Endpoint:      endpoint,
			Bucket:        os.Getenv("ENERGYTRACK_S3_BUCKET"),
			Prefix:        os.Getenv("ENERGYTRACK_S3_PREFIX"),
			AccessKeyFile: os.Getenv("ENERGYTRACK_S3_ACCESS_KEY_FILE"),
			SecretKeyFile: os.Getenv("ENERGYTRACK_S3_SECRET_KEY_FILE"),
			Region:        os.Getenv("ENERGYTRACK_S3_REGION"),
		}
		if archiveCfg.Bucket == "" || archiveCfg.AccessKeyFile == "" || archiveCfg.SecretKeyFile == "" {
			return Config{}, fmt.Errorf("archive configuration is incomplete: set ENERGYTRACK_S3_BUCKET, ENERGYTRACK_S3_ACCESS_KEY_FILE, and ENERGYTRACK_S3_SECRET_KEY_FILE")
		}
		cfg.Archive = archiveCfg
	}

	return cfg, nil
}

// ReadSecretFile returns a trimmed secret from a file.
func ReadSecretFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

func resolveToken() (string, error) {
	if token := strings.TrimSpace(os.Getenv("ENERGYTRACK_API_TOKEN")); token != "" {
		return token, nil
	}

	tokenFile := os.Getenv("ENERGYTRACK_API_TOKEN_FILE")
	if tokenFile == "" {
		return "", fmt.Errorf("set ENERGYTRACK_API_TOKEN or ENERGYTRACK_API_TOKEN_FILE")
	}
	token, err := ReadSecretFile(tokenFile)
	if err != nil {
		return "", fmt.Errorf("read token file: %w", err)
	}
	if token == "" {
		return "", fmt.Errorf("token file %s is empty", tokenFile)
	}
	return token, nil
}

func envOrDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
