package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/energytrack/energytrack/internal/archive"
	"github.com/energytrack/energytrack/internal/config"
	"github.com/energytrack/energytrack/internal/energytracker"
	"github.com/energytrack/energytrack/internal/history"
	"github.com/energytrack/energytrack/internal/issues"
	"github.com/energytrack/energytrack/internal/metrics"
	"github.com/energytrack/energytrack/internal/poller"
	"github.com/energytrack/energytrack/internal/publish"
	"github.com/energytrack/energytrack/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	notices := issues.NewRegistry()

	client, err := energytracker.NewClient(energytracker.Config{
		BaseURL: cfg.APIBaseURL,
		Token:   cfg.APIToken,
	}, notices)
	if err != nil {
		log.Fatalf("client: %v", err)
	}

	var sinks []poller.Sink

	if cfg.MQTT != nil {
		publisher, err := publish.NewMQTTPublisher(publish.MQTTConfig{
			BrokerHost:      cfg.MQTT.Host,
			BrokerPort:      cfg.MQTT.Port,
			TLS:             cfg.MQTT.TLS,
			Username:        cfg.MQTT.Username,
			Password:        cfg.MQTT.Password,
			DiscoveryPrefix: cfg.MQTT.DiscoveryPrefix,
			TopicPrefix:     cfg.MQTT.TopicPrefix,
		})
		if err != nil {
			log.Fatalf("mqtt: %v", err)
		}
		defer publisher.Close()
		sinks = append(sinks, publisher)
	}

	if cfg.Influx != nil {
		recorder, err := history.NewInfluxRecorder(history.InfluxConfig{
			URL:    cfg.Influx.URL,
			Token:  cfg.Influx.Token,
			Org:    cfg.Influx.Org,
			Bucket: cfg.Influx.Bucket,
		})
		if err != nil {
			log.Fatalf("influx: %v", err)
		}
		defer recorder.Close()
		sinks = append(sinks, recorder)
	}

	if cfg.Archive != nil {
		accessKey, err := config.ReadSecretFile(cfg.Archive.AccessKeyFile)
		if err != nil {
			log.Fatalf("archive access key: %v", err)
		}
		secretKey, err := config.ReadSecretFile(cfg.Archive.SecretKeyFile)
		if err != nil {
			log.Fatalf("archive secret key: %v", err)
		}
		archiver, err := archive.NewS3Archiver(archive.S3Config{
			Endpoint:  cfg.Archive.Endpoint,
			Bucket:    cfg.Archive.Bucket,
			Prefix:    cfg.Archive.Prefix,
			AccessKey: accessKey,
			SecretKey: secretKey,
			Region:    cfg.Archive.Region,
		})
		if err != nil {
			log.Fatalf("archive: %v", err)
		}
		sinks = append(sinks, archiver)
	}

	p := poller.New(client, sinks...)

	registry := prometheus.NewRegistry()
	registry.MustRegister(metrics.NewCollector(p, notices))
	registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "energytrack_build_info",
		Help: "Build information",
	}, func() float64 { return 1 }))

	mux := http.NewServeMux()
	mux.HandleFunc("/health", server.HealthHandler)
	mux.Handle("/metrics", server.MetricsHandler(registry))
	mux.Handle("/snapshot", server.SnapshotHandler(p))
	mux.Handle("/issues", server.IssuesHandler(notices))
	mux.Handle("/issues/", server.IssuesHandler(notices))

	httpServer := server.NewHTTPServer(cfg.HTTPAddr, mux)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("http serve: %v", err)
		}
	}()

	log.Printf("energytrack: serving on %s, polling every %s", cfg.HTTPAddr, cfg.PollInterval)
	p.Run(ctx, cfg.PollInterval)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = httpServer.Server.Shutdown(shutdownCtx)
}
