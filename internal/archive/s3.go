// Package archive mirrors each completed snapshot to S3-compatible
// object storage as a dated JSON document.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/energytrack/energytrack/internal/poller"
)

const defaultPrefix = "energytrack/snapshots"

// S3Config configures the snapshot archive.
type S3Config struct {
	// Endpoint may carry an http:// or https:// scheme; a bare host
	// is treated as https.
	Endpoint  string
	Bucket    string
	Prefix    string
	AccessKey string
	SecretKey string
	Region    string
}

// S3Archiver is a poller.Sink writing one object per snapshot.
type S3Archiver struct {
	client *minio.Client
	bucket string
	prefix string
}

func NewS3Archiver(cfg S3Config) (*S3Archiver, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	bucket := strings.TrimSpace(cfg.Bucket)
	if endpoint == "" || bucket == "" || cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, fmt.Errorf("missing archive configuration")
	}

	host, secure, err := parseEndpoint(endpoint)
	if err != nil {
		return nil, err
	}

	client, err := minio.New(host, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: secure,
		Region: strings.TrimSpace(cfg.Region),
	})
	if err != nil {
		return nil, fmt.Errorf("init s3 client: %w", err)
	}

	prefix := strings.TrimSpace(cfg.Prefix)
	if prefix == "" {
		prefix = defaultPrefix
	}

	return &S3Archiver{client: client, bucket: bucket, prefix: prefix}, nil
}

func (a *S3Archiver) Name() string { return "archive" }

func (a *S3Archiver) Publish(ctx context.Context, snapshot poller.Snapshot) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	reader := bytes.NewReader(data)
	_, err = a.client.PutObject(ctx, a.bucket, a.key(snapshot), reader, int64(reader.Len()), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	if err != nil {
		return fmt.Errorf("store snapshot: %w", err)
	}
	return nil
}

func (a *S3Archiver) key(snapshot poller.Snapshot) string {
	taken := snapshot.Taken.UTC()
	return path.Join(
		a.prefix,
		taken.Format("2006/01/02"),
		fmt.Sprintf("snapshot-%d.json", taken.Unix()),
	)
}

func parseEndpoint(raw string) (string, bool, error) {
	if strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://") {
		u, err := url.Parse(raw)
		if err != nil {
			return "", false, fmt.Errorf("parse endpoint: %w", err)
		}
		if u.Host == "" {
			return "", false, fmt.Errorf("invalid endpoint: %q", raw)
		}
		return u.Host, u.Scheme == "https", nil
	}
	return raw, true, nil
}
