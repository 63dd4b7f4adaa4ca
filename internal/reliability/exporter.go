// Package reliability ships solve and backtest artifacts off the box so a
// device failure cannot lose run history.
package reliability

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"

	appconfig "github.com/aristath/tailrisk/internal/config"
	"github.com/aristath/tailrisk/internal/modules/snapshots"
)

// Exporter uploads snapshot payloads to an S3 bucket, one object per
// snapshot, keyed by kind and id.
type Exporter struct {
	uploader *manager.Uploader
	bucket   string
	prefix   string
	store    *snapshots.Store
	log      zerolog.Logger
}

// NewExporter builds an exporter from export settings. Static credentials are
// used when provided; otherwise the default AWS credential chain applies.
func NewExporter(ctx context.Context, cfg *appconfig.ExportConfig, store *snapshots.Store, log zerolog.Logger) (*Exporter, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &Exporter{
		uploader: manager.NewUploader(client),
		bucket:   cfg.Bucket,
		prefix:   cfg.Prefix,
		store:    store,
		log:      log.With().Str("component", "exporter").Logger(),
	}, nil
}

// ExportSnapshot uploads one stored snapshot and returns its object key.
func (e *Exporter) ExportSnapshot(ctx context.Context, id string) (string, error) {
	snap, err := e.store.Load(id)
	if err != nil {
		return "", err
	}

	key := e.objectKey(snap)
	_, err = e.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(e.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(snap.Payload),
		ContentType: aws.String("application/msgpack"),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload snapshot %s: %w", id, err)
	}

	e.log.Info().Str("id", id).Str("key", key).Int("bytes", len(snap.Payload)).Msg("Snapshot exported")
	return key, nil
}

// ExportRecent uploads every snapshot of a kind newer than since. Upload
// failures are logged and skipped; the count of successful uploads is
// returned.
func (e *Exporter) ExportRecent(ctx context.Context, kind snapshots.Kind, since time.Time) (int, error) {
	snaps, err := e.store.List(kind, 0)
	if err != nil {
		return 0, err
	}

	exported := 0
	for _, snap := range snaps {
		if snap.CreatedAt.Before(since) {
			break // list is newest first
		}
		if _, err := e.ExportSnapshot(ctx, snap.ID); err != nil {
			e.log.Error().Err(err).Str("id", snap.ID).Msg("Failed to export snapshot")
			continue
		}
		exported++
	}
	return exported, nil
}

func (e *Exporter) objectKey(snap *snapshots.Snapshot) string {
	return path.Join(
		e.prefix,
		string(snap.Kind),
		snap.CreatedAt.UTC().Format("2006/01/02"),
		snap.ID+".msgpack",
	)
}
