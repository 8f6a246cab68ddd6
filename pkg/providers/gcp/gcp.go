// Package gcp archives deployment logs to Google Cloud Storage and can
// mirror each log line to Cloud Logging.
package gcp

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/logging"
	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	shipcfg "github.com/jvreagan/shipyard/pkg/config"
	shiplog "github.com/jvreagan/shipyard/pkg/logging"
	"github.com/jvreagan/shipyard/pkg/types"
)

// objectStore is the storage surface used for archiving.
type objectStore interface {
	bucketExists(ctx context.Context) error
	write(ctx context.Context, key string, data []byte) error
	close() error
}

// entryLogger is satisfied by *logging.Logger.
type entryLogger interface {
	Log(e logging.Entry)
	Flush() error
}

// Provider implements provider.Provider for Cloud Storage.
type Provider struct {
	store     objectStore
	logger    entryLogger
	logClient *logging.Client
	projectID string
	bucket    string
}

// New creates a Cloud Storage archive provider. Credentials come from the
// configured service account key (path or inline JSON) or, when neither is
// set, from Application Default Credentials. Cloud Logging mirroring is
// enabled when gcp.log_name is set and requires gcp.project_id.
func New(ctx context.Context, cfg *shipcfg.ArchiveConfig) (*Provider, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket is required")
	}

	gcp := cfg.GCP
	if gcp == nil {
		gcp = &shipcfg.GCPArchiveConfig{}
	}
	if gcp.LogName != "" && gcp.ProjectID == "" {
		return nil, fmt.Errorf("archive.gcp.project_id is required when archive.gcp.log_name is set")
	}

	opts := loadCredentials(gcp)

	storageClient, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Cloud Storage client: %w", err)
	}

	p := &Provider{
		store:     &gcsStore{client: storageClient, bucket: cfg.Bucket},
		projectID: gcp.ProjectID,
		bucket:    cfg.Bucket,
	}

	if gcp.LogName != "" {
		logClient, err := logging.NewClient(ctx, "projects/"+gcp.ProjectID, opts...)
		if err != nil {
			storageClient.Close()
			return nil, fmt.Errorf("failed to create Cloud Logging client: %w", err)
		}
		p.logClient = logClient
		p.logger = logClient.Logger(gcp.LogName)
	}

	return p, nil
}

// loadCredentials returns client options for the configured service account
// key. No options means Application Default Credentials.
func loadCredentials(cfg *shipcfg.GCPArchiveConfig) []option.ClientOption {
	if cfg.ServiceAccountKeyPath != "" {
		shiplog.Debug("loading GCP credentials from file", "path", cfg.ServiceAccountKeyPath)
		return []option.ClientOption{option.WithCredentialsFile(cfg.ServiceAccountKeyPath)}
	}
	if cfg.ServiceAccountKeyJSON != "" {
		shiplog.Debug("loading GCP credentials from config JSON")
		return []option.ClientOption{option.WithCredentialsJSON([]byte(cfg.ServiceAccountKeyJSON))}
	}
	shiplog.Debug("using GCP application default credentials")
	return nil
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return "gcp"
}

// Prepare checks that the bucket exists and is readable.
func (p *Provider) Prepare(ctx context.Context) error {
	if err := p.store.bucketExists(ctx); err != nil {
		return fmt.Errorf("bucket %s is not accessible: %w", p.bucket, err)
	}
	shiplog.Info("archiving to Cloud Storage", "bucket", p.bucket, "mirror", p.logger != nil)
	return nil
}

// Upload writes data to gs://bucket/key.
func (p *Provider) Upload(ctx context.Context, key string, data []byte) error {
	if err := p.store.write(ctx, key, data); err != nil {
		return fmt.Errorf("failed to upload %s: %w", p.Location(key), err)
	}
	return nil
}

// Location returns the URI of key.
func (p *Provider) Location(key string) string {
	return fmt.Sprintf("gs://%s/%s", p.bucket, key)
}

// logPayload is the structured payload of a mirrored log line.
type logPayload struct {
	Message      string `json:"message"`
	EventID      string `json:"event_id,omitempty"`
	DeploymentID string `json:"deployment_id"`
	Position     int    `json:"position"`
}

// MirrorLogs writes each log line to Cloud Logging, labelled with the
// deployment and project. It is a no-op when mirroring is disabled.
func (p *Provider) MirrorLogs(_ context.Context, d *types.Deployment, logs []types.LogEntry) error {
	if p.logger == nil {
		return nil
	}

	severity := logging.Info
	if d.Status == types.StatusFail {
		severity = logging.Error
	}
	labels := map[string]string{
		"deployment_id": d.ID,
		"project_id":    d.ProjectID,
		"status":        string(d.Status),
	}

	for i, entry := range logs {
		e := logging.Entry{
			Severity: severity,
			Labels:   labels,
			InsertID: entry.Key(i),
			Payload: logPayload{
				Message:      entry.Log,
				EventID:      entry.EventID,
				DeploymentID: d.ID,
				Position:     i,
			},
		}
		if ts, err := time.Parse(time.RFC3339Nano, entry.Timestamp); err == nil {
			e.Timestamp = ts
		}
		p.logger.Log(e)
	}

	if err := p.logger.Flush(); err != nil {
		return fmt.Errorf("failed to flush Cloud Logging entries: %w", err)
	}
	return nil
}

// Close flushes the log mirror and closes the clients.
func (p *Provider) Close() error {
	var errs []error
	if p.logClient != nil {
		errs = append(errs, p.logClient.Close())
	}
	if p.store != nil {
		errs = append(errs, p.store.close())
	}
	return errors.Join(errs...)
}

// gcsStore is the objectStore backed by the Cloud Storage client.
type gcsStore struct {
	client *storage.Client
	bucket string
}

func (s *gcsStore) bucketExists(ctx context.Context) error {
	_, err := s.client.Bucket(s.bucket).Attrs(ctx)
	return err
}

func (s *gcsStore) write(ctx context.Context, key string, data []byte) error {
	w := s.client.Bucket(s.bucket).Object(key).NewWriter(ctx)
	w.ContentType = "application/json"
	if _, err := w.Write(data); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}

func (s *gcsStore) close() error {
	return s.client.Close()
}
