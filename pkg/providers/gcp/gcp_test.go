package gcp

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"cloud.google.com/go/logging"

	shipcfg "github.com/jvreagan/shipyard/pkg/config"
	"github.com/jvreagan/shipyard/pkg/types"
)

type fakeStore struct {
	missing bool
	objects map[string]string
	closed  bool
}

func (f *fakeStore) bucketExists(context.Context) error {
	if f.missing {
		return errors.New("storage: bucket doesn't exist")
	}
	return nil
}

func (f *fakeStore) write(_ context.Context, key string, data []byte) error {
	if f.objects == nil {
		f.objects = map[string]string{}
	}
	f.objects[key] = string(data)
	return nil
}

func (f *fakeStore) close() error {
	f.closed = true
	return nil
}

type fakeLogger struct {
	entries []logging.Entry
	flushed bool
}

func (f *fakeLogger) Log(e logging.Entry) { f.entries = append(f.entries, e) }

func (f *fakeLogger) Flush() error {
	f.flushed = true
	return nil
}

func TestProviderName(t *testing.T) {
	provider := &Provider{projectID: "test-project", bucket: "logs"}

	if provider.Name() != "gcp" {
		t.Errorf("Expected provider name 'gcp', got '%s'", provider.Name())
	}
	if provider.Location("p/d.json") != "gs://logs/p/d.json" {
		t.Errorf("Location() = %q", provider.Location("p/d.json"))
	}
}

func TestNewValidation(t *testing.T) {
	ctx := context.Background()

	_, err := New(ctx, &shipcfg.ArchiveConfig{Provider: "gcp"})
	if err == nil || !strings.Contains(err.Error(), "bucket is required") {
		t.Errorf("New() without bucket error = %v", err)
	}

	_, err = New(ctx, &shipcfg.ArchiveConfig{
		Provider: "gcp",
		Bucket:   "logs",
		GCP:      &shipcfg.GCPArchiveConfig{LogName: "shipyard"},
	})
	if err == nil || !strings.Contains(err.Error(), "project_id is required") {
		t.Errorf("New() with log_name but no project error = %v", err)
	}
}

func TestLoadCredentials(t *testing.T) {
	tests := []struct {
		name string
		cfg  *shipcfg.GCPArchiveConfig
		want int
	}{
		{name: "key path", cfg: &shipcfg.GCPArchiveConfig{ServiceAccountKeyPath: "/path/to/key.json"}, want: 1},
		{name: "key json", cfg: &shipcfg.GCPArchiveConfig{ServiceAccountKeyJSON: `{"type":"service_account"}`}, want: 1},
		{name: "default credentials", cfg: &shipcfg.GCPArchiveConfig{}, want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := len(loadCredentials(tt.cfg)); got != tt.want {
				t.Errorf("len(loadCredentials()) = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestPrepareAndUpload(t *testing.T) {
	store := &fakeStore{}
	p := &Provider{store: store, bucket: "logs"}
	ctx := context.Background()

	if err := p.Prepare(ctx); err != nil {
		t.Fatalf("Prepare() error: %v", err)
	}
	if err := p.Upload(ctx, "proj-1/dep-1.json", []byte(`{}`)); err != nil {
		t.Fatalf("Upload() error: %v", err)
	}
	if store.objects["proj-1/dep-1.json"] != `{}` {
		t.Errorf("objects = %v", store.objects)
	}
	if err := p.Close(); err != nil || !store.closed {
		t.Errorf("Close() = %v, closed = %v", err, store.closed)
	}

	store.missing = true
	if err := p.Prepare(ctx); err == nil || !strings.Contains(err.Error(), "bucket logs is not accessible") {
		t.Errorf("Prepare() on missing bucket error = %v", err)
	}
}

func TestMirrorLogs(t *testing.T) {
	logger := &fakeLogger{}
	p := &Provider{store: &fakeStore{}, logger: logger}

	d := &types.Deployment{ID: "dep-1", ProjectID: "proj-1", Status: types.StatusFail}
	logs := []types.LogEntry{
		{EventID: "e1", Log: "npm install", Timestamp: "2025-01-01T10:00:00Z"},
		{Log: "npm ERR! missing script: build", Timestamp: "not a time"},
	}

	if err := p.MirrorLogs(context.Background(), d, logs); err != nil {
		t.Fatalf("MirrorLogs() error: %v", err)
	}
	if !logger.flushed {
		t.Error("logger not flushed")
	}
	if len(logger.entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(logger.entries))
	}

	first, second := logger.entries[0], logger.entries[1]
	if first.Severity != logging.Error {
		t.Errorf("Severity = %v, want Error for a failed deployment", first.Severity)
	}
	if first.InsertID != "e1" || second.InsertID != "1" {
		t.Errorf("InsertIDs = %q, %q", first.InsertID, second.InsertID)
	}
	if !first.Timestamp.Equal(time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)) {
		t.Errorf("Timestamp = %v", first.Timestamp)
	}
	if !second.Timestamp.IsZero() {
		t.Errorf("unparseable timestamp produced %v", second.Timestamp)
	}
	if first.Labels["deployment_id"] != "dep-1" || first.Labels["project_id"] != "proj-1" {
		t.Errorf("Labels = %v", first.Labels)
	}
	payload, ok := second.Payload.(logPayload)
	if !ok || payload.Message != "npm ERR! missing script: build" || payload.Position != 1 {
		t.Errorf("Payload = %#v", second.Payload)
	}
}

func TestMirrorLogsDisabled(t *testing.T) {
	p := &Provider{store: &fakeStore{}}
	if err := p.MirrorLogs(context.Background(), &types.Deployment{ID: "d"}, []types.LogEntry{{Log: "x"}}); err != nil {
		t.Errorf("MirrorLogs() error = %v", err)
	}
}
