// Package provider defines the interface every log archive backend
// implements. This abstraction lets shipyard archive finished deployment
// logs to AWS, GCP or Azure object storage through one code path.
package provider

import (
	"context"
	"fmt"

	"github.com/jvreagan/shipyard/pkg/config"
	"github.com/jvreagan/shipyard/pkg/providers/aws"
	"github.com/jvreagan/shipyard/pkg/providers/azure"
	"github.com/jvreagan/shipyard/pkg/providers/gcp"
	"github.com/jvreagan/shipyard/pkg/types"
)

// Provider stores archived deployment records.
type Provider interface {
	// Name returns the provider name ("aws", "gcp" or "azure").
	Name() string

	// Prepare verifies credentials and makes sure the destination bucket or
	// container exists. It is called once before the first Upload.
	Prepare(ctx context.Context) error

	// Upload writes data under key, replacing any existing object.
	Upload(ctx context.Context, key string, data []byte) error

	// Location returns a human-readable URI for key.
	Location(key string) string

	// Close releases clients held by the provider.
	Close() error
}

// LogMirror is implemented by providers that can also forward individual
// log lines to a logging service.
type LogMirror interface {
	MirrorLogs(ctx context.Context, d *types.Deployment, logs []types.LogEntry) error
}

// Factory creates a provider from the archive configuration.
//
// Supported providers: aws, gcp, azure
//
// Example:
//
//	p, err := provider.Factory(ctx, &cfg.Archive)
//	if err != nil {
//	  log.Fatal(err)
//	}
func Factory(ctx context.Context, cfg *config.ArchiveConfig) (Provider, error) {
	switch cfg.Provider {
	case "aws":
		return aws.New(ctx, cfg)
	case "gcp":
		return gcp.New(ctx, cfg)
	case "azure":
		return azure.New(ctx, cfg)
	case "":
		return nil, fmt.Errorf("no archive provider configured")
	default:
		return nil, fmt.Errorf("unknown provider: %s", cfg.Provider)
	}
}
