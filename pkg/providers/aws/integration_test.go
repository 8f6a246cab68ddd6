//go:build integration

package aws

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	shipcfg "github.com/jvreagan/shipyard/pkg/config"
)

// TestAWSIntegration uploads a small object to a real S3 bucket.
//
// Required environment variables:
//   - AWS_ACCESS_KEY_ID
//   - AWS_SECRET_ACCESS_KEY
//   - SHIPYARD_TEST_S3_BUCKET
//   - AWS_REGION (optional, defaults to us-east-1)
//
// Run with: go test -tags=integration ./pkg/providers/aws -v
func TestAWSIntegration(t *testing.T) {
	if os.Getenv("AWS_ACCESS_KEY_ID") == "" || os.Getenv("AWS_SECRET_ACCESS_KEY") == "" {
		t.Skip("Skipping AWS integration test: credentials not available")
	}
	bucket := os.Getenv("SHIPYARD_TEST_S3_BUCKET")
	if bucket == "" {
		t.Skip("Skipping AWS integration test: SHIPYARD_TEST_S3_BUCKET not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	p, err := New(ctx, &shipcfg.ArchiveConfig{
		Provider: "aws",
		Bucket:   bucket,
		Region:   os.Getenv("AWS_REGION"),
	})
	if err != nil {
		t.Fatalf("Failed to create provider: %v", err)
	}
	defer p.Close()

	if err := p.Prepare(ctx); err != nil {
		t.Fatalf("Prepare failed: %v", err)
	}

	key := fmt.Sprintf("integration/%d.json", time.Now().UnixNano())
	if err := p.Upload(ctx, key, []byte(`{"integration":true}`)); err != nil {
		t.Fatalf("Upload failed: %v", err)
	}
	t.Logf("uploaded %s", p.Location(key))
}
