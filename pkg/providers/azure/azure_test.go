package azure

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"

	shipcfg "github.com/jvreagan/shipyard/pkg/config"
)

type fakeBlob struct {
	createErr   error
	created     []string
	uploads     map[string]string
	contentType string
}

func (f *fakeBlob) CreateContainer(_ context.Context, name string, _ *azblob.CreateContainerOptions) (azblob.CreateContainerResponse, error) {
	f.created = append(f.created, name)
	return azblob.CreateContainerResponse{}, f.createErr
}

func (f *fakeBlob) UploadBuffer(_ context.Context, container, name string, buf []byte, o *azblob.UploadBufferOptions) (azblob.UploadBufferResponse, error) {
	if f.uploads == nil {
		f.uploads = map[string]string{}
	}
	f.uploads[container+"/"+name] = string(buf)
	if o != nil && o.HTTPHeaders != nil && o.HTTPHeaders.BlobContentType != nil {
		f.contentType = *o.HTTPHeaders.BlobContentType
	}
	return azblob.UploadBufferResponse{}, nil
}

func TestProviderName(t *testing.T) {
	p := &Provider{}
	if p.Name() != "azure" {
		t.Errorf("Expected provider name 'azure', got '%s'", p.Name())
	}
}

func TestNew(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name     string
		cfg      *shipcfg.ArchiveConfig
		errorMsg string
	}{
		{
			name:     "missing container",
			cfg:      &shipcfg.ArchiveConfig{Provider: "azure"},
			errorMsg: "container name is required",
		},
		{
			name:     "missing account url",
			cfg:      &shipcfg.ArchiveConfig{Provider: "azure", Bucket: "logs"},
			errorMsg: "account URL is required",
		},
		{
			name: "service principal",
			cfg: &shipcfg.ArchiveConfig{
				Provider: "azure",
				Bucket:   "logs",
				Azure: &shipcfg.AzureArchiveConfig{
					AccountURL:   "https://shipyard.blob.core.windows.net/",
					TenantID:     "00000000-0000-0000-0000-000000000000",
					ClientID:     "11111111-1111-1111-1111-111111111111",
					ClientSecret: "secret",
				},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := New(ctx, tt.cfg)
			if tt.errorMsg != "" {
				if err == nil || !strings.Contains(err.Error(), tt.errorMsg) {
					t.Errorf("New() error = %v, want containing %q", err, tt.errorMsg)
				}
				return
			}
			if err != nil {
				t.Fatalf("New() error: %v", err)
			}
			if got := p.Location("p/d.json"); got != "https://shipyard.blob.core.windows.net/logs/p/d.json" {
				t.Errorf("Location() = %q", got)
			}
		})
	}
}

func TestPrepare(t *testing.T) {
	ctx := context.Background()

	exists := &azcore.ResponseError{ErrorCode: string(bloberror.ContainerAlreadyExists), StatusCode: 409}
	tests := []struct {
		name    string
		err     error
		wantErr bool
	}{
		{name: "created", err: nil},
		{name: "already exists", err: exists},
		{name: "other failure", err: errors.New("AuthorizationFailure"), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &fakeBlob{createErr: tt.err}
			p := &Provider{client: fake, container: "logs"}

			err := p.Prepare(ctx)
			if (err != nil) != tt.wantErr {
				t.Errorf("Prepare() error = %v, wantErr %v", err, tt.wantErr)
			}
			if len(fake.created) != 1 || fake.created[0] != "logs" {
				t.Errorf("created = %v", fake.created)
			}
		})
	}
}

func TestUpload(t *testing.T) {
	fake := &fakeBlob{}
	p := &Provider{client: fake, accountURL: "https://acct.blob.core.windows.net", container: "logs"}

	if err := p.Upload(context.Background(), "proj-1/dep-1.json", []byte(`{"logs":[]}`)); err != nil {
		t.Fatalf("Upload() error: %v", err)
	}
	if fake.uploads["logs/proj-1/dep-1.json"] != `{"logs":[]}` {
		t.Errorf("uploads = %v", fake.uploads)
	}
	if fake.contentType != "application/json" {
		t.Errorf("content type = %q", fake.contentType)
	}
}
