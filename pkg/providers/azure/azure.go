// Package azure archives deployment logs to Azure Blob Storage.
package azure

import (
	"context"
	"fmt"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"

	shipcfg "github.com/jvreagan/shipyard/pkg/config"
	"github.com/jvreagan/shipyard/pkg/logging"
)

// blobAPI is the subset of *azblob.Client used for archiving.
type blobAPI interface {
	CreateContainer(ctx context.Context, containerName string, o *azblob.CreateContainerOptions) (azblob.CreateContainerResponse, error)
	UploadBuffer(ctx context.Context, containerName string, blobName string, buffer []byte, o *azblob.UploadBufferOptions) (azblob.UploadBufferResponse, error)
}

// Provider implements provider.Provider for Azure Blob Storage.
type Provider struct {
	client     blobAPI
	accountURL string
	container  string
}

// New creates a Blob Storage archive provider.
//
// Authentication methods:
//  1. Service Principal: provide client_id, client_secret, tenant_id
//  2. Default Azure credentials: leave them empty to use Azure CLI/Managed Identity
func New(ctx context.Context, cfg *shipcfg.ArchiveConfig) (*Provider, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("container name is required")
	}
	if cfg.Azure == nil || cfg.Azure.AccountURL == "" {
		return nil, fmt.Errorf("account URL is required")
	}

	cred, err := credential(cfg.Azure)
	if err != nil {
		return nil, err
	}

	client, err := azblob.NewClient(cfg.Azure.AccountURL, cred, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create blob client: %w", err)
	}

	return &Provider{
		client:     client,
		accountURL: strings.TrimRight(cfg.Azure.AccountURL, "/"),
		container:  cfg.Bucket,
	}, nil
}

func credential(cfg *shipcfg.AzureArchiveConfig) (azcore.TokenCredential, error) {
	if cfg.ClientID != "" && cfg.ClientSecret != "" && cfg.TenantID != "" {
		logging.Debug("using Azure service principal authentication from config")
		cred, err := azidentity.NewClientSecretCredential(cfg.TenantID, cfg.ClientID, cfg.ClientSecret, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create service principal credential: %w", err)
		}
		return cred, nil
	}

	logging.Debug("using default Azure credentials (Azure CLI or Managed Identity)")
	cred, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create default credential: %w", err)
	}
	return cred, nil
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return "azure"
}

// Prepare creates the container if it doesn't exist.
func (p *Provider) Prepare(ctx context.Context) error {
	_, err := p.client.CreateContainer(ctx, p.container, nil)
	if err != nil && !bloberror.HasCode(err, bloberror.ContainerAlreadyExists) {
		return fmt.Errorf("failed to create container %s: %w", p.container, err)
	}
	logging.Info("archiving to Azure Blob Storage", "account", p.accountURL, "container", p.container)
	return nil
}

// Upload writes data to the container as blob key.
func (p *Provider) Upload(ctx context.Context, key string, data []byte) error {
	_, err := p.client.UploadBuffer(ctx, p.container, key, data, &azblob.UploadBufferOptions{
		HTTPHeaders: &blob.HTTPHeaders{BlobContentType: to.Ptr("application/json")},
	})
	if err != nil {
		return fmt.Errorf("failed to upload %s: %w", p.Location(key), err)
	}
	return nil
}

// Location returns the blob URL of key.
func (p *Provider) Location(key string) string {
	return fmt.Sprintf("%s/%s/%s", p.accountURL, p.container, key)
}

// Close releases nothing; the blob client is stateless.
func (p *Provider) Close() error {
	return nil
}
