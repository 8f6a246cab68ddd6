// Package aws archives deployment logs to Amazon S3.
package aws

import (
	"bytes"
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/aws-sdk-go-v2/service/sts"

	shipcfg "github.com/jvreagan/shipyard/pkg/config"
	"github.com/jvreagan/shipyard/pkg/logging"
)

// DefaultRegion is used when the archive configuration names no region.
const DefaultRegion = "us-east-1"

// s3API is the subset of the S3 client used for archiving.
type s3API interface {
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	CreateBucket(ctx context.Context, params *s3.CreateBucketInput, optFns ...func(*s3.Options)) (*s3.CreateBucketOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// stsAPI is the subset of the STS client used to report the caller.
type stsAPI interface {
	GetCallerIdentity(ctx context.Context, params *sts.GetCallerIdentityInput, optFns ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error)
}

// Provider implements provider.Provider for S3.
type Provider struct {
	s3Client  s3API
	stsClient stsAPI
	region    string
	bucket    string
}

// New creates an S3 archive provider. Static credentials from the archive
// configuration are used when present; otherwise the AWS SDK default
// credential chain (environment variables, shared credentials file, or IAM
// role) applies.
func New(ctx context.Context, cfg *shipcfg.ArchiveConfig) (*Provider, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket is required")
	}
	region := cfg.Region
	if region == "" {
		region = DefaultRegion
	}

	opts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if cfg.AWS != nil && cfg.AWS.AccessKeyID != "" && cfg.AWS.SecretAccessKey != "" {
		logging.Debug("using static AWS credentials from config")
		opts = append(opts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AWS.AccessKeyID,
			cfg.AWS.SecretAccessKey,
			"",
		)))
	} else {
		logging.Debug("using AWS default credential chain")
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &Provider{
		s3Client:  s3.NewFromConfig(awsCfg),
		stsClient: sts.NewFromConfig(awsCfg),
		region:    region,
		bucket:    cfg.Bucket,
	}, nil
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return "aws"
}

// Prepare confirms the credentials work and creates the bucket if needed.
func (p *Provider) Prepare(ctx context.Context) error {
	arn, err := p.Identity(ctx)
	if err != nil {
		return err
	}
	logging.Info("archiving to S3", "bucket", p.bucket, "region", p.region, "caller", arn)
	return p.ensureBucket(ctx)
}

// Identity returns the ARN of the calling principal.
func (p *Provider) Identity(ctx context.Context) (string, error) {
	out, err := p.stsClient.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return "", fmt.Errorf("failed to verify AWS credentials: %w", err)
	}
	return aws.ToString(out.Arn), nil
}

// ensureBucket creates the S3 bucket if it doesn't exist.
func (p *Provider) ensureBucket(ctx context.Context) error {
	_, err := p.s3Client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(p.bucket),
	})
	if err == nil {
		return nil
	}

	logging.Info("creating S3 bucket", "bucket", p.bucket)

	// Regions other than us-east-1 need a LocationConstraint
	input := &s3.CreateBucketInput{
		Bucket: aws.String(p.bucket),
	}
	if p.region != "us-east-1" {
		input.CreateBucketConfiguration = &s3types.CreateBucketConfiguration{
			LocationConstraint: s3types.BucketLocationConstraint(p.region),
		}
	}

	if _, err := p.s3Client.CreateBucket(ctx, input); err != nil {
		return fmt.Errorf("failed to create bucket %s: %w", p.bucket, err)
	}
	return nil
}

// Upload writes data to s3://bucket/key.
func (p *Provider) Upload(ctx context.Context, key string, data []byte) error {
	_, err := p.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(p.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("failed to upload s3://%s/%s: %w", p.bucket, key, err)
	}
	return nil
}

// Location returns the URI of key.
func (p *Provider) Location(key string) string {
	return fmt.Sprintf("s3://%s/%s", p.bucket, key)
}

// Close releases nothing; S3 clients hold no connections of their own.
func (p *Provider) Close() error {
	return nil
}
