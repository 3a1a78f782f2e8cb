package services

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	sc "docflow/internal/server/config"
)

// ArtifactPresigner hands out short-lived download URLs for stored document
// files. File mechanics (upload, rendering) live outside this service; the
// workflow only releases access to what is already stored.
type ArtifactPresigner interface {
	PresignGet(ctx context.Context, storageKey string, ttl time.Duration) (string, error)
}

// S3Presigner implements ArtifactPresigner over an S3-compatible store.
type S3Presigner struct {
	config *sc.Config
}

// NewS3Presigner constructs an S3Presigner from server configuration.
func NewS3Presigner(cfg *sc.Config) *S3Presigner {
	return &S3Presigner{config: cfg}
}

func (p *S3Presigner) getPresignClient(ctx context.Context) (*s3.PresignClient, error) {
	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(p.config.S3Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			p.config.S3RootUser,
			p.config.S3RootPassword,
			"",
		)))
	if err != nil {
		return nil, err
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(p.config.S3BaseEndpoint)
	})

	return s3.NewPresignClient(client), nil
}

// PresignGet returns a presigned GET URL for the artifact at storageKey.
func (p *S3Presigner) PresignGet(ctx context.Context, storageKey string, ttl time.Duration) (string, error) {
	presignClient, err := p.getPresignClient(ctx)
	if err != nil {
		return "", err
	}

	bucket := p.config.S3Bucket

	req, err := presignClient.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: &bucket,
		Key:    &storageKey,
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", err
	}

	return req.URL, nil
}
