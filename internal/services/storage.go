package services

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

const s3Scheme = "s3://"

// ImagePresigner turns s3:// wallpaper URLs into time-limited HTTPS URLs devices can download
type ImagePresigner struct {
	presignClient *s3.PresignClient
	bucket        string
	ttl           time.Duration
}

// NewImagePresigner creates a presigner for a single bucket.
// Static credentials are used when accessKey is set, otherwise the default AWS chain.
func NewImagePresigner(ctx context.Context, region, bucket, accessKey, secretKey, endpoint string, ttl time.Duration) (*ImagePresigner, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if accessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKey, secretKey, ""),
		))
	}

	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	s3Client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})

	return &ImagePresigner{
		presignClient: s3.NewPresignClient(s3Client),
		bucket:        bucket,
		ttl:           ttl,
	}, nil
}

// Resolve presigns s3://bucket/key URLs and returns any other URL unchanged
func (p *ImagePresigner) Resolve(ctx context.Context, rawURL string) (string, error) {
	if !strings.HasPrefix(rawURL, s3Scheme) {
		return rawURL, nil
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid image url: %w", err)
	}
	key := strings.TrimPrefix(u.Path, "/")
	if key == "" {
		return "", fmt.Errorf("image url %q has no object key", rawURL)
	}
	if u.Host != p.bucket {
		return "", fmt.Errorf("image bucket %q is not %q", u.Host, p.bucket)
	}

	request, err := p.presignClient.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(p.ttl))
	if err != nil {
		return "", fmt.Errorf("failed to presign image url: %w", err)
	}

	return request.URL, nil
}
