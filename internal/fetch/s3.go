package fetch

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ObjectGetter is the part of the S3 API the fetcher needs.
type ObjectGetter interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Fetcher fetches s3://bucket/key locators, for mirrors kept in a bucket.
type S3Fetcher struct {
	client ObjectGetter
}

// Assert that S3Fetcher implements the Fetcher interface
var _ Fetcher = (*S3Fetcher)(nil)

func NewS3Fetcher(client ObjectGetter) *S3Fetcher {
	return &S3Fetcher{client: client}
}

// NewDefaultS3Fetcher builds an S3 client from the ambient AWS configuration
// (environment, shared config files, instance metadata).
func NewDefaultS3Fetcher(ctx context.Context, region string) (*S3Fetcher, error) {
	var opts []func(*config.LoadOptions) error
	if region != "" {
		opts = append(opts, config.WithRegion(region))
	}
	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS configuration: %w", err)
	}
	return NewS3Fetcher(s3.NewFromConfig(cfg)), nil
}

// ParseS3Locator splits an s3://bucket/key locator.
func ParseS3Locator(locator string) (bucket, key string, err error) {
	u, err := url.Parse(locator)
	if err != nil {
		return "", "", err
	}
	if u.Scheme != "s3" {
		return "", "", fmt.Errorf("%w %q", ErrUnsupportedScheme, u.Scheme)
	}
	key = strings.TrimPrefix(u.Path, "/")
	if u.Host == "" || key == "" {
		return "", "", fmt.Errorf("s3 locator %q needs a bucket and a key", locator)
	}
	return u.Host, key, nil
}

func (f *S3Fetcher) Fetch(ctx context.Context, locator string) ([]byte, error) {
	bucket, key, err := ParseS3Locator(locator)
	if err != nil {
		return nil, &NetworkError{Locator: locator, Err: err}
	}

	out, err := f.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, &NetworkError{Locator: locator, Err: err}
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, &NetworkError{Locator: locator, Err: err}
	}
	return data, nil
}
