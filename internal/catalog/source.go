// internal/catalog/source.go
package catalog

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"nutrimood/internal/apperr"
)

// Source yields the raw bytes of a catalog.
type Source interface {
	Fetch(ctx context.Context) ([]byte, error)
	String() string
}

// FileSource reads the catalog from a local JSON file.
type FileSource struct {
	Path string
}

func (s FileSource) Fetch(ctx context.Context) ([]byte, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, apperr.DataLoad("read %s: %v", s.Path, err)
	}
	return data, nil
}

func (s FileSource) String() string {
	return s.Path
}

// ObjectGetter is the subset of the S3 client the catalog needs.
type ObjectGetter interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Options configures access to an S3-compatible bucket. Empty credentials
// fall back to the default AWS credential chain.
type S3Options struct {
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
}

// S3Source reads the catalog from an object in S3 or an S3-compatible store.
type S3Source struct {
	client ObjectGetter
	bucket string
	key    string
}

func NewS3SourceWithClient(client ObjectGetter, bucket, key string) *S3Source {
	return &S3Source{client: client, bucket: bucket, key: key}
}

// NewS3Source builds a client from the default AWS configuration for an
// s3://bucket/key location.
func NewS3Source(ctx context.Context, location string, opts S3Options) (*S3Source, error) {
	bucket, key, err := ParseS3URI(location)
	if err != nil {
		return nil, err
	}

	loadOpts := []func(*config.LoadOptions) error{}
	if opts.Region != "" {
		loadOpts = append(loadOpts, config.WithRegion(opts.Region))
	}
	if opts.AccessKey != "" && opts.SecretKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, ""),
		))
	}

	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	})
	return NewS3SourceWithClient(client, bucket, key), nil
}

func (s *S3Source) Fetch(ctx context.Context) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key),
	})
	if err != nil {
		return nil, apperr.DataLoad("get %s: %v", s, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, apperr.DataLoad("read %s: %v", s, err)
	}
	return data, nil
}

func (s *S3Source) String() string {
	return "s3://" + s.bucket + "/" + s.key
}

// ParseS3URI splits s3://bucket/key into its parts.
func ParseS3URI(location string) (string, string, error) {
	rest, ok := strings.CutPrefix(location, "s3://")
	if !ok {
		return "", "", apperr.Invalid("%q is not an s3:// location", location)
	}
	bucket, key, ok := strings.Cut(rest, "/")
	if !ok || bucket == "" || key == "" {
		return "", "", apperr.Invalid("%q must name a bucket and a key", location)
	}
	return bucket, key, nil
}

// OpenSource picks the source implementation from the location scheme.
func OpenSource(ctx context.Context, location string, opts S3Options) (Source, error) {
	if strings.HasPrefix(location, "s3://") {
		return NewS3Source(ctx, location, opts)
	}
	if location == "" {
		return nil, apperr.DataLoad("no catalog location configured")
	}
	return FileSource{Path: location}, nil
}
