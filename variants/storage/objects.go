package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	gcs "cloud.google.com/go/storage"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"google.golang.org/api/option"
)

// FilesystemBackend serves objects from Root/<bucket>/<key>. It is meant for local development.
type FilesystemBackend struct {
	Root string
}

func absPath(path string) (string, error) {
	p, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("getting absolute path: %w", err)
	}
	p, err = filepath.EvalSymlinks(p)
	if err != nil {
		return "", fmt.Errorf("evaluating symlinks: %w", err)
	}
	return p, nil
}

func (b *FilesystemBackend) objectPath(loc Locator) (string, error) {
	realRoot, err := absPath(b.Root)
	if err != nil {
		return "", fmt.Errorf("getting real root: %w", err)
	}

	path, err := absPath(filepath.Join(b.Root, loc.Bucket, filepath.FromSlash(loc.Key)))
	if err != nil {
		return "", fmt.Errorf("getting object path: %w", err)
	}

	prefix := realRoot
	if !strings.HasSuffix(prefix, string(filepath.Separator)) {
		prefix += string(filepath.Separator)
	}
	if !strings.HasPrefix(path, prefix) {
		return "", fmt.Errorf("%w: path %q is outside of root %q", ErrInvalidLocator, path, realRoot)
	}
	return path, nil
}

func (b *FilesystemBackend) Open(ctx context.Context, loc Locator) (Session, error) {
	if err := loc.Validate(); err != nil {
		return nil, err
	}
	path, err := b.objectPath(loc)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			err = fmt.Errorf("%w: %w", ErrObjectNotFound, err)
		}
		return nil, &TransportError{Op: "open", Locator: loc, Err: err}
	}
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			err = fmt.Errorf("%w: %w", ErrObjectNotFound, err)
		}
		return nil, &TransportError{Op: "open", Locator: loc, Err: err}
	}
	return NewSession(loc, file), nil
}

func (b *FilesystemBackend) Validate() []string {
	var errs []string
	if b.Root == "" {
		errs = append(errs, "Root must not be empty")
	}
	return errs
}

type S3Backend struct {
	Client   S3Client
	Region   string
	Endpoint string
}

type S3Client interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

func NewS3Client(cfg aws.Config, optFn func(*s3.Options)) S3Client {
	return s3.NewFromConfig(cfg, optFn)
}

func NewS3Backend(
	region string,
	endpoint string,
	clientFactory func(aws.Config, func(*s3.Options)) S3Client,
) (*S3Backend, error) {
	awsCfg, err := awsConfig.LoadDefaultConfig(context.Background())
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}
	if region == "" {
		region = awsCfg.Region
	}
	client := clientFactory(awsCfg, func(o *s3.Options) {
		o.Region = region
		if endpoint != "" {
			// S3-compatible stores (MinIO, localstack) generally need path-style addressing.
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})
	return &S3Backend{
		Client:   client,
		Region:   region,
		Endpoint: endpoint,
	}, nil
}

func (b *S3Backend) Open(ctx context.Context, loc Locator) (Session, error) {
	if err := loc.Validate(); err != nil {
		return nil, err
	}
	resp, err := b.Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(loc.Bucket),
		Key:    aws.String(loc.Key),
	})
	if err != nil {
		var noSuchKey *types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			err = fmt.Errorf("%w: %w", ErrObjectNotFound, err)
		}
		return nil, &TransportError{Op: "open", Locator: loc, Err: err}
	}
	return NewSession(loc, resp.Body), nil
}

func (b *S3Backend) Validate() []string {
	var errs []string
	if b.Client == nil {
		errs = append(errs, "Client must not be nil")
	}
	if b.Region == "" {
		errs = append(errs, "Region must not be empty")
	}
	return errs
}

// GCSBackend reads objects from Google Cloud Storage. If Client is nil, one is created on first
// use with Application Default Credentials (and Endpoint, if set).
type GCSBackend struct {
	Client   *gcs.Client
	Endpoint string

	mu sync.Mutex
}

func (b *GCSBackend) client(ctx context.Context) (*gcs.Client, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.Client != nil {
		return b.Client, nil
	}
	var opts []option.ClientOption
	if b.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(b.Endpoint), option.WithoutAuthentication())
	}
	client, err := gcs.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating GCS client: %w", err)
	}
	b.Client = client
	return client, nil
}

func (b *GCSBackend) Open(ctx context.Context, loc Locator) (Session, error) {
	if err := loc.Validate(); err != nil {
		return nil, err
	}
	client, err := b.client(ctx)
	if err != nil {
		return nil, &TransportError{Op: "open", Locator: loc, Err: err}
	}
	rc, err := client.Bucket(loc.Bucket).Object(loc.Key).NewReader(ctx)
	if err != nil {
		if errors.Is(err, gcs.ErrObjectNotExist) || errors.Is(err, gcs.ErrBucketNotExist) {
			err = fmt.Errorf("%w: %w", ErrObjectNotFound, err)
		}
		return nil, &TransportError{Op: "open", Locator: loc, Err: err}
	}
	return NewSession(loc, rc), nil
}

func (b *GCSBackend) Validate() []string {
	return nil
}
