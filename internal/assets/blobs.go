package assets

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vyrodovalexey/avaroute/internal/config"
	"github.com/vyrodovalexey/avaroute/internal/util"
)

// ErrBlobNotFound is returned when a digest is not in the store.
var ErrBlobNotFound = fmt.Errorf("blob %w", util.ErrNotFound)

const tracerName = "avaroute/assets"

// BlobStore is a content-addressed store for static asset bytes.
type BlobStore interface {
	Get(ctx context.Context, digest string) ([]byte, error)
}

// NewBlobStore creates the store selected by cfg.
func NewBlobStore(ctx context.Context, cfg config.BlobStoreConfig) (BlobStore, error) {
	switch cfg.Type {
	case config.BlobStoreDir, "":
		return NewDirBlobStore(cfg.Dir), nil
	case config.BlobStoreS3:
		if cfg.S3 == nil {
			return nil, errors.New("s3 blob store requires s3 configuration")
		}
		return NewS3BlobStore(ctx, cfg.S3)
	default:
		return nil, fmt.Errorf("unknown blob store type %q", cfg.Type)
	}
}

func validDigest(digest string) bool {
	return digest != "" && digest != "." && digest != ".." &&
		!strings.ContainsAny(digest, `/\`)
}

func observeFetch(ctx context.Context, store, digest string, fetch func(ctx context.Context) ([]byte, error)) ([]byte, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "assets.BlobGet",
		trace.WithAttributes(
			attribute.String("blob.store", store),
			attribute.String("blob.digest", digest),
		),
	)
	defer span.End()

	start := time.Now()
	data, err := fetch(ctx)
	m := getBlobMetrics()
	m.duration.WithLabelValues(store).Observe(time.Since(start).Seconds())
	if err != nil {
		result := "error"
		if errors.Is(err, ErrBlobNotFound) {
			result = "not_found"
		}
		m.errors.WithLabelValues(store, result).Inc()
		span.SetStatus(codes.Error, err.Error())
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(attribute.Int("blob.size", len(data)))
	return data, nil
}

// DirBlobStore reads blobs from files named by digest under a directory.
type DirBlobStore struct {
	root string
}

// NewDirBlobStore creates a directory-backed store.
func NewDirBlobStore(root string) *DirBlobStore {
	return &DirBlobStore{root: root}
}

// Get reads the blob for digest.
func (s *DirBlobStore) Get(ctx context.Context, digest string) ([]byte, error) {
	return observeFetch(ctx, config.BlobStoreDir, digest, func(context.Context) ([]byte, error) {
		if !validDigest(digest) {
			return nil, fmt.Errorf("invalid digest %q: %w", digest, ErrBlobNotFound)
		}
		data, err := os.ReadFile(filepath.Join(s.root, digest)) //nolint:gosec // digest is validated above
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", digest, ErrBlobNotFound)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read blob %s: %w", digest, err)
		}
		return data, nil
	})
}

// S3API is the subset of the S3 client the blob store uses.
type S3API interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3BlobStore reads blobs from objects named prefix+digest.
type S3BlobStore struct {
	client S3API
	bucket string
	prefix string
}

// NewS3BlobStore creates an S3 client from cfg. Static keys are used when
// configured; otherwise requests are anonymous.
func NewS3BlobStore(_ context.Context, cfg *config.S3BlobsConfig) (*S3BlobStore, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("s3 bucket is required")
	}

	opts := s3.Options{
		Region:       cfg.Region,
		UsePathStyle: cfg.UsePathStyle,
		Credentials:  aws.AnonymousCredentials{},
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
	}
	if cfg.AccessKeyID != "" {
		creds := aws.Credentials{
			AccessKeyID:     cfg.AccessKeyID,
			SecretAccessKey: cfg.SecretAccessKey,
			Source:          "avaroute config",
		}
		opts.Credentials = aws.NewCredentialsCache(aws.CredentialsProviderFunc(
			func(context.Context) (aws.Credentials, error) { return creds, nil },
		))
	}

	return NewS3BlobStoreWithClient(s3.New(opts), cfg.Bucket, cfg.Prefix), nil
}

// NewS3BlobStoreWithClient creates a store over an existing client.
func NewS3BlobStoreWithClient(client S3API, bucket, prefix string) *S3BlobStore {
	return &S3BlobStore{client: client, bucket: bucket, prefix: prefix}
}

// Get downloads the blob for digest.
func (s *S3BlobStore) Get(ctx context.Context, digest string) ([]byte, error) {
	return observeFetch(ctx, config.BlobStoreS3, digest, func(ctx context.Context) ([]byte, error) {
		if !validDigest(digest) {
			return nil, fmt.Errorf("invalid digest %q: %w", digest, ErrBlobNotFound)
		}

		out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(s.prefix + digest),
		})
		if err != nil {
			var noKey *types.NoSuchKey
			if errors.As(err, &noKey) {
				return nil, fmt.Errorf("%s: %w", digest, ErrBlobNotFound)
			}
			return nil, fmt.Errorf("s3 get %s failed: %w", digest, err)
		}
		defer func() { _ = out.Body.Close() }()

		var buf bytes.Buffer
		if out.ContentLength != nil && *out.ContentLength > 0 {
			buf.Grow(int(*out.ContentLength))
		}
		if _, err := io.Copy(&buf, out.Body); err != nil {
			return nil, fmt.Errorf("s3 read %s failed: %w", digest, err)
		}
		return buf.Bytes(), nil
	})
}
