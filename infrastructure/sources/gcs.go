package sources

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/ahrav/go-mqm/internal/ports"
)

// GCSScheme prefixes Cloud Storage object URLs.
const GCSScheme = "gs://"

// ErrInvalidGCSURL is returned for a gs:// URL without a bucket or object.
var ErrInvalidGCSURL = errors.New("invalid gs:// url")

// ObjectOpener opens a reader over one stored object.
type ObjectOpener interface {
	Open(ctx context.Context, bucket, object string) (io.ReadCloser, error)
}

// StorageOpener opens objects through a Cloud Storage client.
type StorageOpener struct {
	client *storage.Client
}

// NewStorageOpener creates a Cloud Storage client. Without options the client
// uses Application Default Credentials.
func NewStorageOpener(ctx context.Context, opts ...option.ClientOption) (*StorageOpener, error) {
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	return &StorageOpener{client: client}, nil
}

// Open returns a reader over bucket/object.
func (s *StorageOpener) Open(ctx context.Context, bucket, object string) (io.ReadCloser, error) {
	return s.client.Bucket(bucket).Object(object).NewReader(ctx)
}

// Close releases the client.
func (s *StorageOpener) Close() error { return s.client.Close() }

// GCSSource reads ratings from a Cloud Storage object.
type GCSSource struct {
	opener ObjectOpener
	bucket string
	object string
}

// NewGCSSource returns a source for gs://bucket/object.
func NewGCSSource(opener ObjectOpener, bucket, object string) *GCSSource {
	return &GCSSource{opener: opener, bucket: bucket, object: object}
}

// ParseGCSURL splits gs://bucket/path/to/object.
func ParseGCSURL(url string) (bucket, object string, err error) {
	rest, ok := strings.CutPrefix(url, GCSScheme)
	if !ok {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidGCSURL, url)
	}
	bucket, object, ok = strings.Cut(rest, "/")
	if !ok || bucket == "" || object == "" {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidGCSURL, url)
	}
	return bucket, object, nil
}

// Name returns the gs:// URL.
func (g *GCSSource) Name() string { return GCSScheme + g.bucket + "/" + g.object }

// Fetch reads the whole object.
func (g *GCSSource) Fetch(ctx context.Context) (string, error) {
	rc, err := g.opener.Open(ctx, g.bucket, g.object)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) || errors.Is(err, storage.ErrBucketNotExist) {
			return "", ports.NewSourceFetchError(g.Name(), err)
		}
		return "", ports.NewSourceFetchError(g.Name(), fmt.Errorf("%w: %w", ports.ErrSourceUnavailable, err))
	}
	defer rc.Close()

	text, err := readAll(ctx, rc)
	if err != nil {
		return "", ports.NewSourceFetchError(g.Name(), err)
	}
	return text, nil
}
