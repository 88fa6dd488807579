package blob

import (
	"context"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
	"github.com/rotisserie/eris"
	"google.golang.org/api/option"

	"github.com/sells-group/map-review/internal/resilience"
)

// GCSStore keeps policy documents in a Google Cloud Storage bucket.
type GCSStore struct {
	client    *storage.Client
	bucket    string
	cdnDomain string
	retry     resilience.RetryConfig
}

// NewGCS creates a GCSStore. credentialsFile may be empty to use ambient
// application-default credentials. When cdnDomain is set, Put returns
// https URLs on that domain instead of gs:// URIs.
func NewGCS(ctx context.Context, bucket, credentialsFile, cdnDomain string) (*GCSStore, error) {
	if bucket == "" {
		return nil, eris.New("gcs: bucket name required")
	}

	opts := []option.ClientOption{option.WithScopes(storage.ScopeReadWrite)}
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, eris.Wrap(err, "gcs: create client")
	}
	return &GCSStore{
		client:    client,
		bucket:    bucket,
		cdnDomain: cdnDomain,
		retry:     resilience.DefaultRetryConfig(),
	}, nil
}

// Put writes the document under the given key and returns a gs:// URI.
// Transient upload failures are retried with backoff.
func (s *GCSStore) Put(ctx context.Context, key string, contentType string, data []byte) (string, error) {
	return resilience.DoVal(ctx, s.retry, func(ctx context.Context) (string, error) {
		w := s.client.Bucket(s.bucket).Object(key).NewWriter(ctx)
		w.ContentType = contentType
		if _, err := w.Write(data); err != nil {
			_ = w.Close()
			return "", eris.Wrapf(err, "gcs: write %s", key)
		}
		if err := w.Close(); err != nil {
			return "", eris.Wrapf(err, "gcs: close %s", key)
		}
		if s.cdnDomain != "" {
			return fmt.Sprintf("https://%s/%s", s.cdnDomain, key), nil
		}
		return fmt.Sprintf("gs://%s/%s", s.bucket, key), nil
	})
}

func (s *GCSStore) Get(ctx context.Context, key string) ([]byte, error) {
	r, err := s.client.Bucket(s.bucket).Object(key).NewReader(ctx)
	if err != nil {
		return nil, eris.Wrapf(err, "gcs: open %s", key)
	}
	defer func() { _ = r.Close() }()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, eris.Wrapf(err, "gcs: read %s", key)
	}
	return data, nil
}

func (s *GCSStore) Close() error {
	return s.client.Close()
}
