package upload

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

type GCSConfig struct {
	Bucket string
	// PublicBaseURL overrides https://storage.googleapis.com/{bucket}.
	PublicBaseURL   string
	CredentialsFile string
	// EmulatorHost points the client to a fake-gcs-server without auth.
	EmulatorHost string
}

type GCSBucket struct {
	client  *storage.Client
	name    string
	baseURL string
}

func NewGCSBucket(ctx context.Context, cfg GCSConfig) (*GCSBucket, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("gcs: missing bucket name")
	}

	var opts []option.ClientOption
	switch {
	case cfg.EmulatorHost != "":
		_ = os.Setenv("STORAGE_EMULATOR_HOST", strings.TrimRight(cfg.EmulatorHost, "/"))
		opts = append(opts, option.WithoutAuthentication())
	case cfg.CredentialsFile != "":
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	opts = append(opts, option.WithScopes(storage.ScopeReadWrite))

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("gcs: create client: %w", err)
	}

	baseURL := strings.TrimRight(cfg.PublicBaseURL, "/")
	if baseURL == "" {
		baseURL = "https://storage.googleapis.com/" + cfg.Bucket
	}
	return &GCSBucket{client: client, name: cfg.Bucket, baseURL: baseURL}, nil
}

func (b *GCSBucket) Put(ctx context.Context, key, contentType string, body io.Reader) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	w := b.client.Bucket(b.name).Object(key).NewWriter(ctx)
	w.ContentType = contentType
	w.CacheControl = "public, max-age=31536000"
	if _, err := io.Copy(w, body); err != nil {
		// cancel before Close so a partial object is never committed
		cancel()
		_ = w.Close()
		return err
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("gcs: close writer: %w", err)
	}
	return nil
}

func (b *GCSBucket) URL(key string) string {
	return b.baseURL + "/" + strings.TrimLeft(key, "/")
}

func (b *GCSBucket) Close() error {
	return b.client.Close()
}
