package upload

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// DirBucket keeps objects on the local disk; the server exposes them
// under baseURL (e.g. /uploads).
type DirBucket struct {
	root    string
	baseURL string
}

func NewDirBucket(root, baseURL string) (*DirBucket, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("upload dir: %w", err)
	}
	return &DirBucket{root: root, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

func (b *DirBucket) Put(ctx context.Context, key, contentType string, body io.Reader) (err error) {
	dst := filepath.Join(b.root, filepath.FromSlash(key))
	if !strings.HasPrefix(dst, filepath.Clean(b.root)+string(filepath.Separator)) {
		return fmt.Errorf("invalid key %q", key)
	}
	if err = os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".upload-*")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	if _, err = io.Copy(tmp, &ctxReader{ctx: ctx, r: body}); err != nil {
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), dst)
}

func (b *DirBucket) URL(key string) string {
	return b.baseURL + "/" + strings.TrimLeft(key, "/")
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
