package upload

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memBucket struct {
	objects map[string][]byte
	types   map[string]string
	fail    error
}

func newMemBucket() *memBucket {
	return &memBucket{objects: map[string][]byte{}, types: map[string]string{}}
}

func (b *memBucket) Put(_ context.Context, key, contentType string, body io.Reader) error {
	if b.fail != nil {
		return b.fail
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	b.objects[key] = data
	b.types[key] = contentType
	return nil
}

func (b *memBucket) URL(key string) string {
	return "https://cdn.test/" + key
}

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

func fixedService(b Bucket, max int64) *Service {
	s := NewService(b, max)
	s.now = func() time.Time { return time.UnixMilli(1700000000123) }
	return s
}

func TestUploadDefaultFolder(t *testing.T) {
	b := newMemBucket()
	res, err := fixedService(b, 1<<20).Upload(context.Background(), File{
		Name:        "my photo.png",
		ContentType: "image/png",
		Size:        int64(len(pngHeader)),
		Body:        bytes.NewReader(pngHeader),
	}, "")
	require.NoError(t, err)

	assert.Equal(t, "work-life/1700000000123-my_photo.png", res.Key)
	assert.Equal(t, "https://cdn.test/work-life/1700000000123-my_photo.png", res.URL)
	assert.Equal(t, "my_photo.png", res.Filename)
	assert.Equal(t, pngHeader, b.objects[res.Key])
	assert.Equal(t, "image/png", b.types[res.Key])
}

func TestUploadSniffsMissingType(t *testing.T) {
	b := newMemBucket()
	res, err := fixedService(b, 0).Upload(context.Background(), File{
		Name: `C:\Users\ann\gallery.png`,
		Size: -1,
		Body: bytes.NewReader(pngHeader),
	}, "gallery/../2026")
	require.NoError(t, err)
	assert.Equal(t, "gallery/2026/1700000000123-gallery.png", res.Key)
	assert.Equal(t, "image/png", b.types[res.Key])
}

func TestUploadRejectsNonImages(t *testing.T) {
	b := newMemBucket()
	_, err := fixedService(b, 0).Upload(context.Background(), File{
		Name:        "notes.txt",
		ContentType: "text/plain; charset=utf-8",
		Size:        5,
		Body:        strings.NewReader("hello"),
	}, "")
	assert.ErrorIs(t, err, ErrUnsupportedType)
	assert.Empty(t, b.objects)
}

func TestUploadRejectsLargeFiles(t *testing.T) {
	b := newMemBucket()
	s := fixedService(b, 8)

	_, err := s.Upload(context.Background(), File{
		Name: "big.png", ContentType: "image/png", Size: 100, Body: bytes.NewReader(pngHeader),
	}, "")
	assert.ErrorIs(t, err, ErrTooLarge)

	// declared size lies
	_, err = s.Upload(context.Background(), File{
		Name: "big.png", ContentType: "image/png", Size: -1, Body: bytes.NewReader(pngHeader),
	}, "")
	assert.ErrorIs(t, err, ErrTooLarge)
	assert.Empty(t, b.objects)
}

func TestUploadBucketFailure(t *testing.T) {
	b := newMemBucket()
	b.fail = errors.New("quota exceeded")
	_, err := fixedService(b, 0).Upload(context.Background(), File{
		Name: "a.png", ContentType: "image/png", Size: 3, Body: bytes.NewReader(pngHeader),
	}, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quota exceeded")
}

func TestDirBucket(t *testing.T) {
	root := t.TempDir()
	b, err := NewDirBucket(root, "/uploads/")
	require.NoError(t, err)

	res, err := fixedService(b, 1<<10).Upload(context.Background(), File{
		Name: "card.png", ContentType: "image/png", Size: int64(len(pngHeader)), Body: bytes.NewReader(pngHeader),
	}, "work-life")
	require.NoError(t, err)
	assert.Equal(t, "/uploads/work-life/1700000000123-card.png", res.URL)

	data, err := os.ReadFile(filepath.Join(root, "work-life", "1700000000123-card.png"))
	require.NoError(t, err)
	assert.Equal(t, pngHeader, data)

	assert.Error(t, b.Put(context.Background(), "../escape.png", "image/png", bytes.NewReader(pngHeader)))
}
