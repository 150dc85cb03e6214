// Package upload stores user and admin images in object storage and hands
// back their public URLs.
package upload

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path"
	"regexp"
	"strings"
	"time"
)

const DefaultFolder = "work-life"

var (
	ErrUnsupportedType = errors.New("only image files can be uploaded")
	ErrTooLarge        = errors.New("file is too large")
	ErrEmpty           = errors.New("file is empty")
)

var imageTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
	"image/heic": ".heic",
	"image/heif": ".heif",
	"image/avif": ".avif",
}

// Bucket is the object storage the service writes to.
type Bucket interface {
	Put(ctx context.Context, key, contentType string, body io.Reader) error
	URL(key string) string
}

type File struct {
	Name        string
	ContentType string
	// Size is the declared size; -1 if unknown.
	Size int64
	Body io.Reader
}

type Result struct {
	URL      string `json:"url"`
	Key      string `json:"key"`
	Filename string `json:"filename"`
}

type Service struct {
	bucket   Bucket
	maxBytes int64
	now      func() time.Time
}

func NewService(bucket Bucket, maxBytes int64) *Service {
	return &Service{
		bucket:   bucket,
		maxBytes: maxBytes,
		now:      time.Now,
	}
}

// Upload validates f and stores it under {folder}/{unixMillis}-{name}.
// An empty folder means DefaultFolder.
func (s *Service) Upload(ctx context.Context, f File, folder string) (Result, error) {
	if f.Body == nil || f.Size == 0 {
		return Result{}, ErrEmpty
	}
	if s.maxBytes > 0 && f.Size > s.maxBytes {
		return Result{}, fmt.Errorf("%w (max %d bytes)", ErrTooLarge, s.maxBytes)
	}

	body := bufio.NewReaderSize(f.Body, 512)
	contentType, err := detectType(f.ContentType, body)
	if err != nil {
		return Result{}, err
	}

	name := cleanName(f.Name, contentType)
	key := path.Join(cleanFolder(folder), fmt.Sprintf("%d-%s", s.now().UnixMilli(), name))

	var r io.Reader = body
	if s.maxBytes > 0 {
		r = &limitedReader{r: body, left: s.maxBytes}
	}
	if err = s.bucket.Put(ctx, key, contentType, r); err != nil {
		if errors.Is(err, ErrTooLarge) {
			return Result{}, fmt.Errorf("%w (max %d bytes)", ErrTooLarge, s.maxBytes)
		}
		return Result{}, fmt.Errorf("upload %s: %w", key, err)
	}

	return Result{
		URL:      s.bucket.URL(key),
		Key:      key,
		Filename: name,
	}, nil
}

func detectType(declared string, body *bufio.Reader) (string, error) {
	ct := ""
	if declared != "" {
		if mt, _, err := mime.ParseMediaType(declared); err == nil {
			ct = strings.ToLower(mt)
		}
	}
	if ct == "" || ct == "application/octet-stream" {
		head, err := body.Peek(512)
		if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
			return "", err
		}
		if len(head) == 0 {
			return "", ErrEmpty
		}
		ct, _, _ = mime.ParseMediaType(http.DetectContentType(head))
	}
	if _, ok := imageTypes[ct]; !ok {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedType, ct)
	}
	return ct, nil
}

var reUnsafe = regexp.MustCompile(`[^\p{L}\p{N}._-]+`)

func cleanName(name, contentType string) string {
	name = path.Base(strings.ReplaceAll(name, `\`, "/"))
	name = strings.Trim(reUnsafe.ReplaceAllString(name, "_"), "._")
	if name == "" {
		name = "image" + imageTypes[contentType]
	}
	return name
}

func cleanFolder(folder string) string {
	var parts []string
	for _, p := range strings.Split(folder, "/") {
		p = strings.Trim(reUnsafe.ReplaceAllString(p, "_"), "._")
		if p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) == 0 {
		return DefaultFolder
	}
	return path.Join(parts...)
}

// limitedReader fails with ErrTooLarge instead of silently truncating.
type limitedReader struct {
	r    io.Reader
	left int64
}

func (l *limitedReader) Read(p []byte) (int, error) {
	if l.left < 0 {
		return 0, ErrTooLarge
	}
	if int64(len(p)) > l.left+1 {
		p = p[:l.left+1]
	}
	n, err := l.r.Read(p)
	l.left -= int64(n)
	if l.left < 0 {
		return n, ErrTooLarge
	}
	return n, err
}
