package memory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/tendant/simple-publish/pkg/simplepublish"
)

// Backend keeps thumbnails in process memory. Preview URLs are prefix/preview/key
// when a URL prefix is set, and memory://key otherwise.
type Backend struct {
	mu        sync.RWMutex
	objects   map[string]object
	urlPrefix string
}

// Option configures a Backend
type Option func(*Backend)

// WithURLPrefix sets the base URL the server exposes the store under.
func WithURLPrefix(prefix string) Option {
	return func(b *Backend) {
		b.urlPrefix = strings.TrimRight(prefix, "/")
	}
}

type object struct {
	data        []byte
	contentType string
	updatedAt   time.Time
}

// New creates a new in-memory storage backend
func New(opts ...Option) *Backend {
	b := &Backend{objects: make(map[string]object)}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Backend) GetObjectMeta(ctx context.Context, objectKey string) (*simplepublish.ObjectMeta, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	obj, ok := b.objects[objectKey]
	if !ok {
		return nil, fmt.Errorf("%w: %s", simplepublish.ErrObjectNotFound, objectKey)
	}
	return &simplepublish.ObjectMeta{
		Key:         objectKey,
		Size:        int64(len(obj.data)),
		ContentType: obj.contentType,
		UpdatedAt:   obj.updatedAt,
		Metadata:    map[string]string{"mime_type": obj.contentType},
	}, nil
}

func (b *Backend) Upload(ctx context.Context, objectKey string, reader io.Reader) error {
	return b.UploadWithParams(ctx, reader, simplepublish.UploadParams{ObjectKey: objectKey})
}

// UploadWithParams stores the object, keeping the previous MIME type when none is given.
func (b *Backend) UploadWithParams(ctx context.Context, reader io.Reader, params simplepublish.UploadParams) error {
	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	contentType := params.MimeType
	if contentType == "" {
		contentType = "application/octet-stream"
		if prev, ok := b.objects[params.ObjectKey]; ok {
			contentType = prev.contentType
		}
	}
	b.objects[params.ObjectKey] = object{data: data, contentType: contentType, updatedAt: time.Now().UTC()}
	return nil
}

func (b *Backend) GetPreviewURL(ctx context.Context, objectKey string) (string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if _, ok := b.objects[objectKey]; !ok {
		return "", fmt.Errorf("%w: %s", simplepublish.ErrObjectNotFound, objectKey)
	}
	if b.urlPrefix != "" {
		return fmt.Sprintf("%s/preview/%s", b.urlPrefix, objectKey), nil
	}
	return "memory://" + objectKey, nil
}

func (b *Backend) Download(ctx context.Context, objectKey string) (io.ReadCloser, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	obj, ok := b.objects[objectKey]
	if !ok {
		return nil, fmt.Errorf("%w: %s", simplepublish.ErrObjectNotFound, objectKey)
	}
	return io.NopCloser(bytes.NewReader(obj.data)), nil
}

func (b *Backend) Delete(ctx context.Context, objectKey string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.objects[objectKey]; !ok {
		return fmt.Errorf("%w: %s", simplepublish.ErrObjectNotFound, objectKey)
	}
	delete(b.objects, objectKey)
	return nil
}
