// Package thumbnail renders preview thumbnails for publications and stores
// them as JPEGs in a simplepublish.BlobStore.
package thumbnail

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/png"
	"log/slog"
	"path"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
	"github.com/tendant/simple-publish/pkg/simplepublish"
	"github.com/tendant/simple-publish/pkg/simplepublish/rules"
	ffmpeg "github.com/u2takey/ffmpeg-go"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

const (
	defaultWidth   = 400
	defaultQuality = 80
)

// FrameFunc returns one encoded frame of a video at the given offset.
type FrameFunc func(ctx context.Context, path string, atSeconds float64) ([]byte, error)

// Generator implements simplepublish.ThumbnailGenerator.
type Generator struct {
	store   simplepublish.BlobStore
	frame   FrameFunc
	width   int
	quality int
}

// Option configures a Generator.
type Option func(*Generator)

// WithFrameFunc replaces the ffmpeg frame grab.
func WithFrameFunc(fn FrameFunc) Option {
	return func(g *Generator) {
		g.frame = fn
	}
}

// WithWidth sets the thumbnail width; height follows the source aspect ratio.
func WithWidth(width int) Option {
	return func(g *Generator) {
		if width > 0 {
			g.width = width
		}
	}
}

// WithQuality sets the JPEG quality (1-100).
func WithQuality(quality int) Option {
	return func(g *Generator) {
		if quality > 0 && quality <= 100 {
			g.quality = quality
		}
	}
}

// New creates a generator writing into store.
func New(store simplepublish.BlobStore, opts ...Option) *Generator {
	g := &Generator{
		store:   store,
		frame:   ExtractFrame,
		width:   defaultWidth,
		quality: defaultQuality,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// ObjectKey is where a thumbnail variant of a publication is stored.
func ObjectKey(req simplepublish.ThumbnailRequest) string {
	return path.Join("publications", req.PublicationID.String(), "thumbnails", req.Variant+".jpg")
}

func (g *Generator) GenerateThumbnail(ctx context.Context, req simplepublish.ThumbnailRequest) (string, error) {
	if req.SourcePath == "" {
		return "", errors.New("thumbnail source path is empty")
	}
	if req.Variant == "" {
		req.Variant = "main"
	}

	src, err := g.decode(ctx, req)
	if err != nil {
		return "", err
	}

	thumb := imaging.Resize(src, g.width, 0, imaging.Lanczos)
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, thumb, imaging.JPEG, imaging.JPEGQuality(g.quality)); err != nil {
		return "", errors.Wrap(err, "encode thumbnail")
	}

	key := ObjectKey(req)
	if err := g.store.UploadWithParams(ctx, &buf, simplepublish.UploadParams{
		ObjectKey: key,
		MimeType:  "image/jpeg",
	}); err != nil {
		g.discard(ctx, key)
		return "", errors.Wrapf(err, "store thumbnail %s", key)
	}

	url, err := g.store.GetPreviewURL(ctx, key)
	if err != nil {
		g.discard(ctx, key)
		return "", errors.Wrapf(err, "preview url for %s", key)
	}
	slog.Debug("Thumbnail generated", "publication_id", req.PublicationID, "variant", req.Variant, "key", key)
	return url, nil
}

// discard removes a thumbnail that no preview will reference.
func (g *Generator) discard(ctx context.Context, key string) {
	if err := g.store.Delete(ctx, key); err != nil && !errors.Is(err, simplepublish.ErrObjectNotFound) {
		slog.Warn("Failed to remove orphaned thumbnail", "key", key, "error", err)
	}
}

func (g *Generator) decode(ctx context.Context, req simplepublish.ThumbnailRequest) (image.Image, error) {
	if req.Media.Kind != rules.MediaVideo {
		img, err := imaging.Open(req.SourcePath, imaging.AutoOrientation(true))
		if err != nil {
			return nil, errors.Wrapf(err, "open image %s", req.SourcePath)
		}
		return img, nil
	}

	at := req.AtSeconds
	if at < 0 || (req.Media.DurationSeconds > 0 && at >= req.Media.DurationSeconds) {
		at = 0
	}
	frame, err := g.frame(ctx, req.SourcePath, at)
	if err != nil {
		return nil, errors.Wrapf(err, "extract frame at %.2fs from %s", at, req.SourcePath)
	}
	img, err := imaging.Decode(bytes.NewReader(frame))
	if err != nil {
		return nil, errors.Wrap(err, "decode extracted frame")
	}
	return img, nil
}

// ExtractFrame grabs a single MJPEG frame with ffmpeg.
func ExtractFrame(ctx context.Context, path string, atSeconds float64) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	buf := bytes.NewBuffer(nil)
	err := ffmpeg.Input(path, ffmpeg.KwArgs{"ss": fmt.Sprintf("%.3f", atSeconds)}).
		Output("pipe:", ffmpeg.KwArgs{"vframes": 1, "format": "image2", "vcodec": "mjpeg"}).
		WithOutput(buf).
		Run()
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if buf.Len() == 0 {
		return nil, errors.New("ffmpeg produced no frame")
	}
	return buf.Bytes(), nil
}
