// Package probe turns media files into rules.MediaDescriptor values. Videos are
// inspected with ffprobe, images by decoding their header only.
package probe

import (
	"context"
	"encoding/json"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/tendant/simple-publish/pkg/simplepublish/rules"
	ffmpeg "github.com/u2takey/ffmpeg-go"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

var imageExtensions = map[string]bool{
	"jpg": true, "jpeg": true, "png": true, "gif": true, "webp": true, "bmp": true,
}

// ProbeFunc runs ffprobe on a file and returns its JSON report.
type ProbeFunc func(path string) (string, error)

// Analyzer implements simplepublish.MediaAnalyzer for local files.
type Analyzer struct {
	probe ProbeFunc
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithProbeFunc replaces the ffprobe invocation.
func WithProbeFunc(fn ProbeFunc) Option {
	return func(a *Analyzer) {
		a.probe = fn
	}
}

// New creates an analyzer that shells out to ffprobe for videos.
func New(opts ...Option) *Analyzer {
	a := &Analyzer{
		probe: func(path string) (string, error) { return ffmpeg.Probe(path) },
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// IsImage reports whether the path has a still-image extension.
func IsImage(path string) bool {
	return imageExtensions[extension(path)]
}

func extension(path string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
}

func (a *Analyzer) Analyze(ctx context.Context, path string) (rules.MediaDescriptor, error) {
	if err := ctx.Err(); err != nil {
		return rules.MediaDescriptor{}, err
	}

	info, err := os.Stat(path)
	if err != nil {
		return rules.MediaDescriptor{}, errors.Wrapf(err, "stat %s", path)
	}
	if info.IsDir() {
		return rules.MediaDescriptor{}, errors.Errorf("%s is a directory", path)
	}

	if IsImage(path) {
		return analyzeImage(path, info.Size())
	}
	return a.analyzeVideo(path, info.Size())
}

func analyzeImage(path string, size int64) (rules.MediaDescriptor, error) {
	f, err := os.Open(path)
	if err != nil {
		return rules.MediaDescriptor{}, errors.WithStack(err)
	}
	defer f.Close()

	cfg, format, err := image.DecodeConfig(f)
	if err != nil {
		return rules.MediaDescriptor{}, errors.Wrapf(err, "decode image header %s", path)
	}
	return rules.NewMediaDescriptor(rules.MediaImage, cfg.Width, cfg.Height, 0, size, format), nil
}

type ffprobeReport struct {
	Streams []ffprobeStream `json:"streams"`
	Format  struct {
		Duration   string `json:"duration"`
		FormatName string `json:"format_name"`
	} `json:"format"`
}

type ffprobeStream struct {
	CodecType  string            `json:"codec_type"`
	Width      int               `json:"width"`
	Height     int               `json:"height"`
	Duration   string            `json:"duration"`
	NbFrames   string            `json:"nb_frames"`
	RFrameRate string            `json:"r_frame_rate"`
	Tags       map[string]string `json:"tags"`
	SideData   []struct {
		Rotation float64 `json:"rotation"`
	} `json:"side_data_list"`
}

func (a *Analyzer) analyzeVideo(path string, size int64) (rules.MediaDescriptor, error) {
	out, err := a.probe(path)
	if err != nil {
		return rules.MediaDescriptor{}, errors.Wrapf(err, "ffprobe %s", path)
	}
	return ParseProbe(out, size, extension(path))
}

// ParseProbe builds a video descriptor from an ffprobe JSON report. Rotated
// streams report display dimensions.
func ParseProbe(report string, size int64, format string) (rules.MediaDescriptor, error) {
	var data ffprobeReport
	if err := json.Unmarshal([]byte(report), &data); err != nil {
		return rules.MediaDescriptor{}, errors.WithStack(err)
	}

	var video *ffprobeStream
	for i := range data.Streams {
		if data.Streams[i].CodecType == "video" {
			video = &data.Streams[i]
			break
		}
	}
	if video == nil {
		return rules.MediaDescriptor{}, errors.New("no video stream found")
	}

	duration := parseSeconds(video.Duration)
	if duration == 0 {
		duration = parseSeconds(data.Format.Duration)
	}
	if duration == 0 {
		frames := parseSeconds(video.NbFrames)
		if rate := frameRate(video.RFrameRate); frames > 0 && rate > 0 {
			duration = frames / rate
		}
	}
	if duration == 0 {
		return rules.MediaDescriptor{}, errors.New("could not determine video duration")
	}

	width, height := video.Width, video.Height
	if rotated(video) {
		width, height = height, width
	}
	if format == "" {
		format, _, _ = strings.Cut(data.Format.FormatName, ",")
	}

	return rules.NewMediaDescriptor(rules.MediaVideo, width, height, duration, size, format), nil
}

func rotated(s *ffprobeStream) bool {
	deg := 0.0
	if r, ok := s.Tags["rotate"]; ok {
		deg, _ = strconv.ParseFloat(r, 64)
	}
	for _, sd := range s.SideData {
		if sd.Rotation != 0 {
			deg = sd.Rotation
		}
	}
	quarter := int(deg) / 90
	return quarter%2 != 0
}

func parseSeconds(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || v < 0 {
		return 0
	}
	return v
}

func frameRate(s string) float64 {
	num, den, ok := strings.Cut(s, "/")
	if !ok {
		return parseSeconds(s)
	}
	n, d := parseSeconds(num), parseSeconds(den)
	if d == 0 {
		return 0
	}
	return n / d
}
