package rules

import (
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"strconv"
	"strings"
)

// ErrInvalidMedia is returned for descriptors that cannot be evaluated at all.
var ErrInvalidMedia = errors.New("invalid media descriptor")

// MediaDescriptor is the normalized, immutable description of one asset.
type MediaDescriptor struct {
	Kind            MediaKind `json:"type"`
	DurationSeconds float64   `json:"duration_seconds,omitempty"`
	Width           int       `json:"width"`
	Height          int       `json:"height"`
	AspectRatio     string    `json:"aspect_ratio"`
	SizeBytes       int64     `json:"size_bytes"`
	Format          string    `json:"format,omitempty"`
}

// NewMediaDescriptor builds a descriptor and derives its aspect ratio label.
// Duration is dropped for images.
func NewMediaDescriptor(kind MediaKind, width, height int, durationSeconds float64, sizeBytes int64, format string) MediaDescriptor {
	if kind != MediaVideo {
		durationSeconds = 0
	}
	return MediaDescriptor{
		Kind:            kind,
		DurationSeconds: durationSeconds,
		Width:           width,
		Height:          height,
		AspectRatio:     NearestAspectRatio(width, height),
		SizeBytes:       sizeBytes,
		Format:          NormalizeFormat(format),
	}
}

// IsVideo reports whether the descriptor is a video.
func (m MediaDescriptor) IsVideo() bool { return m.Kind == MediaVideo }

// Check reports structural problems that make evaluation meaningless.
func (m MediaDescriptor) Check() error {
	if !m.Kind.IsValid() {
		return fmt.Errorf("%w: unknown media type %q", ErrInvalidMedia, m.Kind)
	}
	if m.Width <= 0 || m.Height <= 0 {
		return fmt.Errorf("%w: dimensions %dx%d", ErrInvalidMedia, m.Width, m.Height)
	}
	if m.SizeBytes < 0 || m.DurationSeconds < 0 {
		return fmt.Errorf("%w: negative size or duration", ErrInvalidMedia)
	}
	return nil
}

// ratio returns the label, falling back to the nearest canonical ratio when unset.
func (m MediaDescriptor) ratio() string {
	if m.AspectRatio != "" {
		return m.AspectRatio
	}
	return NearestAspectRatio(m.Width, m.Height)
}

type canonicalRatio struct {
	label string
	value float64
}

// canonicalRatios is the fixed label set media is snapped to. Order breaks ties.
var canonicalRatios = []canonicalRatio{
	{"9:16", 9.0 / 16.0},
	{"16:9", 16.0 / 9.0},
	{"1:1", 1},
	{"4:5", 4.0 / 5.0},
	{"4:3", 4.0 / 3.0},
	{"3:4", 3.0 / 4.0},
	{"2:3", 2.0 / 3.0},
	{"3:2", 3.0 / 2.0},
	{"1.91:1", 1.91},
	{"21:9", 21.0 / 9.0},
}

// NearestAspectRatio snaps width/height to the closest canonical ratio label.
// Distance is measured in log space so 2:1 and 1:2 are equally far from 1:1.
func NearestAspectRatio(width, height int) string {
	if width <= 0 || height <= 0 {
		return ""
	}
	r := math.Log(float64(width) / float64(height))
	best := canonicalRatios[0].label
	bestDist := math.Inf(1)
	for _, c := range canonicalRatios {
		d := math.Abs(r - math.Log(c.value))
		if d < bestDist {
			best, bestDist = c.label, d
		}
	}
	return best
}

// IsCanonicalRatio reports whether label is in the canonical set.
func IsCanonicalRatio(label string) bool {
	for _, c := range canonicalRatios {
		if c.label == label {
			return true
		}
	}
	return false
}

// NormalizeFormat lowercases an extension or file name down to its bare extension.
func NormalizeFormat(format string) string {
	format = strings.ToLower(strings.TrimSpace(format))
	if ext := filepath.Ext(format); ext != "" {
		format = ext
	}
	return strings.TrimPrefix(format, ".")
}

const mebibyte = 1024 * 1024

func formatBytes(n int64) string {
	return fmt.Sprintf("%.1f MB", float64(n)/mebibyte)
}

func formatSeconds(s float64) string {
	return strconv.FormatFloat(s, 'f', -1, 64) + "s"
}
