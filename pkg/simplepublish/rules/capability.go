package rules

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed capabilities.yaml
var defaultCapabilities []byte

// ResolutionBounds limits the pixel dimensions of a media asset. Zero means unbounded.
type ResolutionBounds struct {
	MinWidth  int `yaml:"min_width" json:"min_width,omitempty"`
	MinHeight int `yaml:"min_height" json:"min_height,omitempty"`
	MaxWidth  int `yaml:"max_width" json:"max_width,omitempty"`
	MaxHeight int `yaml:"max_height" json:"max_height,omitempty"`
}

// Capability is the constraint record for one (platform, media kind, content type) triple.
type Capability struct {
	Platform               Platform          `json:"platform"`
	Kind                   MediaKind         `json:"media_type"`
	Type                   ContentType       `json:"type"`
	Formats                []string          `json:"formats"`
	MaxSizeBytes           int64             `json:"max_size_bytes"`
	MinDurationSeconds     float64           `json:"min_duration_seconds,omitempty"`
	MaxDurationSeconds     float64           `json:"max_duration_seconds,omitempty"`
	AspectRatio            string            `json:"aspect_ratio,omitempty"`
	AspectRatios           []string          `json:"aspect_ratios,omitempty"`
	RecommendedAspectRatio string            `json:"recommended_aspect_ratio,omitempty"`
	Resolution             *ResolutionBounds `json:"resolution,omitempty"`
}

// ErrUnsupportedContentType is wrapped by every ConfigurationError.
var ErrUnsupportedContentType = errors.New("content type not supported for this platform/media type")

// ConfigurationError reports a platform/content type combination with no capability entry.
type ConfigurationError struct {
	Platform Platform
	Kind     MediaKind
	Type     ContentType
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("content type %q is not supported for %s %s media", e.Type, e.Platform, e.Kind)
}

func (e *ConfigurationError) Unwrap() error {
	return ErrUnsupportedContentType
}

type capabilityKey struct {
	platform Platform
	kind     MediaKind
	ctype    ContentType
}

type kindKey struct {
	platform Platform
	kind     MediaKind
}

// Table is the loaded, validated capability table. It is read-only after construction.
type Table struct {
	entries map[capabilityKey]Capability
	types   map[kindKey][]ContentType
}

type rawCapability struct {
	Type                   ContentType       `yaml:"type"`
	Formats                []string          `yaml:"formats"`
	MaxSizeMB              float64           `yaml:"max_size_mb"`
	MinDuration            float64           `yaml:"min_duration"`
	MaxDuration            float64           `yaml:"max_duration"`
	AspectRatio            string            `yaml:"aspect_ratio"`
	AspectRatios           []string          `yaml:"aspect_ratios"`
	RecommendedAspectRatio string            `yaml:"recommended_aspect_ratio"`
	Resolution             *ResolutionBounds `yaml:"resolution"`
}

var loadDefault = sync.OnceValues(func() (*Table, error) {
	return Parse(defaultCapabilities)
})

// Default returns the embedded capability table. It panics if the embedded
// document is invalid, which the package tests rule out.
func Default() *Table {
	t, err := loadDefault()
	if err != nil {
		panic(fmt.Sprintf("rules: embedded capability table: %v", err))
	}
	return t
}

// LoadFile reads and validates a capability table from a YAML file.
func LoadFile(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read capability table: %w", err)
	}
	return Parse(data)
}

// Parse builds a Table from YAML and checks it for completeness: every platform
// must declare every media kind (an empty list marks the kind unsupported).
func Parse(data []byte) (*Table, error) {
	var raw map[Platform]map[MediaKind][]rawCapability
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse capability table: %w", err)
	}

	t := &Table{
		entries: make(map[capabilityKey]Capability),
		types:   make(map[kindKey][]ContentType),
	}

	for platform := range raw {
		if !platform.IsValid() {
			return nil, fmt.Errorf("capability table: %w: %q", ErrUnknownPlatform, platform)
		}
	}

	for _, platform := range Platforms {
		kinds, ok := raw[platform]
		if !ok {
			return nil, fmt.Errorf("capability table: platform %s is missing", platform)
		}
		for kind := range kinds {
			if !kind.IsValid() {
				return nil, fmt.Errorf("capability table: %s: unknown media type %q", platform, kind)
			}
		}
		for _, kind := range MediaKinds {
			entries, ok := kinds[kind]
			if !ok {
				return nil, fmt.Errorf("capability table: %s does not declare %s media", platform, kind)
			}
			key := kindKey{platform, kind}
			t.types[key] = []ContentType{}
			for _, rc := range entries {
				c, err := rc.build(platform, kind)
				if err != nil {
					return nil, err
				}
				ck := capabilityKey{platform, kind, c.Type}
				if _, dup := t.entries[ck]; dup {
					return nil, fmt.Errorf("capability table: %s %s declares %q twice", platform, kind, c.Type)
				}
				t.entries[ck] = c
				t.types[key] = append(t.types[key], c.Type)
			}
		}
	}

	return t, nil
}

func (rc rawCapability) build(platform Platform, kind MediaKind) (Capability, error) {
	where := fmt.Sprintf("capability table: %s %s %q", platform, kind, rc.Type)
	if rc.Type == "" {
		return Capability{}, fmt.Errorf("capability table: %s %s: entry without type", platform, kind)
	}
	if rc.MaxSizeMB <= 0 {
		return Capability{}, fmt.Errorf("%s: max_size_mb must be positive", where)
	}
	if kind == MediaImage && (rc.MinDuration != 0 || rc.MaxDuration != 0) {
		return Capability{}, fmt.Errorf("%s: images cannot declare durations", where)
	}
	if kind == MediaVideo && (rc.MaxDuration <= 0 || rc.MinDuration < 0 || rc.MinDuration > rc.MaxDuration) {
		return Capability{}, fmt.Errorf("%s: invalid duration range [%v, %v]", where, rc.MinDuration, rc.MaxDuration)
	}
	if rc.AspectRatio != "" && len(rc.AspectRatios) > 0 {
		return Capability{}, fmt.Errorf("%s: declare aspect_ratio or aspect_ratios, not both", where)
	}
	for _, r := range append([]string{rc.AspectRatio, rc.RecommendedAspectRatio}, rc.AspectRatios...) {
		if r != "" && !IsCanonicalRatio(r) {
			return Capability{}, fmt.Errorf("%s: unknown aspect ratio %q", where, r)
		}
	}
	if rc.RecommendedAspectRatio != "" && !contains(rc.AspectRatios, rc.RecommendedAspectRatio) {
		return Capability{}, fmt.Errorf("%s: recommended ratio %s is not among aspect_ratios", where, rc.RecommendedAspectRatio)
	}

	formats := make([]string, 0, len(rc.Formats))
	for _, f := range rc.Formats {
		formats = append(formats, NormalizeFormat(f))
	}

	return Capability{
		Platform:               platform,
		Kind:                   kind,
		Type:                   rc.Type,
		Formats:                formats,
		MaxSizeBytes:           int64(rc.MaxSizeMB * mebibyte),
		MinDurationSeconds:     rc.MinDuration,
		MaxDurationSeconds:     rc.MaxDuration,
		AspectRatio:            rc.AspectRatio,
		AspectRatios:           append([]string(nil), rc.AspectRatios...),
		RecommendedAspectRatio: rc.RecommendedAspectRatio,
		Resolution:             rc.Resolution,
	}, nil
}

// Lookup returns the capability entry for the triple.
func (t *Table) Lookup(platform Platform, kind MediaKind, ctype ContentType) (Capability, error) {
	c, ok := t.entries[capabilityKey{platform, kind, ctype}]
	if !ok {
		return Capability{}, &ConfigurationError{Platform: platform, Kind: kind, Type: ctype}
	}
	return c, nil
}

// AvailableTypes returns, in declaration order, the content types a platform
// offers for a media kind. The returned slice is a copy.
func (t *Table) AvailableTypes(platform Platform, kind MediaKind) []ContentType {
	types := t.types[kindKey{platform, kind}]
	out := make([]ContentType, len(types))
	copy(out, types)
	return out
}

// Supports reports whether ctype is offered for the platform and media kind.
func (t *Table) Supports(platform Platform, kind MediaKind, ctype ContentType) bool {
	_, ok := t.entries[capabilityKey{platform, kind, ctype}]
	return ok
}

// Capabilities lists every entry for a platform, images first, in declaration order.
func (t *Table) Capabilities(platform Platform) []Capability {
	var out []Capability
	for _, kind := range MediaKinds {
		for _, ct := range t.types[kindKey{platform, kind}] {
			out = append(out, t.entries[capabilityKey{platform, kind, ct}])
		}
	}
	return out
}

// All lists every entry grouped by platform in Platforms order.
func (t *Table) All() map[Platform][]Capability {
	out := make(map[Platform][]Capability, len(Platforms))
	for _, p := range Platforms {
		out[p] = t.Capabilities(p)
	}
	return out
}

func contains[T comparable](list []T, v T) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
