package rules

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownPlatform is returned when a platform identifier is not one of Platforms.
var ErrUnknownPlatform = errors.New("unknown platform")

// Platform identifies a social network the engine can target.
type Platform string

const (
	Instagram Platform = "instagram"
	Facebook  Platform = "facebook"
	YouTube   Platform = "youtube"
	TikTok    Platform = "tiktok"
	Twitter   Platform = "twitter"
	LinkedIn  Platform = "linkedin"
)

// Platforms lists every supported platform. Adding a platform means adding it
// here, to the capability table and to the switches in selector.go and settings.go;
// TestPlatformCoverage fails until all of them agree.
var Platforms = []Platform{Instagram, Facebook, YouTube, TikTok, Twitter, LinkedIn}

// IsValid reports whether p is one of Platforms.
func (p Platform) IsValid() bool {
	for _, known := range Platforms {
		if p == known {
			return true
		}
	}
	return false
}

func (p Platform) String() string { return string(p) }

// ParsePlatform converts a user supplied identifier into a Platform.
func ParsePlatform(s string) (Platform, error) {
	p := Platform(strings.ToLower(strings.TrimSpace(s)))
	if !p.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownPlatform, s)
	}
	return p, nil
}

// MediaKind is the coarse type of an asset.
type MediaKind string

const (
	MediaImage MediaKind = "image"
	MediaVideo MediaKind = "video"
)

// MediaKinds lists every media kind the capability table must declare per platform.
var MediaKinds = []MediaKind{MediaImage, MediaVideo}

func (k MediaKind) IsValid() bool {
	return k == MediaImage || k == MediaVideo
}

// ContentType is a platform-specific publish format.
type ContentType string

const (
	ContentFeed     ContentType = "feed"
	ContentReel     ContentType = "reel"
	ContentStory    ContentType = "story"
	ContentShort    ContentType = "short"
	ContentStandard ContentType = "standard"
	ContentVideo    ContentType = "video"
	ContentTweet    ContentType = "tweet"
	ContentPost     ContentType = "post"
)
