package rules

// Thresholds used by the type selection heuristics, in seconds.
const (
	ReelMaxDuration  = 90
	StoryMaxDuration = 15
	ShortMaxDuration = 60
)

// DetermineOptimalType picks the best content type for a video on a platform.
// Rules are evaluated top to bottom and the first match wins, so short-form
// types are checked before generic ones: a 10s vertical clip on Instagram is a
// reel, not a story. An empty aspectRatio is derived from width and height.
func DetermineOptimalType(platform Platform, aspectRatio string, durationSeconds float64, width, height int) ContentType {
	if aspectRatio == "" {
		aspectRatio = NearestAspectRatio(width, height)
	}
	vertical := aspectRatio == "9:16"

	switch platform {
	case Instagram, Facebook:
		if vertical && durationSeconds <= ReelMaxDuration {
			return ContentReel
		}
		if durationSeconds <= StoryMaxDuration {
			return ContentStory
		}
		return ContentFeed
	case YouTube:
		if vertical && durationSeconds <= ShortMaxDuration {
			return ContentShort
		}
		return ContentStandard
	case TikTok:
		return ContentVideo
	case Twitter:
		return ContentTweet
	case LinkedIn:
		return ContentPost
	}
	return ContentStandard
}

// OptimalType returns the preferred content type for the media on a platform.
// Images use the platform's first declared image type. Videos use
// DetermineOptimalType. The result may be absent from AvailableTypes; callers
// that assign it must check availability first.
func (t *Table) OptimalType(platform Platform, media MediaDescriptor) ContentType {
	if !media.IsVideo() {
		types := t.types[kindKey{platform, media.Kind}]
		if len(types) == 0 {
			return ""
		}
		return types[0]
	}
	return DetermineOptimalType(platform, media.ratio(), media.DurationSeconds, media.Width, media.Height)
}

// DefaultType returns the optimal type when the platform offers it, otherwise
// the first available type, otherwise "".
func (t *Table) DefaultType(platform Platform, media MediaDescriptor) ContentType {
	optimal := t.OptimalType(platform, media)
	if t.Supports(platform, media.Kind, optimal) {
		return optimal
	}
	types := t.types[kindKey{platform, media.Kind}]
	if len(types) == 0 {
		return ""
	}
	return types[0]
}
