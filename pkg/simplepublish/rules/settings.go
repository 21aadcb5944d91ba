package rules

import (
	"math"
	"time"
)

// Keys stamped onto every auto-optimized settings bundle.
const (
	SettingAutoOptimized         = "auto_optimized"
	SettingOptimizationTimestamp = "optimization_timestamp"
)

// BuildSettings returns the platform specific publish settings for a content
// type. The map is freshly allocated and never nil.
func BuildSettings(platform Platform, ctype ContentType, media MediaDescriptor) map[string]any {
	switch platform {
	case Instagram:
		return instagramSettings(ctype, media)
	case Facebook:
		return facebookSettings(ctype)
	case YouTube:
		return youtubeSettings(ctype)
	case TikTok:
		return tiktokSettings()
	case Twitter, LinkedIn:
		return map[string]any{}
	}
	return map[string]any{}
}

// OptimizedSettings is BuildSettings plus the auto-optimization stamps.
func OptimizedSettings(platform Platform, ctype ContentType, media MediaDescriptor, now time.Time) map[string]any {
	settings := BuildSettings(platform, ctype, media)
	settings[SettingAutoOptimized] = true
	settings[SettingOptimizationTimestamp] = now.UTC().Format(time.RFC3339)
	return settings
}

func instagramSettings(ctype ContentType, media MediaDescriptor) map[string]any {
	switch ctype {
	case ContentReel:
		return map[string]any{
			"cover_frame_time": 1,
			"share_to_feed":    true,
			"enable_comments":  true,
		}
	case ContentStory:
		return map[string]any{
			"duration": math.Min(media.DurationSeconds, StoryMaxDuration),
		}
	}
	return map[string]any{}
}

func facebookSettings(ctype ContentType) map[string]any {
	if ctype == ContentReel {
		return map[string]any{
			"enable_comments": true,
			"allow_embedding": true,
		}
	}
	return map[string]any{}
}

func youtubeSettings(ctype ContentType) map[string]any {
	settings := map[string]any{
		"privacy":       "public",
		"category":      "Entertainment",
		"made_for_kids": false,
	}
	if ctype != ContentShort {
		settings["enable_comments"] = true
		settings["enable_ratings"] = true
	}
	return settings
}

func tiktokSettings() map[string]any {
	return map[string]any{
		"allow_comments": true,
		"allow_duet":     true,
		"allow_stitch":   true,
		"privacy_level":  "public",
	}
}
