package rules

import (
	"fmt"
	"strings"
)

// Recommendations returns advisory hints when the current content type is a
// poor fit for the media. Only Instagram, YouTube and Facebook videos have rules.
func Recommendations(platform Platform, current ContentType, media MediaDescriptor) []string {
	out := []string{}
	if !media.IsVideo() {
		return out
	}

	ratio := media.ratio()
	vertical := ratio == "9:16"
	d := media.DurationSeconds

	switch platform {
	case Instagram:
		if vertical && d <= ReelMaxDuration && current != ContentReel {
			out = append(out, "This vertical video is under 90 seconds; publishing it as a Reel reaches more viewers")
		}
		if current == ContentReel && !vertical {
			out = append(out, fmt.Sprintf("Reels are shown full screen in 9:16; this %s video will be cropped", ratio))
		}
		if current == ContentStory && d > StoryMaxDuration {
			out = append(out, "Stories longer than 15 seconds are split into 15 second segments")
		}
		if current == ContentFeed && d > 60 {
			out = append(out, "Feed videos are limited to 60 seconds; trim the video or publish it as a Reel")
		}
	case YouTube:
		if vertical && d <= ShortMaxDuration && current != ContentShort {
			out = append(out, "This vertical video is 60 seconds or shorter and qualifies as a YouTube Short")
		}
		if current == ContentShort && d > ShortMaxDuration {
			out = append(out, "Shorts must be 60 seconds or shorter; publish as a standard video instead")
		}
		if current == ContentShort && !vertical {
			out = append(out, "Shorts must be vertical (9:16); publish as a standard video instead")
		}
		if current == ContentStandard && ratio != "16:9" && !vertical {
			out = append(out, fmt.Sprintf("Standard videos display best in 16:9; this %s video will be letterboxed", ratio))
		}
	case Facebook:
		if vertical && d <= ReelMaxDuration && current != ContentReel {
			out = append(out, "Vertical videos under 90 seconds perform better as Facebook Reels")
		}
		if current == ContentReel && !vertical {
			out = append(out, "Facebook Reels require vertical 9:16 video")
		}
	}
	return out
}

// OptimizationSuggestions computes publication-wide hints from the media and the
// set of requested platforms.
func (t *Table) OptimizationSuggestions(media MediaDescriptor, platforms []Platform) []string {
	out := []string{}
	requested := make(map[Platform]bool, len(platforms))
	for _, p := range platforms {
		requested[p] = true
	}

	var unsupported []string
	for _, p := range Platforms {
		if requested[p] && len(t.types[kindKey{p, media.Kind}]) == 0 {
			unsupported = append(unsupported, string(p))
		}
	}
	if len(unsupported) > 0 {
		out = append(out, fmt.Sprintf("%s posts cannot be published to %s; attach a different asset for those accounts",
			capitalize(string(media.Kind)), strings.Join(unsupported, ", ")))
	}

	if !media.IsVideo() {
		if requested[Instagram] && media.Width < 1080 {
			out = append(out, "Instagram displays images at 1080px wide; smaller images are upscaled and may look soft")
		}
		return out
	}

	ratio := media.ratio()
	d := media.DurationSeconds

	if ratio == "9:16" && d <= ShortMaxDuration {
		var shortForm []string
		for _, p := range []Platform{Instagram, Facebook, YouTube, TikTok} {
			if requested[p] {
				shortForm = append(shortForm, string(p))
			}
		}
		if len(shortForm) > 0 {
			out = append(out, fmt.Sprintf("Vertical video under 60 seconds suits short-form formats on %s", strings.Join(shortForm, ", ")))
		}
	}
	if ratio != "9:16" && requested[TikTok] {
		out = append(out, "TikTok favours vertical 9:16 video; consider a vertical edit for TikTok")
	}
	if d > ShortMaxDuration && requested[YouTube] {
		out = append(out, "Videos over 60 seconds publish to YouTube as standard videos rather than Shorts")
	}
	if d > ReelMaxDuration && (requested[Instagram] || requested[Facebook]) {
		out = append(out, "Videos over 90 seconds cannot be published as Reels")
	}
	if min(media.Width, media.Height) < 720 {
		out = append(out, "Resolution below 720p may look soft on most platforms; 1080p is recommended")
	}
	if media.SizeBytes > 100*mebibyte {
		out = append(out, fmt.Sprintf("Large file (%s); compressing before publishing shortens upload time", formatBytes(media.SizeBytes)))
	}
	return out
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
