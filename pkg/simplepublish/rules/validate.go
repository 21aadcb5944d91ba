package rules

import (
	"fmt"
	"strings"
)

// Verdict is the result of checking one media descriptor against one capability entry.
// IsCompatible is always equal to len(Errors) == 0.
type Verdict struct {
	Platform     Platform    `json:"platform"`
	Type         ContentType `json:"type"`
	IsCompatible bool        `json:"is_compatible"`
	Errors       []string    `json:"errors"`
	Warnings     []string    `json:"warnings"`
}

func (v *Verdict) fail(format string, args ...any) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}

func (v *Verdict) warn(format string, args ...any) {
	v.Warnings = append(v.Warnings, fmt.Sprintf(format, args...))
}

// Validate checks media against the capability entry for (platform, media kind, ctype).
// Every hard check runs so the caller sees all violations at once. An incompatible
// result is data, not an error.
func (t *Table) Validate(media MediaDescriptor, platform Platform, ctype ContentType) Verdict {
	v := Verdict{
		Platform: platform,
		Type:     ctype,
		Errors:   []string{},
		Warnings: []string{},
	}

	c, err := t.Lookup(platform, media.Kind, ctype)
	if err != nil {
		v.Errors = append(v.Errors, err.Error())
		return v
	}

	if media.Format != "" && len(c.Formats) > 0 && !contains(c.Formats, NormalizeFormat(media.Format)) {
		v.fail("format %q is not accepted (allowed: %s)", media.Format, strings.Join(c.Formats, ", "))
	}

	if media.SizeBytes > c.MaxSizeBytes {
		v.fail("file size %s exceeds the %s size limit", formatBytes(media.SizeBytes), formatBytes(c.MaxSizeBytes))
	}

	if media.IsVideo() {
		switch {
		case media.DurationSeconds < c.MinDurationSeconds:
			v.fail("duration %s is below the %s minimum", formatSeconds(media.DurationSeconds), formatSeconds(c.MinDurationSeconds))
		case c.MaxDurationSeconds > 0 && media.DurationSeconds > c.MaxDurationSeconds:
			v.fail("duration %s exceeds the %s maximum", formatSeconds(media.DurationSeconds), formatSeconds(c.MaxDurationSeconds))
		}
	}

	if b := c.Resolution; b != nil {
		if media.Width < b.MinWidth || media.Height < b.MinHeight {
			v.fail("resolution %dx%d is below the minimum %dx%d", media.Width, media.Height, b.MinWidth, b.MinHeight)
		}
		if (b.MaxWidth > 0 && media.Width > b.MaxWidth) || (b.MaxHeight > 0 && media.Height > b.MaxHeight) {
			v.fail("resolution %dx%d exceeds the maximum %dx%d", media.Width, media.Height, b.MaxWidth, b.MaxHeight)
		}
	}

	ratio := media.ratio()
	switch {
	case c.AspectRatio != "":
		if ratio != c.AspectRatio {
			v.warn("aspect ratio %s differs from the required %s; the platform may crop or pad the media", ratio, c.AspectRatio)
		}
	case len(c.AspectRatios) > 0:
		accepted := contains(c.AspectRatios, ratio)
		switch {
		case !accepted && c.RecommendedAspectRatio != "":
			v.warn("aspect ratio %s is not among the accepted ratios (%s); %s is recommended", ratio, strings.Join(c.AspectRatios, ", "), c.RecommendedAspectRatio)
		case !accepted:
			v.warn("aspect ratio %s is not among the accepted ratios (%s)", ratio, strings.Join(c.AspectRatios, ", "))
		case c.RecommendedAspectRatio != "" && ratio != c.RecommendedAspectRatio:
			v.warn("aspect ratio %s is accepted but %s is recommended", ratio, c.RecommendedAspectRatio)
		}
	}

	v.IsCompatible = len(v.Errors) == 0
	return v
}

// PlatformResult holds the verdict for every content type a platform offers for the media.
type PlatformResult struct {
	Platform       Platform                `json:"platform"`
	AvailableTypes []ContentType           `json:"available_types"`
	Verdicts       map[ContentType]Verdict `json:"verdicts"`
}

// CompatibleTypes returns the available types whose verdict passed, in offer order.
func (r PlatformResult) CompatibleTypes() []ContentType {
	var out []ContentType
	for _, ct := range r.AvailableTypes {
		if r.Verdicts[ct].IsCompatible {
			out = append(out, ct)
		}
	}
	return out
}

// PublicationValidation is the result of validating one asset for a set of platforms.
type PublicationValidation struct {
	// DetectedType is a display hint derived from the first platform only.
	// Per-platform type selection never reads it.
	DetectedType ContentType      `json:"detected_type"`
	Results      []PlatformResult `json:"results"`
	Warnings     []string         `json:"warnings"`
}

// Result returns the entry for a platform.
func (pv *PublicationValidation) Result(platform Platform) (PlatformResult, bool) {
	for _, r := range pv.Results {
		if r.Platform == platform {
			return r, true
		}
	}
	return PlatformResult{}, false
}

// ValidatePublication validates media for every content type of every platform.
// Platforms are deduplicated, keeping first-seen order. It fails only on an
// unknown platform or a structurally invalid descriptor.
func (t *Table) ValidatePublication(media MediaDescriptor, platforms []Platform) (*PublicationValidation, error) {
	if err := media.Check(); err != nil {
		return nil, err
	}

	pv := &PublicationValidation{
		Results:  []PlatformResult{},
		Warnings: []string{},
	}

	seen := make(map[Platform]bool, len(platforms))
	for _, p := range platforms {
		if !p.IsValid() {
			return nil, fmt.Errorf("%w: %q", ErrUnknownPlatform, p)
		}
		if seen[p] {
			continue
		}
		seen[p] = true

		result := PlatformResult{
			Platform:       p,
			AvailableTypes: t.AvailableTypes(p, media.Kind),
			Verdicts:       make(map[ContentType]Verdict),
		}
		for _, ct := range result.AvailableTypes {
			result.Verdicts[ct] = t.Validate(media, p, ct)
		}
		pv.Results = append(pv.Results, result)

		switch {
		case len(result.AvailableTypes) == 0:
			pv.Warnings = append(pv.Warnings, fmt.Sprintf("%s does not accept %s posts", p, media.Kind))
		case len(result.CompatibleTypes()) == 0:
			pv.Warnings = append(pv.Warnings, fmt.Sprintf("the media does not meet the requirements of any %s content type", p))
		}
	}

	if len(pv.Results) > 0 {
		pv.DetectedType = t.OptimalType(pv.Results[0].Platform, media)
	}

	return pv, nil
}
