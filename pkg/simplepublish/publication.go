package simplepublish

import (
	"maps"
	"time"
)

// MergeAccountSettings replaces the stored plan for a single account. Entries
// for other accounts are never touched.
func (p *Publication) MergeAccountSettings(accountID int64, patch AccountSettings) {
	if p.PlatformSettings == nil {
		p.PlatformSettings = make(map[int64]AccountSettings)
	}
	if patch.UpdatedAt.IsZero() {
		patch.UpdatedAt = time.Now().UTC()
	}
	patch.Settings = cloneSettings(patch.Settings)
	p.PlatformSettings[accountID] = patch
}

// AccountSettingsFor returns a copy of the stored plan for an account.
func (p *Publication) AccountSettingsFor(accountID int64) (AccountSettings, bool) {
	s, ok := p.PlatformSettings[accountID]
	if !ok {
		return AccountSettings{}, false
	}
	s.Settings = cloneSettings(s.Settings)
	return s, true
}

// PrimaryMedia returns the asset used for previews, or "" if there is none.
func (p *Publication) PrimaryMedia() string {
	if len(p.MediaFiles) == 0 {
		return ""
	}
	return p.MediaFiles[0]
}

// Clone returns a deep copy safe to hand across repository boundaries.
func (p *Publication) Clone() *Publication {
	c := *p
	c.MediaFiles = append([]string(nil), p.MediaFiles...)
	if p.MediaInfo != nil {
		info := *p.MediaInfo
		c.MediaInfo = &info
	}
	if p.PlatformSettings != nil {
		c.PlatformSettings = make(map[int64]AccountSettings, len(p.PlatformSettings))
		for id, s := range p.PlatformSettings {
			s.Settings = cloneSettings(s.Settings)
			c.PlatformSettings[id] = s
		}
	}
	return &c
}

// Clone returns a deep copy of the attempt.
func (a *PublishAttempt) Clone() *PublishAttempt {
	c := *a
	c.Settings = cloneSettings(a.Settings)
	c.Response = maps.Clone(a.Response)
	c.History = append([]AttemptEvent(nil), a.History...)
	return &c
}

func cloneSettings(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return maps.Clone(m)
}
