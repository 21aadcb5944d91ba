package simplepublish

import (
	"slices"
	"strings"
	"time"

	"github.com/tendant/simple-publish/pkg/simplepublish/rules"
)

// Configurator turns validation results into per-account publish plans.
type Configurator struct {
	table *rules.Table
	now   func() time.Time
}

// NewConfigurator returns a Configurator over table. A nil clock uses time.Now.
func NewConfigurator(table *rules.Table, now func() time.Time) *Configurator {
	if now == nil {
		now = time.Now
	}
	return &Configurator{table: table, now: now}
}

// BuildConfiguration creates the plan for one account. A stored plan wins over
// the auto-selected type as long as its type is still available for the media.
func (c *Configurator) BuildConfiguration(account *SocialAccount, media rules.MediaDescriptor, result rules.PlatformResult, stored *AccountSettings) *PlatformConfiguration {
	available := result.AvailableTypes
	if available == nil {
		available = c.table.AvailableTypes(account.Platform, media.Kind)
	}

	ctype := c.table.DefaultType(account.Platform, media)
	settings := rules.BuildSettings(account.Platform, ctype, media)
	if stored != nil && slices.Contains(available, stored.Type) {
		ctype = stored.Type
		settings = cloneSettings(stored.Settings)
	}

	cfg := &PlatformConfiguration{
		AccountID:       account.ID,
		Platform:        account.Platform,
		AccountName:     account.AccountName,
		Type:            ctype,
		AppliedSettings: settings,
		CanChangeType:   len(available) > 1,
		AvailableTypes:  slices.Clone(available),
	}
	if cfg.AvailableTypes == nil {
		cfg.AvailableTypes = []rules.ContentType{}
	}

	verdict, ok := result.Verdicts[ctype]
	if !ok {
		verdict = c.table.Validate(media, account.Platform, ctype)
	}
	applyVerdict(cfg, verdict)
	cfg.Recommendations = c.GenerateRecommendations(cfg, media)
	return cfg
}

// OptimizeConfiguration returns a copy of cfg with the heuristic type applied,
// when it is available, and freshly built settings. Images are returned unchanged.
func (c *Configurator) OptimizeConfiguration(cfg *PlatformConfiguration, media rules.MediaDescriptor) *PlatformConfiguration {
	if !media.IsVideo() {
		return cfg
	}

	out := *cfg
	out.AvailableTypes = slices.Clone(cfg.AvailableTypes)
	if optimal := c.table.OptimalType(cfg.Platform, media); slices.Contains(cfg.AvailableTypes, optimal) {
		out.Type = optimal
	}
	out.AppliedSettings = rules.OptimizedSettings(out.Platform, out.Type, media, c.now())

	applyVerdict(&out, c.table.Validate(media, out.Platform, out.Type))
	out.Recommendations = c.GenerateRecommendations(&out, media)
	return &out
}

// GenerateRecommendations lists advisory hints for the configuration's current type.
func (c *Configurator) GenerateRecommendations(cfg *PlatformConfiguration, media rules.MediaDescriptor) []string {
	recs := rules.Recommendations(cfg.Platform, cfg.Type, media)
	if recs == nil {
		return []string{}
	}
	return recs
}

func applyVerdict(cfg *PlatformConfiguration, v rules.Verdict) {
	cfg.IsCompatible = v.IsCompatible
	cfg.IncompatibilityReason = strings.Join(v.Errors, "; ")
	cfg.Warnings = slices.Clone(v.Warnings)
	if cfg.Warnings == nil {
		cfg.Warnings = []string{}
	}
}
