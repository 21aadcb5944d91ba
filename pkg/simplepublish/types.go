package simplepublish

import (
	"time"

	"github.com/google/uuid"
	"github.com/tendant/simple-publish/pkg/simplepublish/rules"
)

// MaxPublishAttempts caps how many times one account's publish may run, the first run included.
const MaxPublishAttempts = 3

// PublicationStatus is the aggregate lifecycle state of a publication.
type PublicationStatus string

const (
	PublicationStatusDraft              PublicationStatus = "draft"
	PublicationStatusPublishing         PublicationStatus = "publishing"
	PublicationStatusPublished          PublicationStatus = "published"
	PublicationStatusPartiallyPublished PublicationStatus = "partially_published"
	PublicationStatusFailed             PublicationStatus = "failed"
)

// AttemptStatus is the state of one (publication, account) publish log row.
type AttemptStatus string

const (
	AttemptStatusPending   AttemptStatus = "pending"
	AttemptStatusPublished AttemptStatus = "published"
	AttemptStatusFailed    AttemptStatus = "failed"
	AttemptStatusCancelled AttemptStatus = "cancelled"
)

// Publication is a draft of media plus text targeted at one or more social accounts.
type Publication struct {
	ID          uuid.UUID `json:"id"`
	WorkspaceID int64     `json:"workspace_id"`
	Title       string    `json:"title,omitempty"`
	Caption     string    `json:"caption,omitempty"`
	Description string    `json:"description,omitempty"`
	// MediaFiles holds the asset locations; the first one drives previews.
	MediaFiles []string               `json:"media_files"`
	MediaInfo  *rules.MediaDescriptor `json:"media_info,omitempty"`
	// PlatformSettings is keyed by social account ID. Mutate it only through MergeAccountSettings.
	PlatformSettings map[int64]AccountSettings `json:"platform_settings"`
	Status           PublicationStatus         `json:"status"`
	CreatedAt        time.Time                 `json:"created_at"`
	UpdatedAt        time.Time                 `json:"updated_at"`
}

// AccountSettings is the persisted publish plan for one account.
type AccountSettings struct {
	Type      rules.ContentType `json:"type"`
	Settings  map[string]any    `json:"settings"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// SocialAccount is a connected account on one platform.
type SocialAccount struct {
	ID          int64          `json:"id"`
	Platform    rules.Platform `json:"platform"`
	AccountName string         `json:"account_name"`
	WorkspaceID int64          `json:"workspace_id"`
	CreatedAt   time.Time      `json:"created_at"`
}

// PlatformConfiguration is the per-account publish plan shown in a preview.
type PlatformConfiguration struct {
	AccountID             int64               `json:"account_id"`
	Platform              rules.Platform      `json:"platform"`
	AccountName           string              `json:"account_name"`
	Type                  rules.ContentType   `json:"type"`
	IsCompatible          bool                `json:"is_compatible"`
	IncompatibilityReason string              `json:"incompatibility_reason,omitempty"`
	Warnings              []string            `json:"warnings"`
	AppliedSettings       map[string]any      `json:"applied_settings"`
	ThumbnailURL          *string             `json:"thumbnail_url"`
	CanChangeType         bool                `json:"can_change_type"`
	AvailableTypes        []rules.ContentType `json:"available_types"`
	Recommendations       []string            `json:"recommendations"`
}

// PublicationPreview is the aggregate answer to one preview request. Only the
// type and settings of each configuration are ever persisted.
type PublicationPreview struct {
	PublicationID           uuid.UUID                `json:"publication_id"`
	MediaInfo               rules.MediaDescriptor    `json:"media_info"`
	DetectedType            rules.ContentType        `json:"detected_type"`
	MainThumbnail           *string                  `json:"main_thumbnail"`
	PlatformConfigurations  []*PlatformConfiguration `json:"platform_configurations"`
	OptimizationSuggestions []string                 `json:"optimization_suggestions"`
	GlobalWarnings          []string                 `json:"global_warnings"`
}

// PublishAttempt is the durable log row for publishing one publication to one account.
// Retries reuse the row, so Attempts and History accumulate.
type PublishAttempt struct {
	ID             uuid.UUID         `json:"id"`
	PublicationID  uuid.UUID         `json:"publication_id"`
	AccountID      int64             `json:"account_id"`
	Platform       rules.Platform    `json:"platform"`
	ContentType    rules.ContentType `json:"content_type"`
	Settings       map[string]any    `json:"settings"`
	Status         AttemptStatus     `json:"status"`
	Attempts       int               `json:"attempts"`
	ProviderPostID string            `json:"provider_post_id,omitempty"`
	ProviderURL    string            `json:"provider_url,omitempty"`
	Response       map[string]any    `json:"response,omitempty"`
	Error          string            `json:"error,omitempty"`
	History        []AttemptEvent    `json:"history"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

// AttemptEvent is one entry of a publish attempt's history.
type AttemptEvent struct {
	At      time.Time     `json:"at"`
	Status  AttemptStatus `json:"status"`
	Attempt int           `json:"attempt"`
	Message string        `json:"message,omitempty"`
}

// CanRetry reports whether the attempt may be run again.
func (a *PublishAttempt) CanRetry() bool {
	return a.Status == AttemptStatusFailed && a.Attempts < MaxPublishAttempts
}

// PublishReport summarizes one Publish call.
type PublishReport struct {
	PublicationID uuid.UUID         `json:"publication_id"`
	Status        PublicationStatus `json:"status"`
	Attempts      []*PublishAttempt `json:"attempts"`
}
