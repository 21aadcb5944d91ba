package simplepublish

import (
	"github.com/google/uuid"
	"github.com/tendant/simple-publish/pkg/simplepublish/rules"
)

// Request/Response DTOs

// CreatePublicationRequest contains parameters for creating a publication
type CreatePublicationRequest struct {
	WorkspaceID int64
	Title       string
	Caption     string
	Description string
	MediaFiles  []string
	// MediaInfo may be supplied when the caller already probed the asset.
	MediaInfo *rules.MediaDescriptor
}

// CreateSocialAccountRequest contains parameters for registering a social account
type CreateSocialAccountRequest struct {
	WorkspaceID int64
	Platform    rules.Platform
	AccountName string
}

// PreviewRequest contains parameters for generating a publication preview
type PreviewRequest struct {
	PublicationID uuid.UUID
	// AccountIDs keeps request order; duplicates are ignored.
	AccountIDs   []int64
	AutoOptimize bool
}

// UpdatePlatformConfigRequest contains parameters for an explicit per-account override
type UpdatePlatformConfigRequest struct {
	PublicationID  uuid.UUID
	AccountID      int64
	Type           rules.ContentType
	CustomSettings map[string]any
}

// PublishRequest contains parameters for publishing a publication
type PublishRequest struct {
	PublicationID uuid.UUID
	AccountIDs    []int64
}
