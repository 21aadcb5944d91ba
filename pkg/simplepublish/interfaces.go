package simplepublish

import (
	"context"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/simple-publish/pkg/simplepublish/rules"
)

// Repository defines the interface for publication, account and publish-log persistence
type Repository interface {
	// Publication operations
	CreatePublication(ctx context.Context, publication *Publication) error
	GetPublication(ctx context.Context, id uuid.UUID) (*Publication, error)
	UpdatePublicationMedia(ctx context.Context, id uuid.UUID, info rules.MediaDescriptor) error
	UpdatePublicationStatus(ctx context.Context, id uuid.UUID, status PublicationStatus) error

	// MergePlatformSettings replaces platform_settings[accountID] and leaves every other key as it was.
	MergePlatformSettings(ctx context.Context, id uuid.UUID, accountID int64, settings AccountSettings) error

	// Social account operations
	CreateSocialAccount(ctx context.Context, account *SocialAccount) error
	GetSocialAccount(ctx context.Context, id int64) (*SocialAccount, error)

	// Publish attempt log
	CreatePublishAttempt(ctx context.Context, attempt *PublishAttempt) error
	GetPublishAttempt(ctx context.Context, id uuid.UUID) (*PublishAttempt, error)
	GetPublishAttemptByAccount(ctx context.Context, publicationID uuid.UUID, accountID int64) (*PublishAttempt, error)
	ListPublishAttempts(ctx context.Context, publicationID uuid.UUID) ([]*PublishAttempt, error)
	// UpdatePublishAttempt writes the attempt only if the stored status still equals expected.
	// Otherwise it returns ErrAttemptStatusConflict.
	UpdatePublishAttempt(ctx context.Context, attempt *PublishAttempt, expected AttemptStatus) error
}

// MediaAnalyzer turns a stored asset into a media descriptor. It must fail
// rather than return a partial descriptor.
type MediaAnalyzer interface {
	Analyze(ctx context.Context, path string) (rules.MediaDescriptor, error)
}

// ThumbnailRequest describes one thumbnail to produce.
type ThumbnailRequest struct {
	PublicationID uuid.UUID
	SourcePath    string
	Media         rules.MediaDescriptor
	// AtSeconds is the frame offset for video sources.
	AtSeconds float64
	// Variant names the output, e.g. "main" or an account id.
	Variant string
}

// ThumbnailGenerator produces a thumbnail and returns a URL for it.
type ThumbnailGenerator interface {
	GenerateThumbnail(ctx context.Context, req ThumbnailRequest) (string, error)
}

// PublishPayload is what a Publisher receives for one media file.
type PublishPayload struct {
	PublicationID uuid.UUID
	AccountID     int64
	AccountName   string
	Platform      rules.Platform
	ContentType   rules.ContentType
	MediaPath     string
	MediaKind     rules.MediaKind
	Title         string
	Caption       string
	Description   string
	Settings      map[string]any
}

// PublishResult is the provider's answer for one published file.
type PublishResult struct {
	ProviderPostID string
	URL            string
	Raw            map[string]any
}

// Publisher sends a post to one social platform. Errors carry a human-readable message.
type Publisher interface {
	PublishPost(ctx context.Context, payload PublishPayload) (*PublishResult, error)
}

// BlobStore defines the interface for thumbnail storage backends
type BlobStore interface {
	// Upload uploads content directly
	Upload(ctx context.Context, objectKey string, reader io.Reader) error

	// UploadWithParams uploads content with additional parameters
	UploadWithParams(ctx context.Context, reader io.Reader, params UploadParams) error

	// GetPreviewURL returns a URL for previewing content
	GetPreviewURL(ctx context.Context, objectKey string) (string, error)

	// Download downloads content directly
	Download(ctx context.Context, objectKey string) (io.ReadCloser, error)

	// Delete deletes content
	Delete(ctx context.Context, objectKey string) error

	// GetObjectMeta retrieves metadata for an object
	GetObjectMeta(ctx context.Context, objectKey string) (*ObjectMeta, error)
}

// ObjectMeta contains metadata about an object in storage
type ObjectMeta struct {
	Key         string
	Size        int64
	ContentType string
	UpdatedAt   time.Time
	ETag        string
	Metadata    map[string]string
}

// UploadParams contains parameters for uploading an object
type UploadParams struct {
	ObjectKey string
	MimeType  string
}

// EventSink defines the interface for event handling
type EventSink interface {
	// PreviewGenerated is fired after a preview is assembled
	PreviewGenerated(ctx context.Context, preview *PublicationPreview) error

	// PlatformConfigurationUpdated is fired after an account's settings are persisted
	PlatformConfigurationUpdated(ctx context.Context, publicationID uuid.UUID, config *PlatformConfiguration) error

	// PublishAttemptSettled is fired when an attempt leaves the pending state
	PublishAttemptSettled(ctx context.Context, attempt *PublishAttempt) error
}
