package simplepublish

import (
	"context"

	"github.com/google/uuid"
	"github.com/tendant/simple-publish/pkg/simplepublish/rules"
)

// Service defines the main interface for the simple-publish library
type Service interface {
	// Publication operations
	CreatePublication(ctx context.Context, req CreatePublicationRequest) (*Publication, error)
	GetPublication(ctx context.Context, id uuid.UUID) (*Publication, error)

	// Social account operations
	CreateSocialAccount(ctx context.Context, req CreateSocialAccountRequest) (*SocialAccount, error)

	// Preview and platform configuration
	GeneratePreview(ctx context.Context, req PreviewRequest) (*PublicationPreview, error)
	AutoOptimize(ctx context.Context, publicationID uuid.UUID, accountIDs []int64) (*PublicationPreview, error)
	UpdatePlatformConfiguration(ctx context.Context, req UpdatePlatformConfigRequest) (*PlatformConfiguration, error)
	GetPlatformConfigurations(ctx context.Context, publicationID uuid.UUID) (map[int64]AccountSettings, error)

	// Publish orchestration
	// Publish may return a partial report together with an error.
	Publish(ctx context.Context, req PublishRequest) (*PublishReport, error)
	RetryPublish(ctx context.Context, attemptID uuid.UUID) (*PublishAttempt, error)
	CancelPublish(ctx context.Context, attemptID uuid.UUID) (*PublishAttempt, error)
	ListPublishAttempts(ctx context.Context, publicationID uuid.UUID) ([]*PublishAttempt, error)
	GetPublishAttempt(ctx context.Context, attemptID uuid.UUID) (*PublishAttempt, error)

	// Capabilities exposes the capability table the service validates against.
	Capabilities() *rules.Table
}
