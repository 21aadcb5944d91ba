package publisher

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/tendant/simple-publish/pkg/simplepublish"
)

// DryRun accepts every post without contacting a provider. It is the default
// for platforms with no endpoint configured in development.
type DryRun struct {
	logger *slog.Logger
}

func NewDryRun(logger *slog.Logger) *DryRun {
	if logger == nil {
		logger = slog.Default()
	}
	return &DryRun{logger: logger}
}

func (d *DryRun) PublishPost(ctx context.Context, payload simplepublish.PublishPayload) (*simplepublish.PublishResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	id := "dryrun-" + uuid.NewString()
	d.logger.InfoContext(ctx, "Dry-run publish",
		"publication_id", payload.PublicationID,
		"account_id", payload.AccountID,
		"platform", payload.Platform,
		"content_type", payload.ContentType,
		"media_path", payload.MediaPath,
		"post_id", id,
	)
	return &simplepublish.PublishResult{
		ProviderPostID: id,
		Raw: map[string]any{
			"dry_run":      true,
			"content_type": string(payload.ContentType),
			"settings":     payload.Settings,
		},
	}, nil
}
