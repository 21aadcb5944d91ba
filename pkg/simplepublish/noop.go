package simplepublish

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
)

// NoopEventSink is a no-operation implementation of EventSink
type NoopEventSink struct{}

// NewNoopEventSink creates a new no-operation event sink
func NewNoopEventSink() EventSink {
	return &NoopEventSink{}
}

func (n *NoopEventSink) PreviewGenerated(ctx context.Context, preview *PublicationPreview) error {
	return nil
}

func (n *NoopEventSink) PlatformConfigurationUpdated(ctx context.Context, publicationID uuid.UUID, config *PlatformConfiguration) error {
	return nil
}

func (n *NoopEventSink) PublishAttemptSettled(ctx context.Context, attempt *PublishAttempt) error {
	return nil
}

// LoggingEventSink writes one structured log line per event.
// Useful for development and debugging
type LoggingEventSink struct {
	logger *slog.Logger
}

// NewLoggingEventSink creates a new logging event sink. A nil logger uses slog.Default().
func NewLoggingEventSink(logger *slog.Logger) EventSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingEventSink{logger: logger}
}

func (l *LoggingEventSink) PreviewGenerated(ctx context.Context, preview *PublicationPreview) error {
	l.logger.InfoContext(ctx, "Preview generated",
		"publication_id", preview.PublicationID,
		"detected_type", preview.DetectedType,
		"configurations", len(preview.PlatformConfigurations),
		"global_warnings", len(preview.GlobalWarnings))
	return nil
}

func (l *LoggingEventSink) PlatformConfigurationUpdated(ctx context.Context, publicationID uuid.UUID, config *PlatformConfiguration) error {
	l.logger.InfoContext(ctx, "Platform configuration updated",
		"publication_id", publicationID,
		"account_id", config.AccountID,
		"platform", config.Platform,
		"type", config.Type,
		"compatible", config.IsCompatible)
	return nil
}

func (l *LoggingEventSink) PublishAttemptSettled(ctx context.Context, attempt *PublishAttempt) error {
	l.logger.InfoContext(ctx, "Publish attempt settled",
		"attempt_id", attempt.ID,
		"publication_id", attempt.PublicationID,
		"account_id", attempt.AccountID,
		"status", attempt.Status,
		"attempts", attempt.Attempts)
	return nil
}
