package simplepublish

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/tendant/simple-publish/pkg/simplepublish/rules"
)

// Error types
var (
	// ErrPublicationNotFound indicates a publication was not found
	ErrPublicationNotFound = errors.New("publication not found")

	// ErrAccountNotFound indicates a social account was not found in the publication's workspace
	ErrAccountNotFound = errors.New("social account not found")

	// ErrAttemptNotFound indicates a publish attempt was not found
	ErrAttemptNotFound = errors.New("publish attempt not found")

	// ErrUnknownPlatform indicates a platform identifier outside the supported set
	ErrUnknownPlatform = rules.ErrUnknownPlatform

	// ErrTypeNotAvailable indicates the user asked for a content type the platform does not offer for the media
	ErrTypeNotAvailable = errors.New("content type not available")

	// ErrUnsupportedContentType indicates a platform/content type combination without a capability entry
	ErrUnsupportedContentType = rules.ErrUnsupportedContentType

	// ErrMediaUnavailable indicates the publication's media could not be resolved to a descriptor
	ErrMediaUnavailable = errors.New("media unavailable")

	// ErrRetryLimitReached indicates a publish attempt already ran the maximum number of times
	ErrRetryLimitReached = errors.New("retry limit reached")

	// ErrAttemptNotRetryable indicates a publish attempt is not in a failed state
	ErrAttemptNotRetryable = errors.New("publish attempt is not retryable")

	// ErrAttemptNotCancellable indicates a publish attempt is no longer pending
	ErrAttemptNotCancellable = errors.New("publish attempt is not cancellable")

	// ErrAttemptStatusConflict indicates a conditional attempt update lost against a concurrent transition
	ErrAttemptStatusConflict = errors.New("publish attempt status changed")

	// ErrPublisherNotConfigured indicates no publisher is registered for a platform
	ErrPublisherNotConfigured = errors.New("publisher not configured")

	// ErrInvalidRequest indicates a structurally invalid request
	ErrInvalidRequest = errors.New("invalid request")

	// ErrObjectNotFound indicates a blob store has no object under the key
	ErrObjectNotFound = errors.New("object not found")
)

// ConfigurationError reports a platform/content type combination with no capability entry.
type ConfigurationError = rules.ConfigurationError

// PublicationError represents an error related to publication operations
type PublicationError struct {
	PublicationID uuid.UUID
	Op            string
	Err           error
}

func (e *PublicationError) Error() string {
	return fmt.Sprintf("publication operation %s failed for publication %s: %v", e.Op, e.PublicationID, e.Err)
}

func (e *PublicationError) Unwrap() error {
	return e.Err
}

// PublishError collects every per-file failure of one account's publish run.
// Files that succeeded are not undone.
type PublishError struct {
	AccountID int64
	Messages  []string
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("publish to account %d failed: %s", e.AccountID, strings.Join(e.Messages, "; "))
}

// TypeNotAvailableError names the rejected type and what would have been accepted.
type TypeNotAvailableError struct {
	Platform  rules.Platform
	Requested rules.ContentType
	Available []rules.ContentType
}

func (e *TypeNotAvailableError) Error() string {
	avail := make([]string, len(e.Available))
	for i, t := range e.Available {
		avail[i] = string(t)
	}
	return fmt.Sprintf("content type %q is not available for %s (available: %s)", e.Requested, e.Platform, strings.Join(avail, ", "))
}

func (e *TypeNotAvailableError) Unwrap() error {
	return ErrTypeNotAvailable
}
