package simplepublish

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/tendant/simple-publish/pkg/simplepublish/rules"
	"golang.org/x/sync/errgroup"
)

// errPublishTimedOut is what a timed-out publisher call is recorded as.
var errPublishTimedOut = errors.New("publish timed out")

// Publish runs one independent publish per account. A failure on one account
// never undoes another. The publication status is derived from the log rows
// once every account has settled. When an account hits a storage error the
// report is still returned alongside the error, with a nil entry for that account.
func (s *service) Publish(ctx context.Context, req PublishRequest) (*PublishReport, error) {
	publication, err := s.repository.GetPublication(ctx, req.PublicationID)
	if err != nil {
		return nil, err
	}

	media, err := s.resolveMedia(ctx, publication)
	if err != nil {
		return nil, &PublicationError{PublicationID: publication.ID, Op: "publish", Err: err}
	}

	accounts, err := s.loadAccounts(ctx, publication, req.AccountIDs)
	if err != nil {
		return nil, err
	}

	attempts := make([]*PublishAttempt, len(accounts))
	var g errgroup.Group
	g.SetLimit(s.publishConcurrency)
	for i, account := range accounts {
		i, account := i, account
		g.Go(func() error {
			attempt, err := s.publishAccount(ctx, publication, media, account)
			if err != nil {
				return fmt.Errorf("account %d: %w", account.ID, err)
			}
			attempts[i] = attempt
			return nil
		})
	}
	runErr := g.Wait()

	report := &PublishReport{
		PublicationID: publication.ID,
		Attempts:      attempts,
	}
	report.Status, err = s.refreshStatus(ctx, publication.ID)
	if runErr != nil {
		return report, &PublicationError{PublicationID: publication.ID, Op: "publish", Err: runErr}
	}
	if err != nil {
		return report, &PublicationError{PublicationID: publication.ID, Op: "publish", Err: err}
	}
	return report, nil
}

func (s *service) RetryPublish(ctx context.Context, attemptID uuid.UUID) (*PublishAttempt, error) {
	attempt, err := s.repository.GetPublishAttempt(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	if attempt.Status != AttemptStatusFailed {
		return nil, fmt.Errorf("%w: status is %s", ErrAttemptNotRetryable, attempt.Status)
	}
	if attempt.Attempts >= MaxPublishAttempts {
		return nil, fmt.Errorf("%w: %d of %d attempts used", ErrRetryLimitReached, attempt.Attempts, MaxPublishAttempts)
	}

	publication, err := s.repository.GetPublication(ctx, attempt.PublicationID)
	if err != nil {
		return nil, err
	}
	account, err := s.loadAccount(ctx, publication, attempt.AccountID)
	if err != nil {
		return nil, err
	}
	media, err := s.resolveMedia(ctx, publication)
	if err != nil {
		return nil, &PublicationError{PublicationID: publication.ID, Op: "retry", Err: err}
	}

	if err := s.arm(ctx, attempt, AttemptStatusFailed, "retry requested"); err != nil {
		if errors.Is(err, ErrAttemptStatusConflict) {
			return nil, fmt.Errorf("%w: %v", ErrAttemptNotRetryable, err)
		}
		return nil, err
	}

	settled, err := s.run(ctx, publication, media.Kind, account, attempt)
	if err != nil {
		return nil, err
	}
	if _, err := s.refreshStatus(ctx, publication.ID); err != nil {
		return nil, &PublicationError{PublicationID: publication.ID, Op: "retry", Err: err}
	}
	return settled, nil
}

func (s *service) CancelPublish(ctx context.Context, attemptID uuid.UUID) (*PublishAttempt, error) {
	attempt, err := s.repository.GetPublishAttempt(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	if attempt.Status != AttemptStatusPending {
		return nil, fmt.Errorf("%w: status is %s", ErrAttemptNotCancellable, attempt.Status)
	}

	now := s.now().UTC()
	attempt.Status = AttemptStatusCancelled
	attempt.UpdatedAt = now
	attempt.History = append(attempt.History, AttemptEvent{
		At:      now,
		Status:  AttemptStatusCancelled,
		Attempt: attempt.Attempts,
		Message: "cancelled by user",
	})
	if err := s.repository.UpdatePublishAttempt(ctx, attempt, AttemptStatusPending); err != nil {
		if errors.Is(err, ErrAttemptStatusConflict) {
			return nil, fmt.Errorf("%w: %v", ErrAttemptNotCancellable, err)
		}
		return nil, err
	}
	s.notifySettled(ctx, attempt)

	if _, err := s.refreshStatus(ctx, attempt.PublicationID); err != nil {
		return nil, &PublicationError{PublicationID: attempt.PublicationID, Op: "cancel", Err: err}
	}
	return attempt, nil
}

func (s *service) ListPublishAttempts(ctx context.Context, publicationID uuid.UUID) ([]*PublishAttempt, error) {
	if _, err := s.repository.GetPublication(ctx, publicationID); err != nil {
		return nil, err
	}
	return s.repository.ListPublishAttempts(ctx, publicationID)
}

func (s *service) GetPublishAttempt(ctx context.Context, attemptID uuid.UUID) (*PublishAttempt, error) {
	return s.repository.GetPublishAttempt(ctx, attemptID)
}

// DerivePublicationStatus folds the log rows of a publication into its aggregate status.
// Cancelled rows count as never targeted.
func DerivePublicationStatus(attempts []*PublishAttempt) PublicationStatus {
	var published, failed int
	for _, a := range attempts {
		switch a.Status {
		case AttemptStatusPending:
			return PublicationStatusPublishing
		case AttemptStatusPublished:
			published++
		case AttemptStatusFailed:
			failed++
		}
	}

	switch {
	case published == 0 && failed == 0:
		return PublicationStatusDraft
	case failed == 0:
		return PublicationStatusPublished
	case published == 0:
		return PublicationStatusFailed
	default:
		return PublicationStatusPartiallyPublished
	}
}

// publishAccount finds or creates the account's log row and runs it. Published
// and pending rows are returned as they are, and so is any row that used up its
// attempts. Other cancelled and failed rows are re-armed.
func (s *service) publishAccount(ctx context.Context, publication *Publication, media rules.MediaDescriptor, account *SocialAccount) (*PublishAttempt, error) {
	ctype, settings := s.plan(publication, media, account)

	attempt, err := s.repository.GetPublishAttemptByAccount(ctx, publication.ID, account.ID)
	switch {
	case errors.Is(err, ErrAttemptNotFound):
		now := s.now().UTC()
		attempt = &PublishAttempt{
			ID:            uuid.New(),
			PublicationID: publication.ID,
			AccountID:     account.ID,
			Platform:      account.Platform,
			ContentType:   ctype,
			Settings:      settings,
			Status:        AttemptStatusPending,
			Attempts:      1,
			History: []AttemptEvent{{
				At:      now,
				Status:  AttemptStatusPending,
				Attempt: 1,
				Message: "publish started",
			}},
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := s.repository.CreatePublishAttempt(ctx, attempt); err != nil {
			if errors.Is(err, ErrAttemptStatusConflict) {
				// a concurrent Publish created the row first and runs it
				return s.repository.GetPublishAttemptByAccount(ctx, publication.ID, account.ID)
			}
			return nil, err
		}
	case err != nil:
		return nil, err
	case attempt.Status == AttemptStatusPublished, attempt.Status == AttemptStatusPending:
		return attempt, nil
	case attempt.Attempts >= MaxPublishAttempts:
		return attempt, nil
	default:
		previous := attempt.Status
		attempt.ContentType = ctype
		attempt.Settings = settings
		if err := s.arm(ctx, attempt, previous, "publish requested"); err != nil {
			if errors.Is(err, ErrAttemptStatusConflict) {
				return s.repository.GetPublishAttempt(ctx, attempt.ID)
			}
			return nil, err
		}
	}

	return s.run(ctx, publication, media.Kind, account, attempt)
}

// plan returns the persisted type and settings for the account, or the
// auto-selected ones when nothing usable is stored.
func (s *service) plan(publication *Publication, media rules.MediaDescriptor, account *SocialAccount) (rules.ContentType, map[string]any) {
	if stored, ok := publication.AccountSettingsFor(account.ID); ok && s.table.Supports(account.Platform, media.Kind, stored.Type) {
		return stored.Type, stored.Settings
	}
	ctype := s.table.DefaultType(account.Platform, media)
	return ctype, rules.BuildSettings(account.Platform, ctype, media)
}

// arm moves an attempt back to pending for another run. It refuses once the
// attempt has run MaxPublishAttempts times.
func (s *service) arm(ctx context.Context, attempt *PublishAttempt, expected AttemptStatus, message string) error {
	if attempt.Attempts >= MaxPublishAttempts {
		return fmt.Errorf("%w: %d of %d attempts used", ErrRetryLimitReached, attempt.Attempts, MaxPublishAttempts)
	}
	now := s.now().UTC()
	attempt.Status = AttemptStatusPending
	attempt.Attempts++
	attempt.Error = ""
	attempt.UpdatedAt = now
	attempt.History = append(attempt.History, AttemptEvent{
		At:      now,
		Status:  AttemptStatusPending,
		Attempt: attempt.Attempts,
		Message: message,
	})
	return s.repository.UpdatePublishAttempt(ctx, attempt, expected)
}

// run publishes every media file of the publication for a pending attempt and
// settles the row. A row cancelled meanwhile keeps its cancelled state and the
// result is dropped.
func (s *service) run(ctx context.Context, publication *Publication, kind rules.MediaKind, account *SocialAccount, attempt *PublishAttempt) (*PublishAttempt, error) {
	current, err := s.repository.GetPublishAttempt(ctx, attempt.ID)
	if err != nil {
		return nil, err
	}
	if current.Status != AttemptStatusPending {
		return current, nil
	}

	var messages []string
	files := make([]any, 0, len(publication.MediaFiles))

	publisher, ok := s.publishers[account.Platform]
	switch {
	case !ok:
		messages = append(messages, fmt.Sprintf("%v for %s", ErrPublisherNotConfigured, account.Platform))
	case attempt.ContentType == "":
		messages = append(messages, (&ConfigurationError{Platform: account.Platform, Kind: kind}).Error())
	case len(publication.MediaFiles) == 0:
		messages = append(messages, "publication has no media files")
	default:
		attempt.ProviderPostID = ""
		attempt.ProviderURL = ""
		for i, path := range publication.MediaFiles {
			result, err := s.publishFile(ctx, publisher, PublishPayload{
				PublicationID: publication.ID,
				AccountID:     account.ID,
				AccountName:   account.AccountName,
				Platform:      account.Platform,
				ContentType:   attempt.ContentType,
				MediaPath:     path,
				MediaKind:     kind,
				Title:         publication.Title,
				Caption:       publication.Caption,
				Description:   publication.Description,
				Settings:      cloneSettings(attempt.Settings),
			})
			if err != nil {
				msg := fmt.Sprintf("file %d (%s): %s", i+1, path, err)
				messages = append(messages, msg)
				files = append(files, map[string]any{"file": path, "error": err.Error()})
				continue
			}
			if attempt.ProviderPostID == "" {
				attempt.ProviderPostID = result.ProviderPostID
				attempt.ProviderURL = result.URL
			}
			files = append(files, map[string]any{
				"file":             path,
				"provider_post_id": result.ProviderPostID,
				"url":              result.URL,
				"response":         result.Raw,
			})
		}
	}

	now := s.now().UTC()
	attempt.Response = map[string]any{"files": files}
	attempt.UpdatedAt = now
	event := AttemptEvent{At: now, Attempt: attempt.Attempts}
	if len(messages) > 0 {
		perr := &PublishError{AccountID: account.ID, Messages: messages}
		attempt.Status = AttemptStatusFailed
		attempt.Error = perr.Error()
		event.Message = perr.Error()
	} else {
		attempt.Status = AttemptStatusPublished
		attempt.Error = ""
		event.Message = "published"
	}
	event.Status = attempt.Status
	attempt.History = append(attempt.History, event)

	if err := s.repository.UpdatePublishAttempt(ctx, attempt, AttemptStatusPending); err != nil {
		if errors.Is(err, ErrAttemptStatusConflict) {
			slog.Info("Discarding publish result for attempt that left pending",
				"attempt_id", attempt.ID, "account_id", account.ID, "result", attempt.Status)
			return s.repository.GetPublishAttempt(ctx, attempt.ID)
		}
		return nil, err
	}

	if attempt.Status == AttemptStatusFailed {
		slog.Warn("Publish failed", "attempt_id", attempt.ID, "account_id", account.ID,
			"platform", account.Platform, "attempt", attempt.Attempts, "error", attempt.Error)
	}
	s.notifySettled(ctx, attempt)
	return attempt, nil
}

// publishFile bounds one publisher call by the configured timeout.
func (s *service) publishFile(ctx context.Context, publisher Publisher, payload PublishPayload) (*PublishResult, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.publishTimeout)
	defer cancel()

	result, err := publisher.PublishPost(callCtx, payload)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return nil, errPublishTimedOut
		}
		return nil, err
	}
	if result == nil {
		result = &PublishResult{}
	}
	return result, nil
}

// refreshStatus derives and stores the publication status from its log rows.
func (s *service) refreshStatus(ctx context.Context, publicationID uuid.UUID) (PublicationStatus, error) {
	attempts, err := s.repository.ListPublishAttempts(ctx, publicationID)
	if err != nil {
		return "", err
	}
	status := DerivePublicationStatus(attempts)
	if err := s.repository.UpdatePublicationStatus(ctx, publicationID, status); err != nil {
		return "", err
	}
	return status, nil
}
