package simplepublish

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/simple-publish/pkg/simplepublish/rules"
)

const (
	// DefaultPublishTimeout bounds a single publisher call.
	DefaultPublishTimeout = 30 * time.Second
	// DefaultPublishConcurrency publishes accounts one at a time.
	DefaultPublishConcurrency = 1
)

// service implements the Service interface
type service struct {
	repository         Repository
	table              *rules.Table
	analyzer           MediaAnalyzer
	thumbnails         ThumbnailGenerator
	publishers         map[rules.Platform]Publisher
	eventSink          EventSink
	publishTimeout     time.Duration
	publishConcurrency int
	now                func() time.Time
	configurator       *Configurator
}

// Option represents a functional option for configuring the service
type Option func(*service)

// WithRepository sets the repository for the service
func WithRepository(repo Repository) Option {
	return func(s *service) {
		s.repository = repo
	}
}

// WithCapabilityTable replaces the embedded capability table
func WithCapabilityTable(table *rules.Table) Option {
	return func(s *service) {
		s.table = table
	}
}

// WithMediaAnalyzer sets the analyzer used when a publication has no cached media info
func WithMediaAnalyzer(analyzer MediaAnalyzer) Option {
	return func(s *service) {
		s.analyzer = analyzer
	}
}

// WithThumbnailGenerator sets the thumbnail generator used by previews
func WithThumbnailGenerator(gen ThumbnailGenerator) Option {
	return func(s *service) {
		s.thumbnails = gen
	}
}

// WithPublisher registers the publisher for a platform
func WithPublisher(platform rules.Platform, publisher Publisher) Option {
	return func(s *service) {
		if s.publishers == nil {
			s.publishers = make(map[rules.Platform]Publisher)
		}
		s.publishers[platform] = publisher
	}
}

// WithEventSink sets the event sink for the service
func WithEventSink(sink EventSink) Option {
	return func(s *service) {
		s.eventSink = sink
	}
}

// WithPublishTimeout bounds each publisher call. Non-positive values are ignored.
func WithPublishTimeout(d time.Duration) Option {
	return func(s *service) {
		if d > 0 {
			s.publishTimeout = d
		}
	}
}

// WithPublishConcurrency sets how many accounts are published in parallel. Values below 1 are ignored.
func WithPublishConcurrency(n int) Option {
	return func(s *service) {
		if n >= 1 {
			s.publishConcurrency = n
		}
	}
}

// WithClock overrides the time source, mostly for tests
func WithClock(now func() time.Time) Option {
	return func(s *service) {
		if now != nil {
			s.now = now
		}
	}
}

// New creates a new service instance with the given options
func New(options ...Option) (Service, error) {
	s := &service{
		publishers:         make(map[rules.Platform]Publisher),
		eventSink:          NewNoopEventSink(),
		publishTimeout:     DefaultPublishTimeout,
		publishConcurrency: DefaultPublishConcurrency,
		now:                time.Now,
	}

	for _, option := range options {
		option(s)
	}

	if s.repository == nil {
		return nil, fmt.Errorf("repository is required")
	}
	if s.table == nil {
		s.table = rules.Default()
	}
	if s.eventSink == nil {
		s.eventSink = NewNoopEventSink()
	}
	s.configurator = NewConfigurator(s.table, s.now)

	return s, nil
}

func (s *service) Capabilities() *rules.Table {
	return s.table
}

// Publication operations

func (s *service) CreatePublication(ctx context.Context, req CreatePublicationRequest) (*Publication, error) {
	if req.MediaInfo != nil {
		if err := req.MediaInfo.Check(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
		}
	}

	now := s.now().UTC()
	publication := &Publication{
		ID:               uuid.New(),
		WorkspaceID:      req.WorkspaceID,
		Title:            req.Title,
		Caption:          req.Caption,
		Description:      req.Description,
		MediaFiles:       append([]string{}, req.MediaFiles...),
		MediaInfo:        req.MediaInfo,
		PlatformSettings: make(map[int64]AccountSettings),
		Status:           PublicationStatusDraft,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if err := s.repository.CreatePublication(ctx, publication); err != nil {
		return nil, &PublicationError{
			PublicationID: publication.ID,
			Op:            "create",
			Err:           err,
		}
	}

	return publication, nil
}

func (s *service) GetPublication(ctx context.Context, id uuid.UUID) (*Publication, error) {
	return s.repository.GetPublication(ctx, id)
}

func (s *service) CreateSocialAccount(ctx context.Context, req CreateSocialAccountRequest) (*SocialAccount, error) {
	if !req.Platform.IsValid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPlatform, req.Platform)
	}
	if strings.TrimSpace(req.AccountName) == "" {
		return nil, fmt.Errorf("%w: account name is required", ErrInvalidRequest)
	}

	account := &SocialAccount{
		Platform:    req.Platform,
		AccountName: req.AccountName,
		WorkspaceID: req.WorkspaceID,
		CreatedAt:   s.now().UTC(),
	}
	if err := s.repository.CreateSocialAccount(ctx, account); err != nil {
		return nil, err
	}
	return account, nil
}

// Preview and platform configuration

func (s *service) GeneratePreview(ctx context.Context, req PreviewRequest) (*PublicationPreview, error) {
	publication, err := s.repository.GetPublication(ctx, req.PublicationID)
	if err != nil {
		return nil, err
	}

	media, err := s.resolveMedia(ctx, publication)
	if err != nil {
		return nil, &PublicationError{PublicationID: publication.ID, Op: "preview", Err: err}
	}

	accounts, err := s.loadAccounts(ctx, publication, req.AccountIDs)
	if err != nil {
		return nil, err
	}

	platforms := make([]rules.Platform, len(accounts))
	for i, a := range accounts {
		platforms[i] = a.Platform
	}
	validation, err := s.table.ValidatePublication(media, platforms)
	if err != nil {
		return nil, &PublicationError{PublicationID: publication.ID, Op: "preview", Err: err}
	}

	preview := &PublicationPreview{
		PublicationID:          publication.ID,
		MediaInfo:              media,
		DetectedType:           validation.DetectedType,
		PlatformConfigurations: make([]*PlatformConfiguration, 0, len(accounts)),
		GlobalWarnings:         validation.Warnings,
	}
	preview.MainThumbnail = s.thumbnail(ctx, publication, media, "main", 0)

	for _, account := range accounts {
		result, _ := validation.Result(account.Platform)

		var stored *AccountSettings
		if !req.AutoOptimize {
			if st, ok := publication.AccountSettingsFor(account.ID); ok {
				stored = &st
			}
		}

		cfg := s.configurator.BuildConfiguration(account, media, result, stored)
		if req.AutoOptimize {
			cfg = s.configurator.OptimizeConfiguration(cfg, media)
		}
		cfg.ThumbnailURL = s.thumbnail(ctx, publication, media, strconv.FormatInt(account.ID, 10), coverFrame(cfg, media))
		preview.PlatformConfigurations = append(preview.PlatformConfigurations, cfg)
	}

	preview.OptimizationSuggestions = s.table.OptimizationSuggestions(media, platforms)
	if preview.OptimizationSuggestions == nil {
		preview.OptimizationSuggestions = []string{}
	}

	if req.AutoOptimize {
		if err := s.persistConfigurations(ctx, publication.ID, preview.PlatformConfigurations); err != nil {
			return nil, err
		}
	}

	if err := s.eventSink.PreviewGenerated(ctx, preview); err != nil {
		slog.Warn("Event sink failed", "event", "preview_generated", "publication_id", publication.ID, "error", err)
	}

	return preview, nil
}

func (s *service) AutoOptimize(ctx context.Context, publicationID uuid.UUID, accountIDs []int64) (*PublicationPreview, error) {
	return s.GeneratePreview(ctx, PreviewRequest{
		PublicationID: publicationID,
		AccountIDs:    accountIDs,
		AutoOptimize:  true,
	})
}

func (s *service) UpdatePlatformConfiguration(ctx context.Context, req UpdatePlatformConfigRequest) (*PlatformConfiguration, error) {
	if req.Type == "" {
		return nil, fmt.Errorf("%w: content type is required", ErrInvalidRequest)
	}

	publication, err := s.repository.GetPublication(ctx, req.PublicationID)
	if err != nil {
		return nil, err
	}

	media, err := s.resolveMedia(ctx, publication)
	if err != nil {
		return nil, &PublicationError{PublicationID: publication.ID, Op: "update_platform_config", Err: err}
	}

	account, err := s.loadAccount(ctx, publication, req.AccountID)
	if err != nil {
		return nil, err
	}

	available := s.table.AvailableTypes(account.Platform, media.Kind)
	if !slices.Contains(available, req.Type) {
		return nil, &TypeNotAvailableError{
			Platform:  account.Platform,
			Requested: req.Type,
			Available: available,
		}
	}

	settings := AccountSettings{
		Type:      req.Type,
		Settings:  cloneSettings(req.CustomSettings),
		UpdatedAt: s.now().UTC(),
	}
	if err := s.repository.MergePlatformSettings(ctx, publication.ID, account.ID, settings); err != nil {
		return nil, &PublicationError{PublicationID: publication.ID, Op: "update_platform_config", Err: err}
	}

	cfg := &PlatformConfiguration{
		AccountID:       account.ID,
		Platform:        account.Platform,
		AccountName:     account.AccountName,
		Type:            req.Type,
		AppliedSettings: cloneSettings(settings.Settings),
		CanChangeType:   len(available) > 1,
		AvailableTypes:  available,
	}
	applyVerdict(cfg, s.table.Validate(media, account.Platform, req.Type))
	cfg.Recommendations = s.configurator.GenerateRecommendations(cfg, media)

	if err := s.eventSink.PlatformConfigurationUpdated(ctx, publication.ID, cfg); err != nil {
		slog.Warn("Event sink failed", "event", "platform_configuration_updated", "publication_id", publication.ID, "error", err)
	}

	return cfg, nil
}

func (s *service) GetPlatformConfigurations(ctx context.Context, publicationID uuid.UUID) (map[int64]AccountSettings, error) {
	publication, err := s.repository.GetPublication(ctx, publicationID)
	if err != nil {
		return nil, err
	}

	out := make(map[int64]AccountSettings, len(publication.PlatformSettings))
	for id := range publication.PlatformSettings {
		out[id], _ = publication.AccountSettingsFor(id)
	}
	return out, nil
}

// resolveMedia returns the cached descriptor or asks the analyzer for one.
func (s *service) resolveMedia(ctx context.Context, publication *Publication) (rules.MediaDescriptor, error) {
	if publication.MediaInfo != nil && publication.MediaInfo.Check() == nil {
		return *publication.MediaInfo, nil
	}

	path := publication.PrimaryMedia()
	if path == "" {
		return rules.MediaDescriptor{}, fmt.Errorf("%w: publication has no media files", ErrMediaUnavailable)
	}
	if s.analyzer == nil {
		return rules.MediaDescriptor{}, fmt.Errorf("%w: no media analyzer configured", ErrMediaUnavailable)
	}

	info, err := s.analyzer.Analyze(ctx, path)
	if err != nil {
		return rules.MediaDescriptor{}, fmt.Errorf("%w: %v", ErrMediaUnavailable, err)
	}
	if err := info.Check(); err != nil {
		return rules.MediaDescriptor{}, fmt.Errorf("%w: %v", ErrMediaUnavailable, err)
	}

	if err := s.repository.UpdatePublicationMedia(ctx, publication.ID, info); err != nil {
		slog.Warn("Failed to cache media info", "publication_id", publication.ID, "error", err)
	}
	return info, nil
}

// loadAccounts resolves account IDs in request order, dropping duplicates.
func (s *service) loadAccounts(ctx context.Context, publication *Publication, ids []int64) ([]*SocialAccount, error) {
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: at least one account is required", ErrInvalidRequest)
	}

	accounts := make([]*SocialAccount, 0, len(ids))
	seen := make(map[int64]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true

		account, err := s.loadAccount(ctx, publication, id)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, account)
	}
	return accounts, nil
}

// loadAccount treats an account from another workspace as missing.
func (s *service) loadAccount(ctx context.Context, publication *Publication, id int64) (*SocialAccount, error) {
	account, err := s.repository.GetSocialAccount(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("account %d: %w", id, err)
	}
	if account.WorkspaceID != publication.WorkspaceID {
		return nil, fmt.Errorf("account %d: %w", id, ErrAccountNotFound)
	}
	if !account.Platform.IsValid() {
		return nil, fmt.Errorf("account %d: %w: %q", id, ErrUnknownPlatform, account.Platform)
	}
	return account, nil
}

// thumbnail asks the generator for a URL. Failures leave the field nil.
func (s *service) thumbnail(ctx context.Context, publication *Publication, media rules.MediaDescriptor, variant string, at float64) *string {
	if s.thumbnails == nil || publication.PrimaryMedia() == "" {
		return nil
	}

	url, err := s.thumbnails.GenerateThumbnail(ctx, ThumbnailRequest{
		PublicationID: publication.ID,
		SourcePath:    publication.PrimaryMedia(),
		Media:         media,
		AtSeconds:     at,
		Variant:       variant,
	})
	if err != nil {
		slog.Warn("Thumbnail generation failed", "publication_id", publication.ID, "variant", variant, "error", err)
		return nil
	}
	return &url
}

// coverFrame picks the frame offset for a configuration's thumbnail.
func coverFrame(cfg *PlatformConfiguration, media rules.MediaDescriptor) float64 {
	if !media.IsVideo() {
		return 0
	}
	var at float64
	switch v := cfg.AppliedSettings["cover_frame_time"].(type) {
	case int:
		at = float64(v)
	case float64:
		at = v
	}
	if at < 0 || at >= media.DurationSeconds {
		return 0
	}
	return at
}

func (s *service) persistConfigurations(ctx context.Context, publicationID uuid.UUID, configs []*PlatformConfiguration) error {
	now := s.now().UTC()
	for _, cfg := range configs {
		if cfg.Type == "" {
			continue
		}
		err := s.repository.MergePlatformSettings(ctx, publicationID, cfg.AccountID, AccountSettings{
			Type:      cfg.Type,
			Settings:  cloneSettings(cfg.AppliedSettings),
			UpdatedAt: now,
		})
		if err != nil {
			return &PublicationError{PublicationID: publicationID, Op: "auto_optimize", Err: err}
		}
	}
	return nil
}

func (s *service) notifySettled(ctx context.Context, attempt *PublishAttempt) {
	if err := s.eventSink.PublishAttemptSettled(ctx, attempt); err != nil {
		slog.Warn("Event sink failed", "event", "publish_attempt_settled", "attempt_id", attempt.ID, "error", err)
	}
}
