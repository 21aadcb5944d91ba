package simplepublish_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-publish/pkg/simplepublish"
	"github.com/tendant/simple-publish/pkg/simplepublish/repo/memory"
	"github.com/tendant/simple-publish/pkg/simplepublish/rules"
)

const mb = 1024 * 1024

func verticalClip() *rules.MediaDescriptor {
	d := rules.NewMediaDescriptor(rules.MediaVideo, 1080, 1920, 45, 20*mb, "mp4")
	return &d
}

func horizontalVideo(seconds float64) *rules.MediaDescriptor {
	d := rules.NewMediaDescriptor(rules.MediaVideo, 1920, 1080, seconds, 200*mb, "mp4")
	return &d
}

type fakeAnalyzer struct {
	mu    sync.Mutex
	calls int
	info  rules.MediaDescriptor
	err   error
}

func (f *fakeAnalyzer) Analyze(ctx context.Context, path string) (rules.MediaDescriptor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.info, f.err
}

type fakeThumbnails struct {
	fail map[string]bool
}

func (f *fakeThumbnails) GenerateThumbnail(ctx context.Context, req simplepublish.ThumbnailRequest) (string, error) {
	if f.fail[req.Variant] {
		return "", errors.New("ffmpeg exited with status 1")
	}
	return fmt.Sprintf("memory://publications/%s/thumbnails/%s.jpg", req.PublicationID, req.Variant), nil
}

type failingSink struct {
	*simplepublish.NoopEventSink
}

func (failingSink) PreviewGenerated(ctx context.Context, preview *simplepublish.PublicationPreview) error {
	return errors.New("sink down")
}

type testEnv struct {
	svc  simplepublish.Service
	repo simplepublish.Repository
}

func setupTestService(t *testing.T, opts ...simplepublish.Option) *testEnv {
	t.Helper()
	repo := memory.New()
	svc, err := simplepublish.New(append([]simplepublish.Option{simplepublish.WithRepository(repo)}, opts...)...)
	require.NoError(t, err)
	return &testEnv{svc: svc, repo: repo}
}

func (e *testEnv) publication(t *testing.T, media *rules.MediaDescriptor, files ...string) *simplepublish.Publication {
	t.Helper()
	if len(files) == 0 {
		files = []string{"/media/clip.mp4"}
	}
	pub, err := e.svc.CreatePublication(context.Background(), simplepublish.CreatePublicationRequest{
		WorkspaceID: 1,
		Title:       "Spring drop",
		Caption:     "New colours are live",
		MediaFiles:  files,
		MediaInfo:   media,
	})
	require.NoError(t, err)
	return pub
}

func (e *testEnv) account(t *testing.T, platform rules.Platform) int64 {
	t.Helper()
	acct, err := e.svc.CreateSocialAccount(context.Background(), simplepublish.CreateSocialAccountRequest{
		WorkspaceID: 1,
		Platform:    platform,
		AccountName: "brand-" + string(platform),
	})
	require.NoError(t, err)
	return acct.ID
}

func TestNew_RequiresRepository(t *testing.T) {
	_, err := simplepublish.New()
	assert.Error(t, err)
}

func TestGeneratePreview_InstagramVerticalShortClip(t *testing.T) {
	env := setupTestService(t)
	ctx := context.Background()
	pub := env.publication(t, verticalClip())
	ig := env.account(t, rules.Instagram)

	preview, err := env.svc.GeneratePreview(ctx, simplepublish.PreviewRequest{
		PublicationID: pub.ID,
		AccountIDs:    []int64{ig},
		AutoOptimize:  true,
	})
	require.NoError(t, err)
	require.Len(t, preview.PlatformConfigurations, 1)

	cfg := preview.PlatformConfigurations[0]
	assert.Equal(t, rules.ContentReel, cfg.Type)
	assert.True(t, cfg.IsCompatible)
	assert.Equal(t, 1, cfg.AppliedSettings["cover_frame_time"])
	assert.Equal(t, true, cfg.AppliedSettings["share_to_feed"])
	assert.Equal(t, true, cfg.AppliedSettings[rules.SettingAutoOptimized])
	assert.True(t, cfg.CanChangeType)
	assert.Equal(t, []rules.ContentType{rules.ContentFeed, rules.ContentReel, rules.ContentStory}, cfg.AvailableTypes)
	assert.Equal(t, rules.ContentReel, preview.DetectedType)

	stored, err := env.svc.GetPlatformConfigurations(ctx, pub.ID)
	require.NoError(t, err)
	require.Contains(t, stored, ig)
	assert.Equal(t, rules.ContentReel, stored[ig].Type)
	assert.Equal(t, true, stored[ig].Settings["share_to_feed"])
}

func TestGeneratePreview_YouTubeLongHorizontal(t *testing.T) {
	env := setupTestService(t)
	pub := env.publication(t, horizontalVideo(600))
	yt := env.account(t, rules.YouTube)

	for _, auto := range []bool{false, true} {
		preview, err := env.svc.GeneratePreview(context.Background(), simplepublish.PreviewRequest{
			PublicationID: pub.ID,
			AccountIDs:    []int64{yt},
			AutoOptimize:  auto,
		})
		require.NoError(t, err)
		assert.Equal(t, rules.ContentStandard, preview.PlatformConfigurations[0].Type, "auto_optimize=%v", auto)
	}
}

func TestGeneratePreview_IsIdempotentWithoutAutoOptimize(t *testing.T) {
	env := setupTestService(t)
	ctx := context.Background()
	pub := env.publication(t, verticalClip())
	ids := []int64{env.account(t, rules.Instagram), env.account(t, rules.YouTube), env.account(t, rules.TikTok)}

	req := simplepublish.PreviewRequest{PublicationID: pub.ID, AccountIDs: ids}
	first, err := env.svc.GeneratePreview(ctx, req)
	require.NoError(t, err)
	second, err := env.svc.GeneratePreview(ctx, req)
	require.NoError(t, err)

	require.Len(t, second.PlatformConfigurations, len(first.PlatformConfigurations))
	for i := range first.PlatformConfigurations {
		assert.Equal(t, first.PlatformConfigurations[i].Type, second.PlatformConfigurations[i].Type)
		assert.Equal(t, first.PlatformConfigurations[i].AvailableTypes, second.PlatformConfigurations[i].AvailableTypes)
	}

	stored, err := env.svc.GetPlatformConfigurations(ctx, pub.ID)
	require.NoError(t, err)
	assert.Empty(t, stored)
}

func TestGeneratePreview_KeepsRequestOrder(t *testing.T) {
	env := setupTestService(t)
	pub := env.publication(t, verticalClip())
	tt := env.account(t, rules.TikTok)
	ig := env.account(t, rules.Instagram)
	yt := env.account(t, rules.YouTube)

	preview, err := env.svc.GeneratePreview(context.Background(), simplepublish.PreviewRequest{
		PublicationID: pub.ID,
		AccountIDs:    []int64{tt, ig, tt, yt},
	})
	require.NoError(t, err)

	var got []rules.Platform
	for _, cfg := range preview.PlatformConfigurations {
		got = append(got, cfg.Platform)
	}
	assert.Equal(t, []rules.Platform{rules.TikTok, rules.Instagram, rules.YouTube}, got)
	assert.Equal(t, rules.ContentVideo, preview.DetectedType)
	assert.False(t, preview.PlatformConfigurations[0].CanChangeType)
	assert.NotNil(t, preview.OptimizationSuggestions)
}

func TestGeneratePreview_ThumbnailFailureLeavesFieldNil(t *testing.T) {
	env := setupTestService(t)
	pub := env.publication(t, verticalClip())
	ig := env.account(t, rules.Instagram)
	fb := env.account(t, rules.Facebook)

	svc, err := simplepublish.New(
		simplepublish.WithRepository(env.repo),
		simplepublish.WithThumbnailGenerator(&fakeThumbnails{fail: map[string]bool{fmt.Sprint(fb): true}}),
		simplepublish.WithEventSink(failingSink{&simplepublish.NoopEventSink{}}),
	)
	require.NoError(t, err)

	preview, err := svc.GeneratePreview(context.Background(), simplepublish.PreviewRequest{
		PublicationID: pub.ID,
		AccountIDs:    []int64{ig, fb},
	})
	require.NoError(t, err)

	require.NotNil(t, preview.MainThumbnail)
	assert.Contains(t, *preview.MainThumbnail, "main.jpg")
	require.NotNil(t, preview.PlatformConfigurations[0].ThumbnailURL)
	assert.Nil(t, preview.PlatformConfigurations[1].ThumbnailURL)
}

func TestGeneratePreview_UsesAnalyzerAndCachesResult(t *testing.T) {
	analyzer := &fakeAnalyzer{info: *horizontalVideo(30)}
	env := setupTestService(t, simplepublish.WithMediaAnalyzer(analyzer))
	ctx := context.Background()
	pub := env.publication(t, nil)
	tw := env.account(t, rules.Twitter)

	for i := 0; i < 2; i++ {
		preview, err := env.svc.GeneratePreview(ctx, simplepublish.PreviewRequest{PublicationID: pub.ID, AccountIDs: []int64{tw}})
		require.NoError(t, err)
		assert.Equal(t, "16:9", preview.MediaInfo.AspectRatio)
	}
	assert.Equal(t, 1, analyzer.calls)

	stored, err := env.svc.GetPublication(ctx, pub.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.MediaInfo)
}

func TestGeneratePreview_Errors(t *testing.T) {
	ctx := context.Background()

	t.Run("analyzer failure", func(t *testing.T) {
		env := setupTestService(t, simplepublish.WithMediaAnalyzer(&fakeAnalyzer{err: errors.New("moov atom not found")}))
		pub := env.publication(t, nil)
		id := env.account(t, rules.TikTok)

		_, err := env.svc.GeneratePreview(ctx, simplepublish.PreviewRequest{PublicationID: pub.ID, AccountIDs: []int64{id}})
		assert.ErrorIs(t, err, simplepublish.ErrMediaUnavailable)
	})

	t.Run("no analyzer and no cached media", func(t *testing.T) {
		env := setupTestService(t)
		pub := env.publication(t, nil)
		id := env.account(t, rules.TikTok)

		_, err := env.svc.GeneratePreview(ctx, simplepublish.PreviewRequest{PublicationID: pub.ID, AccountIDs: []int64{id}})
		assert.ErrorIs(t, err, simplepublish.ErrMediaUnavailable)
	})

	t.Run("account from another workspace", func(t *testing.T) {
		env := setupTestService(t)
		pub := env.publication(t, verticalClip())
		foreign, err := env.svc.CreateSocialAccount(ctx, simplepublish.CreateSocialAccountRequest{
			WorkspaceID: 2, Platform: rules.Instagram, AccountName: "competitor",
		})
		require.NoError(t, err)

		_, err = env.svc.GeneratePreview(ctx, simplepublish.PreviewRequest{PublicationID: pub.ID, AccountIDs: []int64{foreign.ID}})
		assert.ErrorIs(t, err, simplepublish.ErrAccountNotFound)
	})

	t.Run("unknown publication", func(t *testing.T) {
		env := setupTestService(t)
		_, err := env.svc.GeneratePreview(ctx, simplepublish.PreviewRequest{PublicationID: uuid.New(), AccountIDs: []int64{1}})
		assert.ErrorIs(t, err, simplepublish.ErrPublicationNotFound)
	})

	t.Run("no accounts", func(t *testing.T) {
		env := setupTestService(t)
		pub := env.publication(t, verticalClip())
		_, err := env.svc.GeneratePreview(ctx, simplepublish.PreviewRequest{PublicationID: pub.ID})
		assert.ErrorIs(t, err, simplepublish.ErrInvalidRequest)
	})
}

func TestGeneratePreview_ImageOnVideoOnlyPlatform(t *testing.T) {
	env := setupTestService(t)
	img := rules.NewMediaDescriptor(rules.MediaImage, 1080, 1080, 0, 2*mb, "jpg")
	pub := env.publication(t, &img, "/media/photo.jpg")
	tt := env.account(t, rules.TikTok)

	preview, err := env.svc.GeneratePreview(context.Background(), simplepublish.PreviewRequest{
		PublicationID: pub.ID,
		AccountIDs:    []int64{tt},
		AutoOptimize:  true,
	})
	require.NoError(t, err)

	cfg := preview.PlatformConfigurations[0]
	assert.Empty(t, cfg.Type)
	assert.Empty(t, cfg.AvailableTypes)
	assert.False(t, cfg.IsCompatible)
	assert.NotEmpty(t, cfg.IncompatibilityReason)
	require.Len(t, preview.GlobalWarnings, 1)
	assert.Contains(t, preview.GlobalWarnings[0], "tiktok does not accept image posts")
}

func TestUpdatePlatformConfiguration(t *testing.T) {
	ctx := context.Background()

	t.Run("rejects type the platform does not offer", func(t *testing.T) {
		env := setupTestService(t)
		pub := env.publication(t, verticalClip())
		fb := env.account(t, rules.Facebook)

		_, err := env.svc.UpdatePlatformConfiguration(ctx, simplepublish.UpdatePlatformConfigRequest{
			PublicationID:  pub.ID,
			AccountID:      fb,
			Type:           rules.ContentShort,
			CustomSettings: map[string]any{},
		})
		require.ErrorIs(t, err, simplepublish.ErrTypeNotAvailable)

		var typeErr *simplepublish.TypeNotAvailableError
		require.ErrorAs(t, err, &typeErr)
		assert.Equal(t, rules.Facebook, typeErr.Platform)
		assert.Contains(t, err.Error(), "not available")

		stored, err := env.svc.GetPlatformConfigurations(ctx, pub.ID)
		require.NoError(t, err)
		assert.Empty(t, stored)
	})

	t.Run("requires a type", func(t *testing.T) {
		env := setupTestService(t)
		pub := env.publication(t, verticalClip())
		ig := env.account(t, rules.Instagram)

		_, err := env.svc.UpdatePlatformConfiguration(ctx, simplepublish.UpdatePlatformConfigRequest{
			PublicationID: pub.ID,
			AccountID:     ig,
		})
		require.ErrorIs(t, err, simplepublish.ErrInvalidRequest)
		var typeErr *simplepublish.TypeNotAvailableError
		assert.False(t, errors.As(err, &typeErr))

		stored, err := env.svc.GetPlatformConfigurations(ctx, pub.ID)
		require.NoError(t, err)
		assert.Empty(t, stored)
	})

	t.Run("validates the requested type", func(t *testing.T) {
		env := setupTestService(t)
		pub := env.publication(t, verticalClip())
		ig := env.account(t, rules.Instagram)

		cfg, err := env.svc.UpdatePlatformConfiguration(ctx, simplepublish.UpdatePlatformConfigRequest{
			PublicationID:  pub.ID,
			AccountID:      ig,
			Type:           rules.ContentFeed,
			CustomSettings: map[string]any{"location": "Berlin"},
		})
		require.NoError(t, err)
		assert.Equal(t, rules.ContentFeed, cfg.Type)
		assert.True(t, cfg.IsCompatible)
		assert.NotEmpty(t, cfg.Warnings)
		assert.Equal(t, "Berlin", cfg.AppliedSettings["location"])
		require.NotEmpty(t, cfg.Recommendations)
		assert.Contains(t, cfg.Recommendations[0], "Reel")

		preview, err := env.svc.GeneratePreview(ctx, simplepublish.PreviewRequest{PublicationID: pub.ID, AccountIDs: []int64{ig}})
		require.NoError(t, err)
		assert.Equal(t, rules.ContentFeed, preview.PlatformConfigurations[0].Type)
		assert.Equal(t, "Berlin", preview.PlatformConfigurations[0].AppliedSettings["location"])
	})

	t.Run("incompatible type is stored with its errors", func(t *testing.T) {
		env := setupTestService(t)
		pub := env.publication(t, verticalClip())
		ig := env.account(t, rules.Instagram)

		cfg, err := env.svc.UpdatePlatformConfiguration(ctx, simplepublish.UpdatePlatformConfigRequest{
			PublicationID: pub.ID,
			AccountID:     ig,
			Type:          rules.ContentStory,
		})
		require.NoError(t, err)
		assert.True(t, cfg.IsCompatible, cfg.IncompatibilityReason)

		long := horizontalVideo(600)
		pub2 := env.publication(t, long)
		cfg, err = env.svc.UpdatePlatformConfiguration(ctx, simplepublish.UpdatePlatformConfigRequest{
			PublicationID: pub2.ID,
			AccountID:     ig,
			Type:          rules.ContentStory,
		})
		require.NoError(t, err)
		assert.False(t, cfg.IsCompatible)
		assert.Contains(t, cfg.IncompatibilityReason, "maximum")
	})

	t.Run("updates are isolated per account", func(t *testing.T) {
		env := setupTestService(t)
		pub := env.publication(t, verticalClip())
		ig := env.account(t, rules.Instagram)
		yt := env.account(t, rules.YouTube)

		_, err := env.svc.UpdatePlatformConfiguration(ctx, simplepublish.UpdatePlatformConfigRequest{
			PublicationID: pub.ID, AccountID: ig, Type: rules.ContentReel,
			CustomSettings: map[string]any{"share_to_feed": false},
		})
		require.NoError(t, err)
		_, err = env.svc.UpdatePlatformConfiguration(ctx, simplepublish.UpdatePlatformConfigRequest{
			PublicationID: pub.ID, AccountID: yt, Type: rules.ContentShort,
			CustomSettings: map[string]any{"privacy": "unlisted"},
		})
		require.NoError(t, err)

		stored, err := env.svc.GetPlatformConfigurations(ctx, pub.ID)
		require.NoError(t, err)
		require.Len(t, stored, 2)
		assert.Equal(t, rules.ContentReel, stored[ig].Type)
		assert.Equal(t, map[string]any{"share_to_feed": false}, stored[ig].Settings)
		assert.Equal(t, rules.ContentShort, stored[yt].Type)
	})
}

func TestConfigurator_OptimizeRespectsAvailability(t *testing.T) {
	// instagram only offers feed video here, so the reel heuristic must not apply
	doc := `instagram:
  image: []
  video:
    - {type: feed, max_size_mb: 100}
facebook: {image: [], video: []}
youtube: {image: [], video: []}
tiktok: {image: [], video: []}
twitter: {image: [], video: []}
linkedin: {image: [], video: []}
`
	table, err := rules.Parse([]byte(doc))
	require.NoError(t, err)

	c := simplepublish.NewConfigurator(table, nil)
	media := *verticalClip()
	pv, err := table.ValidatePublication(media, []rules.Platform{rules.Instagram})
	require.NoError(t, err)
	result, _ := pv.Result(rules.Instagram)

	account := &simplepublish.SocialAccount{ID: 1, Platform: rules.Instagram, AccountName: "brand"}
	cfg := c.OptimizeConfiguration(c.BuildConfiguration(account, media, result, nil), media)

	assert.Equal(t, rules.ContentFeed, cfg.Type)
	assert.Equal(t, true, cfg.AppliedSettings[rules.SettingAutoOptimized])
	assert.Contains(t, cfg.AppliedSettings, rules.SettingOptimizationTimestamp)
}

func TestConfigurator_ImagesAreNotOptimized(t *testing.T) {
	c := simplepublish.NewConfigurator(rules.Default(), nil)
	img := rules.NewMediaDescriptor(rules.MediaImage, 1080, 1080, 0, mb, "jpg")
	cfg := &simplepublish.PlatformConfiguration{
		Platform:        rules.Instagram,
		Type:            rules.ContentFeed,
		AppliedSettings: map[string]any{},
		AvailableTypes:  []rules.ContentType{rules.ContentFeed, rules.ContentStory},
	}
	assert.Same(t, cfg, c.OptimizeConfiguration(cfg, img))
}

func TestPublication_MergeAccountSettings(t *testing.T) {
	pub := &simplepublish.Publication{}
	pub.MergeAccountSettings(1, simplepublish.AccountSettings{Type: rules.ContentReel, Settings: map[string]any{"a": 1}})
	pub.MergeAccountSettings(2, simplepublish.AccountSettings{Type: rules.ContentShort})

	before, ok := pub.AccountSettingsFor(1)
	require.True(t, ok)
	pub.MergeAccountSettings(2, simplepublish.AccountSettings{Type: rules.ContentStandard, Settings: map[string]any{"b": 2}})
	after, ok := pub.AccountSettingsFor(1)
	require.True(t, ok)

	assert.Equal(t, before, after)
	assert.Equal(t, rules.ContentStandard, pub.PlatformSettings[2].Type)
	assert.NotNil(t, pub.PlatformSettings[2].Settings)
	assert.False(t, pub.PlatformSettings[2].UpdatedAt.IsZero())
}

func TestCreateSocialAccount_Validation(t *testing.T) {
	env := setupTestService(t)
	ctx := context.Background()

	_, err := env.svc.CreateSocialAccount(ctx, simplepublish.CreateSocialAccountRequest{Platform: "myspace", AccountName: "x"})
	assert.ErrorIs(t, err, simplepublish.ErrUnknownPlatform)

	_, err = env.svc.CreateSocialAccount(ctx, simplepublish.CreateSocialAccountRequest{Platform: rules.Twitter, AccountName: " "})
	assert.ErrorIs(t, err, simplepublish.ErrInvalidRequest)
}
