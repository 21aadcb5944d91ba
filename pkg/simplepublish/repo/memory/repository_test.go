package memory_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-publish/pkg/simplepublish"
	"github.com/tendant/simple-publish/pkg/simplepublish/repo/memory"
	"github.com/tendant/simple-publish/pkg/simplepublish/rules"
)

func newPublication(t *testing.T, repo simplepublish.Repository) *simplepublish.Publication {
	t.Helper()
	now := time.Now().UTC()
	pub := &simplepublish.Publication{
		ID:               uuid.New(),
		WorkspaceID:      7,
		Title:            "Launch teaser",
		MediaFiles:       []string{"/media/teaser.mp4"},
		PlatformSettings: map[int64]simplepublish.AccountSettings{},
		Status:           simplepublish.PublicationStatusDraft,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	require.NoError(t, repo.CreatePublication(context.Background(), pub))
	return pub
}

func TestMemoryRepository_Publications(t *testing.T) {
	repo := memory.New()
	ctx := context.Background()

	t.Run("GetPublication returns a copy", func(t *testing.T) {
		pub := newPublication(t, repo)

		got, err := repo.GetPublication(ctx, pub.ID)
		require.NoError(t, err)
		got.MediaFiles[0] = "/tmp/changed.mp4"
		got.Title = "changed"

		again, err := repo.GetPublication(ctx, pub.ID)
		require.NoError(t, err)
		assert.Equal(t, "Launch teaser", again.Title)
		assert.Equal(t, "/media/teaser.mp4", again.MediaFiles[0])
	})

	t.Run("missing publication", func(t *testing.T) {
		_, err := repo.GetPublication(ctx, uuid.New())
		assert.ErrorIs(t, err, simplepublish.ErrPublicationNotFound)
		assert.ErrorIs(t, repo.UpdatePublicationStatus(ctx, uuid.New(), simplepublish.PublicationStatusPublished), simplepublish.ErrPublicationNotFound)
	})

	t.Run("media and status updates", func(t *testing.T) {
		pub := newPublication(t, repo)
		info := rules.NewMediaDescriptor(rules.MediaVideo, 1080, 1920, 45, 1<<20, "mp4")

		require.NoError(t, repo.UpdatePublicationMedia(ctx, pub.ID, info))
		require.NoError(t, repo.UpdatePublicationStatus(ctx, pub.ID, simplepublish.PublicationStatusPublishing))

		got, err := repo.GetPublication(ctx, pub.ID)
		require.NoError(t, err)
		require.NotNil(t, got.MediaInfo)
		assert.Equal(t, "9:16", got.MediaInfo.AspectRatio)
		assert.Equal(t, simplepublish.PublicationStatusPublishing, got.Status)
	})
}

func TestMemoryRepository_MergePlatformSettingsIsolation(t *testing.T) {
	repo := memory.New()
	ctx := context.Background()
	pub := newPublication(t, repo)

	require.NoError(t, repo.MergePlatformSettings(ctx, pub.ID, 1, simplepublish.AccountSettings{
		Type:     rules.ContentReel,
		Settings: map[string]any{"share_to_feed": true},
	}))
	require.NoError(t, repo.MergePlatformSettings(ctx, pub.ID, 2, simplepublish.AccountSettings{
		Type:     rules.ContentShort,
		Settings: map[string]any{"privacy": "unlisted"},
	}))
	require.NoError(t, repo.MergePlatformSettings(ctx, pub.ID, 1, simplepublish.AccountSettings{
		Type:     rules.ContentStory,
		Settings: map[string]any{"duration": 10.0},
	}))

	got, err := repo.GetPublication(ctx, pub.ID)
	require.NoError(t, err)
	require.Len(t, got.PlatformSettings, 2)
	assert.Equal(t, rules.ContentStory, got.PlatformSettings[1].Type)
	assert.Equal(t, map[string]any{"duration": 10.0}, got.PlatformSettings[1].Settings)
	assert.Equal(t, rules.ContentShort, got.PlatformSettings[2].Type)
	assert.Equal(t, map[string]any{"privacy": "unlisted"}, got.PlatformSettings[2].Settings)
	assert.False(t, got.PlatformSettings[2].UpdatedAt.IsZero())

	err = repo.MergePlatformSettings(ctx, uuid.New(), 1, simplepublish.AccountSettings{Type: rules.ContentReel})
	assert.ErrorIs(t, err, simplepublish.ErrPublicationNotFound)
}

func TestMemoryRepository_SocialAccounts(t *testing.T) {
	repo := memory.New()
	ctx := context.Background()

	first := &simplepublish.SocialAccount{Platform: rules.Instagram, AccountName: "brand", WorkspaceID: 7}
	second := &simplepublish.SocialAccount{Platform: rules.TikTok, AccountName: "brand.tt", WorkspaceID: 7}
	require.NoError(t, repo.CreateSocialAccount(ctx, first))
	require.NoError(t, repo.CreateSocialAccount(ctx, second))
	assert.Equal(t, int64(1), first.ID)
	assert.Equal(t, int64(2), second.ID)

	got, err := repo.GetSocialAccount(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, rules.TikTok, got.Platform)

	_, err = repo.GetSocialAccount(ctx, 99)
	assert.ErrorIs(t, err, simplepublish.ErrAccountNotFound)

	assert.Error(t, repo.CreateSocialAccount(ctx, &simplepublish.SocialAccount{ID: 1, Platform: rules.Twitter}))
}

func TestMemoryRepository_PublishAttempts(t *testing.T) {
	repo := memory.New()
	ctx := context.Background()
	pub := newPublication(t, repo)

	now := time.Now().UTC()
	attempt := &simplepublish.PublishAttempt{
		ID:            uuid.New(),
		PublicationID: pub.ID,
		AccountID:     3,
		Platform:      rules.TikTok,
		ContentType:   rules.ContentVideo,
		Status:        simplepublish.AttemptStatusPending,
		Attempts:      1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	require.NoError(t, repo.CreatePublishAttempt(ctx, attempt))

	t.Run("one row per account", func(t *testing.T) {
		dup := *attempt
		dup.ID = uuid.New()
		assert.ErrorIs(t, repo.CreatePublishAttempt(ctx, &dup), simplepublish.ErrAttemptStatusConflict)
	})

	t.Run("lookup by account", func(t *testing.T) {
		got, err := repo.GetPublishAttemptByAccount(ctx, pub.ID, 3)
		require.NoError(t, err)
		assert.Equal(t, attempt.ID, got.ID)

		_, err = repo.GetPublishAttemptByAccount(ctx, pub.ID, 4)
		assert.ErrorIs(t, err, simplepublish.ErrAttemptNotFound)
	})

	t.Run("conditional update", func(t *testing.T) {
		settled := attempt.Clone()
		settled.Status = simplepublish.AttemptStatusPublished
		require.NoError(t, repo.UpdatePublishAttempt(ctx, settled, simplepublish.AttemptStatusPending))

		stale := attempt.Clone()
		stale.Status = simplepublish.AttemptStatusFailed
		err := repo.UpdatePublishAttempt(ctx, stale, simplepublish.AttemptStatusPending)
		assert.ErrorIs(t, err, simplepublish.ErrAttemptStatusConflict)

		got, err := repo.GetPublishAttempt(ctx, attempt.ID)
		require.NoError(t, err)
		assert.Equal(t, simplepublish.AttemptStatusPublished, got.Status)
	})

	t.Run("list", func(t *testing.T) {
		list, err := repo.ListPublishAttempts(ctx, pub.ID)
		require.NoError(t, err)
		assert.Len(t, list, 1)

		list, err = repo.ListPublishAttempts(ctx, uuid.New())
		require.NoError(t, err)
		assert.Empty(t, list)
	})
}

func TestMemoryRepository_ConcurrentConditionalUpdates(t *testing.T) {
	repo := memory.New()
	ctx := context.Background()
	pub := newPublication(t, repo)

	attempt := &simplepublish.PublishAttempt{
		ID:            uuid.New(),
		PublicationID: pub.ID,
		AccountID:     1,
		Status:        simplepublish.AttemptStatusPending,
	}
	require.NoError(t, repo.CreatePublishAttempt(ctx, attempt))

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			next := attempt.Clone()
			next.Status = simplepublish.AttemptStatusCancelled
			if repo.UpdatePublishAttempt(ctx, next, simplepublish.AttemptStatusPending) == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
}
