package postgres_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/tendant/simple-publish/pkg/simplepublish"
	"github.com/tendant/simple-publish/pkg/simplepublish/repo/postgres"
	"github.com/tendant/simple-publish/pkg/simplepublish/rules"
)

func startPostgres(ctx context.Context, t *testing.T) *pgxpool.Pool {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping postgres integration test in short mode")
	}

	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_PASSWORD": "postgres",
			"POSTGRES_USER":     "postgres",
			"POSTGRES_DB":       "publish",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Skipf("cannot start postgres container: %v", err)
	}
	t.Cleanup(func() {
		termCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = container.Terminate(termCtx)
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	dsn := fmt.Sprintf("postgres://postgres:postgres@%s:%s/publish?sslmode=disable", host, port.Port())
	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	applyMigrations(ctx, t, pool)
	return pool
}

func applyMigrations(ctx context.Context, t *testing.T, pool *pgxpool.Pool) {
	t.Helper()

	dir := filepath.Join("..", "..", "..", "..", "migrations", "postgres")
	files, err := os.ReadDir(dir)
	require.NoError(t, err)

	var paths []string
	for _, f := range files {
		if !f.IsDir() && filepath.Ext(f.Name()) == ".sql" {
			paths = append(paths, filepath.Join(dir, f.Name()))
		}
	}
	sort.Strings(paths)

	for _, p := range paths {
		sqlBytes, err := os.ReadFile(p)
		require.NoError(t, err)
		_, err = pool.Exec(ctx, string(sqlBytes))
		require.NoErrorf(t, err, "apply migration %s", filepath.Base(p))
	}
}

func TestPostgresRepository(t *testing.T) {
	ctx := context.Background()
	pool := startPostgres(ctx, t)
	repo := postgres.NewWithPool(pool)

	now := time.Now().UTC().Truncate(time.Microsecond)

	account := &simplepublish.SocialAccount{Platform: rules.Instagram, AccountName: "brand", WorkspaceID: 7, CreatedAt: now}
	require.NoError(t, repo.CreateSocialAccount(ctx, account))
	require.NotZero(t, account.ID)
	other := &simplepublish.SocialAccount{Platform: rules.YouTube, AccountName: "brand tv", WorkspaceID: 7, CreatedAt: now}
	require.NoError(t, repo.CreateSocialAccount(ctx, other))

	pub := &simplepublish.Publication{
		ID:          uuid.New(),
		WorkspaceID: 7,
		Title:       "Launch teaser",
		Caption:     "Coming soon",
		MediaFiles:  []string{"/media/teaser.mp4", "/media/teaser-alt.mp4"},
		Status:      simplepublish.PublicationStatusDraft,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	require.NoError(t, repo.CreatePublication(ctx, pub))

	t.Run("publication round trip", func(t *testing.T) {
		got, err := repo.GetPublication(ctx, pub.ID)
		require.NoError(t, err)
		assert.Equal(t, pub.Title, got.Title)
		assert.Equal(t, pub.MediaFiles, got.MediaFiles)
		assert.Nil(t, got.MediaInfo)
		assert.Empty(t, got.PlatformSettings)

		_, err = repo.GetPublication(ctx, uuid.New())
		assert.ErrorIs(t, err, simplepublish.ErrPublicationNotFound)
	})

	t.Run("media info cache", func(t *testing.T) {
		info := rules.NewMediaDescriptor(rules.MediaVideo, 1080, 1920, 45, 20<<20, "mp4")
		require.NoError(t, repo.UpdatePublicationMedia(ctx, pub.ID, info))

		got, err := repo.GetPublication(ctx, pub.ID)
		require.NoError(t, err)
		require.NotNil(t, got.MediaInfo)
		assert.Equal(t, info, *got.MediaInfo)
	})

	t.Run("merge keeps other accounts", func(t *testing.T) {
		require.NoError(t, repo.MergePlatformSettings(ctx, pub.ID, account.ID, simplepublish.AccountSettings{
			Type: rules.ContentReel, Settings: map[string]any{"share_to_feed": true}, UpdatedAt: now,
		}))
		require.NoError(t, repo.MergePlatformSettings(ctx, pub.ID, other.ID, simplepublish.AccountSettings{
			Type: rules.ContentShort, Settings: map[string]any{"privacy": "unlisted"}, UpdatedAt: now,
		}))
		require.NoError(t, repo.MergePlatformSettings(ctx, pub.ID, account.ID, simplepublish.AccountSettings{
			Type: rules.ContentStory, Settings: map[string]any{"duration": 10}, UpdatedAt: now,
		}))

		got, err := repo.GetPublication(ctx, pub.ID)
		require.NoError(t, err)
		require.Len(t, got.PlatformSettings, 2)
		assert.Equal(t, rules.ContentStory, got.PlatformSettings[account.ID].Type)
		assert.Equal(t, map[string]any{"duration": float64(10)}, got.PlatformSettings[account.ID].Settings)
		assert.Equal(t, rules.ContentShort, got.PlatformSettings[other.ID].Type)
		assert.Equal(t, "unlisted", got.PlatformSettings[other.ID].Settings["privacy"])

		err = repo.MergePlatformSettings(ctx, uuid.New(), account.ID, simplepublish.AccountSettings{Type: rules.ContentReel})
		assert.ErrorIs(t, err, simplepublish.ErrPublicationNotFound)
	})

	t.Run("publish attempt log", func(t *testing.T) {
		attempt := &simplepublish.PublishAttempt{
			ID:            uuid.New(),
			PublicationID: pub.ID,
			AccountID:     account.ID,
			Platform:      rules.Instagram,
			ContentType:   rules.ContentReel,
			Settings:      map[string]any{"share_to_feed": true},
			Status:        simplepublish.AttemptStatusPending,
			Attempts:      1,
			History: []simplepublish.AttemptEvent{{
				At: now, Status: simplepublish.AttemptStatusPending, Attempt: 1, Message: "publish started",
			}},
			CreatedAt: now,
			UpdatedAt: now,
		}
		require.NoError(t, repo.CreatePublishAttempt(ctx, attempt))

		dup := attempt.Clone()
		dup.ID = uuid.New()
		assert.ErrorIs(t, repo.CreatePublishAttempt(ctx, dup), simplepublish.ErrAttemptStatusConflict)

		byAccount, err := repo.GetPublishAttemptByAccount(ctx, pub.ID, account.ID)
		require.NoError(t, err)
		assert.Equal(t, attempt.ID, byAccount.ID)
		assert.Len(t, byAccount.History, 1)

		settled := attempt.Clone()
		settled.Status = simplepublish.AttemptStatusPublished
		settled.ProviderPostID = "17890"
		settled.Response = map[string]any{"files": []any{map[string]any{"file": "/media/teaser.mp4"}}}
		require.NoError(t, repo.UpdatePublishAttempt(ctx, settled, simplepublish.AttemptStatusPending))

		stale := attempt.Clone()
		stale.Status = simplepublish.AttemptStatusCancelled
		err = repo.UpdatePublishAttempt(ctx, stale, simplepublish.AttemptStatusPending)
		assert.ErrorIs(t, err, simplepublish.ErrAttemptStatusConflict)

		missing := attempt.Clone()
		missing.ID = uuid.New()
		assert.ErrorIs(t, repo.UpdatePublishAttempt(ctx, missing, simplepublish.AttemptStatusPending), simplepublish.ErrAttemptNotFound)

		got, err := repo.GetPublishAttempt(ctx, attempt.ID)
		require.NoError(t, err)
		assert.Equal(t, simplepublish.AttemptStatusPublished, got.Status)
		assert.Equal(t, "17890", got.ProviderPostID)
		assert.NotNil(t, got.Response["files"])

		list, err := repo.ListPublishAttempts(ctx, pub.ID)
		require.NoError(t, err)
		assert.Len(t, list, 1)
	})

	t.Run("status update", func(t *testing.T) {
		require.NoError(t, repo.UpdatePublicationStatus(ctx, pub.ID, simplepublish.PublicationStatusPublished))
		got, err := repo.GetPublication(ctx, pub.ID)
		require.NoError(t, err)
		assert.Equal(t, simplepublish.PublicationStatusPublished, got.Status)
	})

	t.Run("unknown account", func(t *testing.T) {
		_, err := repo.GetSocialAccount(ctx, 424242)
		assert.ErrorIs(t, err, simplepublish.ErrAccountNotFound)
	})
}
