package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tendant/simple-publish/pkg/simplepublish"
	"github.com/tendant/simple-publish/pkg/simplepublish/rules"
)

// DBTX is an interface that allows us to use either a database connection or a transaction
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// Repository implements simplepublish.Repository using PostgreSQL
type Repository struct {
	db DBTX
}

// New creates a new PostgreSQL repository
func New(db DBTX) simplepublish.Repository {
	return &Repository{db: db}
}

// NewWithPool creates a new PostgreSQL repository with connection pool
func NewWithPool(pool *pgxpool.Pool) simplepublish.Repository {
	return &Repository{db: pool}
}

// Error handling helper
func (r *Repository) handlePostgresError(operation string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			if strings.Contains(pgErr.ConstraintName, "publish_attempt") {
				return fmt.Errorf("%w: publish attempt already exists", simplepublish.ErrAttemptStatusConflict)
			}
			if strings.Contains(pgErr.ConstraintName, "publication") {
				return fmt.Errorf("publication already exists")
			}
			return fmt.Errorf("duplicate entry")
		case "23503": // foreign_key_violation
			return fmt.Errorf("referenced record not found")
		case "23502": // not_null_violation
			return fmt.Errorf("required field %s is missing", pgErr.ColumnName)
		case "42P01": // undefined_table
			return fmt.Errorf("table does not exist - database migration required")
		default:
			return fmt.Errorf("database error in %s: %s (code: %s)", operation, pgErr.Message, pgErr.Code)
		}
	}

	return fmt.Errorf("database error in %s: %w", operation, err)
}

// Publication operations

const publicationColumns = `id, workspace_id, title, caption, description, media_files,
	media_info, platform_settings, status, created_at, updated_at`

func (r *Repository) CreatePublication(ctx context.Context, publication *simplepublish.Publication) error {
	var mediaInfo []byte
	if publication.MediaInfo != nil {
		b, err := json.Marshal(publication.MediaInfo)
		if err != nil {
			return fmt.Errorf("encode media info: %w", err)
		}
		mediaInfo = b
	}
	settings, err := json.Marshal(nonNilSettings(publication.PlatformSettings))
	if err != nil {
		return fmt.Errorf("encode platform settings: %w", err)
	}
	mediaFiles := publication.MediaFiles
	if mediaFiles == nil {
		mediaFiles = []string{}
	}

	query := `
		INSERT INTO publication (` + publicationColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err = r.db.Exec(ctx, query,
		publication.ID, publication.WorkspaceID, publication.Title, publication.Caption,
		publication.Description, mediaFiles, mediaInfo, settings,
		string(publication.Status), publication.CreatedAt, publication.UpdatedAt)
	if err != nil {
		return r.handlePostgresError("create publication", err)
	}
	return nil
}

func (r *Repository) GetPublication(ctx context.Context, id uuid.UUID) (*simplepublish.Publication, error) {
	query := `SELECT ` + publicationColumns + ` FROM publication WHERE id = $1`

	var (
		publication simplepublish.Publication
		mediaInfo   []byte
		settings    []byte
		status      string
	)
	err := r.db.QueryRow(ctx, query, id).Scan(
		&publication.ID, &publication.WorkspaceID, &publication.Title, &publication.Caption,
		&publication.Description, &publication.MediaFiles, &mediaInfo, &settings,
		&status, &publication.CreatedAt, &publication.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, simplepublish.ErrPublicationNotFound
		}
		return nil, r.handlePostgresError("get publication", err)
	}
	publication.Status = simplepublish.PublicationStatus(status)

	if len(mediaInfo) > 0 {
		var info rules.MediaDescriptor
		if err := json.Unmarshal(mediaInfo, &info); err != nil {
			return nil, fmt.Errorf("decode media info: %w", err)
		}
		publication.MediaInfo = &info
	}
	publication.PlatformSettings = make(map[int64]simplepublish.AccountSettings)
	if len(settings) > 0 {
		if err := json.Unmarshal(settings, &publication.PlatformSettings); err != nil {
			return nil, fmt.Errorf("decode platform settings: %w", err)
		}
	}
	return &publication, nil
}

func (r *Repository) UpdatePublicationMedia(ctx context.Context, id uuid.UUID, info rules.MediaDescriptor) error {
	b, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("encode media info: %w", err)
	}
	tag, err := r.db.Exec(ctx,
		`UPDATE publication SET media_info = $2, updated_at = now() WHERE id = $1`, id, b)
	if err != nil {
		return r.handlePostgresError("update publication media", err)
	}
	if tag.RowsAffected() == 0 {
		return simplepublish.ErrPublicationNotFound
	}
	return nil
}

func (r *Repository) UpdatePublicationStatus(ctx context.Context, id uuid.UUID, status simplepublish.PublicationStatus) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE publication SET status = $2, updated_at = now() WHERE id = $1`, id, string(status))
	if err != nil {
		return r.handlePostgresError("update publication status", err)
	}
	if tag.RowsAffected() == 0 {
		return simplepublish.ErrPublicationNotFound
	}
	return nil
}

// MergePlatformSettings sets one key of the platform_settings object in a
// single statement, so concurrent updates for different accounts never
// overwrite each other.
func (r *Repository) MergePlatformSettings(ctx context.Context, id uuid.UUID, accountID int64, settings simplepublish.AccountSettings) error {
	if settings.Settings == nil {
		settings.Settings = map[string]any{}
	}
	b, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("encode account settings: %w", err)
	}

	query := `
		UPDATE publication
		SET platform_settings = jsonb_set(COALESCE(platform_settings, '{}'::jsonb), ARRAY[$2::text], $3::jsonb, true),
		    updated_at = now()
		WHERE id = $1`

	tag, err := r.db.Exec(ctx, query, id, strconv.FormatInt(accountID, 10), b)
	if err != nil {
		return r.handlePostgresError("merge platform settings", err)
	}
	if tag.RowsAffected() == 0 {
		return simplepublish.ErrPublicationNotFound
	}
	return nil
}

// Social account operations

func (r *Repository) CreateSocialAccount(ctx context.Context, account *simplepublish.SocialAccount) error {
	query := `
		INSERT INTO social_account (workspace_id, platform, account_name, created_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id`

	err := r.db.QueryRow(ctx, query,
		account.WorkspaceID, string(account.Platform), account.AccountName, account.CreatedAt,
	).Scan(&account.ID)
	if err != nil {
		return r.handlePostgresError("create social account", err)
	}
	return nil
}

func (r *Repository) GetSocialAccount(ctx context.Context, id int64) (*simplepublish.SocialAccount, error) {
	query := `
		SELECT id, workspace_id, platform, account_name, created_at
		FROM social_account WHERE id = $1`

	var (
		account  simplepublish.SocialAccount
		platform string
	)
	err := r.db.QueryRow(ctx, query, id).Scan(
		&account.ID, &account.WorkspaceID, &platform, &account.AccountName, &account.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, simplepublish.ErrAccountNotFound
		}
		return nil, r.handlePostgresError("get social account", err)
	}
	account.Platform = rules.Platform(platform)
	return &account, nil
}

// Publish attempt log

const attemptColumns = `id, publication_id, account_id, platform, content_type, settings,
	status, attempts, provider_post_id, provider_url, response, error, history,
	created_at, updated_at`

func (r *Repository) CreatePublishAttempt(ctx context.Context, attempt *simplepublish.PublishAttempt) error {
	enc, err := encodeAttempt(attempt)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO publish_attempt (` + attemptColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`

	_, err = r.db.Exec(ctx, query,
		attempt.ID, attempt.PublicationID, attempt.AccountID, string(attempt.Platform),
		string(attempt.ContentType), enc.settings, string(attempt.Status), attempt.Attempts,
		attempt.ProviderPostID, attempt.ProviderURL, enc.response, attempt.Error, enc.history,
		attempt.CreatedAt, attempt.UpdatedAt)
	if err != nil {
		return r.handlePostgresError("create publish attempt", err)
	}
	return nil
}

func (r *Repository) GetPublishAttempt(ctx context.Context, id uuid.UUID) (*simplepublish.PublishAttempt, error) {
	query := `SELECT ` + attemptColumns + ` FROM publish_attempt WHERE id = $1`
	attempt, err := scanAttempt(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, simplepublish.ErrAttemptNotFound
		}
		return nil, r.handlePostgresError("get publish attempt", err)
	}
	return attempt, nil
}

func (r *Repository) GetPublishAttemptByAccount(ctx context.Context, publicationID uuid.UUID, accountID int64) (*simplepublish.PublishAttempt, error) {
	query := `SELECT ` + attemptColumns + ` FROM publish_attempt WHERE publication_id = $1 AND account_id = $2`
	attempt, err := scanAttempt(r.db.QueryRow(ctx, query, publicationID, accountID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, simplepublish.ErrAttemptNotFound
		}
		return nil, r.handlePostgresError("get publish attempt by account", err)
	}
	return attempt, nil
}

func (r *Repository) ListPublishAttempts(ctx context.Context, publicationID uuid.UUID) ([]*simplepublish.PublishAttempt, error) {
	query := `SELECT ` + attemptColumns + ` FROM publish_attempt
		WHERE publication_id = $1 ORDER BY created_at, account_id`

	rows, err := r.db.Query(ctx, query, publicationID)
	if err != nil {
		return nil, r.handlePostgresError("list publish attempts", err)
	}
	defer rows.Close()

	attempts := []*simplepublish.PublishAttempt{}
	for rows.Next() {
		attempt, err := scanAttempt(rows)
		if err != nil {
			return nil, r.handlePostgresError("scan publish attempt", err)
		}
		attempts = append(attempts, attempt)
	}
	if err := rows.Err(); err != nil {
		return nil, r.handlePostgresError("list publish attempts", err)
	}
	return attempts, nil
}

func (r *Repository) UpdatePublishAttempt(ctx context.Context, attempt *simplepublish.PublishAttempt, expected simplepublish.AttemptStatus) error {
	enc, err := encodeAttempt(attempt)
	if err != nil {
		return err
	}

	query := `
		UPDATE publish_attempt SET
			content_type = $3, settings = $4, status = $5, attempts = $6,
			provider_post_id = $7, provider_url = $8, response = $9, error = $10,
			history = $11, updated_at = $12
		WHERE id = $1 AND status = $2`

	tag, err := r.db.Exec(ctx, query,
		attempt.ID, string(expected), string(attempt.ContentType), enc.settings,
		string(attempt.Status), attempt.Attempts, attempt.ProviderPostID, attempt.ProviderURL,
		enc.response, attempt.Error, enc.history, attempt.UpdatedAt)
	if err != nil {
		return r.handlePostgresError("update publish attempt", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var current string
	err = r.db.QueryRow(ctx, `SELECT status FROM publish_attempt WHERE id = $1`, attempt.ID).Scan(&current)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return simplepublish.ErrAttemptNotFound
		}
		return r.handlePostgresError("update publish attempt", err)
	}
	return fmt.Errorf("%w: expected %s, found %s", simplepublish.ErrAttemptStatusConflict, expected, current)
}

type encodedAttempt struct {
	settings []byte
	response []byte
	history  []byte
}

func encodeAttempt(attempt *simplepublish.PublishAttempt) (encodedAttempt, error) {
	var (
		enc encodedAttempt
		err error
	)
	settings := attempt.Settings
	if settings == nil {
		settings = map[string]any{}
	}
	if enc.settings, err = json.Marshal(settings); err != nil {
		return enc, fmt.Errorf("encode attempt settings: %w", err)
	}
	if attempt.Response != nil {
		if enc.response, err = json.Marshal(attempt.Response); err != nil {
			return enc, fmt.Errorf("encode attempt response: %w", err)
		}
	}
	history := attempt.History
	if history == nil {
		history = []simplepublish.AttemptEvent{}
	}
	if enc.history, err = json.Marshal(history); err != nil {
		return enc, fmt.Errorf("encode attempt history: %w", err)
	}
	return enc, nil
}

func scanAttempt(row pgx.Row) (*simplepublish.PublishAttempt, error) {
	var (
		attempt                 simplepublish.PublishAttempt
		platform, ctype, status string
		settings, response      []byte
		history                 []byte
	)
	err := row.Scan(
		&attempt.ID, &attempt.PublicationID, &attempt.AccountID, &platform, &ctype, &settings,
		&status, &attempt.Attempts, &attempt.ProviderPostID, &attempt.ProviderURL, &response,
		&attempt.Error, &history, &attempt.CreatedAt, &attempt.UpdatedAt)
	if err != nil {
		return nil, err
	}

	attempt.Platform = rules.Platform(platform)
	attempt.ContentType = rules.ContentType(ctype)
	attempt.Status = simplepublish.AttemptStatus(status)
	if err := json.Unmarshal(settings, &attempt.Settings); err != nil {
		return nil, fmt.Errorf("decode attempt settings: %w", err)
	}
	if len(response) > 0 {
		if err := json.Unmarshal(response, &attempt.Response); err != nil {
			return nil, fmt.Errorf("decode attempt response: %w", err)
		}
	}
	if err := json.Unmarshal(history, &attempt.History); err != nil {
		return nil, fmt.Errorf("decode attempt history: %w", err)
	}
	return &attempt, nil
}

func nonNilSettings(m map[int64]simplepublish.AccountSettings) map[int64]simplepublish.AccountSettings {
	if m == nil {
		return map[int64]simplepublish.AccountSettings{}
	}
	return m
}
