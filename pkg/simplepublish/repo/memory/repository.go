package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/simple-publish/pkg/simplepublish"
	"github.com/tendant/simple-publish/pkg/simplepublish/rules"
)

type attemptKey struct {
	publicationID uuid.UUID
	accountID     int64
}

// Repository implements simplepublish.Repository using in-memory storage
type Repository struct {
	mu               sync.RWMutex
	publications     map[uuid.UUID]*simplepublish.Publication
	accounts         map[int64]*simplepublish.SocialAccount
	attempts         map[uuid.UUID]*simplepublish.PublishAttempt
	attemptByAccount map[attemptKey]uuid.UUID
	nextAccountID    int64
}

// New creates a new in-memory repository
func New() simplepublish.Repository {
	return &Repository{
		publications:     make(map[uuid.UUID]*simplepublish.Publication),
		accounts:         make(map[int64]*simplepublish.SocialAccount),
		attempts:         make(map[uuid.UUID]*simplepublish.PublishAttempt),
		attemptByAccount: make(map[attemptKey]uuid.UUID),
	}
}

// Publication operations

func (r *Repository) CreatePublication(ctx context.Context, publication *simplepublish.Publication) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.publications[publication.ID]; exists {
		return fmt.Errorf("publication already exists")
	}
	r.publications[publication.ID] = publication.Clone()
	return nil
}

func (r *Repository) GetPublication(ctx context.Context, id uuid.UUID) (*simplepublish.Publication, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	publication, exists := r.publications[id]
	if !exists {
		return nil, simplepublish.ErrPublicationNotFound
	}
	return publication.Clone(), nil
}

func (r *Repository) UpdatePublicationMedia(ctx context.Context, id uuid.UUID, info rules.MediaDescriptor) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	publication, exists := r.publications[id]
	if !exists {
		return simplepublish.ErrPublicationNotFound
	}
	publication.MediaInfo = &info
	publication.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *Repository) UpdatePublicationStatus(ctx context.Context, id uuid.UUID, status simplepublish.PublicationStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	publication, exists := r.publications[id]
	if !exists {
		return simplepublish.ErrPublicationNotFound
	}
	publication.Status = status
	publication.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *Repository) MergePlatformSettings(ctx context.Context, id uuid.UUID, accountID int64, settings simplepublish.AccountSettings) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	publication, exists := r.publications[id]
	if !exists {
		return simplepublish.ErrPublicationNotFound
	}
	publication.MergeAccountSettings(accountID, settings)
	publication.UpdatedAt = time.Now().UTC()
	return nil
}

// Social account operations

func (r *Repository) CreateSocialAccount(ctx context.Context, account *simplepublish.SocialAccount) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if account.ID == 0 {
		r.nextAccountID++
		account.ID = r.nextAccountID
	} else if account.ID > r.nextAccountID {
		r.nextAccountID = account.ID
	}
	if _, exists := r.accounts[account.ID]; exists {
		return fmt.Errorf("social account already exists")
	}

	accountCopy := *account
	r.accounts[account.ID] = &accountCopy
	return nil
}

func (r *Repository) GetSocialAccount(ctx context.Context, id int64) (*simplepublish.SocialAccount, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	account, exists := r.accounts[id]
	if !exists {
		return nil, simplepublish.ErrAccountNotFound
	}
	accountCopy := *account
	return &accountCopy, nil
}

// Publish attempt log

func (r *Repository) CreatePublishAttempt(ctx context.Context, attempt *simplepublish.PublishAttempt) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.publications[attempt.PublicationID]; !exists {
		return simplepublish.ErrPublicationNotFound
	}
	key := attemptKey{attempt.PublicationID, attempt.AccountID}
	if _, exists := r.attemptByAccount[key]; exists {
		return fmt.Errorf("%w: publish attempt already exists for account %d", simplepublish.ErrAttemptStatusConflict, attempt.AccountID)
	}

	r.attempts[attempt.ID] = attempt.Clone()
	r.attemptByAccount[key] = attempt.ID
	return nil
}

func (r *Repository) GetPublishAttempt(ctx context.Context, id uuid.UUID) (*simplepublish.PublishAttempt, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	attempt, exists := r.attempts[id]
	if !exists {
		return nil, simplepublish.ErrAttemptNotFound
	}
	return attempt.Clone(), nil
}

func (r *Repository) GetPublishAttemptByAccount(ctx context.Context, publicationID uuid.UUID, accountID int64) (*simplepublish.PublishAttempt, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, exists := r.attemptByAccount[attemptKey{publicationID, accountID}]
	if !exists {
		return nil, simplepublish.ErrAttemptNotFound
	}
	return r.attempts[id].Clone(), nil
}

func (r *Repository) ListPublishAttempts(ctx context.Context, publicationID uuid.UUID) ([]*simplepublish.PublishAttempt, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := []*simplepublish.PublishAttempt{}
	for _, attempt := range r.attempts {
		if attempt.PublicationID == publicationID {
			result = append(result, attempt.Clone())
		}
	}

	// Oldest first, account id breaks ties
	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].AccountID < result[j].AccountID
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

func (r *Repository) UpdatePublishAttempt(ctx context.Context, attempt *simplepublish.PublishAttempt, expected simplepublish.AttemptStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, exists := r.attempts[attempt.ID]
	if !exists {
		return simplepublish.ErrAttemptNotFound
	}
	if stored.Status != expected {
		return fmt.Errorf("%w: expected %s, found %s", simplepublish.ErrAttemptStatusConflict, expected, stored.Status)
	}
	r.attempts[attempt.ID] = attempt.Clone()
	return nil
}
