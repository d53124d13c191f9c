package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"supportcore/internal/cache"
	"supportcore/internal/models"
)

// CustomerStore reads platform customers from the read-only platform store.
// Found records are cached per mailbox and email.
type CustomerStore struct {
	db    *sqlx.DB
	cache *cache.Cache[*models.PlatformCustomer]
}

// NewCustomerStore creates a customer store; a non-positive ttl disables caching
func NewCustomerStore(db *sqlx.DB, ttl time.Duration) *CustomerStore {
	store := &CustomerStore{db: db}
	if ttl > 0 {
		store.cache = cache.New[*models.PlatformCustomer](ttl)
	}
	return store
}

// GetPlatformCustomer returns the customer record for an email within a mailbox
func (s *CustomerStore) GetPlatformCustomer(ctx context.Context, mailboxID int64, email string) (*models.PlatformCustomer, error) {
	key := fmt.Sprintf("%d:%s", mailboxID, strings.ToLower(email))
	load := func(ctx context.Context) (*models.PlatformCustomer, error) {
		return s.fetch(ctx, mailboxID, email)
	}

	if s.cache == nil {
		return load(ctx)
	}
	return s.cache.GetOrLoad(ctx, key, load)
}

func (s *CustomerStore) fetch(ctx context.Context, mailboxID int64, email string) (*models.PlatformCustomer, error) {
	// Rebind keeps the query portable between MySQL and PostgreSQL
	query := s.db.Rebind(`SELECT email, name, value, links FROM platform_customers
		WHERE mailbox_id = ? AND email = ?
		LIMIT 1`)

	var customer models.PlatformCustomer
	if err := ExecuteReadOnlyQuerySingle(ctx, s.db, &customer, query, mailboxID, email); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("platform customer %s: %w", email, ErrNotFound)
		}
		return nil, err
	}
	return &customer, nil
}

// Ping checks the platform store in a read-only transaction
func (s *CustomerStore) Ping(ctx context.Context) error {
	return ExecuteReadOnlyPing(ctx, s.db)
}
