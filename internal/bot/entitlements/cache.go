// Package entitlements answers "which products does this user have access
// to right now" from the denormalized fast fields on paid payment records,
// cached per user.
package entitlements

import (
	"context"
	"fmt"
	"time"

	"github.com/nsafonov/proofdesk/internal/bot/models"
	"github.com/nsafonov/proofdesk/internal/bot/records"
	"github.com/nsafonov/proofdesk/internal/cache"
	"github.com/nsafonov/proofdesk/internal/common"
	"github.com/nsafonov/proofdesk/internal/logging"
	"github.com/nsafonov/proofdesk/internal/recordstore"
)

// Cache is a per-user TTL cache of entitlements.
type Cache struct {
	store    recordstore.Store
	payments string
	cache    *cache.TTL[int64, []models.Entitlement]
	log      logging.Logger

	now func() time.Time
}

func New(store recordstore.Store, paymentsCollection string, ttl time.Duration, log logging.Logger) *Cache {
	return &Cache{
		store:    store,
		payments: paymentsCollection,
		cache:    cache.New[int64, []models.Entitlement](ttl),
		log:      log.With("cache", "entitlements"),
		now:      time.Now,
	}
}

// Get returns the user's entitlements, loading them from the record store
// on a cache miss. Expired entitlements are filtered out of the result but
// stay cached, so an entitlement can lapse mid-TTL.
func (c *Cache) Get(ctx context.Context, userID int64) ([]models.Entitlement, error) {
	all, ok := c.cache.Get(userID)
	if !ok {
		var err error
		all, err = c.load(ctx, userID)
		if err != nil {
			return nil, err
		}
	}

	now := c.now()
	active := make([]models.Entitlement, 0, len(all))
	for _, e := range all {
		if e.Active(now) {
			active = append(active, e)
		}
	}
	return active, nil
}

// Invalidate drops the cached entitlements for one user, forcing a fresh
// load on the next Get. Called after an approval.
func (c *Cache) Invalidate(userID int64) {
	c.cache.Delete(userID)
}

// Clear drops every cached user.
func (c *Cache) Clear() {
	c.cache.Clear()
}

func (c *Cache) Info() cache.Info { return c.cache.Info() }

func (c *Cache) load(ctx context.Context, userID int64) ([]models.Entitlement, error) {
	pages, err := c.store.Query(ctx, c.payments, &recordstore.Filter{
		Field:  records.FieldTelegramID,
		Equals: recordstore.Number(float64(userID)),
	})
	if err != nil {
		return nil, fmt.Errorf("loading entitlements for user %d: %w", userID, err)
	}

	out := make([]models.Entitlement, 0, len(pages))
	for _, p := range pages {
		payment := records.PaymentFrom(p)
		if payment.Status() != common.StatusPaid {
			continue
		}
		name := payment.ProductName()
		if name == "" {
			// fast field never written, nothing to grant access to
			continue
		}
		out = append(out, models.Entitlement{
			ProductName: name,
			ExpiresAt:   payment.ExpiresAt(),
		})
	}
	c.cache.Set(userID, out)
	c.log.Debug(ctx, "entitlements loaded", "user_id", userID, "count", len(out))
	return out, nil
}
