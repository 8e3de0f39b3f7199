// Package catalog caches the slow-changing reference collections: product
// descriptor texts and payment methods. Both use a single well-known cache
// key holding the full index, replaced atomically on reload, with one
// reload attempt on a miss and no retry loops.
package catalog

import (
	"context"
	"fmt"
	"time"

	"github.com/nsafonov/proofdesk/internal/bot/records"
	"github.com/nsafonov/proofdesk/internal/cache"
	"github.com/nsafonov/proofdesk/internal/logging"
	"github.com/nsafonov/proofdesk/internal/recordstore"
)

const descriptorsKey = "descriptors:all"

// Descriptor is one product description in one language.
type Descriptor struct {
	Ref      string
	Slug     string
	Language string
	Short    string
	Full     string
}

// Key builds the index key a descriptor is stored under.
func (d Descriptor) Key() string {
	return d.Slug + "::" + d.Language
}

// Descriptors serves descriptor texts out of a TTL cache.
type Descriptors struct {
	store      recordstore.Store
	collection string
	cache      *cache.TTL[string, map[string]Descriptor]
	log        logging.Logger
}

func NewDescriptors(store recordstore.Store, collection string, ttl time.Duration, log logging.Logger) *Descriptors {
	return &Descriptors{
		store:      store,
		collection: collection,
		cache:      cache.New[string, map[string]Descriptor](ttl),
		log:        log.With("cache", "descriptors"),
	}
}

// Reload drops the cached index and fetches a fresh one. It returns the
// number of descriptors loaded.
func (d *Descriptors) Reload(ctx context.Context) (int, error) {
	d.cache.Clear()
	idx, err := d.load(ctx)
	if err != nil {
		return 0, err
	}
	return len(idx), nil
}

// Get returns the descriptor for slug in language. A cache miss triggers
// exactly one reload; the descriptor staying absent after that is not an
// error.
func (d *Descriptors) Get(ctx context.Context, slug, language string) (Descriptor, bool, error) {
	idx, ok := d.cache.Get(descriptorsKey)
	if !ok {
		var err error
		idx, err = d.load(ctx)
		if err != nil {
			return Descriptor{}, false, err
		}
	}
	desc, ok := idx[Descriptor{Slug: slug, Language: language}.Key()]
	return desc, ok, nil
}

func (d *Descriptors) Info() cache.Info { return d.cache.Info() }

func (d *Descriptors) load(ctx context.Context) (map[string]Descriptor, error) {
	pages, err := d.store.Query(ctx, d.collection, &recordstore.Filter{
		Field:  records.FieldStatus,
		Equals: recordstore.Select("Active"),
	})
	if err != nil {
		return nil, fmt.Errorf("loading descriptors: %w", err)
	}

	idx := make(map[string]Descriptor, len(pages))
	for _, p := range pages {
		desc := Descriptor{
			Ref:      p.Ref,
			Slug:     p.Fields.Text(records.FieldSlug),
			Language: p.Fields.Text(records.FieldLanguage),
			Short:    p.Fields.Text(records.FieldShort),
			Full:     p.Fields.Text(records.FieldFull),
		}
		if desc.Slug == "" {
			continue
		}
		idx[desc.Key()] = desc
	}
	d.cache.Set(descriptorsKey, idx)
	d.log.Debug(ctx, "descriptor index loaded", "count", len(idx))
	return idx, nil
}
