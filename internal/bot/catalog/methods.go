package catalog

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/nsafonov/proofdesk/internal/bot/records"
	"github.com/nsafonov/proofdesk/internal/cache"
	"github.com/nsafonov/proofdesk/internal/logging"
	"github.com/nsafonov/proofdesk/internal/recordstore"
)

const methodsKey = "payment_methods:all"

// Method is one way a user can pay, with an optional EUR conversion rate.
type Method struct {
	Ref         string
	Code        string
	Order       float64
	Currency    string
	ButtonRU    string
	ButtonEN    string
	DetailsSlug string
	RatePerEUR  decimal.NullDecimal
	RoundTo     decimal.NullDecimal
}

// AmountFromEUR converts a EUR price into the method's currency and
// rounds it to the nearest multiple of the method's rounding step.
func (m Method) AmountFromEUR(price decimal.Decimal) (decimal.Decimal, error) {
	if !m.RatePerEUR.Valid {
		return decimal.Decimal{}, fmt.Errorf("payment method %q has no conversion rate", m.Code)
	}
	amount := price.Mul(m.RatePerEUR.Decimal)
	if m.RoundTo.Valid && m.RoundTo.Decimal.IsPositive() {
		steps := amount.Div(m.RoundTo.Decimal).Round(0)
		amount = steps.Mul(m.RoundTo.Decimal)
	}
	return amount, nil
}

// Methods serves active payment methods out of a TTL cache.
type Methods struct {
	store      recordstore.Store
	collection string
	cache      *cache.TTL[string, map[string]Method]
	log        logging.Logger
}

func NewMethods(store recordstore.Store, collection string, ttl time.Duration, log logging.Logger) *Methods {
	return &Methods{
		store:      store,
		collection: collection,
		cache:      cache.New[string, map[string]Method](ttl),
		log:        log.With("cache", "payment_methods"),
	}
}

// Reload drops the cached index and fetches a fresh one.
func (m *Methods) Reload(ctx context.Context) (int, error) {
	m.cache.Clear()
	idx, err := m.load(ctx)
	if err != nil {
		return 0, err
	}
	return len(idx), nil
}

// Get returns the method with the given code, reloading once on a miss.
func (m *Methods) Get(ctx context.Context, code string) (Method, bool, error) {
	idx, err := m.index(ctx)
	if err != nil {
		return Method{}, false, err
	}
	method, ok := idx[code]
	return method, ok, nil
}

// All returns every active method ordered by its display position.
func (m *Methods) All(ctx context.Context) ([]Method, error) {
	idx, err := m.index(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Method, 0, len(idx))
	for _, method := range idx {
		out = append(out, method)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out, nil
}

func (m *Methods) Info() cache.Info { return m.cache.Info() }

func (m *Methods) index(ctx context.Context) (map[string]Method, error) {
	if idx, ok := m.cache.Get(methodsKey); ok {
		return idx, nil
	}
	return m.load(ctx)
}

func (m *Methods) load(ctx context.Context) (map[string]Method, error) {
	pages, err := m.store.Query(ctx, m.collection, &recordstore.Filter{
		Field:  records.FieldActive,
		Equals: recordstore.Checkbox(true),
	})
	if err != nil {
		return nil, fmt.Errorf("loading payment methods: %w", err)
	}

	idx := make(map[string]Method, len(pages))
	for _, p := range pages {
		code := p.Fields.Text(records.FieldCode)
		if code == "" {
			continue
		}
		method := Method{
			Ref:         p.Ref,
			Code:        code,
			Currency:    p.Fields.Text(records.FieldCurrency),
			ButtonRU:    p.Fields.Text(records.FieldButtonRU),
			ButtonEN:    p.Fields.Text(records.FieldButtonEN),
			DetailsSlug: p.Fields.Text(records.FieldDetailsSlug),
		}
		if n, ok := p.Fields.Number(records.FieldOrder); ok {
			method.Order = n
		}
		if n, ok := p.Fields.Number(records.FieldRatePerEUR); ok {
			method.RatePerEUR = decimal.NewNullDecimal(decimal.NewFromFloat(n))
		}
		if n, ok := p.Fields.Number(records.FieldRoundTo); ok {
			method.RoundTo = decimal.NewNullDecimal(decimal.NewFromFloat(n))
		}
		idx[code] = method
	}
	m.cache.Set(methodsKey, idx)
	m.log.Debug(ctx, "payment method index loaded", "count", len(idx))
	return idx, nil
}
