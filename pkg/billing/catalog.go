package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	lru "github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/edpsych-connect/connect/pkg/observability"
	"github.com/edpsych-connect/connect/pkg/subscriptions"
)

const (
	catalogCacheKey   = "connect:catalog:plans"
	defaultCatalogTTL = 5 * time.Minute
)

// PlanSource yields the authoritative plan catalog
type PlanSource interface {
	Plans(ctx context.Context) ([]Plan, error)
}

// StaticPlans is a PlanSource over a fixed list
type StaticPlans []Plan

func (s StaticPlans) Plans(context.Context) ([]Plan, error) {
	return clonePlans(s), nil
}

// Catalog serves plans from a local LRU, then Redis when configured, then
// the source
type Catalog struct {
	source  PlanSource
	local   *lru.LRU[string, []Plan]
	redis   *redis.Client
	ttl     time.Duration
	metrics *observability.Metrics
	logger  *observability.Logger
}

// CatalogOption configures a Catalog
type CatalogOption func(*Catalog)

// WithCatalogRedis adds a shared Redis layer
func WithCatalogRedis(client *redis.Client) CatalogOption {
	return func(c *Catalog) { c.redis = client }
}

// WithCatalogTTL sets how long cached plans are served
func WithCatalogTTL(ttl time.Duration) CatalogOption {
	return func(c *Catalog) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithCatalogMetrics records cache hits and misses
func WithCatalogMetrics(m *observability.Metrics) CatalogOption {
	return func(c *Catalog) { c.metrics = m }
}

// WithCatalogLogger sets the logger for cache failures
func WithCatalogLogger(l *observability.Logger) CatalogOption {
	return func(c *Catalog) { c.logger = l }
}

// NewCatalog creates a Catalog over source
func NewCatalog(source PlanSource, opts ...CatalogOption) *Catalog {
	c := &Catalog{
		source: source,
		ttl:    defaultCatalogTTL,
		logger: observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.local = lru.NewLRU[string, []Plan](1, nil, c.ttl)
	return c
}

// List returns every plan in catalog order
func (c *Catalog) List(ctx context.Context) ([]Plan, error) {
	if plans, ok := c.local.Get(catalogCacheKey); ok {
		c.metrics.CacheHit("catalog_local")
		return clonePlans(plans), nil
	}
	c.metrics.CacheMiss("catalog_local")

	if plans, ok := c.fromRedis(ctx); ok {
		c.local.Add(catalogCacheKey, plans)
		return clonePlans(plans), nil
	}

	plans, err := c.source.Plans(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load plans: %w", err)
	}

	c.local.Add(catalogCacheKey, clonePlans(plans))
	c.toRedis(ctx, plans)
	return plans, nil
}

// Get returns one plan by id
func (c *Catalog) Get(ctx context.Context, planID string) (*Plan, error) {
	plans, err := c.List(ctx)
	if err != nil {
		return nil, err
	}
	for i := range plans {
		if plans[i].ID == planID {
			return &plans[i], nil
		}
	}
	return nil, fmt.Errorf("plan %s %w", planID, ErrNotFound)
}

// Invalidate drops cached plans from both layers
func (c *Catalog) Invalidate(ctx context.Context) error {
	c.local.Remove(catalogCacheKey)
	if c.redis == nil {
		return nil
	}
	if err := c.redis.Del(ctx, catalogCacheKey).Err(); err != nil {
		return fmt.Errorf("failed to invalidate plan cache: %w", err)
	}
	return nil
}

func (c *Catalog) fromRedis(ctx context.Context) ([]Plan, bool) {
	if c.redis == nil {
		return nil, false
	}

	data, err := c.redis.Get(ctx, catalogCacheKey).Bytes()
	if errors.Is(err, redis.Nil) {
		c.metrics.CacheMiss("catalog_redis")
		return nil, false
	}
	if err != nil {
		c.logger.WithError(err).Warn("plan cache read failed")
		return nil, false
	}

	var plans []Plan
	if err := json.Unmarshal(data, &plans); err != nil {
		c.redis.Del(ctx, catalogCacheKey)
		c.logger.WithError(err).Warn("dropped corrupt plan cache entry")
		return nil, false
	}
	c.metrics.CacheHit("catalog_redis")
	return plans, true
}

func (c *Catalog) toRedis(ctx context.Context, plans []Plan) {
	if c.redis == nil {
		return
	}
	data, err := json.Marshal(plans)
	if err != nil {
		return
	}
	if err := c.redis.Set(ctx, catalogCacheKey, data, c.ttl).Err(); err != nil {
		c.logger.WithError(err).Warn("plan cache write failed")
	}
}

func clonePlans(plans []Plan) []Plan {
	out := make([]Plan, len(plans))
	for i, p := range plans {
		out[i] = p
		out[i].Features = append([]string(nil), p.Features...)
		out[i].Pricing = make(map[subscriptions.BillingInterval]subscriptions.PlanPrice, len(p.Pricing))
		for k, v := range p.Pricing {
			out[i].Pricing[k] = v
		}
	}
	return out
}

// DefaultPlans is the standard catalog, priced in GBP pence. Price ids
// follow <plan>_<interval> and are replaced by ApplyPriceIDs.
func DefaultPlans() []Plan {
	seats := func(n int) *int { return &n }
	price := func(planID string, monthly, quarterly, annual int64) map[subscriptions.BillingInterval]subscriptions.PlanPrice {
		return map[subscriptions.BillingInterval]subscriptions.PlanPrice{
			subscriptions.IntervalMonthly:   {Amount: monthly, Currency: "gbp", PriceID: planID + "_monthly"},
			subscriptions.IntervalQuarterly: {Amount: quarterly, Currency: "gbp", PriceID: planID + "_quarterly"},
			subscriptions.IntervalAnnual:    {Amount: annual, Currency: "gbp", PriceID: planID + "_annual"},
		}
	}

	return []Plan{
		{
			ID:           "free",
			Name:         "Free",
			Description:  "Try the platform with a single practitioner",
			Tier:         subscriptions.TierFree,
			Features:     []string{"1 practitioner seat", "Assessment library", "Community support"},
			Pricing:      map[subscriptions.BillingInterval]subscriptions.PlanPrice{},
			MaxSeats:     seats(1),
			MaxStorageGB: seats(1),
		},
		{
			ID:           "basic",
			Name:         "Basic",
			Description:  "For small schools starting with digital assessments",
			Tier:         subscriptions.TierBasic,
			Features:     []string{"Up to 10 seats", "Assessment library", "Progress reports", "Email support"},
			Pricing:      price("basic", 4900, 13900, 49000),
			MaxSeats:     seats(10),
			MaxStorageGB: seats(25),
		},
		{
			ID:           "standard",
			Name:         "Standard",
			Description:  "For schools running a full SEN caseload",
			Tier:         subscriptions.TierStandard,
			Features:     []string{"Up to 50 seats", "Everything in Basic", "EHCP workflows", "Parent portal"},
			Pricing:      price("standard", 9900, 28200, 99000),
			MaxSeats:     seats(50),
			MaxStorageGB: seats(100),
			Popular:      true,
		},
		{
			ID:           "premium",
			Name:         "Premium",
			Description:  "For trusts and larger settings",
			Tier:         subscriptions.TierPremium,
			Features:     []string{"Up to 200 seats", "Everything in Standard", "Analytics dashboards", "Priority support"},
			Pricing:      price("premium", 19900, 56700, 199000),
			MaxSeats:     seats(200),
			MaxStorageGB: seats(500),
		},
		{
			ID:          "enterprise",
			Name:        "Enterprise",
			Description: "For local authorities and multi-academy trusts",
			Tier:        subscriptions.TierEnterprise,
			Features:    []string{"Unlimited seats", "Everything in Premium", "SSO", "Dedicated success manager"},
			Pricing:     price("enterprise", 49900, 142200, 499000),
		},
	}
}

// ApplyPriceIDs replaces provider price ids using keys of the form
// <plan>_<interval>. Unknown keys are ignored.
func ApplyPriceIDs(plans []Plan, ids map[string]string) []Plan {
	out := clonePlans(plans)
	for i := range out {
		for interval, p := range out[i].Pricing {
			if id, ok := ids[out[i].ID+"_"+string(interval)]; ok && id != "" {
				p.PriceID = id
				out[i].Pricing[interval] = p
			}
		}
	}
	return out
}
