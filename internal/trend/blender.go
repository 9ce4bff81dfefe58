package trend

import (
	"context"
	"sort"
	"time"

	"github.com/okian/pulse/internal/domain/category"
	"github.com/okian/pulse/internal/domain/types"
	"github.com/okian/pulse/pkg/logger"
	"github.com/okian/pulse/pkg/metrics"
)

// Blend weights. An item's blended score sums its weighted score over
// every category it ranks in: full weight for the user's own
// categories, half for general, and a residual weight for anything
// else it shows up in.
const (
	interestWeight   = 1.0
	generalWeight    = 0.5
	incidentalWeight = 0.3

	// Over-fetch factor per category so the blend has enough candidates
	// after dropping items with missing metadata.
	fetchFactor = 2

	defaultPersonalTTL = 5 * time.Minute

	personalTier = "personal"
)

// InterestResolver supplies a user's interest slugs. A profile service
// in production; a stub in tests.
type InterestResolver interface {
	Interests(ctx context.Context, userID string) ([]string, error)
}

// Blender produces personalized trending lists by blending the ranked
// sets of the user's interest categories with the general list. Any
// failure degrades to the plain general list; personalization never
// breaks a request.
type Blender struct {
	guard    *Guard
	reader   *Reader
	resolver InterestResolver

	cacheTTL time.Duration

	logger logger.Logger
}

// BlenderOption applies a configuration option to the Blender.
type BlenderOption func(*Blender)

// WithPersonalTTL sets how long blended lists stay cached per user.
func WithPersonalTTL(d time.Duration) BlenderOption {
	return func(b *Blender) {
		if d > 0 {
			b.cacheTTL = d
		}
	}
}

// NewBlender creates a blender over the guarded fast store.
func NewBlender(guard *Guard, reader *Reader, resolver InterestResolver, opts ...BlenderOption) *Blender {
	b := &Blender{
		guard:    guard,
		reader:   reader,
		resolver: resolver,
		cacheTTL: defaultPersonalTTL,
		logger:   logger.Get().Named("blender"),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

type blendEntry struct {
	itemID    string
	score     float64
	origin    category.Category
	topWeight float64
}

// PersonalizedTop returns up to limit items blended for the user. With
// no user id, no usable interests, or any error along the way it
// returns the general list instead.
func (b *Blender) PersonalizedTop(ctx context.Context, userID string, limit int) []types.TrendingItem {
	if userID == "" || limit < 1 {
		return b.reader.TopTrending(ctx, category.General, limit)
	}

	if !b.guard.Available() {
		return b.degrade(ctx, limit)
	}

	key := personalKey(userID, limit)
	var cached []types.TrendingItem
	found, err := b.guard.GetJSON(ctx, key, &cached)
	if err == nil && found {
		metrics.RecordCacheHit(personalTier)
		return cached
	}
	if err != nil {
		return b.degrade(ctx, limit)
	}
	metrics.RecordCacheMiss(personalTier)

	slugs, err := b.resolver.Interests(ctx, userID)
	if err != nil {
		metrics.RecordErrorByComponent("blender", "interests")
		b.logger.Warn(ctx, "interest lookup failed",
			logger.String("userID", userID), logger.Error(err))
		return b.degrade(ctx, limit)
	}

	cats := category.MapSlugs(slugs)
	interests := make(map[category.Category]bool, len(cats))
	for _, cat := range cats {
		if cat != category.General {
			interests[cat] = true
		}
	}
	if len(interests) == 0 {
		return b.degrade(ctx, limit)
	}

	entries, ok := b.blend(ctx, cats, interests, limit)
	if !ok || len(entries) == 0 {
		return b.degrade(ctx, limit)
	}

	items := b.assemble(ctx, entries, limit)
	if len(items) == 0 {
		return b.degrade(ctx, limit)
	}

	if serr := b.guard.SetJSON(ctx, key, items, b.cacheTTL); serr != nil {
		b.logger.Debug(ctx, "personal cache write failed",
			logger.String("key", key), logger.Error(serr))
	}
	return items
}

// blend fetches each category's ranked entries and sums weighted
// scores per item. The origin category recorded for an item is the one
// contributing at the highest weight, so metadata resolves where the
// item ranks strongest.
func (b *Blender) blend(ctx context.Context, cats []category.Category, interests map[category.Category]bool, limit int) ([]blendEntry, bool) {
	combined := make(map[string]*blendEntry)
	for _, cat := range cats {
		scored, err := b.guard.TopScores(ctx, cat, limit*fetchFactor)
		if err != nil {
			return nil, false
		}
		weight := b.weightFor(cat, interests)
		for _, s := range scored {
			entry, ok := combined[s.ItemID]
			if !ok {
				entry = &blendEntry{itemID: s.ItemID, origin: cat, topWeight: weight}
				combined[s.ItemID] = entry
			}
			entry.score += s.Score * weight
			if weight > entry.topWeight {
				entry.topWeight = weight
				entry.origin = cat
			}
		}
	}

	entries := make([]blendEntry, 0, len(combined))
	for _, entry := range combined {
		entries = append(entries, *entry)
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].score != entries[j].score {
			return entries[i].score > entries[j].score
		}
		return entries[i].itemID < entries[j].itemID
	})
	return entries, true
}

func (b *Blender) weightFor(cat category.Category, interests map[category.Category]bool) float64 {
	switch {
	case interests[cat]:
		return interestWeight
	case cat == category.General:
		return generalWeight
	default:
		return incidentalWeight
	}
}

// assemble resolves metadata for the top blended entries, dropping
// items whose tag is gone, until limit items are collected.
func (b *Blender) assemble(ctx context.Context, entries []blendEntry, limit int) []types.TrendingItem {
	items := make([]types.TrendingItem, 0, limit)
	for _, entry := range entries {
		if len(items) == limit {
			break
		}
		assembled := b.reader.Assemble(ctx, entry.origin,
			[]types.ScoredItem{{ItemID: entry.itemID, Score: entry.score}})
		items = append(items, assembled...)
	}
	return items
}

// degrade falls back to the unpersonalized general list.
func (b *Blender) degrade(ctx context.Context, limit int) []types.TrendingItem {
	metrics.RecordErrorByComponent("blender", "degraded")
	return b.reader.TopTrending(ctx, category.General, limit)
}
