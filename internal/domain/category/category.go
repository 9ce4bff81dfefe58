// Package category enumerates the trending partitions and owns the
// interest-slug mapping shared by ingestion fan-out and personalization.
package category

import (
	"fmt"
	"strings"
)

// Category names a partition of the trending space. Each category keeps
// its own counters and ranked set.
type Category string

// Known categories.
const (
	General       Category = "general"
	News          Category = "news"
	Sports        Category = "sports"
	Entertainment Category = "entertainment"
	Personalized  Category = "personalized"
)

// interestSlugs maps each category to the user-interest slugs that feed
// it. The personalized category has no slugs of its own: it is computed
// from the other categories' scores.
var interestSlugs = map[Category][]string{
	General:       {},
	News:          {"news"},
	Sports:        {"sports"},
	Entertainment: {"music", "dance", "celebrity", "movies-tv", "gaming", "art"},
}

// slugToCategory is the inverse of interestSlugs, built once at init.
var slugToCategory = func() map[string]Category {
	m := make(map[string]Category)
	for c, slugs := range interestSlugs {
		for _, s := range slugs {
			m[s] = c
		}
	}
	return m
}()

// All returns every category, personalized included.
func All() []Category {
	return []Category{General, News, Sports, Entertainment, Personalized}
}

// Syncable returns the categories that carry their own counters and are
// flushed to durable storage. Personalized is cache-only.
func Syncable() []Category {
	return []Category{General, News, Sports, Entertainment}
}

// Parse validates a raw category string.
func Parse(raw string) (Category, error) {
	c := Category(strings.ToLower(strings.TrimSpace(raw)))
	switch c {
	case General, News, Sports, Entertainment, Personalized:
		return c, nil
	}
	return "", fmt.Errorf("unknown category %q", raw)
}

// FromSlug resolves an interest slug to its category.
func FromSlug(slug string) (Category, bool) {
	c, ok := slugToCategory[strings.ToLower(strings.TrimSpace(slug))]
	return c, ok
}

// MapSlugs resolves a user's interest slugs to a de-duplicated category
// set. General is always part of the result; unknown slugs are ignored.
func MapSlugs(slugs []string) []Category {
	seen := map[Category]bool{General: true}
	out := []Category{General}
	for _, s := range slugs {
		c, ok := FromSlug(s)
		if !ok || seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out
}

// Slugs returns the interest slugs feeding a category.
func Slugs(c Category) []string {
	return interestSlugs[c]
}
