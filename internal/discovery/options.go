package discovery

import (
	"time"

	"github.com/tafuta/tafuta/internal/bluesky"
	"github.com/tafuta/tafuta/internal/cache"
)

// Freshness restricts how old harvested posts may be.
type Freshness string

const (
	// FreshnessAny accepts posts of any age.
	FreshnessAny Freshness = "any"
	// FreshnessRecent accepts only posts from the last seven days.
	FreshnessRecent Freshness = "recent"
)

// Default request knobs.
const (
	DefaultLimit           = 50
	DefaultExplorationRate = 0.4
)

// Options controls a single discovery run.
type Options struct {
	// Limit caps the number of posts returned.
	Limit int
	// ExplorationRate is the probability of a full exploration pass even
	// when the cache is already well populated.
	ExplorationRate float64
	// Tags restricts results to posts carrying at least one of these
	// hashtags and biases profile selection toward matching profiles.
	Tags []string
	// Freshness optionally restricts results to recent posts.
	Freshness Freshness
}

func (o Options) withDefaults() Options {
	if o.Limit <= 0 {
		o.Limit = DefaultLimit
	}
	if o.ExplorationRate < 0 {
		o.ExplorationRate = DefaultExplorationRate
	}
	if o.Freshness == "" {
		o.Freshness = FreshnessAny
	}
	return o
}

// Post is one validated Swahili post returned to the caller. It lives only
// for the duration of the discovery call and is never cached.
type Post struct {
	URI             string         `json:"uri"`
	CID             string         `json:"cid"`
	Text            string         `json:"text"`
	CreatedAt       time.Time      `json:"createdAt"`
	Author          bluesky.Author `json:"author"`
	Confidence      float64        `json:"confidence"`
	DiscoveryMethod string         `json:"discoveryMethod"`
	Engagement      int            `json:"engagement"`
}

// CacheStats summarizes the cache's state after a discovery run.
type CacheStats struct {
	TotalProfiles int `json:"totalProfiles"`
	NewProfiles   int `json:"newProfilesDiscovered"`
	ProfilesUsed  int `json:"profilesUsed"`
}

// Result is the outcome of one discovery run. Zero posts with zero new
// profiles is a legitimate result, not an error.
type Result struct {
	Posts []Post     `json:"posts"`
	Stats CacheStats `json:"cacheStats"`
}

// StatsReport is the cache inspection view.
type StatsReport struct {
	TotalProfiles    int                    `json:"totalProfiles"`
	TotalDiscoveries int                    `json:"totalDiscoveries"`
	LastUpdated      time.Time              `json:"lastUpdated"`
	TopTags          []cache.TagCount       `json:"topTags"`
	RecentProfiles   []*cache.CachedProfile `json:"recentProfiles"`
}
