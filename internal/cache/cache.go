// Package cache holds the durable record of discovered Swahili-posting
// accounts and the store that round-trips it to a blob.
package cache

import (
	"sort"
	"time"
)

const (
	// CurrentVersion is the persisted format version. Blobs written before
	// versioning load as version 0 and are upgraded in place.
	CurrentVersion = 1

	// crawlHistoryTrimAt and crawlHistoryKeep control the bookkeeping log of
	// recently crawled handles: once the log grows past crawlHistoryTrimAt
	// entries it is cut back to the most recent crawlHistoryKeep in one
	// batch. The log is telemetry only and never gates re-crawling.
	crawlHistoryTrimAt = 50
	crawlHistoryKeep   = 25
)

// CachedProfile is an account believed to produce Swahili content.
type CachedProfile struct {
	// DID is the stable account identifier and the cache's primary key. The
	// handle may change over time; the DID does not.
	DID              string    `json:"did"`
	Handle           string    `json:"handle"`
	DisplayName      string    `json:"displayName,omitempty"`
	DiscoveredAt     time.Time `json:"discoveredAt"`
	LastSeen         time.Time `json:"lastSeen"`
	SwahiliPostCount int       `json:"swahiliPostCount"`
	EngagementScore  int       `json:"engagementScore"`
	// DiscoveredFrom records which crawl channel first surfaced this
	// profile, e.g. "follower_of:habari.bsky.social" or "hashtag:kenya".
	DiscoveredFrom string   `json:"discoveredFrom"`
	Tags           []string `json:"tags,omitempty"`
}

// AddTags unions tags into the profile's tag set. Tags never shrink.
func (p *CachedProfile) AddTags(tags []string) {
	if len(tags) == 0 {
		return
	}
	existing := make(map[string]struct{}, len(p.Tags))
	for _, t := range p.Tags {
		existing[t] = struct{}{}
	}
	for _, t := range tags {
		if _, ok := existing[t]; ok {
			continue
		}
		existing[t] = struct{}{}
		p.Tags = append(p.Tags, t)
	}
}

// HasAnyTag reports whether the profile carries at least one of the given tags.
func (p *CachedProfile) HasAnyTag(tags []string) bool {
	for _, want := range tags {
		for _, have := range p.Tags {
			if have == want {
				return true
			}
		}
	}
	return false
}

// DiscoveryCache is the persisted discovery state. It is loaded once per
// discovery run, mutated in memory, and saved once at the end.
type DiscoveryCache struct {
	Version          int                       `json:"version"`
	LastUpdated      time.Time                 `json:"lastUpdated"`
	TotalDiscoveries int                       `json:"totalDiscoveries"`
	Profiles         map[string]*CachedProfile `json:"profiles"`
	SeedProfiles     []string                  `json:"seedProfiles"`
	CrawlHistory     []string                  `json:"crawlHistory"`
}

// NewDiscoveryCache returns an empty cache seeded with the given bootstrap
// handles.
func NewDiscoveryCache(seeds []string) *DiscoveryCache {
	return &DiscoveryCache{
		Version:      CurrentVersion,
		Profiles:     make(map[string]*CachedProfile),
		SeedProfiles: append([]string(nil), seeds...),
		CrawlHistory: []string{},
	}
}

// Size returns the number of cached profiles.
func (c *DiscoveryCache) Size() int {
	return len(c.Profiles)
}

// Has reports whether the account identified by did is already known.
func (c *DiscoveryCache) Has(did string) bool {
	_, ok := c.Profiles[did]
	return ok
}

// Merge folds a discovered candidate into the cache. A never-seen identity is
// inserted as-is and counted in TotalDiscoveries; a known identity only has
// its LastSeen refreshed, its Swahili post count raised to the larger of the
// two, and its tags unioned. DiscoveredAt, DiscoveredFrom, and
// EngagementScore are fixed at first insertion. Returns true on insert.
func (c *DiscoveryCache) Merge(candidate *CachedProfile) bool {
	existing, ok := c.Profiles[candidate.DID]
	if !ok {
		c.Profiles[candidate.DID] = candidate
		c.TotalDiscoveries++
		return true
	}
	if candidate.LastSeen.After(existing.LastSeen) {
		existing.LastSeen = candidate.LastSeen
	}
	if candidate.SwahiliPostCount > existing.SwahiliPostCount {
		existing.SwahiliPostCount = candidate.SwahiliPostCount
	}
	existing.AddTags(candidate.Tags)
	return false
}

// RecordCrawl appends a crawl starting point to the history log, batch
// trimming to the most recent entries once the log grows past its high-water
// mark.
func (c *DiscoveryCache) RecordCrawl(handle string) {
	c.CrawlHistory = append(c.CrawlHistory, handle)
	if len(c.CrawlHistory) > crawlHistoryTrimAt {
		c.CrawlHistory = append([]string(nil), c.CrawlHistory[len(c.CrawlHistory)-crawlHistoryKeep:]...)
	}
}

// Handles returns every cached profile's current handle.
func (c *DiscoveryCache) Handles() []string {
	handles := make([]string, 0, len(c.Profiles))
	for _, p := range c.Profiles {
		handles = append(handles, p.Handle)
	}
	return handles
}

// TagCount pairs a hashtag with how many cached profiles carry it.
type TagCount struct {
	Tag   string `json:"tag"`
	Count int    `json:"count"`
}

// TopTags returns the n most frequent tags across all cached profiles,
// most frequent first. Ties break alphabetically so output is stable.
func (c *DiscoveryCache) TopTags(n int) []TagCount {
	counts := make(map[string]int)
	for _, p := range c.Profiles {
		for _, t := range p.Tags {
			counts[t]++
		}
	}
	tags := make([]TagCount, 0, len(counts))
	for tag, count := range counts {
		tags = append(tags, TagCount{Tag: tag, Count: count})
	}
	sort.Slice(tags, func(i, j int) bool {
		if tags[i].Count != tags[j].Count {
			return tags[i].Count > tags[j].Count
		}
		return tags[i].Tag < tags[j].Tag
	})
	if len(tags) > n {
		tags = tags[:n]
	}
	return tags
}

// RecentProfiles returns the n most recently discovered profiles, newest
// first.
func (c *DiscoveryCache) RecentProfiles(n int) []*CachedProfile {
	profiles := make([]*CachedProfile, 0, len(c.Profiles))
	for _, p := range c.Profiles {
		profiles = append(profiles, p)
	}
	sort.Slice(profiles, func(i, j int) bool {
		return profiles[i].DiscoveredAt.After(profiles[j].DiscoveredAt)
	})
	if len(profiles) > n {
		profiles = profiles[:n]
	}
	return profiles
}

// upgrade fills in fields that predate the current persisted format. The
// migration is one-way; old readers are not supported.
func (c *DiscoveryCache) upgrade(defaultSeeds []string) {
	if c.Profiles == nil {
		c.Profiles = make(map[string]*CachedProfile)
	}
	if len(c.SeedProfiles) == 0 {
		c.SeedProfiles = append([]string(nil), defaultSeeds...)
	}
	if c.CrawlHistory == nil {
		c.CrawlHistory = []string{}
	}
	if c.Version < CurrentVersion {
		c.Version = CurrentVersion
	}
}
