// Package discovery orchestrates one discovery request end to end: load the
// cache, decide how much to explore, crawl, merge, pick profiles to harvest,
// filter and rank their posts, backfill, and persist the grown cache.
package discovery

import (
	"context"
	"math/rand"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/tafuta/tafuta/internal/bluesky"
	"github.com/tafuta/tafuta/internal/cache"
	"github.com/tafuta/tafuta/internal/crawler"
	"github.com/tafuta/tafuta/internal/metrics"
	"github.com/tafuta/tafuta/internal/pacing"
	"github.com/tafuta/tafuta/internal/publisher"
	"github.com/tafuta/tafuta/internal/sampling"
	"github.com/tafuta/tafuta/internal/swahili"
)

// Exploration modes.
const (
	modeFullExplore = "full_explore"
	modeMiniExplore = "mini_explore"
	modeExploit     = "exploit"
)

const (
	// Below this cache size a run always fully explores.
	fullExploreBelow = 15
	// Below this cache size a run at least mini-explores.
	miniExploreBelow = 50

	fullExploreTargets = 5
	fullExploreCap     = 25
	miniExploreCap     = 10
	cachedSeedSample   = 30

	harvestProfiles = 20
	harvestFeedSize = 15
	freshnessWindow = 7 * 24 * time.Hour

	backfillTagLimit   = 3
	backfillSearchSize = 30

	// Selection weight terms.
	weightPerSwahiliPost = 2.0
	weightPerEngagement  = 0.1
	tagMatchBonus        = 5.0
	selectionJitterSpan  = 3.0

	// Ranking terms.
	rankEngagementWeight = 0.3
	rankRecencyScale     = 1e5
	rankJitterSpan       = 1.0

	dedupPrefixRunes = 100
)

// Service runs discovery requests. It assumes a single in-flight request per
// instance: the cache is loaded once, mutated only by that request, and saved
// once at the end.
type Service struct {
	graph     crawler.SocialGraph
	crawler   *crawler.Crawler
	store     *cache.Store
	validator *swahili.Validator
	pacer     pacing.Pacer
	events    publisher.Publisher
	rng       *rand.Rand
	now       func() time.Time
	logger    *zap.Logger
}

// New constructs a Service. rng drives all randomized control flow (mode
// decision, seed shuffling, selection jitter) and can be seeded for
// deterministic tests. events may be nil.
func New(
	graph crawler.SocialGraph,
	crawl *crawler.Crawler,
	store *cache.Store,
	validator *swahili.Validator,
	pacer pacing.Pacer,
	events publisher.Publisher,
	rng *rand.Rand,
	logger *zap.Logger,
) *Service {
	if events == nil {
		events = publisher.Noop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		graph:     graph,
		crawler:   crawl,
		store:     store,
		validator: validator,
		pacer:     pacer,
		events:    events,
		rng:       rng,
		now:       time.Now,
		logger:    logger,
	}
}

// Discover runs one full discovery request. Individual profile, tag, and
// phrase failures are absorbed; the call returns whatever was accumulated.
func (s *Service) Discover(ctx context.Context, opts Options) (*Result, error) {
	opts = opts.withDefaults()
	dc := s.store.Load(ctx)

	mode := s.decideMode(dc, opts)
	s.logger.Info("discovery run starting",
		zap.String("mode", mode),
		zap.Int("cache_size", dc.Size()),
		zap.Int("limit", opts.Limit))

	newProfiles := 0
	switch mode {
	case modeFullExplore:
		newProfiles = s.fullExplore(ctx, dc)
	case modeMiniExplore:
		newProfiles = s.miniExplore(ctx, dc)
	}

	st := newHarvestState(opts.Limit)
	used := s.harvest(ctx, s.selectForHarvest(dc, opts), opts, st)
	if len(st.posts) < opts.Limit {
		newProfiles += s.backfill(ctx, dc, opts, st)
	}

	posts := s.rank(st.posts)
	if len(posts) > opts.Limit {
		posts = posts[:opts.Limit]
	}

	if err := s.store.Save(ctx, dc); err != nil {
		// This run's cache gains are lost but the results still stand.
		s.logger.Error("cache save failed", zap.Error(err))
	}

	metrics.ObserveDiscoveryRun(mode, newProfiles, dc.Size())
	s.publishEvent(ctx, mode, len(posts), newProfiles, dc.Size())

	return &Result{
		Posts: posts,
		Stats: CacheStats{
			TotalProfiles: dc.Size(),
			NewProfiles:   newProfiles,
			ProfilesUsed:  used,
		},
	}, nil
}

// decideMode picks the exploration mode for this run. Small caches always
// explore; mid-size caches at least mini-explore; beyond that exploration is
// a dice roll against the configured rate.
func (s *Service) decideMode(dc *cache.DiscoveryCache, opts Options) string {
	if s.rng.Float64() < opts.ExplorationRate || dc.Size() < fullExploreBelow {
		return modeFullExplore
	}
	if dc.Size() < miniExploreBelow {
		return modeMiniExplore
	}
	return modeExploit
}

// fullExplore crawls from up to fullExploreTargets starting points drawn from
// the seed handles plus a random sample of cached handles.
func (s *Service) fullExplore(ctx context.Context, dc *cache.DiscoveryCache) int {
	targets := s.crawlTargets(dc)
	if len(targets) > fullExploreTargets {
		targets = targets[:fullExploreTargets]
	}

	inserted := 0
	for _, target := range targets {
		if err := s.pacer.Wait(ctx, pacing.ClassCrawl); err != nil {
			break
		}
		metrics.ObserveCrawl(modeFullExplore)
		for _, candidate := range s.crawler.Crawl(ctx, target, dc, fullExploreCap) {
			if dc.Merge(candidate) {
				inserted++
			}
		}
	}
	return inserted
}

// miniExplore runs a single small crawl from one random starting point.
func (s *Service) miniExplore(ctx context.Context, dc *cache.DiscoveryCache) int {
	targets := s.crawlTargets(dc)
	if len(targets) == 0 {
		return 0
	}
	if err := s.pacer.Wait(ctx, pacing.ClassCrawl); err != nil {
		return 0
	}
	metrics.ObserveCrawl(modeMiniExplore)
	inserted := 0
	for _, candidate := range s.crawler.Crawl(ctx, targets[0], dc, miniExploreCap) {
		if dc.Merge(candidate) {
			inserted++
		}
	}
	return inserted
}

// crawlTargets builds a shuffled candidate list of crawl starting points:
// the fixed seeds plus a bounded random sample of cached handles.
func (s *Service) crawlTargets(dc *cache.DiscoveryCache) []string {
	targets := append([]string(nil), dc.SeedProfiles...)

	cached := dc.Handles()
	s.rng.Shuffle(len(cached), func(i, j int) {
		cached[i], cached[j] = cached[j], cached[i]
	})
	if len(cached) > cachedSeedSample {
		cached = cached[:cachedSeedSample]
	}
	targets = append(targets, cached...)

	s.rng.Shuffle(len(targets), func(i, j int) {
		targets[i], targets[j] = targets[j], targets[i]
	})
	return targets
}

// selectForHarvest weights every cached profile and samples up to
// harvestProfiles of them. Profiles with more confirmed Swahili posts, higher
// discovery engagement, or a caller-requested tag are favored; jitter keeps
// the tail in play.
func (s *Service) selectForHarvest(dc *cache.DiscoveryCache, opts Options) []*cache.CachedProfile {
	pool := make([]sampling.Candidate, 0, dc.Size())
	for did, p := range dc.Profiles {
		weight := weightPerSwahiliPost*float64(p.SwahiliPostCount) +
			weightPerEngagement*float64(p.EngagementScore)
		if len(opts.Tags) > 0 && p.HasAnyTag(opts.Tags) {
			weight += tagMatchBonus
		}
		weight += s.rng.Float64() * selectionJitterSpan
		pool = append(pool, sampling.Candidate{Key: did, Weight: weight})
	}
	s.rng.Shuffle(len(pool), func(i, j int) {
		pool[i], pool[j] = pool[j], pool[i]
	})

	picked := sampling.Pick(s.rng, pool, harvestProfiles)
	profiles := make([]*cache.CachedProfile, 0, len(picked))
	for _, c := range picked {
		profiles = append(profiles, dc.Profiles[c.Key])
	}
	return profiles
}

// harvest pulls recent posts from each selected profile, filtering and
// deduplicating as it goes. Returns the number of profiles actually read.
func (s *Service) harvest(ctx context.Context, profiles []*cache.CachedProfile, opts Options, st *harvestState) int {
	used := 0
	for _, profile := range profiles {
		if st.fullAt(opts.Limit) {
			break
		}
		if err := s.pacer.Wait(ctx, pacing.ClassSearch); err != nil {
			break
		}
		feed, err := s.graph.GetAuthorFeed(ctx, profile.DID, harvestFeedSize)
		if err != nil {
			s.logger.Warn("harvest fetch failed",
				zap.String("handle", profile.Handle), zap.Error(err))
			continue
		}
		used++

		for _, post := range feed {
			if st.fullAt(opts.Limit) {
				break
			}
			confidence, ok := s.admit(ctx, post, opts, st)
			if !ok {
				continue
			}
			st.accept(post, confidence, profile.DiscoveredFrom)
			profile.LastSeen = s.now()
			profile.SwahiliPostCount++
			profile.AddTags(swahili.ExtractHashtags(post.Text))
		}
	}
	return used
}

// backfill runs direct hashtag searches to close the gap to the requested
// limit, inserting any never-seen author into the cache along the way.
// Returns the number of profiles inserted.
func (s *Service) backfill(ctx context.Context, dc *cache.DiscoveryCache, opts Options, st *harvestState) int {
	tags := opts.Tags
	if len(tags) == 0 {
		tags = crawler.BackfillHashtags()
	}
	tags = append([]string(nil), tags...)
	s.rng.Shuffle(len(tags), func(i, j int) {
		tags[i], tags[j] = tags[j], tags[i]
	})
	if len(tags) > backfillTagLimit {
		tags = tags[:backfillTagLimit]
	}

	inserted := 0
	for _, tag := range tags {
		if st.fullAt(opts.Limit) {
			break
		}
		if err := s.pacer.Wait(ctx, pacing.ClassCrawl); err != nil {
			break
		}
		posts, err := s.graph.SearchPosts(ctx, "#"+tag, backfillSearchSize)
		if err != nil {
			s.logger.Warn("backfill search failed", zap.String("tag", tag), zap.Error(err))
			continue
		}

		for _, post := range posts {
			if st.fullAt(opts.Limit) {
				break
			}
			confidence, ok := s.admit(ctx, post, opts, st)
			if !ok {
				continue
			}
			provenance := "hashtag:" + tag
			st.accept(post, confidence, provenance)

			if !dc.Has(post.Author.DID) {
				now := s.now()
				profile := &cache.CachedProfile{
					DID:              post.Author.DID,
					Handle:           post.Author.Handle,
					DisplayName:      post.Author.DisplayName,
					DiscoveredAt:     now,
					LastSeen:         now,
					SwahiliPostCount: 1,
					EngagementScore:  swahili.EngagementScore(post.LikeCount, post.RepostCount, post.ReplyCount),
					DiscoveredFrom:   provenance,
				}
				profile.AddTags(swahili.ExtractHashtags(post.Text))
				if dc.Merge(profile) {
					inserted++
				}
			}
		}
	}
	return inserted
}

// admit applies the shared acceptance pipeline: duplicate suppression,
// freshness, language validation at the crawl threshold, and tag filters.
// Returns the validator confidence for the caller to record.
func (s *Service) admit(ctx context.Context, post bluesky.Post, opts Options, st *harvestState) (float64, bool) {
	if st.isDuplicate(post) {
		return 0, false
	}
	if opts.Freshness == FreshnessRecent && s.now().Sub(post.CreatedAt) > freshnessWindow {
		return 0, false
	}
	res := s.validator.Validate(ctx, post.Text, swahili.CrawlThreshold)
	metrics.ObserveValidation(res.IsSwahili)
	if !res.IsSwahili {
		return 0, false
	}
	if len(opts.Tags) > 0 && !intersects(swahili.ExtractHashtags(post.Text), opts.Tags) {
		return 0, false
	}
	return res.Confidence, true
}

// rank orders accepted posts by a blend of engagement and recency, with a
// small jitter so equal posts do not always surface in the same order.
func (s *Service) rank(posts []Post) []Post {
	scores := make(map[string]float64, len(posts))
	for _, p := range posts {
		scores[p.URI] = rankEngagementWeight*float64(p.Engagement) +
			float64(p.CreatedAt.Unix())/rankRecencyScale +
			s.rng.Float64()*rankJitterSpan
	}
	sort.SliceStable(posts, func(i, j int) bool {
		return scores[posts[i].URI] > scores[posts[j].URI]
	})
	return posts
}

// AccountPosts harvests directly from one account, bypassing the crawler and
// the cache entirely. The stricter output threshold applies since these
// results go straight to the user.
func (s *Service) AccountPosts(ctx context.Context, handle string, limit int) ([]Post, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	did, err := s.graph.ResolveHandle(ctx, handle)
	if err != nil {
		return nil, err
	}
	if err := s.pacer.Wait(ctx, pacing.ClassSearch); err != nil {
		return nil, err
	}
	feed, err := s.graph.GetAuthorFeed(ctx, did, limit)
	if err != nil {
		return nil, err
	}

	posts := make([]Post, 0, len(feed))
	for _, p := range feed {
		res := s.validator.Validate(ctx, p.Text, swahili.OutputThreshold)
		metrics.ObserveValidation(res.IsSwahili)
		if !res.IsSwahili {
			continue
		}
		posts = append(posts, Post{
			URI:             p.URI,
			CID:             p.CID,
			Text:            p.Text,
			CreatedAt:       p.CreatedAt,
			Author:          p.Author,
			Confidence:      res.Confidence,
			DiscoveryMethod: "account:" + handle,
			Engagement:      swahili.EngagementScore(p.LikeCount, p.RepostCount, p.ReplyCount),
		})
	}
	return posts, nil
}

// Stats reports on the current persisted cache without mutating it.
func (s *Service) Stats(ctx context.Context) *StatsReport {
	dc := s.store.Load(ctx)
	return &StatsReport{
		TotalProfiles:    dc.Size(),
		TotalDiscoveries: dc.TotalDiscoveries,
		LastUpdated:      dc.LastUpdated,
		TopTags:          dc.TopTags(10),
		RecentProfiles:   dc.RecentProfiles(10),
	}
}

// Clear irreversibly deletes the persisted cache.
func (s *Service) Clear(ctx context.Context) error {
	return s.store.Clear(ctx)
}

func (s *Service) publishEvent(ctx context.Context, mode string, posts, newProfiles, total int) {
	event := publisher.DiscoveryEvent{
		CompletedAt:   s.now(),
		Mode:          mode,
		PostsReturned: posts,
		NewProfiles:   newProfiles,
		TotalProfiles: total,
	}
	if _, err := s.events.Publish(ctx, event); err != nil {
		s.logger.Warn("discovery event publish failed", zap.Error(err))
	}
}

func intersects(a, b []string) bool {
	for _, x := range a {
		for _, y := range b {
			if x == y {
				return true
			}
		}
	}
	return false
}

// harvestState carries the cross-profile duplicate suppression sets and the
// accumulating result list for one discovery call.
type harvestState struct {
	posts        []Post
	seenURIs     map[string]struct{}
	seenPrefixes map[string]struct{}
}

func newHarvestState(limit int) *harvestState {
	return &harvestState{
		posts:        make([]Post, 0, limit),
		seenURIs:     make(map[string]struct{}),
		seenPrefixes: make(map[string]struct{}),
	}
}

func (st *harvestState) fullAt(limit int) bool {
	return len(st.posts) >= limit
}

func (st *harvestState) isDuplicate(p bluesky.Post) bool {
	if _, ok := st.seenURIs[p.URI]; ok {
		return true
	}
	_, ok := st.seenPrefixes[textPrefix(p.Text)]
	return ok
}

func (st *harvestState) accept(p bluesky.Post, confidence float64, method string) {
	st.seenURIs[p.URI] = struct{}{}
	st.seenPrefixes[textPrefix(p.Text)] = struct{}{}
	st.posts = append(st.posts, Post{
		URI:             p.URI,
		CID:             p.CID,
		Text:            p.Text,
		CreatedAt:       p.CreatedAt,
		Author:          p.Author,
		Confidence:      confidence,
		DiscoveryMethod: method,
		Engagement:      swahili.EngagementScore(p.LikeCount, p.RepostCount, p.ReplyCount),
	})
}

// textPrefix keys a post by its first runes so trivially reposted text is
// suppressed across profiles.
func textPrefix(text string) string {
	runes := []rune(text)
	if len(runes) > dedupPrefixRunes {
		runes = runes[:dedupPrefixRunes]
	}
	return string(runes)
}
