// Package crawler probes the social graph and content search for accounts
// that post in Swahili. One Crawl call works a single starting handle through
// four sequential channels and returns candidate profiles for the
// orchestrator to merge.
package crawler

import (
	"context"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/tafuta/tafuta/internal/bluesky"
	"github.com/tafuta/tafuta/internal/cache"
	"github.com/tafuta/tafuta/internal/pacing"
	"github.com/tafuta/tafuta/internal/swahili"
)

// Per-channel fetch limits. Channels run in order and stop as soon as the
// combined candidate count reaches the caller's cap.
const (
	followerPageSize  = 50
	probeFeedSize     = 10
	hashtagSearchSize = 30
	phraseSearchSize  = 25
	hashtagsPerCrawl  = 3
)

// SocialGraph is the upstream capability the crawler consumes. *bluesky.Client
// satisfies it; tests substitute fakes.
type SocialGraph interface {
	ResolveHandle(ctx context.Context, handle string) (string, error)
	GetFollowers(ctx context.Context, actor string, limit int) ([]bluesky.Author, error)
	GetFollows(ctx context.Context, actor string, limit int) ([]bluesky.Author, error)
	GetAuthorFeed(ctx context.Context, actor string, limit int) ([]bluesky.Post, error)
	SearchPosts(ctx context.Context, query string, limit int) ([]bluesky.Post, error)
}

// Crawler discovers new Swahili-posting profiles from a starting handle.
type Crawler struct {
	graph     SocialGraph
	validator *swahili.Validator
	pacer     pacing.Pacer
	rng       *rand.Rand
	now       func() time.Time
	logger    *zap.Logger
}

// New constructs a Crawler. rng drives hashtag and phrase selection and must
// not be shared across goroutines.
func New(graph SocialGraph, validator *swahili.Validator, pacer pacing.Pacer, rng *rand.Rand, logger *zap.Logger) *Crawler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Crawler{
		graph:     graph,
		validator: validator,
		pacer:     pacer,
		rng:       rng,
		now:       time.Now,
		logger:    logger,
	}
}

// Crawl probes the four discovery channels from startHandle and returns up to
// maxNew candidate profiles not already present in dc. Candidates are not
// merged into the cache here; that is the orchestrator's job. A failing
// channel is logged and skipped, preserving whatever earlier channels found.
func (c *Crawler) Crawl(ctx context.Context, startHandle string, dc *cache.DiscoveryCache, maxNew int) []*cache.CachedProfile {
	run := &crawlRun{
		crawler: c,
		seen:    make(map[string]struct{}, dc.Size()),
		maxNew:  maxNew,
	}
	for did := range dc.Profiles {
		run.seen[did] = struct{}{}
	}

	dc.RecordCrawl(startHandle)
	logger := c.logger.With(zap.String("start_handle", startHandle))

	if err := run.audienceChannel(ctx, startHandle); err != nil {
		logger.Warn("audience channel failed", zap.Error(err))
	}
	if err := run.curationChannel(ctx, startHandle); err != nil {
		logger.Warn("curation channel failed", zap.Error(err))
	}
	if err := run.hashtagChannel(ctx); err != nil {
		logger.Warn("hashtag channel failed", zap.Error(err))
	}
	if err := run.phraseChannel(ctx); err != nil {
		logger.Warn("phrase channel failed", zap.Error(err))
	}

	logger.Info("crawl finished",
		zap.Int("candidates", len(run.found)),
		zap.Int("cap", maxNew))
	return run.found
}

// crawlRun tracks per-call state: the identities already known (cache plus
// anything an earlier channel found this call) and the accumulating results.
type crawlRun struct {
	crawler *Crawler
	seen    map[string]struct{}
	found   []*cache.CachedProfile
	maxNew  int
}

func (r *crawlRun) full() bool {
	return len(r.found) >= r.maxNew
}

func (r *crawlRun) add(p *cache.CachedProfile) {
	r.seen[p.DID] = struct{}{}
	r.found = append(r.found, p)
}

// audienceChannel probes accounts that follow the starting handle.
func (r *crawlRun) audienceChannel(ctx context.Context, startHandle string) error {
	if r.full() {
		return nil
	}
	did, err := r.crawler.graph.ResolveHandle(ctx, startHandle)
	if err != nil {
		return err
	}
	followers, err := r.crawler.graph.GetFollowers(ctx, did, followerPageSize)
	if err != nil {
		return err
	}
	return r.probeAccounts(ctx, followers, "follower_of:"+startHandle)
}

// curationChannel probes accounts the starting handle follows.
func (r *crawlRun) curationChannel(ctx context.Context, startHandle string) error {
	if r.full() {
		return nil
	}
	did, err := r.crawler.graph.ResolveHandle(ctx, startHandle)
	if err != nil {
		return err
	}
	follows, err := r.crawler.graph.GetFollows(ctx, did, followerPageSize)
	if err != nil {
		return err
	}
	return r.probeAccounts(ctx, follows, "following_of:"+startHandle)
}

// probeAccounts checks each candidate account's recent feed and keeps those
// with at least one validated Swahili post.
func (r *crawlRun) probeAccounts(ctx context.Context, accounts []bluesky.Author, provenance string) error {
	for _, account := range accounts {
		if r.full() {
			return nil
		}
		if _, known := r.seen[account.DID]; known {
			continue
		}
		if err := r.crawler.pacer.Wait(ctx, pacing.ClassProbe); err != nil {
			return err
		}
		posts, err := r.crawler.graph.GetAuthorFeed(ctx, account.DID, probeFeedSize)
		if err != nil {
			r.crawler.logger.Debug("author feed probe failed",
				zap.String("did", account.DID), zap.Error(err))
			continue
		}

		swahiliPosts := 0
		var tags []string
		for _, post := range posts {
			res := r.crawler.validator.Validate(ctx, post.Text, swahili.CrawlThreshold)
			if !res.IsSwahili {
				continue
			}
			swahiliPosts++
			tags = append(tags, swahili.ExtractHashtags(post.Text)...)
		}
		if swahiliPosts == 0 {
			continue
		}

		now := r.crawler.now()
		profile := &cache.CachedProfile{
			DID:              account.DID,
			Handle:           account.Handle,
			DisplayName:      account.DisplayName,
			DiscoveredAt:     now,
			LastSeen:         now,
			SwahiliPostCount: swahiliPosts,
			EngagementScore:  1,
			DiscoveredFrom:   provenance,
		}
		profile.AddTags(tags)
		r.add(profile)
	}
	return nil
}

// hashtagChannel searches a random sample of the curated hashtags and keeps
// authors whose matching post validates.
func (r *crawlRun) hashtagChannel(ctx context.Context) error {
	if r.full() {
		return nil
	}
	for _, idx := range r.crawler.rng.Perm(len(swahiliHashtags))[:hashtagsPerCrawl] {
		if r.full() {
			return nil
		}
		tag := swahiliHashtags[idx]
		if err := r.crawler.pacer.Wait(ctx, pacing.ClassSearch); err != nil {
			return err
		}
		posts, err := r.crawler.graph.SearchPosts(ctx, "#"+tag, hashtagSearchSize)
		if err != nil {
			r.crawler.logger.Debug("hashtag search failed", zap.String("tag", tag), zap.Error(err))
			continue
		}
		r.keepValidatedAuthors(ctx, posts, "hashtag:"+tag)
	}
	return nil
}

// phraseChannel searches one random phrase from the fixed expression list.
func (r *crawlRun) phraseChannel(ctx context.Context) error {
	if r.full() {
		return nil
	}
	phrase := swahiliPhrases[r.crawler.rng.Intn(len(swahiliPhrases))]
	if err := r.crawler.pacer.Wait(ctx, pacing.ClassSearch); err != nil {
		return err
	}
	posts, err := r.crawler.graph.SearchPosts(ctx, phrase, phraseSearchSize)
	if err != nil {
		return err
	}
	r.keepValidatedAuthors(ctx, posts, "phrase:"+phrase)
	return nil
}

// keepValidatedAuthors turns search hits from unknown authors into candidate
// profiles when the hit itself validates as Swahili.
func (r *crawlRun) keepValidatedAuthors(ctx context.Context, posts []bluesky.Post, provenance string) {
	for _, post := range posts {
		if r.full() {
			return
		}
		if _, known := r.seen[post.Author.DID]; known {
			continue
		}
		res := r.crawler.validator.Validate(ctx, post.Text, swahili.CrawlThreshold)
		if !res.IsSwahili {
			continue
		}

		now := r.crawler.now()
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
		r.add(profile)
	}
}
