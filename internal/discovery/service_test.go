package discovery

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tafuta/tafuta/internal/bluesky"
	"github.com/tafuta/tafuta/internal/cache"
	"github.com/tafuta/tafuta/internal/crawler"
	"github.com/tafuta/tafuta/internal/pacing"
	"github.com/tafuta/tafuta/internal/publisher"
	pubmemory "github.com/tafuta/tafuta/internal/publisher/memory"
	"github.com/tafuta/tafuta/internal/storage/memory"
	"github.com/tafuta/tafuta/internal/swahili"
)

// keywordClassifier labels any text containing a Swahili marker word as
// confidently Swahili.
type keywordClassifier struct{}

func (keywordClassifier) Classify(_ context.Context, text string) (swahili.Detection, error) {
	for _, marker := range []string{"habari", "asante", "karibu", "kiswahili"} {
		if strings.Contains(strings.ToLower(text), marker) {
			return swahili.Detection{Language: "sw", Confidence: 0.99}, nil
		}
	}
	return swahili.Detection{Language: "en", Confidence: 0.95}, nil
}

type fakeGraph struct {
	dids          map[string]string
	followers     map[string][]bluesky.Author
	follows       map[string][]bluesky.Author
	feeds         map[string][]bluesky.Post
	searchResults map[string][]bluesky.Post

	followerCalls int
	searchCalls   []string
}

func newFakeGraph() *fakeGraph {
	return &fakeGraph{
		dids:          make(map[string]string),
		followers:     make(map[string][]bluesky.Author),
		follows:       make(map[string][]bluesky.Author),
		feeds:         make(map[string][]bluesky.Post),
		searchResults: make(map[string][]bluesky.Post),
	}
}

func (f *fakeGraph) ResolveHandle(_ context.Context, handle string) (string, error) {
	did, ok := f.dids[handle]
	if !ok {
		return "", errors.New("handle not found")
	}
	return did, nil
}

func (f *fakeGraph) GetFollowers(_ context.Context, actor string, _ int) ([]bluesky.Author, error) {
	f.followerCalls++
	return f.followers[actor], nil
}

func (f *fakeGraph) GetFollows(_ context.Context, actor string, _ int) ([]bluesky.Author, error) {
	f.followerCalls++
	return f.follows[actor], nil
}

func (f *fakeGraph) GetAuthorFeed(_ context.Context, actor string, _ int) ([]bluesky.Post, error) {
	return f.feeds[actor], nil
}

func (f *fakeGraph) SearchPosts(_ context.Context, query string, _ int) ([]bluesky.Post, error) {
	f.searchCalls = append(f.searchCalls, query)
	return f.searchResults[query], nil
}

func post(did, handle, uri, text string, likes int) bluesky.Post {
	return bluesky.Post{
		URI:       uri,
		CID:       uri + "-cid",
		Text:      text,
		CreatedAt: time.Now().Add(-time.Hour),
		Author:    bluesky.Author{DID: did, Handle: handle},
		LikeCount: likes,
	}
}

func newTestService(graph *fakeGraph, store *cache.Store, events publisher.Publisher, seed int64) *Service {
	validator := swahili.NewValidator(keywordClassifier{}, nil)
	rng := rand.New(rand.NewSource(seed))
	c := crawler.New(graph, validator, pacing.Noop{}, rng, nil)
	return New(graph, c, store, validator, pacing.Noop{}, events, rng, nil)
}

// fillCache persists n profiles, all discovered the same way, each with one
// distinct Swahili post in its feed.
func fillCache(t *testing.T, store *cache.Store, graph *fakeGraph, n int) {
	t.Helper()
	ctx := context.Background()
	dc := store.Load(ctx)
	for i := 0; i < n; i++ {
		did := fmt.Sprintf("did:plc:p%03d", i)
		handle := fmt.Sprintf("p%03d.bsky.social", i)
		dc.Merge(&cache.CachedProfile{
			DID:              did,
			Handle:           handle,
			DiscoveredAt:     time.Now().Add(-24 * time.Hour),
			LastSeen:         time.Now().Add(-24 * time.Hour),
			SwahiliPostCount: 1,
			DiscoveredFrom:   "follower_of:origin.bsky.social",
		})
		graph.feeds[did] = []bluesky.Post{
			post(did, handle, fmt.Sprintf("at://feed/%d", i), fmt.Sprintf("habari namba %d za leo", i), i%5),
		}
	}
	require.NoError(t, store.Save(ctx, dc))
}

func TestDiscover_EmptyCacheFullyExplores(t *testing.T) {
	t.Parallel()

	graph := newFakeGraph()
	graph.dids["seed.bsky.social"] = "did:plc:seed"
	graph.followers["did:plc:seed"] = []bluesky.Author{
		{DID: "did:plc:new", Handle: "new.bsky.social", DisplayName: "Mwandishi"},
	}
	graph.feeds["did:plc:new"] = []bluesky.Post{
		post("did:plc:new", "new.bsky.social", "at://n1", "habari za asubuhi rafiki", 4),
		post("did:plc:new", "new.bsky.social", "at://n2", "asante sana kwa kufuata", 2),
	}

	store := cache.NewStore(memory.NewBlobStore(), "", []string{"seed.bsky.social"}, nil)
	events := pubmemory.New()
	svc := newTestService(graph, store, events, 1)

	res, err := svc.Discover(context.Background(), Options{Limit: 10})
	require.NoError(t, err)

	require.Equal(t, 1, res.Stats.NewProfiles)
	require.Equal(t, 1, res.Stats.TotalProfiles)
	require.NotEmpty(t, res.Posts)
	for _, p := range res.Posts {
		require.Contains(t, []string{"at://n1", "at://n2"}, p.URI)
		require.Equal(t, "follower_of:seed.bsky.social", p.DiscoveryMethod)
		require.InDelta(t, 0.99, p.Confidence, 0.001)
	}

	// The grown cache was persisted and the crawl was recorded.
	dc := store.Load(context.Background())
	require.Equal(t, 1, dc.Size())
	require.Equal(t, 1, dc.TotalDiscoveries)
	require.NotEmpty(t, dc.CrawlHistory)

	// One completion event with matching numbers.
	published := events.Events()
	require.Len(t, published, 1)
	require.Equal(t, modeFullExplore, published[0].Mode)
	require.Equal(t, len(res.Posts), published[0].PostsReturned)
	require.Equal(t, 1, published[0].NewProfiles)
}

func TestDiscover_WarmCacheExploits(t *testing.T) {
	t.Parallel()

	graph := newFakeGraph()
	store := cache.NewStore(memory.NewBlobStore(), "", nil, nil)
	fillCache(t, store, graph, 60)

	svc := newTestService(graph, store, pubmemory.New(), 7)
	res, err := svc.Discover(context.Background(), Options{ExplorationRate: 0})
	require.NoError(t, err)

	// A warm cache with exploration disabled never touches the social graph.
	require.Zero(t, graph.followerCalls)
	require.Zero(t, res.Stats.NewProfiles)
	require.Equal(t, 60, res.Stats.TotalProfiles)

	require.NotEmpty(t, res.Posts)
	for _, p := range res.Posts {
		require.Equal(t, "follower_of:origin.bsky.social", p.DiscoveryMethod)
	}
	require.Equal(t, harvestProfiles, res.Stats.ProfilesUsed)
}

func TestDiscover_TruncatesToLimit(t *testing.T) {
	t.Parallel()

	graph := newFakeGraph()
	store := cache.NewStore(memory.NewBlobStore(), "", nil, nil)
	fillCache(t, store, graph, 60)

	svc := newTestService(graph, store, nil, 3)
	res, err := svc.Discover(context.Background(), Options{Limit: 5, ExplorationRate: 0})
	require.NoError(t, err)

	require.Len(t, res.Posts, 5)
	// The limit was reached from profile feeds alone, so no backfill ran.
	require.Empty(t, graph.searchCalls)
}

func TestDiscover_DeduplicatesAcrossProfiles(t *testing.T) {
	t.Parallel()

	graph := newFakeGraph()
	store := cache.NewStore(memory.NewBlobStore(), "", nil, nil)
	fillCache(t, store, graph, 60)

	// Every profile reposts the exact same text under a fresh URI, plus the
	// original URI itself showing up twice.
	viral := "habari hii imesambaa kila mahali leo"
	for i := 0; i < 60; i++ {
		did := fmt.Sprintf("did:plc:p%03d", i)
		handle := fmt.Sprintf("p%03d.bsky.social", i)
		graph.feeds[did] = []bluesky.Post{
			post(did, handle, "at://viral", viral, 9),
			post(did, handle, fmt.Sprintf("at://copy/%d", i), viral, 1),
		}
	}

	svc := newTestService(graph, store, nil, 11)
	res, err := svc.Discover(context.Background(), Options{ExplorationRate: 0})
	require.NoError(t, err)

	require.Len(t, res.Posts, 1)
	require.Equal(t, viral, res.Posts[0].Text)
}

func TestDiscover_TagFilterAndBackfill(t *testing.T) {
	t.Parallel()

	graph := newFakeGraph()
	store := cache.NewStore(memory.NewBlobStore(), "", nil, nil)
	fillCache(t, store, graph, 60)

	// Cached feeds carry a mix of tagged and untagged Swahili posts.
	for i := 0; i < 60; i++ {
		did := fmt.Sprintf("did:plc:p%03d", i)
		handle := fmt.Sprintf("p%03d.bsky.social", i)
		graph.feeds[did] = []bluesky.Post{
			post(did, handle, fmt.Sprintf("at://tagged/%d", i), fmt.Sprintf("habari za michezo nambari %d #kenya", i), 2),
			post(did, handle, fmt.Sprintf("at://plain/%d", i), fmt.Sprintf("habari za kawaida nambari %d", i), 2),
		}
	}
	// The requested tag is also searched directly, surfacing a never-seen
	// author.
	graph.searchResults["#kenya"] = []bluesky.Post{
		post("did:plc:fresh", "fresh.bsky.social", "at://fresh", "karibu nairobi wote #kenya", 6),
	}

	svc := newTestService(graph, store, nil, 5)
	res, err := svc.Discover(context.Background(), Options{Limit: 100, ExplorationRate: 0, Tags: []string{"kenya"}})
	require.NoError(t, err)

	require.NotEmpty(t, res.Posts)
	for _, p := range res.Posts {
		require.Contains(t, p.Text, "#kenya")
	}

	// The backfill search inserted the new author into the cache.
	require.Contains(t, graph.searchCalls, "#kenya")
	require.Equal(t, 1, res.Stats.NewProfiles)
	dc := store.Load(context.Background())
	require.True(t, dc.Has("did:plc:fresh"))
	require.Equal(t, "hashtag:kenya", dc.Profiles["did:plc:fresh"].DiscoveredFrom)
}

func TestDiscover_FreshnessExcludesOldPosts(t *testing.T) {
	t.Parallel()

	graph := newFakeGraph()
	store := cache.NewStore(memory.NewBlobStore(), "", nil, nil)
	fillCache(t, store, graph, 60)

	stale := post("did:plc:p000", "p000.bsky.social", "at://stale", "habari za zamani sana", 3)
	stale.CreatedAt = time.Now().Add(-14 * 24 * time.Hour)
	for i := 0; i < 60; i++ {
		did := fmt.Sprintf("did:plc:p%03d", i)
		graph.feeds[did] = []bluesky.Post{stale}
	}

	svc := newTestService(graph, store, nil, 13)
	res, err := svc.Discover(context.Background(), Options{ExplorationRate: 0, Freshness: FreshnessRecent})
	require.NoError(t, err)
	require.Empty(t, res.Posts)
}

func TestRank_HighEngagementFirst(t *testing.T) {
	t.Parallel()

	svc := newTestService(newFakeGraph(), cache.NewStore(memory.NewBlobStore(), "", nil, nil), nil, 17)
	now := time.Now()
	posts := []Post{
		{URI: "at://low", Engagement: 0, CreatedAt: now},
		{URI: "at://high", Engagement: 100, CreatedAt: now},
		{URI: "at://mid", Engagement: 40, CreatedAt: now},
	}

	ranked := svc.rank(posts)
	require.Equal(t, "at://high", ranked[0].URI)
	require.Equal(t, "at://mid", ranked[1].URI)
	require.Equal(t, "at://low", ranked[2].URI)
}

func TestAccountPosts_AppliesOutputThreshold(t *testing.T) {
	t.Parallel()

	graph := newFakeGraph()
	graph.dids["mtu.bsky.social"] = "did:plc:mtu"
	graph.feeds["did:plc:mtu"] = []bluesky.Post{
		post("did:plc:mtu", "mtu.bsky.social", "at://1", "habari za jioni wadau", 2),
		post("did:plc:mtu", "mtu.bsky.social", "at://2", "plain english update today", 8),
	}

	store := cache.NewStore(memory.NewBlobStore(), "", nil, nil)
	svc := newTestService(graph, store, nil, 19)

	posts, err := svc.AccountPosts(context.Background(), "mtu.bsky.social", 10)
	require.NoError(t, err)
	require.Len(t, posts, 1)
	require.Equal(t, "at://1", posts[0].URI)
	require.Equal(t, "account:mtu.bsky.social", posts[0].DiscoveryMethod)

	// Direct lookup never touches the cache.
	require.Zero(t, store.Load(context.Background()).Size())
}

func TestAccountPosts_UnknownHandle(t *testing.T) {
	t.Parallel()

	store := cache.NewStore(memory.NewBlobStore(), "", nil, nil)
	svc := newTestService(newFakeGraph(), store, nil, 23)

	_, err := svc.AccountPosts(context.Background(), "ghost.bsky.social", 10)
	require.Error(t, err)
}
