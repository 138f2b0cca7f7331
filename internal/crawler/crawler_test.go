package crawler

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tafuta/tafuta/internal/bluesky"
	"github.com/tafuta/tafuta/internal/cache"
	"github.com/tafuta/tafuta/internal/pacing"
	"github.com/tafuta/tafuta/internal/swahili"
)

// keywordClassifier labels any text containing a Swahili marker word as
// confidently Swahili.
type keywordClassifier struct{}

func (keywordClassifier) Classify(_ context.Context, text string) (swahili.Detection, error) {
	for _, marker := range []string{"habari", "asante", "karibu", "kiswahili"} {
		if strings.Contains(strings.ToLower(text), marker) {
			return swahili.Detection{Language: "sw", Confidence: 0.96}, nil
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

	followersErr error
	followsErr   error

	searchCalls []string
}

func (f *fakeGraph) ResolveHandle(_ context.Context, handle string) (string, error) {
	did, ok := f.dids[handle]
	if !ok {
		return "", errors.New("handle not found")
	}
	return did, nil
}

func (f *fakeGraph) GetFollowers(_ context.Context, actor string, _ int) ([]bluesky.Author, error) {
	if f.followersErr != nil {
		return nil, f.followersErr
	}
	return f.followers[actor], nil
}

func (f *fakeGraph) GetFollows(_ context.Context, actor string, _ int) ([]bluesky.Author, error) {
	if f.followsErr != nil {
		return nil, f.followsErr
	}
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

func newTestCrawler(graph *fakeGraph, seed int64) *Crawler {
	validator := swahili.NewValidator(keywordClassifier{}, nil)
	return New(graph, validator, pacing.Noop{}, rand.New(rand.NewSource(seed)), nil)
}

func TestCrawl_AudienceChannel(t *testing.T) {
	t.Parallel()

	graph := &fakeGraph{
		dids: map[string]string{"start.bsky.social": "did:plc:start"},
		followers: map[string][]bluesky.Author{
			"did:plc:start": {
				{DID: "did:plc:sw", Handle: "sw.bsky.social", DisplayName: "Mwandishi"},
				{DID: "did:plc:en", Handle: "en.bsky.social"},
			},
		},
		feeds: map[string][]bluesky.Post{
			"did:plc:sw": {
				post("did:plc:sw", "sw.bsky.social", "at://1", "habari za asubuhi #kenya", 3),
				post("did:plc:sw", "sw.bsky.social", "at://2", "asante sana rafiki #habari", 1),
				post("did:plc:sw", "sw.bsky.social", "at://3", "completely english text here", 0),
			},
			"did:plc:en": {
				post("did:plc:en", "en.bsky.social", "at://4", "just english content today", 0),
			},
		},
	}
	c := newTestCrawler(graph, 1)
	dc := cache.NewDiscoveryCache(nil)

	found := c.Crawl(context.Background(), "start.bsky.social", dc, 25)

	require.Len(t, found, 1)
	p := found[0]
	require.Equal(t, "did:plc:sw", p.DID)
	require.Equal(t, "follower_of:start.bsky.social", p.DiscoveredFrom)
	require.Equal(t, 2, p.SwahiliPostCount)
	require.Equal(t, 1, p.EngagementScore)
	require.ElementsMatch(t, []string{"kenya", "habari"}, p.Tags)
	require.Equal(t, []string{"start.bsky.social"}, dc.CrawlHistory)
}

func TestCrawl_SkipsKnownIdentities(t *testing.T) {
	t.Parallel()

	graph := &fakeGraph{
		dids: map[string]string{"start.bsky.social": "did:plc:start"},
		followers: map[string][]bluesky.Author{
			"did:plc:start": {{DID: "did:plc:known", Handle: "known.bsky.social"}},
		},
		feeds: map[string][]bluesky.Post{
			"did:plc:known": {post("did:plc:known", "known.bsky.social", "at://1", "habari za leo tena", 1)},
		},
	}
	c := newTestCrawler(graph, 1)

	dc := cache.NewDiscoveryCache(nil)
	dc.Merge(&cache.CachedProfile{DID: "did:plc:known", Handle: "known.bsky.social"})

	found := c.Crawl(context.Background(), "start.bsky.social", dc, 25)
	require.Empty(t, found)
}

func TestCrawl_CapStopsChannels(t *testing.T) {
	t.Parallel()

	var followers []bluesky.Author
	feeds := make(map[string][]bluesky.Post)
	for _, did := range []string{"did:plc:a", "did:plc:b", "did:plc:c"} {
		followers = append(followers, bluesky.Author{DID: did, Handle: did + ".bsky.social"})
		feeds[did] = []bluesky.Post{post(did, did+".bsky.social", "at://"+did, "habari njema kabisa leo", 1)}
	}
	graph := &fakeGraph{
		dids:      map[string]string{"start.bsky.social": "did:plc:start"},
		followers: map[string][]bluesky.Author{"did:plc:start": followers},
		feeds:     feeds,
	}
	c := newTestCrawler(graph, 1)

	found := c.Crawl(context.Background(), "start.bsky.social", cache.NewDiscoveryCache(nil), 2)
	require.Len(t, found, 2)
	// Once the cap is hit, the search channels never run.
	require.Empty(t, graph.searchCalls)
}

func TestCrawl_ChannelFailureKeepsOtherChannels(t *testing.T) {
	t.Parallel()

	searchResults := make(map[string][]bluesky.Post)
	for _, tag := range swahiliHashtags {
		searchResults["#"+tag] = nil
	}
	searchResults["#kiswahili"] = []bluesky.Post{
		post("did:plc:tagged", "tagged.bsky.social", "at://t1", "tunapenda kiswahili sana #kiswahili", 5),
	}
	graph := &fakeGraph{
		dids:          map[string]string{"start.bsky.social": "did:plc:start"},
		followersErr:  errors.New("upstream 500"),
		followsErr:    errors.New("upstream 500"),
		searchResults: searchResults,
	}
	// Crawl repeatedly until the random hashtag sample includes #kiswahili;
	// a failing graph channel must never wipe out search results.
	var found []*cache.CachedProfile
	for seed := int64(0); seed < 10 && len(found) == 0; seed++ {
		graph.searchCalls = nil
		found = newTestCrawler(graph, seed).Crawl(context.Background(), "start.bsky.social", cache.NewDiscoveryCache(nil), 25)
	}

	require.NotEmpty(t, found)
	require.Equal(t, "did:plc:tagged", found[0].DID)
	require.Equal(t, "hashtag:kiswahili", found[0].DiscoveredFrom)
	require.Equal(t, 5, found[0].EngagementScore)
	require.Equal(t, 1, found[0].SwahiliPostCount)
}

func TestCrawl_NoDuplicateAcrossChannels(t *testing.T) {
	t.Parallel()

	samePost := post("did:plc:dup", "dup.bsky.social", "at://d1", "habari zenu wote #habari", 2)
	searchResults := make(map[string][]bluesky.Post)
	for _, tag := range swahiliHashtags {
		searchResults["#"+tag] = []bluesky.Post{samePost}
	}
	for _, phrase := range swahiliPhrases {
		searchResults[phrase] = []bluesky.Post{samePost}
	}
	graph := &fakeGraph{
		dids:          map[string]string{"start.bsky.social": "did:plc:start"},
		searchResults: searchResults,
	}
	c := newTestCrawler(graph, 9)

	found := c.Crawl(context.Background(), "start.bsky.social", cache.NewDiscoveryCache(nil), 25)
	require.Len(t, found, 1)
}
