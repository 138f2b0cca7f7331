package bluesky

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestPDS(t *testing.T, routes map[string]string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	for path, body := range routes {
		payload := body
		mux.HandleFunc(path, func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(payload))
		})
	}
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestClient_Login(t *testing.T) {
	t.Parallel()

	srv := newTestPDS(t, map[string]string{
		"/xrpc/com.atproto.server.createSession": `{"accessJwt":"jwt-123","did":"did:plc:self","handle":"me.bsky.social"}`,
	})
	c := NewClient(srv.URL)

	require.False(t, c.Authenticated())
	require.NoError(t, c.Login(context.Background(), "me.bsky.social", "app-password"))
	require.True(t, c.Authenticated())
	require.Equal(t, "did:plc:self", c.DID())
}

func TestClient_LoginFailure(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":"AuthenticationRequired"}`, http.StatusUnauthorized)
	}))
	t.Cleanup(srv.Close)

	c := NewClient(srv.URL)
	err := c.Login(context.Background(), "me.bsky.social", "wrong")
	require.Error(t, err)
	require.False(t, c.Authenticated())
}

func TestClient_ResolveHandle(t *testing.T) {
	t.Parallel()

	srv := newTestPDS(t, map[string]string{
		"/xrpc/com.atproto.identity.resolveHandle": `{"did":"did:plc:abc"}`,
	})
	c := NewClient(srv.URL)

	did, err := c.ResolveHandle(context.Background(), "habari.bsky.social")
	require.NoError(t, err)
	require.Equal(t, "did:plc:abc", did)
}

func TestClient_GetFollowers(t *testing.T) {
	t.Parallel()

	srv := newTestPDS(t, map[string]string{
		"/xrpc/app.bsky.graph.getFollowers": `{
			"followers": [
				{"did":"did:plc:f1","handle":"f1.bsky.social","displayName":"Follower One"},
				{"did":"did:plc:f2","handle":"f2.bsky.social"}
			]
		}`,
	})
	c := NewClient(srv.URL)

	followers, err := c.GetFollowers(context.Background(), "did:plc:abc", 50)
	require.NoError(t, err)
	require.Len(t, followers, 2)
	require.Equal(t, Author{DID: "did:plc:f1", Handle: "f1.bsky.social", DisplayName: "Follower One"}, followers[0])
}

func TestClient_GetAuthorFeed(t *testing.T) {
	t.Parallel()

	srv := newTestPDS(t, map[string]string{
		"/xrpc/app.bsky.feed.getAuthorFeed": `{
			"feed": [
				{"post": {
					"uri": "at://did:plc:f1/app.bsky.feed.post/1",
					"cid": "cid-1",
					"author": {"did":"did:plc:f1","handle":"f1.bsky.social"},
					"record": {"text":"habari za leo #kenya","createdAt":"2026-08-01T10:00:00Z"},
					"likeCount": 4, "repostCount": 1, "replyCount": 2
				}}
			]
		}`,
	})
	c := NewClient(srv.URL)

	posts, err := c.GetAuthorFeed(context.Background(), "did:plc:f1", 10)
	require.NoError(t, err)
	require.Len(t, posts, 1)
	require.Equal(t, "habari za leo #kenya", posts[0].Text)
	require.Equal(t, 4, posts[0].LikeCount)
	require.Equal(t, "did:plc:f1", posts[0].Author.DID)
	require.Equal(t, 2026, posts[0].CreatedAt.Year())
}

func TestClient_SearchPosts(t *testing.T) {
	t.Parallel()

	srv := newTestPDS(t, map[string]string{
		"/xrpc/app.bsky.feed.searchPosts": `{
			"posts": [{
				"uri": "at://did:plc:x/app.bsky.feed.post/9",
				"cid": "cid-9",
				"author": {"did":"did:plc:x","handle":"x.bsky.social"},
				"record": {"text":"asante sana rafiki","createdAt":"2026-08-02T08:30:00Z"},
				"likeCount": 1
			}]
		}`,
	})
	c := NewClient(srv.URL)

	posts, err := c.SearchPosts(context.Background(), "asante sana", 25)
	require.NoError(t, err)
	require.Len(t, posts, 1)
	require.Equal(t, "asante sana rafiki", posts[0].Text)
}

func TestClient_ServerErrorSurfaces(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":"RateLimitExceeded"}`, http.StatusTooManyRequests)
	}))
	t.Cleanup(srv.Close)

	c := NewClient(srv.URL)
	_, err := c.SearchPosts(context.Background(), "habari", 10)
	require.Error(t, err)
	require.Contains(t, err.Error(), "429")
}
