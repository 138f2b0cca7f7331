// Package bluesky is a minimal AT Protocol XRPC client covering the graph,
// feed, and search endpoints the discovery crawl needs.
package bluesky

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

const defaultPDS = "https://bsky.social"

// Client talks to a Bluesky PDS. It is not safe for concurrent Login calls,
// which matches the single-request discovery model.
type Client struct {
	pds        string
	httpClient *http.Client

	// populated after Login
	accessJwt string
	did       string
}

// ClientOption customizes a Client.
type ClientOption func(*Client)

// WithTimeout overrides the default request timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// NewClient creates a client against the given PDS, defaulting to
// https://bsky.social.
func NewClient(pds string, opts ...ClientOption) *Client {
	if pds == "" {
		pds = defaultPDS
	}
	c := &Client{
		pds: pds,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Login authenticates with the PDS and stores the session token. Use an App
// Password, not the account password.
func (c *Client) Login(ctx context.Context, identifier, password string) error {
	body := map[string]string{
		"identifier": identifier,
		"password":   password,
	}
	var resp createSessionResponse
	if err := c.post(ctx, "/xrpc/com.atproto.server.createSession", body, &resp); err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	c.accessJwt = resp.AccessJwt
	c.did = resp.DID
	return nil
}

// Authenticated reports whether Login has succeeded.
func (c *Client) Authenticated() bool {
	return c.accessJwt != ""
}

// DID returns the authenticated user's DID. Only valid after Login.
func (c *Client) DID() string {
	return c.did
}

// ResolveHandle resolves a handle to its DID.
func (c *Client) ResolveHandle(ctx context.Context, handle string) (string, error) {
	var resp resolveHandleResponse
	params := url.Values{"handle": {handle}}
	if err := c.get(ctx, "/xrpc/com.atproto.identity.resolveHandle", params, &resp); err != nil {
		return "", fmt.Errorf("resolve handle %q: %w", handle, err)
	}
	return resp.DID, nil
}

// GetFollowers returns up to limit accounts that follow actor.
func (c *Client) GetFollowers(ctx context.Context, actor string, limit int) ([]Author, error) {
	var resp getFollowersResponse
	params := url.Values{"actor": {actor}, "limit": {strconv.Itoa(limit)}}
	if err := c.get(ctx, "/xrpc/app.bsky.graph.getFollowers", params, &resp); err != nil {
		return nil, fmt.Errorf("get followers of %q: %w", actor, err)
	}
	authors := make([]Author, 0, len(resp.Followers))
	for _, p := range resp.Followers {
		authors = append(authors, p.toAuthor())
	}
	return authors, nil
}

// GetFollows returns up to limit accounts that actor follows.
func (c *Client) GetFollows(ctx context.Context, actor string, limit int) ([]Author, error) {
	var resp getFollowsResponse
	params := url.Values{"actor": {actor}, "limit": {strconv.Itoa(limit)}}
	if err := c.get(ctx, "/xrpc/app.bsky.graph.getFollows", params, &resp); err != nil {
		return nil, fmt.Errorf("get follows of %q: %w", actor, err)
	}
	authors := make([]Author, 0, len(resp.Follows))
	for _, p := range resp.Follows {
		authors = append(authors, p.toAuthor())
	}
	return authors, nil
}

// GetAuthorFeed returns up to limit recent posts authored by actor.
func (c *Client) GetAuthorFeed(ctx context.Context, actor string, limit int) ([]Post, error) {
	var resp getAuthorFeedResponse
	params := url.Values{
		"actor":  {actor},
		"limit":  {strconv.Itoa(limit)},
		"filter": {"posts_no_replies"},
	}
	if err := c.get(ctx, "/xrpc/app.bsky.feed.getAuthorFeed", params, &resp); err != nil {
		return nil, fmt.Errorf("get author feed of %q: %w", actor, err)
	}
	posts := make([]Post, 0, len(resp.Feed))
	for _, item := range resp.Feed {
		posts = append(posts, item.Post.toPost())
	}
	return posts, nil
}

// SearchPosts runs a full-text post search.
func (c *Client) SearchPosts(ctx context.Context, query string, limit int) ([]Post, error) {
	var resp searchPostsResponse
	params := url.Values{"q": {query}, "limit": {strconv.Itoa(limit)}}
	if err := c.get(ctx, "/xrpc/app.bsky.feed.searchPosts", params, &resp); err != nil {
		return nil, fmt.Errorf("search posts %q: %w", query, err)
	}
	posts := make([]Post, 0, len(resp.Posts))
	for _, p := range resp.Posts {
		posts = append(posts, p.toPost())
	}
	return posts, nil
}

func (c *Client) get(ctx context.Context, path string, params url.Values, result any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.pds+path+"?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	return c.do(req, result)
}

func (c *Client) post(ctx context.Context, path string, body any, result any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.pds+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, result)
}

func (c *Client) do(req *http.Request, result any) error {
	if c.accessJwt != "" {
		req.Header.Set("Authorization", "Bearer "+c.accessJwt)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(respBody))
	}
	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}
	return nil
}
