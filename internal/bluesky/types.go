package bluesky

import "time"

// Author is the summary of an account as returned by the graph and search
// endpoints.
type Author struct {
	// DID is the stable account identifier.
	DID string `json:"did"`
	// Handle is the current, mutable handle.
	Handle      string `json:"handle"`
	DisplayName string `json:"displayName,omitempty"`
}

// Post is a single post with the interaction counts needed for engagement
// scoring.
type Post struct {
	URI         string    `json:"uri"`
	CID         string    `json:"cid"`
	Text        string    `json:"text"`
	CreatedAt   time.Time `json:"createdAt"`
	Author      Author    `json:"author"`
	LikeCount   int       `json:"likeCount"`
	RepostCount int       `json:"repostCount"`
	ReplyCount  int       `json:"replyCount"`
}

// Wire-format structs for the XRPC endpoints we call.

type createSessionResponse struct {
	AccessJwt string `json:"accessJwt"`
	DID       string `json:"did"`
	Handle    string `json:"handle"`
}

type resolveHandleResponse struct {
	DID string `json:"did"`
}

type profileView struct {
	DID         string `json:"did"`
	Handle      string `json:"handle"`
	DisplayName string `json:"displayName"`
}

type postRecord struct {
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
}

type postView struct {
	URI         string      `json:"uri"`
	CID         string      `json:"cid"`
	Author      profileView `json:"author"`
	Record      postRecord  `json:"record"`
	LikeCount   int         `json:"likeCount"`
	RepostCount int         `json:"repostCount"`
	ReplyCount  int         `json:"replyCount"`
}

type feedItem struct {
	Post postView `json:"post"`
}

type getFollowersResponse struct {
	Followers []profileView `json:"followers"`
	Cursor    string        `json:"cursor"`
}

type getFollowsResponse struct {
	Follows []profileView `json:"follows"`
	Cursor  string        `json:"cursor"`
}

type getAuthorFeedResponse struct {
	Feed   []feedItem `json:"feed"`
	Cursor string     `json:"cursor"`
}

type searchPostsResponse struct {
	Posts  []postView `json:"posts"`
	Cursor string     `json:"cursor"`
}

func (p profileView) toAuthor() Author {
	return Author{DID: p.DID, Handle: p.Handle, DisplayName: p.DisplayName}
}

func (p postView) toPost() Post {
	return Post{
		URI:         p.URI,
		CID:         p.CID,
		Text:        p.Record.Text,
		CreatedAt:   p.Record.CreatedAt,
		Author:      p.Author.toAuthor(),
		LikeCount:   p.LikeCount,
		RepostCount: p.RepostCount,
		ReplyCount:  p.ReplyCount,
	}
}
