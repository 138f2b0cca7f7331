package swahili

// EngagementScore collapses raw interaction counts into one comparable value.
// A reply signals deeper engagement than a repost, and a repost more than a
// like, hence the fixed 1/2/3 weighting.
func EngagementScore(likes, reposts, replies int) int {
	return likes + 2*reposts + 3*replies
}
