// Package publisher defines the event publishing contract for completed
// discovery runs.
package publisher

import (
	"context"
	"time"
)

// DiscoveryEvent summarizes one finished discovery run for downstream
// consumers.
type DiscoveryEvent struct {
	RequestID     string    `json:"requestId,omitempty"`
	CompletedAt   time.Time `json:"completedAt"`
	Mode          string    `json:"mode"`
	PostsReturned int       `json:"postsReturned"`
	NewProfiles   int       `json:"newProfiles"`
	TotalProfiles int       `json:"totalProfiles"`
}

// Publisher delivers discovery events. Publishing is best-effort; a failed
// publish never fails the discovery run that produced the event.
type Publisher interface {
	Publish(ctx context.Context, event DiscoveryEvent) (string, error)
}

// Noop discards events.
type Noop struct{}

// Publish does nothing.
func (Noop) Publish(_ context.Context, _ DiscoveryEvent) (string, error) {
	return "", nil
}
