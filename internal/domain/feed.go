package domain

import "time"

// FeedSnapshot is one decoded fetch of the marker feed.
type FeedSnapshot struct {
	Body      []byte // raw response body, kept for archiving
	Areas     []AreaMarker
	FetchedAt time.Time
}
