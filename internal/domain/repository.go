package domain

import "context"

// TownRepository persists town snapshots.
//
// Put never rejects a write for being older than what is stored; GetLatest
// resolves competing snapshots by LastUpdated, preferring the later write on
// ties. GetLatest returns (nil, nil) when no snapshot exists.
type TownRepository interface {
	Put(ctx context.Context, town Town) error
	GetLatest(ctx context.Context, nameLower string) (*Town, error)
}
