package repository

import (
	"context"
)

// PriceStore is the gateway's view of Redis: latest-tick snapshots plus the
// per-symbol pub/sub channels the processor publishes to.
type PriceStore interface {
	GetSnapshots(ctx context.Context, symbols []string) ([]string, error)
	SubscribeToFeed(ctx context.Context, symbol string) error
	UnsubscribeFromFeed(ctx context.Context, symbol string) error
	RunPubSub(ctx context.Context, onMessage func(symbol string, payload string))
	Ping(ctx context.Context) error
	Close() error
}
