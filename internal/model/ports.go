package model

import (
	"context"
	"time"
)

// ── Storage Port Interfaces ──
// These interfaces decouple the gateway from concrete storage
// (Redis, SQLite). Each implementation satisfies one or more of them.

// FrameWriter persists the latest frame per chart.
type FrameWriter interface {
	// SaveFrame stores f as the latest frame of f.Chart, replacing any previous one.
	SaveFrame(ctx context.Context, f Frame) error

	// DeleteFrame forgets the stored frame of a chart.
	DeleteFrame(ctx context.Context, chart string) error
}

// FrameReader loads persisted frames for restore after restart.
type FrameReader interface {
	// LoadFrames returns the latest frame of every stored chart.
	LoadFrames(ctx context.Context) ([]Frame, error)
}

// FrameStore is a FrameWriter and FrameReader.
type FrameStore interface {
	FrameWriter
	FrameReader
	Close() error
}

// FrameSubscriber delivers frames published by external producers.
type FrameSubscriber interface {
	// SubscribeFrames blocks, calling fn for every decoded frame,
	// until ctx is cancelled.
	SubscribeFrames(ctx context.Context, fn func(Frame)) error
}

// ChartInfo is a summary of one live chart.
type ChartInfo struct {
	ID        string    `json:"id"`
	Symbol    string    `json:"symbol"`
	Bars      int       `json:"bars"`
	UpdatedAt time.Time `json:"updated_at"`
}
