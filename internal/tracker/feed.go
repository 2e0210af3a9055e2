package tracker

import (
	"context"
	"sync"
)

const defaultFeedSize = 20

// Feed keeps the most recent notifications in memory for the UI.
type Feed struct {
	mu    sync.Mutex
	size  int
	items []Notification
}

// NewFeed creates a Feed holding at most size notifications. Non-positive
// sizes use the default.
func NewFeed(size int) *Feed {
	if size <= 0 {
		size = defaultFeedSize
	}
	return &Feed{size: size}
}

func (f *Feed) Notify(_ context.Context, n Notification) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items = append(f.items, n)
	if over := len(f.items) - f.size; over > 0 {
		f.items = append(f.items[:0:0], f.items[over:]...)
	}
}

// Recent returns up to limit notifications, newest first. limit <= 0 returns
// all of them.
func (f *Feed) Recent(limit int) []Notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	if limit <= 0 || limit > len(f.items) {
		limit = len(f.items)
	}
	out := make([]Notification, 0, limit)
	for i := len(f.items) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, f.items[i])
	}
	return out
}

// Clear drops every notification.
func (f *Feed) Clear() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items = nil
}
