package analytics

import (
	"context"

	"github.com/smartlinks/smartlinks/internal/model"
)

// Writer persists a single analytics event.
type Writer interface {
	Write(ctx context.Context, event *model.AnalyticsEvent) error
}

// Inserter is the repository capability used by DirectWriter.
type Inserter interface {
	Insert(ctx context.Context, event *model.AnalyticsEvent) error
}

// DirectWriter inserts events synchronously.
type DirectWriter struct {
	repo Inserter
}

// NewDirectWriter creates a DirectWriter.
func NewDirectWriter(repo Inserter) *DirectWriter {
	return &DirectWriter{repo: repo}
}

// Write inserts the event.
func (w *DirectWriter) Write(ctx context.Context, event *model.AnalyticsEvent) error {
	return w.repo.Insert(ctx, event)
}
