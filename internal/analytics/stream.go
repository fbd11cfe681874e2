// Package analytics records click and scan events and maintains their lifecycle.
package analytics

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"

	"github.com/smartlinks/smartlinks/internal/model"
)

const (
	// StreamKey holds events waiting for the Worker.
	StreamKey = "stream:smartlink_analytics"
	// DeadLetterStreamKey holds entries the Worker could not decode or validate.
	DeadLetterStreamKey = "stream:smartlink_analytics:dlq"

	streamMaxLen  = 100000
	streamTimeout = 100 * time.Millisecond
)

// StreamWriter appends events to the analytics stream; the Worker persists them.
type StreamWriter struct {
	client *redis.Client
	logger *slog.Logger
}

// NewStreamWriter creates a StreamWriter.
func NewStreamWriter(client *redis.Client, logger *slog.Logger) *StreamWriter {
	return &StreamWriter{
		client: client,
		logger: logger.With("component", "analytics.stream"),
	}
}

// Write encodes the event and appends it. The stream is trimmed approximately.
func (w *StreamWriter) Write(ctx context.Context, event *model.AnalyticsEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event %s: %w", event.ID, err)
	}

	ctx, cancel := context.WithTimeout(ctx, streamTimeout)
	defer cancel()

	id, err := w.client.XAdd(ctx, &redis.XAddArgs{
		Stream: StreamKey,
		MaxLen: streamMaxLen,
		Approx: true,
		Values: map[string]interface{}{"payload": string(payload)},
	}).Result()
	if err != nil {
		return fmt.Errorf("append event %s: %w", event.ID, err)
	}

	w.logger.Debug("analytics event queued", "event_id", event.ID, "stream_id", id)
	return nil
}

// NewConsumerID names this process within the consumer group. The random
// suffix keeps a restarted process from inheriting its predecessor's pending list.
func NewConsumerID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "smartlinks"
	}
	suffix := strings.ToLower(ulid.Make().String()[ulid.EncodedSize-6:])
	return host + "-" + strconv.Itoa(os.Getpid()) + "-" + suffix
}
