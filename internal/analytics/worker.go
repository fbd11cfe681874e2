package analytics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"

	"github.com/smartlinks/smartlinks/internal/metrics"
	"github.com/smartlinks/smartlinks/internal/model"
)

// ConsumerGroup is the Redis consumer group shared by all workers.
const ConsumerGroup = "smartlink_analytics_writers"

// deadLetterMaxLen caps the dead-letter stream.
const deadLetterMaxLen = 10000

// BatchInserter persists events, ignoring IDs that already exist. Insert is
// used to isolate the offending rows when a batch fails.
type BatchInserter interface {
	BulkInsert(ctx context.Context, events []*model.AnalyticsEvent) error
	Insert(ctx context.Context, event *model.AnalyticsEvent) error
}

// WorkerOptions configures a Worker. Zero durations and sizes take the defaults.
type WorkerOptions struct {
	Client     *redis.Client
	Repo       BatchInserter
	ConsumerID string
	Metrics    metrics.Recorder
	Logger     *slog.Logger
	// Rejected reports insert errors that repeat for the same row. Such
	// events are dead-lettered instead of retried. Nil treats every error
	// as transient.
	Rejected func(error) bool

	BatchSize     int
	BlockTimeout  time.Duration
	MaxAttempts   int
	RetryBackoff  time.Duration
	ClaimInterval time.Duration
	ClaimIdle     time.Duration
	DepthInterval time.Duration
	ErrorPause    time.Duration
}

func (o *WorkerOptions) applyDefaults() {
	if o.BatchSize <= 0 {
		o.BatchSize = 500
	}
	if o.BlockTimeout <= 0 {
		o.BlockTimeout = 5 * time.Second
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 3
	}
	if o.RetryBackoff <= 0 {
		o.RetryBackoff = time.Second
	}
	if o.ClaimInterval <= 0 {
		o.ClaimInterval = 10 * time.Second
	}
	if o.ClaimIdle <= 0 {
		o.ClaimIdle = 30 * time.Second
	}
	if o.DepthInterval <= 0 {
		o.DepthInterval = 5 * time.Second
	}
	if o.ErrorPause <= 0 {
		o.ErrorPause = time.Second
	}
	if o.Metrics == nil {
		o.Metrics = metrics.NewNoop()
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Rejected == nil {
		o.Rejected = func(error) bool { return false }
	}
}

// Worker moves events from the analytics stream into the database.
// Entries are acknowledged only after their batch is stored; entries left
// pending by a crashed consumer are reclaimed after ClaimIdle.
type Worker struct {
	opts   WorkerOptions
	redis  *redis.Client
	logger *slog.Logger

	claimCursor string
	nextClaim   time.Time
	nextDepth   time.Time

	mu      sync.Mutex
	running bool
	stop    context.CancelFunc
	done    chan struct{}
}

// NewWorker creates a Worker.
func NewWorker(opts WorkerOptions) *Worker {
	opts.applyDefaults()
	return &Worker{
		opts:        opts,
		redis:       opts.Client,
		logger:      opts.Logger.With("component", "analytics.worker", "consumer_id", opts.ConsumerID),
		claimCursor: "0-0",
	}
}

// Run consumes the stream until ctx is cancelled or Shutdown is called.
func (w *Worker) Run(ctx context.Context) error {
	w.mu.Lock()
	if w.running || w.done != nil {
		w.mu.Unlock()
		return errors.New("analytics worker already started")
	}
	ctx, w.stop = context.WithCancel(ctx)
	w.running = true
	w.done = make(chan struct{})
	done := w.done
	w.mu.Unlock()

	defer close(done)

	err := w.redis.XGroupCreateMkStream(ctx, StreamKey, ConsumerGroup, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("create consumer group: %w", err)
	}

	w.logger.Info("analytics worker started", "batch_size", w.opts.BatchSize)
	for ctx.Err() == nil {
		if err := w.step(ctx); err != nil && ctx.Err() == nil {
			w.logger.Error("analytics worker step failed", "error", err)
			sleep(ctx, w.opts.ErrorPause)
		}
	}
	w.logger.Info("analytics worker stopped")
	return nil
}

// Shutdown stops the loop and waits for the in-flight step to finish.
func (w *Worker) Shutdown(ctx context.Context) error {
	w.mu.Lock()
	stop, done := w.stop, w.done
	w.mu.Unlock()
	if done == nil {
		return nil
	}

	stop()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		w.logger.Warn("analytics worker shutdown timed out")
		return ctx.Err()
	}
}

// step handles one batch: reclaimed entries first, otherwise new ones.
func (w *Worker) step(ctx context.Context) error {
	w.reportDepth(ctx)

	messages, err := w.reclaim(ctx)
	if err != nil {
		w.logger.Warn("reclaim pending entries failed", "error", err)
	}
	if len(messages) == 0 {
		if messages, err = w.read(ctx); err != nil {
			return err
		}
	}
	if len(messages) == 0 {
		return nil
	}

	batch, ack := w.decode(ctx, messages)
	stored, storeErr := w.store(ctx, batch)
	ack = append(ack, stored...)
	if len(ack) > 0 {
		if err := w.redis.XAck(ctx, StreamKey, ConsumerGroup, ack...).Err(); err != nil {
			return fmt.Errorf("xack: %w", err)
		}
	}
	// Entries not acked stay pending and are reclaimed after ClaimIdle.
	return storeErr
}

func (w *Worker) read(ctx context.Context) ([]redis.XMessage, error) {
	streams, err := w.redis.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    ConsumerGroup,
		Consumer: w.opts.ConsumerID,
		Streams:  []string{StreamKey, ">"},
		Count:    int64(w.opts.BatchSize),
		Block:    w.opts.BlockTimeout,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("xreadgroup: %w", err)
	}
	if len(streams) == 0 {
		return nil, nil
	}
	return streams[0].Messages, nil
}

func (w *Worker) reclaim(ctx context.Context) ([]redis.XMessage, error) {
	now := time.Now()
	if now.Before(w.nextClaim) {
		return nil, nil
	}
	w.nextClaim = now.Add(w.opts.ClaimInterval)

	messages, cursor, err := w.redis.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   StreamKey,
		Group:    ConsumerGroup,
		Consumer: w.opts.ConsumerID,
		MinIdle:  w.opts.ClaimIdle,
		Start:    w.claimCursor,
		Count:    int64(w.opts.BatchSize),
	}).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("xautoclaim: %w", err)
	}
	if cursor != "" {
		w.claimCursor = cursor
	}
	if len(messages) > 0 {
		w.logger.Info("reclaimed pending analytics entries", "count", len(messages))
	}
	return messages, nil
}

// entry is a decoded event and the stream message it came from.
type entry struct {
	msg   redis.XMessage
	event *model.AnalyticsEvent
}

// decode splits messages into valid entries and the IDs of invalid ones.
// Invalid entries are copied to the dead-letter stream and acknowledged.
func (w *Worker) decode(ctx context.Context, messages []redis.XMessage) ([]entry, []string) {
	batch := make([]entry, 0, len(messages))
	var dead []string

	for _, msg := range messages {
		raw, ok := msg.Values["payload"].(string)
		if !ok {
			w.deadLetter(ctx, msg, "missing_payload", "payload field missing or not a string")
			dead = append(dead, msg.ID)
			continue
		}
		event, err := DecodeEvent([]byte(raw))
		if err != nil {
			w.deadLetter(ctx, msg, "decode_error", err.Error())
			dead = append(dead, msg.ID)
			continue
		}
		if err := ValidateEvent(event); err != nil {
			w.deadLetter(ctx, msg, "invalid_event", err.Error())
			dead = append(dead, msg.ID)
			continue
		}
		batch = append(batch, entry{msg: msg, event: event})
	}
	return batch, dead
}

// DecodeEvent parses a stream payload.
func DecodeEvent(payload []byte) (*model.AnalyticsEvent, error) {
	var event model.AnalyticsEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, err
	}
	return &event, nil
}

func (w *Worker) deadLetter(ctx context.Context, msg redis.XMessage, reason, detail string) {
	w.logger.Warn("analytics entry dead-lettered", "message_id", msg.ID, "reason", reason, "detail", detail)
	w.opts.Metrics.IncAnalyticsEventProcessed("dead_lettered")

	err := w.redis.XAdd(ctx, &redis.XAddArgs{
		Stream: DeadLetterStreamKey,
		MaxLen: deadLetterMaxLen,
		Approx: true,
		Values: map[string]interface{}{
			"original_id":      msg.ID,
			"reason":           reason,
			"detail":           detail,
			"payload":          msg.Values["payload"],
			"dead_lettered_at": time.Now().UTC().Format(time.RFC3339),
		},
	}).Err()
	if err != nil {
		w.logger.Error("dead-letter write failed", "message_id", msg.ID, "error", err)
	}
}

// store bulk-inserts the batch, retrying transient failures with doubling
// backoff. IDs are assigned before publishing, so a retried or redelivered
// batch is absorbed by the insert. When the batch keeps failing, entries are
// inserted one by one: rows the database rejects are dead-lettered and the
// rest are stored. It returns the IDs that may be acknowledged.
func (w *Worker) store(ctx context.Context, batch []entry) ([]string, error) {
	if len(batch) == 0 {
		return nil, nil
	}
	events := make([]*model.AnalyticsEvent, len(batch))
	ids := make([]string, len(batch))
	for i, e := range batch {
		events[i], ids[i] = e.event, e.msg.ID
	}

	backoff := w.opts.RetryBackoff
	var err error
	for attempt := 1; attempt <= w.opts.MaxAttempts; attempt++ {
		start := time.Now()
		if err = w.opts.Repo.BulkInsert(ctx, events); err == nil {
			w.observe(events, time.Since(start))
			return ids, nil
		}
		if attempt == w.opts.MaxAttempts || w.opts.Rejected(err) {
			break
		}
		w.logger.Warn("analytics batch insert failed, retrying",
			"attempt", attempt,
			"batch_size", len(events),
			"backoff", backoff,
			"error", err,
		)
		if !sleep(ctx, backoff) {
			return nil, ctx.Err()
		}
		backoff *= 2
	}

	w.logger.Warn("analytics batch insert failed, inserting entries one by one",
		"batch_size", len(events), "error", err)
	return w.storeEach(ctx, batch)
}

// storeEach inserts entries individually. A transient failure stops the pass
// and leaves the remaining entries pending.
func (w *Worker) storeEach(ctx context.Context, batch []entry) ([]string, error) {
	ack := make([]string, 0, len(batch))
	stored := make([]*model.AnalyticsEvent, 0, len(batch))
	start := time.Now()

	for i, e := range batch {
		err := w.opts.Repo.Insert(ctx, e.event)
		switch {
		case err == nil:
			stored = append(stored, e.event)
			ack = append(ack, e.msg.ID)
		case w.opts.Rejected(err):
			w.deadLetter(ctx, e.msg, "insert_rejected", err.Error())
			ack = append(ack, e.msg.ID)
		default:
			for range batch[i:] {
				w.opts.Metrics.IncAnalyticsEventProcessed("failed")
			}
			if len(stored) > 0 {
				w.observe(stored, time.Since(start))
			}
			return ack, fmt.Errorf("insert event %s: %w", e.event.ID, err)
		}
	}
	if len(stored) > 0 {
		w.observe(stored, time.Since(start))
	}
	return ack, nil
}

func (w *Worker) observe(events []*model.AnalyticsEvent, took time.Duration) {
	m := w.opts.Metrics
	m.ObserveAnalyticsBatchSize(len(events))
	m.ObserveAnalyticsBatchDuration(took)
	for _, e := range events {
		m.IncAnalyticsEventProcessed("success")
		m.ObserveAnalyticsIngestLag(time.Since(e.CreatedAt))
	}
	w.logger.Debug("analytics batch stored", "events", len(events), "took", took)
}

// reportDepth publishes pending + lag for the group at most once per DepthInterval.
func (w *Worker) reportDepth(ctx context.Context) {
	now := time.Now()
	if now.Before(w.nextDepth) {
		return
	}
	w.nextDepth = now.Add(w.opts.DepthInterval)

	groups, err := w.redis.XInfoGroups(ctx, StreamKey).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			w.logger.Warn("stream group info failed", "error", err)
		}
		return
	}
	for _, g := range groups {
		if g.Name == ConsumerGroup {
			w.opts.Metrics.SetAnalyticsQueueDepth(g.Pending + g.Lag)
			return
		}
	}
}

// sleep waits for d or ctx, reporting whether the full wait elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
