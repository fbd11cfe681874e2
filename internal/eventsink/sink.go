// Package eventsink pushes recorded smart-link events to a third-party collector.
package eventsink

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/smartlinks/smartlinks/internal/metrics"
)

// Header names for sink deliveries.
const (
	HeaderSignature  = "X-Smartlinks-Signature"
	HeaderTimestamp  = "X-Smartlinks-Timestamp"
	HeaderDeliveryID = "X-Smartlinks-Delivery-Id"
	HeaderEventType  = "X-Smartlinks-Event"
)

// DefaultTimeout bounds a single delivery.
const DefaultTimeout = 3 * time.Second

// Options configures a Sink.
type Options struct {
	URL     string
	Secret  string
	Timeout time.Duration
	Metrics metrics.Recorder
	Logger  *slog.Logger
	Now     func() time.Time
}

// Sink delivers events as signed JSON POSTs.
type Sink struct {
	url     string
	secret  string
	client  *http.Client
	metrics metrics.Recorder
	logger  *slog.Logger
	now     func() time.Time
}

type envelope struct {
	Event      string         `json:"event"`
	DeliveryID string         `json:"delivery_id"`
	SentAt     string         `json:"sent_at"`
	Data       map[string]any `json:"data"`
}

// New creates a Sink.
func New(opts Options) *Sink {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewNoop()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Sink{
		url:     opts.URL,
		secret:  opts.Secret,
		client:  NewHTTPClient(opts.Timeout),
		metrics: opts.Metrics,
		logger:  opts.Logger.With("component", "eventsink"),
		now:     opts.Now,
	}
}

// NewHTTPClient returns a client with bounded timeouts that never follows redirects.
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   timeout,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			TLSHandshakeTimeout:   timeout,
			ResponseHeaderTimeout: timeout,
			MaxIdleConns:          20,
			MaxIdleConnsPerHost:   10,
			IdleConnTimeout:       90 * time.Second,
		},
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

// PushEvent posts one event and reports whether the collector accepted it (2xx).
// Failures are logged and counted, never returned.
func (s *Sink) PushEvent(ctx context.Context, eventType string, payload map[string]any) bool {
	if err := s.push(ctx, eventType, payload); err != nil {
		s.logger.Warn("event sink push failed", "event", eventType, "error", err)
		s.metrics.IncEventSinkPush("failed")
		return false
	}
	s.metrics.IncEventSinkPush("success")
	return true
}

func (s *Sink) push(ctx context.Context, eventType string, payload map[string]any) error {
	now := s.now().UTC()
	deliveryID := uuid.NewString()

	body, err := json.Marshal(envelope{
		Event:      eventType,
		DeliveryID: deliveryID,
		SentAt:     now.Format(time.RFC3339),
		Data:       payload,
	})
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	timestamp := now.Unix()
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Smartlinks-EventSink/1.0")
	req.Header.Set(HeaderEventType, eventType)
	req.Header.Set(HeaderDeliveryID, deliveryID)
	req.Header.Set(HeaderTimestamp, strconv.FormatInt(timestamp, 10))
	if s.secret != "" {
		req.Header.Set(HeaderSignature, Sign(s.secret, timestamp, body))
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("post event: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("collector returned status %d", resp.StatusCode)
	}
	return nil
}
