// Package sink mirrors run events to a Redis stream per run so external
// dashboards can tail a run while it executes.
package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/macterra/Axio-sub003/pkg/harness"
	"github.com/macterra/Axio-sub003/pkg/kernel"
)

// DefaultPrefix is the stream key prefix; the run id is appended.
const DefaultPrefix = "aki:events"

// streamAdder is the subset of a redis client the sink needs.
type streamAdder interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
}

// Options configure a RedisSink.
type Options struct {
	Prefix string
	// MaxLen caps each stream approximately. Zero keeps every entry.
	MaxLen int64
	// Rate and Burst throttle XADD calls. A zero Rate is unlimited.
	Rate   rate.Limit
	Burst  int
	Logger *slog.Logger
}

// RedisSink publishes every event it observes. It is safe for use by
// concurrent runs.
type RedisSink struct {
	client  streamAdder
	prefix  string
	maxLen  int64
	limiter *rate.Limiter
	logger  *slog.Logger
}

var _ harness.Observer = (*RedisSink)(nil)

// NewRedisSink wraps a connected client.
func NewRedisSink(client streamAdder, opts Options) *RedisSink {
	prefix := opts.Prefix
	if prefix == "" {
		prefix = DefaultPrefix
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	limit, burst := opts.Rate, opts.Burst
	if limit == 0 {
		limit = rate.Inf
	}
	if burst < 1 {
		burst = 1
	}
	return &RedisSink{
		client:  client,
		prefix:  prefix,
		maxLen:  opts.MaxLen,
		limiter: rate.NewLimiter(limit, burst),
		logger:  logger.With("component", "sink"),
	}
}

// Dial connects to addr and checks the server with PING.
func Dial(ctx context.Context, addr string, opts Options) (*RedisSink, *redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("redis %s: %w", addr, err)
	}
	return NewRedisSink(client, opts), client, nil
}

// Stream returns the stream key for a run.
func (s *RedisSink) Stream(runID string) string {
	if runID == "" {
		return s.prefix
	}
	return s.prefix + ":" + runID
}

// OnEvent implements harness.Observer.
func (s *RedisSink) OnEvent(ctx context.Context, ev *kernel.EventEnvelope) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("sink throttle: %w", err)
	}
	payload, err := json.Marshal(ev.Payload)
	if err != nil {
		return fmt.Errorf("encode payload of %s: %w", ev.EventID, err)
	}
	args := &redis.XAddArgs{
		Stream: s.Stream(harness.RunIDFromContext(ctx)),
		Values: map[string]interface{}{
			"event_id":   ev.EventID,
			"event_type": ev.EventType,
			"seq":        ev.SequenceNumber,
			"cycle":      ev.Cycle,
			"epoch":      ev.Epoch,
			"chain_hash": ev.ChainHash,
			"payload":    string(payload),
		},
	}
	if s.maxLen > 0 {
		args.MaxLen = s.maxLen
		args.Approx = true
	}
	if err := s.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("xadd %s: %w", args.Stream, err)
	}
	s.logger.Debug("event published", "stream", args.Stream, "event_type", ev.EventType, "seq", ev.SequenceNumber)
	return nil
}
