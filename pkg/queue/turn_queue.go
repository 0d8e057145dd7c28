package queue

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"quranchat/pkg/domain"
)

// Turn is one finished chat exchange queued for durable recording.
type Turn struct {
	ConversationID string         `json:"conversationId"`
	UserID         string         `json:"userId"`
	UserMessage    domain.Message `json:"userMessage"`
	ModelMessage   domain.Message `json:"modelMessage"`
}

// TurnHandler persists one dequeued turn.
type TurnHandler func(ctx context.Context, turn Turn) error

// RedisTurnQueue carries finished turns over a Redis stream so persistence
// happens off the request path. Enqueue is best-effort by contract: callers
// fall back to a direct write when it fails.
type RedisTurnQueue struct {
	client   *redis.Client
	stream   string
	group    string
	consumer string
	block    time.Duration
	maxLen   int64
	once     sync.Once
}

// Config configures the turn queue.
type Config struct {
	Addr     string
	Password string
	Stream   string
	Group    string
	Consumer string
	Block    time.Duration
	MaxLen   int64
}

// NewRedisTurnQueue validates the config and connects.
func NewRedisTurnQueue(cfg Config) (*RedisTurnQueue, error) {
	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		return nil, errors.New("redis addr required")
	}
	stream := strings.TrimSpace(cfg.Stream)
	if stream == "" {
		stream = "quranchat:turns"
	}
	group := strings.TrimSpace(cfg.Group)
	if group == "" {
		group = "recorders"
	}
	consumer := strings.TrimSpace(cfg.Consumer)
	if consumer == "" {
		consumer = "recorder-1"
	}
	block := cfg.Block
	if block <= 0 {
		block = 5 * time.Second
	}
	maxLen := cfg.MaxLen
	if maxLen <= 0 {
		maxLen = 10000
	}
	return &RedisTurnQueue{
		client:   redis.NewClient(&redis.Options{Addr: addr, Password: cfg.Password}),
		stream:   stream,
		group:    group,
		consumer: consumer,
		block:    block,
		maxLen:   maxLen,
	}, nil
}

// Enqueue appends one turn to the stream.
func (q *RedisTurnQueue) Enqueue(ctx context.Context, turn Turn) error {
	payload, err := json.Marshal(turn)
	if err != nil {
		return err
	}
	return q.client.XAdd(ctx, &redis.XAddArgs{
		Stream: q.stream,
		MaxLen: q.maxLen,
		Approx: true,
		Values: map[string]any{"turn": string(payload)},
	}).Err()
}

// Start launches the consumer loop. It returns immediately; the loop stops
// when ctx is canceled. Handler failures are logged and the entry is acked
// anyway — a turn that cannot be persisted is dropped, not retried forever.
func (q *RedisTurnQueue) Start(ctx context.Context, handler TurnHandler) {
	q.ensureGroup(ctx)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}
			if n, err := q.consumeOnce(ctx, handler); err != nil {
				if ctx.Err() != nil {
					return
				}
				slog.Warn("turn queue read failed", "err", err)
				time.Sleep(time.Second)
			} else if n == 0 {
				continue
			}
		}
	}()
}

func (q *RedisTurnQueue) ensureGroup(ctx context.Context) {
	q.once.Do(func() {
		// "0" so entries enqueued before the first consumer starts are
		// still delivered.
		err := q.client.XGroupCreateMkStream(ctx, q.stream, q.group, "0").Err()
		if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
			slog.Warn("turn queue group create failed", "err", err)
		}
	})
}

// consumeOnce reads and handles up to one batch of entries.
func (q *RedisTurnQueue) consumeOnce(ctx context.Context, handler TurnHandler) (int, error) {
	streams, err := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    q.group,
		Consumer: q.consumer,
		Streams:  []string{q.stream, ">"},
		Count:    10,
		Block:    q.block,
	}).Result()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	handled := 0
	for _, stream := range streams {
		for _, msg := range stream.Messages {
			q.handleMessage(ctx, msg, handler)
			handled++
		}
	}
	return handled, nil
}

func (q *RedisTurnQueue) handleMessage(ctx context.Context, msg redis.XMessage, handler TurnHandler) {
	raw, _ := msg.Values["turn"].(string)
	var turn Turn
	if err := json.Unmarshal([]byte(raw), &turn); err != nil {
		slog.Warn("turn queue entry malformed", "id", msg.ID, "err", err)
	} else if err := handler(ctx, turn); err != nil {
		slog.Warn("turn recording failed", "conversation_id", turn.ConversationID, "err", err)
	}
	if err := q.client.XAck(ctx, q.stream, q.group, msg.ID).Err(); err != nil {
		slog.Warn("turn queue ack failed", "id", msg.ID, "err", err)
	}
}
