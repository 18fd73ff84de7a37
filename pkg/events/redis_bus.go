package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/cardworks/appraisal/pkg/contracts"
)

const (
	streamKey     = "cards:events"
	deadLetterKey = "cards:deadletter"
	consumerGroup = "pipeline"

	// reclaimMinIdle is how long an unacked entry must sit in the pending
	// list before any consumer may steal it; reclaimInterval is the sweep
	// cadence.
	reclaimMinIdle  = 30 * time.Second
	reclaimInterval = 15 * time.Second
)

// streamClient is the slice of the redis API the bus uses.
type streamClient interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
	XGroupCreateMkStream(ctx context.Context, stream, group, start string) *redis.StatusCmd
	XReadGroup(ctx context.Context, a *redis.XReadGroupArgs) *redis.XStreamSliceCmd
	XAutoClaim(ctx context.Context, a *redis.XAutoClaimArgs) *redis.XAutoClaimCmd
	XAck(ctx context.Context, stream, group string, ids ...string) *redis.IntCmd
	LPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
}

// RedisBus implements Bus over a redis stream with a consumer group, and
// DeadLetterQueue over a redis list.
type RedisBus struct {
	rdb      streamClient
	consumer string
	log      *slog.Logger
}

// NewRedisBus creates a bus bound to one consumer name within the pipeline
// group.
func NewRedisBus(rdb *redis.Client, consumer string) *RedisBus {
	return &RedisBus{
		rdb:      rdb,
		consumer: consumer,
		log:      slog.Default().With("component", "event-bus"),
	}
}

func (b *RedisBus) publish(ctx context.Context, env *Envelope) error {
	err := b.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: streamKey,
		Values: map[string]any{
			"source":     env.Source,
			"detailType": env.DetailType,
			"detail":     string(env.Detail),
		},
	}).Err()
	if err != nil {
		return contracts.NewFault(contracts.KindTransient, fmt.Errorf("xadd %s: %w", env.DetailType, err))
	}
	return nil
}

func (b *RedisBus) PublishCardCreated(ctx context.Context, ev contracts.CardCreated) error {
	env, err := WrapCardCreated(ev)
	if err != nil {
		return err
	}
	return b.publish(ctx, env)
}

func (b *RedisBus) PublishValuationCompleted(ctx context.Context, ev contracts.CardValuationCompleted) error {
	env, err := WrapValuationCompleted(ev)
	if err != nil {
		return err
	}
	return b.publish(ctx, env)
}

// ConsumeCardCreated reads the stream through the pipeline consumer group,
// acking events whose handler returns nil. Non-creation events are acked and
// skipped. Between reads it periodically reclaims pending entries left unacked
// by failed handlers or dead consumers, so those get redelivered instead of
// starving in the pending list.
func (b *RedisBus) ConsumeCardCreated(ctx context.Context, handler Handler) error {
	err := b.rdb.XGroupCreateMkStream(ctx, streamKey, consumerGroup, "0").Err()
	if err != nil && !isBusyGroup(err) {
		return fmt.Errorf("create consumer group: %w", err)
	}

	nextReclaim := time.Now()
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if !time.Now().Before(nextReclaim) {
			b.reclaimPending(ctx, handler)
			nextReclaim = time.Now().Add(reclaimInterval)
		}

		streams, err := b.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    consumerGroup,
			Consumer: b.consumer,
			Streams:  []string{streamKey, ">"},
			Count:    16,
			Block:    5 * time.Second,
		}).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			b.log.WarnContext(ctx, "event read failed, backing off", "error", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Second):
			}
			continue
		}

		for _, stream := range streams {
			for _, msg := range stream.Messages {
				b.dispatch(ctx, msg, handler)
			}
		}
	}
}

func (b *RedisBus) dispatch(ctx context.Context, msg redis.XMessage, handler Handler) {
	detailType, _ := msg.Values["detailType"].(string)
	if detailType != contracts.DetailCardCreated {
		b.ack(ctx, msg.ID)
		return
	}

	raw, _ := msg.Values["detail"].(string)
	var ev contracts.CardCreated
	if err := json.Unmarshal([]byte(raw), &ev); err != nil {
		b.log.ErrorContext(ctx, "dropping malformed creation event", "id", msg.ID, "error", err)
		b.ack(ctx, msg.ID)
		return
	}

	if err := handler(ctx, ev); err != nil {
		// Left unacked; the reclaim sweep redelivers it once it has been
		// idle for reclaimMinIdle.
		b.log.WarnContext(ctx, "creation event handler failed",
			"id", msg.ID, "card_id", ev.CardID, "error", err)
		return
	}
	b.ack(ctx, msg.ID)
}

// reclaimPending walks the group's pending entry list with XAUTOCLAIM, claims
// entries idle longer than reclaimMinIdle for this consumer and redispatches
// them. A "0-0" cursor from redis marks a completed sweep.
func (b *RedisBus) reclaimPending(ctx context.Context, handler Handler) {
	start := "0-0"
	for {
		msgs, next, err := b.rdb.XAutoClaim(ctx, &redis.XAutoClaimArgs{
			Stream:   streamKey,
			Group:    consumerGroup,
			Consumer: b.consumer,
			MinIdle:  reclaimMinIdle,
			Start:    start,
			Count:    16,
		}).Result()
		if err != nil {
			if ctx.Err() == nil {
				b.log.WarnContext(ctx, "pending reclaim failed", "error", err)
			}
			return
		}
		if len(msgs) > 0 {
			b.log.InfoContext(ctx, "reclaimed pending events", "count", len(msgs))
		}
		for _, msg := range msgs {
			b.dispatch(ctx, msg, handler)
		}
		if next == "0-0" || next == start {
			return
		}
		start = next
	}
}

func (b *RedisBus) ack(ctx context.Context, id string) {
	if err := b.rdb.XAck(ctx, streamKey, consumerGroup, id).Err(); err != nil {
		b.log.WarnContext(ctx, "event ack failed", "id", id, "error", err)
	}
}

// Push appends a dead-letter message for operator review.
func (b *RedisBus) Push(ctx context.Context, msg contracts.DeadLetter) error {
	raw, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal dead letter: %w", err)
	}
	if err := b.rdb.LPush(ctx, deadLetterKey, raw).Err(); err != nil {
		return contracts.NewFault(contracts.KindTransient, fmt.Errorf("push dead letter: %w", err))
	}
	return nil
}

func isBusyGroup(err error) bool {
	return err != nil && len(err.Error()) >= 9 && err.Error()[:9] == "BUSYGROUP"
}
