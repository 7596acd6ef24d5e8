package store

import (
	"context"
	"fmt"
	"time"

	"github.com/zhouzirui/relay-chat/backend/internal/errs"
	"github.com/zhouzirui/relay-chat/backend/internal/model/chat"
)

// DefaultTimeout bounds a single store call when none is configured.
const DefaultTimeout = 5 * time.Second

// Bounded decorates a Store so that every call runs under its own deadline and every
// failure is reported as errs.ErrStorageFailure. A slow backend then costs one caller
// at most the timeout instead of stalling the broadcast path.
type Bounded struct {
	next    Store
	timeout time.Duration
}

// NewBounded wraps next. A non-positive timeout falls back to DefaultTimeout.
func NewBounded(next Store, timeout time.Duration) *Bounded {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Bounded{next: next, timeout: timeout}
}

func (b *Bounded) SaveMessage(ctx context.Context, msg chat.Message) error {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()
	return b.wrap("save message", b.call(ctx, func(ctx context.Context) error {
		return b.next.SaveMessage(ctx, msg)
	}))
}

func (b *Bounded) RecentMessages(ctx context.Context) ([]chat.Message, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	var messages []chat.Message
	err := b.call(ctx, func(ctx context.Context) error {
		var err error
		messages, err = b.next.RecentMessages(ctx)
		return err
	})
	if err != nil {
		return nil, b.wrap("recent messages", err)
	}
	return messages, nil
}

func (b *Bounded) ClearMessages(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()
	return b.wrap("clear messages", b.call(ctx, b.next.ClearMessages))
}

func (b *Bounded) Close() error { return b.next.Close() }

// call runs fn and gives up once ctx is done, even when the backend ignores ctx.
func (b *Bounded) call(ctx context.Context, fn func(context.Context) error) error {
	done := make(chan error, 1)
	go func() { done <- fn(ctx) }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *Bounded) wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", op, errs.ErrStorageFailure, err)
}
