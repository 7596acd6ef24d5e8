package store

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/relay-chat/backend/internal/errs"
	"github.com/zhouzirui/relay-chat/backend/internal/model/chat"
)

func sampleMessages(n int) []chat.Message {
	at := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	out := make([]chat.Message, n)
	for i := range out {
		out[i] = chat.Message{
			ID:        uuid.NewString(),
			Username:  fmt.Sprintf("user%d", i),
			Text:      fmt.Sprintf("message %d", i),
			Timestamp: at.Add(time.Duration(i) * time.Second),
		}
	}
	return out
}

// exerciseStore runs the behaviour every driver shares.
func exerciseStore(t *testing.T, s Store, limit int) {
	t.Helper()
	ctx := context.Background()

	empty, err := s.RecentMessages(ctx)
	require.NoError(t, err)
	require.Empty(t, empty)

	msgs := sampleMessages(limit + 2)
	for _, m := range msgs {
		require.NoError(t, s.SaveMessage(ctx, m))
	}

	got, err := s.RecentMessages(ctx)
	require.NoError(t, err)
	require.Len(t, got, limit)
	for i, m := range got {
		want := msgs[i+2]
		require.Equal(t, want.ID, m.ID)
		require.Equal(t, want.Username, m.Username)
		require.Equal(t, want.Text, m.Text)
		require.True(t, want.Timestamp.Equal(m.Timestamp))
	}

	require.NoError(t, s.ClearMessages(ctx))
	got, err = s.RecentMessages(ctx)
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore(3), 3)
}

func TestMemoryStoreDefaultLimit(t *testing.T) {
	s := NewMemoryStore(0)
	require.Equal(t, DefaultHistoryLimit, s.limit)
}

func TestBadgerStore(t *testing.T) {
	s, err := OpenBadger(t.TempDir(), 3)
	require.NoError(t, err)
	defer s.Close()

	exerciseStore(t, s, 3)
}

func TestDecodeNewestFirst(t *testing.T) {
	msgs := sampleMessages(3)
	vals := make([]string, 0, len(msgs))
	for i := len(msgs) - 1; i >= 0; i-- {
		raw, err := sonic.MarshalString(msgs[i])
		require.NoError(t, err)
		vals = append(vals, raw)
	}

	got, err := decodeNewestFirst(vals)
	require.NoError(t, err)
	require.Len(t, got, 3)
	require.Equal(t, msgs[0].ID, got[0].ID)
	require.Equal(t, msgs[2].ID, got[2].ID)

	_, err = decodeNewestFirst([]string{"{"})
	require.Error(t, err)
}

type stubStore struct {
	delay time.Duration
	err   error
	saved []chat.Message
}

func (s *stubStore) wait(ctx context.Context) error {
	select {
	case <-time.After(s.delay):
		return s.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *stubStore) SaveMessage(ctx context.Context, msg chat.Message) error {
	if err := s.wait(ctx); err != nil {
		return err
	}
	s.saved = append(s.saved, msg)
	return nil
}

func (s *stubStore) RecentMessages(ctx context.Context) ([]chat.Message, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}
	return s.saved, nil
}

func (s *stubStore) ClearMessages(ctx context.Context) error { return s.wait(ctx) }

func (s *stubStore) Close() error { return nil }

func TestBoundedPassesThrough(t *testing.T) {
	b := NewBounded(&stubStore{}, time.Second)
	ctx := context.Background()

	require.NoError(t, b.SaveMessage(ctx, sampleMessages(1)[0]))
	got, err := b.RecentMessages(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.NoError(t, b.ClearMessages(ctx))
}

func TestBoundedTimesOut(t *testing.T) {
	b := NewBounded(&stubStore{delay: time.Second}, 20*time.Millisecond)
	ctx := context.Background()

	start := time.Now()
	err := b.SaveMessage(ctx, sampleMessages(1)[0])
	require.True(t, errors.Is(err, errs.ErrStorageFailure))
	require.True(t, errors.Is(err, context.DeadlineExceeded))
	require.Less(t, time.Since(start), 500*time.Millisecond)

	_, err = b.RecentMessages(ctx)
	require.True(t, errors.Is(err, errs.ErrStorageFailure))

	err = b.ClearMessages(ctx)
	require.True(t, errors.Is(err, errs.ErrStorageFailure))
}

func TestBoundedTagsBackendErrors(t *testing.T) {
	boom := errors.New("connection refused")
	b := NewBounded(&stubStore{err: boom}, time.Second)

	err := b.ClearMessages(context.Background())
	require.True(t, errors.Is(err, errs.ErrStorageFailure))
	require.True(t, errors.Is(err, boom))
}

func TestBoundedDefaultTimeout(t *testing.T) {
	require.Equal(t, DefaultTimeout, NewBounded(NewMemoryStore(1), 0).timeout)
}
