package events

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/keyword-hunter/internal/domain"
)

// fakeReader replays a fixed set of messages and then blocks until the
// context is cancelled.
type fakeReader struct {
	mu        sync.Mutex
	msgs      []kafka.Message
	fetchErrs []error
	committed []int64
	closed    bool
	drained   chan struct{}
}

func newFakeReader(msgs ...kafka.Message) *fakeReader {
	return &fakeReader{msgs: msgs, drained: make(chan struct{})}
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.fetchErrs) > 0 {
		err := r.fetchErrs[0]
		r.fetchErrs = r.fetchErrs[1:]
		r.mu.Unlock()
		return kafka.Message{}, err
	}
	if len(r.msgs) > 0 {
		msg := r.msgs[0]
		r.msgs = r.msgs[1:]
		r.mu.Unlock()
		return msg, nil
	}
	r.mu.Unlock()

	select {
	case <-r.drained:
	default:
		close(r.drained)
	}
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func requestMessage(t *testing.T, offset int64, eventType string, payload any) kafka.Message {
	t.Helper()
	ev := newRunEvent(t, eventType, uuid.New(), payload)
	msg, err := EncodeMessage(ev)
	require.NoError(t, err)
	msg.Offset = offset
	return msg
}

func runListener(t *testing.T, r *fakeReader, handler RunHandler) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	l := NewListener(r, handler, newTestLogger())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	<-r.drained
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestListener_HandlesRunRequests(t *testing.T) {
	first, second := uuid.New(), uuid.New()
	r := newFakeReader(
		requestMessage(t, 1, domain.EventTypeRunRequested, domain.RunRequestedPayload{RunID: first}),
		requestMessage(t, 2, domain.EventTypeRunRequested, domain.RunRequestedPayload{RunID: second}),
	)

	var handled []uuid.UUID
	runListener(t, r, func(_ context.Context, id uuid.UUID) error {
		handled = append(handled, id)
		return nil
	})

	assert.Equal(t, []uuid.UUID{first, second}, handled)
	assert.Equal(t, []int64{1, 2}, r.committed)
}

func TestListener_SkipsOtherMessages(t *testing.T) {
	r := newFakeReader(
		kafka.Message{Offset: 1, Value: []byte("garbage")},
		requestMessage(t, 2, domain.EventTypeRunStarted, domain.RunStartedPayload{RunID: uuid.New()}),
		requestMessage(t, 3, domain.EventTypeRunRequested, domain.RunRequestedPayload{}),
	)

	calls := 0
	runListener(t, r, func(context.Context, uuid.UUID) error {
		calls++
		return nil
	})

	assert.Zero(t, calls)
	assert.Equal(t, []int64{1, 2, 3}, r.committed, "skipped messages are still committed")
}

func TestListener_HandlerErrorStillCommits(t *testing.T) {
	r := newFakeReader(
		requestMessage(t, 7, domain.EventTypeRunRequested, domain.RunRequestedPayload{RunID: uuid.New()}),
	)

	runListener(t, r, func(context.Context, uuid.UUID) error {
		return errors.New("job failed")
	})

	assert.Equal(t, []int64{7}, r.committed)
}

func TestListener_FetchErrorIsRetried(t *testing.T) {
	id := uuid.New()
	r := newFakeReader(requestMessage(t, 1, domain.EventTypeRunRequested, domain.RunRequestedPayload{RunID: id}))
	r.fetchErrs = []error{errors.New("rebalance in progress")}

	var handled []uuid.UUID
	runListener(t, r, func(_ context.Context, got uuid.UUID) error {
		handled = append(handled, got)
		return nil
	})

	assert.Equal(t, []uuid.UUID{id}, handled)
}

func TestListener_Close(t *testing.T) {
	r := newFakeReader()
	l := NewListener(r, func(context.Context, uuid.UUID) error { return nil }, newTestLogger())

	require.NoError(t, l.Close())
	assert.True(t, r.closed)
}
