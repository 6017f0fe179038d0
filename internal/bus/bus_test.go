package bus

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"partyboard/internal/domain"
)

func batch(ids ...uint32) []domain.Listing {
	listings := make([]domain.Listing, len(ids))
	for i, id := range ids {
		listings[i] = domain.Listing{ID: id}
	}
	return listings
}

func TestRecvDeliversInPublicationOrder(t *testing.T) {
	b := New(16)
	sub := b.Subscribe()
	defer sub.Close()

	b.Publish(batch(1))
	b.Publish(batch(2, 3))
	b.Publish(batch(4))

	ctx := context.Background()
	for _, want := range [][]domain.Listing{batch(1), batch(2, 3), batch(4)} {
		got, err := sub.Recv(ctx)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestRecvBlocksUntilPublish(t *testing.T) {
	b := New(16)
	sub := b.Subscribe()
	defer sub.Close()

	done := make(chan []domain.Listing, 1)
	go func() {
		got, err := sub.Recv(context.Background())
		if err == nil {
			done <- got
		}
	}()

	select {
	case <-done:
		t.Fatal("Recv returned before anything was published")
	case <-time.After(20 * time.Millisecond):
	}

	b.Publish(batch(9))

	select {
	case got := <-done:
		assert.Equal(t, batch(9), got)
	case <-time.After(time.Second):
		t.Fatal("Recv did not wake on publish")
	}
}

func TestSubscriberOnlySeesBatchesAfterSubscribe(t *testing.T) {
	b := New(16)
	b.Publish(batch(1))

	sub := b.Subscribe()
	defer sub.Close()
	b.Publish(batch(2))

	got, err := sub.Recv(context.Background())
	require.NoError(t, err)
	assert.Equal(t, batch(2), got)
}

func TestLaggedSubscriberSkipsToOldestRetained(t *testing.T) {
	b := New(4)
	sub := b.Subscribe()
	defer sub.Close()

	for i := uint32(1); i <= 6; i++ {
		b.Publish(batch(i))
	}

	ctx := context.Background()
	_, err := sub.Recv(ctx)
	assert.ErrorIs(t, err, ErrLagged)

	// After the gap signal the cursor sits at the oldest retained batch.
	got, err := sub.Recv(ctx)
	require.NoError(t, err)
	assert.Equal(t, batch(3), got)

	got, err = sub.Recv(ctx)
	require.NoError(t, err)
	assert.Equal(t, batch(4), got)
}

func TestPublishNeverBlocksOnStalledSubscriber(t *testing.T) {
	b := New(2)
	sub := b.Subscribe()
	defer sub.Close()

	// A subscriber that never reads must not stop the producer.
	done := make(chan struct{})
	go func() {
		for i := uint32(0); i < 1000; i++ {
			b.Publish(batch(i))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a stalled subscriber")
	}
}

func TestSlowSubscriberDoesNotBlockFastOne(t *testing.T) {
	b := New(4)
	slow := b.Subscribe()
	defer slow.Close()
	fast := b.Subscribe()
	defer fast.Close()

	ctx := context.Background()
	for i := uint32(1); i <= 3; i++ {
		b.Publish(batch(i))
		got, err := fast.Recv(ctx)
		require.NoError(t, err)
		assert.Equal(t, batch(i), got)
	}
}

func TestRecvContextCancelled(t *testing.T) {
	b := New(16)
	sub := b.Subscribe()
	defer sub.Close()

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := sub.Recv(ctx)
		errCh <- err
	}()

	cancel()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Recv did not observe cancellation")
	}
}

func TestClosedBusDrainsThenReturnsErrClosed(t *testing.T) {
	b := New(16)
	sub := b.Subscribe()
	defer sub.Close()

	b.Publish(batch(1))
	b.Close()

	ctx := context.Background()
	got, err := sub.Recv(ctx)
	require.NoError(t, err)
	assert.Equal(t, batch(1), got)

	_, err = sub.Recv(ctx)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestPublishAfterCloseIsDropped(t *testing.T) {
	b := New(16)
	sub := b.Subscribe()
	defer sub.Close()

	b.Close()
	b.Publish(batch(1))

	_, err := sub.Recv(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}

func TestEmptyBatchIsIgnored(t *testing.T) {
	b := New(16)
	sub := b.Subscribe()
	defer sub.Close()

	b.Publish(nil)
	b.Close()

	_, err := sub.Recv(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}

func TestSubscriberCloseReleasesCursor(t *testing.T) {
	b := New(16)
	sub := b.Subscribe()
	assert.Equal(t, 1, b.SubscriberCount())

	sub.Close()
	sub.Close() // idempotent
	assert.Equal(t, 0, b.SubscriberCount())

	_, err := sub.Recv(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}
