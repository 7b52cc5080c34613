package channel

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHub_FanOut(t *testing.T) {
	hub := NewHub(nil)
	a, cancelA := hub.Subscribe()
	defer cancelA()
	b, cancelB := hub.Subscribe()
	defer cancelB()

	hub.Publish(Update(42))

	assert.Equal(t, Update(42), <-a)
	assert.Equal(t, Update(42), <-b)
}

func TestHub_CancelClosesAndUnregisters(t *testing.T) {
	hub := NewHub(nil)
	ch, cancel := hub.Subscribe()
	require.Equal(t, 1, hub.Len())

	cancel()
	cancel() // idempotent

	_, ok := <-ch
	assert.False(t, ok)
	assert.Zero(t, hub.Len())

	// publishing without subscribers is fine
	hub.Publish(Update(1))
}

func TestHub_CloseReleasesSubscribers(t *testing.T) {
	hub := NewHub(nil)
	ch, cancel := hub.Subscribe()

	hub.Close()
	_, ok := <-ch
	assert.False(t, ok)
	assert.Zero(t, hub.Len())

	cancel() // after Close, still safe
}

func TestHub_SlowSubscriberDoesNotBlock(t *testing.T) {
	hub := NewHub(nil)
	ch, cancel := hub.Subscribe()
	defer cancel()

	done := make(chan struct{})
	go func() {
		for i := 0; i < subscriberBuffer*2; i++ {
			hub.Publish(Update(int64(i)))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a full subscriber")
	}
	assert.Len(t, ch, subscriberBuffer)
}

func TestFailure(t *testing.T) {
	msg := Failure(errors.New("a.scss:2: undefined variable: $x"))
	assert.Equal(t, TypeError, msg.Type)
	assert.Equal(t, "a.scss:2: undefined variable: $x", msg.Error)
}

func TestWebsocketRoundTrip(t *testing.T) {
	hub := NewHub(nil)
	srv := httptest.NewServer(hub.Handler())
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sub, err := Dial(ctx, srv.URL)
	require.NoError(t, err)
	defer sub.Close()

	require.Eventually(t, func() bool { return hub.Len() == 1 }, 2*time.Second, 10*time.Millisecond)

	hub.Publish(Update(1700000000000))
	msg, err := sub.Receive()
	require.NoError(t, err)
	assert.Equal(t, TypeUpdate, msg.Type)
	assert.Equal(t, int64(1700000000000), msg.Version)

	hub.Publish(Failure(errors.New("broken")))
	msg, err = sub.Receive()
	require.NoError(t, err)
	assert.Equal(t, Message{Type: TypeError, Error: "broken"}, msg)

	require.NoError(t, sub.Close())
	require.Eventually(t, func() bool { return hub.Len() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestDial_Unavailable(t *testing.T) {
	srv := httptest.NewServer(NewHub(nil).Handler())
	url := srv.URL
	srv.Close()

	_, err := Dial(context.Background(), url)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrChannelUnavailable)
}
