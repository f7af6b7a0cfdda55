package broadcast

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubscribeAndPublish(t *testing.T) {
	b := New(4)
	handle, ch, ok := b.Subscribe()
	require.True(t, ok)

	b.Publish(Message{Kind: KindPixel, X: 1, Y: 2, Color: 3})

	select {
	case msg := <-ch:
		assert.Equal(t, KindPixel, msg.Kind)
		assert.Equal(t, 1, msg.X)
	case <-time.After(time.Second):
		t.Fatal("expected a message")
	}

	assert.False(t, b.Lagged(handle))
}

func TestOverflowDropsOldestAndFlagsLag(t *testing.T) {
	b := New(2)
	handle, ch, ok := b.Subscribe()
	require.True(t, ok)

	b.Publish(Message{Kind: KindPixel, X: 0})
	b.Publish(Message{Kind: KindPixel, X: 1})
	b.Publish(Message{Kind: KindPixel, X: 2}) // overflow: drops X:0

	assert.True(t, b.Lagged(handle))
	// Lagged clears the flag on read.
	assert.False(t, b.Lagged(handle))

	first := <-ch
	assert.Equal(t, 1, first.X)
	second := <-ch
	assert.Equal(t, 2, second.X)
}

func TestPublishNeverBlocksWithNoSubscribers(t *testing.T) {
	b := New(2)
	done := make(chan struct{})
	go func() {
		b.Publish(Message{Kind: KindResize, OldSize: 16, NewSize: 32})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked with no subscribers")
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	b := New(2)
	handle, ch, ok := b.Subscribe()
	require.True(t, ok)
	b.Unsubscribe(handle)
	_, open := <-ch
	assert.False(t, open)
}

func TestShutdownRejectsNewSubscribers(t *testing.T) {
	b := New(2)
	b.Shutdown()
	_, _, ok := b.Subscribe()
	assert.False(t, ok)
}

// TestConcurrentPublishAndUnsubscribeDoesNotPanic guards against a send on
// a closed subscriber channel: one goroutine publishes continuously while
// another repeatedly subscribes and immediately unsubscribes, racing
// Publish's deliver against Unsubscribe's close under -race.
func TestConcurrentPublishAndUnsubscribeDoesNotPanic(t *testing.T) {
	b := New(4)

	var publisherWG, subscriberWG sync.WaitGroup
	stop := make(chan struct{})

	publisherWG.Add(1)
	go func() {
		defer publisherWG.Done()
		for {
			select {
			case <-stop:
				return
			default:
				b.Publish(Message{Kind: KindPixel})
			}
		}
	}()

	subscriberWG.Add(1)
	go func() {
		defer subscriberWG.Done()
		for i := 0; i < 500; i++ {
			handle, _, ok := b.Subscribe()
			if !ok {
				continue
			}
			b.Unsubscribe(handle)
		}
	}()

	subscriberWG.Wait()
	close(stop)
	publisherWG.Wait()
}
