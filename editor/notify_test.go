package editor

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestNotifierFiltersBySection(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	n := NewNotifier()
	hero, cancelHero := n.Subscribe("hero")
	all, cancelAll := n.Subscribe("")
	require.Equal(t, 2, n.Len())

	n.Notify(ContentChanged{Section: "hero", Key: "title", Value: "a"})
	n.Notify(ContentChanged{Section: "mission", Key: "body", Value: "b"})

	assert.Equal(t, "a", (<-hero).Value)
	assert.Equal(t, "a", (<-all).Value)
	assert.Equal(t, "b", (<-all).Value)
	assert.Len(t, hero, 0)

	cancelHero()
	cancelHero()
	cancelAll()
	assert.Zero(t, n.Len())

	_, open := <-hero
	assert.False(t, open)
}

func TestNotifierDropsForSlowSubscribers(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	n := NewNotifier()
	ch, cancel := n.Subscribe("hero")
	defer cancel()

	for i := 0; i < subscriberBuffer*2; i++ {
		n.Notify(ContentChanged{Section: "hero"})
	}
	assert.Len(t, ch, subscriberBuffer)
}

func TestNotifierConcurrentUse(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	n := NewNotifier()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ch, cancel := n.Subscribe("")
			defer cancel()
			n.Notify(ContentChanged{Section: "hero"})
			<-ch
		}()
	}
	wg.Wait()
	assert.Zero(t, n.Len())
}
