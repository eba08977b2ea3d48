package fanout_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"pairstream/internal/fanout"
)

func TestHubDeliversToAllSubscribers(t *testing.T) {
	hub := fanout.NewHub[int]()

	a, leaveA := hub.Subscribe(4)
	b, leaveB := hub.Subscribe(4)
	defer leaveA()
	defer leaveB()

	hub.Publish(7)

	assert.Equal(t, 7, <-a)
	assert.Equal(t, 7, <-b)
}

func TestHubDropsForFullSubscriberOnly(t *testing.T) {
	hub := fanout.NewHub[int]()

	slow, leaveSlow := hub.Subscribe(1)
	fast, leaveFast := hub.Subscribe(4)
	defer leaveSlow()
	defer leaveFast()

	hub.Publish(1)
	hub.Publish(2) // slow subscriber is full here

	assert.Equal(t, 1, <-slow)
	assert.Equal(t, 1, <-fast)
	assert.Equal(t, 2, <-fast)
	assert.Equal(t, uint64(1), hub.Dropped())
}

func TestStickyHubReplaysLastValue(t *testing.T) {
	hub := fanout.NewStickyHub[int]()

	_, ok := hub.Last()
	assert.False(t, ok)

	hub.Publish(41)
	hub.Publish(42)

	late, leave := hub.Subscribe(4)
	defer leave()

	assert.Equal(t, 42, <-late)
	last, ok := hub.Last()
	assert.True(t, ok)
	assert.Equal(t, 42, last)
}

func TestHubLeaveIsIdempotent(t *testing.T) {
	hub := fanout.NewHub[int]()

	_, leave := hub.Subscribe(1)
	leave()
	leave()

	assert.Equal(t, 0, hub.Count())
	hub.Publish(1) // no subscribers; must not panic or block
}
