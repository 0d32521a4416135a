package bus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStream_DeliversInSubscriptionOrder(t *testing.T) {
	s := NewStream[int]()
	var got []string
	s.Subscribe(func(v int) { got = append(got, "a") })
	s.Subscribe(func(v int) { got = append(got, "b") })

	s.Publish(1)
	assert.Equal(t, []string{"a", "b"}, got)
	assert.Equal(t, 2, s.Len())
}

func TestStream_CancelStopsDelivery(t *testing.T) {
	s := NewStream[int]()
	var got []int
	sub := s.Subscribe(func(v int) { got = append(got, v) })
	require.True(t, sub.IsActive())
	require.NotEmpty(t, sub.ID())

	s.Publish(1)
	sub.Cancel()
	sub.Cancel()
	s.Publish(2)

	assert.Equal(t, []int{1}, got)
	assert.False(t, sub.IsActive())
	assert.Equal(t, 0, s.Len())
}

func TestStream_CancelDuringDelivery(t *testing.T) {
	s := NewStream[int]()
	var second Subscription
	var got []int
	s.Subscribe(func(v int) { second.Cancel() })
	second = s.Subscribe(func(v int) { got = append(got, v) })

	s.Publish(1)
	assert.Empty(t, got)
}

func TestStream_NestedPublishKeepsOrder(t *testing.T) {
	s := NewStream[int]()
	var first, second []int
	s.Subscribe(func(v int) {
		first = append(first, v)
		if v == 1 {
			s.Publish(2)
		}
	})
	s.Subscribe(func(v int) { second = append(second, v) })

	s.Publish(1)
	assert.Equal(t, []int{1, 2}, first)
	assert.Equal(t, []int{1, 2}, second)
}

func TestStream_PanicDoesNotWedge(t *testing.T) {
	s := NewStream[int]()
	boom := true
	var got []int
	s.Subscribe(func(v int) {
		if boom {
			boom = false
			panic("handler failed")
		}
		got = append(got, v)
	})

	assert.Panics(t, func() { s.Publish(1) })
	s.Publish(2)
	assert.Equal(t, []int{2}, got)
}

func TestStream_Metrics(t *testing.T) {
	s := NewStream[string]()
	s.Subscribe(func(string) {})
	sub := s.Subscribe(func(string) {})

	s.Publish("x")
	s.Publish("y")
	sub.Cancel()
	s.Publish("z")

	m := s.Metrics()
	assert.Equal(t, uint64(3), m.Published)
	assert.Equal(t, uint64(5), m.Delivered)
	assert.Equal(t, 1, m.Subscribers)
}
