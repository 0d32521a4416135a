package bus

// Handler receives values published on a Stream.
type Handler[T any] func(T)

// Subscription is the handle returned by Stream.Subscribe.
// Cancel is idempotent; once it returns the handler receives no further values.
type Subscription interface {
	ID() string
	IsActive() bool
	Cancel()
}

// Metrics is a best-effort snapshot of delivery counters.
type Metrics struct {
	Published   uint64
	Delivered   uint64
	Subscribers int
}
