package network

import (
	"github.com/zeusync/recsync/internal/core/ecs"
)

// NetworkEvent is one component change produced outside the process.
// A nil Value removes the component value from the entity.
type NetworkEvent struct {
	Component     string       `json:"component"`
	Entity        ecs.EntityID `json:"entity"`
	Value         ecs.Value    `json:"value"`
	BlockNumber   uint64       `json:"blockNumber,omitempty"`
	TxHash        string       `json:"txHash,omitempty"`
	LastEventInTx bool         `json:"lastEventInTx,omitempty"`
}

// IsRemoval reports whether the event removes the value.
func (e NetworkEvent) IsRemoval() bool { return e.Value == nil }

// Input is a message from the consumer to the producer: Ack or Config.
type Input interface {
	isInput()
}

// Ack asks the producer for the next batch.
type Ack struct{}

// Config reconfigures the producer. Zero fields are left unchanged.
type Config struct {
	// Cursor repositions the source. Its meaning is source specific:
	// a stream id, a block number or a list offset.
	Cursor string
	// BatchSize caps the number of events per emitted batch.
	BatchSize int
}

func (Ack) isInput()    {}
func (Config) isInput() {}

// SubscribeRequest opens or replaces a relay subscription.
type SubscribeRequest struct {
	ID     uint64 `json:"id"`
	Cursor string `json:"cursor,omitempty"`
}

// Frame carries events pushed by a relay for one subscription.
type Frame struct {
	Subscription uint64         `json:"subscription"`
	Events       []NetworkEvent `json:"events"`
}
