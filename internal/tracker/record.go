package tracker

import (
	"context"
	"time"

	"polytrack/pkg/clob"
)

// Status is the lifecycle state of a tracked order.
type Status string

const (
	StatusPending         Status = "PENDING"
	StatusLive            Status = "LIVE"
	StatusPartiallyFilled Status = "PARTIALLY_FILLED"
	StatusFilled          Status = "FILLED"
	StatusCancelled       Status = "CANCELLED"
	StatusTimedOut        Status = "TIMED_OUT"
)

// Terminal reports whether the state admits no further transitions.
func (s Status) Terminal() bool {
	switch s {
	case StatusFilled, StatusCancelled, StatusTimedOut:
		return true
	}
	return false
}

// Record is the in-memory state of one tracked order. FilledQuantity only
// ever moves up and is clamped at Quantity.
type Record struct {
	OrderID        string
	AssetID        string
	Side           clob.Side
	Quantity       float64
	Price          float64
	FilledQuantity float64
	Status         Status
	CreatedAt      time.Time
	Timeout        time.Duration
	LastCheckedAt  time.Time
}

// Remaining returns the unfilled quantity.
func (r Record) Remaining() float64 {
	return r.Quantity - r.FilledQuantity
}

// Notional returns quantity times limit price.
func (r Record) Notional() float64 {
	return r.Quantity * r.Price
}

// Gateway is the executor surface the tracker depends on. pkg/clob implements
// it against the live venue; tests use fakes.
type Gateway interface {
	ExecuteSignal(ctx context.Context, intent clob.OrderIntent) (clob.OrderAck, error)
	GetOrderStatus(ctx context.Context, orderID string) (clob.StatusSnapshot, bool, error)
	CancelOrder(ctx context.Context, orderID string) (bool, error)
}

// Sink receives the final snapshot of an order. It fires exactly once per
// order, on the terminal transition, after the record leaves the active set.
type Sink func(rec Record)
