package strategy

import (
	"polytrack/pkg/clob"
)

// Signal is a decision emitted by a strategy.
type Signal struct {
	Side     clob.Side
	TokenID  string
	Quantity float64
	Price    float64
	Note     string
}

// Strategy turns price ticks into order signals.
type Strategy interface {
	// Name returns the human-readable name
	Name() string
	// OnTick processes a new price observation; nil means hold
	OnTick(tokenID string, price float64) *Signal
}
