package db

import "time"

// Order is a terminal order archived from the tracker. Active orders stay
// in-memory; only orders that reached FILLED/CANCELLED/TIMED_OUT land here.
type Order struct {
	ID         string
	AssetID    string
	Side       string
	Price      float64
	Qty        float64
	FilledQty  float64
	Status     string
	InstanceID string
	CreatedAt  time.Time
	ClosedAt   time.Time
}

// Fill represents one matched amount against an order.
type Fill struct {
	ID        string
	OrderID   string
	AssetID   string
	Side      string
	Price     float64
	Qty       float64
	CreatedAt time.Time
}

// Market is a discovered Gamma market snapshot.
type Market struct {
	ConditionID string
	Slug        string
	Question    string
	Liquidity   float64
	Volume      float64
	Active      bool
	UpdatedAt   time.Time
}
