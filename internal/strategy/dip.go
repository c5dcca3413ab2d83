package strategy

import (
	"log"
	"sync"

	"polytrack/pkg/clob"
)

// Position is an open holding in one token.
type Position struct {
	Quantity float64
	AvgPrice float64
}

// Dip buys sharp one-step drops and sells sharp one-step rises, with
// take-profit and stop-loss exits on open positions. It keeps its own
// cash/position book; fills are reported back through RecordBuy/RecordSell.
type Dip struct {
	mu        sync.Mutex
	params    Params
	cash      float64
	positions map[string]Position
	last      map[string]float64
	trades    int
}

// NewDip builds the strategy with its starting cash.
func NewDip(p Params) *Dip {
	return &Dip{
		params:    p,
		cash:      p.InitialCash,
		positions: make(map[string]Position),
		last:      make(map[string]float64),
	}
}

func (d *Dip) Name() string { return "trade-dips" }

// OnTick evaluates one price observation. Exits are checked before entries
// so a position is never averaged into past its stop.
func (d *Dip) OnTick(tokenID string, price float64) *Signal {
	if price <= 0 {
		return nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	pos := d.positions[tokenID]
	if pos.Quantity > 0 && pos.AvgPrice > 0 {
		unrealized := (price - pos.AvgPrice) / pos.AvgPrice
		if unrealized >= d.params.TakeProfit {
			return &Signal{Side: clob.SideSell, TokenID: tokenID, Quantity: pos.Quantity, Price: price, Note: "take-profit"}
		}
		if unrealized <= -d.params.StopLoss {
			return &Signal{Side: clob.SideSell, TokenID: tokenID, Quantity: pos.Quantity, Price: price, Note: "stop-loss"}
		}
	}

	prev, seen := d.last[tokenID]
	d.last[tokenID] = price
	if !seen || prev <= 0 {
		return nil
	}
	ret := (price - prev) / prev

	switch {
	case ret <= d.params.BuyThreshold:
		return d.buySignalLocked(tokenID, price, ret)
	case ret >= d.params.SellThreshold && pos.Quantity > 0:
		return &Signal{Side: clob.SideSell, TokenID: tokenID, Quantity: pos.Quantity, Price: price, Note: "spike"}
	}
	return nil
}

func (d *Dip) buySignalLocked(tokenID string, price, ret float64) *Signal {
	if d.trades >= d.params.MaxTrades {
		log.Printf("strategy: dip of %.2f%% on %s skipped, trade budget spent", ret*100, tokenID)
		return nil
	}
	value := d.params.TradeValue
	if value > d.cash {
		value = d.cash
	}
	if value < d.params.MinOrderValue {
		log.Printf("strategy: dip of %.2f%% on %s skipped, %.2f below minimum order value", ret*100, tokenID, value)
		return nil
	}
	return &Signal{Side: clob.SideBuy, TokenID: tokenID, Quantity: value / price, Price: price, Note: "dip"}
}

// RecordBuy applies a filled buy to the book.
func (d *Dip) RecordBuy(tokenID string, quantity, price float64) {
	if quantity <= 0 {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	pos := d.positions[tokenID]
	total := pos.Quantity + quantity
	pos.AvgPrice = (pos.AvgPrice*pos.Quantity + price*quantity) / total
	pos.Quantity = total
	d.positions[tokenID] = pos
	d.cash -= quantity * price
	d.trades++
}

// RecordSell applies a filled sell to the book.
func (d *Dip) RecordSell(tokenID string, quantity, price float64) {
	if quantity <= 0 {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	pos := d.positions[tokenID]
	pos.Quantity -= quantity
	if pos.Quantity <= 1e-9 {
		delete(d.positions, tokenID)
	} else {
		d.positions[tokenID] = pos
	}
	d.cash += quantity * price
}

// Cash returns the free cash in the book.
func (d *Dip) Cash() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cash
}

// Position returns the open position for a token, if any.
func (d *Dip) Position(tokenID string) (Position, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	pos, ok := d.positions[tokenID]
	return pos, ok
}
