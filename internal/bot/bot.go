package bot

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"polytrack/internal/capture"
	"polytrack/internal/strategy"
	"polytrack/internal/tracker"
	"polytrack/pkg/clob"
)

// Signaler turns price observations into order signals.
type Signaler interface {
	OnTick(tokenID string, price float64) *strategy.Signal
}

// Book receives confirmed fills.
type Book interface {
	RecordBuy(tokenID string, quantity, price float64)
	RecordSell(tokenID string, quantity, price float64)
}

// Config holds bot wiring.
type Config struct {
	Gateway      tracker.Gateway
	Tracker      *tracker.Tracker
	Strategy     Signaler
	Book         Book
	OrderTimeout time.Duration // default 45m
}

// Bot connects captured prices to the strategy and the strategy's signals to
// the venue. Accepted orders are registered with the tracker; fills come back
// through ApplyFill and update the book.
type Bot struct {
	cfg Config
}

// New builds the bot.
func New(cfg Config) *Bot {
	if cfg.OrderTimeout <= 0 {
		cfg.OrderTimeout = 45 * time.Minute
	}
	return &Bot{cfg: cfg}
}

// Handle feeds one captured row to the strategy and acts on the signal. The
// midpoint is the strategy's price series.
func (b *Bot) Handle(ctx context.Context, row capture.Row) {
	sig := b.cfg.Strategy.OnTick(row.TokenID, row.Midpoint)
	if sig == nil {
		return
	}
	log.Printf("bot: %s signal on %s: %v @ %v (%s)", sig.Side, sig.TokenID, sig.Quantity, sig.Price, sig.Note)

	ack, err := b.cfg.Gateway.ExecuteSignal(ctx, clob.OrderIntent{
		TokenID:  sig.TokenID,
		Side:     sig.Side,
		Type:     clob.OrderTypeLimit,
		Price:    sig.Price,
		Quantity: sig.Quantity,
		ClientID: uuid.NewString(),
	})
	if err != nil {
		log.Printf("bot: order rejected: %v", err)
		return
	}

	if err := b.cfg.Tracker.Track(ack.OrderID, sig.TokenID, sig.Side, sig.Quantity, sig.Price, b.cfg.OrderTimeout); err != nil {
		log.Printf("bot: track %s: %v", ack.OrderID, err)
	}
}

// ApplyFill folds a terminal order into the book. Partial fills that timed
// out or were cancelled still count for whatever quantity matched.
func (b *Bot) ApplyFill(rec tracker.Record) {
	if rec.FilledQuantity <= 0 {
		return
	}
	switch rec.Side {
	case clob.SideBuy:
		b.cfg.Book.RecordBuy(rec.AssetID, rec.FilledQuantity, rec.Price)
	case clob.SideSell:
		b.cfg.Book.RecordSell(rec.AssetID, rec.FilledQuantity, rec.Price)
	}
}
