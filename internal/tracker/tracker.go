package tracker

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"polytrack/internal/events"
	"polytrack/internal/stream"
	"polytrack/pkg/clob"
)

// Config holds tracker settings. Zero intervals fall back to the defaults
// used against the live venue.
type Config struct {
	Gateway             Gateway
	Sink                Sink
	Bus                 *events.Bus
	StatusCheckInterval time.Duration // reconciliation loop period, default 1m
	CleanupInterval     time.Duration // timeout sweep period, default 5m
	StaleAfter          time.Duration // reconcile records unchecked this long, default 1m
	DefaultTimeout      time.Duration // per-order timeout when Track gets zero, default 45m
}

// Tracker owns the active-order set. Stream events, the reconciliation loop
// and the timeout sweep all funnel into the same guarded map; an order leaves
// the map on its terminal transition and the sink fires with its final state.
type Tracker struct {
	cfg Config
	now func() time.Time

	mu     sync.Mutex
	orders map[string]*Record

	cancel  context.CancelFunc
	wg      sync.WaitGroup
	stopped sync.Once
}

// New builds a tracker around a gateway.
func New(cfg Config) *Tracker {
	if cfg.StatusCheckInterval <= 0 {
		cfg.StatusCheckInterval = time.Minute
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = 5 * time.Minute
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = time.Minute
	}
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = 45 * time.Minute
	}
	return &Tracker{
		cfg:    cfg,
		now:    time.Now,
		orders: make(map[string]*Record),
	}
}

// Start launches the reconciliation and timeout loops.
func (t *Tracker) Start(ctx context.Context) {
	ctx, t.cancel = context.WithCancel(ctx)

	t.wg.Add(2)
	go func() {
		defer t.wg.Done()
		ticker := time.NewTicker(t.cfg.StatusCheckInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				t.reconcile(ctx)
			}
		}
	}()
	go func() {
		defer t.wg.Done()
		ticker := time.NewTicker(t.cfg.CleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				t.cleanup(ctx)
			}
		}
	}()
	log.Printf("tracker: started (reconcile %v, cleanup %v)", t.cfg.StatusCheckInterval, t.cfg.CleanupInterval)
}

// Track registers a freshly submitted order. Tracking the same order id twice
// is a caller error.
func (t *Tracker) Track(orderID, assetID string, side clob.Side, quantity, price float64, timeout time.Duration) error {
	if orderID == "" {
		return fmt.Errorf("track: empty order id")
	}
	if timeout <= 0 {
		timeout = t.cfg.DefaultTimeout
	}

	t.mu.Lock()
	if _, dup := t.orders[orderID]; dup {
		t.mu.Unlock()
		return fmt.Errorf("track: order %s already tracked", orderID)
	}
	now := t.now()
	rec := &Record{
		OrderID:       orderID,
		AssetID:       assetID,
		Side:          side,
		Quantity:      quantity,
		Price:         price,
		Status:        StatusPending,
		CreatedAt:     now,
		Timeout:       timeout,
		LastCheckedAt: now,
	}
	t.orders[orderID] = rec
	snap := *rec
	t.mu.Unlock()

	t.publish(events.EventOrderSubmitted, snap)
	log.Printf("tracker: tracking %s %s %v @ %v on %s (timeout %v)", orderID, side, quantity, price, assetID, timeout)
	return nil
}

// CancelOrder cancels a tracked order at the venue. Unknown ids are a no-op,
// so cancelling twice is safe.
func (t *Tracker) CancelOrder(ctx context.Context, orderID string) error {
	t.mu.Lock()
	_, known := t.orders[orderID]
	t.mu.Unlock()
	if !known {
		return nil
	}

	ok, err := t.cfg.Gateway.CancelOrder(ctx, orderID)
	if err != nil {
		return fmt.Errorf("cancel %s: %w", orderID, err)
	}
	if !ok {
		// The venue refused, typically because the order just filled. The
		// next reconcile pass settles it.
		log.Printf("tracker: venue did not cancel %s, leaving for reconciliation", orderID)
		return nil
	}
	t.finalize(orderID, StatusCancelled)
	return nil
}

// HandleEvent applies one stream event. The stream client calls it
// sequentially, so events from a connection are applied in arrival order.
func (t *Tracker) HandleEvent(ctx context.Context, ev stream.Event) {
	switch e := ev.(type) {
	case stream.TradeEvent:
		for _, maker := range e.MakerOrders {
			t.applyTradeFill(maker.OrderID, maker.MatchedAmount)
		}
	case stream.OrderEvent:
		t.applyOrderEvent(e)
	}
}

// applyTradeFill adds a matched increment to an order. Fills for untracked
// ids are ignored; other participants' orders share the channel.
func (t *Tracker) applyTradeFill(orderID string, matched float64) {
	if matched <= 0 {
		return
	}
	t.mu.Lock()
	rec, ok := t.orders[orderID]
	if !ok {
		t.mu.Unlock()
		return
	}
	t.setFilledLocked(rec, rec.FilledQuantity+matched)
	filled := rec.Status == StatusFilled
	snap := *rec
	t.mu.Unlock()

	if filled {
		t.finalize(orderID, StatusFilled)
		return
	}
	t.publish(events.EventOrderPartial, snap)
	log.Printf("tracker: %s filled %v/%v", orderID, snap.FilledQuantity, snap.Quantity)
}

func (t *Tracker) applyOrderEvent(e stream.OrderEvent) {
	t.mu.Lock()
	rec, ok := t.orders[e.OrderID]
	if !ok {
		t.mu.Unlock()
		return
	}

	switch e.Action {
	case stream.ActionPlacement:
		if rec.Status == StatusPending {
			rec.Status = StatusLive
			snap := *rec
			t.mu.Unlock()
			t.publish(events.EventOrderLive, snap)
			log.Printf("tracker: %s live", e.OrderID)
			return
		}
		t.mu.Unlock()
	case stream.ActionUpdate:
		// Updates carry a cumulative matched amount and may arrive out of
		// order; the fill level never moves backwards.
		if e.MatchedAmount > rec.FilledQuantity {
			t.setFilledLocked(rec, e.MatchedAmount)
		}
		filled := rec.Status == StatusFilled
		snap := *rec
		t.mu.Unlock()
		if filled {
			t.finalize(e.OrderID, StatusFilled)
			return
		}
		t.publish(events.EventOrderPartial, snap)
	case stream.ActionCancellation:
		t.mu.Unlock()
		t.finalize(e.OrderID, StatusCancelled)
	default:
		t.mu.Unlock()
	}
}

// setFilledLocked raises the fill level, clamping at the order quantity.
// Callers hold t.mu.
func (t *Tracker) setFilledLocked(rec *Record, filled float64) {
	if filled > rec.Quantity {
		log.Printf("⚠️ tracker: %s reported fill %v above quantity %v, clamping", rec.OrderID, filled, rec.Quantity)
		filled = rec.Quantity
	}
	if filled <= rec.FilledQuantity {
		return
	}
	rec.FilledQuantity = filled
	if rec.FilledQuantity >= rec.Quantity {
		rec.Status = StatusFilled
	} else if rec.FilledQuantity > 0 {
		rec.Status = StatusPartiallyFilled
	}
}

// reconcile polls the gateway for every record that has not been checked
// recently and folds the venue's view into the local state.
func (t *Tracker) reconcile(ctx context.Context) {
	now := t.now()
	t.mu.Lock()
	var stale []string
	for id, rec := range t.orders {
		if now.Sub(rec.LastCheckedAt) >= t.cfg.StaleAfter {
			stale = append(stale, id)
		}
	}
	t.mu.Unlock()

	for _, id := range stale {
		snap, ok, err := t.cfg.Gateway.GetOrderStatus(ctx, id)
		if err != nil {
			log.Printf("tracker: status check for %s failed: %v", id, err)
			continue
		}

		t.mu.Lock()
		rec, tracked := t.orders[id]
		if !tracked {
			t.mu.Unlock()
			continue
		}
		rec.LastCheckedAt = t.now()

		if !ok {
			// The venue no longer knows the order and no fill reached us.
			t.mu.Unlock()
			log.Printf("tracker: %s gone from venue, treating as cancelled", id)
			t.finalize(id, StatusCancelled)
			continue
		}

		if snap.FilledQuantity > rec.FilledQuantity {
			t.setFilledLocked(rec, snap.FilledQuantity)
		}
		switch {
		case rec.Status == StatusFilled || snap.Status == "matched":
			if snap.Status == "matched" {
				t.setFilledLocked(rec, rec.Quantity)
			}
			t.mu.Unlock()
			t.finalize(id, StatusFilled)
		case snap.Status == "canceled" || snap.Status == "cancelled":
			t.mu.Unlock()
			t.finalize(id, StatusCancelled)
		default:
			if rec.Status == StatusPending {
				rec.Status = StatusLive
			}
			t.mu.Unlock()
		}
	}
}

// cleanup force-cancels every record older than its timeout. The record is
// timed out even when the venue cancel fails; reconciliation has already had
// its chance to observe fills.
func (t *Tracker) cleanup(ctx context.Context) {
	now := t.now()
	t.mu.Lock()
	var aged []string
	for id, rec := range t.orders {
		if now.Sub(rec.CreatedAt) >= rec.Timeout {
			aged = append(aged, id)
		}
	}
	t.mu.Unlock()

	for _, id := range aged {
		if _, err := t.cfg.Gateway.CancelOrder(ctx, id); err != nil {
			log.Printf("tracker: timeout cancel for %s failed: %v", id, err)
		}
		t.finalize(id, StatusTimedOut)
	}
}

// finalize moves an order to a terminal state, removes it from the active set
// and fires the sink. Removal under the lock guarantees the sink fires at
// most once per order.
func (t *Tracker) finalize(orderID string, status Status) {
	t.mu.Lock()
	rec, ok := t.orders[orderID]
	if !ok {
		t.mu.Unlock()
		return
	}
	delete(t.orders, orderID)
	rec.Status = status
	snap := *rec
	t.mu.Unlock()

	if t.cfg.Sink != nil {
		t.cfg.Sink(snap)
	}
	switch status {
	case StatusFilled:
		t.publish(events.EventOrderFilled, snap)
		log.Printf("✓ tracker: %s filled %v @ %v", orderID, snap.FilledQuantity, snap.Price)
	case StatusCancelled:
		t.publish(events.EventOrderCancelled, snap)
		log.Printf("tracker: %s cancelled (filled %v/%v)", orderID, snap.FilledQuantity, snap.Quantity)
	case StatusTimedOut:
		t.publish(events.EventOrderTimedOut, snap)
		log.Printf("tracker: %s timed out after %v (filled %v/%v)", orderID, snap.Timeout, snap.FilledQuantity, snap.Quantity)
	}
}

// Get returns a snapshot of one active order.
func (t *Tracker) Get(orderID string) (Record, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	rec, ok := t.orders[orderID]
	if !ok {
		return Record{}, false
	}
	return *rec, true
}

// Active returns snapshots of every active order.
func (t *Tracker) Active() []Record {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Record, 0, len(t.orders))
	for _, rec := range t.orders {
		out = append(out, *rec)
	}
	return out
}

// ByAsset returns the active orders for one asset.
func (t *Tracker) ByAsset(assetID string) []Record {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []Record
	for _, rec := range t.orders {
		if rec.AssetID == assetID {
			out = append(out, *rec)
		}
	}
	return out
}

// Exposure returns the summed notional (quantity times price) of the active
// orders for one asset.
func (t *Tracker) Exposure(assetID string) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	var total float64
	for _, rec := range t.orders {
		if rec.AssetID == assetID {
			total += rec.Notional()
		}
	}
	return total
}

// Stop halts the loops and best-effort cancels every remaining active order
// at the venue. Safe to call more than once.
func (t *Tracker) Stop(ctx context.Context) {
	t.stopped.Do(func() {
		if t.cancel != nil {
			t.cancel()
		}
		t.wg.Wait()

		for _, rec := range t.Active() {
			if _, err := t.cfg.Gateway.CancelOrder(ctx, rec.OrderID); err != nil {
				log.Printf("tracker: shutdown cancel for %s failed: %v", rec.OrderID, err)
			}
			t.finalize(rec.OrderID, StatusCancelled)
		}
		log.Printf("tracker: stopped")
	})
}

func (t *Tracker) publish(e events.Event, rec Record) {
	if t.cfg.Bus != nil {
		t.cfg.Bus.Publish(e, rec)
	}
}
