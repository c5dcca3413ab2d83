package stream

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// fakeConn is an in-memory wsConn. Frames pushed with push() come out of
// ReadMessage; subscription writes are captured for inspection.
type fakeConn struct {
	mu     sync.Mutex
	frames chan []byte
	subs   []subscribeMessage
	pings  int
	closed chan struct{}
	once   sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		frames: make(chan []byte, 16),
		closed: make(chan struct{}),
	}
}

func (f *fakeConn) push(frame string) { f.frames <- []byte(frame) }

func (f *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case msg := <-f.frames:
		return websocket.TextMessage, msg, nil
	case <-f.closed:
		return 0, nil, errors.New("use of closed connection")
	}
}

func (f *fakeConn) WriteJSON(v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var sub subscribeMessage
	if err := json.Unmarshal(raw, &sub); err != nil {
		return err
	}
	f.mu.Lock()
	f.subs = append(f.subs, sub)
	f.mu.Unlock()
	return nil
}

func (f *fakeConn) WriteControl(messageType int, data []byte, deadline time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if messageType == websocket.PingMessage {
		f.pings++
	}
	return nil
}

func (f *fakeConn) Close() error {
	f.once.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeConn) subscriptions() []subscribeMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]subscribeMessage, len(f.subs))
	copy(out, f.subs)
	return out
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestUserChannelSubscribeCarriesAuth(t *testing.T) {
	conn := newFakeConn()
	auth := &Auth{APIKey: "k", Secret: "s", Passphrase: "p"}
	c := New(Config{URL: "ws://venue/ws/", Auth: auth, KeepAliveInterval: 5 * time.Millisecond})
	c.dial = func(ctx context.Context, url string) (wsConn, error) {
		if url != "ws://venue/ws/user" {
			t.Errorf("dialed %s", url)
		}
		return conn, nil
	}

	if err := c.Start(context.Background(), ChannelUser, []string{"cond-1"}, nil); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer c.Stop()

	subs := conn.subscriptions()
	if len(subs) != 1 {
		t.Fatalf("got %d subscriptions, expected 1", len(subs))
	}
	if subs[0].Type != ChannelUser || subs[0].Auth == nil || subs[0].Auth.APIKey != "k" {
		t.Errorf("subscribe=%+v", subs[0])
	}
	if len(subs[0].Markets) != 1 || subs[0].Markets[0] != "cond-1" {
		t.Errorf("markets=%v", subs[0].Markets)
	}

	waitFor(t, "keepalive ping", func() bool {
		conn.mu.Lock()
		defer conn.mu.Unlock()
		return conn.pings > 0
	})
}

func TestUserChannelRequiresAuth(t *testing.T) {
	c := New(Config{URL: "ws://venue/ws/"})
	c.dial = func(ctx context.Context, url string) (wsConn, error) { return newFakeConn(), nil }

	if err := c.Connect(context.Background(), ChannelUser); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := c.Subscribe(ChannelUser, nil, nil); err == nil {
		t.Error("expected error for user channel without credentials")
	}
}

func TestSubscribeBeforeConnect(t *testing.T) {
	c := New(Config{URL: "ws://venue/ws/"})
	if err := c.Subscribe(ChannelMarket, nil, []string{"a"}); err == nil {
		t.Error("expected error when not connected")
	}
}

func TestReconnectResubscribesSameAssets(t *testing.T) {
	assets := []string{"tok-1", "tok-2"}
	conns := []*fakeConn{newFakeConn(), newFakeConn()}
	received := make(chan Event, 16)

	var dials int
	var dialMu sync.Mutex
	c := New(Config{
		URL:       "ws://venue/ws/",
		BaseDelay: time.Millisecond,
		MaxDelay:  2 * time.Millisecond,
		Handler:   func(ctx context.Context, ev Event) { received <- ev },
	})
	c.dial = func(ctx context.Context, url string) (wsConn, error) {
		dialMu.Lock()
		defer dialMu.Unlock()
		conn := conns[dials]
		dials++
		return conn, nil
	}

	if err := c.Start(context.Background(), ChannelMarket, nil, assets); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer c.Stop()

	conns[0].push(`[{"event_type": "order", "action": "PLACEMENT", "order_id": "O1", "asset_id": "tok-1"}]`)
	ev := <-received
	if ev.(OrderEvent).OrderID != "O1" {
		t.Fatalf("event=%+v", ev)
	}

	// Drop the connection mid-stream and wait for the replacement to be
	// subscribed.
	conns[0].Close()
	waitFor(t, "re-subscription", func() bool {
		return len(conns[1].subscriptions()) > 0
	})

	subs := conns[1].subscriptions()
	if subs[0].Type != ChannelMarket {
		t.Errorf("channel=%s", subs[0].Type)
	}
	if !reflect.DeepEqual(subs[0].AssetIDs, assets) {
		t.Errorf("re-subscribed assets=%v, expected %v", subs[0].AssetIDs, assets)
	}
	if subs[0].Auth != nil {
		t.Error("market channel must not carry credentials")
	}

	// Delivery resumes on the new connection.
	conns[1].push(`[{"event_type": "order", "action": "UPDATE", "order_id": "O1", "asset_id": "tok-1", "matched_amount": 2}]`)
	ev = <-received
	if upd := ev.(OrderEvent); upd.Action != ActionUpdate || upd.MatchedAmount != 2 {
		t.Errorf("event after reconnect=%+v", upd)
	}
}

func TestRetryBudgetExhaustedSignalsDown(t *testing.T) {
	conn := newFakeConn()
	down := make(chan struct{}, 1)

	first := true
	c := New(Config{
		URL:        "ws://venue/ws/",
		BaseDelay:  time.Millisecond,
		MaxDelay:   2 * time.Millisecond,
		MaxRetries: 3,
		OnDown:     func() { down <- struct{}{} },
	})
	c.dial = func(ctx context.Context, url string) (wsConn, error) {
		if first {
			first = false
			return conn, nil
		}
		return nil, errors.New("dial refused")
	}

	if err := c.Start(context.Background(), ChannelMarket, nil, []string{"tok"}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer c.Stop()

	conn.Close()
	select {
	case <-down:
	case <-time.After(2 * time.Second):
		t.Fatal("down callback never fired")
	}
}

func TestHandlerSeesEventsInArrivalOrder(t *testing.T) {
	conn := newFakeConn()
	var mu sync.Mutex
	var order []string
	done := make(chan struct{})

	c := New(Config{
		URL: "ws://venue/ws/",
		Handler: func(ctx context.Context, ev Event) {
			mu.Lock()
			order = append(order, ev.(OrderEvent).OrderID)
			n := len(order)
			mu.Unlock()
			if n == 3 {
				close(done)
			}
		},
	})
	c.dial = func(ctx context.Context, url string) (wsConn, error) { return conn, nil }

	if err := c.Start(context.Background(), ChannelMarket, nil, []string{"tok"}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer c.Stop()

	// A malformed frame in between must be dropped without stopping the loop.
	conn.push(`[{"event_type": "order", "action": "PLACEMENT", "order_id": "A", "asset_id": "tok"}]`)
	conn.push(`garbage`)
	conn.push(`[
		{"event_type": "order", "action": "UPDATE", "order_id": "B", "asset_id": "tok"},
		{"event_type": "order", "action": "CANCELLATION", "order_id": "C", "asset_id": "tok"}
	]`)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("events never arrived")
	}

	mu.Lock()
	defer mu.Unlock()
	want := []string{"A", "B", "C"}
	if !reflect.DeepEqual(order, want) {
		t.Errorf("order=%v, expected %v", order, want)
	}
}

func TestStopIsIdempotent(t *testing.T) {
	conn := newFakeConn()
	c := New(Config{URL: "ws://venue/ws/"})
	c.dial = func(ctx context.Context, url string) (wsConn, error) { return conn, nil }

	if err := c.Start(context.Background(), ChannelMarket, nil, []string{"tok"}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	c.Stop()
	c.Stop()

	select {
	case <-conn.closed:
	default:
		t.Error("connection left open after Stop")
	}
}
