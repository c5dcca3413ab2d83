package stream

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Channel names the two CLOB subscription channels.
type Channel string

const (
	ChannelUser   Channel = "user"
	ChannelMarket Channel = "market"
)

// Auth is the credential triple required by the user channel.
type Auth struct {
	APIKey     string `json:"apiKey"`
	Secret     string `json:"secret"`
	Passphrase string `json:"passphrase"`
}

// subscribeMessage is the wire form of a subscription request.
type subscribeMessage struct {
	Type     Channel  `json:"type"`
	Auth     *Auth    `json:"auth,omitempty"`
	Markets  []string `json:"markets,omitempty"`
	AssetIDs []string `json:"assets_ids,omitempty"`
}

// OrderAction enumerates actions carried by an order event.
type OrderAction string

const (
	ActionPlacement    OrderAction = "PLACEMENT"
	ActionUpdate       OrderAction = "UPDATE"
	ActionCancellation OrderAction = "CANCELLATION"
)

// Event is the closed set of decoded channel events. Only TradeEvent and
// OrderEvent implement it.
type Event interface {
	isEvent()
}

// MakerOrder is one sub-fill inside a trade event.
type MakerOrder struct {
	OrderID       string
	MatchedAmount float64
	Price         float64
}

// TradeEvent reports one or more maker orders matched by a trade.
type TradeEvent struct {
	AssetID     string
	MakerOrders []MakerOrder
}

// OrderEvent reports a lifecycle action on a single order.
type OrderEvent struct {
	Action        OrderAction
	OrderID       string
	AssetID       string
	MatchedAmount float64
}

func (TradeEvent) isEvent() {}
func (OrderEvent) isEvent() {}

type rawMakerOrder struct {
	OrderID       string `json:"order_id"`
	MatchedAmount any    `json:"matched_amount"`
	Price         any    `json:"price"`
}

type rawEvent struct {
	EventType   string          `json:"event_type"`
	AssetID     string          `json:"asset_id"`
	MakerOrders []rawMakerOrder `json:"maker_orders"`
	Action      string          `json:"action"`
	OrderID     string          `json:"order_id"`
	Matched     any             `json:"matched_amount"`
}

// parseFrame decodes an inbound frame into events. Frames are JSON arrays of
// event objects; a bare object is accepted too. Events with an unknown
// event_type are dropped and reported in skipped.
func parseFrame(msg []byte) (events []Event, skipped int, err error) {
	var raws []rawEvent
	if e := json.Unmarshal(msg, &raws); e != nil {
		// The venue occasionally pushes a single object rather than an array.
		var one rawEvent
		if e2 := json.Unmarshal(msg, &one); e2 != nil {
			return nil, 0, fmt.Errorf("decode frame: %w", e)
		}
		raws = []rawEvent{one}
	}

	for _, r := range raws {
		switch r.EventType {
		case "trade":
			ev := TradeEvent{AssetID: r.AssetID}
			for _, m := range r.MakerOrders {
				ev.MakerOrders = append(ev.MakerOrders, MakerOrder{
					OrderID:       m.OrderID,
					MatchedAmount: toFloat(m.MatchedAmount),
					Price:         toFloat(m.Price),
				})
			}
			events = append(events, ev)
		case "order":
			events = append(events, OrderEvent{
				Action:        OrderAction(r.Action),
				OrderID:       r.OrderID,
				AssetID:       r.AssetID,
				MatchedAmount: toFloat(r.Matched),
			})
		default:
			skipped++
		}
	}
	return events, skipped, nil
}

// toFloat accepts the number-or-string values the venue emits.
func toFloat(v any) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case string:
		f, _ := strconv.ParseFloat(t, 64)
		return f
	case json.Number:
		f, _ := t.Float64()
		return f
	default:
		return 0
	}
}
