package clob

// Side denotes order side.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// OrderType denotes the supported order types.
type OrderType string

const (
	OrderTypeLimit  OrderType = "limit"
	OrderTypeMarket OrderType = "market"
)

// OrderIntent captures an order to be signed and posted to the CLOB.
type OrderIntent struct {
	TokenID  string
	Side     Side
	Type     OrderType
	Price    float64 // required for limit
	Quantity float64
	ClientID string // optional client order id
}

// OrderAck is the venue's acknowledgement of a posted order.
type OrderAck struct {
	OrderID string
	Status  string // "live", "matched", "delayed", ...
}

// StatusSnapshot is a point-in-time view of an order from the data API.
type StatusSnapshot struct {
	OrderID        string
	Status         string
	FilledQuantity float64
	Price          float64
}

// BookLevel is one price level of an order book.
type BookLevel struct {
	Price float64
	Size  float64
}

// Book is a best-effort order book snapshot for one token.
type Book struct {
	TokenID string
	Bids    []BookLevel
	Asks    []BookLevel
}
