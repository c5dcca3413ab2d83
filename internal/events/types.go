package events

// Event enumerates high-level topics inside the tracker process.
type Event string

const (
	EventOrderSubmitted Event = "order.submitted"
	EventOrderLive      Event = "order.live"
	EventOrderPartial   Event = "order.partially_filled"
	EventOrderFilled    Event = "order.filled"
	EventOrderCancelled Event = "order.cancelled"
	EventOrderTimedOut  Event = "order.timed_out"
	EventStreamDown     Event = "stream.down"
	EventPriceTick      Event = "price.tick"
)
