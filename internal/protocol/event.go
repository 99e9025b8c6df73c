package protocol

// Channel identifies the logical stream a message belongs to.
type Channel string

const (
	ChannelTicker      Channel = "ticker"
	ChannelTrade       Channel = "trade"
	ChannelOrderbook   Channel = "orderbook"
	ChannelKline       Channel = "kline"
	ChannelLiquidation Channel = "liquidation"
	ChannelOther       Channel = "other"
)

// EventKind classifies the message lifecycle role.
type EventKind string

const (
	KindSnapshot   EventKind = "snapshot"
	KindDelta      EventKind = "delta"
	KindSubscribed EventKind = "subscribed"
	KindPong       EventKind = "pong"
	KindUnknown    EventKind = "unknown"
)

// NormalizedEvent is the canonical, venue-agnostic representation of one
// inbound streaming message. Instances are built once by Normalize and
// must be treated as immutable by consumers.
type NormalizedEvent struct {
	Exchange    string
	Channel     Channel
	Symbol      string
	Kind        EventKind
	TimestampMs int64
	Data        any
}

// TickerData projects the numeric ticker fields. A nil pointer means the
// venue omitted the field or sent something unparseable.
type TickerData struct {
	LastPrice    *float64
	MarkPrice    *float64
	IndexPrice   *float64
	Bid1Price    *float64
	Ask1Price    *float64
	Price24hPcnt *float64
	Volume24h    *float64
	Turnover24h  *float64
}

// Trade is one executed trade from a public trade stream.
type Trade struct {
	Price     *float64
	Qty       *float64
	Side      string
	TradeTime int64
}

// BookLevel is a single price level. Levels keep arrival order; they are
// not re-sorted by price.
type BookLevel struct {
	Price *float64
	Qty   *float64
}

// OrderbookData carries both sides of a book message.
type OrderbookData struct {
	Bids []BookLevel
	Asks []BookLevel
}
