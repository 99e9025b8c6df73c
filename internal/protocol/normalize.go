package protocol

import (
	"strconv"
	"strings"
	"time"
)

var channelHeads = map[string]Channel{
	"tickers":        ChannelTicker,
	"publicTrade":    ChannelTrade,
	"orderbook":      ChannelOrderbook,
	"kline":          ChannelKline,
	"liquidation":    ChannelLiquidation,
	"allLiquidation": ChannelLiquidation,
}

// timestamp candidates in priority order; all are epoch milliseconds.
var tsFields = []string{"ts", "cts", "T", "time"}

// Normalize converts one decoded venue message into a NormalizedEvent.
// It is total: arbitrary well-formed JSON input yields an event, never an
// error. Unrecognised topics come back as channel "other" with an empty
// symbol rather than a guessed one.
func Normalize(exchange string, raw map[string]any) NormalizedEvent {
	ev := NormalizedEvent{
		Exchange:    exchange,
		Channel:     ChannelOther,
		Kind:        classifyKind(raw),
		TimestampMs: extractTimestampMs(raw),
		Data:        raw,
	}

	topic, _ := raw["topic"].(string)
	ch, symbol, ok := parseTopic(topic)
	if !ok {
		return ev
	}
	ev.Channel = ch
	ev.Symbol = symbol

	switch ch {
	case ChannelTicker:
		ev.Data = shapeTicker(raw["data"])
	case ChannelTrade:
		ev.Data = shapeTrades(raw["data"])
	case ChannelOrderbook:
		ev.Data = shapeOrderbook(raw["data"])
	}
	return ev
}

// parseTopic splits "tickers.BTCUSDT" or "orderbook.50.BTCUSDT" into a
// channel and an uppercased symbol. An unknown head token reports !ok.
func parseTopic(topic string) (Channel, string, bool) {
	if topic == "" {
		return ChannelOther, "", false
	}
	parts := strings.Split(topic, ".")
	ch, known := channelHeads[parts[0]]
	if !known {
		return ChannelOther, "", false
	}
	symbol := ""
	if len(parts) > 1 {
		symbol = strings.ToUpper(parts[len(parts)-1])
	}
	return ch, symbol, true
}

func classifyKind(raw map[string]any) EventKind {
	switch raw["type"] {
	case "snapshot":
		return KindSnapshot
	case "delta":
		return KindDelta
	}
	if op, _ := raw["op"].(string); op == "subscribe" {
		return KindSubscribed
	}
	if _, ok := raw["success"]; ok {
		if ret, _ := raw["ret_msg"].(string); ret == "" || ret == "subscribe" {
			return KindSubscribed
		}
	}
	if op, _ := raw["op"].(string); op == "pong" {
		return KindPong
	}
	if ret, _ := raw["ret_msg"].(string); ret == "pong" {
		return KindPong
	}
	return KindUnknown
}

func extractTimestampMs(raw map[string]any) int64 {
	for _, field := range tsFields {
		if v, ok := raw[field]; ok {
			if ms := asInt64(v); ms > 0 {
				return ms
			}
		}
	}
	return time.Now().UnixMilli()
}

func shapeTicker(data any) *TickerData {
	obj := unwrapObject(data)
	if obj == nil {
		return &TickerData{}
	}
	return &TickerData{
		LastPrice:    numField(obj, "lastPrice"),
		MarkPrice:    numField(obj, "markPrice"),
		IndexPrice:   numField(obj, "indexPrice"),
		Bid1Price:    numField(obj, "bid1Price"),
		Ask1Price:    numField(obj, "ask1Price"),
		Price24hPcnt: numField(obj, "price24hPcnt"),
		Volume24h:    numField(obj, "volume24h"),
		Turnover24h:  numField(obj, "turnover24h"),
	}
}

func shapeTrades(data any) []Trade {
	list, ok := data.([]any)
	if !ok {
		if obj, isObj := data.(map[string]any); isObj {
			list = []any{obj}
		} else {
			return nil
		}
	}
	trades := make([]Trade, 0, len(list))
	for _, entry := range list {
		obj, isObj := entry.(map[string]any)
		if !isObj {
			continue
		}
		tr := Trade{
			Price:     numField(obj, "p"),
			Qty:       numField(obj, "v"),
			TradeTime: asInt64(obj["T"]),
		}
		if tr.Qty == nil {
			tr.Qty = numField(obj, "q")
		}
		if side, isStr := obj["S"].(string); isStr {
			tr.Side = side
		} else if maker, isBool := obj["m"].(bool); isBool {
			// maker flag marks the resting side; the taker took the other.
			if maker {
				tr.Side = "Sell"
			} else {
				tr.Side = "Buy"
			}
		}
		trades = append(trades, tr)
	}
	return trades
}

func shapeOrderbook(data any) *OrderbookData {
	obj, ok := data.(map[string]any)
	if !ok {
		return &OrderbookData{}
	}
	return &OrderbookData{
		Bids: shapeLevels(obj["b"]),
		Asks: shapeLevels(obj["a"]),
	}
}

func shapeLevels(v any) []BookLevel {
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	levels := make([]BookLevel, 0, len(list))
	for _, entry := range list {
		switch e := entry.(type) {
		case []any:
			var lvl BookLevel
			if len(e) > 0 {
				lvl.Price = asFloatPtr(e[0])
			}
			if len(e) > 1 {
				lvl.Qty = asFloatPtr(e[1])
			}
			levels = append(levels, lvl)
		case map[string]any:
			levels = append(levels, BookLevel{
				Price: numField(e, "price"),
				Qty:   numField(e, "qty"),
			})
		}
	}
	return levels
}

// unwrapObject accepts either an object or a single-element list of
// objects, which is how ticker payloads arrive on some categories.
func unwrapObject(data any) map[string]any {
	switch d := data.(type) {
	case map[string]any:
		return d
	case []any:
		if len(d) == 1 {
			if obj, ok := d[0].(map[string]any); ok {
				return obj
			}
		}
	}
	return nil
}

func numField(obj map[string]any, key string) *float64 {
	v, ok := obj[key]
	if !ok {
		return nil
	}
	return asFloatPtr(v)
}

func asFloatPtr(v any) *float64 {
	switch n := v.(type) {
	case float64:
		return &n
	case string:
		if n == "" {
			return nil
		}
		f, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return nil
		}
		return &f
	case int64:
		f := float64(n)
		return &f
	case int:
		f := float64(n)
		return &f
	}
	return nil
}

func asInt64(v any) int64 {
	switch n := v.(type) {
	case float64:
		return int64(n)
	case int64:
		return n
	case int:
		return int64(n)
	case string:
		i, err := strconv.ParseInt(n, 10, 64)
		if err != nil {
			return 0
		}
		return i
	}
	return 0
}
