package service

import (
	"basis-alerts/internal/bus"
	"basis-alerts/internal/protocol"
	"basis-alerts/internal/stream"
)

// Bridge returns the stream handler that normalizes raw venue messages
// and publishes them on the bus under the given source tag. It is the
// only glue between the ingestion side and the consumers.
func Bridge(source, exchange string, b *bus.Bus) stream.Handler {
	return func(raw map[string]any) {
		ev := protocol.Normalize(exchange, raw)
		b.Publish(BusEventFrom(source, ev))
	}
}

// BusEventFrom converts a normalized event into the bus record. The
// payload keeps the shaped data plus the event kind; producers that
// never went through the normalizer may publish their own payload maps
// directly.
func BusEventFrom(source string, ev protocol.NormalizedEvent) bus.Event {
	return bus.Event{
		Source:  source,
		Channel: string(ev.Channel),
		Symbol:  ev.Symbol,
		Payload: map[string]any{
			"kind": string(ev.Kind),
			"data": ev.Data,
		},
		Timestamp: float64(ev.TimestampMs) / 1000.0,
	}
}
