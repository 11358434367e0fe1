package broadcast

import "encoding/json"

const (
	ChannelChat      = "chat"
	EventMessageSent = "message.sent"
)

// Frame types exchanged over a subscriber connection.
const (
	TypeSubscribe    = "subscribe"
	TypeUnsubscribe  = "unsubscribe"
	TypeSubscribed   = "subscribed"
	TypeUnsubscribed = "unsubscribed"
	TypeEvent        = "event"
	TypeError        = "error"
)

// Envelope is the JSON frame written to and read from subscribers.
//
//	-> {type: "subscribe", channel: "chat"}
//	<- {type: "subscribed", channel: "chat"}
//	<- {type: "event", channel: "chat", event: "message.sent", data: {...}}
//	<- {type: "error", error: "..."}
type Envelope struct {
	Type    string          `json:"type"`
	Channel string          `json:"channel,omitempty"`
	Event   string          `json:"event,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
}

func control(typ, channel string) Envelope {
	return Envelope{Type: typ, Channel: channel}
}
