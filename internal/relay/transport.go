package relay

import (
	"context"

	"e2eecore/internal/coreerr"
	"e2eecore/pkg/wire"
)

// Transport event names of spec.md §6, used with any bidirectional message
// channel (WebSocket, in-process, etc.).
const (
	EventKEPInit     = "kep:init"
	EventKEPResponse = "kep:response"
	EventKEPSent     = "kep:sent" // delivery ack from relay: {sessionId, delivered}
	EventMsgSend     = "msg:send"
	EventMsgReceived = "msg:received"
	EventError       = "error"
)

// DeliveryAck is the payload of a kep:sent event.
type DeliveryAck struct {
	SessionID string `json:"sessionId"`
	Delivered bool   `json:"delivered"`
}

// Channel is the minimal bidirectional send/receive abstraction a transport
// implementation exposes; AwaitingResponse below is built on top of it.
type Channel interface {
	Send(event string, payload any) error
	Recv(ctx context.Context) (event string, payload []byte, err error)
}

// AwaitingResponse is the minimal coroutine-shaped type spec.md §9 alludes
// to: it sends a KEP_INIT and blocks until a matching kep:response arrives,
// a kep:sent for the same session reports delivered=false, an error event
// arrives, or ctx is cancelled, giving C7 a concrete (if swappable)
// supervisor.Transport implementation.
type AwaitingResponse struct {
	Channel Channel
}

func (a *AwaitingResponse) RoundTrip(ctx context.Context, init wire.KEPMessage) (wire.KEPMessage, error) {
	if err := a.Channel.Send(EventKEPInit, init); err != nil {
		return wire.KEPMessage{}, coreerr.Wrap(coreerr.KindPeerUnreachable, err)
	}

	for {
		event, payload, err := a.Channel.Recv(ctx)
		if err != nil {
			return wire.KEPMessage{}, coreerr.Wrap(coreerr.KindTimeout, err)
		}
		switch event {
		case EventKEPResponse:
			var resp wire.KEPMessage
			if err := decodeJSON(payload, &resp); err != nil {
				return wire.KEPMessage{}, coreerr.Wrap(coreerr.KindIntegrity, err)
			}
			if resp.SessionID != init.SessionID {
				continue
			}
			return resp, nil
		case EventKEPSent:
			var ack DeliveryAck
			if err := decodeJSON(payload, &ack); err != nil {
				return wire.KEPMessage{}, coreerr.Wrap(coreerr.KindIntegrity, err)
			}
			if ack.SessionID == init.SessionID && !ack.Delivered {
				return wire.KEPMessage{}, coreerr.New(coreerr.KindPeerUnreachable)
			}
			continue
		case EventError:
			return wire.KEPMessage{}, coreerr.New(coreerr.KindPeerUnreachable)
		default:
			continue
		}
	}
}
