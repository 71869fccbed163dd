package notify

import (
	"context"
	"errors"
	"fmt"
)

var ErrUnsupportedChannel = errors.New("unsupported channel")

// UnsupportedChannelError is returned by Dispatch for channels without a
// provider.
type UnsupportedChannelError struct {
	Channel Channel
}

func (e *UnsupportedChannelError) Error() string {
	return fmt.Sprintf("unsupported channel: %q", string(e.Channel))
}

func (e *UnsupportedChannelError) Is(target error) bool { return target == ErrUnsupportedChannel }

// Dispatcher routes a message to the provider of its channel.
type Dispatcher struct {
	routes map[Channel]Provider
}

// NewDispatcher wires the three supported channels. A nil provider leaves
// its channel unsupported.
func NewDispatcher(email, sms, push Provider) *Dispatcher {
	routes := make(map[Channel]Provider, 3)
	for ch, p := range map[Channel]Provider{ChannelEmail: email, ChannelSMS: sms, ChannelPush: push} {
		if p != nil {
			routes[ch] = p
		}
	}
	return &Dispatcher{routes: routes}
}

// Dispatch sends m through its channel's provider and returns the provider
// result.
func (d *Dispatcher) Dispatch(ctx context.Context, m Message) (Result, error) {
	p, ok := d.routes[m.Channel]
	if !ok {
		return nil, &UnsupportedChannelError{Channel: m.Channel}
	}
	return p.Send(ctx, m)
}
