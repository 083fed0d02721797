package transport

import (
	"context"
	"fmt"

	"github.com/pion/webrtc/v4"
)

// DataChannel adapts a pion WebRTC data channel to Channel and Transport.
// Messages are sent as text.
type DataChannel struct {
	dc    *webrtc.DataChannel
	inbox inbox
}

// NewDataChannel wraps dc and takes over its message callback.
func NewDataChannel(dc *webrtc.DataChannel) *DataChannel {
	d := &DataChannel{dc: dc}
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		d.inbox.push(msg.Data)
	})
	return d
}

// Label returns the label of the underlying data channel.
func (d *DataChannel) Label() string {
	return d.dc.Label()
}

// Publish implements Channel.
func (d *DataChannel) Publish(msg []byte) error {
	switch d.dc.ReadyState() {
	case webrtc.DataChannelStateOpen:
	case webrtc.DataChannelStateClosing, webrtc.DataChannelStateClosed:
		return ErrClosed
	default:
		return ErrNotOpen
	}

	if err := d.dc.SendText(string(msg)); err != nil {
		return fmt.Errorf("%w: %v", ErrPublishFailed, err)
	}
	return nil
}

// OnMessage implements Channel.
func (d *DataChannel) OnMessage(handler MessageHandler) {
	d.inbox.set(handler)
}

// OnClose registers f to be called when the data channel closes.
func (d *DataChannel) OnClose(f func()) {
	d.dc.OnClose(f)
}

// Kind implements Transport.
func (d *DataChannel) Kind() Kind { return KindData }

// Channel implements Transport.
func (d *DataChannel) Channel() (Channel, error) { return d, nil }

// AwaitDataChannel returns an Acquirer that resolves once dc is open.
// The subscriber context id is not used; the channel is already bound to
// the peer connection it was created on.
func AwaitDataChannel(dc *webrtc.DataChannel) Acquirer {
	opened := make(chan struct{})
	dc.OnOpen(func() {
		select {
		case <-opened:
		default:
			close(opened)
		}
	})

	d := NewDataChannel(dc)

	return func(ctx context.Context, _ string) (Transport, error) {
		if dc.ReadyState() == webrtc.DataChannelStateOpen {
			return d, nil
		}

		select {
		case <-opened:
			return d, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Verify DataChannel implements Channel and Transport.
var (
	_ Channel   = (*DataChannel)(nil)
	_ Transport = (*DataChannel)(nil)
)
