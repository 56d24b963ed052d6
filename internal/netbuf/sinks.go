package netbuf

import "github.com/epcnet/upf/internal/core"

// EthSink consumes Ethernet frames one at a time.
//
// Consuming an empty view is legitimate; what to do with it is up to
// the implementation.
type EthSink interface {
	ConsumeEth(frame View, userData *core.UserData) error
}

// IPv4Sink consumes IPv4 packets one at a time.
type IPv4Sink interface {
	ConsumeIPv4(packet View, userData *core.UserData) error
}

// EthTap is an EthSink retaining the last consumed frame, mostly
// useful for composing pipelines and in tests.
type EthTap struct {
	Frame    View
	UserData core.UserData
}

func (t *EthTap) ConsumeEth(frame View, userData *core.UserData) error {
	t.Frame = frame
	if userData != nil {
		t.UserData = *userData
	}
	return nil
}

// IPv4Tap is an IPv4Sink retaining the last consumed packet.
type IPv4Tap struct {
	Packet   View
	UserData core.UserData
}

func (t *IPv4Tap) ConsumeIPv4(packet View, userData *core.UserData) error {
	t.Packet = packet
	if userData != nil {
		t.UserData = *userData
	}
	return nil
}
