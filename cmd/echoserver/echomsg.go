package main

import "github.com/ngrodzitski/opnet/message"

// echoTag is the content_specific_value this example registers; any value
// works as long as client and server agree on it.
const echoTag uint16 = 1

// echoMsg is the simplest possible message.Serializer/Deserializer: its
// whole body is an opaque payload, echoed back verbatim by the server.
// Grounded on original_source/proto_entry/examples/ping_pong_entry's
// PingRequest/PongReply pair, minus the protobuf dependency this example
// deliberately avoids.
type echoMsg struct {
	Payload []byte
}

func (m *echoMsg) ByteSize() int { return len(m.Payload) }

func (m *echoMsg) SerializeTo(buf []byte) bool {
	return copy(buf, m.Payload) == len(m.Payload)
}

func (m *echoMsg) ParseFromZeroCopy(src message.ZeroCopySource) bool {
	m.Payload = m.Payload[:0]
	for {
		chunk, ok := src.Next()
		if !ok {
			break
		}
		m.Payload = append(m.Payload, chunk...)
	}
	return true
}

func newEchoRegistry() *message.Registry {
	r := message.NewRegistry()
	r.Register(echoTag, func() message.Deserializer { return &echoMsg{} })
	return r
}
