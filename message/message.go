// Package message defines the collaborator contract spec.md §6 expects
// from outside the core: a message serializer/deserializer pair, the
// consumer callback, and the carrier that pairs a decoded message with its
// attached binary. opnet never imports a protobuf runtime itself — any
// generated type (protobuf or otherwise) can satisfy these interfaces.
package message

import "github.com/ngrodzitski/opnet/pkginput"

// Serializer is implemented by any outbound message type.
type Serializer interface {
	// ByteSize returns the exact number of bytes SerializeTo will write.
	ByteSize() int
	// SerializeTo writes the message into buf, which is exactly
	// ByteSize() bytes long, and reports success.
	SerializeTo(buf []byte) bool
}

// ZeroCopySource is the minimal surface a generated parser needs; it is
// satisfied by *pkginput.Source.
type ZeroCopySource interface {
	Next() ([]byte, bool)
	BackUp(k int)
	SkipBytes(n int) bool
	ByteCount() int64
}

var _ ZeroCopySource = (*pkginput.Source)(nil)

// Deserializer parses one message of a known type from a bounded
// zero-copy source. It returns false if parsing failed; entry code treats
// a parser that reports success but consumed fewer bytes than ContentSize
// as InvalidInputPackage, per spec.md §4.6.2.
type Deserializer interface {
	ParseFromZeroCopy(src ZeroCopySource) bool
}

// NewDeserializer builds a fresh, empty message instance ready to receive
// ParseFromZeroCopy, keyed by a content_specific_value tag. This is the
// "registry of deserializers" spec.md §9 names as the idiomatic
// systems-language replacement for C++ template-generated per-message
// code.
type NewDeserializer func() Deserializer

// Registry maps a content_specific_value tag to a message constructor. It
// is the runtime equivalent of the codegen step spec.md §9 describes as
// optional; this repo takes the plain-registry branch.
type Registry struct {
	byTag map[uint16]NewDeserializer
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{byTag: make(map[uint16]NewDeserializer)}
}

// Register associates tag with a constructor. Registering the same tag
// twice overwrites the earlier constructor.
func (r *Registry) Register(tag uint16, ctor NewDeserializer) {
	r.byTag[tag] = ctor
}

// New constructs a fresh message for tag, or reports ok=false if tag is
// unregistered.
func (r *Registry) New(tag uint16) (Deserializer, bool) {
	ctor, ok := r.byTag[tag]
	if !ok {
		return nil, false
	}
	return ctor(), true
}

// Carrier pairs a decoded message with its optional attached binary, the
// unit handed to Consumer.OnMessage per spec.md §6.
type Carrier struct {
	Tag            uint16
	Msg            Deserializer
	AttachedBinary []byte
}

// Consumer receives dispatched messages. EntryHandle is typed as `any` here
// to avoid an import cycle with package entry; concrete callers receive
// *entry.Entry.
type Consumer interface {
	OnMessage(carrier Carrier, entryHandle any)
}

// ConsumerFunc adapts a plain function to Consumer.
type ConsumerFunc func(carrier Carrier, entryHandle any)

func (f ConsumerFunc) OnMessage(carrier Carrier, entryHandle any) { f(carrier, entryHandle) }
