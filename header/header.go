// Package header implements the fixed package header wire format described
// in spec.md §4.5: a 16-byte little-endian header, optionally followed by
// reserved padding bytes that a receiver must skip.
package header

import "encoding/binary"

// ContentType identifies what follows the header on the wire.
type ContentType uint8

const (
	// Message carries a parsed message payload plus an optional attached
	// binary.
	Message ContentType = 0
	// HeartbeatRequest is a bare 16-byte liveness probe.
	HeartbeatRequest ContentType = 1
	// HeartbeatReply answers a HeartbeatRequest.
	HeartbeatReply ContentType = 2
)

func (c ContentType) String() string {
	switch c {
	case Message:
		return "message"
	case HeartbeatRequest:
		return "heartbeat_request"
	case HeartbeatReply:
		return "heartbeat_reply"
	default:
		return "unknown"
	}
}

// Size is the fixed on-wire byte length of the base header, before any
// reserved padding that HeaderSizeDwords may advertise.
const Size = 16

// MinHeaderSizeDwords is the minimum legal value of HeaderSizeDwords; a
// writer must never emit less.
const MinHeaderSizeDwords = 4

// Header is the 16-byte fixed package header. All multi-byte fields are
// little-endian.
type Header struct {
	// PkgContentType is 0=message, 1=heartbeat_request, 2=heartbeat_reply.
	PkgContentType ContentType
	// HeaderSizeDwords * 4 is the actual on-wire header size; readers MUST
	// skip AdvertisedSize() bytes before reading the body.
	HeaderSizeDwords uint8
	// ContentSpecificValue is the message type id when PkgContentType is
	// Message; unused otherwise.
	ContentSpecificValue uint16
	// ContentSize is the number of body bytes immediately following the
	// header.
	ContentSize uint32
	// AttachedBinarySize is the number of opaque bytes following the body.
	AttachedBinarySize uint32
}

// AdvertisedSize returns the actual on-wire header length in bytes,
// 4*HeaderSizeDwords.
func (h Header) AdvertisedSize() int {
	return 4 * int(h.HeaderSizeDwords)
}

// FrameSize returns the total logical frame length: header + body +
// attached binary.
func (h Header) FrameSize() int {
	return h.AdvertisedSize() + int(h.ContentSize) + int(h.AttachedBinarySize)
}

// Encode writes h into dst, which must be at least Size bytes. It always
// emits HeaderSizeDwords==4 worth of base fields and zeroes the reserved
// word; it never shrinks the header below 4 dwords (spec.md §9).
func Encode(dst []byte, h Header) {
	_ = dst[Size-1]
	hsz := h.HeaderSizeDwords
	if hsz < MinHeaderSizeDwords {
		hsz = MinHeaderSizeDwords
	}
	dst[0] = byte(h.PkgContentType)
	dst[1] = hsz
	binary.LittleEndian.PutUint16(dst[2:4], h.ContentSpecificValue)
	binary.LittleEndian.PutUint32(dst[4:8], h.ContentSize)
	binary.LittleEndian.PutUint32(dst[8:12], h.AttachedBinarySize)
	binary.LittleEndian.PutUint32(dst[12:16], 0) // reserved, zero on emit
}

// NewFrame allocates and encodes a Size-byte header buffer.
func NewFrame(h Header) []byte {
	buf := make([]byte, Size)
	Encode(buf, h)
	return buf
}

// Decode reads a Header from the first Size bytes of src. It does not
// validate HeaderSizeDwords beyond returning the raw field; callers must
// use AdvertisedSize to skip any trailing reserved padding.
func Decode(src []byte) Header {
	_ = src[Size-1]
	return Header{
		PkgContentType:       ContentType(src[0]),
		HeaderSizeDwords:     src[1],
		ContentSpecificValue: binary.LittleEndian.Uint16(src[2:4]),
		ContentSize:          binary.LittleEndian.Uint32(src[4:8]),
		AttachedBinarySize:   binary.LittleEndian.Uint32(src[8:12]),
	}
}

// HeartbeatFrame builds a standalone 16-byte heartbeat packet (request or
// reply) with every non-type field zeroed, per spec.md §6.
func HeartbeatFrame(kind ContentType) []byte {
	return NewFrame(Header{PkgContentType: kind, HeaderSizeDwords: MinHeaderSizeDwords})
}
