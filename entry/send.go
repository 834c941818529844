package entry

import (
	"github.com/ngrodzitski/opnet/buffer"
	"github.com/ngrodzitski/opnet/conn"
	"github.com/ngrodzitski/opnet/header"
	"github.com/ngrodzitski/opnet/message"
)

// Send implements spec.md §4.6.3's generated send(msg): serialize msg,
// prepend a framing header, and hand the buffers to the connection.
func (e *Entry) Send(tag uint16, msg message.Serializer) {
	e.SendWithCallback(nil, tag, msg)
}

// SendWithCallback is Send with a per-batch completion callback.
func (e *Entry) SendWithCallback(cb conn.SendCallback, tag uint16, msg message.Serializer) {
	e.sendImpl(cb, tag, msg, nil)
}

// SendVec is spec.md §4.6.3's send_vec: a message followed by a sequence
// of attached-binary fragments carried as separate buffers (no copy into
// one contiguous allocation).
func (e *Entry) SendVec(tag uint16, msg message.Serializer, attachedParts ...[]byte) {
	e.SendVecWithCallback(nil, tag, msg, attachedParts...)
}

// SendVecWithCallback is SendVec with a per-batch completion callback.
func (e *Entry) SendVecWithCallback(cb conn.SendCallback, tag uint16, msg message.Serializer, attachedParts ...[]byte) {
	e.sendImpl(cb, tag, msg, attachedParts)
}

func (e *Entry) sendImpl(cb conn.SendCallback, tag uint16, msg message.Serializer, attachedParts [][]byte) {
	body := make([]byte, msg.ByteSize())
	if !msg.SerializeTo(body) {
		if cb != nil {
			cb(conn.SendDidntSend)
		}
		return
	}

	attachedSize := 0
	for _, p := range attachedParts {
		attachedSize += len(p)
	}

	h := header.Header{
		PkgContentType:       header.Message,
		HeaderSizeDwords:     header.MinHeaderSizeDwords,
		ContentSpecificValue: tag,
		ContentSize:          uint32(len(body)),
		AttachedBinarySize:   uint32(attachedSize),
	}

	bufs := make([]buffer.OutputBuffer, 0, 2+len(attachedParts))
	bufs = append(bufs,
		buffer.ConstSliceBuffer{Data: header.NewFrame(h)},
		buffer.OwnedBuffer{Buf: buffer.NewSimpleFromBytes(body)},
	)
	for _, p := range attachedParts {
		bufs = append(bufs, buffer.ConstSliceBuffer{Data: p})
	}

	e.msgStats.IncMessageOut(tag)
	e.Conn.ScheduleSendWithCallback(cb, bufs...)
}

// PostSend runs Send on the connection's own command-processing
// goroutine before serializing msg, giving a caller on a foreign
// goroutine the same ordering guarantee a direct Send from inside the
// entry's own callbacks already has.
func (e *Entry) PostSend(tag uint16, msg message.Serializer) {
	e.Conn.RunOnLoop(func() { e.Send(tag, msg) })
}

// DispatchSend is the dispatch-style counterpart to PostSend. Because
// conn.Conn.ScheduleSend already posts to the connection's loop
// internally, there is no separate "run inline if already on the strand"
// fast path to offer here beyond what PostSend gives; the two are kept as
// distinct names to mirror spec.md §4.6.3's post_send/dispatch_send pair.
func (e *Entry) DispatchSend(tag uint16, msg message.Serializer) {
	e.PostSend(tag, msg)
}
